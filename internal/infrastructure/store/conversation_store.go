package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/taskora/taskora-ai/internal/domain"
	"github.com/taskora/taskora-ai/internal/ports"
)

// ConversationStore reads conversation threads and their message history.
type ConversationStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewConversationStore wraps an opened database.
func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

// Conversation implements ports.ConversationRepository.
func (s *ConversationStore) Conversation(ctx context.Context, id string) (domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, title, team_id, created_at FROM conversations WHERE id = ?`, id)

	var conv domain.Conversation
	var createdAt string
	err := row.Scan(&conv.ID, &conv.Title, &conv.TeamID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Conversation{}, fmt.Errorf("conversation %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		conv.CreatedAt = t
	}
	return conv, nil
}

// Messages implements ports.ConversationRepository. Messages come back in
// send order.
func (s *ConversationStore) Messages(ctx context.Context, id string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, conversation_id, sender, body, system, sent_at
		FROM messages WHERE conversation_id = ? ORDER BY datetime(sent_at) ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var system int
		var sentAt string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Body, &system, &sentAt); err != nil {
			return nil, err
		}
		msg.System = system == 1
		if t, err := time.Parse(time.RFC3339, sentAt); err == nil {
			msg.SentAt = t
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Seed inserts a conversation with its messages. Used by the seed command
// and tests.
func (s *ConversationStore) Seed(ctx context.Context, conv domain.Conversation, messages []domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO conversations (id, title, team_id, created_at) VALUES (?, ?, ?, ?)`,
		conv.ID, conv.Title, conv.TeamID, conv.CreatedAt.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	for _, msg := range messages {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO messages (id, conversation_id, sender, body, system, sent_at) VALUES (?, ?, ?, ?, ?, ?)`,
			msg.ID, conv.ID, msg.Sender, msg.Body, boolToInt(msg.System), msg.SentAt.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ ports.ConversationRepository = (*ConversationStore)(nil)
