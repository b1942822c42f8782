package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/taskora/taskora-ai/internal/domain"
	"github.com/taskora/taskora-ai/internal/ports"
)

// AnalysisStore is the durable repository for analysis results.
type AnalysisStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewAnalysisStore wraps an opened database.
func NewAnalysisStore(db *sql.DB) *AnalysisStore {
	return &AnalysisStore{db: db}
}

// Save upserts the result keyed by conversation id. A record for the same
// conversation is replaced, never duplicated.
func (s *AnalysisStore) Save(ctx context.Context, result domain.AnalysisResult) error {
	secondary, err := json.Marshal(result.SecondaryCategories)
	if err != nil {
		return err
	}
	metrics, err := json.Marshal(result.Metrics)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO analyses
		(conversation_id, summary, primary_category, secondary_categories, confidence, message_count, generated_at, metrics)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ConversationID,
		result.Summary,
		string(result.PrimaryCategory),
		string(secondary),
		result.Confidence,
		result.MessageCount,
		result.GeneratedAt.UTC().Format(time.RFC3339Nano),
		string(metrics),
	)
	return err
}

// FindByConversation returns the stored result for a conversation, if any.
func (s *AnalysisStore) FindByConversation(ctx context.Context, id string) (domain.AnalysisResult, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT summary, primary_category, secondary_categories, confidence, message_count, generated_at, metrics
		FROM analyses WHERE conversation_id = ?`, id)

	var result domain.AnalysisResult
	var primary, secondary, generatedAt, metrics string
	err := row.Scan(&result.Summary, &primary, &secondary, &result.Confidence, &result.MessageCount, &generatedAt, &metrics)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AnalysisResult{}, false, nil
	}
	if err != nil {
		return domain.AnalysisResult{}, false, err
	}

	result.ConversationID = id
	result.PrimaryCategory = domain.Category(primary)
	if secondary != "" {
		if err := json.Unmarshal([]byte(secondary), &result.SecondaryCategories); err != nil {
			return domain.AnalysisResult{}, false, err
		}
	}
	if metrics != "" {
		if err := json.Unmarshal([]byte(metrics), &result.Metrics); err != nil {
			return domain.AnalysisResult{}, false, err
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, generatedAt); err == nil {
		result.GeneratedAt = t
	}
	return result, true, nil
}

var _ ports.AnalysisRepository = (*AnalysisStore)(nil)
