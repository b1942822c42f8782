// Package retrieval queries the external vector store for contextual
// documents and degrades to static fallbacks when the store is unreachable.
package retrieval

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/taskora/taskora-ai/internal/domain"
	"github.com/taskora/taskora-ai/internal/ports"
)

// Adapter implements the Retriever port over an embedder and a vector index.
// Retrieve never fails: degraded-but-present context beats an empty context
// block, because prompt construction tolerates generic filler.
type Adapter struct {
	embedder ports.Embedder
	index    ports.VectorIndex
	log      ports.Logger
}

// NewAdapter builds an Adapter.
func NewAdapter(embedder ports.Embedder, index ports.VectorIndex, log ports.Logger) *Adapter {
	return &Adapter{embedder: embedder, index: index, log: log}
}

// Retrieve implements ports.Retriever.
func (a *Adapter) Retrieve(ctx context.Context, query, namespace string, topK int) []domain.Document {
	if topK <= 0 {
		topK = 3
	}

	vector, err := a.embedder.Embed(ctx, query)
	if err != nil {
		a.warn("embedding failed, using fallback context", err)
		return fallbackDocuments(query)
	}

	docs, err := a.index.Query(ctx, vector, namespace, topK)
	if err != nil {
		a.warn("vector query failed, using fallback context", err)
		return fallbackDocuments(query)
	}
	if len(docs) == 0 {
		return fallbackDocuments(query)
	}
	return docs
}

// Index embeds and upserts documents into the vector store. This is the
// write path, off the hot analysis path. Documents without an ID get one.
func (a *Adapter) Index(ctx context.Context, docs []domain.Document, namespace string) error {
	records := make([]domain.VectorRecord, 0, len(docs))
	for _, doc := range docs {
		vector, err := a.embedder.Embed(ctx, doc.Content)
		if err != nil {
			return err
		}
		id := doc.ID
		if id == "" {
			id = uuid.NewString()
		}
		metadata := map[string]string{"text": doc.Content}
		for k, v := range doc.Metadata {
			metadata[k] = v
		}
		records = append(records, domain.VectorRecord{ID: id, Values: vector, Metadata: metadata})
	}
	return a.index.Upsert(ctx, records, namespace)
}

func (a *Adapter) warn(msg string, err error) {
	if a.log != nil {
		a.log.Warn(msg, map[string]interface{}{"error": err.Error()})
	}
}

type fallbackDocument struct {
	keywords []string
	doc      domain.Document
}

var fallbackCatalog = []fallbackDocument{
	{
		keywords: []string{"deadline", "due", "schedule", "sprint"},
		doc: domain.Document{
			ID:      "fallback-scheduling",
			Content: "Tasks carry a due date and belong to a sprint. Overdue tasks surface on the team dashboard and in the daily digest.",
		},
	},
	{
		keywords: []string{"bug", "error", "crash", "broken", "fail"},
		doc: domain.Document{
			ID:      "fallback-triage",
			Content: "Bug reports are triaged by severity. Blocking defects escalate to the on-call engineer; everything else lands in the backlog.",
		},
	},
	{
		keywords: []string{"billing", "invoice", "payment", "subscription"},
		doc: domain.Document{
			ID:      "fallback-billing",
			Content: "Workspaces are billed per seat per month. Invoices and payment methods are managed by the workspace owner.",
		},
	},
	{
		keywords: []string{"team", "member", "assign", "invite"},
		doc: domain.Document{
			ID:      "fallback-collaboration",
			Content: "Teams own projects; projects own tasks. Any team member can assign tasks, comment, and mention teammates.",
		},
	},
}

var genericFallback = domain.Document{
	ID:      "fallback-workflow",
	Content: "Conversations in this workspace revolve around planning tasks, reporting progress, and unblocking teammates.",
}

// fallbackDocuments returns a small topic-matched static set.
func fallbackDocuments(query string) []domain.Document {
	lowered := strings.ToLower(query)
	var docs []domain.Document
	for _, candidate := range fallbackCatalog {
		for _, keyword := range candidate.keywords {
			if strings.Contains(lowered, keyword) {
				docs = append(docs, candidate.doc)
				break
			}
		}
	}
	if len(docs) == 0 {
		docs = append(docs, genericFallback)
	}
	return docs
}

var _ ports.Retriever = (*Adapter)(nil)
