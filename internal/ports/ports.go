// Package ports defines the interfaces (ports) for the hexagonal architecture.
//
// The application core depends on these abstractions; concrete adapters live
// in the infrastructure layer (HTTP clients, SQLite stores, the rate limiter).
package ports

import (
	"context"
	"time"

	"github.com/taskora/taskora-ai/internal/domain"
)

// ConfigProvider loads the latest configuration from persistent storage.
// Implementations typically read from ~/.taskora/config.yaml.
type ConfigProvider interface {
	Load(context.Context) (domain.Config, error)
}

// LLMProvider generates raw model text for a prompt. Implementations wrap a
// specific AI service API and translate 429-class rejections into errors
// matching domain.ErrRateLimited.
type LLMProvider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder turns text into a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the external similarity store.
type VectorIndex interface {
	Query(ctx context.Context, vector []float32, namespace string, topK int) ([]domain.Document, error)
	Upsert(ctx context.Context, records []domain.VectorRecord, namespace string) error
}

// Retriever fetches contextual documents for a query. It never fails: on any
// upstream problem it degrades to static fallback documents.
type Retriever interface {
	Retrieve(ctx context.Context, query, namespace string, topK int) []domain.Document
}

// ModerationService classifies text before it reaches the LLM.
// Check never blocks and never errors.
type ModerationService interface {
	Check(text string) domain.ModerationResult
}

// RateLimiter is the shared admission-control primitive in front of the LLM
// endpoint. One instance is shared by all callers.
type RateLimiter interface {
	Acquire(timeout time.Duration) bool
	Release()
	ReportSuccess()
	ReportRateLimitExceeded()
}

// ConversationRepository loads conversations and their message history.
type ConversationRepository interface {
	Conversation(ctx context.Context, id string) (domain.Conversation, error)
	Messages(ctx context.Context, id string) ([]domain.Message, error)
}

// AnalysisRepository is the durable store for analysis results.
type AnalysisRepository interface {
	FindByConversation(ctx context.Context, id string) (domain.AnalysisResult, bool, error)
	Save(ctx context.Context, result domain.AnalysisResult) error
}

// AnalysisCache is the in-memory layer over the durable store. Stale entries
// are treated as absent, never returned.
type AnalysisCache interface {
	Get(key string) (domain.AnalysisResult, bool)
	Set(key string, result domain.AnalysisResult)
}

// Logger provides structured logging abstraction for the application layer.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
}
