package app

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/taskora/taskora-ai/internal/domain"
	"github.com/taskora/taskora-ai/internal/infrastructure/ai"
	"github.com/taskora/taskora-ai/internal/infrastructure/config"
	"github.com/taskora/taskora-ai/internal/infrastructure/moderation"
	"github.com/taskora/taskora-ai/internal/infrastructure/ratelimit"
	"github.com/taskora/taskora-ai/internal/infrastructure/retrieval"
	"github.com/taskora/taskora-ai/internal/infrastructure/store"
	"github.com/taskora/taskora-ai/internal/pkg/logger"
	"github.com/taskora/taskora-ai/internal/ports"
	"github.com/taskora/taskora-ai/internal/services"
)

// Container wires up application services with infrastructure adapters.
type Container struct {
	Analysis      *services.AnalysisService
	Conversations *store.ConversationStore
	Retrieval     *retrieval.Adapter
	Moderation    ports.ModerationService
	ConfigLoader  *config.FileLoader
	Config        domain.Config
	Logger        ports.Logger

	limiter *ratelimit.Limiter
	db      *sql.DB
}

// BuildContainer constructs the dependency graph. Close must be called at
// shutdown to stop the limiter's replenishment worker and release the db.
func BuildContainer(ctx context.Context, verbose bool) (*Container, error) {
	cfgLoader := config.NewFileLoader("")
	cfg, err := cfgLoader.Load(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.NewStd(verbose)

	dbPath := cfg.Storage.DatabasePath
	if dbPath == "" {
		dbPath = store.DefaultPath()
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}

	gate, err := moderation.NewGate(cfg.Moderation.RulesFile)
	if err != nil {
		gate, err = moderation.NewGate("")
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	httpClient := &http.Client{Timeout: time.Duration(cfg.AI.TimeoutSeconds) * time.Second}
	limiter := ratelimit.New(cfg.RateLimit, log)
	conversations := store.NewConversationStore(db)
	retriever := retrieval.NewAdapter(
		ai.NewEmbedClient(cfg.Retrieval, httpClient),
		retrieval.NewIndexClient(cfg.Retrieval, httpClient),
		log,
	)

	analysis := &services.AnalysisService{
		Conversations: conversations,
		Analyses:      store.NewAnalysisStore(db),
		Cache:         store.NewMemoryCache(time.Duration(cfg.Cache.ExpiryMinutes) * time.Minute),
		Provider:      ai.NewGeminiProvider(cfg.AI, httpClient),
		Limiter:       limiter,
		Retriever:     retriever,
		Logger:        log,
		Namespace:     cfg.Retrieval.Namespace,
		TopK:          cfg.Retrieval.TopK,
	}
	if cfg.Moderation.Enabled {
		analysis.Moderation = gate
	}

	return &Container{
		Analysis:      analysis,
		Conversations: conversations,
		Retrieval:     retriever,
		Moderation:    gate,
		ConfigLoader:  cfgLoader,
		Config:        cfg,
		Logger:        log,
		limiter:       limiter,
		db:            db,
	}, nil
}

// Close releases background workers and storage handles.
func (c *Container) Close() error {
	if c.limiter != nil {
		c.limiter.Stop()
	}
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
