package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/taskora/taskora-ai/internal/domain"
	"github.com/taskora/taskora-ai/internal/ports"
)

const (
	// acquireTimeout bounds the wait for a rate-limiter permit before the
	// request degrades to a fallback result.
	acquireTimeout = 5 * time.Second
	// joinWait bounds how long a deduplicated caller waits on the in-flight
	// request before giving up and running its own attempt.
	joinWait = 10 * time.Second
	// fallbackSummaryLimit truncates the transcript used as a fallback summary.
	fallbackSummaryLimit = 200
	defaultTopK          = 3
)

// AnalysisService orchestrates one "analyze conversation" operation: layered
// cache lookup, request deduplication, moderation, rate limiting, retrieval,
// the LLM call, parsing, and write-back to both cache layers.
//
// The public contract is guaranteed-success: every failure mode except a
// missing conversation degrades to a structurally valid fallback result,
// with the degradation signaled through Metrics["errorReason"].
type AnalysisService struct {
	Conversations ports.ConversationRepository
	Analyses      ports.AnalysisRepository
	Cache         ports.AnalysisCache
	Provider      ports.LLMProvider
	Limiter       ports.RateLimiter
	Retriever     ports.Retriever
	Moderation    ports.ModerationService
	Logger        ports.Logger
	Namespace     string
	TopK          int

	mu       sync.Mutex
	inflight map[string]*inflightRequest
}

// inflightRequest is the single pending unit of work for a key. All
// concurrent callers for that key share it.
type inflightRequest struct {
	done   chan struct{}
	result domain.AnalysisResult
	err    error
}

// Analyze implements domain.AnalysisService.
func (s *AnalysisService) Analyze(req domain.AnalyzeRequest) (domain.AnalysisResult, error) {
	if s.Conversations == nil || s.Analyses == nil || s.Cache == nil ||
		s.Provider == nil || s.Limiter == nil || s.Logger == nil {
		return domain.AnalysisResult{}, errors.New("services.AnalysisService dependencies not satisfied")
	}

	ctx := req.Context
	if ctx == nil {
		ctx = context.Background()
	}
	key := req.ConversationID
	if key == "" {
		return domain.AnalysisResult{}, fmt.Errorf("conversation id required: %w", domain.ErrNotFound)
	}

	if !req.ForceRefresh {
		if result, ok := s.Cache.Get(key); ok {
			s.Logger.Debug("memory cache hit", map[string]interface{}{"conversation": key})
			return result, nil
		}
		result, ok, err := s.Analyses.FindByConversation(ctx, key)
		if err != nil {
			s.Logger.Warn("durable store lookup failed", map[string]interface{}{
				"conversation": key, "error": err.Error(),
			})
		} else if ok {
			s.Cache.Set(key, result)
			return result, nil
		}
	}

	s.mu.Lock()
	if s.inflight == nil {
		s.inflight = make(map[string]*inflightRequest)
	}
	if existing, ok := s.inflight[key]; ok {
		s.mu.Unlock()
		if req.ForceRefresh {
			// A refresh must not reuse the pending result; run unregistered.
			return s.analyze(ctx, req)
		}
		return s.join(ctx, req, existing)
	}
	fl := &inflightRequest{done: make(chan struct{})}
	s.inflight[key] = fl
	s.mu.Unlock()

	var result domain.AnalysisResult
	var err error
	// Re-check the cache after winning the insert race: a previous winner
	// may have written back between our lookup and the insert.
	if cached, ok := s.Cache.Get(key); ok && !req.ForceRefresh {
		result, err = cached, nil
	} else {
		result, err = s.analyze(ctx, req)
	}

	// Persistence happened inside analyze; resolve the future before
	// removing the in-flight entry so a joiner never observes "not in
	// flight" while the write is still pending.
	fl.result, fl.err = result, err
	close(fl.done)

	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()

	return result, err
}

// join awaits the winner's future for a bounded time. A timed-out joiner
// retries on its own without registering; the registered owner keeps the
// in-flight slot so the at-most-one invariant holds.
func (s *AnalysisService) join(ctx context.Context, req domain.AnalyzeRequest, fl *inflightRequest) (domain.AnalysisResult, error) {
	timer := time.NewTimer(joinWait)
	defer timer.Stop()
	select {
	case <-fl.done:
		return fl.result, fl.err
	case <-timer.C:
		s.Logger.Warn("in-flight wait timed out, retrying independently", map[string]interface{}{
			"conversation": req.ConversationID,
		})
		return s.analyze(ctx, req)
	case <-ctx.Done():
		return domain.AnalysisResult{}, ctx.Err()
	}
}

// analyze performs the real work for one key: load and filter messages,
// moderate, acquire a permit, call the model, parse, persist, cache.
func (s *AnalysisService) analyze(ctx context.Context, req domain.AnalyzeRequest) (domain.AnalysisResult, error) {
	key := req.ConversationID

	conv, err := s.Conversations.Conversation(ctx, key)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("load conversation: %w", err)
	}
	messages, err := s.Conversations.Messages(ctx, key)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("load messages: %w", err)
	}
	messages = filterMessages(messages, req.Filter)
	if len(messages) == 0 {
		return domain.AnalysisResult{}, fmt.Errorf("no messages after filtering: %w", domain.ErrNotFound)
	}

	transcript := flattenTranscript(messages)

	if s.Moderation != nil {
		if verdict := s.Moderation.Check(transcript); verdict.Recommendation == domain.RecommendBlock {
			s.Logger.Warn("transcript blocked by moderation", map[string]interface{}{
				"conversation": key,
				"category":     string(verdict.Category),
			})
			return s.fallbackResult(key, transcript, len(messages), domain.ReasonModerationBlocked), nil
		}
	}

	if !s.Limiter.Acquire(acquireTimeout) {
		return s.fallbackResult(key, transcript, len(messages), domain.ReasonRateLimited), nil
	}

	docs := s.retrieveContext(ctx, conv, transcript)
	prompt := buildAnalysisPrompt(conv, transcript, docs)

	raw, err := s.Provider.Generate(ctx, prompt)
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			s.Limiter.ReportRateLimitExceeded()
			return s.fallbackResult(key, transcript, len(messages), domain.ReasonRateLimited), nil
		}
		s.Logger.Warn("provider call failed", map[string]interface{}{
			"conversation": key, "error": err.Error(),
		})
		return s.fallbackResult(key, transcript, len(messages), domain.ReasonUpstreamError), nil
	}
	s.Limiter.ReportSuccess()

	result, err := parseAnalysis(key, raw, len(messages), time.Now())
	if err != nil {
		s.Logger.Warn("model response unparseable", map[string]interface{}{
			"conversation": key, "error": err.Error(),
		})
		return s.fallbackResult(key, transcript, len(messages), domain.ReasonParseError), nil
	}

	if err := s.Analyses.Save(ctx, result); err != nil {
		s.Logger.Warn("persist analysis failed", map[string]interface{}{
			"conversation": key, "error": err.Error(),
		})
	}
	s.Cache.Set(key, result)
	return result, nil
}

func (s *AnalysisService) retrieveContext(ctx context.Context, conv domain.Conversation, transcript string) []domain.Document {
	if s.Retriever == nil {
		return nil
	}
	topK := s.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	query := strings.TrimSpace(conv.Title + " " + truncate(transcript, 500))
	return s.Retriever.Retrieve(ctx, query, s.Namespace, topK)
}

// fallbackResult synthesizes a lower-confidence analysis so the feature
// stays available under upstream outages. Fallbacks are returned to callers
// and joiners but not persisted, so the next request retries for real.
func (s *AnalysisService) fallbackResult(key, transcript string, messageCount int, reason string) domain.AnalysisResult {
	return domain.AnalysisResult{
		ConversationID:  key,
		Summary:         truncate(transcript, fallbackSummaryLimit),
		PrimaryCategory: domain.CategoryMissingInfo,
		Confidence:      0.5,
		MessageCount:    messageCount,
		GeneratedAt:     time.Now(),
		Metrics:         map[string]string{domain.MetricErrorReason: reason},
	}
}

func filterMessages(messages []domain.Message, filter domain.MessageFilter) []domain.Message {
	filtered := make([]domain.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.System && !filter.IncludeSystem {
			continue
		}
		if !filter.Since.IsZero() && msg.SentAt.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && msg.SentAt.After(filter.Until) {
			continue
		}
		filtered = append(filtered, msg)
	}
	return filtered
}

func flattenTranscript(messages []domain.Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		sender := msg.Sender
		if msg.System {
			sender = "system"
		}
		lines = append(lines, sender+": "+msg.Body)
	}
	return strings.Join(lines, "\n")
}

// truncate shortens text to at most limit bytes without splitting a rune.
func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "…"
}

var _ domain.AnalysisService = (*AnalysisService)(nil)
