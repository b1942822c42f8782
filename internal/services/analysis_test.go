package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/taskora/taskora-ai/internal/domain"
	"github.com/taskora/taskora-ai/internal/pkg/logger"
)

const mockedResponse = `{"summary":"Standup recap","primary_category":"STATUS_UPDATE","secondary_categories":["TASK_PLANNING"],"confidence":0.9,"reasoning":"daily sync"}`

func testMessages(n int) []domain.Message {
	msgs := make([]domain.Message, 0, n)
	for i := 0; i < n; i++ {
		msgs = append(msgs, domain.Message{
			ID:             fmt.Sprintf("msg-%d", i),
			ConversationID: "conv-1",
			Sender:         "alex",
			Body:           fmt.Sprintf("update %d", i),
			SentAt:         time.Date(2026, 3, 1, 9, i, 0, 0, time.UTC),
		})
	}
	return msgs
}

func newTestService(conversations *stubConversations, provider *stubProvider, limiter *stubLimiter) (*AnalysisService, *stubAnalyses, *stubCache) {
	analyses := &stubAnalyses{}
	cache := &stubCache{}
	svc := &AnalysisService{
		Conversations: conversations,
		Analyses:      analyses,
		Cache:         cache,
		Provider:      provider,
		Limiter:       limiter,
		Logger:        logger.NewStd(false),
	}
	return svc, analyses, cache
}

func TestAnalyzeReturnsParsedResultAndPersists(t *testing.T) {
	conversations := &stubConversations{
		conv: domain.Conversation{ID: "conv-1", Title: "standup"},
		msgs: testMessages(3),
	}
	provider := &stubProvider{response: mockedResponse}
	svc, analyses, _ := newTestService(conversations, provider, &stubLimiter{allow: true})

	result, err := svc.Analyze(domain.AnalyzeRequest{ConversationID: "conv-1"})
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if result.PrimaryCategory != domain.CategoryStatusUpdate {
		t.Fatalf("primary = %s, want STATUS_UPDATE", result.PrimaryCategory)
	}
	if result.MessageCount != 3 {
		t.Fatalf("message count = %d, want 3", result.MessageCount)
	}
	if got := analyses.saveCount(); got != 1 {
		t.Fatalf("save count = %d, want 1", got)
	}

	// A second call is served from cache without another LLM invocation.
	again, err := svc.Analyze(domain.AnalyzeRequest{ConversationID: "conv-1"})
	if err != nil {
		t.Fatalf("second Analyze error: %v", err)
	}
	if again.Summary != result.Summary {
		t.Fatalf("cached summary = %q, want %q", again.Summary, result.Summary)
	}
	if got := provider.callCount(); got != 1 {
		t.Fatalf("provider calls = %d, want 1", got)
	}
}

func TestAnalyzeDeduplicatesConcurrentCallers(t *testing.T) {
	conversations := &stubConversations{
		conv: domain.Conversation{ID: "conv-1"},
		msgs: testMessages(2),
	}
	provider := &stubProvider{response: mockedResponse, delay: 50 * time.Millisecond}
	svc, _, _ := newTestService(conversations, provider, &stubLimiter{allow: true})

	const callers = 10
	results := make([]domain.AnalysisResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Analyze(domain.AnalyzeRequest{ConversationID: "conv-1"})
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d error: %v", i, errs[i])
		}
		if results[i].Summary != results[0].Summary {
			t.Fatalf("caller %d got a different result", i)
		}
	}
	if got := provider.callCount(); got != 1 {
		t.Fatalf("provider calls = %d, want exactly 1 for %d concurrent callers", got, callers)
	}
}

func TestAnalyzeFallsBackWhenRateLimited(t *testing.T) {
	conversations := &stubConversations{
		conv: domain.Conversation{ID: "conv-2"},
		msgs: testMessages(2),
	}
	provider := &stubProvider{response: mockedResponse}
	svc, analyses, _ := newTestService(conversations, provider, &stubLimiter{allow: false})

	result, err := svc.Analyze(domain.AnalyzeRequest{ConversationID: "conv-2"})
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if result.PrimaryCategory != domain.CategoryMissingInfo {
		t.Fatalf("primary = %s, want MISSING_INFO", result.PrimaryCategory)
	}
	if result.Confidence != 0.5 {
		t.Fatalf("confidence = %v, want 0.5", result.Confidence)
	}
	if result.Metrics[domain.MetricErrorReason] != domain.ReasonRateLimited {
		t.Fatalf("errorReason = %q, want RATE_LIMITED", result.Metrics[domain.MetricErrorReason])
	}
	if provider.callCount() != 0 {
		t.Fatal("provider must not be called without a permit")
	}
	if analyses.saveCount() != 0 {
		t.Fatal("fallback results must not be persisted")
	}
}

func TestAnalyzeReportsUpstreamRejection(t *testing.T) {
	conversations := &stubConversations{
		conv: domain.Conversation{ID: "conv-1"},
		msgs: testMessages(1),
	}
	provider := &stubProvider{err: fmt.Errorf("gemini: 429: %w", domain.ErrRateLimited)}
	limiter := &stubLimiter{allow: true}
	svc, _, _ := newTestService(conversations, provider, limiter)

	result, err := svc.Analyze(domain.AnalyzeRequest{ConversationID: "conv-1"})
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if result.Metrics[domain.MetricErrorReason] != domain.ReasonRateLimited {
		t.Fatalf("errorReason = %q, want RATE_LIMITED", result.Metrics[domain.MetricErrorReason])
	}
	if !limiter.exceededReported() {
		t.Fatal("429 must be reported to the rate limiter")
	}
}

func TestAnalyzeFallsBackOnUpstreamError(t *testing.T) {
	conversations := &stubConversations{
		conv: domain.Conversation{ID: "conv-1"},
		msgs: testMessages(1),
	}
	provider := &stubProvider{err: errors.New("connection reset")}
	svc, _, _ := newTestService(conversations, provider, &stubLimiter{allow: true})

	result, err := svc.Analyze(domain.AnalyzeRequest{ConversationID: "conv-1"})
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if result.Metrics[domain.MetricErrorReason] != domain.ReasonUpstreamError {
		t.Fatalf("errorReason = %q, want UPSTREAM_ERROR", result.Metrics[domain.MetricErrorReason])
	}
}

func TestAnalyzeFallsBackOnUnparseableOutput(t *testing.T) {
	conversations := &stubConversations{
		conv: domain.Conversation{ID: "conv-1"},
		msgs: testMessages(1),
	}
	provider := &stubProvider{response: "I would rather write prose."}
	limiter := &stubLimiter{allow: true}
	svc, _, _ := newTestService(conversations, provider, limiter)

	result, err := svc.Analyze(domain.AnalyzeRequest{ConversationID: "conv-1"})
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if result.Metrics[domain.MetricErrorReason] != domain.ReasonParseError {
		t.Fatalf("errorReason = %q, want PARSE_ERROR", result.Metrics[domain.MetricErrorReason])
	}
	if !limiter.successReported() {
		t.Fatal("an accepted call must report success even when parsing fails")
	}
}

func TestAnalyzeMissingConversationIsHardError(t *testing.T) {
	conversations := &stubConversations{convErr: domain.ErrNotFound}
	svc, _, _ := newTestService(conversations, &stubProvider{}, &stubLimiter{allow: true})

	_, err := svc.Analyze(domain.AnalyzeRequest{ConversationID: "ghost"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAnalyzeFiltersSystemMessages(t *testing.T) {
	conversations := &stubConversations{
		conv: domain.Conversation{ID: "conv-1"},
		msgs: []domain.Message{
			{ID: "m1", Body: "user joined", System: true, SentAt: time.Now()},
		},
	}
	svc, _, _ := newTestService(conversations, &stubProvider{response: mockedResponse}, &stubLimiter{allow: true})

	// Only system messages remain, and the default filter drops them.
	_, err := svc.Analyze(domain.AnalyzeRequest{ConversationID: "conv-1"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty filtered history, got %v", err)
	}
}

func TestAnalyzeModerationBlockDegrades(t *testing.T) {
	conversations := &stubConversations{
		conv: domain.Conversation{ID: "conv-1"},
		msgs: testMessages(2),
	}
	provider := &stubProvider{response: mockedResponse}
	svc, _, _ := newTestService(conversations, provider, &stubLimiter{allow: true})
	svc.Moderation = stubModeration{result: domain.ModerationResult{
		Safe:           false,
		Category:       domain.ModerationSecurityThreat,
		Recommendation: domain.RecommendBlock,
	}}

	result, err := svc.Analyze(domain.AnalyzeRequest{ConversationID: "conv-1"})
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if result.Metrics[domain.MetricErrorReason] != domain.ReasonModerationBlocked {
		t.Fatalf("errorReason = %q, want MODERATION_BLOCKED", result.Metrics[domain.MetricErrorReason])
	}
	if provider.callCount() != 0 {
		t.Fatal("blocked transcripts must not reach the provider")
	}
}

func TestAnalyzeForceRefreshBypassesCache(t *testing.T) {
	conversations := &stubConversations{
		conv: domain.Conversation{ID: "conv-1"},
		msgs: testMessages(2),
	}
	provider := &stubProvider{response: mockedResponse}
	svc, _, _ := newTestService(conversations, provider, &stubLimiter{allow: true})

	if _, err := svc.Analyze(domain.AnalyzeRequest{ConversationID: "conv-1"}); err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if _, err := svc.Analyze(domain.AnalyzeRequest{ConversationID: "conv-1", ForceRefresh: true}); err != nil {
		t.Fatalf("refresh Analyze error: %v", err)
	}
	if got := provider.callCount(); got != 2 {
		t.Fatalf("provider calls = %d, want 2 with forced refresh", got)
	}
}

func TestAnalyzeServesDurableStoreWithoutProvider(t *testing.T) {
	conversations := &stubConversations{
		conv: domain.Conversation{ID: "conv-1"},
		msgs: testMessages(2),
	}
	provider := &stubProvider{response: mockedResponse}
	svc, analyses, cache := newTestService(conversations, provider, &stubLimiter{allow: true})
	stored := domain.AnalysisResult{ConversationID: "conv-1", Summary: "from disk", PrimaryCategory: domain.CategoryDecision}
	analyses.seed(stored)

	result, err := svc.Analyze(domain.AnalyzeRequest{ConversationID: "conv-1"})
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if result.Summary != "from disk" {
		t.Fatalf("summary = %q, want durable store copy", result.Summary)
	}
	if provider.callCount() != 0 {
		t.Fatal("durable hit must not invoke the provider")
	}
	if _, ok := cache.Get("conv-1"); !ok {
		t.Fatal("durable hit must populate the memory cache")
	}
}

func TestTruncatePreservesRuneBoundaries(t *testing.T) {
	text := strings.Repeat("a", 199) + "héllo wörld"

	got := truncate(text, 200)

	if !utf8.ValidString(got) {
		t.Fatalf("truncate produced invalid UTF-8: %q", got)
	}
	// The two-byte "é" starts at the limit and must be dropped whole.
	if want := strings.Repeat("a", 199) + "h…"; got != want {
		t.Fatalf("truncate = %q, want %q", got, want)
	}

	// A limit landing inside the "é" must back up to the rune start.
	if got := truncate(text, 201); got != strings.Repeat("a", 199)+"h…" {
		t.Fatalf("mid-rune truncate = %q, want the rune dropped whole", got)
	}

	if got := truncate("short", 200); got != "short" {
		t.Fatalf("truncate below limit = %q, want unchanged", got)
	}
}

// ---- stubs ----

type stubConversations struct {
	conv    domain.Conversation
	msgs    []domain.Message
	convErr error
	msgsErr error
}

func (s *stubConversations) Conversation(context.Context, string) (domain.Conversation, error) {
	return s.conv, s.convErr
}

func (s *stubConversations) Messages(context.Context, string) ([]domain.Message, error) {
	return s.msgs, s.msgsErr
}

type stubAnalyses struct {
	mu     sync.Mutex
	stored map[string]domain.AnalysisResult
	saves  int
}

func (s *stubAnalyses) seed(result domain.AnalysisResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stored == nil {
		s.stored = make(map[string]domain.AnalysisResult)
	}
	s.stored[result.ConversationID] = result
}

func (s *stubAnalyses) FindByConversation(_ context.Context, id string) (domain.AnalysisResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.stored[id]
	return result, ok, nil
}

func (s *stubAnalyses) Save(_ context.Context, result domain.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stored == nil {
		s.stored = make(map[string]domain.AnalysisResult)
	}
	s.stored[result.ConversationID] = result
	s.saves++
	return nil
}

func (s *stubAnalyses) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type stubCache struct {
	mu      sync.Mutex
	entries map[string]domain.AnalysisResult
}

func (c *stubCache) Get(key string) (domain.AnalysisResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	result, ok := c.entries[key]
	return result, ok
}

func (c *stubCache) Set(key string, result domain.AnalysisResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[string]domain.AnalysisResult)
	}
	c.entries[key] = result
}

type stubProvider struct {
	mu       sync.Mutex
	calls    int
	response string
	err      error
	delay    time.Duration
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Generate(context.Context, string) (string, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	return p.response, p.err
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type stubLimiter struct {
	mu       sync.Mutex
	allow    bool
	success  bool
	exceeded bool
}

func (l *stubLimiter) Acquire(time.Duration) bool { return l.allow }
func (l *stubLimiter) Release()                   {}

func (l *stubLimiter) ReportSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.success = true
}

func (l *stubLimiter) ReportRateLimitExceeded() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exceeded = true
}

func (l *stubLimiter) successReported() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.success
}

func (l *stubLimiter) exceededReported() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exceeded
}

type stubModeration struct {
	result domain.ModerationResult
}

func (m stubModeration) Check(string) domain.ModerationResult { return m.result }
