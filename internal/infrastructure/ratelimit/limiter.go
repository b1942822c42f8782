// Package ratelimit provides the shared admission-control primitive that
// protects the external LLM endpoint. A single Limiter instance is shared by
// all callers for the process lifetime.
package ratelimit

import (
	"sync"
	"time"

	"github.com/taskora/taskora-ai/internal/domain"
	"github.com/taskora/taskora-ai/internal/ports"
)

const (
	defaultRequestsPerMinute  = 10
	defaultMaxConcurrent      = 5
	defaultMinDelayMS         = 1000
	defaultBackoffBaseMS      = 30000
	defaultMaxBackoffExponent = 5
)

// Limiter layers three mechanisms on a counting semaphore:
//
//   - a background ticker replenishes one permit per tick, bounding sustained
//     throughput to requestsPerMinute while allowing bursts up to the
//     semaphore capacity
//   - exponential backoff after reported rejections makes Acquire fail fast
//     while the backoff window is open
//   - a minimum spacing floor between successful acquisitions
//
// The mutex is held across the backoff check, the spacing sleep, and the
// permit wait so two callers cannot both pass the spacing check and then
// race the sleep.
type Limiter struct {
	mu  sync.Mutex
	sem chan struct{}

	requestsPerMinute int
	minDelay          time.Duration
	backoffBase       time.Duration
	maxExponent       int

	consecutiveFailures int
	lastCall            time.Time
	lastFailure         time.Time

	ticker   *time.Ticker
	done     chan struct{}
	stopOnce sync.Once
	log      ports.Logger
}

// New builds a Limiter from settings, hydrating zero values with defaults,
// and starts the replenishment worker. Callers must Stop it at shutdown.
func New(cfg domain.RateLimitSettings, log ports.Logger) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = defaultRequestsPerMinute
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.MinDelayMS <= 0 {
		cfg.MinDelayMS = defaultMinDelayMS
	}
	if cfg.BackoffBaseMS <= 0 {
		cfg.BackoffBaseMS = defaultBackoffBaseMS
	}
	if cfg.MaxBackoffExponent <= 0 {
		cfg.MaxBackoffExponent = defaultMaxBackoffExponent
	}

	sem := make(chan struct{}, cfg.MaxConcurrent)
	for i := 0; i < cfg.MaxConcurrent; i++ {
		sem <- struct{}{}
	}

	l := &Limiter{
		sem:               sem,
		requestsPerMinute: cfg.RequestsPerMinute,
		minDelay:          time.Duration(cfg.MinDelayMS) * time.Millisecond,
		backoffBase:       time.Duration(cfg.BackoffBaseMS) * time.Millisecond,
		maxExponent:       cfg.MaxBackoffExponent,
		ticker:            time.NewTicker(time.Minute / time.Duration(cfg.RequestsPerMinute)),
		done:              make(chan struct{}),
		log:               log,
	}
	go l.replenish()
	return l
}

// Acquire obtains a permit for one outbound call. It returns false while the
// backoff window is open, or when no permit arrives within timeout. It may
// block for up to the spacing floor before attempting the semaphore.
func (l *Limiter) Acquire(timeout time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if remaining := l.backoffRemaining(now); remaining > 0 {
		l.logDebug("acquire rejected by backoff", map[string]interface{}{
			"remaining": remaining.String(),
			"failures":  l.consecutiveFailures,
		})
		return false
	}

	if !l.lastCall.IsZero() {
		if elapsed := now.Sub(l.lastCall); elapsed < l.minDelay {
			time.Sleep(l.minDelay - elapsed)
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-l.sem:
		l.lastCall = time.Now()
		return true
	case <-timer.C:
		return false
	}
}

// Release returns a permit outside the normal replenishment path. Used when
// a request is abandoned before consuming its quota.
func (l *Limiter) Release() {
	select {
	case l.sem <- struct{}{}:
	default:
	}
}

// ReportSuccess resets the failure streak. Call it after every call the
// backend accepted, independent of whether the downstream response was
// itself an error.
func (l *Limiter) ReportSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.consecutiveFailures = 0
}

// ReportRateLimitExceeded records a 429-class rejection and opens (or
// widens) the backoff window.
func (l *Limiter) ReportRateLimitExceeded() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.consecutiveFailures++
	l.lastFailure = time.Now()
	l.logDebug("rate limit rejection reported", map[string]interface{}{
		"failures": l.consecutiveFailures,
		"window":   l.backoffWindow().String(),
	})
}

// Stop cancels the replenishment worker.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		l.ticker.Stop()
		close(l.done)
	})
}

func (l *Limiter) replenish() {
	for {
		select {
		case <-l.done:
			return
		case <-l.ticker.C:
			// Replenish only while fewer than requestsPerMinute permits are
			// available. The semaphore capacity may exceed the per-minute
			// rate to allow bursts; refilling past the rate would let an
			// idle-then-burst pattern exceed it over a rolling minute.
			if len(l.sem) >= l.requestsPerMinute {
				continue
			}
			select {
			case l.sem <- struct{}{}:
			default:
				// semaphore already at capacity
			}
		}
	}
}

// backoffWindow returns the current window width. Callers hold l.mu.
func (l *Limiter) backoffWindow() time.Duration {
	if l.consecutiveFailures == 0 {
		return 0
	}
	exp := l.consecutiveFailures - 1
	if exp > l.maxExponent {
		exp = l.maxExponent
	}
	return l.backoffBase << uint(exp)
}

// backoffRemaining returns how long the backoff window stays open from now.
// Callers hold l.mu.
func (l *Limiter) backoffRemaining(now time.Time) time.Duration {
	window := l.backoffWindow()
	if window == 0 {
		return 0
	}
	remaining := window - now.Sub(l.lastFailure)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (l *Limiter) logDebug(msg string, fields map[string]interface{}) {
	if l.log != nil {
		l.log.Debug(msg, fields)
	}
}

var _ ports.RateLimiter = (*Limiter)(nil)
