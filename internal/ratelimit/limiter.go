// Package ratelimit bounds outbound request rate to each external source
// independently. Acquisition blocks until a slot is free; cancellation is
// the caller's responsibility via context.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SourceConfig is the per-source rate budget: at most Requests acquisitions
// may complete within any rolling Window.
type SourceConfig struct {
	Requests int
	Window   time.Duration
}

// Limiter hands out request slots per source key using token buckets.
// Safe for concurrent acquisition from multiple goroutines.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	configs  map[string]SourceConfig
	fallback SourceConfig
	logger   *slog.Logger

	// waitObserver, when set, receives the time spent blocked per acquire.
	waitObserver func(source string, waited time.Duration)
}

// New creates a limiter with the given per-source budgets. Sources without
// an explicit budget fall back to fallback.
func New(configs map[string]SourceConfig, fallback SourceConfig, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	if fallback.Requests <= 0 || fallback.Window <= 0 {
		fallback = SourceConfig{Requests: 1, Window: time.Second}
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		configs:  configs,
		fallback: fallback,
		logger:   logger,
	}
}

// SetWaitObserver registers a callback invoked with the blocked duration of
// each acquisition. Used to feed the wait-time histogram.
func (l *Limiter) SetWaitObserver(fn func(source string, waited time.Duration)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waitObserver = fn
}

// Acquire blocks until a request slot is available for the source, or the
// context is cancelled. It never fails for rate reasons; the only error is
// the context's.
func (l *Limiter) Acquire(ctx context.Context, source string) error {
	lim := l.limiterFor(source)

	start := time.Now()
	if err := lim.Wait(ctx); err != nil {
		return err
	}
	waited := time.Since(start)

	if waited > 100*time.Millisecond {
		l.logger.DebugContext(ctx, "rate_limit_waited",
			slog.String("source", source),
			slog.Duration("waited", waited))
	}

	l.mu.Lock()
	obs := l.waitObserver
	l.mu.Unlock()
	if obs != nil {
		obs(source, waited)
	}
	return nil
}

func (l *Limiter) limiterFor(source string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limiters[source]; ok {
		return lim
	}

	cfg, ok := l.configs[source]
	if !ok {
		cfg = l.fallback
	}
	if cfg.Requests <= 0 || cfg.Window <= 0 {
		cfg = l.fallback
	}

	// Burst equals the window budget so short bursts are allowed while the
	// sustained rate never exceeds Requests per Window.
	lim := rate.NewLimiter(rate.Limit(float64(cfg.Requests)/cfg.Window.Seconds()), cfg.Requests)
	l.limiters[source] = lim
	return lim
}
