package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_WithinBudgetDoesNotBlock(t *testing.T) {
	l := New(map[string]SourceConfig{
		"edgar": {Requests: 5, Window: time.Second},
	}, SourceConfig{}, slog.Default())

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(context.Background(), "edgar"))
	}
	assert.Less(t, time.Since(start), 200*time.Millisecond,
		"first window's budget should be available immediately")
}

func TestAcquire_ExceedingBudgetDelays(t *testing.T) {
	window := 200 * time.Millisecond
	limit := 4
	l := New(map[string]SourceConfig{
		"edgar": {Requests: limit, Window: window},
	}, SourceConfig{}, slog.Default())

	// 3x the budget must take at least ceil(M/limit)-1 = 2 windows.
	m := 3 * limit
	start := time.Now()
	for i := 0; i < m; i++ {
		require.NoError(t, l.Acquire(context.Background(), "edgar"))
	}
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 2*window,
		"acquisitions beyond the budget must wait for later windows")
}

func TestAcquire_SourcesAreIndependent(t *testing.T) {
	window := 500 * time.Millisecond
	l := New(map[string]SourceConfig{
		"slow": {Requests: 1, Window: window},
		"fast": {Requests: 100, Window: window},
	}, SourceConfig{}, slog.Default())

	// Exhaust the slow source's budget.
	require.NoError(t, l.Acquire(context.Background(), "slow"))

	// The fast source must remain unaffected.
	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Acquire(context.Background(), "fast"))
	}
	assert.Less(t, time.Since(start), window)
}

func TestAcquire_ContextCancellation(t *testing.T) {
	l := New(map[string]SourceConfig{
		"edgar": {Requests: 1, Window: time.Hour},
	}, SourceConfig{}, slog.Default())

	require.NoError(t, l.Acquire(context.Background(), "edgar"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx, "edgar")
	assert.Error(t, err, "blocked acquire must return when the context ends")
}

func TestAcquire_ConcurrentCallersRespectBudget(t *testing.T) {
	window := 200 * time.Millisecond
	limit := 5
	l := New(map[string]SourceConfig{
		"edgar": {Requests: limit, Window: window},
	}, SourceConfig{}, slog.Default())

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 2*limit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Acquire(context.Background(), "edgar"))
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, time.Since(start), window,
		"second window's worth of acquisitions must span at least one window")
}

func TestAcquire_UnknownSourceUsesFallback(t *testing.T) {
	l := New(nil, SourceConfig{Requests: 2, Window: 100 * time.Millisecond}, nil)

	start := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Acquire(context.Background(), "anything"))
	}
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestSetWaitObserver(t *testing.T) {
	l := New(map[string]SourceConfig{
		"edgar": {Requests: 1, Window: 50 * time.Millisecond},
	}, SourceConfig{}, slog.Default())

	var mu sync.Mutex
	calls := 0
	l.SetWaitObserver(func(source string, waited time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		assert.Equal(t, "edgar", source)
	})

	require.NoError(t, l.Acquire(context.Background(), "edgar"))
	require.NoError(t, l.Acquire(context.Background(), "edgar"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
}
