package cache

import (
	"context"
	"time"

	"github.com/ZackGrogan/SDEA/internal/infrastructure"
)

// InstrumentedStore wraps a Store and records hit/miss counters under a
// namespace label.
type InstrumentedStore struct {
	inner     Store
	namespace string
	metrics   *infrastructure.Metrics
}

// Instrument wraps store with hit/miss accounting. A nil metrics set
// returns the store unchanged.
func Instrument(store Store, namespace string, metrics *infrastructure.Metrics) Store {
	if metrics == nil {
		return store
	}
	return &InstrumentedStore{inner: store, namespace: namespace, metrics: metrics}
}

func (s *InstrumentedStore) Get(ctx context.Context, key string) ([]byte, bool) {
	value, ok := s.inner.Get(ctx, key)
	if ok {
		s.metrics.CacheHits.WithLabelValues(s.namespace).Inc()
	} else {
		s.metrics.CacheMisses.WithLabelValues(s.namespace).Inc()
	}
	return value, ok
}

func (s *InstrumentedStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	s.inner.Set(ctx, key, value, ttl)
}

func (s *InstrumentedStore) Invalidate(ctx context.Context, key string) {
	s.inner.Invalidate(ctx, key)
}
