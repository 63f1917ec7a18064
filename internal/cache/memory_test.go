package cache

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	s := NewMemoryStore(100)
	defer s.Stop()
	ctx := context.Background()

	doc := []byte("<SEC-DOCUMENT>raw filing bytes \x00\x01\xff</SEC-DOCUMENT>")
	s.Set(ctx, "k1", doc, time.Minute)

	got, ok := s.Get(ctx, "k1")
	require.True(t, ok)
	assert.True(t, bytes.Equal(doc, got), "cached content must round-trip byte-identical")
}

func TestMemoryStore_MissAndExpiryIndistinguishable(t *testing.T) {
	s := NewMemoryStore(100)
	defer s.Stop()
	ctx := context.Background()

	_, missOK := s.Get(ctx, "never-set")
	assert.False(t, missOK)

	s.Set(ctx, "short-lived", []byte("v"), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	_, expiredOK := s.Get(ctx, "short-lived")
	assert.False(t, expiredOK, "expired entries must read as absent")
}

func TestMemoryStore_Invalidate(t *testing.T) {
	s := NewMemoryStore(100)
	defer s.Stop()
	ctx := context.Background()

	s.Set(ctx, "k", []byte("v"), time.Minute)
	s.Invalidate(ctx, "k")

	_, ok := s.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryStore_EvictsOldestAtCapacity(t *testing.T) {
	s := NewMemoryStore(2)
	defer s.Stop()
	ctx := context.Background()

	s.Set(ctx, "first", []byte("1"), time.Minute)
	time.Sleep(5 * time.Millisecond)
	s.Set(ctx, "second", []byte("2"), time.Minute)
	time.Sleep(5 * time.Millisecond)
	s.Set(ctx, "third", []byte("3"), time.Minute)

	_, ok := s.Get(ctx, "first")
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = s.Get(ctx, "third")
	assert.True(t, ok)
	assert.Equal(t, 2, s.Len())
}

func TestMemoryStore_OverwriteLastWriterWins(t *testing.T) {
	s := NewMemoryStore(10)
	defer s.Stop()
	ctx := context.Background()

	s.Set(ctx, "k", []byte("old"), time.Minute)
	s.Set(ctx, "k", []byte("new"), time.Minute)

	got, ok := s.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("new"), got)
}

func TestMemoryStore_ZeroTTLIsNoop(t *testing.T) {
	s := NewMemoryStore(10)
	defer s.Stop()
	ctx := context.Background()

	s.Set(ctx, "k", []byte("v"), 0)
	_, ok := s.Get(ctx, "k")
	assert.False(t, ok)
}

func TestKey_StableAndOrderIndependent(t *testing.T) {
	a := Key("edgar", map[string]string{"cik": "320193", "forms": "SC 13D", "from": "0"})
	b := Key("edgar", map[string]string{"from": "0", "forms": "SC 13D", "cik": "320193"})
	assert.Equal(t, a, b, "parameter order must not change the key")

	c := Key("edgar", map[string]string{"cik": "789019", "forms": "SC 13D", "from": "0"})
	assert.NotEqual(t, a, c)

	d := Key("market", map[string]string{"cik": "320193", "forms": "SC 13D", "from": "0"})
	assert.NotEqual(t, a, d, "different sources must not collide")
}

func TestContentHash(t *testing.T) {
	h1 := ContentHash([]byte("document body"))
	h2 := ContentHash([]byte("document body"))
	h3 := ContentHash([]byte("other body"))

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}
