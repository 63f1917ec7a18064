// Package cache provides the content-addressed cache layer sitting in front
// of the filing source and the market-data source. Values are opaque bytes so
// document content round-trips exactly. A backend outage degrades the
// pipeline to always-fetch: Get reports absent and Set becomes a no-op with
// a surfaced warning, never an error to the caller.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Store is the cache contract. Absence on miss and absence on expiry are
// indistinguishable to the caller.
type Store interface {
	// Get returns the cached value for key, or ok=false when absent.
	Get(ctx context.Context, key string) (value []byte, ok bool)

	// Set stores value under key for at most ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)

	// Invalidate removes key from the store.
	Invalidate(ctx context.Context, key string)
}

// Key derives a stable cache key from a source name and request parameters.
// Parameters are canonicalised (sorted by name) before hashing so logically
// identical requests share an entry.
func Key(source string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(source)
	for _, name := range names {
		b.WriteByte(0)
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(params[name])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return source + ":" + hex.EncodeToString(sum[:])
}

// ContentHash returns the content-address of a document body.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
