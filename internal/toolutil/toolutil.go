// Package toolutil provides shared helpers for the catalog HTTP and MCP surfaces.
package toolutil

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/anatolykoptev/go_catalog/internal/engine"
)

// CacheLoadJSON tries to load a cached value of type T from c.
// Returns the decoded value and true on hit; zero value and false on miss or decode error.
func CacheLoadJSON[T any](ctx context.Context, c *engine.Cache, key string) (T, bool) {
	var zero T
	cached, ok := c.Get(ctx, key)
	if !ok {
		return zero, false
	}
	var out T
	if err := json.Unmarshal(cached, &out); err != nil {
		slog.Debug("cache: undecodable entry", slog.String("key", key), slog.Any("error", err))
		return zero, false
	}
	return out, true
}

// CacheStoreJSON marshals v and stores it in c for ttl (0 = cache default).
func CacheStoreJSON[T any](ctx context.Context, c *engine.Cache, key string, v T, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("cache: marshal failed", slog.String("key", key), slog.Any("error", err))
		return
	}
	c.Set(ctx, key, data, ttl)
}

// ClampInt bounds n to [lo, hi], substituting def when n is not positive.
func ClampInt(n, def, lo, hi int) int {
	if n <= 0 {
		n = def
	}
	return max(lo, min(n, hi))
}
