package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	Requests            atomic.Int64
	UpstreamCalls       atomic.Int64
	UpstreamPageFetches atomic.Int64
	UpstreamQuotaErrors atomic.Int64
	ChannelResolutions  atomic.Int64
	ChainExtensions     atomic.Int64
	LiveChecks          atomic.Int64
	FallbackActivations atomic.Int64
	FallbackFailures    atomic.Int64
	CacheHits           atomic.Int64
	CacheMisses         atomic.Int64
}

var metricKeys = []string{
	"requests",
	"upstream_calls", "upstream_page_fetches", "upstream_quota_errors",
	"channel_resolutions", "chain_extensions", "live_checks",
	"fallback_activations", "fallback_failures",
	"cache_hits", "cache_misses",
}

// GetMetrics returns a snapshot of all metrics.
func GetMetrics() map[string]int64 {
	return map[string]int64{
		"requests":              metrics.Requests.Load(),
		"upstream_calls":        metrics.UpstreamCalls.Load(),
		"upstream_page_fetches": metrics.UpstreamPageFetches.Load(),
		"upstream_quota_errors": metrics.UpstreamQuotaErrors.Load(),
		"channel_resolutions":   metrics.ChannelResolutions.Load(),
		"chain_extensions":      metrics.ChainExtensions.Load(),
		"live_checks":           metrics.LiveChecks.Load(),
		"fallback_activations":  metrics.FallbackActivations.Load(),
		"fallback_failures":     metrics.FallbackFailures.Load(),
		"cache_hits":            metrics.CacheHits.Load(),
		"cache_misses":          metrics.CacheMisses.Load(),
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	for _, k := range metricKeys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for catalog/ and sources/ sub-packages.
func IncrRequests()            { metrics.Requests.Add(1) }
func IncrUpstreamCalls()       { metrics.UpstreamCalls.Add(1) }
func IncrUpstreamPageFetches() { metrics.UpstreamPageFetches.Add(1) }
func IncrUpstreamQuotaErrors() { metrics.UpstreamQuotaErrors.Add(1) }
func IncrChannelResolutions()  { metrics.ChannelResolutions.Add(1) }
func IncrChainExtensions()     { metrics.ChainExtensions.Add(1) }
func IncrLiveChecks()          { metrics.LiveChecks.Add(1) }
func IncrFallbackActivations() { metrics.FallbackActivations.Add(1) }
func IncrFallbackFailures()    { metrics.FallbackFailures.Add(1) }

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > 5*time.Second {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
