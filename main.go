// go_catalog: YouTube channel catalog proxy for the radio site widget.
//
// Serves numbered, reorderable, cached pages of one channel's videos over
// /api/youtube, a credential-free feed over /api/videos-rss, and the same
// catalog as MCP tools on /mcp. Falls back to the public feed when the
// Data API quota runs out.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-mcpserver"
	stealth "github.com/anatolykoptev/go-stealth"
	"github.com/anatolykoptev/go-stealth/proxypool"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_catalog/internal/catalogserver"
	"github.com/anatolykoptev/go_catalog/internal/engine"
	"github.com/anatolykoptev/go_catalog/internal/engine/catalog"
	"github.com/anatolykoptev/go_catalog/internal/engine/sources"
)

var (
	version = "dev"
	port    = env.Str("PORT", "8892")
)

func main() {
	logger := newLogger(env.Str("LOG_LEVEL", "info"))
	slog.SetDefault(logger)
	initEngine()
	if err := run(logger); err != nil {
		slog.Error("go_catalog failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	c := engine.Cfg
	ctx := context.Background()

	api, err := sources.NewDataAPI(ctx, sources.DataAPIConfig{
		APIKey:      c.YouTubeAPIKey,
		FallbackKey: c.YouTubeAPIKeyFallback,
		HTTPClient:  c.HTTPClient,
		RPS:         c.UpstreamRPS,
	})
	if err != nil {
		return fmt.Errorf("set YOUTUBE_API_KEY: %w", err)
	}

	cache := engine.NewCache(c.CacheTTL,
		engine.WithRedis(env.Str("REDIS_URL", "")),
		engine.WithMaxEntries(c.CacheMaxEntries),
	)

	store, err := catalog.OpenChainStore(ctx, env.Str("CURSOR_DB", ""))
	if err != nil {
		cache.Close()
		return fmt.Errorf("cursor store: %w", err)
	}

	svc := catalog.NewService(api, sources.NewFeed(), sources.NewHandlePage(), cache, store, catalog.OptionsFromConfig(c))

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_catalog",
		Version: version,
	}, nil)
	catalogserver.RegisterTools(server, svc, engine.QueryDefaults)

	slog.Info("starting go_catalog",
		slog.String("port", port),
		slog.String("version", version),
		slog.String("default_channel", c.DefaultChannel),
	)
	return mcpserver.Run(server, mcpserver.Config{
		Name:        "go_catalog",
		Version:     version,
		Port:        port,
		Logger:      logger,
		Metrics:     engine.FormatMetrics,
		CORSOrigins: c.CORSOrigins,
		Routes:      catalogserver.NewHandler(svc, engine.QueryDefaults).Routes,
		OnShutdown: func() {
			cache.Close()
			if err := store.Close(); err != nil {
				slog.Warn("cursor store close failed", slog.Any("error", err))
			}
		},
	})
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func initEngine() {
	timeout := env.Duration("UPSTREAM_TIMEOUT", 15*time.Second)
	c := engine.Config{
		YouTubeAPIKey:         env.Str("YOUTUBE_API_KEY", ""),
		YouTubeAPIKeyFallback: env.Str("YOUTUBE_API_KEY_FALLBACK", ""),
		DefaultChannel:        env.Str("DEFAULT_CHANNEL", engine.DefaultChannelRef),
		CacheTTL:              env.Duration("CACHE_TTL", engine.DefaultCacheTTL),
		FallbackCacheTTL:      env.Duration("FALLBACK_CACHE_TTL", engine.DefaultFallbackCacheTTL),
		CacheMaxEntries:       env.Int("CACHE_MAX_ENTRIES", 0),
		PageSizeDefault:       env.Int("PAGE_SIZE_DEFAULT", engine.DefaultPageSize),
		PageSizeMax:           env.Int("PAGE_SIZE_MAX", engine.DefaultPageSizeMax),
		OldestFirstCap:        env.Int("OLDEST_FIRST_CAP", engine.DefaultOldestFirstCap),
		PlaylistsMax:          env.Int("PLAYLISTS_MAX", engine.DefaultPlaylistsMax),
		FeedEntryLimit:        env.Int("FEED_ENTRY_LIMIT", engine.DefaultFeedEntryLimit),
		UpstreamRPS:           env.Float("UPSTREAM_RPS", 0),
		CORSOrigins:           env.List("CORS_ORIGIN", "*"),
		HTTPClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		},
	}

	opts := []stealth.ClientOption{stealth.WithTimeout(15)}
	if apiKey := env.Str("WEBSHARE_API_KEY", ""); apiKey != "" {
		pool, err := proxypool.NewWebshare(apiKey)
		if err != nil {
			slog.Warn("proxy pool init failed, running without proxy", slog.Any("error", err))
		} else {
			opts = append(opts, stealth.WithProxyPool(pool))
			slog.Info("proxy pool initialized", slog.Int("proxies", pool.Len()))
		}
	}

	bc, err := stealth.NewClient(opts...)
	if err != nil {
		slog.Warn("stealth client init failed, public pages use the plain client", slog.Any("error", err))
	} else {
		c.BrowserClient = bc
		slog.Info("stealth browser client initialized")
	}

	engine.Init(c)
}
