package engine

import (
	"net/http"
	"time"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	YouTubeAPIKey         string
	YouTubeAPIKeyFallback string
	DefaultChannel        string
	CacheTTL              time.Duration
	FallbackCacheTTL      time.Duration
	CacheMaxEntries       int
	PageSizeDefault       int
	PageSizeMax           int
	OldestFirstCap        int // materialization cap for date_asc browsing
	PlaylistsMax          int
	FeedEntryLimit        int
	UpstreamRPS           float64 // 0 = unlimited
	CORSOrigins           []string // ["*"] = any origin
	HTTPClient            *http.Client
	BrowserClient         *BrowserClient // nil = handle pages and feeds use HTTPClient
}

// Defaults for zero-valued Config fields.
const (
	DefaultCacheTTL         = 5 * time.Minute
	DefaultFallbackCacheTTL = time.Minute
	DefaultPageSize         = 12
	DefaultPageSizeMax      = 50
	DefaultOldestFirstCap   = 500
	DefaultPlaylistsMax     = 50
	DefaultFeedEntryLimit   = 15
	DefaultChannelRef       = "@radioefectopositivo"
)

var cfg Config

// Cfg exposes the engine configuration for sub-packages (catalog, sources).
// Always points to the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration, filling defaults.
func Init(c Config) {
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.FallbackCacheTTL <= 0 {
		c.FallbackCacheTTL = DefaultFallbackCacheTTL
	}
	if c.PageSizeMax <= 0 {
		c.PageSizeMax = DefaultPageSizeMax
	}
	if c.PageSizeDefault <= 0 || c.PageSizeDefault > c.PageSizeMax {
		c.PageSizeDefault = min(DefaultPageSize, c.PageSizeMax)
	}
	if c.OldestFirstCap <= 0 {
		c.OldestFirstCap = DefaultOldestFirstCap
	}
	if c.PlaylistsMax <= 0 {
		c.PlaylistsMax = DefaultPlaylistsMax
	}
	if c.FeedEntryLimit <= 0 {
		c.FeedEntryLimit = DefaultFeedEntryLimit
	}
	if c.DefaultChannel == "" {
		c.DefaultChannel = DefaultChannelRef
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	cfg = c
	Cfg = &cfg
}

// QueryDefaults derives request parsing defaults from the current config.
func QueryDefaults() Defaults {
	return Defaults{
		Channel:     cfg.DefaultChannel,
		PageSize:    cfg.PageSizeDefault,
		PageSizeMax: cfg.PageSizeMax,
	}
}
