package catalog

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/anatolykoptev/go_catalog/internal/engine"
	"github.com/anatolykoptev/go_catalog/internal/toolutil"
)

const (
	// DefaultFeedCacheTTL is how long standalone feed responses are cached.
	DefaultFeedCacheTTL = 15 * time.Minute
	// DefaultEmbedScanPages bounds a channel embeddability scan to 250 videos.
	DefaultEmbedScanPages = 5

	embedScanPageSize = 50
)

// Options tune a Service. Zero values take the engine defaults.
type Options struct {
	CacheTTL       time.Duration
	FallbackTTL    time.Duration
	FeedTTL        time.Duration
	OldestFirstCap int
	PlaylistsMax   int
	FeedEntryLimit int
	PageSizeMax    int // upper bound for feed limits
	EmbedScanPages int
}

// OptionsFromConfig derives Service options from the engine configuration.
func OptionsFromConfig(c *engine.Config) Options {
	return Options{
		CacheTTL:       c.CacheTTL,
		FallbackTTL:    c.FallbackCacheTTL,
		OldestFirstCap: c.OldestFirstCap,
		PlaylistsMax:   c.PlaylistsMax,
		FeedEntryLimit: c.FeedEntryLimit,
		PageSizeMax:    c.PageSizeMax,
	}
}

// Service composes resolution, caching, pagination, live detection and the
// feed fallback behind one request handler. It holds no per-request state
// beyond the shared caches.
type Service struct {
	up       Upstream
	feed     FeedSource
	handles  HandleResolver
	cache    *engine.Cache
	resolver *Resolver
	pager    *Pager
	live     *LiveDetector
	fallback *Fallback
	opts     Options

	uploads sync.Map // channel id → uploads playlist id
}

// NewService wires a Service. feed and handles may be nil, which disables
// the degraded paths that need them.
func NewService(up Upstream, feed FeedSource, handles HandleResolver, cache *engine.Cache, store ChainStore, opts Options) *Service {
	if opts.FallbackTTL <= 0 {
		opts.FallbackTTL = engine.DefaultFallbackCacheTTL
	}
	if opts.FeedTTL <= 0 {
		opts.FeedTTL = DefaultFeedCacheTTL
	}
	if opts.PlaylistsMax <= 0 {
		opts.PlaylistsMax = engine.DefaultPlaylistsMax
	}
	if opts.FeedEntryLimit <= 0 {
		opts.FeedEntryLimit = engine.DefaultFeedEntryLimit
	}
	if opts.PageSizeMax <= 0 {
		opts.PageSizeMax = engine.DefaultPageSizeMax
	}
	if opts.EmbedScanPages <= 0 {
		opts.EmbedScanPages = DefaultEmbedScanPages
	}
	s := &Service{
		up:       up,
		feed:     feed,
		handles:  handles,
		cache:    cache,
		resolver: NewResolver(up, handles),
		pager:    NewPager(NewCursorIndex(store), opts.OldestFirstCap),
		live:     NewLiveDetector(up),
		opts:     opts,
	}
	if feed != nil {
		s.fallback = NewFallback(feed, opts.FeedEntryLimit)
	}
	return s
}

// Handle answers q. hit reports whether the response came from the cache,
// in which case it is returned exactly as stored.
func (s *Service) Handle(ctx context.Context, q engine.Query) (*engine.Response, bool, error) {
	engine.IncrRequests()
	key := q.CacheKey()
	if cached, ok := toolutil.CacheLoadJSON[engine.Response](ctx, s.cache, key); ok {
		slog.Debug("catalog cache hit", slog.String("action", string(q.Action)), slog.String("channel", q.Channel))
		return &cached, true, nil
	}

	var resp *engine.Response
	err := engine.TrackOperation(ctx, "catalog:"+string(q.Action), func(ctx context.Context) error {
		var err error
		resp, err = s.dispatch(ctx, q)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	var ttl time.Duration
	if resp.Source == engine.SourceFeed {
		ttl = s.opts.FallbackTTL
	}
	toolutil.CacheStoreJSON(ctx, s.cache, key, resp, ttl)
	return resp, false, nil
}

func (s *Service) dispatch(ctx context.Context, q engine.Query) (*engine.Response, error) {
	if q.Action == engine.ActionEmbeddable && q.VideoID != "" {
		st, err := s.up.VideoStatus(ctx, q.VideoID)
		if err != nil {
			return nil, err
		}
		return &engine.Response{Action: q.Action, Embeddable: st}, nil
	}

	channelID, err := s.resolver.Resolve(ctx, q.Channel)
	if err != nil {
		// A playlist feed needs no channel id.
		if q.Action == engine.ActionPlaylistVideos && s.fallback.Applies(q, err) {
			return s.fallback.Serve(ctx, q, "", err)
		}
		return nil, err
	}

	resp, err := s.answer(ctx, q, channelID)
	if err != nil && s.fallback.Applies(q, err) {
		return s.fallback.Serve(ctx, q, channelID, err)
	}
	return resp, err
}

func (s *Service) answer(ctx context.Context, q engine.Query, channelID string) (*engine.Response, error) {
	base := &engine.Response{Action: q.Action, ChannelID: channelID}
	switch q.Action {
	case engine.ActionPlaylists:
		lists, err := s.up.Playlists(ctx, channelID, s.opts.PlaylistsMax)
		if err != nil {
			return nil, err
		}
		if lists == nil {
			lists = []engine.Playlist{}
		}
		base.Playlists = lists
		return base, nil

	case engine.ActionLive:
		st, err := s.live.Detect(ctx, channelID)
		if err != nil {
			return nil, err
		}
		base.Live = st
		return base, nil

	case engine.ActionEmbeddable:
		return s.scanEmbeddable(ctx, base)

	case engine.ActionSearch:
		items, err := s.up.SearchVideos(ctx, channelID, q.Search, q.PageToken, q.PageSize)
		if err != nil {
			return nil, err
		}
		return sequential(base, items), nil

	case engine.ActionUploads, engine.ActionPlaylistVideos:
		listingID := q.PlaylistID
		if q.Action == engine.ActionUploads {
			id, err := s.uploadsPlaylist(ctx, channelID)
			if err != nil {
				return nil, err
			}
			listingID = id
		}
		return s.listing(ctx, q, base, listingID)
	}
	return nil, engine.ErrInvalidRequest("unknown action: " + string(q.Action))
}

func (s *Service) listing(ctx context.Context, q engine.Query, base *engine.Response, listingID string) (*engine.Response, error) {
	fetch := func(ctx context.Context, cursor string, pageSize int) (*engine.ItemPage, error) {
		return s.up.PlaylistItems(ctx, listingID, cursor, pageSize)
	}
	base.Source = engine.SourceAPI
	base.Order = q.Order

	if q.PageToken != "" {
		items, err := fetch(ctx, q.PageToken, q.PageSize)
		if err != nil {
			return nil, err
		}
		return sequential(base, items), nil
	}

	var (
		page *PageResult
		err  error
	)
	if q.Order == engine.OrderOldest {
		page, err = s.pager.Oldest(ctx, q.Page, q.PageSize, fetch)
	} else {
		page, err = s.pager.Newest(ctx, listingID, q.Page, q.PageSize, fetch)
	}
	if err != nil {
		return nil, err
	}
	base.Videos = page.Videos
	base.Page = page.Page
	base.PageCount = page.PageCount
	base.NextPage = page.NextPage
	return base, nil
}

// scanEmbeddable reports embeddability of the channel's latest videos, at
// most EmbedScanPages search pages of them.
func (s *Service) scanEmbeddable(ctx context.Context, base *engine.Response) (*engine.Response, error) {
	var ids []string
	cursor := ""
	for range s.opts.EmbedScanPages {
		items, err := s.up.SearchVideos(ctx, base.ChannelID, "", cursor, embedScanPageSize)
		if err != nil {
			return nil, err
		}
		for _, v := range items.Videos {
			ids = append(ids, v.ID)
		}
		if items.NextCursor == "" {
			break
		}
		cursor = items.NextCursor
	}

	videos := []engine.Video{}
	if len(ids) > 0 {
		sts, err := s.up.VideoStatuses(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, st := range sts {
			videos = append(videos, engine.Video{ID: st.ID, Title: st.Title, Embeddable: &st.Embeddable})
		}
	}
	total := len(videos)
	base.Videos = videos
	base.Total = &total
	return base, nil
}

func sequential(base *engine.Response, items *engine.ItemPage) *engine.Response {
	base.Source = engine.SourceAPI
	if base.Order == "" {
		base.Order = engine.OrderNewest
	}
	base.Videos = items.Videos
	base.PageToken = items.NextCursor
	base.PrevPageToken = items.PrevCursor
	return base
}

// uploadsPlaylist memoizes the channel's uploads playlist id, which never changes.
func (s *Service) uploadsPlaylist(ctx context.Context, channelID string) (string, error) {
	if id, ok := s.uploads.Load(channelID); ok {
		return id.(string), nil
	}
	id, err := s.up.UploadsPlaylist(ctx, channelID)
	if err != nil {
		return "", err
	}
	s.uploads.Store(channelID, id)
	return id, nil
}

// Feed returns up to limit of the channel's latest uploads from the
// syndication feed, resolving handles from the public channel page.
func (s *Service) Feed(ctx context.Context, channelRef string, limit int) (*engine.FeedResponse, bool, error) {
	if s.feed == nil {
		return nil, false, engine.ErrUpstream("feed source not configured", nil)
	}
	limit = toolutil.ClampInt(limit, min(engine.DefaultPageSize, s.opts.PageSizeMax), 1, s.opts.PageSizeMax)
	ref := engine.HandleName(channelRef)
	if ref == "" {
		return nil, false, engine.ErrInvalidRequest("channelId is empty")
	}
	key := engine.CacheKey("feed", ref, strconv.Itoa(limit))
	if cached, ok := toolutil.CacheLoadJSON[engine.FeedResponse](ctx, s.cache, key); ok {
		return &cached, true, nil
	}

	channelID := ref
	if !engine.IsChannelID(ref) {
		if s.handles == nil {
			return nil, false, engine.ErrChannelNotFound(channelRef)
		}
		id, err := s.handles.ResolveHandle(ctx, "@"+ref)
		if err != nil {
			if engine.IsKind(err, engine.KindChannelNotFound) {
				return nil, false, err
			}
			return nil, false, engine.ErrUpstream("resolve handle @"+ref, err)
		}
		channelID = id
	}

	videos, err := s.feed.ChannelFeed(ctx, channelID, limit)
	if err != nil {
		return nil, false, engine.ErrUpstream("channel feed", err)
	}
	if videos == nil {
		videos = []engine.Video{}
	}
	resp := &engine.FeedResponse{ChannelID: channelID, Videos: videos}
	toolutil.CacheStoreJSON(ctx, s.cache, key, resp, s.opts.FeedTTL)
	return resp, false, nil
}
