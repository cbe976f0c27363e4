// Package widget is the view-model of the catalog browser widget. It turns
// navigation events into catalog requests and only ever renders the answer
// to the latest navigation, whatever order the network completes them in.
package widget

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"sync"

	"github.com/anatolykoptev/go_catalog/internal/engine"
)

// Tab is the widget section being browsed.
type Tab string

const (
	TabUploads   Tab = "uploads"
	TabPlaylists Tab = "playlists"
	TabPlaylist  Tab = "playlist"
	TabSearch    Tab = "search"
)

// ErrSuperseded marks a navigation whose result was discarded because a newer
// one was issued. It never reaches the renderer.
var ErrSuperseded = errors.New("navigation superseded")

// Fetcher issues catalog requests. HTTPFetcher is the network implementation.
type Fetcher interface {
	Catalog(ctx context.Context, v url.Values) (*engine.Response, error)
	Feed(ctx context.Context, channel string, limit int) (*engine.FeedResponse, error)
}

// ViewState is everything the renderer needs.
type ViewState struct {
	Ticket     uint64
	Tab        Tab
	PlaylistID string
	Search     string
	Order      engine.Order

	Page      int
	PageCount int
	NextPage  *int
	PageToken string // cursor of the page being shown, "" for the first
	NextToken string
	PrevToken string
	Source    string

	Videos    []engine.Video
	Playlists []engine.Playlist
	Loading   bool
	Err       error

	Live        *engine.LiveStatus
	LiveChecked bool
}

// HasNext reports whether the "next page" control is enabled.
// Feed-sourced pages are always single pages.
func (s ViewState) HasNext() bool {
	return s.Source != engine.SourceFeed && (s.NextPage != nil || s.NextToken != "")
}

// HasPrev reports whether the "previous page" control is enabled.
func (s ViewState) HasPrev() bool {
	return s.Source != engine.SourceFeed && (s.Page > 1 || s.PrevToken != "")
}

// ShowLive reports whether the live affordance is visible.
func (s ViewState) ShowLive() bool { return s.Live != nil && s.Live.ID != "" }

// RenderFunc receives a copy of the state after every change. It runs while
// the coordinator holds its lock, so it must not call back into it.
type RenderFunc func(ViewState)

// Options configures a Coordinator.
type Options struct {
	Channel  string // defaults to engine.DefaultChannelRef
	PageSize int    // defaults to engine.DefaultPageSize
	Render   RenderFunc
}

// Coordinator serializes widget navigation with tickets. Each navigation
// cancels the previous request, clears the grid and issues a new request;
// a response is rendered only if its ticket is still the current one.
type Coordinator struct {
	fetcher  Fetcher
	render   RenderFunc
	channel  string
	pageSize int

	mu     sync.Mutex
	ticket uint64
	cancel context.CancelFunc
	state  ViewState

	wg sync.WaitGroup

	liveOnce sync.Once
	liveErr  error
}

// NewCoordinator returns a coordinator showing the first uploads page once
// navigated to. Nothing is fetched until the first navigation.
func NewCoordinator(f Fetcher, opts Options) *Coordinator {
	if opts.Channel == "" {
		opts.Channel = engine.DefaultChannelRef
	}
	if opts.PageSize <= 0 {
		opts.PageSize = engine.DefaultPageSize
	}
	if opts.Render == nil {
		opts.Render = func(ViewState) {}
	}
	return &Coordinator{
		fetcher:  f,
		render:   opts.Render,
		channel:  opts.Channel,
		pageSize: opts.PageSize,
		state:    ViewState{Tab: TabUploads, Order: engine.OrderNewest, Page: 1},
	}
}

// SwitchTab shows the first page of tab. Use OpenPlaylist and Search for
// the tabs that need an argument.
func (c *Coordinator) SwitchTab(ctx context.Context, tab Tab) uint64 {
	return c.navigate(ctx, func(s *ViewState) bool {
		s.Tab = tab
		s.PlaylistID = ""
		s.Search = ""
		firstPage(s)
		return true
	})
}

// OpenPlaylist shows the first page of a playlist.
func (c *Coordinator) OpenPlaylist(ctx context.Context, playlistID string) uint64 {
	return c.navigate(ctx, func(s *ViewState) bool {
		s.Tab = TabPlaylist
		s.PlaylistID = playlistID
		s.Search = ""
		firstPage(s)
		return true
	})
}

// Search shows the first page of a free-text search within the channel.
func (c *Coordinator) Search(ctx context.Context, text string) uint64 {
	return c.navigate(ctx, func(s *ViewState) bool {
		s.Tab = TabSearch
		s.Search = text
		s.PlaylistID = ""
		s.Order = engine.OrderNewest
		firstPage(s)
		return true
	})
}

// GoToPage shows numbered page n of the current tab.
func (c *Coordinator) GoToPage(ctx context.Context, n int) uint64 {
	return c.navigate(ctx, func(s *ViewState) bool {
		s.Page = max(n, 1)
		s.PageToken = ""
		return true
	})
}

// NextPageToken follows the next cursor of the page on screen. It reports
// false, issuing nothing, when there is no next cursor.
func (c *Coordinator) NextPageToken(ctx context.Context) (uint64, bool) {
	t := c.navigate(ctx, func(s *ViewState) bool {
		if s.NextToken == "" || s.Source == engine.SourceFeed {
			return false
		}
		s.PageToken = s.NextToken
		return true
	})
	return t, t != 0
}

// PrevPageToken follows the previous cursor of the page on screen.
func (c *Coordinator) PrevPageToken(ctx context.Context) (uint64, bool) {
	t := c.navigate(ctx, func(s *ViewState) bool {
		if s.PrevToken == "" || s.Source == engine.SourceFeed {
			return false
		}
		s.PageToken = s.PrevToken
		return true
	})
	return t, t != 0
}

// SetOrder changes the ordering and returns to the first page.
func (c *Coordinator) SetOrder(ctx context.Context, order engine.Order) uint64 {
	return c.navigate(ctx, func(s *ViewState) bool {
		s.Order = order
		firstPage(s)
		return true
	})
}

func firstPage(s *ViewState) {
	s.Page = 1
	s.PageToken = ""
}

// clearPager drops the paging facts of the page that was on screen. They
// describe content no longer shown and would enable stale controls.
func clearPager(s *ViewState) {
	s.PageCount = 0
	s.NextPage = nil
	s.NextToken = ""
	s.PrevToken = ""
	s.Source = ""
}

// State returns a copy of the current view state.
func (c *Coordinator) State() ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Wait blocks until every issued request has completed, rendered or not.
func (c *Coordinator) Wait() { c.wg.Wait() }

// Close cancels the request in flight, if any.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// navigate applies update and issues the request for the resulting state.
// It returns the new ticket, or 0 when update declined the navigation.
func (c *Coordinator) navigate(ctx context.Context, update func(*ViewState) bool) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.state
	if !update(&next) {
		return 0
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.ticket++
	ticket := c.ticket

	next.Ticket = ticket
	clearPager(&next)
	next.Videos = nil
	next.Playlists = nil
	next.Loading = true
	next.Err = nil
	c.state = next

	reqCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.render(c.snapshot())

	c.wg.Add(1)
	go c.run(reqCtx, ticket, next)
	return ticket
}

func (c *Coordinator) run(ctx context.Context, ticket uint64, req ViewState) {
	defer c.wg.Done()

	resp, err := c.fetcher.Catalog(ctx, c.values(req))
	if err != nil && req.Tab == TabUploads && engine.IsKind(err, engine.KindQuotaExceeded) {
		// Feed calls run to completion once started; the ticket check still applies.
		resp, err = c.feedFallback(context.WithoutCancel(ctx), err)
	}

	if err := c.commit(ticket, resp, err); err != nil {
		if errors.Is(err, ErrSuperseded) {
			slog.Debug("widget: navigation superseded", slog.Uint64("ticket", ticket))
			return
		}
		slog.Debug("widget: navigation failed",
			slog.Uint64("ticket", ticket),
			slog.String("kind", string(engine.KindOf(err))),
			slog.Any("error", err))
	}
}

func (c *Coordinator) feedFallback(ctx context.Context, cause error) (*engine.Response, error) {
	feed, err := c.fetcher.Feed(ctx, c.channel, c.pageSize)
	if err != nil {
		slog.Debug("widget: feed fallback failed", slog.Any("error", err))
		return nil, cause
	}
	return &engine.Response{
		Action:    engine.ActionUploads,
		ChannelID: feed.ChannelID,
		Source:    engine.SourceFeed,
		Order:     engine.OrderNewest,
		Videos:    feed.Videos,
		Page:      1,
		PageCount: 1,
	}, nil
}

// commit renders the outcome of ticket if it is still current.
func (c *Coordinator) commit(ticket uint64, resp *engine.Response, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ticket != c.ticket {
		return ErrSuperseded
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	s := &c.state
	s.Loading = false
	if err != nil {
		s.Err = err
		clearPager(s)
		c.render(c.snapshot())
		return err
	}

	s.Source = resp.Source
	s.Videos = resp.Videos
	s.Playlists = resp.Playlists
	if resp.Page > 0 {
		s.Page = resp.Page
	}
	s.PageCount = resp.PageCount
	s.NextPage = resp.NextPage
	s.NextToken = resp.PageToken
	s.PrevToken = resp.PrevPageToken
	if resp.Order != "" {
		s.Order = resp.Order
	}
	c.render(c.snapshot())
	return nil
}

// values encodes req as catalog endpoint parameters.
func (c *Coordinator) values(req ViewState) url.Values {
	v := url.Values{}
	v.Set("channelId", c.channel)
	switch req.Tab {
	case TabPlaylists:
		v.Set("action", string(engine.ActionPlaylists))
		return v
	case TabPlaylist:
		v.Set("action", string(engine.ActionPlaylistVideos))
		v.Set("playlistId", req.PlaylistID)
	case TabSearch:
		v.Set("action", string(engine.ActionSearch))
		v.Set("q", req.Search)
	default:
		v.Set("action", string(engine.ActionUploads))
	}
	v.Set("pageSize", strconv.Itoa(c.pageSize))
	if req.Tab != TabSearch {
		v.Set("order", string(req.Order))
	}
	switch {
	case req.PageToken != "":
		v.Set("pageToken", req.PageToken)
	case req.Tab != TabSearch:
		v.Set("page", strconv.Itoa(max(req.Page, 1)))
	}
	return v
}

// snapshot copies the state; callers hold mu.
func (c *Coordinator) snapshot() ViewState {
	s := c.state
	s.Videos = append([]engine.Video(nil), c.state.Videos...)
	s.Playlists = append([]engine.Playlist(nil), c.state.Playlists...)
	return s
}
