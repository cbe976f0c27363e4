package catalog

import (
	"context"
	"log/slog"
	"strings"

	"github.com/anatolykoptev/go_catalog/internal/engine"
)

// Fallback answers video listings from the syndication feed when the
// upstream quota is exhausted. The result is a single, final page.
type Fallback struct {
	feed  FeedSource
	limit int
}

func NewFallback(feed FeedSource, limit int) *Fallback {
	if limit <= 0 {
		limit = engine.DefaultFeedEntryLimit
	}
	return &Fallback{feed: feed, limit: limit}
}

// Applies reports whether cause should be answered from the feed.
// Only quota exhaustion qualifies; every other kind propagates.
func (f *Fallback) Applies(q engine.Query, cause error) bool {
	return f != nil && f.feed != nil && q.Action.Paginated() &&
		engine.IsKind(cause, engine.KindQuotaExceeded)
}

// Serve returns the feed-sourced response for q. On failure it returns cause,
// never a feed-specific error.
func (f *Fallback) Serve(ctx context.Context, q engine.Query, channelID string, cause error) (*engine.Response, error) {
	engine.IncrFallbackActivations()
	slog.Warn("upstream quota exhausted, serving feed",
		slog.String("action", string(q.Action)),
		slog.String("channel", channelID),
		slog.Any("error", cause))

	videos, err := f.videos(ctx, q, channelID)
	if err != nil {
		engine.IncrFallbackFailures()
		slog.Warn("feed fallback failed", slog.String("action", string(q.Action)), slog.Any("error", err))
		return nil, cause
	}
	return &engine.Response{
		Action:    q.Action,
		ChannelID: channelID,
		Source:    engine.SourceFeed,
		Order:     engine.OrderNewest,
		Videos:    videos,
		Page:      1,
		PageCount: 1,
	}, nil
}

func (f *Fallback) videos(ctx context.Context, q engine.Query, channelID string) ([]engine.Video, error) {
	switch q.Action {
	case engine.ActionPlaylistVideos:
		return f.feed.PlaylistFeed(ctx, q.PlaylistID, f.limit)
	case engine.ActionSearch:
		all, err := f.feed.ChannelFeed(ctx, channelID, f.limit)
		if err != nil {
			return nil, err
		}
		return filterVideos(all, q.Search), nil
	}
	return f.feed.ChannelFeed(ctx, channelID, f.limit)
}

// filterVideos keeps videos whose title or description contains text, case-insensitively.
func filterVideos(videos []engine.Video, text string) []engine.Video {
	needle := strings.ToLower(strings.TrimSpace(text))
	out := make([]engine.Video, 0, len(videos))
	for _, v := range videos {
		if strings.Contains(strings.ToLower(v.Title), needle) ||
			strings.Contains(strings.ToLower(v.Description), needle) {
			out = append(out, v)
		}
	}
	return out
}
