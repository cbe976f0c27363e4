package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	gtransport "google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/anatolykoptev/go_catalog/internal/engine"
)

// videoBatchSize is the most ids one videos.list call accepts.
const videoBatchSize = 50

// DataAPIConfig configures the YouTube Data API v3 client.
type DataAPIConfig struct {
	APIKey      string
	FallbackKey string       // tried once when APIKey reports quota exhaustion
	HTTPClient  *http.Client // timeouts; nil = http.DefaultClient
	Endpoint    string       // base URL override, empty = Google's endpoint
	RPS         float64      // client-side token bucket, 0 = unlimited
}

// DataAPI is the quota-metered upstream. Every error it returns is already
// classified into an *engine.Error; callers never inspect googleapi errors.
type DataAPI struct {
	services []*youtube.Service // primary key first
	limiter  *rate.Limiter
}

// NewDataAPI builds one service per configured key.
func NewDataAPI(ctx context.Context, c DataAPIConfig) (*DataAPI, error) {
	if c.APIKey == "" {
		return nil, errors.New("youtube data API: api key is required")
	}
	base := c.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	keys := []string{c.APIKey}
	if c.FallbackKey != "" && c.FallbackKey != c.APIKey {
		keys = append(keys, c.FallbackKey)
	}

	d := &DataAPI{limiter: rate.NewLimiter(rate.Inf, 0)}
	if c.RPS > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(c.RPS), max(1, int(c.RPS)))
	}
	for _, key := range keys {
		keyed := &http.Client{
			Timeout:       base.Timeout,
			CheckRedirect: base.CheckRedirect,
			Transport:     &gtransport.APIKey{Key: key, Transport: base.Transport},
		}
		opts := []option.ClientOption{option.WithHTTPClient(keyed)}
		if c.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(c.Endpoint))
		}
		svc, err := youtube.NewService(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("youtube data API: %w", err)
		}
		d.services = append(d.services, svc)
	}
	return d, nil
}

// call runs fn against the primary key, retrying once per fallback key on quota
// exhaustion only. Any other error is classified immediately.
func call[T any](ctx context.Context, d *DataAPI, op, subject string, fn func(*youtube.Service) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i, svc := range d.services {
		if err := d.limiter.Wait(ctx); err != nil {
			return zero, engine.ErrUpstream(op, err)
		}
		engine.IncrUpstreamCalls()
		out, err := fn(svc)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isQuotaError(err) {
			break
		}
		engine.IncrUpstreamQuotaErrors()
		if i+1 < len(d.services) {
			slog.Debug("youtube data API key exhausted, trying fallback key", slog.String("op", op))
		}
	}
	classified := classify(op, subject, lastErr)
	slog.Warn("youtube data API failed",
		slog.String("op", op),
		slog.String("kind", string(engine.KindOf(classified))),
		slog.Any("error", lastErr))
	return zero, classified
}

var quotaReasons = map[string]bool{
	"quotaExceeded":         true,
	"dailyLimitExceeded":    true,
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
}

// isQuotaError recognizes the upstream's quota-exhaustion signal.
func isQuotaError(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	if gerr.Code == http.StatusTooManyRequests {
		return true
	}
	if gerr.Code != http.StatusForbidden {
		return false
	}
	for _, item := range gerr.Errors {
		if quotaReasons[item.Reason] {
			return true
		}
	}
	return false
}

func hasReason(gerr *googleapi.Error, reason string) bool {
	for _, item := range gerr.Errors {
		if item.Reason == reason {
			return true
		}
	}
	return false
}

// classify maps a raw upstream error to the catalog taxonomy.
func classify(op, subject string, err error) error {
	if isQuotaError(err) {
		return engine.ErrQuotaExceeded(fmt.Errorf("%s: %w", op, err))
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case hasReason(gerr, "channelNotFound"):
			return engine.ErrChannelNotFound(subject)
		case hasReason(gerr, "playlistNotFound"):
			return engine.ErrPlaylistNotFound(subject, err)
		case gerr.Code == http.StatusBadRequest:
			return engine.ErrInvalidRequest(op + ": " + gerr.Message)
		}
	}
	return engine.ErrUpstream(op, err)
}

// FindChannelByName returns the first channel matching name, or "" when none does.
func (d *DataAPI) FindChannelByName(ctx context.Context, name string) (string, error) {
	return call(ctx, d, "search.list(channel)", name, func(svc *youtube.Service) (string, error) {
		resp, err := svc.Search.List([]string{"snippet"}).
			Type("channel").Q(name).MaxResults(1).Context(ctx).Do()
		if err != nil {
			return "", err
		}
		for _, item := range resp.Items {
			if item.Id != nil && item.Id.ChannelId != "" {
				return item.Id.ChannelId, nil
			}
			if item.Snippet != nil && item.Snippet.ChannelId != "" {
				return item.Snippet.ChannelId, nil
			}
		}
		return "", nil
	})
}

// ChannelByUsername looks a channel up by its legacy username, "" when unknown.
func (d *DataAPI) ChannelByUsername(ctx context.Context, username string) (string, error) {
	return call(ctx, d, "channels.list(forUsername)", username, func(svc *youtube.Service) (string, error) {
		resp, err := svc.Channels.List([]string{"id"}).ForUsername(username).Context(ctx).Do()
		if err != nil {
			return "", err
		}
		if len(resp.Items) == 0 {
			return "", nil
		}
		return resp.Items[0].Id, nil
	})
}

// UploadsPlaylist returns the playlist holding every upload of the channel.
func (d *DataAPI) UploadsPlaylist(ctx context.Context, channelID string) (string, error) {
	id, err := call(ctx, d, "channels.list(contentDetails)", channelID, func(svc *youtube.Service) (string, error) {
		resp, err := svc.Channels.List([]string{"contentDetails"}).Id(channelID).Context(ctx).Do()
		if err != nil {
			return "", err
		}
		for _, ch := range resp.Items {
			if ch.ContentDetails != nil && ch.ContentDetails.RelatedPlaylists != nil {
				return ch.ContentDetails.RelatedPlaylists.Uploads, nil
			}
		}
		return "", nil
	})
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", engine.ErrChannelNotFound(channelID)
	}
	return id, nil
}

// PlaylistItems fetches one page of a playlist, newest first for uploads.
func (d *DataAPI) PlaylistItems(ctx context.Context, playlistID, cursor string, pageSize int) (*engine.ItemPage, error) {
	return call(ctx, d, "playlistItems.list", playlistID, func(svc *youtube.Service) (*engine.ItemPage, error) {
		engine.IncrUpstreamPageFetches()
		req := svc.PlaylistItems.List([]string{"snippet", "contentDetails"}).
			PlaylistId(playlistID).MaxResults(int64(pageSize)).Context(ctx)
		if cursor != "" {
			req = req.PageToken(cursor)
		}
		resp, err := req.Do()
		if err != nil {
			return nil, err
		}
		page := &engine.ItemPage{
			Videos:     make([]engine.Video, 0, len(resp.Items)),
			NextCursor: resp.NextPageToken,
			PrevCursor: resp.PrevPageToken,
		}
		if resp.PageInfo != nil {
			page.Total = resp.PageInfo.TotalResults
		}
		for _, item := range resp.Items {
			if v, ok := playlistItemVideo(item); ok {
				page.Videos = append(page.Videos, v)
			}
		}
		return page, nil
	})
}

// SearchVideos runs a channel-scoped free-text search, newest first.
func (d *DataAPI) SearchVideos(ctx context.Context, channelID, query, cursor string, pageSize int) (*engine.ItemPage, error) {
	return call(ctx, d, "search.list(video)", channelID, func(svc *youtube.Service) (*engine.ItemPage, error) {
		engine.IncrUpstreamPageFetches()
		req := svc.Search.List([]string{"snippet"}).
			ChannelId(channelID).Q(query).Type("video").Order("date").
			MaxResults(int64(pageSize)).Context(ctx)
		if cursor != "" {
			req = req.PageToken(cursor)
		}
		resp, err := req.Do()
		if err != nil {
			return nil, err
		}
		page := &engine.ItemPage{
			Videos:     make([]engine.Video, 0, len(resp.Items)),
			NextCursor: resp.NextPageToken,
			PrevCursor: resp.PrevPageToken,
		}
		if resp.PageInfo != nil {
			page.Total = resp.PageInfo.TotalResults
		}
		for _, item := range resp.Items {
			if v, ok := searchResultVideo(item); ok {
				page.Videos = append(page.Videos, v)
			}
		}
		return page, nil
	})
}

// Playlists lists up to limit playlists of the channel.
func (d *DataAPI) Playlists(ctx context.Context, channelID string, limit int) ([]engine.Playlist, error) {
	return call(ctx, d, "playlists.list", channelID, func(svc *youtube.Service) ([]engine.Playlist, error) {
		resp, err := svc.Playlists.List([]string{"snippet", "contentDetails"}).
			ChannelId(channelID).MaxResults(int64(limit)).Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		out := make([]engine.Playlist, 0, len(resp.Items))
		for _, p := range resp.Items {
			pl := engine.Playlist{ID: p.Id}
			if p.Snippet != nil {
				pl.Title = p.Snippet.Title
				pl.Thumbnail = mediumThumb(p.Snippet.Thumbnails)
			}
			if p.ContentDetails != nil {
				pl.ItemCount = p.ContentDetails.ItemCount
			}
			out = append(out, pl)
		}
		return out, nil
	})
}

// LiveBroadcast returns the channel's active live video, nil when none is on air.
func (d *DataAPI) LiveBroadcast(ctx context.Context, channelID string) (*engine.LiveStatus, error) {
	return call(ctx, d, "search.list(live)", channelID, func(svc *youtube.Service) (*engine.LiveStatus, error) {
		resp, err := svc.Search.List([]string{"snippet"}).
			ChannelId(channelID).EventType("live").Type("video").MaxResults(1).Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		for _, item := range resp.Items {
			v, ok := searchResultVideo(item)
			if !ok {
				continue
			}
			return &engine.LiveStatus{ID: v.ID, Title: v.Title, URL: engine.WatchURL(v.ID), Thumbnail: v.Thumbnail}, nil
		}
		return nil, nil
	})
}

// VideoStatus reports embeddability and privacy of one video.
func (d *DataAPI) VideoStatus(ctx context.Context, videoID string) (*engine.EmbedStatus, error) {
	sts, err := d.VideoStatuses(ctx, []string{videoID})
	if err != nil {
		return nil, err
	}
	if len(sts) == 0 {
		return nil, engine.ErrVideoNotFound(videoID)
	}
	return &sts[0], nil
}

// VideoStatuses looks ids up in batches of videoBatchSize. Unknown ids are
// absent from the result.
func (d *DataAPI) VideoStatuses(ctx context.Context, ids []string) ([]engine.EmbedStatus, error) {
	out := make([]engine.EmbedStatus, 0, len(ids))
	for chunk := range slices.Chunk(ids, videoBatchSize) {
		batch, err := call(ctx, d, "videos.list(status)", chunk[0], func(svc *youtube.Service) ([]engine.EmbedStatus, error) {
			resp, err := svc.Videos.List([]string{"status", "snippet"}).Id(strings.Join(chunk, ",")).Context(ctx).Do()
			if err != nil {
				return nil, err
			}
			sts := make([]engine.EmbedStatus, 0, len(resp.Items))
			for _, it := range resp.Items {
				st := engine.EmbedStatus{ID: it.Id}
				if it.Snippet != nil {
					st.Title = it.Snippet.Title
				}
				if it.Status != nil {
					st.Embeddable = it.Status.Embeddable
					st.PrivacyStatus = it.Status.PrivacyStatus
				}
				sts = append(sts, st)
			}
			return sts, nil
		})
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func playlistItemVideo(item *youtube.PlaylistItem) (engine.Video, bool) {
	if item == nil || item.Snippet == nil {
		return engine.Video{}, false
	}
	id := ""
	if item.Snippet.ResourceId != nil {
		id = item.Snippet.ResourceId.VideoId
	}
	if id == "" && item.ContentDetails != nil {
		id = item.ContentDetails.VideoId
	}
	if id == "" {
		return engine.Video{}, false
	}
	return engine.Video{
		ID:          id,
		Title:       item.Snippet.Title,
		Description: item.Snippet.Description,
		Thumbnail:   engine.VideoThumbnail(id, mediumThumb(item.Snippet.Thumbnails)),
		PublishedAt: item.Snippet.PublishedAt,
	}, true
}

func searchResultVideo(item *youtube.SearchResult) (engine.Video, bool) {
	if item == nil || item.Id == nil || item.Id.VideoId == "" {
		return engine.Video{}, false
	}
	v := engine.Video{ID: item.Id.VideoId}
	if item.Snippet != nil {
		v.Title = item.Snippet.Title
		v.Description = item.Snippet.Description
		v.PublishedAt = item.Snippet.PublishedAt
		v.Thumbnail = mediumThumb(item.Snippet.Thumbnails)
	}
	v.Thumbnail = engine.VideoThumbnail(v.ID, v.Thumbnail)
	return v, true
}

func mediumThumb(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*youtube.Thumbnail{t.Medium, t.High, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}
