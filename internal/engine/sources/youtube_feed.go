package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"github.com/anatolykoptev/go_catalog/internal/engine"
)

// Credential-free Atom feed of a channel's or playlist's latest entries
// (15 per feed upstream). Used when the Data API quota is exhausted.

const (
	ytFeedBase    = "https://www.youtube.com/feeds/videos.xml"
	ytFeedDescMax = 500
	ytFeedAccept  = "application/atom+xml,application/xml;q=0.9,*/*;q=0.8"
)

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	VideoID   string `xml:"http://www.youtube.com/xml/schemas/2015 videoId"`
	Title     string `xml:"title"`
	Published string `xml:"published"`
	Group     struct {
		Description string `xml:"http://search.yahoo.com/mrss/ description"`
		Thumbnail   struct {
			URL string `xml:"url,attr"`
		} `xml:"http://search.yahoo.com/mrss/ thumbnail"`
	} `xml:"http://search.yahoo.com/mrss/ group"`
}

// Feed reads the public syndication feed.
type Feed struct {
	BaseURL string // empty = youtube.com
}

// NewFeed returns a Feed pointed at youtube.com.
func NewFeed() *Feed { return &Feed{} }

// ChannelFeed returns up to limit of the channel's latest uploads.
func (f *Feed) ChannelFeed(ctx context.Context, channelID string, limit int) ([]engine.Video, error) {
	return f.fetch(ctx, "channel_id", channelID, limit)
}

// PlaylistFeed returns up to limit entries of the playlist.
func (f *Feed) PlaylistFeed(ctx context.Context, playlistID string, limit int) ([]engine.Video, error) {
	return f.fetch(ctx, "playlist_id", playlistID, limit)
}

func (f *Feed) fetch(ctx context.Context, param, id string, limit int) ([]engine.Video, error) {
	base := f.BaseURL
	if base == "" {
		base = ytFeedBase
	}
	feedURL := base + "?" + url.Values{param: {id}}.Encode()
	data, err := engine.FetchPublic(ctx, feedURL, ytFeedAccept)
	if err != nil {
		return nil, fmt.Errorf("youtube feed %s=%s: %w", param, id, err)
	}
	return ParseFeed(data, limit)
}

// ParseFeed extracts at most limit videos from an Atom feed document.
// Entries without a video id are skipped.
func ParseFeed(data []byte, limit int) ([]engine.Video, error) {
	var feed atomFeed
	if err := xml.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("decode youtube feed: %w", err)
	}
	videos := make([]engine.Video, 0, min(limit, len(feed.Entries)))
	for _, e := range feed.Entries {
		if len(videos) >= limit {
			break
		}
		id := strings.TrimSpace(e.VideoID)
		if id == "" {
			continue
		}
		videos = append(videos, engine.Video{
			ID:          id,
			Title:       strings.TrimSpace(e.Title),
			Description: engine.TruncateRunes(strings.TrimSpace(e.Group.Description), ytFeedDescMax, "…"),
			Thumbnail:   engine.VideoThumbnail(id, e.Group.Thumbnail.URL),
			PublishedAt: strings.TrimSpace(e.Published),
		})
	}
	return videos, nil
}
