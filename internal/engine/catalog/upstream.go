// Package catalog turns the channel's cursor-only upstream into numbered,
// ordered, cached pages, and degrades to the syndication feed on quota loss.
package catalog

import (
	"context"

	"github.com/anatolykoptev/go_catalog/internal/engine"
)

// Upstream is the quota-metered listing API. Implementations return
// *engine.Error values already classified by kind.
type Upstream interface {
	FindChannelByName(ctx context.Context, name string) (string, error)
	ChannelByUsername(ctx context.Context, username string) (string, error)
	UploadsPlaylist(ctx context.Context, channelID string) (string, error)
	PlaylistItems(ctx context.Context, playlistID, cursor string, pageSize int) (*engine.ItemPage, error)
	SearchVideos(ctx context.Context, channelID, query, cursor string, pageSize int) (*engine.ItemPage, error)
	Playlists(ctx context.Context, channelID string, limit int) ([]engine.Playlist, error)
	LiveBroadcast(ctx context.Context, channelID string) (*engine.LiveStatus, error)
	VideoStatus(ctx context.Context, videoID string) (*engine.EmbedStatus, error)
	VideoStatuses(ctx context.Context, ids []string) ([]engine.EmbedStatus, error)
}

// FeedSource is the credential-free degraded-mode listing.
type FeedSource interface {
	ChannelFeed(ctx context.Context, channelID string, limit int) ([]engine.Video, error)
	PlaylistFeed(ctx context.Context, playlistID string, limit int) ([]engine.Video, error)
}

// HandleResolver maps an @handle to a channel id without spending quota.
type HandleResolver interface {
	ResolveHandle(ctx context.Context, handle string) (string, error)
}
