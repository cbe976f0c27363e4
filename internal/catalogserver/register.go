package catalogserver

import (
	"context"
	"net/url"
	"strconv"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_catalog/internal/engine"
	"github.com/anatolykoptev/go_catalog/internal/engine/catalog"
)

// ChannelVideosInput is the input of channel_videos.
type ChannelVideosInput struct {
	Channel    string `json:"channel,omitempty" jsonschema:"Channel id (UC...) or @handle. Defaults to the configured channel."`
	PlaylistID string `json:"playlist_id,omitempty" jsonschema:"List this playlist instead of the channel uploads."`
	Query      string `json:"query,omitempty" jsonschema:"Free-text search inside the channel. Sequential pages only."`
	Order      string `json:"order,omitempty" jsonschema:"date_desc (newest first, default) or date_asc (oldest first)."`
	Page       int    `json:"page,omitempty" jsonschema:"1-based page number."`
	PageToken  string `json:"page_token,omitempty" jsonschema:"Cursor from a previous response, for sequential paging."`
	PageSize   int    `json:"page_size,omitempty" jsonschema:"Videos per page, clamped to the configured maximum."`
}

// ChannelInput names a channel.
type ChannelInput struct {
	Channel string `json:"channel,omitempty" jsonschema:"Channel id (UC...) or @handle. Defaults to the configured channel."`
}

// RegisterTools registers the catalog tools on the given MCP server:
// channel_videos, channel_playlists, channel_live.
func RegisterTools(server *mcp.Server, svc *catalog.Service, defaults func() engine.Defaults) {
	if defaults == nil {
		defaults = engine.QueryDefaults
	}
	registerChannelVideos(server, svc, defaults)
	registerChannelPlaylists(server, svc, defaults)
	registerChannelLive(server, svc, defaults)
}

func registerChannelVideos(server *mcp.Server, svc *catalog.Service, defaults func() engine.Defaults) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "channel_videos",
		Description: "List a YouTube channel's videos page by page: uploads, one playlist, or a text search within the channel. Supports numbered pages, newest or oldest first. Falls back to the public feed (single page, source=feed) when the API quota is exhausted.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ChannelVideosInput) (*mcp.CallToolResult, engine.Response, error) {
		v := url.Values{}
		switch {
		case input.Query != "":
			v.Set("action", string(engine.ActionSearch))
			v.Set("q", input.Query)
		case input.PlaylistID != "":
			v.Set("action", string(engine.ActionPlaylistVideos))
			v.Set("playlistId", input.PlaylistID)
		default:
			v.Set("action", string(engine.ActionUploads))
		}
		setIf(v, "channelId", input.Channel)
		setIf(v, "order", input.Order)
		setIf(v, "pageToken", input.PageToken)
		if input.Page > 0 {
			v.Set("page", strconv.Itoa(input.Page))
		}
		if input.PageSize > 0 {
			v.Set("pageSize", strconv.Itoa(input.PageSize))
		}
		return handleTool(ctx, svc, v, defaults())
	})
}

func registerChannelPlaylists(server *mcp.Server, svc *catalog.Service, defaults func() engine.Defaults) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "channel_playlists",
		Description: "List a YouTube channel's playlists with title, item count and thumbnail.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ChannelInput) (*mcp.CallToolResult, engine.Response, error) {
		v := url.Values{"action": {string(engine.ActionPlaylists)}}
		setIf(v, "channelId", input.Channel)
		return handleTool(ctx, svc, v, defaults())
	})
}

func registerChannelLive(server *mcp.Server, svc *catalog.Service, defaults func() engine.Defaults) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "channel_live",
		Description: "Report the YouTube channel's current live broadcast, or live=null when it is off air.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ChannelInput) (*mcp.CallToolResult, engine.Response, error) {
		v := url.Values{"action": {string(engine.ActionLive)}}
		setIf(v, "channelId", input.Channel)
		return handleTool(ctx, svc, v, defaults())
	})
}

func handleTool(ctx context.Context, svc *catalog.Service, v url.Values, d engine.Defaults) (*mcp.CallToolResult, engine.Response, error) {
	q, err := engine.ParseQuery(v, d)
	if err != nil {
		return nil, engine.Response{}, err
	}
	resp, _, err := svc.Handle(ctx, q)
	if err != nil {
		logFailure("mcp", err)
		return nil, engine.Response{}, err
	}
	return nil, *resp, nil
}

func setIf(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}
