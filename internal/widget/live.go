package widget

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/anatolykoptev/go_catalog/internal/engine"
)

// CheckLive asks once per coordinator whether the channel is on air and
// updates the live affordance. Later calls return the first answer.
// It is not a navigation: it neither takes a ticket nor clears the grid.
func (c *Coordinator) CheckLive(ctx context.Context) (*engine.LiveStatus, error) {
	c.liveOnce.Do(func() {
		v := url.Values{}
		v.Set("action", string(engine.ActionLive))
		v.Set("channelId", c.channel)
		resp, err := c.fetcher.Catalog(ctx, v)

		c.mu.Lock()
		defer c.mu.Unlock()
		c.state.LiveChecked = true
		if err != nil {
			c.liveErr = err
			slog.Debug("widget: live check failed", slog.Any("error", err))
		} else {
			c.state.Live = resp.Live
		}
		c.render(c.snapshot())
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Live, c.liveErr
}

// LiveOrLatest returns where the "watch" shortcut points: the live broadcast
// if there is one, else the newest upload, else the channel page.
func (c *Coordinator) LiveOrLatest(ctx context.Context) string {
	if live, err := c.CheckLive(ctx); err == nil && live != nil && live.ID != "" {
		return engine.WatchURL(live.ID)
	}

	v := url.Values{}
	v.Set("action", string(engine.ActionUploads))
	v.Set("channelId", c.channel)
	v.Set("page", "1")
	v.Set("pageSize", "1")
	resp, err := c.fetcher.Catalog(ctx, v)
	if err == nil && len(resp.Videos) > 0 && resp.Videos[0].ID != "" {
		return engine.WatchURL(resp.Videos[0].ID)
	}
	if err != nil {
		slog.Debug("widget: latest upload lookup failed", slog.Any("error", err))
	}
	return ChannelURL(c.channel)
}

// ChannelURL returns the public page of a channel reference.
func ChannelURL(ref string) string {
	if engine.IsChannelID(ref) {
		return "https://www.youtube.com/channel/" + ref
	}
	return "https://www.youtube.com/@" + engine.HandleName(ref)
}
