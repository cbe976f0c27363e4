package catalog

import (
	"context"

	"github.com/anatolykoptev/go_catalog/internal/engine"
)

// LiveDetector finds the channel's active broadcast with one upstream call.
// It neither retries nor caches; the widget asks once per session.
type LiveDetector struct {
	up Upstream
}

func NewLiveDetector(up Upstream) *LiveDetector { return &LiveDetector{up: up} }

// Detect returns the live broadcast, or nil when the channel is off air.
func (d *LiveDetector) Detect(ctx context.Context, channelID string) (*engine.LiveStatus, error) {
	engine.IncrLiveChecks()
	st, err := d.up.LiveBroadcast(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if st != nil {
		st.Thumbnail = engine.VideoThumbnail(st.ID, st.Thumbnail)
		if st.URL == "" {
			st.URL = engine.WatchURL(st.ID)
		}
	}
	return st, nil
}
