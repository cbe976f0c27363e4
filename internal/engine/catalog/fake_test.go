package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/anatolykoptev/go_catalog/internal/engine"
)

const testChannelID = "UCtestchannel00000000000"

// makeVideos returns n videos newest first: v001 is the newest.
func makeVideos(n int) []engine.Video {
	out := make([]engine.Video, n)
	for i := range out {
		id := fmt.Sprintf("v%03d", i+1)
		out[i] = engine.Video{ID: id, Title: "Video " + id}
	}
	return out
}

// fakeUpstream serves offset-encoded cursors over in-memory listings and
// counts every call.
type fakeUpstream struct {
	mu        sync.Mutex
	listings  map[string][]engine.Video // playlist id → videos, newest first
	names     map[string]string         // search name → channel id
	usernames map[string]string
	playlists []engine.Playlist
	live      *engine.LiveStatus
	embed     map[string]*engine.EmbedStatus

	listErr    error // returned by PlaylistItems/SearchVideos when set
	resolveErr error // returned by both lookups when set

	pageFetches   atomic.Int64
	nameLookups   atomic.Int64
	userLookups   atomic.Int64
	uploadLookups atomic.Int64
	liveCalls     atomic.Int64
	statusBatches atomic.Int64
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		listings:  map[string][]engine.Video{},
		names:     map[string]string{},
		usernames: map[string]string{},
		embed:     map[string]*engine.EmbedStatus{},
	}
}

func uploadsID(channelID string) string { return "UU" + strings.TrimPrefix(channelID, "UC") }

func (f *fakeUpstream) FindChannelByName(_ context.Context, name string) (string, error) {
	f.nameLookups.Add(1)
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	return f.names[name], nil
}

func (f *fakeUpstream) ChannelByUsername(_ context.Context, username string) (string, error) {
	f.userLookups.Add(1)
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	return f.usernames[username], nil
}

func (f *fakeUpstream) UploadsPlaylist(_ context.Context, channelID string) (string, error) {
	f.uploadLookups.Add(1)
	return uploadsID(channelID), nil
}

func (f *fakeUpstream) page(listing []engine.Video, cursor string, pageSize int) (*engine.ItemPage, error) {
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(cursor, "tok-"))
		if err != nil {
			return nil, engine.ErrInvalidRequest("bad cursor " + cursor)
		}
		offset = n
	}
	end := min(offset+pageSize, len(listing))
	p := &engine.ItemPage{Total: int64(len(listing))}
	if offset < len(listing) {
		p.Videos = append([]engine.Video(nil), listing[offset:end]...)
	}
	if end < len(listing) {
		p.NextCursor = "tok-" + strconv.Itoa(end)
	}
	if offset > 0 {
		p.PrevCursor = "tok-" + strconv.Itoa(max(0, offset-pageSize))
	}
	return p, nil
}

func (f *fakeUpstream) PlaylistItems(_ context.Context, playlistID, cursor string, pageSize int) (*engine.ItemPage, error) {
	f.pageFetches.Add(1)
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	listing, ok := f.listings[playlistID]
	f.mu.Unlock()
	if !ok {
		return nil, engine.ErrPlaylistNotFound(playlistID, nil)
	}
	return f.page(listing, cursor, pageSize)
}

func (f *fakeUpstream) SearchVideos(_ context.Context, channelID, query, cursor string, pageSize int) (*engine.ItemPage, error) {
	f.pageFetches.Add(1)
	if f.listErr != nil {
		return nil, f.listErr
	}
	var hits []engine.Video
	for _, v := range f.listings[uploadsID(channelID)] {
		if strings.Contains(strings.ToLower(v.Title), strings.ToLower(query)) {
			hits = append(hits, v)
		}
	}
	return f.page(hits, cursor, pageSize)
}

func (f *fakeUpstream) Playlists(_ context.Context, _ string, limit int) ([]engine.Playlist, error) {
	return f.playlists[:min(limit, len(f.playlists))], nil
}

func (f *fakeUpstream) LiveBroadcast(_ context.Context, _ string) (*engine.LiveStatus, error) {
	f.liveCalls.Add(1)
	return f.live, nil
}

func (f *fakeUpstream) VideoStatus(_ context.Context, videoID string) (*engine.EmbedStatus, error) {
	st, ok := f.embed[videoID]
	if !ok {
		return nil, engine.ErrVideoNotFound(videoID)
	}
	return st, nil
}

// VideoStatuses knows every id; those in embed keep their recorded status,
// the rest are embeddable.
func (f *fakeUpstream) VideoStatuses(_ context.Context, ids []string) ([]engine.EmbedStatus, error) {
	f.statusBatches.Add(1)
	out := make([]engine.EmbedStatus, 0, len(ids))
	for _, id := range ids {
		if st, ok := f.embed[id]; ok {
			out = append(out, *st)
			continue
		}
		out = append(out, engine.EmbedStatus{ID: id, Title: "Video " + id, Embeddable: true})
	}
	return out, nil
}

// fakeFeed serves fixed feed entries and counts calls.
type fakeFeed struct {
	videos    []engine.Video
	playlists map[string][]engine.Video
	err       error
	calls     atomic.Int64
	lastLimit atomic.Int64
}

func (f *fakeFeed) ChannelFeed(_ context.Context, _ string, limit int) ([]engine.Video, error) {
	f.calls.Add(1)
	f.lastLimit.Store(int64(limit))
	if f.err != nil {
		return nil, f.err
	}
	return f.videos[:min(limit, len(f.videos))], nil
}

func (f *fakeFeed) PlaylistFeed(_ context.Context, playlistID string, limit int) ([]engine.Video, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	v := f.playlists[playlistID]
	return v[:min(limit, len(v))], nil
}

// fakeHandles resolves handles from a map.
type fakeHandles struct {
	ids   map[string]string
	calls atomic.Int64
}

func (h *fakeHandles) ResolveHandle(_ context.Context, handle string) (string, error) {
	h.calls.Add(1)
	if id, ok := h.ids[engine.HandleName(handle)]; ok {
		return id, nil
	}
	return "", engine.ErrChannelNotFound(handle)
}
