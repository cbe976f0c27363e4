package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_catalog/internal/engine"
)

const quotaBody = `{"error":{"code":403,"message":"The request cannot be completed because you have exceeded your quota.",
"errors":[{"message":"quota","domain":"youtube.quota","reason":"quotaExceeded"}]}}`

// fakeYouTube serves canned Data API answers and records the keys it saw.
type fakeYouTube struct {
	mu       sync.Mutex
	keys     []string
	paths    []string
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeYouTube) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.keys = append(f.keys, r.URL.Query().Get("key"))
	f.paths = append(f.paths, r.URL.Path)
	f.mu.Unlock()

	name := strings.TrimPrefix(r.URL.Path, "/youtube/v3/")
	h, ok := f.handlers[name]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	h(w, r)
}

func newTestDataAPI(t *testing.T, f *fakeYouTube, fallbackKey string) *DataAPI {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	d, err := NewDataAPI(context.Background(), DataAPIConfig{
		APIKey:      "primary",
		FallbackKey: fallbackKey,
		HTTPClient:  srv.Client(),
		Endpoint:    srv.URL + "/",
	})
	require.NoError(t, err)
	return d
}

func TestNewDataAPIRequiresKey(t *testing.T) {
	_, err := NewDataAPI(context.Background(), DataAPIConfig{})
	assert.Error(t, err)
}

func TestPlaylistItemsMapping(t *testing.T) {
	f := &fakeYouTube{handlers: map[string]func(http.ResponseWriter, *http.Request){
		"playlistItems": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "UUchan", r.URL.Query().Get("playlistId"))
			assert.Equal(t, "CAoQAA", r.URL.Query().Get("pageToken"))
			assert.Equal(t, "10", r.URL.Query().Get("maxResults"))
			fmt.Fprint(w, `{
				"nextPageToken": "CBQQAA",
				"prevPageToken": "CAUQAQ",
				"pageInfo": {"totalResults": 42, "resultsPerPage": 10},
				"items": [
					{"snippet": {"title": "Misa dominical", "description": "d1", "publishedAt": "2024-05-01T10:00:00Z",
						"resourceId": {"videoId": "vid1"},
						"thumbnails": {"medium": {"url": "https://i.ytimg.com/vi/vid1/mqdefault.jpg"}}}},
					{"snippet": {"title": "No thumb", "resourceId": {"videoId": "vid2"}}},
					{"snippet": {"title": "Deleted video"}}
				]}`)
		},
	}}
	d := newTestDataAPI(t, f, "")

	page, err := d.PlaylistItems(context.Background(), "UUchan", "CAoQAA", 10)
	require.NoError(t, err)

	assert.Equal(t, "CBQQAA", page.NextCursor)
	assert.Equal(t, "CAUQAQ", page.PrevCursor)
	assert.EqualValues(t, 42, page.Total)
	require.Len(t, page.Videos, 2, "items without a video id are dropped")
	assert.Equal(t, engine.Video{
		ID:          "vid1",
		Title:       "Misa dominical",
		Description: "d1",
		Thumbnail:   "https://i.ytimg.com/vi/vid1/mqdefault.jpg",
		PublishedAt: "2024-05-01T10:00:00Z",
	}, page.Videos[0])
	assert.Equal(t, "https://i.ytimg.com/vi/vid2/hqdefault.jpg", page.Videos[1].Thumbnail)
	assert.Equal(t, []string{"primary"}, f.keys)
}

func TestQuotaFallsBackToSecondaryKey(t *testing.T) {
	f := &fakeYouTube{}
	f.handlers = map[string]func(http.ResponseWriter, *http.Request){
		"playlists": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("key") == "primary" {
				w.WriteHeader(http.StatusForbidden)
				fmt.Fprint(w, quotaBody)
				return
			}
			fmt.Fprint(w, `{"items":[{"id":"PL1","snippet":{"title":"Homilias"},"contentDetails":{"itemCount":7}}]}`)
		},
	}
	d := newTestDataAPI(t, f, "secondary")

	lists, err := d.Playlists(context.Background(), "UCchan", 50)
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, engine.Playlist{ID: "PL1", Title: "Homilias", ItemCount: 7}, lists[0])
	assert.Equal(t, []string{"primary", "secondary"}, f.keys)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   engine.ErrorKind
	}{
		{"quota", 403, quotaBody, engine.KindQuotaExceeded},
		{"rate limit 429", 429, `{"error":{"code":429,"message":"slow down"}}`, engine.KindQuotaExceeded},
		{"daily limit", 403, `{"error":{"code":403,"message":"x","errors":[{"reason":"dailyLimitExceeded"}]}}`, engine.KindQuotaExceeded},
		{"playlist not found", 404, `{"error":{"code":404,"message":"x","errors":[{"reason":"playlistNotFound"}]}}`, engine.KindPlaylistNotFound},
		{"bad request", 400, `{"error":{"code":400,"message":"invalid page token","errors":[{"reason":"invalidPageToken"}]}}`, engine.KindInvalidRequest},
		{"forbidden other", 403, `{"error":{"code":403,"message":"x","errors":[{"reason":"forbidden"}]}}`, engine.KindUpstream},
		{"server error", 500, `{"error":{"code":500,"message":"backend"}}`, engine.KindUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeYouTube{handlers: map[string]func(http.ResponseWriter, *http.Request){
				"playlistItems": func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(tt.status)
					fmt.Fprint(w, tt.body)
				},
			}}
			d := newTestDataAPI(t, f, "")

			_, err := d.PlaylistItems(context.Background(), "PLx", "", 10)
			require.Error(t, err)
			assert.True(t, engine.IsKind(err, tt.kind), "got %v", err)
			assert.Len(t, f.keys, 1, "errors are never retried without a fallback key")
		})
	}
}

func TestNonQuotaErrorSkipsFallbackKey(t *testing.T) {
	f := &fakeYouTube{handlers: map[string]func(http.ResponseWriter, *http.Request){
		"playlistItems": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"code":404,"message":"x","errors":[{"reason":"playlistNotFound"}]}}`)
		},
	}}
	d := newTestDataAPI(t, f, "secondary")

	_, err := d.PlaylistItems(context.Background(), "PLx", "", 10)
	assert.True(t, engine.IsKind(err, engine.KindPlaylistNotFound))
	assert.Equal(t, []string{"primary"}, f.keys)
}

func TestResolveLookups(t *testing.T) {
	f := &fakeYouTube{handlers: map[string]func(http.ResponseWriter, *http.Request){
		"search": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "channel", r.URL.Query().Get("type"))
			if r.URL.Query().Get("q") == "nobody" {
				fmt.Fprint(w, `{"items":[]}`)
				return
			}
			fmt.Fprint(w, `{"items":[{"id":{"kind":"youtube#channel","channelId":"UCfoundbysearch0000000000"}}]}`)
		},
		"channels": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("forUsername") != "" {
				fmt.Fprint(w, `{"items":[{"id":"UCfoundbyusername00000000"}]}`)
				return
			}
			fmt.Fprint(w, `{"items":[{"id":"UCx","contentDetails":{"relatedPlaylists":{"uploads":"UUx"}}}]}`)
		},
	}}
	d := newTestDataAPI(t, f, "")
	ctx := context.Background()

	id, err := d.FindChannelByName(ctx, "radioefectopositivo")
	require.NoError(t, err)
	assert.Equal(t, "UCfoundbysearch0000000000", id)

	id, err = d.FindChannelByName(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, id)

	id, err = d.ChannelByUsername(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, "UCfoundbyusername00000000", id)

	uploads, err := d.UploadsPlaylist(ctx, "UCx")
	require.NoError(t, err)
	assert.Equal(t, "UUx", uploads)
}

func TestUploadsPlaylistUnknownChannel(t *testing.T) {
	f := &fakeYouTube{handlers: map[string]func(http.ResponseWriter, *http.Request){
		"channels": func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, `{"items":[]}`) },
	}}
	d := newTestDataAPI(t, f, "")

	_, err := d.UploadsPlaylist(context.Background(), "UCghost")
	assert.True(t, engine.IsKind(err, engine.KindChannelNotFound))
}

func TestLiveBroadcast(t *testing.T) {
	live := true
	f := &fakeYouTube{handlers: map[string]func(http.ResponseWriter, *http.Request){
		"search": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "live", r.URL.Query().Get("eventType"))
			if !live {
				fmt.Fprint(w, `{"items":[]}`)
				return
			}
			fmt.Fprint(w, `{"items":[{"id":{"videoId":"live1"},"snippet":{"title":"Rosario en vivo"}}]}`)
		},
	}}
	d := newTestDataAPI(t, f, "")
	ctx := context.Background()

	st, err := d.LiveBroadcast(ctx, "UCx")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "live1", st.ID)
	assert.Equal(t, "https://www.youtube.com/watch?v=live1", st.URL)

	live = false
	st, err = d.LiveBroadcast(ctx, "UCx")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestVideoStatus(t *testing.T) {
	f := &fakeYouTube{handlers: map[string]func(http.ResponseWriter, *http.Request){
		"videos": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("id") == "gone" {
				fmt.Fprint(w, `{"items":[]}`)
				return
			}
			fmt.Fprint(w, `{"items":[{"id":"v1","snippet":{"title":"T"},"status":{"embeddable":true,"privacyStatus":"public"}}]}`)
		},
	}}
	d := newTestDataAPI(t, f, "")
	ctx := context.Background()

	st, err := d.VideoStatus(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, &engine.EmbedStatus{ID: "v1", Title: "T", Embeddable: true, PrivacyStatus: "public"}, st)

	_, err = d.VideoStatus(ctx, "gone")
	assert.True(t, engine.IsKind(err, engine.KindVideoNotFound))
	assert.Equal(t, http.StatusNotFound, engine.StatusOf(err))
}

func TestVideoStatusesBatches(t *testing.T) {
	var batches []int
	f := &fakeYouTube{handlers: map[string]func(http.ResponseWriter, *http.Request){
		"videos": func(w http.ResponseWriter, r *http.Request) {
			ids := strings.Split(r.URL.Query().Get("id"), ",")
			batches = append(batches, len(ids))
			var items []string
			for _, id := range ids {
				if id == "v007" {
					continue // unknown upstream
				}
				items = append(items, fmt.Sprintf(`{"id":%q,"snippet":{"title":"T %s"},"status":{"embeddable":%t}}`, id, id, id != "v003"))
			}
			fmt.Fprintf(w, `{"items":[%s]}`, strings.Join(items, ","))
		},
	}}
	d := newTestDataAPI(t, f, "")

	ids := make([]string, 120)
	for i := range ids {
		ids[i] = fmt.Sprintf("v%03d", i+1)
	}
	sts, err := d.VideoStatuses(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, []int{50, 50, 20}, batches)
	require.Len(t, sts, 119)
	assert.Equal(t, engine.EmbedStatus{ID: "v003", Title: "T v003"}, sts[2])
	assert.True(t, sts[0].Embeddable)
	assert.Equal(t, "v008", sts[6].ID)
}
