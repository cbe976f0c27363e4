package catalog

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_catalog/internal/engine"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type serviceFixture struct {
	up      *fakeUpstream
	feed    *fakeFeed
	handles *fakeHandles
	clock   *testClock
	svc     *Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		up: newFakeUpstream(),
		feed: &fakeFeed{
			videos: []engine.Video{
				{ID: "f1", Title: "Santo Rosario"},
				{ID: "f2", Title: "Homilía", Description: "Misa del domingo"},
				{ID: "f3", Title: "Noticias"},
			},
			playlists: map[string][]engine.Video{"PLa": {{ID: "pf1", Title: "From playlist feed"}}},
		},
		handles: &fakeHandles{ids: map[string]string{"radio": testChannelID}},
		clock:   &testClock{now: time.Unix(1_700_000_000, 0)},
	}
	f.up.names["radio"] = testChannelID
	f.up.listings[uploadsID(testChannelID)] = makeVideos(45)
	f.up.listings["PLa"] = makeVideos(30)[10:]
	f.up.listings["PLb"] = makeVideos(8)

	cache := engine.NewCache(5*time.Minute, engine.WithClock(f.clock.Now))
	f.svc = NewService(f.up, f.feed, f.handles, cache, NewMemoryChainStore(), Options{
		CacheTTL:       5 * time.Minute,
		FallbackTTL:    time.Minute,
		OldestFirstCap: 500,
	})
	return f
}

func mustQuery(t *testing.T, raw string) engine.Query {
	t.Helper()
	v, err := url.ParseQuery(raw)
	require.NoError(t, err)
	q, err := engine.ParseQuery(v, engine.Defaults{Channel: "@radio", PageSize: 12, PageSizeMax: 50})
	require.NoError(t, err)
	return q
}

func TestServiceNewestPageThenCacheHit(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	q := mustQuery(t, "action=uploads&channelId="+testChannelID+"&order=date_desc&page=3&pageSize=10")

	resp, hit, err := f.svc.Handle(ctx, q)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.EqualValues(t, 3, f.up.pageFetches.Load())
	assert.Equal(t, "v021", resp.Videos[0].ID)
	assert.Equal(t, "v030", resp.Videos[9].ID)
	assert.Equal(t, engine.SourceAPI, resp.Source)
	assert.Equal(t, testChannelID, resp.ChannelID)

	again, hit, err := f.svc.Handle(ctx, q)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.EqualValues(t, 3, f.up.pageFetches.Load(), "cache hit costs no upstream fetch")

	first, _ := json.Marshal(resp)
	second, _ := json.Marshal(again)
	assert.JSONEq(t, string(first), string(second))
}

func TestServiceCacheExpiresAndChainSurvives(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	q := mustQuery(t, "channelId="+testChannelID+"&page=3&pageSize=10")

	_, _, err := f.svc.Handle(ctx, q)
	require.NoError(t, err)
	f.clock.Advance(6 * time.Minute)

	_, hit, err := f.svc.Handle(ctx, q)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.EqualValues(t, 4, f.up.pageFetches.Load(), "the cursor chain outlives the response cache")
}

func TestServiceUploadsPlaylistMemoized(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	for _, page := range []string{"1", "2", "3"} {
		_, _, err := f.svc.Handle(ctx, mustQuery(t, "channelId="+testChannelID+"&page="+page))
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, f.up.uploadLookups.Load())
}

func TestServiceOldestFirst(t *testing.T) {
	f := newServiceFixture(t)
	f.up.listings[uploadsID(testChannelID)] = makeVideos(25)

	resp, _, err := f.svc.Handle(context.Background(),
		mustQuery(t, "channelId="+testChannelID+"&order=date_asc&page=2&pageSize=10"))
	require.NoError(t, err)
	assert.Equal(t, "v015", resp.Videos[0].ID)
	assert.Equal(t, "v006", resp.Videos[9].ID)
	assert.Equal(t, 3, resp.PageCount)
	assert.Equal(t, engine.OrderOldest, resp.Order)
}

func TestServicePlaylistVideos(t *testing.T) {
	f := newServiceFixture(t)
	resp, _, err := f.svc.Handle(context.Background(),
		mustQuery(t, "action=playlistVideos&playlistId=PLb&pageSize=5&page=2"))
	require.NoError(t, err)
	assert.Equal(t, []string{"v006", "v007", "v008"}, ids(resp.Videos))
	assert.Nil(t, resp.NextPage)
	assert.Equal(t, 2, resp.PageCount)
}

func TestServiceSequentialToken(t *testing.T) {
	f := newServiceFixture(t)
	resp, _, err := f.svc.Handle(context.Background(),
		mustQuery(t, "channelId="+testChannelID+"&pageToken=tok-10&pageSize=10"))
	require.NoError(t, err)
	assert.Equal(t, "v011", resp.Videos[0].ID)
	assert.Equal(t, "tok-20", resp.PageToken)
	assert.Equal(t, "tok-0", resp.PrevPageToken)
	assert.Zero(t, resp.Page)
	assert.EqualValues(t, 1, f.up.pageFetches.Load())
}

func TestServiceSearch(t *testing.T) {
	f := newServiceFixture(t)
	resp, _, err := f.svc.Handle(context.Background(), mustQuery(t, "action=search&q=video+v00&pageSize=5"))
	require.NoError(t, err)
	assert.Len(t, resp.Videos, 5)
	assert.Equal(t, "tok-5", resp.PageToken)
	assert.True(t, resp.Paginated())
}

func TestServicePlaylistsAndLive(t *testing.T) {
	f := newServiceFixture(t)
	f.up.playlists = []engine.Playlist{{ID: "PLa", Title: "A", ItemCount: 20}, {ID: "PLb", Title: "B", ItemCount: 8}}
	ctx := context.Background()

	resp, _, err := f.svc.Handle(ctx, mustQuery(t, "action=playlists"))
	require.NoError(t, err)
	assert.Len(t, resp.Playlists, 2)

	resp, _, err = f.svc.Handle(ctx, mustQuery(t, "action=live"))
	require.NoError(t, err)
	assert.Nil(t, resp.Live)
	data, _ := json.Marshal(resp)
	assert.Contains(t, string(data), `"live":null`)

	// Cached "no broadcast" stays null on a hit.
	resp, hit, err := f.svc.Handle(ctx, mustQuery(t, "action=live"))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Nil(t, resp.Live)
	assert.EqualValues(t, 1, f.up.liveCalls.Load())
}

func TestServiceLiveOnAir(t *testing.T) {
	f := newServiceFixture(t)
	f.up.live = &engine.LiveStatus{ID: "live1", Title: "En vivo"}

	resp, _, err := f.svc.Handle(context.Background(), mustQuery(t, "action=live"))
	require.NoError(t, err)
	require.NotNil(t, resp.Live)
	assert.Equal(t, "https://www.youtube.com/watch?v=live1", resp.Live.URL)
	assert.Equal(t, "https://i.ytimg.com/vi/live1/hqdefault.jpg", resp.Live.Thumbnail)
}

func TestServiceEmbeddable(t *testing.T) {
	f := newServiceFixture(t)
	f.up.embed["v1"] = &engine.EmbedStatus{ID: "v1", Embeddable: true}

	resp, _, err := f.svc.Handle(context.Background(), mustQuery(t, "action=embeddable&videoId=v1"))
	require.NoError(t, err)
	require.NotNil(t, resp.Embeddable)
	assert.True(t, resp.Embeddable.Embeddable)
	assert.Zero(t, f.up.nameLookups.Load(), "no channel resolution for a video lookup")

	_, _, err = f.svc.Handle(context.Background(), mustQuery(t, "action=embeddable&videoId=nope"))
	assert.True(t, engine.IsKind(err, engine.KindVideoNotFound))
	assert.Equal(t, 404, engine.StatusOf(err))
}

func TestServiceEmbeddableChannelScan(t *testing.T) {
	f := newServiceFixture(t)
	f.up.embed["v002"] = &engine.EmbedStatus{ID: "v002", Title: "Blocked", Embeddable: false}

	resp, _, err := f.svc.Handle(context.Background(), mustQuery(t, "action=embeddable&channelId=@radio"))
	require.NoError(t, err)
	assert.Equal(t, testChannelID, resp.ChannelID)
	require.NotNil(t, resp.Total)
	assert.Equal(t, 45, *resp.Total)
	require.Len(t, resp.Videos, 45)
	assert.EqualValues(t, 1, f.up.pageFetches.Load(), "45 videos fit one search page")
	assert.EqualValues(t, 1, f.up.statusBatches.Load())

	assert.Equal(t, "v001", resp.Videos[0].ID)
	require.NotNil(t, resp.Videos[0].Embeddable)
	assert.True(t, *resp.Videos[0].Embeddable)
	require.NotNil(t, resp.Videos[1].Embeddable)
	assert.False(t, *resp.Videos[1].Embeddable)

	_, hit, err := f.svc.Handle(context.Background(), mustQuery(t, "action=embeddable&channelId=@radio"))
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestServiceEmbeddableScanIsBounded(t *testing.T) {
	f := newServiceFixture(t)
	f.up.listings[uploadsID(testChannelID)] = makeVideos(400)

	resp, _, err := f.svc.Handle(context.Background(), mustQuery(t, "action=embeddable&channelId="+testChannelID))
	require.NoError(t, err)
	assert.EqualValues(t, DefaultEmbedScanPages, f.up.pageFetches.Load())
	assert.Equal(t, DefaultEmbedScanPages*embedScanPageSize, *resp.Total)
	assert.Equal(t, "v250", resp.Videos[len(resp.Videos)-1].ID)
}

func TestServiceEmbeddableScanQuotaHasNoFallback(t *testing.T) {
	f := newServiceFixture(t)
	f.up.listErr = engine.ErrQuotaExceeded(nil)

	_, _, err := f.svc.Handle(context.Background(), mustQuery(t, "action=embeddable&channelId="+testChannelID))
	assert.True(t, engine.IsKind(err, engine.KindQuotaExceeded))
	assert.Zero(t, f.feed.calls.Load())
}

func TestServiceChannelNotFound(t *testing.T) {
	f := newServiceFixture(t)
	_, _, err := f.svc.Handle(context.Background(), mustQuery(t, "channelId=@nobody"))
	assert.True(t, engine.IsKind(err, engine.KindChannelNotFound))
	assert.Equal(t, 404, engine.StatusOf(err))
}

func TestServiceFallbackOnlyOnQuota(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		fallback bool
	}{
		{"quota", engine.ErrQuotaExceeded(nil), true},
		{"upstream", engine.ErrUpstream("backend", nil), false},
		{"invalid", engine.ErrInvalidRequest("bad token"), false},
		{"playlist missing", engine.ErrPlaylistNotFound("PLx", nil), false},
		{"channel missing", engine.ErrChannelNotFound(testChannelID), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t)
			f.up.listErr = tt.err

			resp, _, err := f.svc.Handle(context.Background(), mustQuery(t, "channelId="+testChannelID))
			if !tt.fallback {
				require.Error(t, err)
				assert.Same(t, tt.err, err, "errors other than quota propagate unchanged")
				assert.Zero(t, f.feed.calls.Load())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, engine.SourceFeed, resp.Source)
			assert.Equal(t, []string{"f1", "f2", "f3"}, ids(resp.Videos))
			assert.Equal(t, 1, resp.Page)
			assert.Equal(t, 1, resp.PageCount)
			assert.Nil(t, resp.NextPage)
			assert.Empty(t, resp.PageToken)
			assert.False(t, resp.Paginated())
		})
	}
}

func TestServiceFallbackFailureReturnsOriginalError(t *testing.T) {
	f := newServiceFixture(t)
	quota := engine.ErrQuotaExceeded(nil)
	f.up.listErr = quota
	f.feed.err = engine.ErrUpstream("feed down", nil)

	_, _, err := f.svc.Handle(context.Background(), mustQuery(t, "channelId="+testChannelID))
	assert.Same(t, quota, err)
	assert.Equal(t, 503, engine.StatusOf(err))
}

func TestServiceFallbackVariants(t *testing.T) {
	f := newServiceFixture(t)
	f.up.listErr = engine.ErrQuotaExceeded(nil)
	ctx := context.Background()

	resp, _, err := f.svc.Handle(ctx, mustQuery(t, "action=playlistVideos&playlistId=PLa"))
	require.NoError(t, err)
	assert.Equal(t, []string{"pf1"}, ids(resp.Videos))

	resp, _, err = f.svc.Handle(ctx, mustQuery(t, "action=search&q=MISA"))
	require.NoError(t, err)
	assert.Equal(t, []string{"f2"}, ids(resp.Videos), "search degrades to a filtered channel feed")
}

func TestServiceFallbackWhenResolutionHitsQuota(t *testing.T) {
	f := newServiceFixture(t)
	f.up.resolveErr = engine.ErrQuotaExceeded(nil)
	f.up.listErr = engine.ErrQuotaExceeded(nil)

	resp, _, err := f.svc.Handle(context.Background(), mustQuery(t, "channelId=@radio"))
	require.NoError(t, err)
	assert.Equal(t, testChannelID, resp.ChannelID, "handle page stands in for the lookups")
	assert.Equal(t, engine.SourceFeed, resp.Source)
}

func TestServiceFallbackCachedBriefly(t *testing.T) {
	f := newServiceFixture(t)
	f.up.listErr = engine.ErrQuotaExceeded(nil)
	ctx := context.Background()
	q := mustQuery(t, "channelId="+testChannelID)

	_, _, err := f.svc.Handle(ctx, q)
	require.NoError(t, err)
	_, hit, err := f.svc.Handle(ctx, q)
	require.NoError(t, err)
	assert.True(t, hit)

	f.up.listErr = nil
	f.clock.Advance(2 * time.Minute)
	resp, hit, err := f.svc.Handle(ctx, q)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, engine.SourceAPI, resp.Source, "service recovers once the degraded entry lapses")
}

func TestServiceFeed(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	resp, hit, err := f.svc.Feed(ctx, "@radio", 2)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, testChannelID, resp.ChannelID)
	assert.Equal(t, []string{"f1", "f2"}, ids(resp.Videos))
	assert.Zero(t, f.up.nameLookups.Load(), "the feed endpoint spends no quota")

	_, hit, err = f.svc.Feed(ctx, "radio", 2)
	require.NoError(t, err)
	assert.True(t, hit)

	_, _, err = f.svc.Feed(ctx, "@ghost", 2)
	assert.True(t, engine.IsKind(err, engine.KindChannelNotFound))
}

func TestServiceFeedLimitHonorsPageSizeMax(t *testing.T) {
	feed := &fakeFeed{videos: makeVideos(40)}
	handles := &fakeHandles{ids: map[string]string{"radio": testChannelID}}
	ctx := context.Background()

	opts := OptionsFromConfig(&engine.Config{PageSizeMax: 20})
	assert.Equal(t, 20, opts.PageSizeMax)
	svc := NewService(newFakeUpstream(), feed, handles, engine.NewCache(time.Minute), nil, opts)

	resp, _, err := svc.Feed(ctx, "@radio", 35)
	require.NoError(t, err)
	assert.EqualValues(t, 20, feed.lastLimit.Load())
	assert.Len(t, resp.Videos, 20)

	svc = NewService(newFakeUpstream(), feed, handles, engine.NewCache(time.Minute), nil, Options{})
	_, _, err = svc.Feed(ctx, "@radio", 80)
	require.NoError(t, err)
	assert.EqualValues(t, engine.DefaultPageSizeMax, feed.lastLimit.Load())
}
