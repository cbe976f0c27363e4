package catalog

import (
	"context"
	"log/slog"
	"slices"

	"github.com/anatolykoptev/go_catalog/internal/engine"
)

// materializePageSize is the upstream maximum page size, used when building
// the oldest-first list.
const materializePageSize = 50

// ListFetcher fetches one upstream page of a listing.
type ListFetcher func(ctx context.Context, cursor string, pageSize int) (*engine.ItemPage, error)

// PageResult is one numbered page.
type PageResult struct {
	Videos    []engine.Video
	Page      int
	PageCount int
	NextPage  *int
}

// Pager serves numbered pages over cursor-only listings.
type Pager struct {
	index     *CursorIndex
	oldestCap int
}

// NewPager returns a Pager whose oldest-first lists hold at most oldestCap items.
func NewPager(index *CursorIndex, oldestCap int) *Pager {
	if oldestCap <= 0 {
		oldestCap = engine.DefaultOldestFirstCap
	}
	return &Pager{index: index, oldestCap: oldestCap}
}

// Newest serves page of listingID newest first. A fresh key costs exactly
// page upstream fetches; pages inside the known chain cost one.
func (p *Pager) Newest(ctx context.Context, listingID string, page, pageSize int, fetch ListFetcher) (*PageResult, error) {
	key := ChainKey(listingID, engine.OrderNewest, pageSize)
	atCursor := func(ctx context.Context, cursor string) (*engine.ItemPage, error) {
		return fetch(ctx, cursor, pageSize)
	}

	cursor, chain, ok, err := p.index.Ensure(ctx, key, page, atCursor)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Past the end: the chain is terminated, its length is the page count.
		return &PageResult{Videos: []engine.Video{}, Page: page, PageCount: chain.Len()}, nil
	}

	items, err := atCursor(ctx, cursor)
	if err != nil {
		return nil, err
	}
	if _, err := p.index.Record(ctx, key, page, items.NextCursor); err != nil {
		slog.Warn("cursor chain record failed", slog.String("key", key), slog.Any("error", err))
	}

	res := &PageResult{Videos: items.Videos, Page: page}
	hasNext := items.NextCursor != ""
	if hasNext {
		next := page + 1
		res.NextPage = &next
	}
	res.PageCount = newestPageCount(items.Total, pageSize, page, hasNext)
	return res, nil
}

// newestPageCount trusts upstream's total estimate only where it agrees with
// the cursors: no successor means page is last.
func newestPageCount(total int64, pageSize, page int, hasNext bool) int {
	if !hasNext {
		return page
	}
	count := ceilDiv(int(total), pageSize)
	if count <= page {
		count = page + 1
	}
	return count
}

// Oldest serves page oldest first. Upstream has no reverse order, so the
// newest oldestCap items are materialized and reversed. Larger listings
// lose their oldest items in this mode.
func (p *Pager) Oldest(ctx context.Context, page, pageSize int, fetch ListFetcher) (*PageResult, error) {
	all, err := p.materialize(ctx, fetch)
	if err != nil {
		return nil, err
	}
	return slicePage(all, page, pageSize), nil
}

// materialize collects the newest oldestCap items and returns them oldest first.
func (p *Pager) materialize(ctx context.Context, fetch ListFetcher) ([]engine.Video, error) {
	var all []engine.Video
	cursor := ""
	for len(all) < p.oldestCap {
		items, err := fetch(ctx, cursor, min(materializePageSize, p.oldestCap-len(all)))
		if err != nil {
			return nil, err
		}
		all = append(all, items.Videos...)
		if items.NextCursor == "" {
			break
		}
		cursor = items.NextCursor
	}
	// Trim before reversing so the window stays anchored at the newest item.
	if len(all) > p.oldestCap {
		all = all[:p.oldestCap]
	}
	slices.Reverse(all)
	return all, nil
}

// slicePage cuts [(page-1)*pageSize, page*pageSize) out of all.
func slicePage(all []engine.Video, page, pageSize int) *PageResult {
	res := &PageResult{Page: page, PageCount: ceilDiv(len(all), pageSize), Videos: []engine.Video{}}
	start := (page - 1) * pageSize
	if start < len(all) {
		end := min(start+pageSize, len(all))
		res.Videos = all[start:end]
	}
	if page < res.PageCount {
		next := page + 1
		res.NextPage = &next
	}
	return res
}

func ceilDiv(n, d int) int {
	if n <= 0 || d <= 0 {
		return 0
	}
	return (n + d - 1) / d
}
