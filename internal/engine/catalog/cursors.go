package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/anatolykoptev/go_catalog/internal/engine"
)

// Chain is the memoized cursor sequence of one listing. Cursors[i] fetches
// page i+1; Cursors[0] is always the empty start cursor. Done records that
// the last page reported no successor, so the chain can never grow again.
type Chain struct {
	Cursors []string
	Done    bool
}

// Len is the number of pages whose cursor is known.
func (c Chain) Len() int { return len(c.Cursors) }

// Cursor returns the cursor of page (1-based).
func (c Chain) Cursor(page int) (string, bool) {
	if page < 1 || page > len(c.Cursors) {
		return "", false
	}
	return c.Cursors[page-1], true
}

func (c Chain) clone() Chain {
	return Chain{Cursors: append([]string(nil), c.Cursors...), Done: c.Done}
}

// grow appends the successor of the chain's last page.
func (c Chain) grow(next string) Chain {
	out := c.clone()
	if next == "" {
		out.Done = true
	} else {
		out.Cursors = append(out.Cursors, next)
	}
	return out
}

func startChain() Chain { return Chain{Cursors: []string{""}} }

// mergeChain folds proposed into stored without ever shrinking it or
// extending it past a recorded terminal.
func mergeChain(stored, proposed Chain) Chain {
	if len(stored.Cursors) == 0 {
		stored = startChain()
	}
	if stored.Done {
		return stored.clone()
	}
	out := stored.clone()
	if len(proposed.Cursors) > len(out.Cursors) {
		out.Cursors = append(out.Cursors, proposed.Cursors[len(out.Cursors):]...)
	}
	if proposed.Done && len(proposed.Cursors) >= len(stored.Cursors) {
		out.Done = true
	}
	return out
}

// ChainKey identifies a cursor chain: (listing, order, pageSize).
func ChainKey(listingID string, order engine.Order, pageSize int) string {
	return fmt.Sprintf("%s|%s|%d", listingID, order, pageSize)
}

// ChainStore persists cursor chains. Extend is append-only and returns the
// chain as stored after the merge.
type ChainStore interface {
	Load(ctx context.Context, key string) (Chain, error)
	Extend(ctx context.Context, key string, c Chain) (Chain, error)
	Close() error
}

// MemoryChainStore keeps chains for the life of the process.
type MemoryChainStore struct {
	mu     sync.Mutex
	chains map[string]Chain
}

func NewMemoryChainStore() *MemoryChainStore {
	return &MemoryChainStore{chains: make(map[string]Chain)}
}

func (m *MemoryChainStore) Load(_ context.Context, key string) (Chain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chains[key]
	if !ok {
		return startChain(), nil
	}
	return c.clone(), nil
}

func (m *MemoryChainStore) Extend(_ context.Context, key string, c Chain) (Chain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	merged := mergeChain(m.chains[key], c)
	m.chains[key] = merged
	return merged.clone(), nil
}

func (m *MemoryChainStore) Close() error { return nil }

// OpenChainStore picks a store from a DSN: "" keeps chains in memory,
// "sqlite://<path>" and "postgres://..." persist them.
func OpenChainStore(ctx context.Context, dsn string) (ChainStore, error) {
	switch {
	case dsn == "":
		return NewMemoryChainStore(), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return OpenSQLiteChainStore(ctx, strings.TrimPrefix(dsn, "sqlite://"))
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return ConnectPostgresChainStore(ctx, dsn)
	}
	return nil, fmt.Errorf("cursor store: unsupported dsn scheme in %q", dsn)
}

// CursorIndex gives random access by page number over a forward-only cursor API.
type CursorIndex struct {
	store ChainStore
}

func NewCursorIndex(store ChainStore) *CursorIndex {
	if store == nil {
		store = NewMemoryChainStore()
	}
	return &CursorIndex{store: store}
}

// PageFetcher fetches one upstream page at cursor.
type PageFetcher func(ctx context.Context, cursor string) (*engine.ItemPage, error)

// Ensure extends the chain at key until it knows the cursor of page target,
// issuing one upstream fetch per missing link. ok is false when the listing
// ends before target. No lock is held across fetches; concurrent builders
// may duplicate work but the store merge keeps the chain consistent.
func (x *CursorIndex) Ensure(ctx context.Context, key string, target int, fetch PageFetcher) (cursor string, chain Chain, ok bool, err error) {
	chain, err = x.store.Load(ctx, key)
	if err != nil {
		return "", Chain{}, false, fmt.Errorf("load cursor chain: %w", err)
	}
	for chain.Len() < target && !chain.Done {
		last := chain.Cursors[chain.Len()-1]
		page, err := fetch(ctx, last)
		if err != nil {
			return "", chain, false, err
		}
		chain, err = x.store.Extend(ctx, key, chain.grow(page.NextCursor))
		if err != nil {
			return "", chain, false, fmt.Errorf("extend cursor chain: %w", err)
		}
		engine.IncrChainExtensions()
		slog.Debug("cursor chain extended", slog.String("key", key), slog.Int("len", chain.Len()), slog.Bool("done", chain.Done))
	}
	cursor, ok = chain.Cursor(target)
	return cursor, chain, ok, nil
}

// Record stores the successor of page, learned from fetching it. It is a
// no-op when the chain already knows more than page.
func (x *CursorIndex) Record(ctx context.Context, key string, page int, next string) (Chain, error) {
	chain, err := x.store.Load(ctx, key)
	if err != nil {
		return Chain{}, fmt.Errorf("load cursor chain: %w", err)
	}
	if chain.Done || chain.Len() != page {
		return chain, nil
	}
	chain, err = x.store.Extend(ctx, key, chain.grow(next))
	if err != nil {
		return chain, fmt.Errorf("extend cursor chain: %w", err)
	}
	return chain, nil
}

// Load returns the current chain at key.
func (x *CursorIndex) Load(ctx context.Context, key string) (Chain, error) {
	return x.store.Load(ctx, key)
}
