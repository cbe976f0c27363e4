package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite"
)

// Chains are stored one row per cursor. A NULL token at index Len is the
// terminal marker. Rows are never updated or deleted.

const chainSchema = `CREATE TABLE IF NOT EXISTS cursor_chains (
	chain_key TEXT    NOT NULL,
	idx       INTEGER NOT NULL,
	token     TEXT,
	PRIMARY KEY (chain_key, idx)
)`

// SQLiteChainStore keeps chains in a local SQLite file.
type SQLiteChainStore struct {
	db *sql.DB
}

// OpenSQLiteChainStore opens (or creates) the database at path.
func OpenSQLiteChainStore(ctx context.Context, path string) (*SQLiteChainStore, error) {
	if path == "" {
		return nil, errors.New("cursor store: sqlite path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cursor store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if _, err := db.ExecContext(ctx, chainSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cursor store: init schema: %w", err)
	}
	slog.Info("cursor store: sqlite opened", slog.String("path", path))
	return &SQLiteChainStore{db: db}, nil
}

func (s *SQLiteChainStore) Close() error { return s.db.Close() }

type rowQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadSQLiteChain(ctx context.Context, q rowQuerier, key string) (Chain, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT token FROM cursor_chains WHERE chain_key = ? ORDER BY idx`, key)
	if err != nil {
		return Chain{}, err
	}
	defer rows.Close()

	var c Chain
	for rows.Next() {
		var cur sql.NullString
		if err := rows.Scan(&cur); err != nil {
			return Chain{}, err
		}
		if !cur.Valid {
			c.Done = true
			break
		}
		c.Cursors = append(c.Cursors, cur.String)
	}
	if err := rows.Err(); err != nil {
		return Chain{}, err
	}
	if len(c.Cursors) == 0 {
		return startChain(), nil
	}
	return c, nil
}

func (s *SQLiteChainStore) Load(ctx context.Context, key string) (Chain, error) {
	return loadSQLiteChain(ctx, s.db, key)
}

func (s *SQLiteChainStore) Extend(ctx context.Context, key string, c Chain) (Chain, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Chain{}, err
	}
	defer tx.Rollback() //nolint:errcheck

	stored, err := loadSQLiteChain(ctx, tx, key)
	if err != nil {
		return Chain{}, err
	}
	merged := mergeChain(stored, c)
	for _, r := range chainRows(stored, merged) {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO cursor_chains (chain_key, idx, token) VALUES (?, ?, ?)`,
			key, r.idx, r.value()); err != nil {
			return Chain{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Chain{}, err
	}
	return merged, nil
}

// PostgresChainStore shares chains between instances.
type PostgresChainStore struct {
	pool *pgxpool.Pool
}

// ConnectPostgresChainStore creates a pgx pool and ensures the schema.
func ConnectPostgresChainStore(ctx context.Context, databaseURL string) (*PostgresChainStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("cursor store: parse postgres url: %w", err)
	}
	config.MaxConns = 4
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("cursor store: create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cursor store: ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, chainSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cursor store: init schema: %w", err)
	}
	slog.Info("cursor store: postgres connected", slog.String("addr", config.ConnConfig.Host))
	return &PostgresChainStore{pool: pool}, nil
}

func (s *PostgresChainStore) Close() error {
	s.pool.Close()
	return nil
}

type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadPostgresChain(ctx context.Context, q pgQuerier, key string) (Chain, error) {
	rows, err := q.Query(ctx,
		`SELECT token FROM cursor_chains WHERE chain_key = $1 ORDER BY idx`, key)
	if err != nil {
		return Chain{}, err
	}
	defer rows.Close()

	var c Chain
	for rows.Next() {
		var cur *string
		if err := rows.Scan(&cur); err != nil {
			return Chain{}, err
		}
		if cur == nil {
			c.Done = true
			break
		}
		c.Cursors = append(c.Cursors, *cur)
	}
	if err := rows.Err(); err != nil {
		return Chain{}, err
	}
	if len(c.Cursors) == 0 {
		return startChain(), nil
	}
	return c, nil
}

func (s *PostgresChainStore) Load(ctx context.Context, key string) (Chain, error) {
	return loadPostgresChain(ctx, s.pool, key)
}

func (s *PostgresChainStore) Extend(ctx context.Context, key string, c Chain) (Chain, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Chain{}, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	stored, err := loadPostgresChain(ctx, tx, key)
	if err != nil {
		return Chain{}, err
	}
	merged := mergeChain(stored, c)
	batch := &pgx.Batch{}
	for _, r := range chainRows(stored, merged) {
		batch.Queue(`INSERT INTO cursor_chains (chain_key, idx, token) VALUES ($1, $2, $3)
			ON CONFLICT (chain_key, idx) DO NOTHING`, key, r.idx, r.value())
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return Chain{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Chain{}, err
	}
	return merged, nil
}

type chainRow struct {
	idx    int
	cursor *string // nil marks the terminal
}

func (r chainRow) value() any {
	if r.cursor == nil {
		return nil
	}
	return *r.cursor
}

// chainRows returns the rows merged adds over stored. The start cursor row is
// rewritten when stored has nothing persisted yet; inserts ignore conflicts.
func chainRows(stored, merged Chain) []chainRow {
	from := len(stored.Cursors)
	if from <= 1 {
		from = 0
	}
	var rows []chainRow
	for i := from; i < len(merged.Cursors); i++ {
		cur := merged.Cursors[i]
		rows = append(rows, chainRow{idx: i, cursor: &cur})
	}
	if merged.Done && !stored.Done {
		rows = append(rows, chainRow{idx: len(merged.Cursors)})
	}
	return rows
}
