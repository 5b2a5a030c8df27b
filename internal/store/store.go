// Package store persists ticks to a single on-disk SQLite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"livequant/internal/market"
	"livequant/internal/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS ticks (
	symbol TEXT NOT NULL,
	ts_ms  INTEGER NOT NULL,
	price  REAL NOT NULL,
	qty    REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ticks_symbol_ts ON ticks (symbol, ts_ms);
`

// TickStore is an append-only tick table. Writers are serialized internally;
// readers run concurrently and never observe a partial batch (appends are
// transactional). Duplicate ticks are tolerated, not deduplicated.
type TickStore struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// Open creates or opens the database file at path and ensures the schema.
// Missing parent directories are created.
func Open(path string) (*TickStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open tick store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure tick schema: %w", err)
	}
	return &TickStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *TickStore) Close() error {
	return s.db.Close()
}

// Append inserts a batch of ticks in one transaction, preserving slice order.
// An empty batch is a no-op.
func (s *TickStore) Append(ctx context.Context, ticks []market.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO ticks (symbol, ts_ms, price, qty) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare append: %w", err)
	}
	defer stmt.Close()

	for _, tk := range ticks {
		if _, err := stmt.ExecContext(ctx, tk.Symbol, tk.Ts.UnixMilli(), tk.Price, tk.Qty); err != nil {
			tx.Rollback()
			return fmt.Errorf("append tick %s@%d: %w", tk.Symbol, tk.Ts.UnixMilli(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	metrics.StoredTicksTotal.Add(float64(len(ticks)))
	return nil
}

// Query returns all ticks for symbol within [start, end] inclusive, ordered by
// timestamp with insertion order as tiebreak. An empty range yields an empty
// slice, not an error.
func (s *TickStore) Query(ctx context.Context, symbol string, start, end time.Time) ([]market.Tick, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT symbol, ts_ms, price, qty FROM ticks WHERE symbol = ? AND ts_ms >= ? AND ts_ms <= ? ORDER BY ts_ms, rowid",
		symbol, start.UnixMilli(), end.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	var out []market.Tick
	for rows.Next() {
		var (
			sym   string
			tsMs  int64
			price float64
			qty   float64
		)
		if err := rows.Scan(&sym, &tsMs, &price, &qty); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		out = append(out, market.Tick{Symbol: sym, Ts: time.UnixMilli(tsMs).UTC(), Price: price, Qty: qty})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticks: %w", err)
	}
	return out, nil
}

// Count reports the total number of stored ticks for a symbol.
func (s *TickStore) Count(ctx context.Context, symbol string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ticks WHERE symbol = ?", symbol).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count ticks: %w", err)
	}
	return n, nil
}
