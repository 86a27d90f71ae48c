package storage

// sqlite.go — audit-trail persistence for simulation runs.
//
// Layout:
//   - `trades`: one row per executed trade, rowid preserves execution order.
//   - `equity`: one row per rebalance date (upsert, so resumed runs that
//     re-commit a date overwrite instead of duplicating).
//   - `rebalances`: light per-date diagnostics summary.
//   - `snapshots` + `snapshot_positions`: full portfolio state per date;
//     LatestSnapshot picks the newest so a run can resume without
//     reprocessing history.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/amdiaz/rotor/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id     TEXT PRIMARY KEY,
    date   DATETIME NOT NULL,
    symbol TEXT     NOT NULL,
    action TEXT     NOT NULL,
    shares REAL     NOT NULL,
    price  REAL     NOT NULL,
    reason TEXT     NOT NULL
);

CREATE TABLE IF NOT EXISTS equity (
    date            DATETIME PRIMARY KEY,
    cash            REAL NOT NULL,
    positions_value REAL NOT NULL,
    total_equity    REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS rebalances (
    date         DATETIME PRIMARY KEY,
    pool_size    INTEGER NOT NULL,
    eligible     INTEGER NOT NULL,
    forced_exits INTEGER NOT NULL,
    clusters     INTEGER NOT NULL,
    buys         INTEGER NOT NULL,
    suppressed   INTEGER NOT NULL,
    trades       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
    date DATETIME PRIMARY KEY,
    cash REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_positions (
    snapshot_date DATETIME NOT NULL,
    symbol        TEXT     NOT NULL,
    shares        REAL     NOT NULL,
    entry_date    DATETIME NOT NULL,
    entry_price   REAL     NOT NULL,
    high_water    REAL     NOT NULL,
    cluster_id    INTEGER  NOT NULL,
    PRIMARY KEY (snapshot_date, symbol)
);

CREATE INDEX IF NOT EXISTS idx_trades_date ON trades(date);
`

// SQLiteStorage implements ports.Storage using SQLite (pure Go, no CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) the database at the given path and
// applies the schema. Use ":memory:" for tests.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// SaveRebalance persists one committed rebalance date atomically: trades,
// equity point, diagnostics summary and the portfolio snapshot.
func (s *SQLiteStorage) SaveRebalance(ctx context.Context, report domain.RebalanceReport, snap domain.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveRebalance: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, tr := range report.Trades {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO trades (id, date, symbol, action, shares, price, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			tr.ID, tr.Date.UTC(), tr.Symbol, string(tr.Action), tr.Shares, tr.Price, string(tr.Reason),
		); err != nil {
			return fmt.Errorf("storage.SaveRebalance: insert trade %s: %w", tr.ID, err)
		}
	}

	eq := report.Equity
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO equity (date, cash, positions_value, total_equity)
		VALUES (?, ?, ?, ?)`,
		eq.Date.UTC(), eq.Cash, eq.PositionsValue, eq.TotalEquity,
	); err != nil {
		return fmt.Errorf("storage.SaveRebalance: upsert equity: %w", err)
	}

	suppressed := 0
	if report.BuysSuppressed {
		suppressed = 1
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO rebalances (date, pool_size, eligible, forced_exits, clusters, buys, suppressed, trades)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.Date.UTC(), report.PoolSize, report.EligibleCount, len(report.ForcedExits),
		len(report.Clusters), len(report.SelectedBuys), suppressed, len(report.Trades),
	); err != nil {
		return fmt.Errorf("storage.SaveRebalance: upsert rebalance: %w", err)
	}

	if err := saveSnapshot(ctx, tx, snap); err != nil {
		return fmt.Errorf("storage.SaveRebalance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveRebalance: commit: %w", err)
	}
	return nil
}

func saveSnapshot(ctx context.Context, tx *sql.Tx, snap domain.Snapshot) error {
	day := snap.Date.UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO snapshots (date, cash) VALUES (?, ?)`, day, snap.Cash,
	); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM snapshot_positions WHERE snapshot_date = ?`, day,
	); err != nil {
		return fmt.Errorf("clear snapshot positions: %w", err)
	}

	for _, pos := range snap.Positions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO snapshot_positions
				(snapshot_date, symbol, shares, entry_date, entry_price, high_water, cluster_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			day, pos.Symbol, pos.Shares, pos.EntryDate.UTC(), pos.EntryPrice, pos.HighWaterMark, pos.ClusterID,
		); err != nil {
			return fmt.Errorf("insert snapshot position %s: %w", pos.Symbol, err)
		}
	}
	return nil
}

// LatestSnapshot returns the newest persisted portfolio state.
func (s *SQLiteStorage) LatestSnapshot(ctx context.Context) (domain.Snapshot, bool, error) {
	var snap domain.Snapshot
	var dateStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT date, cash FROM snapshots ORDER BY date DESC LIMIT 1`,
	).Scan(&dateStr, &snap.Cash)
	if err == sql.ErrNoRows {
		return domain.Snapshot{}, false, nil
	}
	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("storage.LatestSnapshot: %w", err)
	}
	snap.Date, err = parseDate(dateStr)
	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("storage.LatestSnapshot: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, shares, entry_date, entry_price, high_water, cluster_id
		FROM snapshot_positions WHERE snapshot_date = ? ORDER BY symbol`,
		snap.Date.UTC(),
	)
	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("storage.LatestSnapshot: positions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pos domain.Position
		var entryStr string
		if err := rows.Scan(&pos.Symbol, &pos.Shares, &entryStr, &pos.EntryPrice, &pos.HighWaterMark, &pos.ClusterID); err != nil {
			return domain.Snapshot{}, false, fmt.Errorf("storage.LatestSnapshot: scan position: %w", err)
		}
		if pos.EntryDate, err = parseDate(entryStr); err != nil {
			return domain.Snapshot{}, false, fmt.Errorf("storage.LatestSnapshot: %w", err)
		}
		snap.Positions = append(snap.Positions, pos)
	}
	return snap, true, rows.Err()
}

// Trades returns the trade log in execution order.
func (s *SQLiteStorage) Trades(ctx context.Context) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, symbol, action, shares, price, reason
		FROM trades ORDER BY rowid`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.Trades: query: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var tr domain.Trade
		var dateStr, action, reason string
		if err := rows.Scan(&tr.ID, &dateStr, &tr.Symbol, &action, &tr.Shares, &tr.Price, &reason); err != nil {
			return nil, fmt.Errorf("storage.Trades: scan row: %w", err)
		}
		if tr.Date, err = parseDate(dateStr); err != nil {
			return nil, fmt.Errorf("storage.Trades: %w", err)
		}
		tr.Action = domain.TradeAction(action)
		tr.Reason = domain.TradeReason(reason)
		trades = append(trades, tr)
	}
	return trades, rows.Err()
}

// EquityCurve returns the equity curve in date order.
func (s *SQLiteStorage) EquityCurve(ctx context.Context) ([]domain.EquityPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, cash, positions_value, total_equity
		FROM equity ORDER BY date`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.EquityCurve: query: %w", err)
	}
	defer rows.Close()

	var curve []domain.EquityPoint
	for rows.Next() {
		var pt domain.EquityPoint
		var dateStr string
		if err := rows.Scan(&dateStr, &pt.Cash, &pt.PositionsValue, &pt.TotalEquity); err != nil {
			return nil, fmt.Errorf("storage.EquityCurve: scan row: %w", err)
		}
		if pt.Date, err = parseDate(dateStr); err != nil {
			return nil, fmt.Errorf("storage.EquityCurve: %w", err)
		}
		curve = append(curve, pt)
	}
	return curve, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// parseDate handles the timestamp formats the sqlite driver hands back.
func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}
