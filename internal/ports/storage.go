package ports

import (
	"context"

	"github.com/amdiaz/rotor/internal/domain"
)

// Storage persists the audit trail of a run: trades, equity curve, per-date
// diagnostics summaries and portfolio snapshots for resume.
type Storage interface {
	// SaveRebalance persists everything a committed rebalance date produced.
	SaveRebalance(ctx context.Context, report domain.RebalanceReport, snap domain.Snapshot) error

	// LatestSnapshot returns the most recent persisted portfolio state.
	// ok=false means no snapshot exists yet (fresh run).
	LatestSnapshot(ctx context.Context) (domain.Snapshot, bool, error)

	// Trades returns the full trade log in execution order.
	Trades(ctx context.Context) ([]domain.Trade, error)

	// EquityCurve returns the equity curve in date order.
	EquityCurve(ctx context.Context) ([]domain.EquityPoint, error)

	// Close shuts the database down cleanly.
	Close() error
}
