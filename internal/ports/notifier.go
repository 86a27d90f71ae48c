package ports

import (
	"context"

	"github.com/amdiaz/rotor/internal/domain"
)

// Notifier reports simulation output to the outside (console, in practice).
type Notifier interface {
	// Rebalance reports one committed rebalance date.
	Rebalance(ctx context.Context, report domain.RebalanceReport) error

	// Summary reports the finished run.
	Summary(ctx context.Context, stats domain.RunStats, trades []domain.Trade, equity []domain.EquityPoint) error
}
