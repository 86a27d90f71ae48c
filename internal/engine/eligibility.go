package engine

import (
	"log/slog"
	"sort"
	"time"

	"github.com/amdiaz/rotor/internal/domain"
	"github.com/amdiaz/rotor/internal/strategy"
)

// Eligibility combines rotation-pool membership, trend state and the
// minimum-history gate into the per-date eligible set.
type Eligibility struct {
	signal     strategy.Signal
	series     closesProvider
	minHistory int
}

// closesProvider is the slice of SeriesProvider eligibility needs.
type closesProvider interface {
	Closes(symbol string, end time.Time, n int) []float64
}

// NewEligibility builds the filter.
func NewEligibility(signal strategy.Signal, series closesProvider, minHistory int) *Eligibility {
	return &Eligibility{signal: signal, series: series, minHistory: minHistory}
}

// Eligible returns the symbols tradable at date, in ascending symbol order.
// obs carries the already-gathered observations for the pool; symbols with
// missing or invalid data are excluded silently — absence of data is a
// normal condition, not an error.
func (e *Eligibility) Eligible(date time.Time, pool map[string]struct{}, obs map[string]domain.Observation) []string {
	syms := make([]string, 0, len(pool))
	for sym := range pool {
		syms = append(syms, sym)
	}
	sort.Strings(syms)

	eligible := make([]string, 0, len(syms))
	for _, sym := range syms {
		o, ok := obs[sym]
		if !ok || !o.Valid() {
			continue
		}

		on, ok := e.signal.TrendState(sym, date)
		if !ok || !on {
			continue
		}

		if n := len(e.series.Closes(sym, date, e.minHistory)); n < e.minHistory {
			slog.Debug("symbol below minimum history", "symbol", sym, "have", n, "need", e.minHistory)
			continue
		}

		eligible = append(eligible, sym)
	}
	return eligible
}
