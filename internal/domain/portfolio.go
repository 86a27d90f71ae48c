package domain

import (
	"math"
	"sort"
	"time"
)

// EquityTolerance is the absolute slack allowed when checking the accounting
// identity cash + Σ(shares × price) == equity. Anything beyond this indicates
// a ledger defect, not float noise.
const EquityTolerance = 1e-6

// Portfolio is the full mutable state of the simulation: cash plus open
// positions keyed by symbol. Only the ledger mutates it; everything else
// works on copies.
type Portfolio struct {
	Cash      float64
	Positions map[string]Position
}

// NewPortfolio returns an all-cash portfolio.
func NewPortfolio(cash float64) Portfolio {
	return Portfolio{Cash: cash, Positions: make(map[string]Position)}
}

// Clone returns a deep copy. Trades are staged on a clone so a failed
// rebalance leaves the committed state untouched.
func (p Portfolio) Clone() Portfolio {
	c := Portfolio{Cash: p.Cash, Positions: make(map[string]Position, len(p.Positions))}
	for sym, pos := range p.Positions {
		c.Positions[sym] = pos
	}
	return c
}

// PositionsValue sums the market value of all positions at the given prices.
// A symbol missing from prices contributes its entry price — the caller is
// expected to provide a price for every held symbol, falling back to the
// last known close on data gaps.
func (p Portfolio) PositionsValue(prices map[string]float64) float64 {
	total := 0.0
	for sym, pos := range p.Positions {
		price, ok := prices[sym]
		if !ok {
			price = pos.EntryPrice
		}
		total += pos.MarketValue(price)
	}
	return total
}

// Equity is cash plus positions value at the given prices.
func (p Portfolio) Equity(prices map[string]float64) float64 {
	return p.Cash + p.PositionsValue(prices)
}

// Exposure is the invested fraction of equity, 0 for an all-cash portfolio.
func (p Portfolio) Exposure(prices map[string]float64) float64 {
	eq := p.Equity(prices)
	if eq <= 0 {
		return 0
	}
	return p.PositionsValue(prices) / eq
}

// Symbols returns the held symbols in ascending order, for deterministic
// iteration.
func (p Portfolio) Symbols() []string {
	syms := make([]string, 0, len(p.Positions))
	for sym := range p.Positions {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	return syms
}

// CheckIdentity verifies the accounting identity against a reported total.
func (p Portfolio) CheckIdentity(prices map[string]float64, reported float64) bool {
	return math.Abs(p.Equity(prices)-reported) <= EquityTolerance
}

// EquityPoint is one entry of the equity curve, appended after each
// rebalance date commits.
type EquityPoint struct {
	Date           time.Time
	Cash           float64
	PositionsValue float64
	TotalEquity    float64
}

// Snapshot is the serializable portfolio state persisted after each date so
// a run can resume from the latest committed rebalance without reprocessing
// history.
type Snapshot struct {
	Date      time.Time
	Cash      float64
	Positions []Position
}

// SnapshotOf captures a portfolio at a date, positions in symbol order.
func SnapshotOf(date time.Time, p Portfolio) Snapshot {
	snap := Snapshot{Date: date, Cash: p.Cash}
	for _, sym := range p.Symbols() {
		snap.Positions = append(snap.Positions, p.Positions[sym])
	}
	return snap
}

// Restore rebuilds a portfolio from a snapshot.
func (s Snapshot) Restore() Portfolio {
	p := NewPortfolio(s.Cash)
	for _, pos := range s.Positions {
		p.Positions[pos.Symbol] = pos
	}
	return p
}
