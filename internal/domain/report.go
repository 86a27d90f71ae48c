package domain

import "time"

// RankedSymbol is one row of the momentum ranking, rank 1 = strongest.
type RankedSymbol struct {
	Symbol string
	Score  float64
	Rank   int
}

// ForcedExit is a risk-manager decision that overrides rank-based retention.
type ForcedExit struct {
	Symbol string
	Reason TradeReason
}

// ClusterInfo describes one correlation cluster formed on a rebalance date
// and how many of its candidates were actually selected for buying.
type ClusterInfo struct {
	ID      int
	Symbols []string
	Taken   int
}

// RebalanceReport is the per-date audit trail: what was eligible, how it
// ranked, which clusters formed, what the risk manager forced out, and the
// trades that ultimately executed.
type RebalanceReport struct {
	Date           time.Time
	PoolSize       int
	EligibleCount  int
	Ranked         []RankedSymbol
	ForcedExits    []ForcedExit
	Clusters       []ClusterInfo
	SelectedBuys   []string
	BuysSuppressed bool // circuit breaker cooldown active
	Trades         []Trade
	Equity         EquityPoint
}

// RunStats aggregates a finished run for the summary report.
type RunStats struct {
	StartDate      time.Time
	EndDate        time.Time
	TradingDays    int
	InitialCapital float64
	FinalEquity    float64
	TotalReturn    float64 // fraction, 0.25 = +25%
	MaxDrawdown    float64 // fraction, peak-to-trough on the equity curve
	TotalTrades    int
	Buys           int
	Sells          int
	WinRate        float64 // fraction of closed round trips sold above entry
	AvgExposure    float64
	ForcedExits    map[TradeReason]int
}

// ComputeRunStats derives the summary from the equity curve and trade log.
func ComputeRunStats(initialCapital float64, equity []EquityPoint, trades []Trade) RunStats {
	stats := RunStats{
		InitialCapital: initialCapital,
		TradingDays:    len(equity),
		TotalTrades:    len(trades),
		ForcedExits:    make(map[TradeReason]int),
	}
	if len(equity) == 0 {
		return stats
	}

	stats.StartDate = equity[0].Date
	stats.EndDate = equity[len(equity)-1].Date
	stats.FinalEquity = equity[len(equity)-1].TotalEquity
	if initialCapital > 0 {
		stats.TotalReturn = stats.FinalEquity/initialCapital - 1.0
	}

	peak := equity[0].TotalEquity
	sumExposure := 0.0
	for _, pt := range equity {
		if pt.TotalEquity > peak {
			peak = pt.TotalEquity
		}
		if peak > 0 {
			dd := 1.0 - pt.TotalEquity/peak
			if dd > stats.MaxDrawdown {
				stats.MaxDrawdown = dd
			}
		}
		if pt.TotalEquity > 0 {
			sumExposure += pt.PositionsValue / pt.TotalEquity
		}
	}
	stats.AvgExposure = sumExposure / float64(len(equity))

	entryPrice := make(map[string]float64)
	wins, closed := 0, 0
	for _, tr := range trades {
		switch tr.Action {
		case ActionBuy:
			stats.Buys++
			entryPrice[tr.Symbol] = tr.Price
		case ActionSell:
			stats.Sells++
			switch tr.Reason {
			case ReasonATRStop, ReasonTimeStop, ReasonCircuitBreaker, ReasonRotationExcluded:
				stats.ForcedExits[tr.Reason]++
			}
			if entry, ok := entryPrice[tr.Symbol]; ok {
				closed++
				if tr.Price > entry {
					wins++
				}
				delete(entryPrice, tr.Symbol)
			}
		}
	}
	if closed > 0 {
		stats.WinRate = float64(wins) / float64(closed)
	}
	return stats
}
