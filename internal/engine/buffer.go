package engine

import (
	"sort"

	"github.com/amdiaz/rotor/internal/domain"
)

// BufferSelector converts a ranking into buy/hold/sell decisions with
// asymmetric thresholds: a symbol enters only at rank ≤ buyTopN but is
// retained until its rank falls past holdUntilRank. The band between the
// two is the anti-churn hysteresis — a held symbol drifting to rank 12 with
// buyTopN=10, holdUntilRank=15 stays; at 16 it goes.
type BufferSelector struct {
	buyTopN       int
	holdUntilRank int
}

// PlannedSell is a sell decision with the reason that drove it.
type PlannedSell struct {
	Symbol string
	Reason domain.TradeReason
}

// NewBufferSelector builds the selector. Config.Validate has already
// enforced buyTopN ≤ holdUntilRank.
func NewBufferSelector(buyTopN, holdUntilRank int) *BufferSelector {
	return &BufferSelector{buyTopN: buyTopN, holdUntilRank: holdUntilRank}
}

// Decide splits the held set into retained holds and sells, and returns the
// buy candidates (ranked, not held, rank ≤ buyTopN) in rank order. held must
// already exclude positions the risk manager forced out — forced exits win
// regardless of rank and never reach this state machine.
func (b *BufferSelector) Decide(ranked []domain.RankedSymbol, held map[string]bool) (holds []string, sells []PlannedSell, candidates []domain.RankedSymbol) {
	rankOf := make(map[string]int, len(ranked))
	for _, rs := range ranked {
		rankOf[rs.Symbol] = rs.Rank
	}

	heldSyms := make([]string, 0, len(held))
	for sym := range held {
		heldSyms = append(heldSyms, sym)
	}
	sort.Strings(heldSyms)

	for _, sym := range heldSyms {
		rank, ok := rankOf[sym]
		switch {
		case !ok:
			// Dropped out of the eligible set entirely (trend off, data gone).
			sells = append(sells, PlannedSell{Symbol: sym, Reason: domain.ReasonTrendExit})
		case rank > b.holdUntilRank:
			sells = append(sells, PlannedSell{Symbol: sym, Reason: domain.ReasonRankExit})
		default:
			holds = append(holds, sym)
		}
	}

	for _, rs := range ranked {
		if rs.Rank > b.buyTopN {
			break
		}
		if !held[rs.Symbol] {
			candidates = append(candidates, rs)
		}
	}
	return holds, sells, candidates
}

// Capacity is the maximum number of positions the portfolio may hold.
func (b *BufferSelector) Capacity() int {
	return b.buyTopN
}
