package engine

import (
	"sort"
	"time"

	"github.com/amdiaz/rotor/internal/domain"
	"github.com/amdiaz/rotor/internal/strategy"
)

// Ranker orders the eligible set by momentum score. The scores come from
// the signal provider; the ranker only guarantees deterministic ordering:
// descending by score, ties broken by symbol ascending so identical inputs
// always produce identical rankings.
type Ranker struct {
	signal strategy.Signal
}

// NewRanker builds a ranker over the given signal.
func NewRanker(signal strategy.Signal) *Ranker {
	return &Ranker{signal: signal}
}

// Rank scores the eligible symbols and returns them rank 1 = strongest.
// Symbols the signal has no score for are dropped.
func (r *Ranker) Rank(date time.Time, eligible []string) []domain.RankedSymbol {
	ranked := make([]domain.RankedSymbol, 0, len(eligible))
	for _, sym := range eligible {
		score, ok := r.signal.Score(sym, date)
		if !ok {
			continue
		}
		ranked = append(ranked, domain.RankedSymbol{Symbol: sym, Score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Symbol < ranked[j].Symbol
	})

	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}
