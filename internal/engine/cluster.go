package engine

import (
	"log/slog"
	"math"
	"time"

	"github.com/amdiaz/rotor/internal/domain"
)

// Clusterer groups buy candidates by pairwise return correlation and caps
// how many may be bought from each cluster. The assignment is greedy in
// rank order: a candidate joins the first cluster whose representative
// (its first, best-ranked member) correlates above the threshold, else it
// seeds a new cluster. Greedy is an accepted approximation — it is fast and
// deterministic, which matters more here than globally optimal clusters.
type Clusterer struct {
	series        closesProvider
	threshold     float64
	window        int // trailing return window in observations
	maxPerCluster int
}

// NewClusterer builds the clusterer.
func NewClusterer(series closesProvider, threshold float64, window, maxPerCluster int) *Clusterer {
	return &Clusterer{series: series, threshold: threshold, window: window, maxPerCluster: maxPerCluster}
}

// SelectBuys assigns candidates (already in rank order) to clusters and
// picks at most maxPerCluster new buys per cluster, best rank first, up to
// slots buys in total. A candidate skipped by its cluster cap stays skipped
// even if slots remain — diversification beats raw rank here.
func (c *Clusterer) SelectBuys(date time.Time, candidates []domain.RankedSymbol, slots int) (selected []string, clusters []domain.ClusterInfo, clusterOf map[string]int) {
	clusterOf = make(map[string]int, len(candidates))
	if len(candidates) == 0 || slots <= 0 {
		return nil, nil, clusterOf
	}

	rets := make(map[string][]float64, len(candidates))
	for _, cand := range candidates {
		rets[cand.Symbol] = dailyReturns(c.series.Closes(cand.Symbol, date, c.window+1))
	}

	for _, cand := range candidates {
		idx := -1
		for i := range clusters {
			rep := clusters[i].Symbols[0]
			if correlation(rets[cand.Symbol], rets[rep]) > c.threshold {
				idx = i
				break
			}
		}
		if idx < 0 {
			clusters = append(clusters, domain.ClusterInfo{ID: len(clusters), Symbols: nil})
			idx = len(clusters) - 1
		}

		clusters[idx].Symbols = append(clusters[idx].Symbols, cand.Symbol)
		clusterOf[cand.Symbol] = idx

		if len(selected) >= slots {
			continue // keep clustering for the audit trail, stop buying
		}
		if clusters[idx].Taken >= c.maxPerCluster {
			slog.Debug("buy candidate skipped by cluster cap",
				"symbol", cand.Symbol, "cluster", idx, "taken", clusters[idx].Taken)
			continue
		}
		clusters[idx].Taken++
		selected = append(selected, cand.Symbol)
	}
	return selected, clusters, clusterOf
}

// dailyReturns converts a close series (oldest first) into simple returns.
func dailyReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	rets := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 {
			rets = append(rets, 0)
			continue
		}
		rets = append(rets, closes[i]/closes[i-1]-1.0)
	}
	return rets
}

// correlation is the Pearson coefficient over the overlapping tail of two
// return series. Insufficient overlap correlates as 0 — symbols with short
// history never cluster together, they just can't prove similarity.
func correlation(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0
	}
	a = a[len(a)-n:]
	b = b[len(b)-n:]

	var meanA, meanB float64
	for i := 0; i < n; i++ {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= float64(n)
	meanB /= float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da, db := a[i]-meanA, b[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}
