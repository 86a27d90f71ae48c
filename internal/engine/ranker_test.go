package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amdiaz/rotor/internal/adapters/series"
	"github.com/amdiaz/rotor/internal/domain"
	"github.com/amdiaz/rotor/internal/strategy"
)

func signalFixture(t *testing.T, obs map[string]domain.Observation) (*series.Memory, strategy.Signal, time.Time) {
	t.Helper()
	d := day(2024, 1, 15)
	m := series.NewMemory()
	for sym, o := range obs {
		m.Add(sym, d, o)
	}
	return m, strategy.NewSeriesSignal(m), d
}

func TestRanker_DescendingByScore(t *testing.T) {
	_, sig, d := signalFixture(t, map[string]domain.Observation{
		"AAA": {Close: 100, TrendOn: true, Momentum: 0.10},
		"BBB": {Close: 100, TrendOn: true, Momentum: 0.30},
		"CCC": {Close: 100, TrendOn: true, Momentum: 0.20},
	})

	ranked := NewRanker(sig).Rank(d, []string{"AAA", "BBB", "CCC"})
	require.Len(t, ranked, 3)
	assert.Equal(t, domain.RankedSymbol{Symbol: "BBB", Score: 0.30, Rank: 1}, ranked[0])
	assert.Equal(t, "CCC", ranked[1].Symbol)
	assert.Equal(t, "AAA", ranked[2].Symbol)
	assert.Equal(t, 3, ranked[2].Rank)
}

func TestRanker_TiesBreakBySymbol(t *testing.T) {
	_, sig, d := signalFixture(t, map[string]domain.Observation{
		"ZZZ": {Close: 100, TrendOn: true, Momentum: 0.2},
		"AAA": {Close: 100, TrendOn: true, Momentum: 0.2},
	})

	ranked := NewRanker(sig).Rank(d, []string{"AAA", "ZZZ"})
	require.Len(t, ranked, 2)
	assert.Equal(t, "AAA", ranked[0].Symbol)
	assert.Equal(t, "ZZZ", ranked[1].Symbol)
}

func TestRanker_DropsUnscoredSymbols(t *testing.T) {
	_, sig, d := signalFixture(t, map[string]domain.Observation{
		"AAA": {Close: 100, TrendOn: true, Momentum: 0.2},
	})

	ranked := NewRanker(sig).Rank(d, []string{"AAA", "GONE"})
	require.Len(t, ranked, 1)
	assert.Equal(t, "AAA", ranked[0].Symbol)
}

func TestEligibility_Filters(t *testing.T) {
	m, sig, d := signalFixture(t, map[string]domain.Observation{
		"UP":    {Close: 100, TrendOn: true, Momentum: 0.2, Volatility: 0.1},
		"DOWN":  {Close: 100, TrendOn: false, Momentum: 0.2, Volatility: 0.1},
		"DARK":  {Close: 0},
		"YOUNG": {Close: 100, TrendOn: true, Momentum: 0.2, Volatility: 0.1},
	})
	// UP gets three days of history, YOUNG keeps only today's.
	m.Add("UP", day(2024, 1, 13), domain.Observation{Close: 99})
	m.Add("UP", day(2024, 1, 14), domain.Observation{Close: 99})

	obs := map[string]domain.Observation{}
	for _, sym := range []string{"UP", "DOWN", "DARK", "YOUNG"} {
		if o, ok := m.Get(sym, d); ok {
			obs[sym] = o
		}
	}

	e := NewEligibility(sig, m, 3)
	eligible := e.Eligible(d, pool("UP", "DOWN", "DARK", "YOUNG", "ABSENT"), obs)
	assert.Equal(t, []string{"UP"}, eligible)
}

func TestEligibility_SortedOutput(t *testing.T) {
	m, sig, d := signalFixture(t, map[string]domain.Observation{
		"ZZZ": {Close: 100, TrendOn: true, Momentum: 0.2, Volatility: 0.1},
		"AAA": {Close: 100, TrendOn: true, Momentum: 0.2, Volatility: 0.1},
	})

	obs := map[string]domain.Observation{}
	for _, sym := range []string{"ZZZ", "AAA"} {
		o, ok := m.Get(sym, d)
		require.True(t, ok)
		obs[sym] = o
	}

	e := NewEligibility(sig, m, 1)
	assert.Equal(t, []string{"AAA", "ZZZ"}, e.Eligible(d, pool("ZZZ", "AAA"), obs))
}
