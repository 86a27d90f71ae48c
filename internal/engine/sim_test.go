package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amdiaz/rotor/internal/adapters/series"
	"github.com/amdiaz/rotor/internal/adapters/storage"
	"github.com/amdiaz/rotor/internal/domain"
)

// simConfig is a small deterministic setup: every gate wide open except the
// one under test, single worker so runs are reproducible byte for byte.
func simConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialCapital = 100_000
	cfg.TradingCostRate = 0
	cfg.MinHistory = 1
	cfg.Workers = 1
	cfg.BuyTopN = 3
	cfg.HoldUntilRank = 3
	cfg.CorrelationThreshold = 0.95
	cfg.CorrelationWindow = 2
	cfg.MaxPerCluster = 3
	cfg.MaxPositionSize = 0.34
	cfg.MaxTotalExposure = 1.0
	cfg.TargetRiskPerPosition = 0
	cfg.ATRMultiplier = 2.0
	cfg.TimeStopDays = 0
	cfg.CircuitBreakerThreshold = 0.99 // effectively off
	cfg.CircuitBreakerCooldownDays = 1
	return cfg
}

// addDays feeds one observation per date with trend on and flat indicators.
func addDays(m *series.Memory, sym string, closes map[time.Time]float64, momentum float64) {
	for d, c := range closes {
		m.Add(sym, d, domain.Observation{
			Close: c, TrendOn: true, Momentum: momentum, Volatility: 0.1, ATR: 0,
		})
	}
}

func mustSchedule(t *testing.T, entries ...ScheduleEntry) *Schedule {
	t.Helper()
	s, err := NewSchedule(entries)
	require.NoError(t, err)
	return s
}

func tradesOn(trades []domain.Trade, d time.Time) []domain.Trade {
	var out []domain.Trade
	for _, tr := range trades {
		if tr.Date.Equal(d) {
			out = append(out, tr)
		}
	}
	return out
}

func TestSim_RotationExclusionSellsDroppedSymbol(t *testing.T) {
	d0, d1, d2 := day(2024, 1, 1), day(2024, 1, 2), day(2024, 1, 3)
	m := series.NewMemory()
	addDays(m, "AAA", map[time.Time]float64{d0: 100, d1: 101, d2: 102}, 0.3)
	addDays(m, "BBB", map[time.Time]float64{d0: 50, d1: 51, d2: 52}, 0.2)
	addDays(m, "CCC", map[time.Time]float64{d0: 20, d1: 21, d2: 22}, 0.1)

	sched := mustSchedule(t,
		ScheduleEntry{Date: d0, Symbols: []string{"AAA", "BBB"}},
		ScheduleEntry{Date: d2, Symbols: []string{"BBB", "CCC"}},
	)

	cfg := simConfig()
	cfg.BuyTopN, cfg.HoldUntilRank = 2, 2
	sim, err := New(cfg, m, nil, sched, nil, nil)
	require.NoError(t, err)

	res, err := sim.Run(context.Background(), []time.Time{d0, d1, d2})
	require.NoError(t, err)

	// Day 0: both pool members bought.
	day0 := tradesOn(res.Trades, d0)
	require.Len(t, day0, 2)
	for _, tr := range day0 {
		assert.Equal(t, domain.ActionBuy, tr.Action)
	}

	// Day 1: pool unchanged, both held, nothing to do.
	assert.Empty(t, tradesOn(res.Trades, d1))

	// Day 2: AAA left the pool — forced out — and CCC takes the free slot.
	day2 := tradesOn(res.Trades, d2)
	require.Len(t, day2, 2)
	assert.Equal(t, domain.ActionSell, day2[0].Action)
	assert.Equal(t, "AAA", day2[0].Symbol)
	assert.Equal(t, domain.ReasonRotationExcluded, day2[0].Reason)
	assert.Equal(t, domain.ActionBuy, day2[1].Action)
	assert.Equal(t, "CCC", day2[1].Symbol)
}

func TestSim_CircuitBreakerLiquidatesAndCoolsDown(t *testing.T) {
	d0, d1, d2 := day(2024, 1, 1), day(2024, 1, 2), day(2024, 1, 3)
	m := series.NewMemory()
	// 6% portfolio drop on d1 against a 5% threshold.
	addDays(m, "AAA", map[time.Time]float64{d0: 100, d1: 94, d2: 94}, 0.3)
	addDays(m, "BBB", map[time.Time]float64{d0: 50, d1: 47, d2: 47}, 0.2)
	addDays(m, "CCC", map[time.Time]float64{d0: 20, d1: 18.8, d2: 18.8}, 0.1)

	sched := mustSchedule(t, ScheduleEntry{Date: d0, Symbols: []string{"AAA", "BBB", "CCC"}})

	cfg := simConfig()
	cfg.CircuitBreakerThreshold = 0.05
	sim, err := New(cfg, m, nil, sched, nil, nil)
	require.NoError(t, err)

	res, err := sim.Run(context.Background(), []time.Time{d0, d1, d2})
	require.NoError(t, err)

	require.Len(t, tradesOn(res.Trades, d0), 3)

	// Day 1: everything liquidated, buys suppressed.
	day1 := tradesOn(res.Trades, d1)
	require.Len(t, day1, 3)
	for _, tr := range day1 {
		assert.Equal(t, domain.ActionSell, tr.Action)
		assert.Equal(t, domain.ReasonCircuitBreaker, tr.Reason)
	}
	assert.True(t, res.Reports[1].BuysSuppressed)
	assert.Empty(t, res.Reports[1].SelectedBuys)

	// Day 2: the one-date cooldown has lapsed and buying resumes.
	day2 := tradesOn(res.Trades, d2)
	require.Len(t, day2, 3)
	for _, tr := range day2 {
		assert.Equal(t, domain.ActionBuy, tr.Action)
	}
	assert.False(t, res.Reports[2].BuysSuppressed)
}

func TestSim_ATRTrailingStopExitsWithoutSameDayReentry(t *testing.T) {
	d0, d1, d2 := day(2024, 1, 1), day(2024, 1, 2), day(2024, 1, 3)
	m := series.NewMemory()
	m.Add("AAA", d0, domain.Observation{Close: 100, TrendOn: true, Momentum: 0.3, Volatility: 0.1, ATR: 5})
	m.Add("AAA", d1, domain.Observation{Close: 120, TrendOn: true, Momentum: 0.3, Volatility: 0.1, ATR: 5})
	// Stop level 120 - 2×5 = 110; close 109 breaches it.
	m.Add("AAA", d2, domain.Observation{Close: 109, TrendOn: true, Momentum: 0.3, Volatility: 0.1, ATR: 5})

	sched := mustSchedule(t, ScheduleEntry{Date: d0, Symbols: []string{"AAA"}})

	sim, err := New(simConfig(), m, nil, sched, nil, nil)
	require.NoError(t, err)

	res, err := sim.Run(context.Background(), []time.Time{d0, d1, d2})
	require.NoError(t, err)

	day2 := tradesOn(res.Trades, d2)
	require.Len(t, day2, 1, "the stopped symbol must not be re-bought the same date")
	assert.Equal(t, domain.ActionSell, day2[0].Action)
	assert.Equal(t, domain.ReasonATRStop, day2[0].Reason)
	assert.Empty(t, sim.ledger.Portfolio().Positions)
}

func TestSim_TrendFlipSellsHolding(t *testing.T) {
	d0, d1 := day(2024, 1, 1), day(2024, 1, 2)
	m := series.NewMemory()
	m.Add("AAA", d0, domain.Observation{Close: 100, TrendOn: true, Momentum: 0.3, Volatility: 0.1, ATR: 0})
	m.Add("AAA", d1, domain.Observation{Close: 101, TrendOn: false, Momentum: 0.3, Volatility: 0.1, ATR: 0})

	sched := mustSchedule(t, ScheduleEntry{Date: d0, Symbols: []string{"AAA"}})
	sim, err := New(simConfig(), m, nil, sched, nil, nil)
	require.NoError(t, err)

	res, err := sim.Run(context.Background(), []time.Time{d0, d1})
	require.NoError(t, err)

	day1 := tradesOn(res.Trades, d1)
	require.Len(t, day1, 1)
	assert.Equal(t, domain.ActionSell, day1[0].Action)
	assert.Equal(t, domain.ReasonTrendExit, day1[0].Reason)
}

func TestSim_MissingDataHoldsPosition(t *testing.T) {
	d0, d1, d2 := day(2024, 1, 1), day(2024, 1, 2), day(2024, 1, 3)
	m := series.NewMemory()
	// AAA goes dark on d1 and returns on d2.
	m.Add("AAA", d0, domain.Observation{Close: 100, TrendOn: true, Momentum: 0.3, Volatility: 0.1, ATR: 0})
	m.Add("AAA", d2, domain.Observation{Close: 105, TrendOn: true, Momentum: 0.3, Volatility: 0.1, ATR: 0})
	// BBB keeps the calendar alive on d1.
	addDays(m, "BBB", map[time.Time]float64{d0: 50, d1: 50, d2: 50}, 0.1)

	sched := mustSchedule(t, ScheduleEntry{Date: d0, Symbols: []string{"AAA", "BBB"}})
	sim, err := New(simConfig(), m, nil, sched, nil, nil)
	require.NoError(t, err)

	res, err := sim.Run(context.Background(), []time.Time{d0, d1, d2})
	require.NoError(t, err)

	// No AAA trade on the dark date: absence of data is not a signal.
	for _, tr := range tradesOn(res.Trades, d1) {
		assert.NotEqual(t, "AAA", tr.Symbol)
	}
	assert.Contains(t, sim.ledger.Portfolio().Positions, "AAA")

	// The dark-date equity point values AAA at its last seen close.
	assert.Greater(t, res.Equity[1].PositionsValue, 0.0)
}

func TestSim_DeterministicAcrossRuns(t *testing.T) {
	d0, d1, d2 := day(2024, 1, 1), day(2024, 1, 2), day(2024, 1, 3)
	build := func() (*Sim, []time.Time) {
		m := series.NewMemory()
		addDays(m, "AAA", map[time.Time]float64{d0: 100, d1: 103, d2: 99}, 0.3)
		addDays(m, "BBB", map[time.Time]float64{d0: 50, d1: 49, d2: 52}, 0.2)
		addDays(m, "CCC", map[time.Time]float64{d0: 20, d1: 22, d2: 21}, 0.1)
		sched := mustSchedule(t, ScheduleEntry{Date: d0, Symbols: []string{"AAA", "BBB", "CCC"}})

		cfg := simConfig()
		cfg.Workers = 4 // fan-out must not affect the outcome
		sim, err := New(cfg, m, nil, sched, nil, nil)
		require.NoError(t, err)
		return sim, []time.Time{d0, d1, d2}
	}

	simA, dates := build()
	resA, err := simA.Run(context.Background(), dates)
	require.NoError(t, err)

	simB, _ := build()
	resB, err := simB.Run(context.Background(), dates)
	require.NoError(t, err)

	assert.Equal(t, resA.Trades, resB.Trades)
	assert.Equal(t, resA.Equity, resB.Equity)
}

func TestSim_WorkerPoolReadsOutOfOrderSeries(t *testing.T) {
	d0, d1, d2 := day(2024, 1, 1), day(2024, 1, 2), day(2024, 1, 3)
	dates := []time.Time{d0, d1, d2}

	build := func(workers int) *Sim {
		m := series.NewMemory()
		pool := make([]string, 0, 16)
		for i := 0; i < 16; i++ {
			sym := fmt.Sprintf("S%02d", i)
			pool = append(pool, sym)
			// Newest date first: the provider is loaded out of order before
			// the worker pool hammers it with reads.
			for j := len(dates) - 1; j >= 0; j-- {
				m.Add(sym, dates[j], domain.Observation{
					Close:      float64(100+i) + float64(j),
					TrendOn:    true,
					Momentum:   float64(16 - i),
					Volatility: 0.1,
				})
			}
		}
		sched := mustSchedule(t, ScheduleEntry{Date: d0, Symbols: pool})

		cfg := simConfig()
		cfg.Workers = workers
		sim, err := New(cfg, m, nil, sched, nil, nil)
		require.NoError(t, err)
		return sim
	}

	sequential, err := build(1).Run(context.Background(), dates)
	require.NoError(t, err)
	parallel, err := build(8).Run(context.Background(), dates)
	require.NoError(t, err)

	assert.NotEmpty(t, sequential.Trades)
	assert.Equal(t, sequential.Trades, parallel.Trades)
	assert.Equal(t, sequential.Equity, parallel.Equity)
}

func TestSim_FirstDateBeforeScheduleFails(t *testing.T) {
	m := series.NewMemory()
	sched := mustSchedule(t, ScheduleEntry{Date: day(2024, 2, 1), Symbols: []string{"AAA"}})
	sim, err := New(simConfig(), m, nil, sched, nil, nil)
	require.NoError(t, err)

	_, err = sim.Run(context.Background(), []time.Time{day(2024, 1, 1)})
	assert.ErrorIs(t, err, ErrNoActivePool)
}

func TestSim_CancelledContext(t *testing.T) {
	m := series.NewMemory()
	m.Add("AAA", day(2024, 1, 1), domain.Observation{Close: 100, TrendOn: true, Momentum: 0.1, Volatility: 0.1, ATR: 0})
	sched := mustSchedule(t, ScheduleEntry{Date: day(2024, 1, 1), Symbols: []string{"AAA"}})
	sim, err := New(simConfig(), m, nil, sched, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sim.Run(ctx, []time.Time{day(2024, 1, 1)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSim_ResumeFromSnapshot(t *testing.T) {
	d0, d1, d2 := day(2024, 1, 1), day(2024, 1, 2), day(2024, 1, 3)
	newSeries := func() *series.Memory {
		m := series.NewMemory()
		addDays(m, "AAA", map[time.Time]float64{d0: 100, d1: 102, d2: 104}, 0.3)
		addDays(m, "BBB", map[time.Time]float64{d0: 50, d1: 51, d2: 52}, 0.2)
		return m
	}
	sched := mustSchedule(t, ScheduleEntry{Date: d0, Symbols: []string{"AAA", "BBB"}})
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	sim1, err := New(simConfig(), newSeries(), nil, sched, store, nil)
	require.NoError(t, err)
	_, err = sim1.Run(context.Background(), []time.Time{d0, d1})
	require.NoError(t, err)
	want := sim1.ledger.Portfolio()

	sim2, err := New(simConfig(), newSeries(), nil, sched, store, nil)
	require.NoError(t, err)
	resumed, err := sim2.Resume(context.Background())
	require.NoError(t, err)
	assert.True(t, resumed.Equal(d1))

	got := sim2.ledger.Portfolio()
	assert.InDelta(t, want.Cash, got.Cash, 1e-6)
	require.Len(t, got.Positions, len(want.Positions))
	for sym, pos := range want.Positions {
		assert.InDelta(t, pos.Shares, got.Positions[sym].Shares, 1e-6)
		assert.True(t, pos.EntryDate.Equal(got.Positions[sym].EntryDate))
	}

	// The resumed run picks up the equity curve and keeps appending.
	res, err := sim2.Run(context.Background(), []time.Time{d2})
	require.NoError(t, err)
	require.Len(t, res.Equity, 3)
	assert.True(t, res.Equity[2].Date.Equal(d2))
}

func TestSim_ResumedDarkPositionValuedAtEntryPrice(t *testing.T) {
	d0, d1 := day(2024, 1, 1), day(2024, 1, 2)
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	// A committed run left AAA held with a high-water mark well above entry.
	pf := domain.NewPortfolio(50_000)
	pf.Positions["AAA"] = domain.Position{
		Symbol: "AAA", Shares: 100, EntryDate: d0,
		EntryPrice: 100, HighWaterMark: 120,
	}
	report := domain.RebalanceReport{Date: d0, Equity: domain.EquityPoint{
		Date: d0, Cash: 50_000, PositionsValue: 12_000, TotalEquity: 62_000,
	}}
	require.NoError(t, store.SaveRebalance(context.Background(), report, domain.SnapshotOf(d0, pf)))

	// AAA has no data after the resume; BBB keeps the calendar alive but is
	// trend-off so nothing trades.
	m := series.NewMemory()
	m.Add("BBB", d1, domain.Observation{Close: 50, TrendOn: false, Momentum: 0.1, Volatility: 0.1})

	sched := mustSchedule(t, ScheduleEntry{Date: d0, Symbols: []string{"AAA", "BBB"}})
	sim, err := New(simConfig(), m, nil, sched, store, nil)
	require.NoError(t, err)

	resumed, err := sim.Resume(context.Background())
	require.NoError(t, err)
	require.True(t, resumed.Equal(d0))

	res, err := sim.Run(context.Background(), []time.Time{d1})
	require.NoError(t, err)

	// 100 shares at the 100 entry price, not at the 120 peak.
	require.Len(t, res.Equity, 2)
	assert.InDelta(t, 10_000.0, res.Equity[1].PositionsValue, 1e-6)
	assert.Empty(t, tradesOn(res.Trades, d1))
}

func TestSim_ResumeWithoutStorageFails(t *testing.T) {
	sched := mustSchedule(t, ScheduleEntry{Date: day(2024, 1, 1), Symbols: []string{"AAA"}})
	sim, err := New(simConfig(), series.NewMemory(), nil, sched, nil, nil)
	require.NoError(t, err)

	_, err = sim.Resume(context.Background())
	assert.Error(t, err)
}
