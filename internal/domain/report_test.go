package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestComputeRunStats_ReturnAndDrawdown(t *testing.T) {
	equity := []EquityPoint{
		{Date: day("2024-01-01"), TotalEquity: 100_000, Cash: 100_000},
		{Date: day("2024-01-02"), TotalEquity: 110_000, PositionsValue: 55_000, Cash: 55_000},
		{Date: day("2024-01-03"), TotalEquity: 99_000, PositionsValue: 49_500, Cash: 49_500},
		{Date: day("2024-01-04"), TotalEquity: 120_000, PositionsValue: 60_000, Cash: 60_000},
	}

	stats := ComputeRunStats(100_000, equity, nil)
	assert.InDelta(t, 0.20, stats.TotalReturn, 1e-9)
	// peak 110k → trough 99k = 10% drawdown
	assert.InDelta(t, 0.10, stats.MaxDrawdown, 1e-9)
	assert.Equal(t, 4, stats.TradingDays)
}

func TestComputeRunStats_WinRateAndExitCounts(t *testing.T) {
	trades := []Trade{
		{Symbol: "AAA", Action: ActionBuy, Price: 100, Reason: ReasonRankEntry},
		{Symbol: "BBB", Action: ActionBuy, Price: 50, Reason: ReasonRankEntry},
		{Symbol: "AAA", Action: ActionSell, Price: 120, Reason: ReasonRankExit},    // win
		{Symbol: "BBB", Action: ActionSell, Price: 45, Reason: ReasonATRStop},      // loss
	}

	stats := ComputeRunStats(100_000, []EquityPoint{{TotalEquity: 100_000}}, trades)
	assert.Equal(t, 2, stats.Buys)
	assert.Equal(t, 2, stats.Sells)
	assert.InDelta(t, 0.5, stats.WinRate, 1e-9)
	assert.Equal(t, 1, stats.ForcedExits[ReasonATRStop])
}

func TestComputeRunStats_Empty(t *testing.T) {
	stats := ComputeRunStats(100_000, nil, nil)
	assert.Equal(t, 0.0, stats.TotalReturn)
	assert.Equal(t, 0, stats.TradingDays)
}
