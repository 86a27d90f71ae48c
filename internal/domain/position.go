package domain

import "time"

// TradeAction is the direction of an executed trade.
type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
)

// TradeReason records why a trade happened. Forced-exit reasons always win
// over rank-driven retention, so the reason on a sell is the highest-priority
// condition that fired that date.
type TradeReason string

const (
	ReasonRankEntry        TradeReason = "rank_entry"
	ReasonRankExit         TradeReason = "rank_exit"
	ReasonTrendExit        TradeReason = "trend_exit"
	ReasonRotationExcluded TradeReason = "rotation_excluded"
	ReasonATRStop          TradeReason = "atr_stop"
	ReasonTimeStop         TradeReason = "time_stop"
	ReasonCircuitBreaker   TradeReason = "circuit_breaker"
)

// Position is an open holding. HighWaterMark tracks the highest close seen
// since entry and drives the ATR trailing stop.
type Position struct {
	Symbol        string
	Shares        float64
	EntryDate     time.Time
	EntryPrice    float64
	HighWaterMark float64
	ClusterID     int // cluster the symbol belonged to on its entry date
}

// MarketValue returns the position value at the given price.
func (p Position) MarketValue(price float64) float64 {
	return p.Shares * price
}

// Trade is one executed buy or sell, in strict execution order.
type Trade struct {
	ID     string
	Date   time.Time
	Symbol string
	Action TradeAction
	Shares float64
	Price  float64
	Reason TradeReason
}
