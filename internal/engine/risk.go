package engine

import (
	"log/slog"
	"time"

	"github.com/amdiaz/rotor/internal/domain"
)

// RiskManager evaluates forced exits against open positions before the
// buffer selector runs. Its decisions override rank-based retention: a
// position the risk manager stops is sold that date no matter how well it
// ranks. Evaluation order per position is precedence order — circuit
// breaker, rotation exclusion, ATR trailing stop, time stop — and the first
// condition that fires supplies the trade reason.
type RiskManager struct {
	cfg Config
}

// NewRiskManager builds the manager from a validated config.
func NewRiskManager(cfg Config) *RiskManager {
	return &RiskManager{cfg: cfg}
}

// BreakerTripped reports whether the portfolio-level single-period drawdown
// exceeds the circuit breaker threshold. prevEquity is the last committed
// snapshot, curEquity the pre-trade mark-to-market at today's prices.
func (r *RiskManager) BreakerTripped(prevEquity, curEquity float64) bool {
	if r.cfg.CircuitBreakerThreshold <= 0 || prevEquity <= 0 {
		return false
	}
	drawdown := 1.0 - curEquity/prevEquity
	return drawdown > r.cfg.CircuitBreakerThreshold
}

// Evaluate returns the forced exits for the date, positions in symbol
// order. High-water marks must already be updated for today (the ledger
// does that as part of mark-to-market). breakerTripped forces every open
// position out at once; otherwise each position is judged independently.
func (r *RiskManager) Evaluate(date time.Time, pf domain.Portfolio, pool map[string]struct{},
	obs map[string]domain.Observation, breakerTripped bool) []domain.ForcedExit {

	var exits []domain.ForcedExit
	for _, sym := range pf.Symbols() {
		pos := pf.Positions[sym]

		if breakerTripped {
			exits = append(exits, domain.ForcedExit{Symbol: sym, Reason: domain.ReasonCircuitBreaker})
			continue
		}

		if _, inPool := pool[sym]; !inPool {
			exits = append(exits, domain.ForcedExit{Symbol: sym, Reason: domain.ReasonRotationExcluded})
			continue
		}

		o, ok := obs[sym]
		if !ok || !o.Valid() {
			// No price today — nothing can execute; stops re-evaluate when
			// data returns.
			slog.Debug("risk: no data for held position", "symbol", sym)
			continue
		}

		if r.atrStop(pos, o) {
			exits = append(exits, domain.ForcedExit{Symbol: sym, Reason: domain.ReasonATRStop})
			continue
		}

		if r.timeStop(date, pos, o) {
			exits = append(exits, domain.ForcedExit{Symbol: sym, Reason: domain.ReasonTimeStop})
		}
	}
	return exits
}

// atrStop fires when price falls below high-water − multiplier × ATR.
func (r *RiskManager) atrStop(pos domain.Position, o domain.Observation) bool {
	if o.ATR <= 0 {
		return false
	}
	return o.Close < pos.HighWaterMark-r.cfg.ATRMultiplier*o.ATR
}

// timeStop fires when the position has been held longer than TimeStopDays
// calendar days. With TimeStopOnlyIfLosing it spares positions trading
// above their entry price.
func (r *RiskManager) timeStop(date time.Time, pos domain.Position, o domain.Observation) bool {
	if r.cfg.TimeStopDays <= 0 {
		return false
	}
	heldDays := int(domain.Day(date).Sub(domain.Day(pos.EntryDate)).Hours() / 24)
	if heldDays <= r.cfg.TimeStopDays {
		return false
	}
	if r.cfg.TimeStopOnlyIfLosing && o.Close > pos.EntryPrice {
		return false
	}
	return true
}
