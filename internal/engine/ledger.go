package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/amdiaz/rotor/internal/domain"
)

// Ledger owns the portfolio: cash, positions, trade log and equity curve.
// It is the single point of mutation in the engine. Each rebalance date is
// one transaction — trades are staged on a copy and either all commit or
// none do, so the cash/position invariants survive any failure mid-date.
type Ledger struct {
	pf       domain.Portfolio
	trades   []domain.Trade
	equity   []domain.EquityPoint
	costRate float64
	capacity int
}

// PlannedBuy is a sized buy decision: weight is the fraction of total
// equity to deploy, clusterID the cluster the symbol joined at entry.
type PlannedBuy struct {
	Symbol    string
	Weight    float64
	ClusterID int
}

// tradeID derives a stable UUID from the trade coordinates. Deterministic
// on purpose: two runs over identical inputs must produce identical trade
// logs, and one symbol trades at most once per action per date.
func tradeID(date time.Time, symbol string, action domain.TradeAction) string {
	key := date.Format("2006-01-02") + "/" + symbol + "/" + string(action)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

// NewLedger starts an all-cash ledger.
func NewLedger(initialCash, costRate float64, capacity int) *Ledger {
	return &Ledger{
		pf:       domain.NewPortfolio(initialCash),
		costRate: costRate,
		capacity: capacity,
	}
}

// RestoreLedger resumes from a persisted snapshot and equity curve.
func RestoreLedger(snap domain.Snapshot, equity []domain.EquityPoint, costRate float64, capacity int) *Ledger {
	return &Ledger{
		pf:       snap.Restore(),
		equity:   equity,
		costRate: costRate,
		capacity: capacity,
	}
}

// Portfolio returns a copy of the committed state.
func (l *Ledger) Portfolio() domain.Portfolio {
	return l.pf.Clone()
}

// Trades returns the trade log in execution order.
func (l *Ledger) Trades() []domain.Trade {
	return l.trades
}

// EquityCurve returns the committed equity curve.
func (l *Ledger) EquityCurve() []domain.EquityPoint {
	return l.equity
}

// LastEquity returns the most recent committed total equity, falling back
// to current cash for a fresh ledger.
func (l *Ledger) LastEquity() float64 {
	if len(l.equity) == 0 {
		return l.pf.Cash
	}
	return l.equity[len(l.equity)-1].TotalEquity
}

// EquityAt marks the portfolio to market at the given prices without
// committing anything.
func (l *Ledger) EquityAt(prices map[string]float64) float64 {
	return l.pf.Equity(prices)
}

// UpdateHighWater raises each position's high-water mark to today's close
// where it improved. Runs before the risk manager so trailing stops see the
// current peak.
func (l *Ledger) UpdateHighWater(prices map[string]float64) {
	for sym, pos := range l.pf.Positions {
		if price, ok := prices[sym]; ok && price > pos.HighWaterMark {
			pos.HighWaterMark = price
			l.pf.Positions[sym] = pos
		}
	}
}

// Apply executes one rebalance transaction: sells first (freeing cash),
// then buys sized as fractions of post-sell equity, then the equity
// snapshot. prices must cover every symbol traded or held. Returns the
// executed trades and the appended equity point.
//
// ErrInsufficientCash and ErrCapacityExceeded are assertion failures — the
// sizer and buffer contracts make them unreachable, so an occurrence means
// a defect and the run must halt with state intact for debugging.
func (l *Ledger) Apply(date time.Time, sells []PlannedSell, buys []PlannedBuy, prices map[string]float64) ([]domain.Trade, domain.EquityPoint, error) {
	staged := l.pf.Clone()
	preEquity := staged.Equity(prices)
	var executed []domain.Trade
	var costs float64

	for _, s := range sells {
		pos, ok := staged.Positions[s.Symbol]
		if !ok {
			return nil, domain.EquityPoint{}, fmt.Errorf("ledger.Apply %s: sell of unheld %s", date.Format("2006-01-02"), s.Symbol)
		}
		price, ok := prices[s.Symbol]
		if !ok || price <= 0 {
			// No executable price; the position survives until one exists.
			slog.Warn("ledger: sell skipped, no price", "symbol", s.Symbol, "date", date.Format("2006-01-02"))
			continue
		}

		staged.Cash += pos.Shares * price * (1.0 - l.costRate)
		costs += pos.Shares * price * l.costRate
		delete(staged.Positions, s.Symbol)
		executed = append(executed, domain.Trade{
			ID:     tradeID(date, s.Symbol, domain.ActionSell),
			Date:   date,
			Symbol: s.Symbol,
			Action: domain.ActionSell,
			Shares: pos.Shares,
			Price:  price,
			Reason: s.Reason,
		})
	}

	equity := staged.Equity(prices)
	for _, b := range buys {
		price, ok := prices[b.Symbol]
		if !ok || price <= 0 {
			slog.Warn("ledger: buy skipped, no price", "symbol", b.Symbol, "date", date.Format("2006-01-02"))
			continue
		}

		outlay := b.Weight * equity
		if outlay <= 0 {
			continue
		}
		if outlay > staged.Cash+domain.EquityTolerance {
			return nil, domain.EquityPoint{}, fmt.Errorf("ledger.Apply %s: %s outlay %.2f > cash %.2f: %w",
				date.Format("2006-01-02"), b.Symbol, outlay, staged.Cash, ErrInsufficientCash)
		}

		shares := outlay / (price * (1.0 + l.costRate))
		staged.Cash -= outlay
		costs += outlay * l.costRate / (1.0 + l.costRate)
		staged.Positions[b.Symbol] = domain.Position{
			Symbol:        b.Symbol,
			Shares:        shares,
			EntryDate:     date,
			EntryPrice:    price,
			HighWaterMark: price,
			ClusterID:     b.ClusterID,
		}
		executed = append(executed, domain.Trade{
			ID:     tradeID(date, b.Symbol, domain.ActionBuy),
			Date:   date,
			Symbol: b.Symbol,
			Action: domain.ActionBuy,
			Shares: shares,
			Price:  price,
			Reason: domain.ReasonRankEntry,
		})
	}

	if staged.Cash < -domain.EquityTolerance {
		return nil, domain.EquityPoint{}, fmt.Errorf("ledger.Apply %s: cash %.6f: %w",
			date.Format("2006-01-02"), staged.Cash, ErrInsufficientCash)
	}
	if l.capacity > 0 && len(staged.Positions) > l.capacity {
		return nil, domain.EquityPoint{}, fmt.Errorf("ledger.Apply %s: %d positions, capacity %d: %w",
			date.Format("2006-01-02"), len(staged.Positions), l.capacity, ErrCapacityExceeded)
	}

	point := domain.EquityPoint{
		Date:           date,
		Cash:           staged.Cash,
		PositionsValue: staged.PositionsValue(prices),
	}
	point.TotalEquity = point.Cash + point.PositionsValue
	// Trading costs are the only equity a transaction may consume; any other
	// gap between pre-trade and post-trade equity is a bookkeeping defect.
	if expected := preEquity - costs; !staged.CheckIdentity(prices, expected) {
		return nil, domain.EquityPoint{}, fmt.Errorf("ledger.Apply %s: equity %.6f, expected %.6f: %w",
			date.Format("2006-01-02"), point.TotalEquity, expected, ErrEquityMismatch)
	}

	// Commit.
	l.pf = staged
	l.trades = append(l.trades, executed...)
	l.equity = append(l.equity, point)
	return executed, point, nil
}
