package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/amdiaz/rotor/internal/domain"
	"github.com/amdiaz/rotor/internal/ports"
	"github.com/amdiaz/rotor/internal/strategy"
)

// Sim drives the daily rebalance loop. Dates are processed strictly in
// order — the ledger state at T+1 depends on T — while the read-only
// per-symbol work inside a date fans out over a worker pool and is merged
// deterministically before any decision runs.
type Sim struct {
	cfg      Config
	series   ports.SeriesProvider
	schedule *Schedule

	eligibility *Eligibility
	ranker      *Ranker
	buffer      *BufferSelector
	clusterer   *Clusterer
	risk        *RiskManager
	ledger      *Ledger

	store    ports.Storage  // optional
	notifier ports.Notifier // optional

	progress *rate.Limiter

	cooldown  int                // rebalance dates left with buys suppressed
	lastPrice map[string]float64 // last seen close per symbol, for data gaps
}

// Result is everything a finished run produced.
type Result struct {
	Trades  []domain.Trade
	Equity  []domain.EquityPoint
	Reports []domain.RebalanceReport
	Stats   domain.RunStats
}

// New wires a simulation. store and notifier may be nil; signal defaults to
// reading trend/score straight from the series provider.
func New(cfg Config, series ports.SeriesProvider, signal strategy.Signal, schedule *Schedule,
	store ports.Storage, notifier ports.Notifier) (*Sim, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, fmt.Errorf("engine.New: rotation schedule is required")
	}
	if signal == nil {
		signal = strategy.NewSeriesSignal(series)
	}

	return &Sim{
		cfg:         cfg,
		series:      series,
		schedule:    schedule,
		eligibility: NewEligibility(signal, series, cfg.MinHistory),
		ranker:      NewRanker(signal),
		buffer:      NewBufferSelector(cfg.BuyTopN, cfg.HoldUntilRank),
		clusterer:   NewClusterer(series, cfg.CorrelationThreshold, cfg.CorrelationWindow, cfg.MaxPerCluster),
		risk:        NewRiskManager(cfg),
		ledger:      NewLedger(cfg.InitialCapital, cfg.TradingCostRate, cfg.BuyTopN),
		store:       store,
		notifier:    notifier,
		progress:    rate.NewLimiter(rate.Every(2*time.Second), 1),
		lastPrice:   make(map[string]float64),
	}, nil
}

// Resume replaces the fresh ledger with the latest persisted snapshot so
// the run continues from where the previous one committed. Returns the
// snapshot date (zero time if there was nothing to resume).
func (s *Sim) Resume(ctx context.Context) (time.Time, error) {
	if s.store == nil {
		return time.Time{}, fmt.Errorf("engine.Resume: no storage configured")
	}
	snap, ok, err := s.store.LatestSnapshot(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("engine.Resume: %w", err)
	}
	if !ok {
		return time.Time{}, nil
	}

	equity, err := s.store.EquityCurve(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("engine.Resume: %w", err)
	}
	s.ledger = RestoreLedger(snap, equity, s.cfg.TradingCostRate, s.cfg.BuyTopN)
	// Until fresh data arrives, a resumed position is valued (and, if forced
	// out, executed) at its entry price — the same fallback PositionsValue
	// uses — never at its peak.
	for _, pos := range snap.Positions {
		s.lastPrice[pos.Symbol] = pos.EntryPrice
	}
	slog.Info("resuming from snapshot",
		"date", snap.Date.Format("2006-01-02"),
		"cash", fmt.Sprintf("%.2f", snap.Cash),
		"positions", len(snap.Positions),
	)
	return snap.Date, nil
}

// Run simulates the given ordered trading dates. The first date must be
// covered by the rotation schedule or the run fails before any trade.
func (s *Sim) Run(ctx context.Context, dates []time.Time) (*Result, error) {
	if len(dates) == 0 {
		return nil, fmt.Errorf("engine.Run: no trading dates")
	}
	if _, err := s.schedule.ActivePool(dates[0]); err != nil {
		return nil, fmt.Errorf("engine.Run: %w", err)
	}

	start := time.Now()
	slog.Info("simulation starting",
		"from", domain.Day(dates[0]).Format("2006-01-02"),
		"to", domain.Day(dates[len(dates)-1]).Format("2006-01-02"),
		"days", len(dates),
		"capital", fmt.Sprintf("%.2f", s.cfg.InitialCapital),
	)

	reports := make([]domain.RebalanceReport, 0, len(dates))
	for i, date := range dates {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("engine.Run: cancelled at %s: %w", domain.Day(date).Format("2006-01-02"), err)
		}

		report, err := s.step(ctx, domain.Day(date))
		if err != nil {
			s.dumpState(date)
			return nil, err
		}
		reports = append(reports, report)

		if s.notifier != nil {
			if err := s.notifier.Rebalance(ctx, report); err != nil {
				slog.Warn("notifier error", "err", err)
			}
		}
		if s.progress.Allow() {
			slog.Info("simulation progress",
				"date", report.Date.Format("2006-01-02"),
				"day", i+1, "of", len(dates),
				"equity", fmt.Sprintf("%.2f", report.Equity.TotalEquity),
				"positions", len(s.ledger.Portfolio().Positions),
			)
		}
	}

	result := &Result{
		Trades:  s.ledger.Trades(),
		Equity:  s.ledger.EquityCurve(),
		Reports: reports,
		Stats:   domain.ComputeRunStats(s.cfg.InitialCapital, s.ledger.EquityCurve(), s.ledger.Trades()),
	}

	slog.Info("simulation complete",
		"days", len(dates),
		"trades", len(result.Trades),
		"final_equity", fmt.Sprintf("%.2f", result.Stats.FinalEquity),
		"return", fmt.Sprintf("%.2f%%", result.Stats.TotalReturn*100),
		"duration", time.Since(start).Round(time.Millisecond),
	)

	if s.notifier != nil {
		if err := s.notifier.Summary(ctx, result.Stats, result.Trades, result.Equity); err != nil {
			slog.Warn("notifier error", "err", err)
		}
	}
	return result, nil
}

// step runs one rebalance date end to end and commits it.
func (s *Sim) step(ctx context.Context, date time.Time) (domain.RebalanceReport, error) {
	pool, err := s.schedule.ActivePool(date)
	if err != nil {
		return domain.RebalanceReport{}, fmt.Errorf("engine.step %s: %w", date.Format("2006-01-02"), err)
	}

	pf := s.ledger.Portfolio()

	// Gather today's observations for the pool plus anything still held
	// (rotation-excluded positions are no longer in the pool but must be
	// priced to sell).
	universe := make(map[string]struct{}, len(pool)+len(pf.Positions))
	for sym := range pool {
		universe[sym] = struct{}{}
	}
	for sym := range pf.Positions {
		universe[sym] = struct{}{}
	}
	obs := s.gather(ctx, date, universe)

	prices := make(map[string]float64, len(obs))
	for sym, o := range obs {
		if o.Valid() {
			prices[sym] = o.Close
			s.lastPrice[sym] = o.Close
		}
	}
	for sym := range pf.Positions {
		if _, ok := prices[sym]; !ok {
			if last, ok := s.lastPrice[sym]; ok {
				prices[sym] = last
			}
		}
	}

	// Mark to market before any decision: high-water marks feed the
	// trailing stop, the pre-trade equity feeds the circuit breaker.
	s.ledger.UpdateHighWater(prices)
	prevEquity := s.ledger.LastEquity()
	curEquity := s.ledger.EquityAt(prices)
	pf = s.ledger.Portfolio()

	breaker := s.risk.BreakerTripped(prevEquity, curEquity)
	if breaker {
		s.cooldown = s.cfg.CircuitBreakerCooldownDays
		slog.Warn("circuit breaker tripped",
			"date", date.Format("2006-01-02"),
			"drawdown", fmt.Sprintf("%.2f%%", (1.0-curEquity/prevEquity)*100),
			"threshold", fmt.Sprintf("%.2f%%", s.cfg.CircuitBreakerThreshold*100),
		)
	}
	forced := s.risk.Evaluate(date, pf, pool, obs, breaker)

	eligible := s.eligibility.Eligible(date, pool, obs)
	ranked := s.ranker.Rank(date, eligible)

	forcedOut := make(map[string]bool, len(forced))
	for _, fe := range forced {
		forcedOut[fe.Symbol] = true
	}

	// Positions with no valid data today are neither held nor sold by rank
	// logic — they sit untouched until data returns, but still occupy a
	// capacity slot.
	held := make(map[string]bool, len(pf.Positions))
	dark := 0
	for sym := range pf.Positions {
		if forcedOut[sym] {
			continue
		}
		if o, ok := obs[sym]; !ok || !o.Valid() {
			dark++
			continue
		}
		held[sym] = true
	}

	holds, bufferSells, candidates := s.buffer.Decide(ranked, held)

	// A position forced out today must not re-enter on the same date, no
	// matter how well it still ranks.
	if len(forced) > 0 && len(candidates) > 0 {
		kept := candidates[:0]
		for _, c := range candidates {
			if !forcedOut[c.Symbol] {
				kept = append(kept, c)
			}
		}
		candidates = kept
	}

	suppressed := s.cooldown > 0
	if suppressed {
		s.cooldown--
	}

	var selected []string
	var clusters []domain.ClusterInfo
	clusterOf := map[string]int{}
	if !suppressed {
		slots := s.buffer.Capacity() - len(holds) - dark
		selected, clusters, clusterOf = s.clusterer.SelectBuys(date, candidates, slots)
	}

	// For sizing, dark positions count as retained alongside the holds:
	// their value stays deployed and their cash never materializes.
	retained := append([]string(nil), holds...)
	for _, sym := range pf.Symbols() {
		if !forcedOut[sym] && !held[sym] {
			retained = append(retained, sym)
		}
	}

	buys := s.sizeBuys(pf, selected, obs, prices, forced, retained, clusterOf)

	sells := make([]PlannedSell, 0, len(forced)+len(bufferSells))
	for _, fe := range forced {
		sells = append(sells, PlannedSell{Symbol: fe.Symbol, Reason: fe.Reason})
	}
	sells = append(sells, bufferSells...)

	trades, point, err := s.ledger.Apply(date, sells, buys, prices)
	if err != nil {
		return domain.RebalanceReport{}, err
	}

	report := domain.RebalanceReport{
		Date:           date,
		PoolSize:       len(pool),
		EligibleCount:  len(eligible),
		Ranked:         topRanked(ranked, s.cfg.HoldUntilRank),
		ForcedExits:    forced,
		Clusters:       clusters,
		SelectedBuys:   selected,
		BuysSuppressed: suppressed,
		Trades:         trades,
		Equity:         point,
	}

	if s.store != nil {
		snap := domain.SnapshotOf(date, s.ledger.Portfolio())
		if err := s.store.SaveRebalance(ctx, report, snap); err != nil {
			slog.Warn("storage error", "err", err, "date", date.Format("2006-01-02"))
		}
	}
	return report, nil
}

// sizeBuys turns the selected symbols into capped weights that are
// guaranteed to fit both the exposure ceiling and the cash available after
// sells — the ledger treats any shortfall as a fatal contract violation,
// so the headroom math lives here.
func (s *Sim) sizeBuys(pf domain.Portfolio, selected []string, obs map[string]domain.Observation,
	prices map[string]float64, forced []domain.ForcedExit, retained []string, clusterOf map[string]int) []PlannedBuy {

	if len(selected) == 0 {
		return nil
	}

	vols := make(map[string]float64, len(selected))
	for _, sym := range selected {
		o := obs[sym]
		if o.Volatility <= 0 {
			slog.Warn("zero-volatility symbol excluded from sizing", "symbol", sym)
			continue
		}
		vols[sym] = o.Volatility
	}
	if len(vols) == 0 {
		return nil
	}

	var weights map[string]float64
	if s.cfg.TargetRiskPerPosition > 0 {
		weights = domain.TargetRiskWeights(vols, s.cfg.TargetRiskPerPosition)
	} else {
		weights = domain.InverseVolWeights(vols)
	}
	weights = domain.CapWeights(weights, s.cfg.MaxPositionSize, s.cfg.MaxTotalExposure)

	// Post-sell cash and exposure headroom, as fractions of post-sell equity.
	staged := pf.Clone()
	for _, fe := range forced {
		if pos, ok := staged.Positions[fe.Symbol]; ok {
			if price, ok := prices[fe.Symbol]; ok && price > 0 {
				staged.Cash += pos.Shares * price * (1.0 - s.cfg.TradingCostRate)
				delete(staged.Positions, fe.Symbol)
			}
		}
	}
	keep := make(map[string]bool, len(retained))
	for _, sym := range retained {
		keep[sym] = true
	}
	for sym, pos := range staged.Positions {
		if keep[sym] {
			continue
		}
		if price, ok := prices[sym]; ok && price > 0 {
			staged.Cash += pos.Shares * price * (1.0 - s.cfg.TradingCostRate)
			delete(staged.Positions, sym)
		}
	}

	equity := staged.Equity(prices)
	if equity <= 0 {
		return nil
	}
	headroom := s.cfg.MaxTotalExposure - staged.PositionsValue(prices)/equity
	cashFrac := staged.Cash / equity
	avail := headroom
	if cashFrac < avail {
		avail = cashFrac
	}
	if avail <= 0 {
		return nil
	}

	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum > avail {
		scale := avail / sum
		for sym := range weights {
			weights[sym] *= scale
		}
	}

	buys := make([]PlannedBuy, 0, len(selected))
	for _, sym := range selected {
		w, ok := weights[sym]
		if !ok || w <= 0 {
			continue
		}
		buys = append(buys, PlannedBuy{Symbol: sym, Weight: w, ClusterID: clusterOf[sym]})
	}
	return buys
}

// gather fetches observations for all symbols on a worker pool. Workers
// only read the provider; results land in a map keyed by symbol, so merge
// order cannot affect the outcome.
func (s *Sim) gather(ctx context.Context, date time.Time, universe map[string]struct{}) map[string]domain.Observation {
	syms := make([]string, 0, len(universe))
	for sym := range universe {
		syms = append(syms, sym)
	}
	sort.Strings(syms)

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(syms) {
		workers = len(syms)
	}
	if workers <= 1 {
		obs := make(map[string]domain.Observation, len(syms))
		for _, sym := range syms {
			if o, ok := s.series.Get(sym, date); ok {
				obs[sym] = o
			}
		}
		return obs
	}

	type result struct {
		sym string
		obs domain.Observation
	}
	workCh := make(chan string, len(syms))
	resultCh := make(chan result, len(syms))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range workCh {
				if o, ok := s.series.Get(sym, date); ok {
					resultCh <- result{sym: sym, obs: o}
				}
			}
		}()
	}

	for _, sym := range syms {
		workCh <- sym
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	obs := make(map[string]domain.Observation, len(syms))
	for r := range resultCh {
		obs[r.sym] = r.obs
	}
	return obs
}

// dumpState logs the portfolio prior to a fatal failure, per the error
// handling contract: offending date, violated invariant, state just before.
func (s *Sim) dumpState(date time.Time) {
	pf := s.ledger.Portfolio()
	slog.Error("simulation halted, portfolio state at failure",
		"date", domain.Day(date).Format("2006-01-02"),
		"cash", fmt.Sprintf("%.6f", pf.Cash),
		"positions", len(pf.Positions),
	)
	for _, sym := range pf.Symbols() {
		pos := pf.Positions[sym]
		slog.Error("open position",
			"symbol", sym,
			"shares", fmt.Sprintf("%.4f", pos.Shares),
			"entry_date", pos.EntryDate.Format("2006-01-02"),
			"entry_price", fmt.Sprintf("%.4f", pos.EntryPrice),
			"high_water", fmt.Sprintf("%.4f", pos.HighWaterMark),
		)
	}
}

// topRanked truncates the ranking for the audit report.
func topRanked(ranked []domain.RankedSymbol, n int) []domain.RankedSymbol {
	if len(ranked) <= n {
		return ranked
	}
	return ranked[:n]
}
