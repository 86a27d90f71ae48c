package engine

import "fmt"

// Config is the immutable parameter set of a simulation run. Validate runs
// at construction time; an invalid config aborts before any trade is
// simulated.
type Config struct {
	InitialCapital  float64
	TradingCostRate float64
	MinHistory      int
	Workers         int // snapshot-gather workers, 0 = NumCPU

	// Rank-and-buffer selection. A symbol enters only at rank ≤ BuyTopN and
	// survives until rank > HoldUntilRank (the anti-churn band).
	BuyTopN       int
	HoldUntilRank int

	// Correlation clustering of buy candidates.
	CorrelationThreshold float64
	CorrelationWindow    int
	MaxPerCluster        int

	// Sizing. TargetRiskPerPosition = 0 selects pure inverse-vol weighting.
	MaxPositionSize       float64
	MaxTotalExposure      float64
	TargetRiskPerPosition float64

	// Risk exits. TimeStopDays = 0 disables the time stop;
	// CircuitBreakerThreshold = 0 disables the breaker.
	ATRPeriod                  int
	ATRMultiplier              float64
	TimeStopDays               int
	TimeStopOnlyIfLosing       bool
	CircuitBreakerThreshold    float64
	CircuitBreakerCooldownDays int
}

// DefaultConfig returns a sensible production configuration.
func DefaultConfig() Config {
	return Config{
		InitialCapital:             100_000,
		TradingCostRate:            0.001,
		MinHistory:                 60,
		BuyTopN:                    10,
		HoldUntilRank:              15,
		CorrelationThreshold:       0.7,
		CorrelationWindow:          60,
		MaxPerCluster:              2,
		MaxPositionSize:            0.2,
		MaxTotalExposure:           1.0,
		ATRPeriod:                  14,
		ATRMultiplier:              2.0,
		CircuitBreakerThreshold:    0.05,
		CircuitBreakerCooldownDays: 1,
	}
}

// Validate rejects configs that would make the run meaningless.
func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("engine.Config: initial_capital must be positive, got %g", c.InitialCapital)
	}
	if c.TradingCostRate < 0 {
		return fmt.Errorf("engine.Config: trading_cost_rate must be ≥ 0, got %g", c.TradingCostRate)
	}
	if c.MinHistory < 1 {
		return fmt.Errorf("engine.Config: min_history must be ≥ 1, got %d", c.MinHistory)
	}
	if c.BuyTopN < 1 {
		return fmt.Errorf("engine.Config: buy_top_n must be ≥ 1, got %d", c.BuyTopN)
	}
	if c.HoldUntilRank < c.BuyTopN {
		return fmt.Errorf("engine.Config: hold_until_rank (%d) must be ≥ buy_top_n (%d)",
			c.HoldUntilRank, c.BuyTopN)
	}
	if c.CorrelationThreshold <= 0 || c.CorrelationThreshold >= 1 {
		return fmt.Errorf("engine.Config: correlation_threshold must be in (0,1), got %g", c.CorrelationThreshold)
	}
	if c.CorrelationWindow < 2 {
		return fmt.Errorf("engine.Config: correlation_window must be ≥ 2, got %d", c.CorrelationWindow)
	}
	if c.MaxPerCluster < 1 {
		return fmt.Errorf("engine.Config: max_per_cluster must be ≥ 1, got %d", c.MaxPerCluster)
	}
	if c.MaxPositionSize <= 0 || c.MaxPositionSize > 1 {
		return fmt.Errorf("engine.Config: max_position_size must be in (0,1], got %g", c.MaxPositionSize)
	}
	if c.MaxTotalExposure <= 0 || c.MaxTotalExposure > 1 {
		return fmt.Errorf("engine.Config: max_total_exposure must be in (0,1], got %g", c.MaxTotalExposure)
	}
	if c.TargetRiskPerPosition < 0 {
		return fmt.Errorf("engine.Config: target_risk_per_position must be ≥ 0, got %g", c.TargetRiskPerPosition)
	}
	if c.ATRPeriod < 1 {
		return fmt.Errorf("engine.Config: atr_period must be ≥ 1, got %d", c.ATRPeriod)
	}
	if c.ATRMultiplier <= 0 {
		return fmt.Errorf("engine.Config: atr_multiplier must be positive, got %g", c.ATRMultiplier)
	}
	if c.TimeStopDays < 0 {
		return fmt.Errorf("engine.Config: time_stop_days must be ≥ 0, got %d", c.TimeStopDays)
	}
	if c.CircuitBreakerThreshold < 0 {
		return fmt.Errorf("engine.Config: circuit_breaker_threshold must be ≥ 0, got %g", c.CircuitBreakerThreshold)
	}
	if c.CircuitBreakerCooldownDays < 1 {
		return fmt.Errorf("engine.Config: circuit_breaker_cooldown_days must be ≥ 1, got %d", c.CircuitBreakerCooldownDays)
	}
	return nil
}
