package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/amdiaz/rotor/internal/engine"
)

// Config is the full configuration of a simulation run.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Selection  SelectionConfig  `yaml:"selection"`
	Cluster    ClusterConfig    `yaml:"cluster"`
	Sizing     SizingConfig     `yaml:"sizing"`
	Risk       RiskConfig       `yaml:"risk"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
}

// SimulationConfig controls the loop itself.
type SimulationConfig struct {
	InitialCapital  float64 `yaml:"initial_capital"`
	TradingCostRate float64 `yaml:"trading_cost_rate"`
	MinHistory      int     `yaml:"min_history"`
	Workers         int     `yaml:"workers"` // 0 = NumCPU
}

// SelectionConfig holds the rank-and-buffer thresholds.
type SelectionConfig struct {
	BuyTopN       int `yaml:"buy_top_n"`
	HoldUntilRank int `yaml:"hold_until_rank"`
}

// ClusterConfig controls correlation-based diversification.
type ClusterConfig struct {
	CorrelationThreshold float64 `yaml:"correlation_threshold"`
	CorrelationWindow    int     `yaml:"correlation_window"`
	MaxPerCluster        int     `yaml:"max_per_cluster"`
}

// SizingConfig controls inverse-volatility position sizing.
type SizingConfig struct {
	MaxPositionSize       float64 `yaml:"max_position_size"`
	MaxTotalExposure      float64 `yaml:"max_total_exposure"`
	TargetRiskPerPosition float64 `yaml:"target_risk_per_position"` // 0 = pure inverse-vol
}

// RiskConfig controls the forced-exit rules.
type RiskConfig struct {
	ATRPeriod                  int     `yaml:"atr_period"`
	ATRMultiplier              float64 `yaml:"atr_multiplier"`
	TimeStopDays               int     `yaml:"time_stop_days"` // 0 = disabled
	TimeStopOnlyIfLosing       bool    `yaml:"time_stop_only_if_losing"`
	// CircuitBreakerThreshold is a pointer so an explicit 0 (breaker off)
	// survives defaulting; only an absent key gets the default. ≥ 1 never trips.
	CircuitBreakerThreshold    *float64 `yaml:"circuit_breaker_threshold"`
	CircuitBreakerCooldownDays int      `yaml:"circuit_breaker_cooldown_days"`
}

// StorageConfig controls where the audit trail is persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, or ":memory:"
}

// LogConfig controls logging format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML config file plus a .env file if present. Env values
// override YAML for the keys they cover.
func Load(path string) (*Config, error) {
	// Load .env if it exists (missing file is not an error).
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	setDefaults(cfg)
	return cfg
}

// Engine converts to the engine's validated parameter struct.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		InitialCapital:             c.Simulation.InitialCapital,
		TradingCostRate:            c.Simulation.TradingCostRate,
		MinHistory:                 c.Simulation.MinHistory,
		Workers:                    c.Simulation.Workers,
		BuyTopN:                    c.Selection.BuyTopN,
		HoldUntilRank:              c.Selection.HoldUntilRank,
		CorrelationThreshold:       c.Cluster.CorrelationThreshold,
		CorrelationWindow:          c.Cluster.CorrelationWindow,
		MaxPerCluster:              c.Cluster.MaxPerCluster,
		MaxPositionSize:            c.Sizing.MaxPositionSize,
		MaxTotalExposure:           c.Sizing.MaxTotalExposure,
		TargetRiskPerPosition:      c.Sizing.TargetRiskPerPosition,
		ATRPeriod:                  c.Risk.ATRPeriod,
		ATRMultiplier:              c.Risk.ATRMultiplier,
		TimeStopDays:               c.Risk.TimeStopDays,
		TimeStopOnlyIfLosing:       c.Risk.TimeStopOnlyIfLosing,
		CircuitBreakerThreshold:    *c.Risk.CircuitBreakerThreshold,
		CircuitBreakerCooldownDays: c.Risk.CircuitBreakerCooldownDays,
	}
}

// applyEnvOverrides overrides values from environment variables if present.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("ROTOR_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
}

// setDefaults ensures required values have sensible defaults.
func setDefaults(cfg *Config) {
	def := engine.DefaultConfig()
	if cfg.Simulation.InitialCapital <= 0 {
		cfg.Simulation.InitialCapital = def.InitialCapital
	}
	if cfg.Simulation.TradingCostRate < 0 {
		cfg.Simulation.TradingCostRate = def.TradingCostRate
	}
	if cfg.Simulation.MinHistory <= 0 {
		cfg.Simulation.MinHistory = def.MinHistory
	}
	if cfg.Selection.BuyTopN <= 0 {
		cfg.Selection.BuyTopN = def.BuyTopN
	}
	if cfg.Selection.HoldUntilRank <= 0 {
		cfg.Selection.HoldUntilRank = def.HoldUntilRank
	}
	if cfg.Cluster.CorrelationThreshold <= 0 {
		cfg.Cluster.CorrelationThreshold = def.CorrelationThreshold
	}
	if cfg.Cluster.CorrelationWindow <= 0 {
		cfg.Cluster.CorrelationWindow = def.CorrelationWindow
	}
	if cfg.Cluster.MaxPerCluster <= 0 {
		cfg.Cluster.MaxPerCluster = def.MaxPerCluster
	}
	if cfg.Sizing.MaxPositionSize <= 0 {
		cfg.Sizing.MaxPositionSize = def.MaxPositionSize
	}
	if cfg.Sizing.MaxTotalExposure <= 0 {
		cfg.Sizing.MaxTotalExposure = def.MaxTotalExposure
	}
	if cfg.Risk.ATRPeriod <= 0 {
		cfg.Risk.ATRPeriod = def.ATRPeriod
	}
	if cfg.Risk.ATRMultiplier <= 0 {
		cfg.Risk.ATRMultiplier = def.ATRMultiplier
	}
	if cfg.Risk.CircuitBreakerThreshold == nil {
		v := def.CircuitBreakerThreshold
		cfg.Risk.CircuitBreakerThreshold = &v
	}
	if cfg.Risk.CircuitBreakerCooldownDays <= 0 {
		cfg.Risk.CircuitBreakerCooldownDays = def.CircuitBreakerCooldownDays
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "rotor.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
