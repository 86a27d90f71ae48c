package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amdiaz/rotor/config"
	"github.com/amdiaz/rotor/internal/adapters/notify"
	"github.com/amdiaz/rotor/internal/adapters/series"
	"github.com/amdiaz/rotor/internal/adapters/storage"
	"github.com/amdiaz/rotor/internal/domain"
	"github.com/amdiaz/rotor/internal/engine"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply if empty)")
	schedulePath := flag.String("schedule", "", "path to rotation schedule YAML")
	csvPath := flag.String("csv", "", "path to signal series CSV")
	demo := flag.Bool("demo", false, "run on a deterministic synthetic universe")
	fromStr := flag.String("from", "", "first simulated date (2006-01-02)")
	toStr := flag.String("to", "", "last simulated date (2006-01-02)")
	resume := flag.Bool("resume", false, "resume from the latest persisted snapshot")
	table := flag.Bool("table", false, "print full trade tables (default: compact lines)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			slog.Error("failed to load config", "err", err, "path", *configPath)
			os.Exit(1)
		}
	} else {
		cfg = config.Default()
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("rotor starting",
		"config", *configPath,
		"demo", *demo,
		"resume", *resume,
	)

	provider, schedule, err := buildInputs(*demo, *csvPath, *schedulePath)
	if err != nil {
		slog.Error("failed to build inputs", "err", err)
		os.Exit(1)
	}

	dsn := cfg.Storage.DSN
	if *demo && dsn == "rotor.db" {
		dsn = ":memory:" // demo runs leave no file behind unless asked to
	}
	store, err := storage.NewSQLiteStorage(dsn)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", dsn)
		os.Exit(1)
	}
	defer store.Close()

	sim, err := engine.New(cfg.Engine(), provider, nil, schedule, store, notify.NewConsole(*table))
	if err != nil {
		slog.Error("invalid simulation config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dates, err := tradingDates(provider, *fromStr, *toStr)
	if err != nil {
		slog.Error("bad date range", "err", err)
		os.Exit(1)
	}

	if *resume {
		since, err := sim.Resume(ctx)
		if err != nil {
			slog.Error("resume failed", "err", err)
			os.Exit(1)
		}
		if !since.IsZero() {
			dates = datesAfter(dates, since)
		}
	}

	if _, err := sim.Run(ctx, dates); err != nil {
		slog.Error("simulation exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("rotor finished cleanly")
}

// buildInputs wires the series provider and rotation schedule from flags.
func buildInputs(demo bool, csvPath, schedulePath string) (*series.Memory, *engine.Schedule, error) {
	if demo {
		return demoInputs()
	}
	if csvPath == "" {
		return nil, nil, fmt.Errorf("either -demo or -csv is required")
	}
	if schedulePath == "" {
		return nil, nil, fmt.Errorf("-schedule is required with -csv")
	}

	provider, err := series.LoadCSV(csvPath)
	if err != nil {
		return nil, nil, err
	}
	schedule, err := engine.LoadSchedule(schedulePath)
	if err != nil {
		return nil, nil, err
	}
	return provider, schedule, nil
}

// demoInputs generates a 24-symbol synthetic universe with one mid-run
// rotation so every code path (including rotation exclusion) exercises.
func demoInputs() (*series.Memory, *engine.Schedule, error) {
	start := domain.Day(time.Now().AddDate(-1, -6, 0))
	provider := series.Synthetic(24, start, 360, 42)

	syms := provider.Symbols()
	schedule, err := engine.NewSchedule([]engine.ScheduleEntry{
		{Date: start, Symbols: syms[:18]},
		{Date: start.AddDate(0, 0, 180), Symbols: syms[6:]},
	})
	if err != nil {
		return nil, nil, err
	}
	return provider, schedule, nil
}

// tradingDates resolves the simulated date range against available data.
func tradingDates(provider *series.Memory, fromStr, toStr string) ([]time.Time, error) {
	from := time.Time{}
	to := time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

	var err error
	if fromStr != "" {
		if from, err = time.Parse("2006-01-02", fromStr); err != nil {
			return nil, fmt.Errorf("parse -from %q: %w", fromStr, err)
		}
	}
	if toStr != "" {
		if to, err = time.Parse("2006-01-02", toStr); err != nil {
			return nil, fmt.Errorf("parse -to %q: %w", toStr, err)
		}
	}

	dates := provider.Dates(from, to)
	if len(dates) == 0 {
		return nil, fmt.Errorf("no observations between %s and %s", fromStr, toStr)
	}
	return dates, nil
}

// datesAfter drops dates at or before the resume point.
func datesAfter(dates []time.Time, since time.Time) []time.Time {
	day := domain.Day(since)
	for i, d := range dates {
		if d.After(day) {
			return dates[i:]
		}
	}
	return nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
