package domain

import (
	"math"
	"time"
)

// Observation is the per-symbol, per-date signal snapshot the engine consumes.
// All indicator math lives in the signal provider; the engine only reads
// the resulting values and never an observation later than the date it is
// deciding for.
type Observation struct {
	Close      float64
	TrendOn    bool
	Momentum   float64
	Volatility float64
	ATR        float64
}

// Valid reports whether the observation is usable for decisions.
// NaN or non-positive prices mean "no data today" — a normal condition
// (holidays, late listings, delistings), never an error.
func (o Observation) Valid() bool {
	if o.Close <= 0 {
		return false
	}
	return !math.IsNaN(o.Close) && !math.IsNaN(o.Momentum) &&
		!math.IsNaN(o.Volatility) && !math.IsNaN(o.ATR)
}

// Day normalizes a timestamp to a UTC calendar date. The engine operates at
// daily resolution; every date flowing through it goes through Day first so
// map lookups and comparisons never depend on intraday components.
func Day(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
