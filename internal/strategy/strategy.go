package strategy

import "time"

// Signal is the capability the engine needs from an indicator family:
// a boolean trend state and a scalar momentum score per symbol per date.
// Different indicator implementations (trend-strength, moving-average
// crossover, oscillator based) satisfy it interchangeably; the engine never
// knows which formulas produced the values.
type Signal interface {
	// TrendState reports whether the symbol is in a tradable uptrend at date.
	// ok=false means no data for that symbol/date.
	TrendState(symbol string, date time.Time) (on bool, ok bool)

	// Score returns the momentum ranking score at date, higher is stronger.
	Score(symbol string, date time.Time) (score float64, ok bool)
}
