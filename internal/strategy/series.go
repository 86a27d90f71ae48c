package strategy

import (
	"math"
	"time"

	"github.com/amdiaz/rotor/internal/ports"
)

// SeriesSignal satisfies Signal by reading precomputed trend/momentum values
// from a SeriesProvider. This is the default wiring: an upstream pipeline
// computes the indicators and the engine consumes them as data.
type SeriesSignal struct {
	series ports.SeriesProvider
}

// NewSeriesSignal wraps a provider as a Signal.
func NewSeriesSignal(series ports.SeriesProvider) *SeriesSignal {
	return &SeriesSignal{series: series}
}

func (s *SeriesSignal) TrendState(symbol string, date time.Time) (bool, bool) {
	obs, ok := s.series.Get(symbol, date)
	if !ok || !obs.Valid() {
		return false, false
	}
	return obs.TrendOn, true
}

func (s *SeriesSignal) Score(symbol string, date time.Time) (float64, bool) {
	obs, ok := s.series.Get(symbol, date)
	if !ok || !obs.Valid() || math.IsNaN(obs.Momentum) {
		return 0, false
	}
	return obs.Momentum, true
}
