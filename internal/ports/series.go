package ports

import (
	"time"

	"github.com/amdiaz/rotor/internal/domain"
)

// SeriesProvider serves per-symbol signal data. It is read-only during a run
// and must never return data timestamped after the requested date — the
// no-lookahead guarantee of the whole engine rests on this contract.
type SeriesProvider interface {
	// Get returns the observation for a symbol at an exact date.
	// ok=false means "no data" — ineligibility, never an error.
	Get(symbol string, date time.Time) (domain.Observation, bool)

	// Closes returns up to n trailing closes at or before end, oldest first.
	// Used for the minimum-history gate and correlation return windows.
	Closes(symbol string, end time.Time, n int) []float64
}
