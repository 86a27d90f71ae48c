package series

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/amdiaz/rotor/internal/domain"
)

// Synthetic generates a deterministic fixture universe so the engine runs
// end to end without external data. Each symbol follows a seeded geometric
// walk; trend, momentum, volatility and ATR are derived from the walk the
// way an upstream indicator pipeline would supply them.
func Synthetic(symbols int, start time.Time, days int, seed int64) *Memory {
	rng := rand.New(rand.NewSource(seed))
	m := NewMemory()

	for s := 0; s < symbols; s++ {
		sym := fmt.Sprintf("SYM%02d", s)
		drift := (rng.Float64() - 0.45) * 0.002 // slight long bias
		vol := 0.008 + rng.Float64()*0.02

		closes := make([]float64, days)
		price := 20 + rng.Float64()*180
		for d := 0; d < days; d++ {
			price *= 1 + drift + rng.NormFloat64()*vol
			if price < 1 {
				price = 1
			}
			closes[d] = price
		}

		day := domain.Day(start)
		for d := 0; d < days; d++ {
			m.Add(sym, day, observationAt(closes, d))
			day = day.AddDate(0, 0, 1)
		}
	}
	return m
}

// observationAt derives the signal values from the walk at index d.
func observationAt(closes []float64, d int) domain.Observation {
	const (
		momentumWindow = 20
		trendWindow    = 50
		volWindow      = 20
	)

	obs := domain.Observation{Close: closes[d]}

	if d >= momentumWindow {
		obs.Momentum = closes[d]/closes[d-momentumWindow] - 1.0
	}

	if d >= trendWindow {
		sum := 0.0
		for i := d - trendWindow + 1; i <= d; i++ {
			sum += closes[i]
		}
		obs.TrendOn = closes[d] > sum/trendWindow
	}

	if d >= volWindow {
		mean := 0.0
		rets := make([]float64, volWindow)
		for i := 0; i < volWindow; i++ {
			j := d - volWindow + 1 + i
			rets[i] = closes[j]/closes[j-1] - 1.0
			mean += rets[i]
		}
		mean /= volWindow
		variance := 0.0
		for _, r := range rets {
			variance += (r - mean) * (r - mean)
		}
		obs.Volatility = math.Sqrt(variance / volWindow)
		obs.ATR = obs.Close * obs.Volatility
	}

	return obs
}
