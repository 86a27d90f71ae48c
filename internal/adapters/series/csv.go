package series

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/amdiaz/rotor/internal/domain"
)

// LoadCSV reads a precomputed signal file into a Memory provider.
//
// Expected header: date,symbol,close,trend,momentum,volatility,atr
// with dates as 2006-01-02 and trend as 0/1. Indicator computation happens
// upstream; this is only a fixture loader, not an ingestion pipeline.
func LoadCSV(path string) (*Memory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("series.LoadCSV: open %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 7

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("series.LoadCSV: parse %q: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("series.LoadCSV: %q has no data rows", path)
	}

	m := NewMemory()
	for i, row := range rows[1:] {
		date, err := time.Parse("2006-01-02", row[0])
		if err != nil {
			return nil, fmt.Errorf("series.LoadCSV: row %d: bad date %q: %w", i+2, row[0], err)
		}

		vals := make([]float64, 4)
		for j, col := range []int{2, 4, 5, 6} {
			v, err := strconv.ParseFloat(row[col], 64)
			if err != nil {
				return nil, fmt.Errorf("series.LoadCSV: row %d col %d: %w", i+2, col+1, err)
			}
			vals[j] = v
		}

		m.Add(row[1], date, domain.Observation{
			Close:      vals[0],
			TrendOn:    row[3] == "1",
			Momentum:   vals[1],
			Volatility: vals[2],
			ATR:        vals[3],
		})
	}
	return m, nil
}
