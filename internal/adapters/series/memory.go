package series

import (
	"sort"
	"time"

	"github.com/amdiaz/rotor/internal/domain"
)

// Memory is an in-memory SeriesProvider backed by per-symbol sorted
// observation slices. It backs tests, fixtures and CSV-loaded runs; the
// engine only sees the ports.SeriesProvider interface.
//
// Add keeps every series sorted on insert, so reads never mutate state —
// once loading is done, Get and Closes are safe from concurrent workers.
type Memory struct {
	data map[string][]point
}

type point struct {
	day time.Time
	obs domain.Observation
}

// NewMemory returns an empty provider.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string][]point),
	}
}

// Add records one observation, inserted at its sorted position. Out-of-order
// insertion is fine. Not safe concurrently with reads; load first, then run.
func (m *Memory) Add(symbol string, date time.Time, obs domain.Observation) {
	day := domain.Day(date)
	pts := m.data[symbol]
	idx := sort.Search(len(pts), func(i int) bool { return pts[i].day.After(day) })
	pts = append(pts, point{})
	copy(pts[idx+1:], pts[idx:])
	pts[idx] = point{day: day, obs: obs}
	m.data[symbol] = pts
}

// Get returns the observation at an exact date.
func (m *Memory) Get(symbol string, date time.Time) (domain.Observation, bool) {
	pts := m.data[symbol]
	day := domain.Day(date)
	idx := sort.Search(len(pts), func(i int) bool { return !pts[i].day.Before(day) })
	if idx < len(pts) && pts[idx].day.Equal(day) {
		return pts[idx].obs, true
	}
	return domain.Observation{}, false
}

// Closes returns up to n trailing closes at or before end, oldest first.
func (m *Memory) Closes(symbol string, end time.Time, n int) []float64 {
	pts := m.data[symbol]
	day := domain.Day(end)
	idx := sort.Search(len(pts), func(i int) bool { return pts[i].day.After(day) })

	start := idx - n
	if start < 0 {
		start = 0
	}
	closes := make([]float64, 0, idx-start)
	for i := start; i < idx; i++ {
		closes = append(closes, pts[i].obs.Close)
	}
	return closes
}

// Dates returns the union of observation dates within [from, to],
// ascending. This is the trading calendar a driver feeds to the loop.
func (m *Memory) Dates(from, to time.Time) []time.Time {
	fromDay, toDay := domain.Day(from), domain.Day(to)
	seen := make(map[time.Time]struct{})
	for sym := range m.data {
		for _, pt := range m.data[sym] {
			if pt.day.Before(fromDay) || pt.day.After(toDay) {
				continue
			}
			seen[pt.day] = struct{}{}
		}
	}

	dates := make([]time.Time, 0, len(seen))
	for day := range seen {
		dates = append(dates, day)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// Symbols returns every symbol with data, ascending.
func (m *Memory) Symbols() []string {
	syms := make([]string, 0, len(m.data))
	for sym := range m.data {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	return syms
}
