package engine

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/amdiaz/rotor/internal/domain"
)

// ScheduleEntry makes a symbol set effective from Date until the next
// entry's date (inclusive start, exclusive end).
type ScheduleEntry struct {
	Date    time.Time
	Symbols []string
}

// Schedule is the externally supplied rotation timeline: which symbols are
// tradable as of which date. Immutable once built.
type Schedule struct {
	entries []scheduleEntry
}

type scheduleEntry struct {
	date time.Time
	pool map[string]struct{}
}

// NewSchedule builds a schedule from ordered entries. Dates must be strictly
// increasing and at least one entry must exist.
func NewSchedule(entries []ScheduleEntry) (*Schedule, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("engine.NewSchedule: schedule is empty")
	}

	s := &Schedule{entries: make([]scheduleEntry, 0, len(entries))}
	var prev time.Time
	for i, e := range entries {
		date := domain.Day(e.Date)
		if i > 0 && !date.After(prev) {
			return nil, fmt.Errorf("engine.NewSchedule: entry %d date %s not after %s",
				i, date.Format("2006-01-02"), prev.Format("2006-01-02"))
		}
		prev = date

		pool := make(map[string]struct{}, len(e.Symbols))
		for _, sym := range e.Symbols {
			pool[sym] = struct{}{}
		}
		s.entries = append(s.entries, scheduleEntry{date: date, pool: pool})
	}
	return s, nil
}

// ActivePool returns the symbol set from the latest entry with date ≤ the
// given date, carrying the last known rotation forward across gaps. Entries
// after the date are never consulted. Returns ErrNoActivePool if the date
// precedes the whole schedule.
func (s *Schedule) ActivePool(date time.Time) (map[string]struct{}, error) {
	day := domain.Day(date)

	// First entry strictly after day; the active entry is the one before it.
	idx := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].date.After(day)
	})
	if idx == 0 {
		return nil, fmt.Errorf("%w: %s before first entry %s", ErrNoActivePool,
			day.Format("2006-01-02"), s.entries[0].date.Format("2006-01-02"))
	}
	return s.entries[idx-1].pool, nil
}

// RotatesOn reports whether a new rotation entry becomes effective exactly
// on the given date.
func (s *Schedule) RotatesOn(date time.Time) bool {
	day := domain.Day(date)
	for _, e := range s.entries {
		if e.date.Equal(day) {
			return true
		}
		if e.date.After(day) {
			break
		}
	}
	return false
}

// scheduleFile is the YAML wire format for a rotation schedule.
type scheduleFile struct {
	Rotations []struct {
		Date    string   `yaml:"date"` // 2006-01-02
		Symbols []string `yaml:"symbols"`
	} `yaml:"rotations"`
}

// LoadSchedule reads a rotation schedule from a YAML file.
func LoadSchedule(path string) (*Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("engine.LoadSchedule: read %q: %w", path, err)
	}

	var file scheduleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("engine.LoadSchedule: parse YAML: %w", err)
	}

	entries := make([]ScheduleEntry, 0, len(file.Rotations))
	for i, r := range file.Rotations {
		date, err := time.Parse("2006-01-02", r.Date)
		if err != nil {
			return nil, fmt.Errorf("engine.LoadSchedule: rotation %d: bad date %q: %w", i, r.Date, err)
		}
		entries = append(entries, ScheduleEntry{Date: date, Symbols: r.Symbols})
	}
	return NewSchedule(entries)
}
