package feature

import (
	"time"
)

// Grain is the time-truncation unit applied to fact and snapshot timestamps
// before any comparison.
type Grain string

const (
	GrainDay   Grain = "day"
	GrainMonth Grain = "month"
)

// Valid reports whether the grain is a supported truncation unit.
func (g Grain) Valid() bool {
	return g == GrainDay || g == GrainMonth
}

// Truncate rounds t down to the grain boundary in UTC.
func (g Grain) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch g {
	case GrainMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// step moves t back by n grain units.
func (g Grain) step(t time.Time, n int) time.Time {
	switch g {
	case GrainMonth:
		return t.AddDate(0, -n, 0)
	default:
		return t.AddDate(0, 0, -n)
	}
}

// WindowSpec defines the trailing interval shared by all rolling aggregates
// of a feature set: Lookback grain units ending just before the snapshot
// instant.
type WindowSpec struct {
	Lookback int   `yaml:"lookback"`
	Grain    Grain `yaml:"grain"`
}

// Validate checks the window parameters before execution.
func (w WindowSpec) Validate() error {
	if w.Lookback <= 0 {
		return &ConfigError{Field: "window.lookback", Reason: "must be positive"}
	}
	if !w.Grain.Valid() {
		return &ConfigError{Field: "window.grain", Reason: "must be day or month"}
	}
	return nil
}

// Start returns the inclusive lower bound of the window ending at snapshot
// time t. The window is half-open: [Start(t), t).
func (w WindowSpec) Start(t time.Time) time.Time {
	return w.Grain.step(t, w.Lookback)
}

// Contains reports whether a fact timestamp (already truncated) falls inside
// the window ending at snapshot time t. The lower bound is inclusive, the
// snapshot instant itself is excluded.
func (w WindowSpec) Contains(fact, t time.Time) bool {
	return !fact.Before(w.Start(t)) && fact.Before(t)
}
