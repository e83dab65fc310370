package feature

import (
	"sort"
	"time"

	"github.com/sells-group/featuremart/internal/model"
)

// BuildGrid enumerates the snapshot evaluation points: one per distinct
// (entity, truncated period) observed in the fact stream. Periods with no
// facts for an entity are never synthesized; the grid is sparse, aligned
// to actual activity.
func BuildGrid(facts []model.Fact, grain Grain) []model.Snapshot {
	type key struct {
		entity string
		ts     int64
	}
	seen := make(map[key]struct{}, len(facts))
	grid := make([]model.Snapshot, 0, len(facts))

	for _, f := range facts {
		period := grain.Truncate(f.EventTimestamp)
		k := key{entity: f.EntityID, ts: period.Unix()}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		grid = append(grid, model.Snapshot{EntityID: f.EntityID, Timestamp: period})
	}

	sort.Slice(grid, func(i, j int) bool {
		if grid[i].EntityID != grid[j].EntityID {
			return grid[i].EntityID < grid[j].EntityID
		}
		return grid[i].Timestamp.Before(grid[j].Timestamp)
	})
	return grid
}

// CheckSchema verifies that every required attribute appears (non-null) on
// at least one fact. A column missing from the whole stream means the
// upstream contract is broken and the build must not start.
func CheckSchema(facts []model.Fact, required []string) error {
	present := make(map[string]bool, len(required))
	for _, f := range facts {
		for name, v := range f.Values {
			if v != nil {
				present[name] = true
			}
		}
	}
	for _, col := range required {
		if !present[col] {
			return &SchemaError{Column: col}
		}
	}
	return nil
}

// EarliestPeriods returns the smallest truncated fact timestamp per entity.
// Validation uses it to distinguish "no prior history" from "zero activity".
func EarliestPeriods(facts []model.Fact, grain Grain) map[string]time.Time {
	earliest := make(map[string]time.Time)
	for _, f := range facts {
		period := grain.Truncate(f.EventTimestamp)
		if cur, ok := earliest[f.EntityID]; !ok || period.Before(cur) {
			earliest[f.EntityID] = period
		}
	}
	return earliest
}
