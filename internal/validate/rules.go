package validate

import (
	"fmt"
	"time"

	"github.com/sells-group/featuremart/internal/feature"
	"github.com/sells-group/featuremart/internal/model"
)

// Required rule names. The build engine surfaces these in run errors.
const (
	RuleUniqueGrain = "unique_grain"
	RuleKeyNonNull  = "key_non_null"
	RuleNonFuture   = "non_future_timestamp"
	RuleNoLeakage   = "no_leakage"
	RuleNullRate    = "bounded_null_rate"
)

// checkUniqueGrain fails every (entity_id, event_timestamp) key that
// appears more than once.
func checkUniqueGrain(in Input) []model.Violation {
	type key struct {
		entity string
		ts     int64
	}
	counts := make(map[key]int, len(in.Rows))
	for _, row := range in.Rows {
		counts[key{row.EntityID, row.EventTimestamp.Unix()}]++
	}

	var out []model.Violation
	for _, row := range in.Rows {
		k := key{row.EntityID, row.EventTimestamp.Unix()}
		if counts[k] > 1 {
			out = append(out, model.Violation{
				Rule:      RuleUniqueGrain,
				EntityID:  row.EntityID,
				Timestamp: row.EventTimestamp,
				Detail:    fmt.Sprintf("key appears %d times", counts[k]),
			})
			// Report the offending key once.
			counts[k] = 0
		}
	}
	return out
}

// checkKeyNonNull fails any row with a null key column or timestamp.
func checkKeyNonNull(in Input) []model.Violation {
	var out []model.Violation
	for _, row := range in.Rows {
		switch {
		case row.EntityID == "":
			out = append(out, model.Violation{
				Rule:      RuleKeyNonNull,
				Timestamp: row.EventTimestamp,
				Detail:    "entity_id is null",
			})
		case row.EventTimestamp.IsZero():
			out = append(out, model.Violation{
				Rule:     RuleKeyNonNull,
				EntityID: row.EntityID,
				Detail:   "event_timestamp is null",
			})
		}
	}
	return out
}

// checkNonFuture fails any row whose timestamp exceeds build time.
func checkNonFuture(in Input) []model.Violation {
	var out []model.Violation
	for _, row := range in.Rows {
		if row.EventTimestamp.After(in.Now) {
			out = append(out, model.Violation{
				Rule:      RuleNonFuture,
				EntityID:  row.EntityID,
				Timestamp: row.EventTimestamp,
				Detail:    fmt.Sprintf("timestamp is after build time %s", in.Now.UTC().Format(time.RFC3339)),
			})
		}
	}
	return out
}

// checkNoLeakage joins every feature row back to the raw facts for its
// entity. The row must be backed by at least one fact in exactly its own
// period; a row that fails the comparison indicates a window boundary
// defect.
func checkNoLeakage(in Input) []model.Violation {
	periods := make(map[string]map[int64]bool)
	for _, f := range in.Facts {
		p := in.Grain.Truncate(f.EventTimestamp)
		if periods[f.EntityID] == nil {
			periods[f.EntityID] = make(map[int64]bool)
		}
		periods[f.EntityID][p.Unix()] = true
	}

	var out []model.Violation
	for _, row := range in.Rows {
		entityPeriods, ok := periods[row.EntityID]
		if !ok {
			out = append(out, model.Violation{
				Rule:      RuleNoLeakage,
				EntityID:  row.EntityID,
				Timestamp: row.EventTimestamp,
				Detail:    "no raw facts exist for entity",
			})
			continue
		}
		if !entityPeriods[row.EventTimestamp.Unix()] {
			out = append(out, model.Violation{
				Rule:      RuleNoLeakage,
				EntityID:  row.EntityID,
				Timestamp: row.EventTimestamp,
				Detail:    "no fact matches the row's period exactly",
			})
		}
	}
	return out
}

// checkNullRate computes the fraction of rows whose rolling aggregates are
// all simultaneously null even though the entity has prior history. The
// whole build fails when the fraction exceeds the configured threshold;
// every contributing row is reported.
func checkNullRate(in Input) []model.Violation {
	if len(in.RollingAliases) == 0 {
		return nil
	}

	earliest := feature.EarliestPeriods(in.Facts, in.Grain)

	var withHistory, allNull int
	var offenders []model.Violation
	for _, row := range in.Rows {
		first, ok := earliest[row.EntityID]
		if !ok || !first.Before(row.EventTimestamp) {
			continue // no prior fact at all; null aggregates are expected
		}
		withHistory++

		nulls := 0
		for _, alias := range in.RollingAliases {
			if row.RollingValue(alias) == nil {
				nulls++
			}
		}
		if nulls == len(in.RollingAliases) {
			allNull++
			offenders = append(offenders, model.Violation{
				Rule:      RuleNullRate,
				EntityID:  row.EntityID,
				Timestamp: row.EventTimestamp,
				Detail:    "all rolling aggregates null despite prior history",
			})
		}
	}

	if withHistory == 0 {
		return nil
	}
	rate := float64(allNull) / float64(withHistory)
	if rate <= in.NullRateThreshold {
		return nil
	}
	for i := range offenders {
		offenders[i].Detail = fmt.Sprintf("%s (table null-rate %.1f%% > %.1f%%)",
			offenders[i].Detail, rate*100, in.NullRateThreshold*100)
	}
	return offenders
}
