package feature

import (
	"fmt"

	"github.com/sells-group/featuremart/internal/model"
)

// BaseAttribute declares one cleaned base attribute: the source column and
// an optional range clamp.
type BaseAttribute struct {
	Name  string     `yaml:"name"`
	Clamp *ClampSpec `yaml:"clamp,omitempty"`
}

// BucketFeature derives a labeled band from a cleaned base attribute.
type BucketFeature struct {
	Alias  string     `yaml:"alias"`
	Source string     `yaml:"source"`
	Bucket BucketSpec `yaml:"bucket"`
}

// GroupAggregate declares an auxiliary group-level count keyed by
// (state, period) rather than by entity, e.g. rejected applications per
// state per month. It joins the feature grid on its own key plus the same
// truncated timestamp.
type GroupAggregate struct {
	Alias  string         `yaml:"alias"`
	Filter model.FactKind `yaml:"filter,omitempty"`
}

// FeatureSet is the full declarative definition of one feature table.
type FeatureSet struct {
	Name            string                `yaml:"name"`
	Grain           Grain                 `yaml:"grain"`
	Materialization model.Materialization `yaml:"materialization,omitempty"`
	Base            []BaseAttribute       `yaml:"base"`
	Buckets         []BucketFeature       `yaml:"buckets"`
	Rolling         []RollingSet          `yaml:"rolling"`
	Groups          []GroupAggregate      `yaml:"groups"`
}

// Validate checks the whole set before execution. Any failure is a
// ConfigError and aborts the build with no partial output.
func (s FeatureSet) Validate() error {
	if s.Name == "" {
		return &ConfigError{Field: "feature_set.name", Reason: "required"}
	}
	if !s.Grain.Valid() {
		return &ConfigError{Field: "feature_set.grain", Reason: "must be day or month"}
	}
	switch s.Materialization {
	case "", model.MaterializeFull, model.MaterializeEphemeral:
	case model.MaterializeIncremental:
		return &ConfigError{Field: "feature_set.materialization", Reason: "incremental materialization is not supported; builds are full rebuilds"}
	default:
		return &ConfigError{Field: "feature_set.materialization", Reason: fmt.Sprintf("unknown strategy %q", s.Materialization)}
	}

	baseNames := make(map[string]bool, len(s.Base))
	for _, b := range s.Base {
		if b.Name == "" {
			return &ConfigError{Field: "base", Reason: "attribute name is required"}
		}
		if baseNames[b.Name] {
			return &ConfigError{Field: b.Name, Reason: "duplicate base attribute"}
		}
		baseNames[b.Name] = true
		if b.Clamp != nil {
			if err := b.Clamp.Validate(); err != nil {
				return err
			}
		}
	}
	for _, bf := range s.Buckets {
		if !baseNames[bf.Source] {
			return &ConfigError{Field: bf.Alias, Reason: fmt.Sprintf("bucket source %q is not a declared base attribute", bf.Source)}
		}
		if err := bf.Bucket.Validate(); err != nil {
			return err
		}
	}
	for _, rs := range s.Rolling {
		if err := rs.Validate(); err != nil {
			return err
		}
		if rs.Window.Grain != s.Grain {
			return &ConfigError{Field: rs.Name, Reason: "rolling window grain must match the feature set grain"}
		}
	}
	return nil
}

// RequiredAttributes lists the fact attributes the set reads, for schema
// checking before aggregation.
func (s FeatureSet) RequiredAttributes() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, b := range s.Base {
		add(b.Name)
	}
	for _, rs := range s.Rolling {
		for _, a := range rs.Aggregates {
			add(a.Source)
		}
	}
	return out
}

// RollingAliases lists every rolling output column across all sets.
func (s FeatureSet) RollingAliases() []string {
	var out []string
	for _, rs := range s.Rolling {
		out = append(out, rs.Aliases()...)
	}
	return out
}

// Column describes one output column of the assembled table.
type Column struct {
	Name string
	Text bool
}

// Columns returns the feature columns in stable output order: base
// attributes, bucket labels, rolling aggregates, auxiliary group counts.
// The (entity_id, event_timestamp, state) key columns are implicit.
func (s FeatureSet) Columns() []Column {
	var cols []Column
	for _, b := range s.Base {
		cols = append(cols, Column{Name: b.Name})
	}
	for _, bf := range s.Buckets {
		cols = append(cols, Column{Name: bf.Alias, Text: true})
	}
	for _, alias := range s.RollingAliases() {
		cols = append(cols, Column{Name: alias})
	}
	for _, g := range s.Groups {
		cols = append(cols, Column{Name: g.Alias})
	}
	return cols
}

type periodKey struct {
	entity string
	ts     int64
}

type groupKey struct {
	state string
	ts    int64
}

// groupCounts computes each auxiliary group aggregate over the whole fact
// stream: count of matching facts per (state, truncated period).
func groupCounts(set FeatureSet, facts []model.Fact) map[string]map[groupKey]float64 {
	out := make(map[string]map[groupKey]float64, len(set.Groups))
	for _, g := range set.Groups {
		counts := make(map[groupKey]float64)
		for _, f := range facts {
			if g.Filter != "" && f.Kind != g.Filter {
				continue
			}
			if f.State == "" {
				continue
			}
			k := groupKey{state: f.State, ts: set.Grain.Truncate(f.EventTimestamp).Unix()}
			counts[k]++
		}
		out[g.Alias] = counts
	}
	return out
}

// Assemble outer-composes the cleaned base attributes, bucket labels,
// rolling aggregates, and auxiliary group counts into one FeatureRow per
// snapshot. The composition is left-preserving on the grid: every snapshot
// appears exactly once, and an absent contribution becomes a null column,
// never a dropped row.
//
// rolling holds per-snapshot aggregate maps aligned index-for-index with
// joined (as produced by the rolling aggregator).
func Assemble(set FeatureSet, joined []SnapshotFacts, facts []model.Fact, rolling []map[string]*float64) []model.FeatureRow {
	// The base attributes of a snapshot come from the fact that created its
	// period; with several facts in one period the latest raw timestamp
	// wins, which keeps reruns byte-identical.
	latest := make(map[periodKey]model.Fact, len(facts))
	for _, f := range facts {
		k := periodKey{entity: f.EntityID, ts: set.Grain.Truncate(f.EventTimestamp).Unix()}
		if cur, ok := latest[k]; !ok || f.EventTimestamp.After(cur.EventTimestamp) {
			latest[k] = f
		}
	}

	groups := groupCounts(set, facts)

	rows := make([]model.FeatureRow, 0, len(joined))
	for i, sf := range joined {
		snap := sf.Snapshot
		row := model.FeatureRow{
			EntityID:       snap.EntityID,
			EventTimestamp: snap.Timestamp,
			Base:           make(map[string]*float64, len(set.Base)),
			Buckets:        make(map[string]*string, len(set.Buckets)),
			Rolling:        rolling[i],
			Aux:            make(map[string]*float64, len(set.Groups)),
		}

		src, ok := latest[periodKey{entity: snap.EntityID, ts: snap.Timestamp.Unix()}]
		if ok {
			row.State = src.State
		}
		for _, b := range set.Base {
			var v *float64
			if ok {
				v = src.Value(b.Name)
				if b.Clamp != nil {
					v = b.Clamp.Apply(v)
				}
			}
			row.Base[b.Name] = v
		}
		for _, bf := range set.Buckets {
			row.Buckets[bf.Alias] = bf.Bucket.Label(row.Base[bf.Source])
		}
		for _, g := range set.Groups {
			if row.State == "" {
				row.Aux[g.Alias] = nil
				continue
			}
			k := groupKey{state: row.State, ts: snap.Timestamp.Unix()}
			if n, found := groups[g.Alias][k]; found {
				v := n
				row.Aux[g.Alias] = &v
			} else {
				row.Aux[g.Alias] = nil
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// ComputeRolling evaluates every rolling set for every snapshot, returning
// one merged alias map per snapshot, aligned with joined.
func ComputeRolling(set FeatureSet, joined []SnapshotFacts) []map[string]*float64 {
	out := make([]map[string]*float64, len(joined))
	for i, sf := range joined {
		merged := make(map[string]*float64)
		for _, rs := range set.Rolling {
			for alias, v := range rs.Compute(sf) {
				merged[alias] = v
			}
		}
		out[i] = merged
	}
	return out
}
