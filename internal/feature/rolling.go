package feature

import (
	"fmt"

	"github.com/sells-group/featuremart/internal/model"
)

// AggregateKind names a rolling reduction.
type AggregateKind string

const (
	AggSum     AggregateKind = "sum"
	AggCount   AggregateKind = "count"
	AggCountIf AggregateKind = "count_if"
)

// AggregateSpec declares one named rolling aggregate: an alias, a kind, the
// source attribute (sum only), and an optional fact-kind filter (count_if).
type AggregateSpec struct {
	Alias  string         `yaml:"alias"`
	Kind   AggregateKind  `yaml:"kind"`
	Source string         `yaml:"source,omitempty"`
	Filter model.FactKind `yaml:"filter,omitempty"`
}

// RatioSpec declares a derived average computed with safe division:
// null whenever the denominator aggregate is null or zero.
type RatioSpec struct {
	Alias       string `yaml:"alias"`
	Numerator   string `yaml:"numerator"`
	Denominator string `yaml:"denominator"`
}

// RollingSet groups the aggregates that share one window. Mixing window
// boundaries inside a set is not a supported mode, so the window lives on
// the set, not on the individual aggregates.
type RollingSet struct {
	Name       string          `yaml:"name"`
	Window     WindowSpec      `yaml:"window"`
	Aggregates []AggregateSpec `yaml:"aggregates"`
	Ratios     []RatioSpec     `yaml:"ratios"`
}

// Validate checks the set before execution: window bounds, aggregate
// shapes, and that every ratio references a declared alias.
func (rs RollingSet) Validate() error {
	if err := rs.Window.Validate(); err != nil {
		return err
	}
	aliases := make(map[string]bool, len(rs.Aggregates))
	for _, a := range rs.Aggregates {
		if a.Alias == "" {
			return &ConfigError{Field: rs.Name, Reason: "aggregate alias is required"}
		}
		if aliases[a.Alias] {
			return &ConfigError{Field: a.Alias, Reason: "duplicate aggregate alias"}
		}
		aliases[a.Alias] = true
		switch a.Kind {
		case AggSum:
			if a.Source == "" {
				return &ConfigError{Field: a.Alias, Reason: "sum requires a source attribute"}
			}
		case AggCount:
		case AggCountIf:
			if a.Filter == "" {
				return &ConfigError{Field: a.Alias, Reason: "count_if requires a filter"}
			}
		default:
			return &ConfigError{Field: a.Alias, Reason: fmt.Sprintf("unknown aggregate kind %q", a.Kind)}
		}
	}
	for _, r := range rs.Ratios {
		if r.Alias == "" {
			return &ConfigError{Field: rs.Name, Reason: "ratio alias is required"}
		}
		if !aliases[r.Numerator] {
			return &ConfigError{Field: r.Alias, Reason: fmt.Sprintf("numerator %q is not a declared aggregate", r.Numerator)}
		}
		if !aliases[r.Denominator] {
			return &ConfigError{Field: r.Alias, Reason: fmt.Sprintf("denominator %q is not a declared aggregate", r.Denominator)}
		}
	}
	return nil
}

// Aliases returns every output column the set produces, aggregates first.
func (rs RollingSet) Aliases() []string {
	out := make([]string, 0, len(rs.Aggregates)+len(rs.Ratios))
	for _, a := range rs.Aggregates {
		out = append(out, a.Alias)
	}
	for _, r := range rs.Ratios {
		out = append(out, r.Alias)
	}
	return out
}

// Compute evaluates the set for one snapshot. Facts in sf.Prior are already
// strictly before the snapshot; Compute further restricts them to the
// half-open window [t − lookback, t).
//
// A snapshot with no prior history at all yields null for every aggregate;
// prior history with an empty window yields 0 for sums and counts by
// aggregation identity. Ratios are null whenever the denominator is null
// or zero.
func (rs RollingSet) Compute(sf SnapshotFacts) map[string]*float64 {
	out := make(map[string]*float64, len(rs.Aggregates)+len(rs.Ratios))

	if len(sf.Prior) == 0 {
		for _, alias := range rs.Aliases() {
			out[alias] = nil
		}
		return out
	}

	t := sf.Snapshot.Timestamp
	for _, a := range rs.Aggregates {
		var acc float64
		for _, f := range sf.Prior {
			if !rs.Window.Contains(f.EventTimestamp, t) {
				continue
			}
			switch a.Kind {
			case AggSum:
				if v := f.Value(a.Source); v != nil {
					acc += *v
				}
			case AggCount:
				acc++
			case AggCountIf:
				if f.Kind == a.Filter {
					acc++
				}
			}
		}
		v := acc
		out[a.Alias] = &v
	}

	for _, r := range rs.Ratios {
		out[r.Alias] = SafeDiv(out[r.Numerator], out[r.Denominator])
	}
	return out
}

// SafeDiv divides num by den, returning null when either side is null or
// the denominator is zero. Zero is a valid numerator.
func SafeDiv(num, den *float64) *float64 {
	if num == nil || den == nil || *den == 0 {
		return nil
	}
	q := *num / *den
	return &q
}
