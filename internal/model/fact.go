package model

import "time"

// FactKind distinguishes accepted loan events from rejected applications.
type FactKind string

const (
	FactAccepted FactKind = "accepted"
	FactRejected FactKind = "rejected"
)

// Fact is one immutable historical event tied to an entity. Numeric
// attributes live in Values; a nil pointer means the source column was null.
type Fact struct {
	EntityID       string              `json:"entity_id"`
	State          string              `json:"state,omitempty"`
	Kind           FactKind            `json:"kind"`
	EventTimestamp time.Time           `json:"event_timestamp"`
	Values         map[string]*float64 `json:"values,omitempty"`
}

// Value returns the named numeric attribute, or nil when absent or null.
func (f Fact) Value(name string) *float64 {
	if f.Values == nil {
		return nil
	}
	return f.Values[name]
}

// Snapshot is one (entity, period) evaluation point on the feature grid.
type Snapshot struct {
	EntityID  string    `json:"entity_id"`
	Timestamp time.Time `json:"timestamp"`
}

// FeatureRow is one assembled output record keyed by
// (entity_id, event_timestamp).
type FeatureRow struct {
	EntityID       string              `json:"entity_id"`
	EventTimestamp time.Time           `json:"event_timestamp"`
	State          string              `json:"state,omitempty"`
	Base           map[string]*float64 `json:"base,omitempty"`
	Rolling        map[string]*float64 `json:"rolling,omitempty"`
	Buckets        map[string]*string  `json:"buckets,omitempty"`
	Aux            map[string]*float64 `json:"aux,omitempty"`
}

// BaseValue returns a cleaned base attribute, nil when null.
func (r FeatureRow) BaseValue(name string) *float64 {
	if r.Base == nil {
		return nil
	}
	return r.Base[name]
}

// RollingValue returns a rolling aggregate, nil when null.
func (r FeatureRow) RollingValue(alias string) *float64 {
	if r.Rolling == nil {
		return nil
	}
	return r.Rolling[alias]
}
