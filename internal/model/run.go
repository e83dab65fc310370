package model

import "time"

// RunStatus represents the current state of a feature build run.
type RunStatus string

const (
	RunStatusRunning    RunStatus = "running"
	RunStatusValidating RunStatus = "validating"
	RunStatusPromoted   RunStatus = "promoted"
	RunStatusRejected   RunStatus = "rejected"
	RunStatusFailed     RunStatus = "failed"
)

// Materialization describes how a relation is rebuilt on each run.
type Materialization string

const (
	// MaterializeFull recomputes the whole relation and swaps it in.
	MaterializeFull Materialization = "full"
	// MaterializeIncremental appends new periods only. Declared for
	// catalog compatibility; the engine rejects it at config time.
	MaterializeIncremental Materialization = "incremental"
	// MaterializeEphemeral keeps the relation as an in-memory intermediate.
	MaterializeEphemeral Materialization = "ephemeral"
)

// BuildRun represents one invocation of the feature build.
type BuildRun struct {
	ID         string     `json:"id"`
	FeatureSet string     `json:"feature_set"`
	Status     RunStatus  `json:"status"`
	FactCount  int64      `json:"fact_count"`
	RowCount   int64      `json:"row_count"`
	Violations int64      `json:"violations"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Violation is one row that failed a validation rule, with the minimal
// identifying key so operators can trace root cause.
type Violation struct {
	Rule      string    `json:"rule"`
	EntityID  string    `json:"entity_id,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Detail    string    `json:"detail"`
}
