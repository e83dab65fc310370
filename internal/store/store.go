// Package store persists the fact stream, the assembled feature table, and
// the build-run log. Features are always written to a staging table first
// and promoted with a single atomic swap, so readers never observe a
// partial rebuild.
package store

import (
	"context"

	"github.com/sells-group/featuremart/internal/feature"
	"github.com/sells-group/featuremart/internal/model"
)

// RunFilter specifies criteria for listing build runs.
type RunFilter struct {
	Status model.RunStatus
	Limit  int
}

// Store defines the persistence interface for the feature build.
type Store interface {
	// Facts
	InsertFacts(ctx context.Context, facts []model.Fact) (int64, error)
	LoadFacts(ctx context.Context) ([]model.Fact, error)

	// Feature table lifecycle: stage the full rebuild, then promote it.
	// Promote replaces the live table atomically; on a rejected build the
	// staging table is left in place for diagnosis.
	CreateStaging(ctx context.Context, set feature.FeatureSet) error
	WriteStaging(ctx context.Context, set feature.FeatureSet, rows []model.FeatureRow) (int64, error)
	Promote(ctx context.Context) error

	// Build-run log
	StartRun(ctx context.Context, run *model.BuildRun) error
	FinishRun(ctx context.Context, run *model.BuildRun) error
	GetRun(ctx context.Context, id string) (*model.BuildRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.BuildRun, error)
	SaveViolations(ctx context.Context, runID string, violations []model.Violation) error
	ListViolations(ctx context.Context, runID string) ([]model.Violation, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// factAttributeColumns is the physical attribute layout of the facts table,
// matching the cleaned import contract. The catalog may use any subset.
var factAttributeColumns = []string{
	"loan_amount",
	"funded_amount",
	"annual_income",
	"dti",
	"int_rate_pct",
	"revol_util_pct",
	"fico_avg",
}

// featureRowValues flattens one row into the staging column order:
// entity_id, event_timestamp, state, then the set's feature columns.
func featureRowValues(set feature.FeatureSet, row model.FeatureRow) []any {
	cols := set.Columns()
	vals := make([]any, 0, len(cols)+3)

	var state any
	if row.State != "" {
		state = row.State
	}
	vals = append(vals, row.EntityID, row.EventTimestamp, state)

	for _, col := range cols {
		if col.Text {
			if v := row.Buckets[col.Name]; v != nil {
				vals = append(vals, *v)
			} else {
				vals = append(vals, nil)
			}
			continue
		}
		var v *float64
		if bv, ok := row.Base[col.Name]; ok {
			v = bv
		} else if rv, ok := row.Rolling[col.Name]; ok {
			v = rv
		} else if av, ok := row.Aux[col.Name]; ok {
			v = av
		}
		if v != nil {
			vals = append(vals, *v)
		} else {
			vals = append(vals, nil)
		}
	}
	return vals
}

// stagingColumns returns the staging table column names in write order.
func stagingColumns(set feature.FeatureSet) []string {
	cols := set.Columns()
	names := make([]string, 0, len(cols)+3)
	names = append(names, "entity_id", "event_timestamp", "state")
	for _, c := range cols {
		names = append(names, c.Name)
	}
	return names
}
