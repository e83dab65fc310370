// Package build orchestrates one full feature rebuild: load facts, build
// the snapshot grid, join prior history, compute rolling aggregates,
// assemble the feature table, validate it, and promote it atomically.
// Builds are idempotent (identical inputs reproduce identical output) and
// a failed validation never corrupts the previously promoted table.
package build

import (
	"context"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/featuremart/internal/catalog"
	"github.com/sells-group/featuremart/internal/feature"
	"github.com/sells-group/featuremart/internal/model"
	"github.com/sells-group/featuremart/internal/store"
	"github.com/sells-group/featuremart/internal/validate"
)

// Engine runs feature builds against a store using one catalog.
type Engine struct {
	store      store.Store
	cat        *catalog.Catalog
	registry   *validate.Registry
	partitions int
}

// RunOpts configures a single build invocation.
type RunOpts struct {
	// Now is the build time used for the non-future rule. Zero means
	// time.Now().
	Now time.Time
	// DryRun computes and validates but never promotes.
	DryRun bool
}

// Result pairs the recorded run with its validation report.
type Result struct {
	Run    *model.BuildRun
	Report validate.Report
}

// New creates a build engine. partitions bounds the rolling-aggregation
// fan-out; zero means GOMAXPROCS.
func New(s store.Store, cat *catalog.Catalog, partitions int) *Engine {
	if partitions <= 0 {
		partitions = runtime.GOMAXPROCS(0)
	}
	return &Engine{
		store:      s,
		cat:        cat,
		registry:   validate.NewRegistry(),
		partitions: partitions,
	}
}

// Run executes one full rebuild. Schema and configuration problems fail
// fast with no staged output; validation failures stage the computed table
// for diagnosis, record every violating row, and leave the live table
// untouched.
func (e *Engine) Run(ctx context.Context, opts RunOpts) (*Result, error) {
	log := zap.L().With(zap.String("component", "build.engine"))
	set := e.cat.FeatureSet

	if err := set.Validate(); err != nil {
		return nil, err
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	run := &model.BuildRun{
		ID:         uuid.New().String(),
		FeatureSet: set.Name,
		Status:     model.RunStatusRunning,
		StartedAt:  now,
	}
	if err := e.store.StartRun(ctx, run); err != nil {
		return nil, err
	}
	log = log.With(zap.String("run_id", run.ID), zap.String("feature_set", set.Name))
	log.Info("build started")

	result, err := e.compute(ctx, run, set, now, opts.DryRun, log)
	if err != nil {
		run.Status = model.RunStatusFailed
		run.Error = err.Error()
		if finishErr := e.store.FinishRun(ctx, run); finishErr != nil {
			log.Error("failed to record build failure", zap.Error(finishErr))
		}
		return nil, err
	}

	if finishErr := e.store.FinishRun(ctx, run); finishErr != nil {
		log.Error("failed to record build completion", zap.Error(finishErr))
	}
	return result, nil
}

func (e *Engine) compute(ctx context.Context, run *model.BuildRun, set feature.FeatureSet, now time.Time, dryRun bool, log *zap.Logger) (*Result, error) {
	facts, err := e.store.LoadFacts(ctx)
	if err != nil {
		return nil, err
	}
	run.FactCount = int64(len(facts))
	if len(facts) == 0 {
		return nil, eris.New("build: no facts loaded; import facts before building")
	}

	if err := feature.CheckSchema(facts, set.RequiredAttributes()); err != nil {
		return nil, err
	}

	grid := feature.BuildGrid(facts, set.Grain)
	joined := feature.AsOfJoin(grid, facts, set.Grain)
	log.Info("grid built",
		zap.Int("facts", len(facts)),
		zap.Int("snapshots", len(grid)),
	)

	rolling, err := e.computeRolling(ctx, set, joined)
	if err != nil {
		return nil, err
	}

	rows := feature.Assemble(set, joined, facts, rolling)
	run.RowCount = int64(len(rows))

	run.Status = model.RunStatusValidating
	report := e.registry.Run(validate.Input{
		Rows:              rows,
		Facts:             facts,
		Grain:             set.Grain,
		Now:               now,
		RollingAliases:    set.RollingAliases(),
		NullRateThreshold: e.cat.Validation.NullRateThreshold,
	})
	run.Violations = report.ViolationCount()

	// The computed table is staged even when rejected, tagged by run
	// status, so operators can inspect the offending rows.
	if err := e.store.CreateStaging(ctx, set); err != nil {
		return nil, err
	}
	staged, err := e.store.WriteStaging(ctx, set, rows)
	if err != nil {
		return nil, err
	}

	if !report.Passed() {
		if err := e.store.SaveViolations(ctx, run.ID, report.Violations()); err != nil {
			log.Error("failed to persist violations", zap.Error(err))
		}
		run.Status = model.RunStatusRejected
		run.Error = eris.Errorf("build: validation failed: %v", report.FailedRules()).Error()
		log.Warn("build rejected",
			zap.Strings("failed_rules", report.FailedRules()),
			zap.Int64("violations", run.Violations),
		)
		return &Result{Run: run, Report: report}, nil
	}

	if dryRun {
		run.Status = model.RunStatusValidating
		log.Info("dry run complete, skipping promotion", zap.Int64("rows", staged))
		return &Result{Run: run, Report: report}, nil
	}

	if err := e.store.Promote(ctx); err != nil {
		return nil, err
	}
	run.Status = model.RunStatusPromoted
	log.Info("build promoted",
		zap.Int64("rows", staged),
		zap.Duration("elapsed", time.Since(run.StartedAt)),
	)
	return &Result{Run: run, Report: report}, nil
}

// computeRolling fans the per-snapshot window reductions out across
// contiguous chunks. Snapshots are independent, so partitioning is free;
// chunk boundaries need no entity alignment.
func (e *Engine) computeRolling(ctx context.Context, set feature.FeatureSet, joined []feature.SnapshotFacts) ([]map[string]*float64, error) {
	out := make([]map[string]*float64, len(joined))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.partitions)

	chunk := (len(joined) + e.partitions - 1) / e.partitions
	if chunk == 0 {
		chunk = 1
	}
	for start := 0; start < len(joined); start += chunk {
		end := start + chunk
		if end > len(joined) {
			end = len(joined)
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				merged := make(map[string]*float64)
				for _, rs := range set.Rolling {
					for alias, v := range rs.Compute(joined[i]) {
						merged[alias] = v
					}
				}
				out[i] = merged
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "build: rolling aggregation")
	}
	return out, nil
}
