package feature

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/featuremart/internal/model"
)

func testFeatureSet() FeatureSet {
	return FeatureSet{
		Name:  "loan_features",
		Grain: GrainMonth,
		Base: []BaseAttribute{
			{Name: "loan_amount"},
			{Name: "fico_avg", Clamp: &ClampSpec{Min: 300, Max: 850}},
		},
		Buckets: []BucketFeature{
			{
				Alias:  "fico_band",
				Source: "fico_avg",
				Bucket: BucketSpec{Edges: []float64{300, 670, 851}, Labels: []string{"subprime", "prime"}},
			},
		},
		Rolling: []RollingSet{
			{
				Name:   "rolling_6m",
				Window: WindowSpec{Lookback: 6, Grain: GrainMonth},
				Aggregates: []AggregateSpec{
					{Alias: "prior_cnt", Kind: AggCount},
					{Alias: "prior_amt", Kind: AggSum, Source: "loan_amount"},
				},
			},
		},
		Groups: []GroupAggregate{
			{Alias: "state_rejects", Filter: model.FactRejected},
		},
	}
}

func TestFeatureSetValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, testFeatureSet().Validate())

	var cfgErr *ConfigError

	s := testFeatureSet()
	s.Name = ""
	assert.ErrorAs(t, s.Validate(), &cfgErr)

	s = testFeatureSet()
	s.Grain = "week"
	assert.ErrorAs(t, s.Validate(), &cfgErr)

	s = testFeatureSet()
	s.Materialization = model.MaterializeIncremental
	assert.ErrorAs(t, s.Validate(), &cfgErr)

	s = testFeatureSet()
	s.Buckets[0].Source = "not_declared"
	assert.ErrorAs(t, s.Validate(), &cfgErr)

	s = testFeatureSet()
	s.Rolling[0].Window.Grain = GrainDay
	assert.ErrorAs(t, s.Validate(), &cfgErr)

	s = testFeatureSet()
	s.Base = append(s.Base, BaseAttribute{Name: "loan_amount"})
	assert.ErrorAs(t, s.Validate(), &cfgErr)
}

func TestFeatureSetColumns(t *testing.T) {
	t.Parallel()

	cols := testFeatureSet().Columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"loan_amount", "fico_avg", "fico_band", "prior_cnt", "prior_amt", "state_rejects"}, names)

	for _, c := range cols {
		assert.Equal(t, c.Name == "fico_band", c.Text)
	}
}

func TestFeatureSetRequiredAttributes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"loan_amount", "fico_avg"}, testFeatureSet().RequiredAttributes())
}

func assembleAll(t *testing.T, set FeatureSet, facts []model.Fact) []model.FeatureRow {
	t.Helper()
	grid := BuildGrid(facts, set.Grain)
	joined := AsOfJoin(grid, facts, set.Grain)
	rolling := ComputeRolling(set, joined)
	return Assemble(set, joined, facts, rolling)
}

func TestAssembleSingleFact(t *testing.T) {
	t.Parallel()

	set := testFeatureSet()
	f := fact("loan-1", month(2020, time.January), map[string]*float64{
		"loan_amount": fp(1000),
		"fico_avg":    fp(712),
	})
	f.State = "CA"

	rows := assembleAll(t, set, []model.Fact{f})
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "loan-1", row.EntityID)
	assert.Equal(t, month(2020, time.January), row.EventTimestamp)
	assert.Equal(t, "CA", row.State)

	require.NotNil(t, row.Base["loan_amount"])
	assert.Equal(t, 1000.0, *row.Base["loan_amount"])

	require.NotNil(t, row.Buckets["fico_band"])
	assert.Equal(t, "prime", *row.Buckets["fico_band"])

	// First ever snapshot: every rolling aggregate is null.
	assert.Nil(t, row.Rolling["prior_cnt"])
	assert.Nil(t, row.Rolling["prior_amt"])

	// The accepted fact does not match the rejected-only group count.
	assert.Nil(t, row.Aux["state_rejects"])
}

func TestAssembleRollingAcrossPeriods(t *testing.T) {
	t.Parallel()

	set := testFeatureSet()
	facts := []model.Fact{
		fact("loan-1", month(2020, time.January), map[string]*float64{"loan_amount": fp(1000), "fico_avg": fp(700)}),
		fact("loan-1", month(2020, time.April), map[string]*float64{"loan_amount": fp(2000), "fico_avg": fp(710)}),
	}

	rows := assembleAll(t, set, facts)
	require.Len(t, rows, 2)

	apr := rows[1]
	require.NotNil(t, apr.Rolling["prior_cnt"])
	assert.Equal(t, 1.0, *apr.Rolling["prior_cnt"])
	require.NotNil(t, apr.Rolling["prior_amt"])
	assert.Equal(t, 1000.0, *apr.Rolling["prior_amt"])

	// Base attributes come from the period's own fact, untouched by history.
	require.NotNil(t, apr.Base["loan_amount"])
	assert.Equal(t, 2000.0, *apr.Base["loan_amount"])
}

func TestAssembleClampAndFallback(t *testing.T) {
	t.Parallel()

	set := testFeatureSet()
	f := fact("loan-1", month(2020, time.January), map[string]*float64{
		"loan_amount": fp(1000),
		"fico_avg":    fp(900), // outside [300, 850]
	})

	rows := assembleAll(t, set, []model.Fact{f})
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Nil(t, row.Base["fico_avg"], "clamp discards the out-of-range value")
	require.NotNil(t, row.Buckets["fico_band"])
	assert.Equal(t, BucketFallback, *row.Buckets["fico_band"], "bucket of a null base is the fallback label")
}

func TestAssembleLatestFactWinsWithinPeriod(t *testing.T) {
	t.Parallel()

	set := testFeatureSet()
	early := fact("loan-1", time.Date(2020, time.January, 3, 0, 0, 0, 0, time.UTC), map[string]*float64{"loan_amount": fp(100), "fico_avg": fp(650)})
	late := fact("loan-1", time.Date(2020, time.January, 28, 0, 0, 0, 0, time.UTC), map[string]*float64{"loan_amount": fp(200), "fico_avg": fp(650)})

	rows := assembleAll(t, set, []model.Fact{late, early})
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Base["loan_amount"])
	assert.Equal(t, 200.0, *rows[0].Base["loan_amount"])
}

func TestAssembleGroupCounts(t *testing.T) {
	t.Parallel()

	set := testFeatureSet()

	reject := func(entity string, ts time.Time) model.Fact {
		f := fact(entity, ts, map[string]*float64{"loan_amount": fp(1), "fico_avg": fp(650)})
		f.Kind = model.FactRejected
		f.State = "TX"
		return f
	}

	facts := []model.Fact{
		reject("loan-1", month(2020, time.January)),
		reject("loan-2", month(2020, time.January)),
		reject("loan-3", month(2020, time.February)),
	}

	rows := assembleAll(t, set, facts)
	require.Len(t, rows, 3)

	byEntity := make(map[string]model.FeatureRow, len(rows))
	for _, r := range rows {
		byEntity[r.EntityID] = r
	}

	jan := byEntity["loan-1"]
	require.NotNil(t, jan.Aux["state_rejects"])
	assert.Equal(t, 2.0, *jan.Aux["state_rejects"], "both January TX rejections count")

	feb := byEntity["loan-3"]
	require.NotNil(t, feb.Aux["state_rejects"])
	assert.Equal(t, 1.0, *feb.Aux["state_rejects"])
}

func TestAssembleGridPreserved(t *testing.T) {
	t.Parallel()

	// Every snapshot in the grid yields exactly one row, with the same key.
	set := testFeatureSet()
	facts := []model.Fact{
		fact("loan-1", month(2020, time.January), map[string]*float64{"loan_amount": fp(1), "fico_avg": fp(650)}),
		fact("loan-1", month(2020, time.March), map[string]*float64{"loan_amount": fp(2), "fico_avg": fp(650)}),
		fact("loan-2", month(2020, time.February), map[string]*float64{"loan_amount": fp(3), "fico_avg": fp(650)}),
	}

	grid := BuildGrid(facts, set.Grain)
	rows := assembleAll(t, set, facts)
	require.Len(t, rows, len(grid))
	for i, snap := range grid {
		assert.Equal(t, snap.EntityID, rows[i].EntityID)
		assert.True(t, snap.Timestamp.Equal(rows[i].EventTimestamp))
	}
}
