package feature

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/featuremart/internal/model"
)

func fact(entity string, ts time.Time, values map[string]*float64) model.Fact {
	return model.Fact{
		EntityID:       entity,
		Kind:           model.FactAccepted,
		EventTimestamp: ts,
		Values:         values,
	}
}

func TestBuildGrid(t *testing.T) {
	t.Parallel()

	facts := []model.Fact{
		fact("loan-2", month(2020, time.April), nil),
		fact("loan-1", time.Date(2020, time.January, 15, 9, 0, 0, 0, time.UTC), nil),
		// Same entity, same month, different day: one snapshot.
		fact("loan-1", time.Date(2020, time.January, 28, 0, 0, 0, 0, time.UTC), nil),
		fact("loan-1", month(2020, time.April), nil),
	}

	grid := BuildGrid(facts, GrainMonth)
	require.Len(t, grid, 3)

	assert.Equal(t, model.Snapshot{EntityID: "loan-1", Timestamp: month(2020, time.January)}, grid[0])
	assert.Equal(t, model.Snapshot{EntityID: "loan-1", Timestamp: month(2020, time.April)}, grid[1])
	assert.Equal(t, model.Snapshot{EntityID: "loan-2", Timestamp: month(2020, time.April)}, grid[2])
}

func TestBuildGridSparse(t *testing.T) {
	t.Parallel()

	// Gaps in activity never synthesize snapshots.
	facts := []model.Fact{
		fact("loan-1", month(2020, time.January), nil),
		fact("loan-1", month(2020, time.December), nil),
	}
	grid := BuildGrid(facts, GrainMonth)
	require.Len(t, grid, 2)
	assert.Equal(t, month(2020, time.January), grid[0].Timestamp)
	assert.Equal(t, month(2020, time.December), grid[1].Timestamp)
}

func TestBuildGridEmpty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, BuildGrid(nil, GrainMonth))
}

func TestCheckSchema(t *testing.T) {
	t.Parallel()

	facts := []model.Fact{
		fact("loan-1", month(2020, time.January), map[string]*float64{
			"loan_amount": fp(1000),
			"dti":         nil,
		}),
		fact("loan-2", month(2020, time.February), map[string]*float64{
			"loan_amount": fp(2000),
		}),
	}

	assert.NoError(t, CheckSchema(facts, []string{"loan_amount"}))

	err := CheckSchema(facts, []string{"loan_amount", "dti"})
	require.Error(t, err)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "dti", schemaErr.Column)
}

func TestEarliestPeriods(t *testing.T) {
	t.Parallel()

	facts := []model.Fact{
		fact("loan-1", month(2020, time.June), nil),
		fact("loan-1", time.Date(2020, time.January, 20, 0, 0, 0, 0, time.UTC), nil),
		fact("loan-2", month(2021, time.March), nil),
	}

	earliest := EarliestPeriods(facts, GrainMonth)
	require.Len(t, earliest, 2)
	assert.Equal(t, month(2020, time.January), earliest["loan-1"])
	assert.Equal(t, month(2021, time.March), earliest["loan-2"])
}
