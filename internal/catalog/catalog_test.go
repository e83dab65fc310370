package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/featuremart/internal/feature"
)

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const validCatalog = `
feature_set:
  name: credit_risk_features
  grain: month
  base:
    - name: loan_amount
      clamp: {min: 0, max: 100000}
    - name: fico_avg
      clamp: {min: 300, max: 850}
  buckets:
    - alias: fico_band
      source: fico_avg
      bucket:
        edges: [300, 580, 670, 740, 800, 851]
        labels: [poor, fair, good, very_good, exceptional]
  rolling:
    - name: customer_rolling_12m
      window: {lookback: 12, grain: month}
      aggregates:
        - {alias: prior_12m_loan_cnt, kind: count}
        - {alias: prior_12m_loan_amt, kind: sum, source: loan_amount}
      ratios:
        - {alias: prior_12m_avg_amt, numerator: prior_12m_loan_amt, denominator: prior_12m_loan_cnt}
  groups:
    - {alias: state_rejects_in_month, filter: rejected}
validation:
  null_rate_threshold: 0.1
`

func TestLoad(t *testing.T) {
	t.Parallel()

	c, err := Load(writeCatalog(t, validCatalog))
	require.NoError(t, err)

	assert.Equal(t, "credit_risk_features", c.FeatureSet.Name)
	assert.Equal(t, feature.GrainMonth, c.FeatureSet.Grain)
	assert.Equal(t, 0.1, c.Validation.NullRateThreshold)

	require.Len(t, c.FeatureSet.Base, 2)
	require.NotNil(t, c.FeatureSet.Base[1].Clamp)
	assert.Equal(t, 300.0, c.FeatureSet.Base[1].Clamp.Min)

	require.Len(t, c.FeatureSet.Rolling, 1)
	assert.Equal(t, 12, c.FeatureSet.Rolling[0].Window.Lookback)
	assert.Equal(t, []string{"prior_12m_loan_cnt", "prior_12m_loan_amt", "prior_12m_avg_amt"},
		c.FeatureSet.Rolling[0].Aliases())
}

func TestLoadDefaultsThreshold(t *testing.T) {
	t.Parallel()

	body := `
feature_set:
  name: minimal
  grain: day
  base:
    - name: loan_amount
`
	c, err := Load(writeCatalog(t, body))
	require.NoError(t, err)
	assert.Equal(t, 0.05, c.Validation.NullRateThreshold)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"missing name", "feature_set:\n  grain: month\n"},
		{"bad grain", "feature_set:\n  name: x\n  grain: week\n"},
		{
			"window grain mismatch",
			`
feature_set:
  name: x
  grain: month
  rolling:
    - name: r
      window: {lookback: 7, grain: day}
      aggregates:
        - {alias: cnt, kind: count}
`,
		},
		{
			"threshold out of range",
			"feature_set:\n  name: x\n  grain: month\nvalidation:\n  null_rate_threshold: 1.5\n",
		},
		{"not yaml", "{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeCatalog(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	t.Parallel()

	c := Default()
	require.NoError(t, c.FeatureSet.Validate())
	assert.Equal(t, 0.05, c.Validation.NullRateThreshold)

	// The built-in catalog exposes its full column set in stable order.
	var names []string
	for _, col := range c.FeatureSet.Columns() {
		names = append(names, col.Name)
	}
	assert.Contains(t, names, "fico_band")
	assert.Contains(t, names, "prior_12m_avg_dti")
	assert.Contains(t, names, "state_rejects_in_month")
}
