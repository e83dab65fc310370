// Package catalog loads the declarative feature-set definitions: which base
// attributes to clean, which bands to bucketize, which rolling aggregates to
// compute over which window, and the data-quality thresholds. All of it is
// evaluated at build time; none of it is a runtime API.
package catalog

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/featuremart/internal/feature"
	"github.com/sells-group/featuremart/internal/model"
)

// ValidationConfig holds the rule parameters the catalog may override.
type ValidationConfig struct {
	// NullRateThreshold is the maximum tolerated fraction of rows with all
	// rolling aggregates null despite prior history.
	NullRateThreshold float64 `yaml:"null_rate_threshold"`
}

// Catalog is one parsed feature-set definition file.
type Catalog struct {
	FeatureSet feature.FeatureSet `yaml:"feature_set"`
	Validation ValidationConfig   `yaml:"validation"`
}

// Load reads and validates a catalog file. Any malformed window or bucket
// spec fails here, before any data is touched.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}

	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, eris.Wrapf(err, "catalog: parse %s", path)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if err := c.FeatureSet.Validate(); err != nil {
		return err
	}
	if c.Validation.NullRateThreshold == 0 {
		c.Validation.NullRateThreshold = 0.05
	}
	if c.Validation.NullRateThreshold < 0 || c.Validation.NullRateThreshold > 1 {
		return &feature.ConfigError{Field: "validation.null_rate_threshold", Reason: "must be within [0, 1]"}
	}
	return nil
}

// Default returns the built-in credit-risk catalog: cleaned Lending Club
// base attributes, the fico band bucketization, the customer 12-month
// rolling set, and the per-state monthly reject count.
func Default() *Catalog {
	return &Catalog{
		FeatureSet: feature.FeatureSet{
			Name:            "credit_risk_features",
			Grain:           feature.GrainMonth,
			Materialization: model.MaterializeFull,
			Base: []feature.BaseAttribute{
				{Name: "loan_amount", Clamp: &feature.ClampSpec{Min: 0, Max: 100000}},
				{Name: "funded_amount", Clamp: &feature.ClampSpec{Min: 0, Max: 100000}},
				{Name: "annual_income", Clamp: &feature.ClampSpec{Min: 0, Max: 10000000}},
				{Name: "dti", Clamp: &feature.ClampSpec{Min: 0, Max: 100}},
				{Name: "int_rate_pct", Clamp: &feature.ClampSpec{Min: 0, Max: 40}},
				{Name: "revol_util_pct", Clamp: &feature.ClampSpec{Min: 0, Max: 150}},
				{Name: "fico_avg", Clamp: &feature.ClampSpec{Min: 300, Max: 850}},
			},
			Buckets: []feature.BucketFeature{
				{
					Alias:  "fico_band",
					Source: "fico_avg",
					Bucket: feature.BucketSpec{
						Edges:  []float64{300, 580, 670, 740, 800, 851},
						Labels: []string{"poor", "fair", "good", "very_good", "exceptional"},
					},
				},
			},
			Rolling: []feature.RollingSet{
				{
					Name:   "customer_rolling_12m",
					Window: feature.WindowSpec{Lookback: 12, Grain: feature.GrainMonth},
					Aggregates: []feature.AggregateSpec{
						{Alias: "prior_12m_loan_cnt", Kind: feature.AggCount},
						{Alias: "prior_12m_loan_amt", Kind: feature.AggSum, Source: "loan_amount"},
						{Alias: "prior_12m_int_rate_sum", Kind: feature.AggSum, Source: "int_rate_pct"},
						{Alias: "prior_12m_dti_sum", Kind: feature.AggSum, Source: "dti"},
					},
					Ratios: []feature.RatioSpec{
						{Alias: "prior_12m_avg_int_rate", Numerator: "prior_12m_int_rate_sum", Denominator: "prior_12m_loan_cnt"},
						{Alias: "prior_12m_avg_dti", Numerator: "prior_12m_dti_sum", Denominator: "prior_12m_loan_cnt"},
					},
				},
			},
			Groups: []feature.GroupAggregate{
				{Alias: "state_rejects_in_month", Filter: model.FactRejected},
			},
		},
		Validation: ValidationConfig{NullRateThreshold: 0.05},
	}
}
