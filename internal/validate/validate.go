// Package validate runs declarative data-quality rules against an assembled
// feature table. Each rule is a pure function from the table (plus the raw
// facts it was built from) to a set of violating rows; a table passes a rule
// iff the set is empty, and a single failing rule blocks promotion.
package validate

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/featuremart/internal/feature"
	"github.com/sells-group/featuremart/internal/model"
)

// Input carries everything a rule may inspect. Rules never mutate it.
type Input struct {
	Rows  []model.FeatureRow
	Facts []model.Fact
	Grain feature.Grain
	// Now is the build time used by the non-future rule.
	Now time.Time
	// RollingAliases lists the rolling aggregate columns, for the null-rate
	// rule.
	RollingAliases []string
	// NullRateThreshold is the maximum tolerated fraction of rows whose
	// rolling aggregates are all null despite prior history.
	NullRateThreshold float64
}

// Rule is one named data-quality check.
type Rule struct {
	Name  string
	Check func(Input) []model.Violation
}

// RuleResult is the outcome of one rule over the whole table.
type RuleResult struct {
	Name       string            `json:"name"`
	Violations []model.Violation `json:"violations,omitempty"`
}

// Passed reports whether the rule produced zero violating rows.
func (r RuleResult) Passed() bool { return len(r.Violations) == 0 }

// Report aggregates every rule result for one build.
type Report struct {
	Results []RuleResult `json:"results"`
}

// Passed reports whether every rule passed. Validation is all-or-nothing at
// the table level.
func (r Report) Passed() bool {
	for _, res := range r.Results {
		if !res.Passed() {
			return false
		}
	}
	return true
}

// ViolationCount sums violating rows across all rules.
func (r Report) ViolationCount() int64 {
	var n int64
	for _, res := range r.Results {
		n += int64(len(res.Violations))
	}
	return n
}

// FailedRules names every rule that produced violations.
func (r Report) FailedRules() []string {
	var names []string
	for _, res := range r.Results {
		if !res.Passed() {
			names = append(names, res.Name)
		}
	}
	return names
}

// Violations flattens every violating row across all rules.
func (r Report) Violations() []model.Violation {
	var out []model.Violation
	for _, res := range r.Results {
		out = append(out, res.Violations...)
	}
	return out
}

// Registry holds the ordered rule set for a build. New rules are added by
// registering functions, not by templating queries.
type Registry struct {
	rules []Rule
}

// NewRegistry returns a registry preloaded with the required rules.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(Rule{Name: RuleUniqueGrain, Check: checkUniqueGrain})
	r.Register(Rule{Name: RuleKeyNonNull, Check: checkKeyNonNull})
	r.Register(Rule{Name: RuleNonFuture, Check: checkNonFuture})
	r.Register(Rule{Name: RuleNoLeakage, Check: checkNoLeakage})
	r.Register(Rule{Name: RuleNullRate, Check: checkNullRate})
	return r
}

// Register appends a rule. Rules run in registration order.
func (r *Registry) Register(rule Rule) {
	r.rules = append(r.rules, rule)
}

// Run evaluates every rule and reports all violating rows, not just the
// first failure.
func (r *Registry) Run(in Input) Report {
	log := zap.L().With(zap.String("component", "validate"))
	report := Report{Results: make([]RuleResult, 0, len(r.rules))}

	for _, rule := range r.rules {
		violations := rule.Check(in)
		report.Results = append(report.Results, RuleResult{
			Name:       rule.Name,
			Violations: violations,
		})
		if len(violations) > 0 {
			log.Warn("rule failed",
				zap.String("rule", rule.Name),
				zap.Int("violations", len(violations)),
			)
		} else {
			log.Debug("rule passed", zap.String("rule", rule.Name))
		}
	}
	return report
}
