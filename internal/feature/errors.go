// Package feature implements the point-in-time feature computation core:
// the entity/period snapshot grid, the leakage-safe as-of join, rolling
// window aggregation, attribute cleaning and bucketization, and final
// feature-row assembly.
package feature

import "fmt"

// ConfigError reports a malformed window or bucket specification. It is
// raised before any aggregation runs.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("feature: invalid config for %s: %s", e.Field, e.Reason)
}

// SchemaError reports a required input column that is absent from the fact
// stream. It is raised before any aggregation runs.
type SchemaError struct {
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("feature: required fact attribute %q not present in input", e.Column)
}
