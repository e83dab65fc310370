package feature

import "fmt"

// Clamp returns v unchanged when it lies inside [min, max] and null
// otherwise. Out-of-range values are discarded, never clipped to the
// boundary: the cleaning policy is "don't fabricate data".
func Clamp(v *float64, min, max float64) *float64 {
	if v == nil || *v < min || *v > max {
		return nil
	}
	return v
}

// ClampSpec declares a range clamp for one base attribute.
type ClampSpec struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Validate checks the bounds ordering.
func (c ClampSpec) Validate() error {
	if c.Min >= c.Max {
		return &ConfigError{Field: "clamp", Reason: fmt.Sprintf("min %v must be below max %v", c.Min, c.Max)}
	}
	return nil
}

// Apply clamps v to the declared range.
func (c ClampSpec) Apply(v *float64) *float64 {
	return Clamp(v, c.Min, c.Max)
}

// BucketFallback is the reserved label for values outside every bucket,
// including null.
const BucketFallback = "other"

// BucketSpec discretizes a continuous attribute into labeled bands. Edges
// are strictly ascending breakpoints; value v falls into bucket i when
// edges[i] <= v < edges[i+1].
type BucketSpec struct {
	Edges  []float64 `yaml:"edges"`
	Labels []string  `yaml:"labels,omitempty"`
}

// Validate checks edge ordering and the label/edge count contract.
func (b BucketSpec) Validate() error {
	if len(b.Edges) < 2 {
		return &ConfigError{Field: "bucket.edges", Reason: "at least two edges required"}
	}
	for i := 1; i < len(b.Edges); i++ {
		if b.Edges[i] <= b.Edges[i-1] {
			return &ConfigError{Field: "bucket.edges", Reason: fmt.Sprintf("edges must be strictly ascending, got %v <= %v", b.Edges[i], b.Edges[i-1])}
		}
	}
	if len(b.Labels) > 0 && len(b.Labels) != len(b.Edges)-1 {
		return &ConfigError{Field: "bucket.labels", Reason: fmt.Sprintf("want %d labels for %d edges, got %d", len(b.Edges)-1, len(b.Edges), len(b.Labels))}
	}
	return nil
}

// Index returns the bucket index for v, or ok=false when v falls outside
// every [edges[i], edges[i+1]) range.
func (b BucketSpec) Index(v float64) (int, bool) {
	for i := 0; i < len(b.Edges)-1; i++ {
		if v >= b.Edges[i] && v < b.Edges[i+1] {
			return i, true
		}
	}
	return 0, false
}

// Label maps v to its bucket label. Exactly one label is always produced:
// out-of-range and null values map to the reserved fallback when the spec
// is labeled, and to null when it is not.
func (b BucketSpec) Label(v *float64) *string {
	labeled := len(b.Labels) > 0
	if v != nil {
		if i, ok := b.Index(*v); ok {
			var s string
			if labeled {
				s = b.Labels[i]
			} else {
				s = fmt.Sprintf("%d", i)
			}
			return &s
		}
	}
	if labeled {
		s := BucketFallback
		return &s
	}
	return nil
}
