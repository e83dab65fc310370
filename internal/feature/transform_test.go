package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClamp(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Clamp(nil, 0, 100))
	assert.Nil(t, Clamp(fp(-1), 0, 100), "out-of-range values are discarded, not clipped")
	assert.Nil(t, Clamp(fp(101), 0, 100))

	got := Clamp(fp(50), 0, 100)
	require.NotNil(t, got)
	assert.Equal(t, 50.0, *got)

	// Bounds are inclusive.
	assert.NotNil(t, Clamp(fp(0), 0, 100))
	assert.NotNil(t, Clamp(fp(100), 0, 100))
}

func TestClampIdempotent(t *testing.T) {
	t.Parallel()

	c := ClampSpec{Min: 300, Max: 850}
	once := c.Apply(fp(720))
	twice := c.Apply(once)
	require.NotNil(t, twice)
	assert.Equal(t, *once, *twice)

	assert.Nil(t, c.Apply(c.Apply(fp(900))))
}

func TestClampSpecValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ClampSpec{Min: 0, Max: 1}.Validate())

	var cfgErr *ConfigError
	assert.ErrorAs(t, ClampSpec{Min: 1, Max: 1}.Validate(), &cfgErr)
	assert.ErrorAs(t, ClampSpec{Min: 2, Max: 1}.Validate(), &cfgErr)
}

func TestBucketSpecValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, BucketSpec{Edges: []float64{0, 600, 660, 700}, Labels: []string{"a", "b", "c"}}.Validate())
	assert.NoError(t, BucketSpec{Edges: []float64{0, 10}}.Validate(), "unlabeled spec is valid")

	var cfgErr *ConfigError
	assert.ErrorAs(t, BucketSpec{Edges: []float64{5}}.Validate(), &cfgErr)
	assert.ErrorAs(t, BucketSpec{Edges: []float64{0, 0, 10}}.Validate(), &cfgErr)
	assert.ErrorAs(t, BucketSpec{Edges: []float64{0, 10, 5}}.Validate(), &cfgErr)
	assert.ErrorAs(t, BucketSpec{Edges: []float64{0, 10, 20}, Labels: []string{"only"}}.Validate(), &cfgErr)
}

func TestBucketLabel(t *testing.T) {
	t.Parallel()

	b := BucketSpec{Edges: []float64{0, 600, 660, 700}, Labels: []string{"a", "b", "c"}}

	tests := []struct {
		name  string
		value *float64
		want  string
	}{
		{"first bucket", fp(599), "a"},
		{"middle bucket", fp(650), "b"},
		{"lower edge inclusive", fp(660), "c"},
		{"upper edge exclusive", fp(700), BucketFallback},
		{"above all edges", fp(900), BucketFallback},
		{"below first edge", fp(-1), BucketFallback},
		{"null value", nil, BucketFallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.Label(tt.value)
			require.NotNil(t, got, "a labeled spec always produces exactly one label")
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestBucketLabelUnlabeled(t *testing.T) {
	t.Parallel()

	b := BucketSpec{Edges: []float64{0, 10, 20}}

	got := b.Label(fp(15))
	require.NotNil(t, got)
	assert.Equal(t, "1", *got)

	assert.Nil(t, b.Label(fp(25)), "unlabeled out-of-range maps to null")
	assert.Nil(t, b.Label(nil))
}

func TestBucketCoverage(t *testing.T) {
	t.Parallel()

	// Adjacent buckets partition the covered range: every value inside
	// [first, last) lands in exactly one bucket.
	b := BucketSpec{Edges: []float64{300, 580, 670, 740, 800, 851}, Labels: []string{"poor", "fair", "good", "very_good", "exceptional"}}
	require.NoError(t, b.Validate())

	for v := 300.0; v < 851; v += 0.5 {
		i, ok := b.Index(v)
		require.True(t, ok, "value %v must be covered", v)
		assert.GreaterOrEqual(t, v, b.Edges[i])
		assert.Less(t, v, b.Edges[i+1])
	}
}
