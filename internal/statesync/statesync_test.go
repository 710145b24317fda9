package statesync

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConditional_PropagatesTruthyOncePerVersion(t *testing.T) {
	var got []string
	c := NewConditional(func(v []string) { got = append(got, v...) }, nil)

	assert.True(t, c.Observe(1, []string{"a"}))
	assert.False(t, c.Observe(1, []string{"a"}))
	assert.True(t, c.Observe(2, []string{"b"}))

	assert.Equal(t, []string{"a", "b"}, got)
}

func TestConditional_IgnoresStaleVersions(t *testing.T) {
	var got []string
	c := NewConditional(func(v string) { got = append(got, v) }, nil)

	assert.True(t, c.Observe(3, "newest"))
	assert.False(t, c.Observe(2, "older"))
	assert.False(t, c.Observe(1, "oldest"))
	assert.Equal(t, []string{"newest"}, got)
}

func TestConditional_SkipsFalsyValues(t *testing.T) {
	calls := 0
	c := NewConditional(func(v string) { calls++ }, nil)

	assert.False(t, c.Observe(1, ""))
	assert.True(t, c.Observe(2, "x"))
	assert.Equal(t, 1, calls)
}

func TestConditional_FalsyVersionIsStillConsumed(t *testing.T) {
	calls := 0
	c := NewConditional(func(v int) { calls++ }, nil)

	assert.False(t, c.Observe(1, 0))
	// Changing the predicate does not replay version 1.
	c.SetPredicate(func(int) bool { return true })
	assert.False(t, c.Observe(1, 0))
	assert.Equal(t, 0, calls)

	assert.True(t, c.Observe(2, 0))
	assert.Equal(t, 1, calls)
}

func TestConditional_ReplacingSetterIsNotAChange(t *testing.T) {
	first, second := 0, 0
	c := NewConditional(func(v int) { first++ }, nil)

	c.Observe(1, 5)
	for i := 0; i < 10; i++ {
		c.SetSetter(func(v int) { second++ })
		c.Observe(1, 5)
	}

	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)

	c.Observe(2, 6)
	assert.Equal(t, 1, second)
}

func TestConditional_NotNilPredicate(t *testing.T) {
	var got [][]int
	c := NewConditional(func(v []int) { got = append(got, v) }, NotNil[[]int])

	assert.False(t, c.Observe(1, nil))
	assert.True(t, c.Observe(2, []int{}))
	assert.Len(t, got, 1)
}

func TestConditional_NilSetter(t *testing.T) {
	c := NewConditional[int](nil, nil)
	assert.False(t, c.Observe(1, 1))
}

func TestWithDefault_SubstitutesNil(t *testing.T) {
	def := []string{"default"}
	var got [][]string
	w := NewWithDefault(func(v []string) { got = append(got, v) }, def)

	assert.True(t, w.Observe(1, nil))
	assert.True(t, w.Observe(2, []string{"x"}))
	assert.False(t, w.Observe(2, []string{"x"}))

	assert.Equal(t, [][]string{{"default"}, {"x"}}, got)
}

func TestWithDefault_IgnoresStaleVersions(t *testing.T) {
	var got []string
	w := NewWithDefault(func(v []string) { got = append(got, v...) }, nil)

	w.Observe(2, []string{"b"})
	assert.False(t, w.Observe(1, []string{"a"}))
	assert.Equal(t, []string{"b"}, got)
}

func TestWithDefault_AlwaysFiresOnChange(t *testing.T) {
	calls := 0
	w := NewWithDefault(func(v *int) { calls++ }, nil)

	w.Observe(1, nil)
	w.Observe(2, nil)
	w.Observe(3, nil)
	assert.Equal(t, 3, calls)
}

func TestWithDefault_ReplacingSetterIsNotAChange(t *testing.T) {
	calls := 0
	w := NewWithDefault(func(v string) { calls++ }, "")
	w.Observe(1, "a")
	w.SetSetter(func(v string) { calls += 10 })
	w.Observe(1, "a")
	assert.Equal(t, 1, calls)
}

func TestTruthy(t *testing.T) {
	var nilMap map[string]int
	var nilPtr *int
	zero := 0

	tests := []struct {
		name string
		got  bool
		want bool
	}{
		{"empty string", Truthy(""), false},
		{"string", Truthy("a"), true},
		{"zero", Truthy(0), false},
		{"int", Truthy(3), true},
		{"false", Truthy(false), false},
		{"true", Truthy(true), true},
		{"nan", Truthy(math.NaN()), false},
		{"float", Truthy(0.5), true},
		{"nil slice", Truthy([]int(nil)), false},
		{"empty slice", Truthy([]int{}), true},
		{"nil map", Truthy(nilMap), false},
		{"nil pointer", Truthy(nilPtr), false},
		{"pointer to zero", Truthy(&zero), true},
		{"nil any", Truthy[any](nil), false},
		{"struct", Truthy(struct{}{}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestIsNil(t *testing.T) {
	assert.True(t, IsNil[any](nil))
	assert.True(t, IsNil([]int(nil)))
	assert.False(t, IsNil([]int{}))
	assert.False(t, IsNil(0))
	assert.False(t, IsNil(""))
}
