package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOddLength(t *testing.T) {
	assert.Panics(t, func() { New("a", "b") })
	assert.Panics(t, func() { FromLegacyForm([]string{"b"}, []string{"a"}) })
	m := FromLegacyForm([]string{"base"}, []string{"s1", "s2"})
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, []string{"s1", "s2"}, m.Adds())
	assert.Equal(t, []string{"base"}, m.Removes())
}

func TestResolveTrivial(t *testing.T) {
	tests := []struct {
		name     string
		terms    []string
		want     string
		resolved bool
	}{
		{"resolved", []string{"a"}, "a", true},
		{"one_side_changed", []string{"c", "b", "b"}, "c", true},
		{"both_sides_same_change", []string{"a", "b", "a"}, "a", true},
		{"real_conflict", []string{"a", "b", "c"}, "", false},
		{"sides_cancel", []string{"a", "a", "b"}, "b", true},
		{"five_way_collapse", []string{"x", "a", "a", "b", "b"}, "x", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := New(tt.terms...).ResolveTrivial()
			require.Equal(t, tt.resolved, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestSimplifyIdempotent(t *testing.T) {
	m := New("a", "b", "b", "c", "a")
	s := m.Simplify()
	assert.Equal(t, s.Terms(), s.Simplify().Terms())
	assert.True(t, s.Len() <= m.Len())
	// Cancelling the (b,b) pair leaves both sides at a over base c.
	assert.Equal(t, []string{"a", "c", "a"}, s.Terms())
}

func TestIsAbsent(t *testing.T) {
	assert.True(t, New("", "", "").IsAbsent())
	assert.False(t, New("", "", "x").IsAbsent())
}

func TestFlatten(t *testing.T) {
	inner := New("a", "b", "c")
	flat := Flatten([]Merge[string]{inner, Resolved("b"), Resolved("d")})
	assert.Equal(t, 5, flat.Len())
	assert.Equal(t, []string{"a", "c", "d"}, flat.Adds())
	assert.Equal(t, []string{"b", "b"}, flat.Removes())
}

func TestConvert(t *testing.T) {
	m := New(1, 2, 3)
	got := Convert(m, func(v int) string {
		return string(rune('a' + v - 1))
	})
	assert.Equal(t, []string{"a", "b", "c"}, got.Terms())
}
