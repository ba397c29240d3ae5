package intern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternRoundTrip(t *testing.T) {
	var tbl Table

	a := tbl.Intern("alpha")
	b := tbl.Intern("beta")
	require.NotZero(t, a, "ids are non-zero")
	require.NotZero(t, b)
	assert.NotEqual(t, a, b)

	assert.Equal(t, a, tbl.Intern("alpha"), "same string, same id")
	assert.Equal(t, a, tbl.InternStatic("alpha"))

	s, ok := tbl.Get(a)
	require.True(t, ok)
	assert.Equal(t, "alpha", s)

	assert.Equal(t, 2, tbl.Len())
}

func TestGetUnknown(t *testing.T) {
	var tbl Table
	_, ok := tbl.Get(0)
	assert.False(t, ok, "zero id is the none sentinel")
	_, ok = tbl.Get(42)
	assert.False(t, ok)

	assert.Panics(t, func() { tbl.MustGet(42) })
}

func TestMonotonicAssignment(t *testing.T) {
	var tbl Table
	prev := ID(0)
	for _, s := range []string{"a", "b", "c", "d"} {
		id := tbl.Intern(s)
		assert.Greater(t, id, prev)
		prev = id
	}
}
