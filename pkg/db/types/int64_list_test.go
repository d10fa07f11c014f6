package dbtypes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInt64ListScan(t *testing.T) {
	var l Int64List
	require.NoError(t, l.Scan([]byte("[3,7]")))
	require.Equal(t, Int64List{3, 7}, l)

	require.NoError(t, l.Scan("[]"))
	require.Empty(t, l)

	require.NoError(t, l.Scan(nil))
	require.NotNil(t, l)
	require.Empty(t, l)

	require.NoError(t, l.Scan("null"))
	require.Empty(t, l)

	require.Error(t, l.Scan(42))
	require.Error(t, l.Scan("{1,2}"))
}

func TestInt64ListValue(t *testing.T) {
	v, err := Int64List(nil).Value()
	require.NoError(t, err)
	require.Equal(t, "[]", v)

	v, err = Int64List{5, 9}.Value()
	require.NoError(t, err)
	require.Equal(t, "[5,9]", v)
}

func TestInt64ListAppendUnique(t *testing.T) {
	base := Int64List{1, 2}
	require.Equal(t, Int64List{1, 2}, base.AppendUnique(2))

	grown := base.AppendUnique(3)
	require.Equal(t, Int64List{1, 2, 3}, grown)
	require.Equal(t, Int64List{1, 2}, base, "original must not be mutated")
	require.True(t, grown.Contains(3))
	require.False(t, base.Contains(3))
}
