// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

package col

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVecBasics(t *testing.T) {
	v := MakeInt64s(1, 2, 3)
	require.Equal(t, Int64, v.Type())
	require.Equal(t, 3, v.Len())
	require.Equal(t, int64(2), v.Datum(1))

	cut := v.Cut(0, 1)
	require.Equal(t, 1, cut.Len())
	require.Equal(t, int64(1), cut.Datum(0))

	require.NoError(t, v.AppendDatum(int64(4)))
	require.Equal(t, 4, v.Len())
	require.Error(t, v.AppendDatum("nope"))
}

func TestCastDatum(t *testing.T) {
	for _, tc := range []struct {
		in   interface{}
		to   T
		want interface{}
	}{
		{int64(7), UInt32, uint32(7)},
		{int64(7), Float64, 7.0},
		{uint32(9), Int64, int64(9)},
		{3.0, Int64, int64(3)},
		{"s", String, "s"},
		{true, Bool, true},
	} {
		got, err := CastDatum(tc.in, tc.to)
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}

	_, err := CastDatum("s", Int64)
	require.Error(t, err)
	_, err = CastDatum(true, Float64)
	require.Error(t, err)
}

func TestCastVec(t *testing.T) {
	v, err := CastVec(MakeUInt32s(1, 2), Int64)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, v.Int64s())

	same, err := CastVec(v, Int64)
	require.NoError(t, err)
	require.Equal(t, v, same)
}

func TestConstColumn(t *testing.T) {
	c := NewConstColumn("v", UInt32, uint32(42), 5)
	require.True(t, c.IsConst())
	require.Equal(t, 5, c.Len())
	require.Equal(t, uint32(42), c.Datum(3))

	resized := c.CloneResized(2)
	require.True(t, resized.IsConst())
	require.Equal(t, 2, resized.Len())
	require.Equal(t, uint32(42), resized.ConstValue())

	cast, err := c.Cast(Int64)
	require.NoError(t, err)
	require.True(t, cast.IsConst())
	require.Equal(t, int64(42), cast.ConstValue())
}

func TestColumnCloneResizedFromMaterialized(t *testing.T) {
	c := NewColumn("v", MakeInt64s(7, 8, 9))
	clone := c.CloneResized(4)
	require.True(t, clone.IsConst())
	require.Equal(t, 4, clone.Len())
	require.Equal(t, int64(7), clone.ConstValue())
}

func TestBlock(t *testing.T) {
	b := NewBlock(
		NewColumn("a", MakeInt64s(1, 2)),
		NewColumn("b", MakeStrings("x", "y")),
	)
	require.Equal(t, 2, b.Rows())
	require.Equal(t, 2, b.NumCols())
	require.False(t, b.Empty())
	require.True(t, b.Has("a"))
	require.False(t, b.Has("c"))

	c, err := b.ByName("b")
	require.NoError(t, err)
	require.Equal(t, "x", c.Datum(0))

	_, err = b.ByName("c")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found column c")

	header := NewBlock(NewDescriptor("a", Int64), NewDescriptor("b", String))
	require.True(t, b.SchemaEqual(header))
	require.Equal(t, 0, header.Rows())

	other := NewBlock(NewDescriptor("a", Int64), NewDescriptor("b", Int64))
	require.False(t, b.SchemaEqual(other))

	var nilBlock *Block
	require.True(t, nilBlock.Empty())
	require.Equal(t, 0, nilBlock.Rows())
}
