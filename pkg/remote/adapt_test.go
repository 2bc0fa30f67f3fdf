// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

package remote

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keeldb/keel/pkg/col"
)

func TestAdaptBlockStructure(t *testing.T) {
	header := col.NewBlock(
		col.NewDescriptor("a", col.Int64),
		col.NewDescriptor("b", col.String),
	)

	t.Run("reorders columns to the header", func(t *testing.T) {
		block := col.NewBlock(
			col.NewColumn("b", col.MakeStrings("x", "y")),
			col.NewColumn("a", col.MakeInt64s(1, 2)),
		)
		res, err := adaptBlockStructure(block, header)
		require.NoError(t, err)
		require.True(t, res.SchemaEqual(header))
		require.Equal(t, int64(1), res.Col(0).Datum(0))
		require.Equal(t, "x", res.Col(1).Datum(0))
	})

	t.Run("casts column types", func(t *testing.T) {
		block := col.NewBlock(
			col.NewColumn("a", col.MakeUInt32s(7, 8)),
			col.NewColumn("b", col.MakeStrings("x", "y")),
		)
		res, err := adaptBlockStructure(block, header)
		require.NoError(t, err)
		require.Equal(t, col.Int64, res.Col(0).Typ)
		require.Equal(t, int64(7), res.Col(0).Datum(0))
	})

	t.Run("missing column is an error", func(t *testing.T) {
		block := col.NewBlock(
			col.NewColumn("a", col.MakeInt64s(1)),
		)
		_, err := adaptBlockStructure(block, header)
		require.Error(t, err)
		require.Contains(t, err.Error(), "not found column b")
	})

	t.Run("empty header returns the block unchanged", func(t *testing.T) {
		block := col.NewBlock(col.NewColumn("whatever", col.MakeInt64s(1)))
		res, err := adaptBlockStructure(block, col.NewBlock())
		require.NoError(t, err)
		require.Equal(t, block, res)
	})

	t.Run("block info is carried over", func(t *testing.T) {
		block := col.NewBlock(
			col.NewColumn("a", col.MakeInt64s(1)),
			col.NewColumn("b", col.MakeStrings("x")),
		)
		block.Info = col.Info{IsOverflows: true, BucketNum: 3}
		res, err := adaptBlockStructure(block, header)
		require.NoError(t, err)
		require.Equal(t, block.Info, res.Info)
	})
}

func TestAdaptConstColumns(t *testing.T) {
	constHeader := col.NewBlock(
		col.NewConstColumn("v", col.UInt32, uint32(42), 0),
	)

	t.Run("first value wins over the declared constant", func(t *testing.T) {
		// The server materializes constants; the received first value may
		// differ from the declared one for functions like version().
		block := col.NewBlock(col.NewColumn("v", col.MakeUInt32s(7, 7, 7)))
		res, err := adaptBlockStructure(block, constHeader)
		require.NoError(t, err)
		c := res.Col(0)
		require.True(t, c.IsConst())
		require.Equal(t, 3, c.Len())
		require.Equal(t, uint32(7), c.ConstValue())
	})

	t.Run("declared constant fills in for a missing column", func(t *testing.T) {
		block := col.NewBlock(col.NewColumn("other", col.MakeInt64s(1, 2)))
		res, err := adaptBlockStructure(block, constHeader)
		require.NoError(t, err)
		c := res.Col(0)
		require.True(t, c.IsConst())
		require.Equal(t, 2, c.Len())
		require.Equal(t, uint32(42), c.ConstValue())
	})

	t.Run("materialized constant is cast to the header type", func(t *testing.T) {
		block := col.NewBlock(col.NewColumn("v", col.MakeInt64s(9, 9)))
		res, err := adaptBlockStructure(block, constHeader)
		require.NoError(t, err)
		c := res.Col(0)
		require.True(t, c.IsConst())
		require.Equal(t, col.UInt32, c.Typ)
		require.Equal(t, uint32(9), c.ConstValue())
	})
}
