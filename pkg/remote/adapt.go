// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

package remote

import "github.com/keeldb/keel/pkg/col"

// adaptBlockStructure reshapes a received block to the expected header:
// column order and types follow the header, and columns the header marks as
// constant come back as constant columns. Rows are never reordered,
// deduplicated or filtered.
func adaptBlockStructure(block, header *col.Block) (*col.Block, error) {
	// Special case when the reader doesn't care about the result structure.
	// Deprecated and used only by benchmarks.
	if header.Empty() {
		return block, nil
	}

	res := col.NewBlock()
	res.Info = block.Info

	for _, elem := range header.Cols() {
		var column col.Column

		if elem.IsConst() && elem.ConstValue() != nil {
			// We expect a constant column in the block. If the block is not
			// empty, take the constant's value from it, because it may
			// differ on the remote server for functions like version(),
			// uptime(), ...
			if block.Rows() > 0 && block.Has(elem.Name) {
				// The constant is passed materialized. Take its first value.
				c, err := block.ByName(elem.Name)
				if err != nil {
					return nil, err
				}
				first, _ := c.First()
				val, err := col.CastDatum(first, elem.Typ)
				if err != nil {
					return nil, err
				}
				column = col.NewConstColumn(elem.Name, elem.Typ, val, block.Rows())
			} else {
				column = elem.CloneResized(block.Rows())
			}
		} else {
			c, err := block.ByName(elem.Name)
			if err != nil {
				return nil, err
			}
			if column, err = c.Cast(elem.Typ); err != nil {
				return nil, err
			}
		}

		res.Add(column)
	}
	return res, nil
}
