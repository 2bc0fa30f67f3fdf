// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

package col

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Info is the auxiliary information attached to a block by two-level
// aggregation. It travels with the block unchanged.
type Info struct {
	IsOverflows bool
	BucketNum   int32
}

// DefaultInfo returns the Info carried by ordinary blocks.
func DefaultInfo() Info {
	return Info{BucketNum: -1}
}

// Block is an ordered list of equal-length columns. A block with columns but
// no rows describes a schema; such blocks are called headers.
type Block struct {
	Info Info
	cols []Column
}

// NewBlock returns a block over the given columns.
func NewBlock(cols ...Column) *Block {
	return &Block{Info: DefaultInfo(), cols: cols}
}

// NumCols returns the number of columns.
func (b *Block) NumCols() int {
	if b == nil {
		return 0
	}
	return len(b.cols)
}

// Rows returns the number of rows, taken from the first column.
func (b *Block) Rows() int {
	if b == nil || len(b.cols) == 0 {
		return 0
	}
	return b.cols[0].Len()
}

// Empty reports whether the block has no columns at all.
func (b *Block) Empty() bool {
	return b.NumCols() == 0
}

// Cols returns the columns in order.
func (b *Block) Cols() []Column {
	if b == nil {
		return nil
	}
	return b.cols
}

// Col returns the i-th column.
func (b *Block) Col(i int) Column {
	return b.cols[i]
}

// Add appends a column to the block.
func (b *Block) Add(c Column) {
	b.cols = append(b.cols, c)
}

// Has reports whether the block has a column with the given name.
func (b *Block) Has(name string) bool {
	if b == nil {
		return false
	}
	for i := range b.cols {
		if b.cols[i].Name == name {
			return true
		}
	}
	return false
}

// ByName returns the column with the given name.
func (b *Block) ByName(name string) (Column, error) {
	for i := range b.cols {
		if b.cols[i].Name == name {
			return b.cols[i], nil
		}
	}
	return Column{}, errors.Newf("not found column %s in block %s", name, b.DumpNames())
}

// SchemaEqual reports whether two blocks have the same columns, in order,
// by name and type.
func (b *Block) SchemaEqual(o *Block) bool {
	if b.NumCols() != o.NumCols() {
		return false
	}
	for i := range b.cols {
		if b.cols[i].Name != o.cols[i].Name || b.cols[i].Typ != o.cols[i].Typ {
			return false
		}
	}
	return true
}

// DumpNames returns the comma-separated column names, for error messages.
func (b *Block) DumpNames() string {
	if b == nil {
		return ""
	}
	names := make([]string, len(b.cols))
	for i := range b.cols {
		names[i] = b.cols[i].Name
	}
	return strings.Join(names, ", ")
}
