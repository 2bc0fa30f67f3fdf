// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

package col

import "github.com/cockroachdb/errors"

// Column is a named, typed vector. A column is either materialized (backed
// by a Vec), constant (a single value logically repeated), or a bare schema
// descriptor with no data at all (used in header blocks).
type Column struct {
	Name string
	Typ  T

	vec      *Vec
	constVal interface{}
	constLen int
	isConst  bool
}

// NewColumn returns a materialized column backed by the given vector.
func NewColumn(name string, vec *Vec) Column {
	return Column{Name: name, Typ: vec.Type(), vec: vec}
}

// NewConstColumn returns a constant column of the given length. A zero
// length is valid and is what header blocks carry.
func NewConstColumn(name string, t T, val interface{}, n int) Column {
	return Column{Name: name, Typ: t, constVal: val, constLen: n, isConst: true}
}

// NewDescriptor returns a dataless column carrying only name and type.
func NewDescriptor(name string, t T) Column {
	return Column{Name: name, Typ: t}
}

// Len returns the column's logical length.
func (c Column) Len() int {
	if c.isConst {
		return c.constLen
	}
	if c.vec == nil {
		return 0
	}
	return c.vec.Len()
}

// IsConst reports whether the column is a constant column.
func (c Column) IsConst() bool {
	return c.isConst
}

// ConstValue returns the constant column's value. It is nil for
// non-constant columns.
func (c Column) ConstValue() interface{} {
	return c.constVal
}

// Vec returns the backing vector, nil for constant columns and descriptors.
func (c Column) Vec() *Vec {
	return c.vec
}

// Datum returns the i-th value.
func (c Column) Datum(i int) interface{} {
	if c.isConst {
		return c.constVal
	}
	return c.vec.Datum(i)
}

// First returns the first value, or false if the column is empty.
func (c Column) First() (interface{}, bool) {
	if c.Len() == 0 {
		return nil, false
	}
	return c.Datum(0), true
}

// CloneResized returns a copy of the column with the given logical length.
// Materialized columns are converted to a constant column of their first
// value; constant columns keep their value.
func (c Column) CloneResized(n int) Column {
	if c.isConst {
		return NewConstColumn(c.Name, c.Typ, c.constVal, n)
	}
	var val interface{}
	if c.Len() > 0 {
		val = c.Datum(0)
	}
	return NewConstColumn(c.Name, c.Typ, val, n)
}

// Cast converts the column to the given type.
func (c Column) Cast(to T) (Column, error) {
	if c.Typ == to {
		return c, nil
	}
	if c.isConst {
		val, err := CastDatum(c.constVal, to)
		if err != nil {
			return Column{}, errors.Wrapf(err, "column %q", c.Name)
		}
		return NewConstColumn(c.Name, to, val, c.constLen), nil
	}
	if c.vec == nil {
		return NewDescriptor(c.Name, to), nil
	}
	vec, err := CastVec(c.vec, to)
	if err != nil {
		return Column{}, errors.Wrapf(err, "column %q", c.Name)
	}
	return NewColumn(c.Name, vec), nil
}
