// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

// Package col implements the columnar batch model exchanged with remote
// replicas: typed value vectors, named columns (materialized or constant),
// and blocks of equal-length columns.
package col

import "github.com/cockroachdb/errors"

// T identifies the physical type of a vector.
type T uint8

const (
	// Unknown is an invalid type.
	Unknown T = iota
	// Bool is a boolean column type.
	Bool
	// Int64 is a signed 64-bit integer column type.
	Int64
	// UInt32 is an unsigned 32-bit integer column type.
	UInt32
	// Float64 is a 64-bit float column type.
	Float64
	// String is a variable-length string column type.
	String
)

func (t T) String() string {
	switch t {
	case Bool:
		return "Bool"
	case Int64:
		return "Int64"
	case UInt32:
		return "UInt32"
	case Float64:
		return "Float64"
	case String:
		return "String"
	}
	return "Unknown"
}

// Vec is a homogeneous vector of values. Only the slice matching the type is
// populated.
type Vec struct {
	typ      T
	bools    []bool
	int64s   []int64
	uint32s  []uint32
	float64s []float64
	strings  []string
}

// NewVec returns an empty vector of the given type.
func NewVec(t T) *Vec {
	return &Vec{typ: t}
}

// MakeInt64s returns an Int64 vector holding the given values.
func MakeInt64s(vals ...int64) *Vec {
	return &Vec{typ: Int64, int64s: vals}
}

// MakeUInt32s returns a UInt32 vector holding the given values.
func MakeUInt32s(vals ...uint32) *Vec {
	return &Vec{typ: UInt32, uint32s: vals}
}

// MakeFloat64s returns a Float64 vector holding the given values.
func MakeFloat64s(vals ...float64) *Vec {
	return &Vec{typ: Float64, float64s: vals}
}

// MakeStrings returns a String vector holding the given values.
func MakeStrings(vals ...string) *Vec {
	return &Vec{typ: String, strings: vals}
}

// MakeBools returns a Bool vector holding the given values.
func MakeBools(vals ...bool) *Vec {
	return &Vec{typ: Bool, bools: vals}
}

// Type returns the vector's type.
func (v *Vec) Type() T {
	return v.typ
}

// Len returns the number of values in the vector.
func (v *Vec) Len() int {
	switch v.typ {
	case Bool:
		return len(v.bools)
	case Int64:
		return len(v.int64s)
	case UInt32:
		return len(v.uint32s)
	case Float64:
		return len(v.float64s)
	case String:
		return len(v.strings)
	}
	return 0
}

// Datum returns the i-th value, boxed.
func (v *Vec) Datum(i int) interface{} {
	switch v.typ {
	case Bool:
		return v.bools[i]
	case Int64:
		return v.int64s[i]
	case UInt32:
		return v.uint32s[i]
	case Float64:
		return v.float64s[i]
	case String:
		return v.strings[i]
	}
	return nil
}

// AppendDatum appends a boxed value. The value's Go type must match the
// vector's type.
func (v *Vec) AppendDatum(d interface{}) error {
	switch v.typ {
	case Bool:
		val, ok := d.(bool)
		if !ok {
			return errors.Newf("cannot append %T to %s vector", d, v.typ)
		}
		v.bools = append(v.bools, val)
	case Int64:
		val, ok := d.(int64)
		if !ok {
			return errors.Newf("cannot append %T to %s vector", d, v.typ)
		}
		v.int64s = append(v.int64s, val)
	case UInt32:
		val, ok := d.(uint32)
		if !ok {
			return errors.Newf("cannot append %T to %s vector", d, v.typ)
		}
		v.uint32s = append(v.uint32s, val)
	case Float64:
		val, ok := d.(float64)
		if !ok {
			return errors.Newf("cannot append %T to %s vector", d, v.typ)
		}
		v.float64s = append(v.float64s, val)
	case String:
		val, ok := d.(string)
		if !ok {
			return errors.Newf("cannot append %T to %s vector", d, v.typ)
		}
		v.strings = append(v.strings, val)
	default:
		return errors.Newf("cannot append to %s vector", v.typ)
	}
	return nil
}

// Cut returns a new vector holding values [start, end).
func (v *Vec) Cut(start, end int) *Vec {
	res := &Vec{typ: v.typ}
	switch v.typ {
	case Bool:
		res.bools = v.bools[start:end:end]
	case Int64:
		res.int64s = v.int64s[start:end:end]
	case UInt32:
		res.uint32s = v.uint32s[start:end:end]
	case Float64:
		res.float64s = v.float64s[start:end:end]
	case String:
		res.strings = v.strings[start:end:end]
	}
	return res
}

// Int64s returns the underlying int64 slice. The vector must be of type
// Int64.
func (v *Vec) Int64s() []int64 { return v.int64s }

// UInt32s returns the underlying uint32 slice. The vector must be of type
// UInt32.
func (v *Vec) UInt32s() []uint32 { return v.uint32s }

// Float64s returns the underlying float64 slice. The vector must be of type
// Float64.
func (v *Vec) Float64s() []float64 { return v.float64s }

// Strings returns the underlying string slice. The vector must be of type
// String.
func (v *Vec) Strings() []string { return v.strings }

// Bools returns the underlying bool slice. The vector must be of type Bool.
func (v *Vec) Bools() []bool { return v.bools }
