// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

package col

import "github.com/cockroachdb/errors"

// CastDatum converts a boxed value to the requested type. Numeric values
// cast across Int64, UInt32 and Float64; all other conversions must be
// identities.
func CastDatum(d interface{}, to T) (interface{}, error) {
	switch val := d.(type) {
	case bool:
		if to == Bool {
			return val, nil
		}
	case int64:
		switch to {
		case Int64:
			return val, nil
		case UInt32:
			return uint32(val), nil
		case Float64:
			return float64(val), nil
		}
	case uint32:
		switch to {
		case UInt32:
			return val, nil
		case Int64:
			return int64(val), nil
		case Float64:
			return float64(val), nil
		}
	case float64:
		switch to {
		case Float64:
			return val, nil
		case Int64:
			return int64(val), nil
		case UInt32:
			return uint32(val), nil
		}
	case string:
		if to == String {
			return val, nil
		}
	}
	return nil, errors.Newf("cannot cast %T to %s", d, to)
}

// CastVec converts a vector to the requested type. The input is returned
// unchanged if it already has that type.
func CastVec(v *Vec, to T) (*Vec, error) {
	if v.typ == to {
		return v, nil
	}
	res := NewVec(to)
	for i, n := 0, v.Len(); i < n; i++ {
		d, err := CastDatum(v.Datum(i), to)
		if err != nil {
			return nil, err
		}
		if err := res.AppendDatum(d); err != nil {
			return nil, err
		}
	}
	return res, nil
}
