// Copyright 2026 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mysql

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/dolthub/go-mysql-server/sql/types"
	"github.com/dolthub/vitess/go/sqltypes"
	query "github.com/dolthub/vitess/go/vt/proto/query"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/dolthub/rowstream/libraries/rowval"
)

func decodeErr(v Value, format string, args ...any) error {
	return rowval.ErrDecode.New(fmt.Sprintf("column %s (%s): %s", v.Field.Name, v.Type(), fmt.Sprintf(format, args...)))
}

// binaryInt reads a little-endian integer whose width comes from the column
// type, sign extending it for signed columns.
func binaryInt(v Value) (u uint64, signed int64, err error) {
	b := v.Bytes()
	if len(b) != binaryWidth(v.Type()) {
		return 0, 0, decodeErr(v, "%d bytes is not a binary integer", len(b))
	}
	switch len(b) {
	case 1:
		return uint64(b[0]), int64(int8(b[0])), nil
	case 2:
		x := binary.LittleEndian.Uint16(b)
		return uint64(x), int64(int16(x)), nil
	case 4:
		x := binary.LittleEndian.Uint32(b)
		if v.Type() == query.Type_INT24 || v.Type() == query.Type_UINT24 {
			return uint64(x & 0xFFFFFF), int64(int32(x<<8) >> 8), nil
		}
		return uint64(x), int64(int32(x)), nil
	case 8:
		x := binary.LittleEndian.Uint64(b)
		return x, int64(x), nil
	}
	return 0, 0, decodeErr(v, "%d bytes is not a binary integer", len(b))
}

func DecodeInt64(v Value) (int64, error) {
	if !v.IsBinary() {
		i, err := strconv.ParseInt(string(v.Bytes()), 10, 64)
		if err != nil {
			return 0, decodeErr(v, "%v", err)
		}
		return i, nil
	}
	if !sqltypes.IsIntegral(v.Type()) {
		return 0, decodeErr(v, "not an integer column")
	}
	u, s, err := binaryInt(v)
	if err != nil {
		return 0, err
	}
	if sqltypes.IsUnsigned(v.Type()) {
		if u > math.MaxInt64 {
			return 0, decodeErr(v, "%d overflows int64", u)
		}
		return int64(u), nil
	}
	return s, nil
}

func DecodeUint64(v Value) (uint64, error) {
	if !v.IsBinary() {
		u, err := strconv.ParseUint(string(v.Bytes()), 10, 64)
		if err != nil {
			return 0, decodeErr(v, "%v", err)
		}
		return u, nil
	}
	if !sqltypes.IsIntegral(v.Type()) {
		return 0, decodeErr(v, "not an integer column")
	}
	u, s, err := binaryInt(v)
	if err != nil {
		return 0, err
	}
	if sqltypes.IsSigned(v.Type()) {
		if s < 0 {
			return 0, decodeErr(v, "negative value %d", s)
		}
		return uint64(s), nil
	}
	return u, nil
}

func DecodeBool(v Value) (bool, error) {
	i, err := DecodeInt64(v)
	return i != 0, err
}

func DecodeFloat64(v Value) (float64, error) {
	if v.IsBinary() {
		b := v.Bytes()
		switch v.Type() {
		case query.Type_FLOAT32:
			if len(b) != 4 {
				return 0, decodeErr(v, "%d bytes is not a float", len(b))
			}
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
		case query.Type_FLOAT64:
			if len(b) != 8 {
				return 0, decodeErr(v, "%d bytes is not a double", len(b))
			}
			return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
		case query.Type_DECIMAL:
		default:
			if sqltypes.IsIntegral(v.Type()) {
				i, err := DecodeInt64(v)
				return float64(i), err
			}
			return 0, decodeErr(v, "not a numeric column")
		}
	}
	f, err := strconv.ParseFloat(string(v.Bytes()), 64)
	if err != nil {
		return 0, decodeErr(v, "%v", err)
	}
	return f, nil
}

// DecodeString returns the value as text. Text must be valid UTF-8.
func DecodeString(v Value) (string, error) {
	return v.Text()
}

// DecodeBytes returns a copy of the value's bytes.
func DecodeBytes(v Value) ([]byte, error) {
	return append([]byte{}, v.Bytes()...), nil
}

// DecodeDecimal decodes DECIMAL columns, which use their string form in
// both protocols.
func DecodeDecimal(v Value) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(string(v.Bytes()))
	if err != nil {
		return decimal.Zero, decodeErr(v, "%v", err)
	}
	return d, nil
}

// DecodeJSON unmarshals a JSON column into a generic value.
func DecodeJSON(v Value) (any, error) {
	var out any
	if err := json.Unmarshal(v.Bytes(), &out); err != nil {
		return nil, decodeErr(v, "%v", err)
	}
	return out, nil
}

// JSONInto returns a decoder that unmarshals a JSON column into a T.
func JSONInto[T any]() func(Value) (T, error) {
	return func(v Value) (T, error) {
		var out T
		if err := json.Unmarshal(v.Bytes(), &out); err != nil {
			return out, decodeErr(v, "%v", err)
		}
		return out, nil
	}
}

// DecodeTime decodes DATE, DATETIME and TIMESTAMP columns as UTC times. The
// zero date 0000-00-00 decodes to types.ZeroTime in both protocols.
func DecodeTime(v Value) (time.Time, error) {
	if !v.IsBinary() {
		res, _, err := types.DatetimeMaxPrecision.Convert(context.Background(), string(v.Bytes()))
		if err != nil {
			return time.Time{}, decodeErr(v, "%v", err)
		}
		return res.(time.Time), nil
	}

	b := v.Bytes()
	var year, month, day, hour, minute, second, micro int
	switch len(b) {
	case 0:
		return types.ZeroTime, nil
	case 11:
		micro = int(binary.LittleEndian.Uint32(b[7:]))
		fallthrough
	case 7:
		hour, minute, second = int(b[4]), int(b[5]), int(b[6])
		fallthrough
	case 4:
		year = int(binary.LittleEndian.Uint16(b))
		month, day = int(b[2]), int(b[3])
	default:
		return time.Time{}, decodeErr(v, "%d bytes is not a binary date/time", len(b))
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, micro*1000, time.UTC), nil
}

// DecodeTimespan decodes TIME columns into the engine's TIME value, whose
// String form is [-]HH:MM:SS[.ffffff] whichever protocol the value used.
func DecodeTimespan(v Value) (types.Timespan, error) {
	if !v.IsBinary() {
		ts, err := types.Time.ConvertToTimespan(string(v.Bytes()))
		if err != nil {
			return 0, decodeErr(v, "%v", err)
		}
		return ts, nil
	}

	b := v.Bytes()
	if len(b) == 0 {
		return 0, nil
	}
	if len(b) != 8 && len(b) != 12 {
		return 0, decodeErr(v, "%d bytes is not a binary time", len(b))
	}
	d := time.Duration(binary.LittleEndian.Uint32(b[1:]))*24*time.Hour +
		time.Duration(b[5])*time.Hour +
		time.Duration(b[6])*time.Minute +
		time.Duration(b[7])*time.Second
	if len(b) == 12 {
		d += time.Duration(binary.LittleEndian.Uint32(b[8:])) * time.Microsecond
	}
	if b[0] == 1 {
		d = -d
	}
	return types.Time.MicrosecondsToTimespan(d.Microseconds()), nil
}

// DecodeDuration decodes TIME columns.
func DecodeDuration(v Value) (time.Duration, error) {
	ts, err := DecodeTimespan(v)
	return ts.AsTimeDuration(), err
}
