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

package sqlite

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/dolthub/rowstream/libraries/rowval"
)

// Value is one column of the statement's current row. It reads through to
// the statement, so it shares the row's lifetime.
type Value struct {
	stmt Statement
	col  int
	info TypeInfo
}

// TypeInfo returns the storage class of the value and the affinity of its
// column.
func (v Value) TypeInfo() TypeInfo {
	return v.info
}

func (v Value) Bytes() []byte {
	return v.stmt.ColumnBytes(v.col)
}

func decodeErr(v Value, format string, args ...any) error {
	return rowval.ErrDecode.New(fmt.Sprintf("column %d (%s): %s", v.col, v.info, fmt.Sprintf(format, args...)))
}

func checkCompatible(want TypeInfo, v Value) error {
	if !want.Compatible(v.info) {
		return decodeErr(v, "cannot decode as %s", want)
	}
	return nil
}

func DecodeInt64(v Value) (int64, error) {
	if err := checkCompatible(integerType, v); err != nil {
		return 0, err
	}
	return v.stmt.ColumnInt64(v.col), nil
}

func DecodeInt32(v Value) (int32, error) {
	i, err := DecodeInt64(v)
	if err != nil {
		return 0, err
	}
	if i < math.MinInt32 || i > math.MaxInt32 {
		return 0, decodeErr(v, "%d overflows int32", i)
	}
	return int32(i), nil
}

// DecodeBool accepts BOOLEAN columns and any integer value.
func DecodeBool(v Value) (bool, error) {
	if v.info.Type != Integer {
		if err := checkCompatible(boolType, v); err != nil {
			return false, err
		}
	}
	return v.stmt.ColumnInt64(v.col) != 0, nil
}

func DecodeFloat64(v Value) (float64, error) {
	if err := checkCompatible(floatType, v); err != nil {
		return 0, err
	}
	return v.stmt.ColumnFloat64(v.col), nil
}

// DecodeFloat32 narrows the stored double.
func DecodeFloat32(v Value) (float32, error) {
	f, err := DecodeFloat64(v)
	return float32(f), err
}

// DecodeString copies a text value. Text must be valid UTF-8.
func DecodeString(v Value) (string, error) {
	if err := checkCompatible(textType, v); err != nil {
		return "", err
	}
	b := v.Bytes()
	if !utf8.Valid(b) {
		return "", rowval.ErrInvalidText.New()
	}
	return string(b), nil
}

// DecodeBytes copies a blob value.
func DecodeBytes(v Value) ([]byte, error) {
	if err := checkCompatible(blobType, v); err != nil {
		return nil, err
	}
	return append([]byte{}, v.Bytes()...), nil
}
