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

package rowval

import (
	"unicode/utf8"

	"gopkg.in/src-d/go-errors.v1"
)

var (
	ErrColumnNotFound        = errors.NewKind("no column found for name: %s")
	ErrColumnIndexOutOfRange = errors.NewKind("column index %d out of range for row with %d columns")
	ErrUnexpectedNull        = errors.NewKind("unexpected null value for column %s")
	ErrDecode                = errors.NewKind("decode error: %s")
	ErrInvalidText           = errors.NewKind("text value is not valid utf-8")
	ErrRowReleased           = errors.NewKind("row accessed after its cursor advanced or closed")
)

// IsDecodeError reports whether |err| is scoped to a single value. Decode
// errors never poison the cursor or the connection that produced the value.
func IsDecodeError(err error) bool {
	return ErrDecode.Is(err) || ErrUnexpectedNull.Is(err) || ErrInvalidText.Is(err)
}

// Value is a raw column value as it arrived on the wire. Its bytes belong to
// the connection's receive buffer and are only valid until the row that
// returned it is released; decoders that keep data must copy it.
type Value struct {
	format Format
	raw    []byte
}

func BinaryValue(raw []byte) Value {
	return Value{format: BinaryFormat, raw: raw}
}

func TextValue(raw []byte) Value {
	return Value{format: TextFormat, raw: raw}
}

func (v Value) Format() Format {
	return v.format
}

func (v Value) IsBinary() bool {
	return v.format == BinaryFormat
}

// Bytes returns the borrowed payload.
func (v Value) Bytes() []byte {
	return v.raw
}

func (v Value) Len() int {
	return len(v.raw)
}

// Text returns the payload as a string, failing if it is not UTF-8. The
// returned string is a copy and outlives the row.
func (v Value) Text() (string, error) {
	if !utf8.Valid(v.raw) {
		return "", ErrInvalidText.New()
	}
	return string(v.raw), nil
}
