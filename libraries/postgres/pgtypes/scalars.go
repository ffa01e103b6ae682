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

// Package pgtypes holds the Postgres value codecs: binary encoders for bind
// parameters and record fields, and decoders that accept both the binary and
// the text wire format of a value.
package pgtypes

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/lib/pq/oid"
	"github.com/shopspring/decimal"

	"github.com/dolthub/rowstream/libraries/rowval"
)

// pgtype.Map caches plans and is not safe for concurrent use, so maps are
// pooled rather than shared.
var typeMaps = sync.Pool{New: func() any { return pgtype.NewMap() }}

func scan(t oid.Oid, v rowval.Value, dst any) error {
	m := typeMaps.Get().(*pgtype.Map)
	defer typeMaps.Put(m)
	if err := m.Scan(uint32(t), int16(v.Format()), v.Bytes(), dst); err != nil {
		return decodeErr("%s: %v", oidName(t), err)
	}
	return nil
}

// encode appends the binary form of |value|. Every catalog type has a binary
// plan for its Go representation, so a failure here is a programming error.
func encode(t oid.Oid, value any, buf []byte) []byte {
	m := typeMaps.Get().(*pgtype.Map)
	defer typeMaps.Put(m)
	out, err := m.Encode(uint32(t), pgtype.BinaryFormatCode, value, buf)
	if err != nil {
		panic(fmt.Sprintf("encoding %s: %v", oidName(t), err))
	}
	return out
}

func oidName(t oid.Oid) string {
	if name, ok := oid.TypeName[t]; ok {
		return name
	}
	return fmt.Sprintf("oid %d", t)
}

// Encodable is a value that can be sent to the server in binary format.
type Encodable interface {
	TypeOID() oid.Oid
	// EncodeBinary appends the binary form of the value to |buf|.
	EncodeBinary(buf []byte) []byte
}

type nullValue oid.Oid

// Null returns a SQL NULL of type |t|.
func Null(t oid.Oid) Encodable {
	return nullValue(t)
}

// IsNull reports whether |v| was created by Null.
func IsNull(v Encodable) bool {
	_, ok := v.(nullValue)
	return ok
}

func (n nullValue) TypeOID() oid.Oid {
	return oid.Oid(n)
}
func (n nullValue) EncodeBinary(buf []byte) []byte {
	return buf
}

type (
	Bool    bool
	Int2    int16
	Int4    int32
	Int8    int64
	Float4  float32
	Float8  float64
	Text    string
	Varchar string
	Bytea   []byte
	UUID    uuid.UUID
	Numeric decimal.Decimal
)

var (
	_ Encodable = Bool(false)
	_ Encodable = Int2(0)
	_ Encodable = Int4(0)
	_ Encodable = Int8(0)
	_ Encodable = Float4(0)
	_ Encodable = Float8(0)
	_ Encodable = Text("")
	_ Encodable = Varchar("")
	_ Encodable = Bytea(nil)
	_ Encodable = UUID{}
	_ Encodable = Numeric{}
)

func (Bool) TypeOID() oid.Oid {
	return oid.T_bool
}
func (b Bool) EncodeBinary(buf []byte) []byte {
	return encode(oid.T_bool, bool(b), buf)
}

func (Int2) TypeOID() oid.Oid {
	return oid.T_int2
}
func (i Int2) EncodeBinary(buf []byte) []byte {
	return encode(oid.T_int2, int16(i), buf)
}

func (Int4) TypeOID() oid.Oid {
	return oid.T_int4
}
func (i Int4) EncodeBinary(buf []byte) []byte {
	return encode(oid.T_int4, int32(i), buf)
}

func (Int8) TypeOID() oid.Oid {
	return oid.T_int8
}
func (i Int8) EncodeBinary(buf []byte) []byte {
	return encode(oid.T_int8, int64(i), buf)
}

func (Float4) TypeOID() oid.Oid {
	return oid.T_float4
}
func (f Float4) EncodeBinary(buf []byte) []byte {
	return encode(oid.T_float4, float32(f), buf)
}

func (Float8) TypeOID() oid.Oid {
	return oid.T_float8
}
func (f Float8) EncodeBinary(buf []byte) []byte {
	return encode(oid.T_float8, float64(f), buf)
}

func (Text) TypeOID() oid.Oid {
	return oid.T_text
}
func (s Text) EncodeBinary(buf []byte) []byte {
	return encode(oid.T_text, string(s), buf)
}

func (Varchar) TypeOID() oid.Oid {
	return oid.T_varchar
}
func (s Varchar) EncodeBinary(buf []byte) []byte {
	return encode(oid.T_varchar, string(s), buf)
}

func (Bytea) TypeOID() oid.Oid {
	return oid.T_bytea
}

// EncodeBinary sends a nil Bytea as an empty value; use Null for SQL NULL.
func (b Bytea) EncodeBinary(buf []byte) []byte {
	if b == nil {
		return buf
	}
	return encode(oid.T_bytea, []byte(b), buf)
}

func (UUID) TypeOID() oid.Oid {
	return oid.T_uuid
}
func (u UUID) EncodeBinary(buf []byte) []byte {
	return encode(oid.T_uuid, pgtype.UUID{Bytes: u, Valid: true}, buf)
}

func (Numeric) TypeOID() oid.Oid {
	return oid.T_numeric
}

// EncodeBinary keeps the decimal's exponent as the numeric's display scale,
// so 1.50 is sent with two fractional digits.
func (n Numeric) EncodeBinary(buf []byte) []byte {
	d := decimal.Decimal(n)
	return encode(oid.T_numeric, pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}, buf)
}

func decodeErr(format string, args ...any) error {
	return rowval.ErrDecode.New(fmt.Sprintf(format, args...))
}

func DecodeBool(v rowval.Value) (bool, error) {
	var b bool
	err := scan(oid.T_bool, v, &b)
	return b, err
}

func DecodeInt2(v rowval.Value) (int16, error) {
	var i int16
	err := scan(oid.T_int2, v, &i)
	return i, err
}

func DecodeInt4(v rowval.Value) (int32, error) {
	var i int32
	err := scan(oid.T_int4, v, &i)
	return i, err
}

func DecodeInt8(v rowval.Value) (int64, error) {
	var i int64
	err := scan(oid.T_int8, v, &i)
	return i, err
}

func DecodeFloat4(v rowval.Value) (float32, error) {
	var f float32
	err := scan(oid.T_float4, v, &f)
	return f, err
}

func DecodeFloat8(v rowval.Value) (float64, error) {
	var f float64
	err := scan(oid.T_float8, v, &f)
	return f, err
}

// DecodeText decodes text, varchar and any other value whose binary and
// text forms are both its UTF-8 bytes.
func DecodeText(v rowval.Value) (string, error) {
	return v.Text()
}

// DecodeBytea returns a copy of the value's bytes. The text form must use the
// hex output format.
func DecodeBytea(v rowval.Value) ([]byte, error) {
	var b []byte
	err := scan(oid.T_bytea, v, &b)
	return b, err
}

func DecodeUUID(v rowval.Value) (uuid.UUID, error) {
	var u pgtype.UUID
	if err := scan(oid.T_uuid, v, &u); err != nil {
		return uuid.Nil, err
	}
	return uuid.UUID(u.Bytes), nil
}

// DecodeNumeric keeps the value's display scale in the decimal's exponent in
// both formats. NaN and infinities have no decimal form.
func DecodeNumeric(v rowval.Value) (decimal.Decimal, error) {
	var n pgtype.Numeric
	if err := scan(oid.T_numeric, v, &n); err != nil {
		return decimal.Zero, err
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return decimal.Zero, decodeErr("numeric %q cannot be represented as a decimal", v.Bytes())
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), nil
}
