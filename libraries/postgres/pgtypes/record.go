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

package pgtypes

import (
	"database/sql"
	"encoding/binary"
	"fmt"

	"github.com/lib/pq/oid"
	"gopkg.in/src-d/go-errors.v1"

	"github.com/dolthub/rowstream/libraries/rowval"
)

var ErrMalformedRecord = errors.NewKind("malformed record: %s")

// Record is an anonymous composite value. A field created with Null is sent
// as SQL NULL.
type Record []Encodable

var _ Encodable = Record(nil)

func (Record) TypeOID() oid.Oid {
	return oid.T_record
}

func (r Record) EncodeBinary(buf []byte) []byte {
	enc := NewRecordEncoder(buf)
	for _, f := range r {
		enc.Encode(f)
	}
	return enc.Finish()
}

// RecordEncoder writes the binary form of a record:
//
//	u32 field count
//	per field: u32 type oid, i32 payload length (-1 for NULL), payload
//
// The count and each length are reserved up front and patched in once known.
type RecordEncoder struct {
	buf []byte
	beg int
	num uint32
}

func NewRecordEncoder(buf []byte) *RecordEncoder {
	buf = binary.BigEndian.AppendUint32(buf, 0)
	return &RecordEncoder{buf: buf, beg: len(buf)}
}

// Encode appends one field.
func (e *RecordEncoder) Encode(v Encodable) *RecordEncoder {
	e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(v.TypeOID()))
	e.num++
	if IsNull(v) {
		e.buf = binary.BigEndian.AppendUint32(e.buf, 0xFFFFFFFF)
		return e
	}

	e.buf = binary.BigEndian.AppendUint32(e.buf, 0)
	start := len(e.buf)
	e.buf = v.EncodeBinary(e.buf)
	binary.BigEndian.PutUint32(e.buf[start-4:start], uint32(len(e.buf)-start))
	return e
}

// Finish writes the field count and returns the encoded buffer.
func (e *RecordEncoder) Finish() []byte {
	binary.BigEndian.PutUint32(e.buf[e.beg-4:e.beg], e.num)
	return e.buf
}

// Field is one decoded record field. OID is zero for fields read from the
// text format, which does not carry types.
type Field struct {
	OID   oid.Oid
	Value rowval.Value
	Null  bool
}

// RecordDecoder reads the fields of a record value in order. Field values
// borrow the record's bytes, except text fields with quotes or escapes, which
// are unquoted into fresh memory.
type RecordDecoder struct {
	binary bool
	buf    []byte
	// remaining is the number of fields left in a binary record
	remaining int
	// done is set once the last field of a text record was read
	done bool
}

// NewRecordDecoder validates the framing of |v| and prepares to read its
// fields.
func NewRecordDecoder(v rowval.Value) (*RecordDecoder, error) {
	raw := v.Bytes()
	if v.IsBinary() {
		if len(raw) < 4 {
			return nil, ErrMalformedRecord.New("field count truncated")
		}
		n := int32(binary.BigEndian.Uint32(raw))
		if n < 0 {
			return nil, ErrMalformedRecord.New(fmt.Sprintf("negative field count %d", n))
		}
		return &RecordDecoder{binary: true, buf: raw[4:], remaining: int(n)}, nil
	}

	if len(raw) < 2 || raw[0] != '(' || raw[len(raw)-1] != ')' {
		return nil, ErrMalformedRecord.New(fmt.Sprintf("text record %q is not enclosed in parentheses", raw))
	}
	return &RecordDecoder{buf: raw[1 : len(raw)-1]}, nil
}

// Len returns the number of fields left to read, or -1 for text records,
// which do not advertise a count.
func (d *RecordDecoder) Len() int {
	if d.binary {
		return d.remaining
	}
	return -1
}

// Next reads the next field.
func (d *RecordDecoder) Next() (Field, error) {
	if d.binary {
		return d.nextBinary()
	}
	return d.nextText()
}

func (d *RecordDecoder) nextBinary() (Field, error) {
	if d.remaining == 0 {
		return Field{}, ErrMalformedRecord.New("read past the advertised field count")
	}
	if len(d.buf) < 8 {
		return Field{}, ErrMalformedRecord.New("field header truncated")
	}
	t := oid.Oid(binary.BigEndian.Uint32(d.buf))
	n := int32(binary.BigEndian.Uint32(d.buf[4:]))
	d.buf = d.buf[8:]
	d.remaining--

	if n < 0 {
		return Field{OID: t, Null: true}, nil
	}
	if int(n) > len(d.buf) {
		return Field{}, ErrMalformedRecord.New(fmt.Sprintf("field payload of %d bytes truncated to %d", n, len(d.buf)))
	}
	payload := d.buf[:n:n]
	d.buf = d.buf[n:]
	return Field{OID: t, Value: rowval.BinaryValue(payload)}, nil
}

func (d *RecordDecoder) nextText() (Field, error) {
	if d.done {
		return Field{}, ErrMalformedRecord.New("read past the last field")
	}

	s := d.buf
	if len(s) == 0 || s[0] == ',' {
		// an empty unquoted segment is NULL; "" is the empty string
		d.advance(s, 0)
		return Field{Null: true}, nil
	}

	i := 0
	for i < len(s) && s[i] != ',' && s[i] != '"' && s[i] != '\\' {
		i++
	}
	if i == len(s) || s[i] == ',' {
		d.advance(s, i)
		return Field{Value: rowval.TextValue(s[:i:i])}, nil
	}

	// Quotes may open and close anywhere in a field, and a backslash escapes
	// the next byte inside or outside them.
	out := append([]byte{}, s[:i]...)
	inQuote := false
	for inQuote || (i < len(s) && s[i] != ',') {
		if i >= len(s) {
			return Field{}, ErrMalformedRecord.New("unterminated quoted field")
		}
		c := s[i]
		i++
		switch {
		case c == '\\':
			if i >= len(s) {
				return Field{}, ErrMalformedRecord.New("unterminated escape in field")
			}
			out = append(out, s[i])
			i++
		case c == '"' && !inQuote:
			inQuote = true
		case c == '"' && i < len(s) && s[i] == '"':
			out = append(out, '"')
			i++
		case c == '"':
			inQuote = false
		default:
			out = append(out, c)
		}
	}
	d.advance(s, i)
	return Field{Value: rowval.TextValue(out)}, nil
}

// advance moves past the segment ending at |i|, which is either the end of
// |s| or a separating comma.
func (d *RecordDecoder) advance(s []byte, i int) {
	if i >= len(s) {
		d.buf = nil
		d.done = true
		return
	}
	d.buf = s[i+1:]
}

// DecodeField decodes the next field of |d| with |dec|, failing on NULL.
func DecodeField[T any](d *RecordDecoder, dec func(rowval.Value) (T, error)) (T, error) {
	var zero T
	f, err := d.Next()
	if err != nil {
		return zero, err
	}
	if f.Null {
		return zero, rowval.ErrUnexpectedNull.New("record field")
	}
	return dec(f.Value)
}

// DecodeNullableField decodes the next field of |d| with |dec|.
func DecodeNullableField[T any](d *RecordDecoder, dec func(rowval.Value) (T, error)) (sql.Null[T], error) {
	f, err := d.Next()
	if err != nil || f.Null {
		return sql.Null[T]{}, err
	}
	v, err := dec(f.Value)
	if err != nil {
		return sql.Null[T]{}, err
	}
	return sql.Null[T]{V: v, Valid: true}, nil
}
