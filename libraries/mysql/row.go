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
	"fmt"

	query "github.com/dolthub/vitess/go/vt/proto/query"

	"github.com/dolthub/rowstream/libraries/rowval"
)

// Value is a raw column value together with the definition of its column,
// which binary decoding needs to know the value's width.
type Value struct {
	rowval.Value
	Field *query.Field
}

func (v Value) Type() query.Type {
	return v.Field.Type
}

// Row is one row packet, split into per-column slices of the packet buffer.
type Row struct {
	lease  rowval.Lease
	cols   *rowval.Columns
	fields []*query.Field
	binary bool
	values [][]byte
}

var _ rowval.Row[Value] = (*Row)(nil)

func (r *Row) Len() int {
	return len(r.values)
}

func (r *Row) Columns() *rowval.Columns {
	return r.cols
}

func (r *Row) GetRaw(ref rowval.ColumnRef) (Value, bool, error) {
	if err := r.lease.Check(); err != nil {
		return Value{}, false, err
	}
	i, err := ref.Resolve(r.cols, len(r.values))
	if err != nil {
		return Value{}, false, err
	}
	raw := r.values[i]
	if raw == nil {
		return Value{Field: r.fields[i]}, false, nil
	}
	if r.binary {
		return Value{Value: rowval.BinaryValue(raw), Field: r.fields[i]}, true, nil
	}
	return Value{Value: rowval.TextValue(raw), Field: r.fields[i]}, true, nil
}

func columnsFromFields(fields []*query.Field, binary bool) *rowval.Columns {
	format := rowval.TextFormat
	if binary {
		format = rowval.BinaryFormat
	}
	b := rowval.NewColumnsBuilder(len(fields))
	for _, f := range fields {
		b.Add(f.Name, format)
	}
	return b.Build()
}

// splitTextRow slices a text protocol row into one length-encoded string per
// column; the 0xfb marker is NULL.
func splitTextRow(data []byte, values [][]byte) error {
	r := &reader{data: data}
	for i := range values {
		b, null, err := r.lenEncBytes()
		if err != nil {
			return err
		}
		if null {
			values[i] = nil
		} else if b == nil {
			values[i] = []byte{}
		} else {
			values[i] = b
		}
	}
	if r.remaining() != 0 {
		return ErrMalformedPacket.New(fmt.Sprintf("%d trailing bytes after text row", r.remaining()))
	}
	return nil
}

// splitBinaryRow slices a binary protocol row: a 0x00 header, a NULL bitmap
// offset by two bits, then each non-NULL value in a width set by its type.
func splitBinaryRow(data []byte, fields []*query.Field, values [][]byte) error {
	r := &reader{data: data}
	hdr, err := r.uint8()
	if err != nil {
		return err
	}
	if hdr != 0x00 {
		return ErrMalformedPacket.New(fmt.Sprintf("binary row header 0x%02x", hdr))
	}
	bitmap, err := r.bytes((len(fields) + 7 + 2) / 8)
	if err != nil {
		return err
	}

	for i, f := range fields {
		bit := i + 2
		if bitmap[bit/8]&(1<<(bit%8)) != 0 {
			values[i] = nil
			continue
		}
		b, err := readBinaryValue(r, f.Type)
		if err != nil {
			return err
		}
		values[i] = b
	}
	if r.remaining() != 0 {
		return ErrMalformedPacket.New(fmt.Sprintf("%d trailing bytes after binary row", r.remaining()))
	}
	return nil
}

func readBinaryValue(r *reader, typ query.Type) ([]byte, error) {
	if n := binaryWidth(typ); n >= 0 {
		return r.bytes(n)
	}
	switch typ {
	case query.Type_DATE, query.Type_DATETIME, query.Type_TIMESTAMP, query.Type_TIME:
		n, err := r.uint8()
		if err != nil {
			return nil, err
		}
		return r.bytes(int(n))
	}
	b, _, err := r.lenEncBytes()
	if b == nil && err == nil {
		b = []byte{}
	}
	return b, err
}

// binaryWidth returns the fixed width of a binary value, or -1 when the
// value carries its own length.
func binaryWidth(typ query.Type) int {
	switch typ {
	case query.Type_NULL_TYPE:
		return 0
	case query.Type_INT8, query.Type_UINT8:
		return 1
	case query.Type_INT16, query.Type_UINT16, query.Type_YEAR:
		return 2
	case query.Type_INT24, query.Type_UINT24, query.Type_INT32, query.Type_UINT32, query.Type_FLOAT32:
		return 4
	case query.Type_INT64, query.Type_UINT64, query.Type_FLOAT64:
		return 8
	}
	return -1
}
