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
	"github.com/dolthub/go-mysql-server/sql"
	"github.com/dolthub/go-mysql-server/sql/types"
	"github.com/dolthub/vitess/go/sqltypes"
	query "github.com/dolthub/vitess/go/vt/proto/query"

	"github.com/dolthub/rowstream/libraries/rowval"
)

// RowIter adapts a Cursor to a sql.RowIter, decoding every column into the
// Go value the engine uses for its type.
type RowIter struct {
	cur *Cursor
}

var _ sql.RowIter = (*RowIter)(nil)

func NewRowIter(cur *Cursor) *RowIter {
	return &RowIter{cur: cur}
}

// Next implements the sql.RowIter interface.
func (it *RowIter) Next(ctx *sql.Context) (sql.Row, error) {
	row, err := it.cur.Next(ctx)
	if err != nil {
		return nil, err
	}
	out := make(sql.Row, row.Len())
	for i := range out {
		v, ok, err := row.GetRaw(rowval.Ordinal(i))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if out[i], err = engineValue(v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Close implements the sql.RowIter interface.
func (it *RowIter) Close(ctx *sql.Context) error {
	return it.cur.Close(ctx)
}

// Schema describes the rows returned by Next. It is only known once Next has
// been called.
func (it *RowIter) Schema() sql.Schema {
	fields := it.cur.Fields()
	sch := make(sql.Schema, len(fields))
	for i, f := range fields {
		sch[i] = &sql.Column{
			Name:     f.Name,
			Source:   f.Table,
			Type:     engineType(f.Type),
			Nullable: f.Flags&uint32(query.MySqlFlag_NOT_NULL_FLAG) == 0,
		}
	}
	return sch
}

func engineType(t query.Type) sql.Type {
	switch {
	case sqltypes.IsSigned(t):
		return types.Int64
	case sqltypes.IsUnsigned(t):
		return types.Uint64
	case sqltypes.IsFloat(t):
		return types.Float64
	}
	switch t {
	case query.Type_DECIMAL:
		return types.MustCreateDecimalType(65, 30)
	case query.Type_JSON:
		return types.JSON
	case query.Type_DATE, query.Type_DATETIME, query.Type_TIMESTAMP:
		return types.DatetimeMaxPrecision
	case query.Type_TIME:
		return types.Time
	case query.Type_BLOB, query.Type_BINARY, query.Type_VARBINARY, query.Type_BIT, query.Type_GEOMETRY:
		return types.LongBlob
	}
	return types.LongText
}

func engineValue(v Value) (any, error) {
	t := v.Type()
	switch {
	case sqltypes.IsSigned(t):
		return DecodeInt64(v)
	case sqltypes.IsUnsigned(t):
		return DecodeUint64(v)
	case sqltypes.IsFloat(t):
		return DecodeFloat64(v)
	}
	switch t {
	case query.Type_DECIMAL:
		return DecodeDecimal(v)
	case query.Type_JSON:
		doc, err := DecodeJSON(v)
		if err != nil {
			return nil, err
		}
		return types.JSONDocument{Val: doc}, nil
	case query.Type_DATE, query.Type_DATETIME, query.Type_TIMESTAMP:
		return DecodeTime(v)
	case query.Type_BLOB, query.Type_BINARY, query.Type_VARBINARY, query.Type_BIT, query.Type_GEOMETRY:
		return DecodeBytes(v)
	case query.Type_TIME:
		return DecodeTimespan(v)
	}
	return DecodeString(v)
}
