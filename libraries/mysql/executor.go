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
	"time"

	vtmysql "github.com/dolthub/vitess/go/mysql"
	"github.com/shopspring/decimal"
	"gopkg.in/src-d/go-errors.v1"

	"github.com/dolthub/rowstream/libraries/cursor"
)

var ErrArgumentCount = errors.NewKind("statement takes %d arguments, got %d")

const unsignedParamFlag = 0x80

type argument struct {
	typ      byte
	unsigned bool
	null     bool
	value    []byte
}

// Arguments are the parameters of a prepared statement, sent in the binary
// protocol.
type Arguments struct {
	args []argument
}

func NewArguments() *Arguments {
	return &Arguments{}
}

func (a *Arguments) Len() int {
	return len(a.args)
}

func (a *Arguments) add(arg argument) *Arguments {
	a.args = append(a.args, arg)
	return a
}

func (a *Arguments) Null() *Arguments {
	return a.add(argument{typ: vtmysql.TypeNull, null: true})
}

func (a *Arguments) Int64(v int64) *Arguments {
	return a.add(argument{typ: vtmysql.TypeLongLong, value: binary.LittleEndian.AppendUint64(nil, uint64(v))})
}

func (a *Arguments) Uint64(v uint64) *Arguments {
	return a.add(argument{typ: vtmysql.TypeLongLong, unsigned: true, value: binary.LittleEndian.AppendUint64(nil, v)})
}

func (a *Arguments) Float64(v float64) *Arguments {
	return a.add(argument{typ: vtmysql.TypeDouble, value: binary.LittleEndian.AppendUint64(nil, math.Float64bits(v))})
}

func (a *Arguments) Text(v string) *Arguments {
	return a.add(argument{typ: vtmysql.TypeVarString, value: appendLenEncBytes(nil, []byte(v))})
}

func (a *Arguments) Bytes(v []byte) *Arguments {
	return a.add(argument{typ: vtmysql.TypeBlob, value: appendLenEncBytes(nil, v)})
}

func (a *Arguments) Decimal(v decimal.Decimal) *Arguments {
	return a.add(argument{typ: vtmysql.TypeNewDecimal, value: appendLenEncBytes(nil, []byte(v.String()))})
}

// Time sends |t| as a DATETIME in its own location.
func (a *Arguments) Time(t time.Time) *Arguments {
	return a.add(argument{typ: vtmysql.TypeDateTime, value: appendBinaryDateTime(nil, t)})
}

func appendBinaryDateTime(buf []byte, t time.Time) []byte {
	micro := uint32(t.Nanosecond() / 1000)
	switch {
	case micro != 0:
		buf = append(buf, 11)
	case t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0:
		buf = append(buf, 7)
	default:
		buf = append(buf, 4)
	}
	n := buf[len(buf)-1]
	buf = binary.LittleEndian.AppendUint16(buf, uint16(t.Year()))
	buf = append(buf, byte(t.Month()), byte(t.Day()))
	if n >= 7 {
		buf = append(buf, byte(t.Hour()), byte(t.Minute()), byte(t.Second()))
	}
	if n == 11 {
		buf = binary.LittleEndian.AppendUint32(buf, micro)
	}
	return buf
}

// Run sends |query|. Without arguments it is a COM_QUERY and rows come back
// in the text protocol. With arguments, possibly none, the statement is
// prepared once per connection and executed with COM_STMT_EXECUTE, and rows
// come back in the binary protocol. The returned flag reports which.
//
// Run first drains whatever is left of an earlier response.
func (c *Conn) Run(ctx context.Context, query string, args *Arguments) (binaryRows bool, err error) {
	if err := c.drain(ctx); err != nil {
		return false, err
	}
	c.runSeq++

	if args == nil {
		c.log.WithField("query", query).Trace("running text query")
		payload := make([]byte, 0, len(query)+1)
		payload = append(payload, vtmysql.ComQuery)
		payload = append(payload, query...)
		if err := c.writeCommand(ctx, payload); err != nil {
			return false, err
		}
		c.phase = phaseHeader
		return false, nil
	}

	stmt, err := c.prepare(ctx, query)
	if err != nil {
		return true, err
	}
	if stmt.params != args.Len() {
		return true, ErrArgumentCount.New(stmt.params, args.Len())
	}
	if err := c.closeEvicted(ctx); err != nil {
		return true, err
	}
	if err := c.writeCommand(ctx, executePayload(stmt.id, args)); err != nil {
		return true, err
	}
	c.phase = phaseHeader
	return true, nil
}

func executePayload(id uint32, args *Arguments) []byte {
	buf := []byte{vtmysql.ComStmtExecute}
	buf = binary.LittleEndian.AppendUint32(buf, id)
	buf = append(buf, 0) // CURSOR_TYPE_NO_CURSOR
	buf = binary.LittleEndian.AppendUint32(buf, 1)
	if len(args.args) == 0 {
		return buf
	}

	bitmap := make([]byte, (len(args.args)+7)/8)
	for i, arg := range args.args {
		if arg.null {
			bitmap[i/8] |= 1 << (i % 8)
		}
	}
	buf = append(buf, bitmap...)
	buf = append(buf, 1) // new params bound
	for _, arg := range args.args {
		var flag byte
		if arg.unsigned {
			flag = unsignedParamFlag
		}
		buf = append(buf, arg.typ, flag)
	}
	for _, arg := range args.args {
		if !arg.null {
			buf = append(buf, arg.value...)
		}
	}
	return buf
}

// prepare returns the connection's statement for |query|, preparing it on
// the server if this connection has not seen it or has since evicted it.
func (c *Conn) prepare(ctx context.Context, query string) (*statement, error) {
	if stmt, ok := c.stmts.Get(query); ok {
		return stmt, nil
	}

	payload := make([]byte, 0, len(query)+1)
	payload = append(payload, vtmysql.ComPrepare)
	payload = append(payload, query...)
	if err := c.writeCommand(ctx, payload); err != nil {
		return nil, err
	}

	data, err := c.readPacket(ctx)
	if err != nil {
		return nil, c.fail(err)
	}
	switch data[0] {
	case vtmysql.OKPacket:
	case vtmysql.ErrPacket:
		return nil, c.serverErr(data)
	default:
		return nil, c.fail(cursor.ErrProtocol.New(fmt.Sprintf("unexpected COM_STMT_PREPARE response header 0x%02x", data[0])))
	}

	r := &reader{data: data, pos: 1}
	id, err := r.uint32()
	if err != nil {
		return nil, c.fail(err)
	}
	columns, err := r.uint16()
	if err != nil {
		return nil, c.fail(err)
	}
	params, err := r.uint16()
	if err != nil {
		return nil, c.fail(err)
	}

	stmt := &statement{id: id, params: int(params), columns: int(columns)}
	if _, err := c.readColumnDefinitions(ctx, stmt.params); err != nil {
		return nil, err
	}
	if _, err := c.readColumnDefinitions(ctx, stmt.columns); err != nil {
		return nil, err
	}

	c.log.WithField("statement", id).Trace("prepared statement")
	c.stmts.Add(query, stmt)
	return stmt, nil
}

// closeEvicted sends COM_STMT_CLOSE for evicted statements. The command has
// no response.
func (c *Conn) closeEvicted(ctx context.Context) error {
	for _, id := range c.closing {
		payload := binary.LittleEndian.AppendUint32([]byte{vtmysql.ComStmtClose}, id)
		if err := c.writeCommand(ctx, payload); err != nil {
			return err
		}
	}
	c.closing = c.closing[:0]
	return nil
}
