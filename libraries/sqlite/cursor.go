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
	"context"
	"io"

	"github.com/dolthub/rowstream/libraries/connsrc"
	"github.com/dolthub/rowstream/libraries/cursor"
	"github.com/dolthub/rowstream/libraries/rowval"
)

// Query is a statement to execute. A nil Args prepares it for one
// execution only.
type Query struct {
	SQL  string
	Args *Arguments
}

// Row is the current row of a statement.
type Row struct {
	lease rowval.Lease
	stmt  *statement
}

var _ rowval.Row[Value] = (*Row)(nil)

func (r *Row) Len() int {
	return r.stmt.cols.Len()
}

func (r *Row) Columns() *rowval.Columns {
	return r.stmt.cols
}

func (r *Row) GetRaw(ref rowval.ColumnRef) (Value, bool, error) {
	if err := r.lease.Check(); err != nil {
		return Value{}, false, err
	}
	i, err := ref.Resolve(r.stmt.cols, r.stmt.cols.Len())
	if err != nil {
		return Value{}, false, err
	}
	typ := r.stmt.st.ColumnType(i)
	if typ == Null {
		return Value{}, false, nil
	}
	info := TypeInfo{Type: typ, Affinity: r.stmt.decl[i].Affinity}
	return Value{stmt: r.stmt.st, col: i, info: info}, true, nil
}

type Cursor struct {
	state  cursor.State
	source *connsrc.Source[*Conn]

	query  *Query
	stmt   *statement
	runSeq uint64
	ended  bool
}

var _ cursor.Cursor[*Row] = (*Cursor)(nil)

// FromPool must be paired with Close or ForEach; the pooled connection is
// only released when the cursor ends.
func FromPool(pool *connsrc.Pool[*Conn], q Query) *Cursor {
	return &Cursor{source: connsrc.FromPool(pool), query: &q}
}

func FromConn(conn *Conn, q Query) *Cursor {
	return &Cursor{source: connsrc.FromConn(conn), query: &q}
}

// Columns returns the result shape, known after the first call to Next.
func (c *Cursor) Columns() *rowval.Columns {
	if c.stmt == nil {
		return nil
	}
	return c.stmt.cols
}

// DeclaredTypes returns the type of each column as declared in its table.
// Expression columns have storage class Null and no affinity.
func (c *Cursor) DeclaredTypes() []TypeInfo {
	if c.stmt == nil {
		return nil
	}
	return c.stmt.decl
}

func (c *Cursor) Next(ctx context.Context) (*Row, error) {
	if err := c.state.Enter(); err != nil {
		return nil, err
	}
	row, err := c.advance(ctx)
	if err != nil {
		_ = c.release(ctx)
		return nil, c.state.Exit(err)
	}
	return row, c.state.Exit(nil)
}

// Close resets the statement so the connection can run another one.
func (c *Cursor) Close(ctx context.Context) error {
	live, err := c.state.Close()
	if err != nil || !live {
		return err
	}
	c.query = nil
	return c.release(ctx)
}

func (c *Cursor) release(ctx context.Context) error {
	if conn, ok := c.source.Held(); ok && c.runSeq != 0 && conn.runSeq != c.runSeq {
		return c.source.Detach(ctx)
	}
	return c.source.Release(ctx)
}

func (c *Cursor) advance(ctx context.Context) (*Row, error) {
	conn, release, err := c.source.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if c.query != nil {
		q := c.query
		c.query = nil
		stmt, err := conn.run(ctx, q.SQL, q.Args)
		if err != nil {
			return nil, err
		}
		c.stmt = stmt
		c.runSeq = conn.runSeq
	}
	if c.ended {
		return nil, io.EOF
	}
	if conn.runSeq != c.runSeq {
		return nil, cursor.ErrSuperseded.New()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ok, err := c.stmt.st.Step()
	if err != nil {
		return nil, err
	}
	if !ok {
		c.ended = true
		return nil, io.EOF
	}
	return &Row{lease: rowval.NewLease(c.state.Step()), stmt: c.stmt}, nil
}
