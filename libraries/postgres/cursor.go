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

package postgres

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/sirupsen/logrus"

	"github.com/dolthub/rowstream/libraries/connsrc"
	"github.com/dolthub/rowstream/libraries/cursor"
	"github.com/dolthub/rowstream/libraries/rowval"
)

// Query is a statement to execute. A nil Args runs it unprepared.
type Query struct {
	SQL  string
	Args *Arguments
}

// Cursor streams the rows of one Query. Nothing is sent to the server until
// the first call to Next.
type Cursor struct {
	state  cursor.State
	source *connsrc.Source[*Conn]

	query  *Query
	cols   *rowval.Columns
	runSeq uint64
	// ended is set when the result turned out to have no row stream
	ended bool
	log   *logrus.Entry
}

var _ cursor.Cursor[*Row] = (*Cursor)(nil)

// FromPool returns a cursor that checks a connection out of |pool| on its
// first call to Next and hands it back once the stream ends or is closed.
// The caller must Close the cursor or drain it with ForEach; an abandoned
// cursor never returns its connection slot to |pool|.
func FromPool(pool *connsrc.Pool[*Conn], q Query) *Cursor {
	return &Cursor{source: connsrc.FromPool(pool), query: &q}
}

// FromConn returns a cursor over a connection the caller holds. The
// connection must not be used for anything else until the cursor finishes.
func FromConn(conn *Conn, q Query) *Cursor {
	return &Cursor{source: connsrc.FromConn(conn), query: &q}
}

// Columns returns the result shape, which is known after the first call to
// Next.
func (c *Cursor) Columns() *rowval.Columns {
	return c.cols
}

func (c *Cursor) Next(ctx context.Context) (*Row, error) {
	if err := c.state.Enter(); err != nil {
		return nil, err
	}
	row, err := c.advance(ctx)
	if err != nil {
		c.finish(ctx, err)
		return nil, c.state.Exit(err)
	}
	return row, c.state.Exit(nil)
}

// Close abandons the rest of the stream. The outstanding response is drained
// so the connection can be reused; a pooled connection that cannot be
// drained is discarded.
func (c *Cursor) Close(ctx context.Context) error {
	live, err := c.state.Close()
	if err != nil || !live {
		return err
	}
	c.query = nil
	return c.release(ctx)
}

func (c *Cursor) finish(ctx context.Context, cause error) {
	if err := c.release(ctx); err != nil && c.log != nil {
		c.log.WithError(err).WithField("cause", cause.Error()).Debug("connection not reusable after cursor finished")
	}
}

// release hands the connection back. A borrowed connection that a later
// query already took over is left alone, since draining it would eat that
// query's response.
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
		if err := c.execute(ctx, conn, q); err != nil {
			return nil, err
		}
	}
	if c.ended {
		return nil, io.EOF
	}
	if conn.runSeq != c.runSeq {
		return nil, cursor.ErrSuperseded.New()
	}

	for {
		msg, err := conn.receive(ctx)
		if err != nil {
			return nil, err
		}
		switch m := msg.(type) {
		case *pgproto3.ParseComplete, *pgproto3.BindComplete:
		case *pgproto3.DataRow:
			return &Row{lease: rowval.NewLease(c.state.Step()), cols: c.cols, values: m.Values}, nil
		case *pgproto3.CommandComplete, *pgproto3.EmptyQueryResponse:
			return nil, io.EOF
		case *pgproto3.ErrorResponse:
			return nil, pgconn.ErrorResponseToPgError(m)
		default:
			return nil, conn.fail(cursor.ErrProtocol.New(fmt.Sprintf("unexpected message while streaming rows: %T", msg)))
		}
	}
}

func (c *Cursor) execute(ctx context.Context, conn *Conn, q *Query) error {
	id, prepared, err := conn.Run(ctx, q.SQL, q.Args)
	if err != nil {
		return err
	}
	c.runSeq = conn.runSeq
	c.log = conn.log

	if prepared {
		if cols, ok := conn.statements.Get(id); ok {
			conn.log.WithField("statement", id.Name()).Trace("statement cache hit")
			c.cols = cols
			return nil
		}
	}
	cols, err := c.describe(ctx, conn)
	if err != nil {
		return err
	}
	if prepared && !c.ended {
		cols = conn.statements.insert(id, cols)
	}
	c.cols = cols
	return nil
}

// describe reads up to the message that carries the result shape.
func (c *Cursor) describe(ctx context.Context, conn *Conn) (*rowval.Columns, error) {
	for {
		msg, err := conn.receive(ctx)
		if err != nil {
			return nil, err
		}
		switch m := msg.(type) {
		case *pgproto3.ParseComplete, *pgproto3.BindComplete:
		case *pgproto3.RowDescription:
			return columnsFromDescription(m), nil
		case *pgproto3.NoData:
			return rowval.EmptyColumns(), nil
		case *pgproto3.CommandComplete, *pgproto3.EmptyQueryResponse:
			// statements without a row stream
			c.ended = true
			return rowval.EmptyColumns(), nil
		case *pgproto3.ErrorResponse:
			return nil, pgconn.ErrorResponseToPgError(m)
		default:
			return nil, conn.fail(cursor.ErrProtocol.New(fmt.Sprintf("unexpected message while describing result: %T", msg)))
		}
	}
}

func columnsFromDescription(rd *pgproto3.RowDescription) *rowval.Columns {
	b := rowval.NewColumnsBuilder(len(rd.Fields))
	for _, f := range rd.Fields {
		b.Add(string(f.Name), rowval.Format(f.Format))
	}
	return b.Build()
}
