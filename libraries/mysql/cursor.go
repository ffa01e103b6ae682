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
	"io"

	query "github.com/dolthub/vitess/go/vt/proto/query"
	"github.com/sirupsen/logrus"

	"github.com/dolthub/rowstream/libraries/connsrc"
	"github.com/dolthub/rowstream/libraries/cursor"
	"github.com/dolthub/rowstream/libraries/rowval"
)

// Query is a statement to execute. A nil Args sends it as a COM_QUERY.
type Query struct {
	SQL  string
	Args *Arguments
}

// Cursor streams the rows of the first result set of a Query. Later result
// sets are read and discarded when the cursor finishes.
type Cursor struct {
	state  cursor.State
	source *connsrc.Source[*Conn]

	query  *Query
	fields []*query.Field
	cols   *rowval.Columns
	binary bool
	// values is reused for every row; rows only live until the next step
	values [][]byte
	runSeq uint64
	ended  bool
	log    *logrus.Entry
}

var _ cursor.Cursor[*Row] = (*Cursor)(nil)

// FromPool returns a cursor backed by a connection from |pool|. It must be
// closed or drained with ForEach, otherwise the connection is never released.
func FromPool(pool *connsrc.Pool[*Conn], q Query) *Cursor {
	return &Cursor{source: connsrc.FromPool(pool), query: &q}
}

// FromConn returns a cursor over a connection the caller holds. Running
// another query on the connection supersedes the cursor.
func FromConn(conn *Conn, q Query) *Cursor {
	return &Cursor{source: connsrc.FromConn(conn), query: &q}
}

// Fields returns the column definitions sent by the server, or nil before
// the first call to Next.
func (c *Cursor) Fields() []*query.Field {
	return c.fields
}

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

// Close abandons the rest of the stream and drains the response.
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

	data, ok, err := conn.readRow(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		c.ended = true
		return nil, io.EOF
	}

	if c.binary {
		err = splitBinaryRow(data, c.fields, c.values)
	} else {
		err = splitTextRow(data, c.values)
	}
	if err != nil {
		return nil, conn.protocolErr(err)
	}
	return &Row{
		lease:  rowval.NewLease(c.state.Step()),
		cols:   c.cols,
		fields: c.fields,
		binary: c.binary,
		values: c.values,
	}, nil
}

func (c *Cursor) execute(ctx context.Context, conn *Conn, q *Query) error {
	binary, err := conn.Run(ctx, q.SQL, q.Args)
	if err != nil {
		return err
	}
	c.runSeq = conn.runSeq
	c.binary = binary
	c.log = conn.log

	fields, done, err := conn.readResultHeader(ctx)
	if err != nil {
		return err
	}
	c.fields = fields
	c.cols = columnsFromFields(fields, binary)
	if done {
		c.ended = true
		return nil
	}
	c.values = make([][]byte, len(fields))
	return nil
}
