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

// Package sqlite streams rows from an SQLite database through a step-style
// statement API, such as the one offered by any SQLite binding.
package sqlite

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/src-d/go-errors.v1"

	"github.com/dolthub/rowstream/libraries/connsrc"
	"github.com/dolthub/rowstream/libraries/cursor"
	"github.com/dolthub/rowstream/libraries/rowval"
)

var ErrArgumentCount = errors.NewKind("statement takes %d arguments, got %d")

// Handle is an open database connection.
type Handle interface {
	Prepare(query string) (Statement, error)
	Close() error
}

// Statement is a prepared statement. Parameter indexes start at 1, column
// indexes at 0, as in the C API. Column accessors read the current row and
// the slices they return are only valid until the next Step, Reset or
// Finalize.
type Statement interface {
	ParamCount() int
	BindInt64(i int, v int64) error
	BindFloat64(i int, v float64) error
	BindText(i int, v string) error
	BindBlob(i int, v []byte) error
	BindNull(i int) error
	ClearBindings() error

	// Step advances to the next row, returning false once the statement is
	// done.
	Step() (bool, error)
	Reset() error
	Finalize() error

	ColumnCount() int
	ColumnName(i int) string
	// ColumnDeclType returns the declared type of a table column, or "" for
	// expressions.
	ColumnDeclType(i int) string
	ColumnType(i int) DataType
	ColumnInt64(i int) int64
	ColumnFloat64(i int) float64
	ColumnBytes(i int) []byte
}

const defaultStatementCacheCapacity = 100

type Options struct {
	// StatementCacheCapacity bounds the number of statements kept prepared.
	// Zero means the default.
	StatementCacheCapacity int
	Log                    *logrus.Entry
}

type statement struct {
	st    Statement
	query string
	cols  *rowval.Columns
	decl  []TypeInfo
	// cached statements outlive their execution; one-off statements are
	// finalized once reset
	cached bool
}

// Conn runs statements on a Handle, keeping prepared statements and their
// column metadata per query text. It is not safe for concurrent use.
type Conn struct {
	h     Handle
	log   *logrus.Entry
	stmts *lru.Cache[string, *statement]

	// active is the statement whose execution has not been reset yet
	active *statement
	runSeq uint64
	broken error
}

var _ connsrc.Conn = (*Conn)(nil)

func NewConn(h Handle, opts Options) *Conn {
	capacity := opts.StatementCacheCapacity
	if capacity <= 0 {
		capacity = defaultStatementCacheCapacity
	}
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Conn{h: h, log: log.WithField("backend", "sqlite")}
	c.stmts, _ = lru.NewWithEvict[string, *statement](capacity, c.onEvict)
	return c
}

func (c *Conn) onEvict(query string, stmt *statement) {
	c.log.WithField("query", query).Trace("finalizing evicted statement")
	if err := stmt.st.Finalize(); err != nil {
		c.log.WithError(err).Debug("error finalizing statement")
	}
}

// Reset ends the execution of the active statement, if any.
func (c *Conn) Reset(ctx context.Context) error {
	if c.broken != nil {
		return c.broken
	}
	c.resetActive()
	return nil
}

// Close finalizes every prepared statement and closes the handle.
func (c *Conn) Close() error {
	if c.broken == nil {
		c.resetActive()
		c.stmts.Purge()
		c.broken = cursor.ErrConnBroken.New("connection closed")
	}
	return c.h.Close()
}

func (c *Conn) Broken() error {
	return c.broken
}

// resetActive resets the active statement. Reset reports the error of the
// last step again, which the cursor already returned, so it is dropped.
func (c *Conn) resetActive() {
	stmt := c.active
	if stmt == nil {
		return
	}
	c.active = nil
	_ = stmt.st.Reset()
	if !stmt.cached {
		if err := stmt.st.Finalize(); err != nil {
			c.log.WithError(err).Debug("error finalizing statement")
		}
	}
}

// run binds |args| and readies the statement for |query| to be stepped.
// With nil |args| the statement is prepared for this execution only;
// otherwise it is kept prepared for later runs of the same query text.
func (c *Conn) run(ctx context.Context, query string, args *Arguments) (*statement, error) {
	if c.broken != nil {
		return nil, c.broken
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.resetActive()
	c.runSeq++

	stmt, err := c.prepare(query, args != nil)
	if err != nil {
		return nil, err
	}
	c.active = stmt
	if args == nil {
		return stmt, nil
	}

	if err := stmt.st.ClearBindings(); err != nil {
		return nil, err
	}
	if n := stmt.st.ParamCount(); n != args.Len() {
		return nil, ErrArgumentCount.New(n, args.Len())
	}
	if err := args.bind(stmt.st); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (c *Conn) prepare(query string, cache bool) (*statement, error) {
	if cache {
		if stmt, ok := c.stmts.Get(query); ok {
			c.log.Debug("statement cache hit")
			return stmt, nil
		}
	}

	st, err := c.h.Prepare(query)
	if err != nil {
		return nil, err
	}
	stmt := &statement{st: st, query: query, cached: cache}
	n := st.ColumnCount()
	b := rowval.NewColumnsBuilder(n)
	stmt.decl = make([]TypeInfo, n)
	for i := 0; i < n; i++ {
		b.Add(st.ColumnName(i), rowval.BinaryFormat)
		if decl := st.ColumnDeclType(i); decl != "" {
			stmt.decl[i] = declaredType(decl)
		} else {
			stmt.decl[i] = TypeInfo{Type: Null}
		}
	}
	stmt.cols = b.Build()

	if cache {
		c.log.WithField("query", query).Debug("statement cache miss")
		c.stmts.Add(query, stmt)
	}
	return stmt, nil
}
