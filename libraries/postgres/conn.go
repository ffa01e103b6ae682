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

// Package postgres streams query results from a Postgres server over the
// frontend/backend protocol, one DataRow at a time.
package postgres

import (
	"context"
	"fmt"
	"io"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/sirupsen/logrus"

	"github.com/dolthub/rowstream/libraries/connsrc"
	"github.com/dolthub/rowstream/libraries/cursor"
)

const defaultStatementCacheCapacity = 100

type Options struct {
	// StatementCacheCapacity bounds the number of prepared statements kept
	// open per connection. Zero means the default.
	StatementCacheCapacity int
	Log                    *logrus.Entry
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// Conn is a Postgres connection that has completed startup and is ready for
// queries. It is not safe for concurrent use; a cursor owns it for the
// duration of each call.
type Conn struct {
	rw  io.ReadWriter
	fe  *pgproto3.Frontend
	log *logrus.Entry

	statements *StatementCache
	queries    *lru.Cache[string, StatementID]
	// closing holds evicted statements waiting to be closed server side
	closing []StatementID
	nextID  StatementID
	// parsing is the query whose Parse has been sent but not acknowledged
	parsing string

	// pending counts the ReadyForQuery messages still owed by the server
	pending int
	// runSeq identifies the most recent Run
	runSeq uint64
	broken error
}

var _ connsrc.Conn = (*Conn)(nil)

func NewConn(rw io.ReadWriter, opts Options) *Conn {
	capacity := opts.StatementCacheCapacity
	if capacity <= 0 {
		capacity = defaultStatementCacheCapacity
	}
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	c := &Conn{
		rw:         rw,
		fe:         pgproto3.NewFrontend(rw, rw),
		log:        log.WithField("backend", "postgres"),
		statements: newStatementCache(),
	}
	c.queries, _ = lru.NewWithEvict[string, StatementID](capacity, c.onEvict)
	return c
}

func (c *Conn) onEvict(query string, id StatementID) {
	c.log.WithField("statement", id.Name()).Trace("evicting prepared statement")
	c.statements.remove(id)
	c.closing = append(c.closing, id)
}

// Statements returns the connection's statement cache.
func (c *Conn) Statements() *StatementCache {
	return c.statements
}

// Broken returns the error that made the connection unusable, if any.
func (c *Conn) Broken() error {
	return c.broken
}

// Reset waits for every outstanding response to finish so the connection can
// run another query. Rows still in flight are discarded.
func (c *Conn) Reset(ctx context.Context) error {
	return c.waitUntilReady(ctx)
}

// Close terminates the session and closes the underlying transport if it can
// be closed.
func (c *Conn) Close() error {
	if c.broken == nil {
		c.fe.Send(&pgproto3.Terminate{})
		_ = c.fe.Flush()
		c.broken = cursor.ErrConnBroken.New("connection closed")
	}
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *Conn) fail(err error) error {
	if c.broken == nil {
		c.broken = err
		c.log.WithError(err).Debug("connection marked broken")
	}
	return err
}

func (c *Conn) flush() error {
	if err := c.fe.Flush(); err != nil {
		return c.fail(cursor.ErrConnBroken.Wrap(err, err.Error()))
	}
	return nil
}

func (c *Conn) waitUntilReady(ctx context.Context) error {
	for c.pending > 0 {
		msg, err := c.receive(ctx)
		if err != nil {
			return err
		}
		c.log.WithField("message", fmt.Sprintf("%T", msg)).Trace("discarding message while draining")
	}
	return c.broken
}

// receive reads the next message a cursor needs to see. Asynchronous
// messages are absorbed, and the bookkeeping messages update connection
// state before being returned.
func (c *Conn) receive(ctx context.Context) (pgproto3.BackendMessage, error) {
	for {
		if c.broken != nil {
			return nil, c.broken
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if d, ok := c.rw.(readDeadliner); ok {
			deadline, _ := ctx.Deadline()
			if err := d.SetReadDeadline(deadline); err != nil {
				return nil, c.fail(cursor.ErrConnBroken.Wrap(err, err.Error()))
			}
		}

		msg, err := c.fe.Receive()
		if err != nil {
			return nil, c.fail(cursor.ErrConnBroken.Wrap(err, err.Error()))
		}

		switch m := msg.(type) {
		case *pgproto3.ParameterStatus, *pgproto3.NoticeResponse, *pgproto3.NotificationResponse, *pgproto3.CloseComplete:
			c.log.WithField("message", fmt.Sprintf("%T", m)).Trace("absorbed asynchronous message")
			continue
		case *pgproto3.ParseComplete:
			c.parsing = ""
		case *pgproto3.ErrorResponse:
			if c.parsing != "" {
				// the statement never made it to the server
				c.queries.Remove(c.parsing)
				c.parsing = ""
			}
		case *pgproto3.ReadyForQuery:
			if c.pending > 0 {
				c.pending--
			}
		}
		return msg, nil
	}
}
