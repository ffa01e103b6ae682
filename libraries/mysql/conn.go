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

// Package mysql streams query results from a MySQL server, one row packet at
// a time, over both the text and the binary (prepared statement) protocol.
package mysql

import (
	"context"
	"fmt"
	"io"

	vtmysql "github.com/dolthub/vitess/go/mysql"
	query "github.com/dolthub/vitess/go/vt/proto/query"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/dolthub/rowstream/libraries/connsrc"
	"github.com/dolthub/rowstream/libraries/cursor"
)

const defaultStatementCacheCapacity = 100

type Options struct {
	// StatementCacheCapacity bounds the number of prepared statements kept
	// open per connection. Zero means the default.
	StatementCacheCapacity int
	// DeprecateEOF must be set when CLIENT_DEPRECATE_EOF was negotiated during
	// the handshake.
	DeprecateEOF bool
	Log          *logrus.Entry
}

// phase tracks how far the current response has been read.
type phase int

const (
	phaseIdle phase = iota
	// the next packet starts a result set
	phaseHeader
	// the next packet is a row or the end of the result set
	phaseRows
)

type statement struct {
	id      uint32
	params  int
	columns int
}

// Conn is a MySQL connection that has completed the handshake. It is not
// safe for concurrent use.
type Conn struct {
	pc           PacketConn
	log          *logrus.Entry
	capabilities uint32

	stmts *lru.Cache[string, *statement]
	// closing holds evicted statement ids waiting for COM_STMT_CLOSE
	closing []uint32

	phase  phase
	runSeq uint64
	broken error
}

var _ connsrc.Conn = (*Conn)(nil)

func NewConn(pc PacketConn, opts Options) *Conn {
	capacity := opts.StatementCacheCapacity
	if capacity <= 0 {
		capacity = defaultStatementCacheCapacity
	}
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	c := &Conn{
		pc:  pc,
		log: log.WithField("backend", "mysql"),
	}
	if opts.DeprecateEOF {
		c.capabilities |= vtmysql.CapabilityClientDeprecateEOF
	}
	c.stmts, _ = lru.NewWithEvict[string, *statement](capacity, c.onEvict)
	return c
}

func (c *Conn) onEvict(query string, stmt *statement) {
	c.log.WithField("statement", stmt.id).Trace("evicting prepared statement")
	c.closing = append(c.closing, stmt.id)
}

func (c *Conn) deprecateEOF() bool {
	return c.capabilities&vtmysql.CapabilityClientDeprecateEOF != 0
}

// Broken returns the error that made the connection unusable, if any.
func (c *Conn) Broken() error {
	return c.broken
}

// Reset reads and discards whatever is left of the current response,
// including any further result sets.
func (c *Conn) Reset(ctx context.Context) error {
	return c.drain(ctx)
}

// Close sends COM_QUIT and closes the packet connection if it can be closed.
func (c *Conn) Close() error {
	if c.broken == nil {
		_ = c.pc.WriteCommand(context.Background(), []byte{vtmysql.ComQuit})
		c.broken = cursor.ErrConnBroken.New("connection closed")
	}
	if closer, ok := c.pc.(io.Closer); ok {
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

// protocolErr marks the connection broken. Packet layout errors are
// reported as they are; anything else becomes a protocol error.
func (c *Conn) protocolErr(err error) error {
	if ErrMalformedPacket.Is(err) || cursor.ErrProtocol.Is(err) {
		return c.fail(err)
	}
	return c.fail(cursor.ErrProtocol.Wrap(err, err.Error()))
}

func (c *Conn) readPacket(ctx context.Context) ([]byte, error) {
	if c.broken != nil {
		return nil, c.broken
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := c.pc.ReadPacket(ctx)
	if err != nil {
		if ErrMalformedPacket.Is(err) {
			return nil, c.fail(err)
		}
		return nil, c.fail(cursor.ErrConnBroken.Wrap(err, err.Error()))
	}
	if len(data) == 0 {
		return nil, c.fail(ErrMalformedPacket.New("empty packet"))
	}
	return data, nil
}

func (c *Conn) writeCommand(ctx context.Context, payload []byte) error {
	if c.broken != nil {
		return c.broken
	}
	if err := c.pc.WriteCommand(ctx, payload); err != nil {
		return c.fail(cursor.ErrConnBroken.Wrap(err, err.Error()))
	}
	return nil
}

func (c *Conn) isEOF(data []byte) bool {
	if data[0] != vtmysql.EOFPacket {
		return false
	}
	if c.deprecateEOF() {
		return len(data) < maxPacketSize
	}
	return len(data) < maxEOFPacketLen
}

// readEndOfResult parses the packet that ends a row stream and moves to the
// next result set if the server announced one.
func (c *Conn) readEndOfResult(data []byte) error {
	var ok okResult
	var err error
	if c.deprecateEOF() {
		ok, err = parseOK(data)
	} else {
		ok, err = parseEOF(data)
	}
	if err != nil {
		return c.fail(err)
	}
	if ok.moreResults() {
		c.phase = phaseHeader
	} else {
		c.phase = phaseIdle
	}
	return nil
}

// serverErr parses an ERR packet, which always ends the response.
func (c *Conn) serverErr(data []byte) error {
	err := parseErr(data)
	if !IsSQLError(err) {
		return c.fail(err)
	}
	c.phase = phaseIdle
	return err
}

// readResultHeader reads the start of a result set. A result without rows
// returns done. An ERR packet ends the response and is returned as is, with
// the connection still usable.
func (c *Conn) readResultHeader(ctx context.Context) (fields []*query.Field, done bool, err error) {
	data, err := c.readPacket(ctx)
	if err != nil {
		return nil, false, err
	}

	switch data[0] {
	case vtmysql.OKPacket:
		ok, err := parseOK(data)
		if err != nil {
			return nil, false, c.fail(err)
		}
		if ok.moreResults() {
			c.phase = phaseHeader
		} else {
			c.phase = phaseIdle
		}
		return nil, true, nil
	case vtmysql.ErrPacket:
		return nil, false, c.serverErr(data)
	case localInfilePacket:
		return nil, false, c.fail(cursor.ErrProtocol.New("LOCAL INFILE requests are not supported"))
	}

	r := &reader{data: data}
	n, _, err := r.lenEncInt()
	if err != nil {
		return nil, false, c.fail(err)
	}
	if n == 0 || r.remaining() != 0 {
		return nil, false, c.fail(ErrMalformedPacket.New(fmt.Sprintf("invalid result set header of %d bytes", len(data))))
	}

	fields, err = c.readColumnDefinitions(ctx, int(n))
	if err != nil {
		return nil, false, err
	}
	c.phase = phaseRows
	return fields, false, nil
}

func (c *Conn) readColumnDefinitions(ctx context.Context, n int) ([]*query.Field, error) {
	// stopping part way through the definitions would desync the stream,
	// so every failure here breaks the connection
	fields := make([]*query.Field, n)
	for i := range fields {
		data, err := c.readPacket(ctx)
		if err != nil {
			return nil, c.fail(err)
		}
		if fields[i], err = parseColumnDefinition(data); err != nil {
			return nil, c.fail(err)
		}
	}
	if n > 0 && !c.deprecateEOF() {
		if err := c.expectEOF(ctx); err != nil {
			return nil, c.fail(err)
		}
	}
	return fields, nil
}

func (c *Conn) expectEOF(ctx context.Context) error {
	data, err := c.readPacket(ctx)
	if err != nil {
		return err
	}
	if data[0] != vtmysql.EOFPacket || len(data) >= maxEOFPacketLen {
		return c.fail(cursor.ErrProtocol.New(fmt.Sprintf("expected EOF packet after column definitions, got header 0x%02x", data[0])))
	}
	return nil
}

// readRow returns the next row packet, or false at the end of the result
// set. An ERR packet ends the response.
func (c *Conn) readRow(ctx context.Context) ([]byte, bool, error) {
	data, err := c.readPacket(ctx)
	if err != nil {
		return nil, false, err
	}
	switch {
	case c.isEOF(data):
		return nil, false, c.readEndOfResult(data)
	case data[0] == vtmysql.ErrPacket:
		return nil, false, c.serverErr(data)
	}
	return data, true, nil
}

func (c *Conn) drain(ctx context.Context) error {
	for c.phase != phaseIdle {
		c.log.WithField("phase", c.phase).Trace("draining response")
		var err error
		switch c.phase {
		case phaseHeader:
			_, _, err = c.readResultHeader(ctx)
		case phaseRows:
			_, _, err = c.readRow(ctx)
		}
		if err != nil && !IsSQLError(err) {
			return err
		}
	}
	return c.broken
}
