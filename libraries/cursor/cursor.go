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

// Package cursor defines the contract shared by the backend cursors and the
// bookkeeping that makes their terminal states sticky.
//
// A cursor is created with its query but does no I/O until the first call to
// Next. That call resolves a connection, executes the query and learns the
// result shape; every later call yields one row. The end of the stream is
// reported as io.EOF. Once Next has returned io.EOF or an error, every
// further call returns the same outcome without touching the connection.
//
// Rows returned by Next borrow the connection's receive buffer and are only
// valid until the next call to Next or Close.
package cursor

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	goerrors "gopkg.in/src-d/go-errors.v1"
)

var (
	ErrProtocol       = goerrors.NewKind("protocol error: %s")
	ErrConnBroken     = goerrors.NewKind("connection is unusable: %s")
	ErrConcurrentNext = goerrors.NewKind("cursor is already being advanced by another caller")
	ErrCursorClosed   = goerrors.NewKind("cursor is closed")
	ErrSuperseded     = goerrors.NewKind("connection was used by a later query while the cursor was open")
)

// Cursor is a lazy, single-pass stream of rows bound to one query execution.
type Cursor[R any] interface {
	// Next returns the next row, io.EOF at the end of the stream, or the
	// error that ended it.
	Next(ctx context.Context) (R, error)
	// Close abandons the remaining rows. The connection is either drained
	// back to a reusable state or discarded.
	Close(ctx context.Context) error
}

// ForEach calls |cb| for every remaining row of |c| and closes it. Rows are
// only valid for the duration of the callback.
func ForEach[R any](ctx context.Context, c Cursor[R], cb func(R) error) (err error) {
	defer func() {
		cerr := c.Close(ctx)
		if err == nil {
			err = cerr
		}
	}()
	for {
		var r R
		r, err = c.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}
		if err = cb(r); err != nil {
			return err
		}
	}
}

// State tracks one cursor's progress. The zero value is a fresh cursor.
type State struct {
	busy atomic.Bool
	done bool
	err  error
	step uint64
}

// Enter starts a call to Next. Any rows handed out before are expired. If the
// cursor already finished, the terminal outcome is returned and the caller
// must return it without doing I/O.
func (s *State) Enter() error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrConcurrentNext.New()
	}
	s.step++
	if s.done {
		s.busy.Store(false)
		return s.err
	}
	return nil
}

// Exit ends a call to Next. A non-nil |err|, io.EOF included, becomes the
// terminal outcome of the cursor. Exit returns |err| for convenience.
func (s *State) Exit(err error) error {
	if err != nil {
		s.done = true
		s.err = err
	}
	s.busy.Store(false)
	return err
}

// Close marks the cursor closed. It reports whether the cursor was still
// live, in which case the caller owns cleaning up the connection.
func (s *State) Close() (live bool, err error) {
	if !s.busy.CompareAndSwap(false, true) {
		return false, ErrConcurrentNext.New()
	}
	defer s.busy.Store(false)
	s.step++
	if s.done {
		return false, nil
	}
	s.done = true
	s.err = ErrCursorClosed.New()
	return true, nil
}

// Done reports whether the cursor reached a terminal state.
func (s *State) Done() bool {
	return s.done
}

// Step returns the counter row leases are checked against.
func (s *State) Step() *uint64 {
	return &s.step
}

// IsEOF reports whether |err| marks a normal end of stream.
func IsEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
