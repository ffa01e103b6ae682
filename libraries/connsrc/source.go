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

package connsrc

import (
	"context"
	"sync/atomic"
)

// Source is where a cursor gets its connection from: either a pool, from
// which a connection is checked out on first use and kept until Release, or
// a connection the caller already holds.
type Source[C Conn] struct {
	pool *Pool[C]
	conn C
	// held is set once |conn| is valid
	held  bool
	spent bool
	busy  atomic.Bool
}

// FromPool returns a Source that checks a connection out of |pool| on first
// use. Release must run for the slot to go back to |pool|.
func FromPool[C Conn](pool *Pool[C]) *Source[C] {
	return &Source[C]{pool: pool}
}

func FromConn[C Conn](conn C) *Source[C] {
	return &Source[C]{conn: conn, held: true}
}

// Pooled reports whether the source checks its connection out of a pool.
func (s *Source[C]) Pooled() bool {
	return s.pool != nil
}

// Resolve returns exclusive access to the source's connection, checking one
// out of the pool first if needed. The returned release func must be called
// on every path once the caller is done with the connection for this call;
// until then, further calls fail with ErrSourceBusy.
func (s *Source[C]) Resolve(ctx context.Context) (C, func(), error) {
	var zero C
	if !s.busy.CompareAndSwap(false, true) {
		return zero, nil, ErrSourceBusy.New()
	}
	release := func() { s.busy.Store(false) }

	if s.spent {
		release()
		return zero, nil, ErrSourceSpent.New()
	}
	if !s.held {
		c, err := s.pool.Checkout(ctx)
		if err != nil {
			release()
			return zero, nil, err
		}
		s.conn, s.held = c, true
	}
	return s.conn, release, nil
}

// Release ends the source's use of its connection. A pooled connection is
// handed back to the pool, which resets or discards it; a borrowed one is
// reset in place so the next query on it starts from a clean state. Release
// is a no-op on a source that never resolved a connection or was already
// released.
func (s *Source[C]) Release(ctx context.Context) error {
	if s.spent {
		return nil
	}
	s.spent = true
	if !s.held {
		return nil
	}
	if s.pool == nil {
		return s.conn.Reset(ctx)
	}

	c := s.conn
	var zero C
	s.conn, s.held = zero, false
	s.pool.Release(ctx, c)
	return nil
}

// Held returns the connection the source currently holds, if any.
func (s *Source[C]) Held() (C, bool) {
	return s.conn, s.held && !s.spent
}

// Detach ends the source's use of its connection without resetting a
// borrowed one, for when the connection already moved on to other work. A
// pooled connection is released as usual.
func (s *Source[C]) Detach(ctx context.Context) error {
	if s.pool != nil {
		return s.Release(ctx)
	}
	s.spent = true
	return nil
}
