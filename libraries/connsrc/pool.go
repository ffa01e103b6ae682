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
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"gopkg.in/src-d/go-errors.v1"
)

var (
	ErrPoolClosed  = errors.NewKind("connection pool is closed")
	ErrConnect     = errors.NewKind("unable to establish connection: %s")
	ErrSourceBusy  = errors.NewKind("connection source is already in use")
	ErrSourceSpent = errors.NewKind("connection source was already released")
)

const defaultMaxConns = 10

// Conn is what pools and sources require of a backend connection.
type Conn interface {
	// Reset brings the connection back to a state where a new query can be
	// run, draining any response still in flight. A connection that fails
	// to reset must not be reused.
	Reset(ctx context.Context) error
	// Close releases the underlying transport.
	Close() error
}

// Connector establishes a new connection for a pool.
type Connector[C Conn] func(ctx context.Context) (C, error)

type PoolOptions struct {
	// MaxConnections bounds the number of connections checked out or idle
	// at once. Defaults to 10.
	MaxConnections int
	// AcquireTimeout bounds how long Checkout waits for a free slot. Zero
	// waits until the caller's context is done.
	AcquireTimeout time.Duration
	Metrics        *PoolMetrics
	Log            *logrus.Entry
}

// Pool hands out exclusive connections. A checked out connection belongs to
// its caller until it is given back with Release.
type Pool[C Conn] struct {
	connect Connector[C]
	opts    PoolOptions
	log     *logrus.Entry
	sema    *semaphore.Weighted

	closeCtx context.Context
	cancel   context.CancelFunc

	mu     sync.Mutex
	idle   []C
	open   int
	closed bool
}

func NewPool[C Conn](connect Connector[C], opts PoolOptions) *Pool[C] {
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = defaultMaxConns
	}
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	closeCtx, cancel := context.WithCancel(context.Background())
	return &Pool[C]{
		connect:  connect,
		opts:     opts,
		log:      log.WithField("component", "pool"),
		sema:     semaphore.NewWeighted(int64(opts.MaxConnections)),
		closeCtx: closeCtx,
		cancel:   cancel,
	}
}

// Checkout returns an idle connection or establishes a new one, waiting for
// a free slot when the pool is at capacity. Connectivity failures are not
// retried.
func (p *Pool[C]) Checkout(ctx context.Context) (C, error) {
	var zero C
	if p.isClosed() {
		return zero, ErrPoolClosed.New()
	}

	if p.opts.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.AcquireTimeout)
		defer cancel()
	}
	acquireCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.closeCtx, cancel)
	defer stop()

	start := time.Now()
	if !p.sema.TryAcquire(1) {
		p.log.WithField("max_connections", p.opts.MaxConnections).
			Warn("connection pool exhausted; waiting for a release. Cursors taken from a pool must be closed or drained with ForEach")
		if err := p.sema.Acquire(acquireCtx, 1); err != nil {
			if p.isClosed() {
				return zero, ErrPoolClosed.New()
			}
			return zero, ErrConnect.Wrap(err, "waiting for a free connection: "+err.Error())
		}
	}
	p.opts.Metrics.observeWait(time.Since(start))

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sema.Release(1)
		return zero, ErrPoolClosed.New()
	}
	if n := len(p.idle); n > 0 {
		c := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		p.opts.Metrics.checkedOut()
		p.log.Trace("reusing idle connection")
		return c, nil
	}
	p.open++
	p.mu.Unlock()

	c, err := p.connect(ctx)
	if err != nil {
		p.mu.Lock()
		p.open--
		p.mu.Unlock()
		p.sema.Release(1)
		p.log.WithError(err).Debug("failed to establish connection")
		return zero, ErrConnect.Wrap(err, err.Error())
	}
	p.opts.Metrics.opened()
	p.opts.Metrics.checkedOut()
	p.log.Debug("established new connection")
	return c, nil
}

// Release gives a checked out connection back. It is reset first; a
// connection that cannot be reset, or that comes back after the pool was
// closed, is closed instead of being kept.
func (p *Pool[C]) Release(ctx context.Context, c C) {
	defer p.sema.Release(1)

	err := c.Reset(ctx)

	p.mu.Lock()
	if err == nil && !p.closed {
		p.idle = append(p.idle, c)
		p.mu.Unlock()
		return
	}
	p.open--
	p.mu.Unlock()

	if err != nil {
		p.log.WithError(err).Warn("discarding connection that could not be reset")
	}
	p.opts.Metrics.discard()
	if cerr := c.Close(); cerr != nil {
		p.log.WithError(cerr).Debug("error closing discarded connection")
	}
}

// Close closes every idle connection and fails pending and future
// checkouts. Connections still checked out are closed when released.
func (p *Pool[C]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.open -= len(idle)
	p.mu.Unlock()
	p.cancel()

	var firstErr error
	for _, c := range idle {
		p.opts.Metrics.discard()
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type PoolStats struct {
	Open int
	Idle int
}

func (p *Pool[C]) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{Open: p.open, Idle: len(p.idle)}
}

func (p *Pool[C]) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
