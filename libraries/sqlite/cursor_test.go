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
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/rowstream/libraries/connsrc"
	"github.com/dolthub/rowstream/libraries/cursor"
	"github.com/dolthub/rowstream/libraries/rowval"
)

const selectUsers = "SELECT id, name, score, active, avatar FROM users WHERE id > ?"

func usersHandle() *memHandle {
	h := newMemHandle()
	h.add(selectUsers, &memResult{
		names:  []string{"id", "name", "score", "active", "avatar"},
		decl:   []string{"INTEGER", "TEXT", "REAL", "BOOLEAN", "BLOB"},
		params: 1,
		rows: [][]any{
			{int64(1), "ann", 1.5, int64(1), []byte{0xca, 0xfe}},
			{int64(2), nil, nil, int64(0), nil},
		},
	})
	return h
}

func collectIDs(t *testing.T, c *Cursor) []int64 {
	var ids []int64
	err := cursor.ForEach[*Row](context.Background(), c, func(r *Row) error {
		id, err := rowval.Get(r, rowval.Ordinal(0), DecodeInt64)
		ids = append(ids, id)
		return err
	})
	require.NoError(t, err)
	return ids
}

func TestCursorDecodesRows(t *testing.T) {
	h := usersHandle()
	conn := NewConn(h, Options{})
	ctx := context.Background()

	c := FromConn(conn, Query{SQL: selectUsers, Args: NewArguments().Int64(0)})
	row, err := c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, row.Len())

	id, err := rowval.Get(row, rowval.Named("id"), DecodeInt64)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	name, err := rowval.Get(row, rowval.Named("name"), DecodeString)
	require.NoError(t, err)
	assert.Equal(t, "ann", name)
	score, err := rowval.Get(row, rowval.Named("score"), DecodeFloat64)
	require.NoError(t, err)
	assert.Equal(t, 1.5, score)
	active, err := rowval.Get(row, rowval.Named("active"), DecodeBool)
	require.NoError(t, err)
	assert.True(t, active)
	avatar, err := rowval.Get(row, rowval.Named("avatar"), DecodeBytes)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xca, 0xfe}, avatar)

	_, err = rowval.Get(row, rowval.Named("name"), DecodeInt64)
	assert.True(t, rowval.ErrDecode.Is(err))

	row, err = c.Next(ctx)
	require.NoError(t, err)
	nullName, err := rowval.GetNullable(row, rowval.Named("name"), DecodeString)
	require.NoError(t, err)
	assert.False(t, nullName.Valid)
	_, err = rowval.Get(row, rowval.Named("score"), DecodeFloat64)
	assert.True(t, rowval.ErrUnexpectedNull.Is(err))

	_, err = c.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
	_, _, err = row.GetRaw(rowval.Ordinal(0))
	assert.True(t, rowval.ErrRowReleased.Is(err))
	_, err = c.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)

	assert.Equal(t, []TypeInfo{integerType, textType, floatType, boolType, blobType}, c.DeclaredTypes())
	assert.Equal(t, rowval.BinaryFormat, c.Columns().Format(0))
}

func TestPreparedStatementsAreReused(t *testing.T) {
	h := usersHandle()
	conn := NewConn(h, Options{})

	first := FromConn(conn, Query{SQL: selectUsers, Args: NewArguments().Int64(0)})
	assert.Equal(t, []int64{1, 2}, collectIDs(t, first))
	second := FromConn(conn, Query{SQL: selectUsers, Args: NewArguments().Int64(1)})
	assert.Equal(t, []int64{1, 2}, collectIDs(t, second))

	assert.Equal(t, 1, h.prepared[selectUsers])
	assert.Same(t, first.Columns(), second.Columns())
	assert.Equal(t, []any{int64(1)}, h.open[0].bound)
	assert.Greater(t, h.open[0].resets, 1)
	assert.Zero(t, h.finalized())
}

func TestUnpreparedStatementsAreFinalized(t *testing.T) {
	h := newMemHandle()
	h.add("SELECT 1 + 1", &memResult{names: []string{"1 + 1"}, decl: []string{""}, rows: [][]any{{int64(2)}}})
	conn := NewConn(h, Options{})

	assert.Equal(t, []int64{2}, collectIDs(t, FromConn(conn, Query{SQL: "SELECT 1 + 1"})))
	assert.Equal(t, []int64{2}, collectIDs(t, FromConn(conn, Query{SQL: "SELECT 1 + 1"})))
	assert.Equal(t, 2, h.prepared["SELECT 1 + 1"])
	assert.Equal(t, 2, h.finalized())
}

func TestExpressionColumnsDecodeByStorageClass(t *testing.T) {
	h := newMemHandle()
	h.add("SELECT count(*), 'x'", &memResult{names: []string{"count(*)", "'x'"}, decl: []string{"", ""}, rows: [][]any{{int64(3), "x"}}})
	conn := NewConn(h, Options{})

	c := FromConn(conn, Query{SQL: "SELECT count(*), 'x'"})
	row, err := c.Next(context.Background())
	require.NoError(t, err)
	n, err := rowval.Get(row, rowval.Ordinal(0), DecodeInt64)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	b, err := rowval.Get(row, rowval.Ordinal(0), DecodeBool)
	require.NoError(t, err)
	assert.True(t, b)
	_, err = rowval.Get(row, rowval.Ordinal(1), DecodeInt64)
	assert.True(t, rowval.ErrDecode.Is(err))
	assert.Equal(t, TypeInfo{Type: Null}, c.DeclaredTypes()[0])
	require.NoError(t, c.Close(context.Background()))
}

func TestStepErrorEndsCursor(t *testing.T) {
	h := newMemHandle()
	busy := errors.New("database is locked")
	h.add("SELECT id FROM t", &memResult{names: []string{"id"}, decl: []string{"INTEGER"}, rows: [][]any{{int64(1)}, {int64(2)}}, failAt: 1, err: busy})
	conn := NewConn(h, Options{})
	ctx := context.Background()

	c := FromConn(conn, Query{SQL: "SELECT id FROM t"})
	_, err := c.Next(ctx)
	require.NoError(t, err)
	_, err = c.Next(ctx)
	assert.ErrorIs(t, err, busy)
	_, err = c.Next(ctx)
	assert.ErrorIs(t, err, busy)
	assert.Nil(t, conn.active)
	assert.NoError(t, conn.Broken())
}

func TestArgumentCountMismatch(t *testing.T) {
	conn := NewConn(usersHandle(), Options{})
	_, err := FromConn(conn, Query{SQL: selectUsers, Args: NewArguments()}).Next(context.Background())
	assert.True(t, ErrArgumentCount.Is(err))
	assert.Nil(t, conn.active)
}

func TestPrepareErrorIsReturned(t *testing.T) {
	conn := NewConn(newMemHandle(), Options{})
	_, err := FromConn(conn, Query{SQL: "SELECT * FROM missing"}).Next(context.Background())
	assert.ErrorContains(t, err, "no such table")
}

func TestCloseResetsStatement(t *testing.T) {
	h := usersHandle()
	conn := NewConn(h, Options{})
	ctx := context.Background()

	c := FromConn(conn, Query{SQL: selectUsers, Args: NewArguments().Int64(0)})
	_, err := c.Next(ctx)
	require.NoError(t, err)
	resets := h.open[0].resets
	require.NoError(t, c.Close(ctx))
	assert.Equal(t, resets+1, h.open[0].resets)
	assert.Nil(t, conn.active)

	_, err = c.Next(ctx)
	assert.True(t, cursor.ErrCursorClosed.Is(err))
}

func TestSupersededCursor(t *testing.T) {
	h := usersHandle()
	conn := NewConn(h, Options{})
	ctx := context.Background()

	first := FromConn(conn, Query{SQL: selectUsers, Args: NewArguments().Int64(0)})
	_, err := first.Next(ctx)
	require.NoError(t, err)

	second := FromConn(conn, Query{SQL: selectUsers, Args: NewArguments().Int64(0)})
	_, err = second.Next(ctx)
	require.NoError(t, err)

	_, err = first.Next(ctx)
	assert.True(t, cursor.ErrSuperseded.Is(err))
	assert.Equal(t, []int64{2}, collectIDs(t, second))
}

func TestEvictedStatementsAreFinalized(t *testing.T) {
	h := usersHandle()
	h.add("SELECT 2", &memResult{names: []string{"2"}, decl: []string{""}, rows: [][]any{{int64(2)}}})
	conn := NewConn(h, Options{StatementCacheCapacity: 1})

	assert.Equal(t, []int64{1, 2}, collectIDs(t, FromConn(conn, Query{SQL: selectUsers, Args: NewArguments().Int64(0)})))
	assert.Equal(t, []int64{2}, collectIDs(t, FromConn(conn, Query{SQL: "SELECT 2", Args: NewArguments()})))
	assert.True(t, h.open[0].finalized)
	assert.False(t, h.open[1].finalized)

	require.NoError(t, conn.Close())
	assert.True(t, h.open[1].finalized)
	assert.True(t, h.closed)
	assert.True(t, cursor.ErrConnBroken.Is(conn.Broken()))
}

func TestCancelledContext(t *testing.T) {
	conn := NewConn(usersHandle(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := FromConn(conn, Query{SQL: selectUsers, Args: NewArguments().Int64(0)}).Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPooledCursor(t *testing.T) {
	h := usersHandle()
	pool := connsrc.NewPool[*Conn](func(ctx context.Context) (*Conn, error) {
		return NewConn(h, Options{}), nil
	}, connsrc.PoolOptions{MaxConnections: 1})
	defer pool.Close()

	assert.Equal(t, []int64{1, 2}, collectIDs(t, FromPool(pool, Query{SQL: selectUsers, Args: NewArguments().Int64(0)})))
	assert.Equal(t, []int64{1, 2}, collectIDs(t, FromPool(pool, Query{SQL: selectUsers, Args: NewArguments().Int64(0)})))
	assert.Equal(t, connsrc.PoolStats{Open: 1, Idle: 1}, pool.Stats())
	assert.Equal(t, 1, h.prepared[selectUsers])
}

func TestArgumentsBindInOrder(t *testing.T) {
	h := newMemHandle()
	h.add("INSERT INTO t VALUES (?, ?, ?, ?, ?, ?)", &memResult{params: 6})
	conn := NewConn(h, Options{})
	args := NewArguments().Int64(1).Float64(2.5).Text("x").Blob([]byte{1}).Null().Bool(true)

	_, err := FromConn(conn, Query{SQL: "INSERT INTO t VALUES (?, ?, ?, ?, ?, ?)", Args: args}).Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []any{int64(1), 2.5, "x", []byte{1}, nil, int64(1)}, h.open[0].bound)
}
