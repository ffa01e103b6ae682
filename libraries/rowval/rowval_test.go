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

package rowval

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceRow struct {
	cols  *Columns
	vals  [][]byte
	lease Lease
}

var _ Row[Value] = sliceRow{}

func (r sliceRow) Len() int {
	return len(r.vals)
}

func (r sliceRow) GetRaw(ref ColumnRef) (Value, bool, error) {
	if err := r.lease.Check(); err != nil {
		return Value{}, false, err
	}
	i, err := ref.Resolve(r.cols, len(r.vals))
	if err != nil {
		return Value{}, false, err
	}
	if r.vals[i] == nil {
		return Value{}, false, nil
	}
	return Value{format: r.cols.Format(i), raw: r.vals[i]}, true, nil
}

func decodeInt(v Value) (int64, error) {
	s, err := v.Text()
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ErrDecode.New(err.Error())
	}
	return n, nil
}

func testRow(step *uint64) sliceRow {
	cols := NewColumnsBuilder(3).
		Add("id", TextFormat).
		Add("", TextFormat).
		Add("missing", TextFormat).
		Build()
	return sliceRow{
		cols:  cols,
		vals:  [][]byte{[]byte("42"), []byte("7"), nil},
		lease: NewLease(step),
	}
}

func TestColumns(t *testing.T) {
	cols := NewColumnsBuilder(0).
		Add("a", BinaryFormat).
		Add("", TextFormat).
		Add("b", TextFormat).
		Add("a", TextFormat).
		Build()

	assert.Equal(t, 4, cols.Len())
	assert.Equal(t, 2, cols.Names())

	i, ok := cols.Index("a")
	assert.True(t, ok)
	assert.Equal(t, 3, i)
	_, ok = cols.Index("")
	assert.False(t, ok)

	assert.Equal(t, BinaryFormat, cols.Format(0))
	assert.Equal(t, TextFormat, cols.Format(1))
	assert.Equal(t, TextFormat, cols.Format(17))

	assert.Same(t, EmptyColumns(), NewColumnsBuilder(4).Build())
}

func TestGet(t *testing.T) {
	var step uint64
	row := testRow(&step)

	t.Run("by name", func(t *testing.T) {
		n, err := Get(row, Named("id"), decodeInt)
		require.NoError(t, err)
		assert.Equal(t, int64(42), n)
	})
	t.Run("by ordinal", func(t *testing.T) {
		n, err := Get(row, Ordinal(1), decodeInt)
		require.NoError(t, err)
		assert.Equal(t, int64(7), n)
	})
	t.Run("unknown name", func(t *testing.T) {
		_, err := Get(row, Named("nope"), decodeInt)
		assert.True(t, ErrColumnNotFound.Is(err))
	})
	t.Run("out of range", func(t *testing.T) {
		_, err := Get(row, Ordinal(3), decodeInt)
		assert.True(t, ErrColumnIndexOutOfRange.Is(err))
		_, err = Get(row, Ordinal(-1), decodeInt)
		assert.True(t, ErrColumnIndexOutOfRange.Is(err))
	})
	t.Run("null into non-nullable", func(t *testing.T) {
		_, err := Get(row, Named("missing"), decodeInt)
		assert.True(t, ErrUnexpectedNull.Is(err))
		assert.True(t, IsDecodeError(err))
	})
	t.Run("null into nullable", func(t *testing.T) {
		n, err := GetNullable(row, Named("missing"), decodeInt)
		require.NoError(t, err)
		assert.False(t, n.Valid)
	})
	t.Run("present into nullable", func(t *testing.T) {
		n, err := GetNullable(row, Named("id"), decodeInt)
		require.NoError(t, err)
		assert.True(t, n.Valid)
		assert.Equal(t, int64(42), n.V)
	})
}

func TestLease(t *testing.T) {
	var step uint64
	row := testRow(&step)
	_, err := Get(row, Named("id"), decodeInt)
	require.NoError(t, err)

	step++
	_, err = Get(row, Named("id"), decodeInt)
	assert.True(t, ErrRowReleased.Is(err))

	assert.True(t, ErrRowReleased.Is(Lease{}.Check()))
}

func TestValueText(t *testing.T) {
	s, err := TextValue([]byte("héllo")).Text()
	require.NoError(t, err)
	assert.Equal(t, "héllo", s)

	_, err = TextValue([]byte{0xff, 0xfe}).Text()
	assert.True(t, ErrInvalidText.Is(err))

	v := BinaryValue([]byte{1, 2})
	assert.True(t, v.IsBinary())
	assert.Equal(t, 2, v.Len())
	assert.Equal(t, "binary", v.Format().String())
}
