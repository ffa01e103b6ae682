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
	"errors"
	"fmt"
	"math"
	"strconv"
)

// memResult is the canned outcome of one query: its columns, the rows it
// steps through, and optionally an error returned instead of row |failAt|.
type memResult struct {
	names  []string
	decl   []string
	params int
	rows   [][]any
	failAt int
	err    error
}

// memHandle is an in-memory Handle serving canned results by query text.
type memHandle struct {
	results  map[string]*memResult
	prepared map[string]int
	open     []*memStatement
	closed   bool
}

func newMemHandle() *memHandle {
	return &memHandle{results: map[string]*memResult{}, prepared: map[string]int{}}
}

func (h *memHandle) add(query string, res *memResult) {
	if res.err == nil {
		res.failAt = -1
	}
	h.results[query] = res
}

func (h *memHandle) Prepare(query string) (Statement, error) {
	res, ok := h.results[query]
	if !ok {
		return nil, fmt.Errorf("no such table in %q", query)
	}
	h.prepared[query]++
	st := &memStatement{res: res, pos: -1, bound: make([]any, res.params)}
	h.open = append(h.open, st)
	return st, nil
}

func (h *memHandle) Close() error {
	h.closed = true
	return nil
}

func (h *memHandle) finalized() int {
	n := 0
	for _, st := range h.open {
		if st.finalized {
			n++
		}
	}
	return n
}

type memStatement struct {
	res       *memResult
	pos       int
	bound     []any
	resets    int
	finalized bool
	buf       []byte
}

var errFinalized = errors.New("statement finalized")

func (s *memStatement) ParamCount() int { return s.res.params }

func (s *memStatement) bind(i int, v any) error {
	if i < 1 || i > len(s.bound) {
		return fmt.Errorf("bind index %d out of range", i)
	}
	s.bound[i-1] = v
	return nil
}

func (s *memStatement) BindInt64(i int, v int64) error     { return s.bind(i, v) }
func (s *memStatement) BindFloat64(i int, v float64) error { return s.bind(i, v) }
func (s *memStatement) BindText(i int, v string) error     { return s.bind(i, v) }
func (s *memStatement) BindBlob(i int, v []byte) error     { return s.bind(i, v) }
func (s *memStatement) BindNull(i int) error               { return s.bind(i, nil) }

func (s *memStatement) ClearBindings() error {
	for i := range s.bound {
		s.bound[i] = nil
	}
	return nil
}

func (s *memStatement) Step() (bool, error) {
	if s.finalized {
		return false, errFinalized
	}
	s.pos++
	if s.pos == s.res.failAt {
		return false, s.res.err
	}
	return s.pos < len(s.res.rows), nil
}

func (s *memStatement) Reset() error {
	s.pos = -1
	s.resets++
	return nil
}

func (s *memStatement) Finalize() error {
	s.finalized = true
	return nil
}

func (s *memStatement) ColumnCount() int            { return len(s.res.names) }
func (s *memStatement) ColumnName(i int) string     { return s.res.names[i] }
func (s *memStatement) ColumnDeclType(i int) string { return s.res.decl[i] }

func (s *memStatement) current(i int) any {
	return s.res.rows[s.pos][i]
}

func (s *memStatement) ColumnType(i int) DataType {
	switch s.current(i).(type) {
	case nil:
		return Null
	case int64:
		return Integer
	case float64:
		return Float
	case string:
		return Text
	}
	return Blob
}

func (s *memStatement) ColumnInt64(i int) int64 {
	switch v := s.current(i).(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

func (s *memStatement) ColumnFloat64(i int) float64 {
	switch v := s.current(i).(type) {
	case int64:
		return float64(v)
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return 0
}

func (s *memStatement) ColumnBytes(i int) []byte {
	s.buf = s.buf[:0]
	switch v := s.current(i).(type) {
	case int64:
		s.buf = strconv.AppendInt(s.buf, v, 10)
	case float64:
		s.buf = strconv.AppendFloat(s.buf, v, 'g', -1, 64)
	case string:
		s.buf = append(s.buf, v...)
	case []byte:
		s.buf = append(s.buf, v...)
	}
	return s.buf
}
