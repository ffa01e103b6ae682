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
	"database/sql"
	"strconv"
)

// Row is the column access contract every backend row satisfies. V is the
// backend's raw value type: Value for the wire protocol backends, a
// statement-bound accessor for SQLite.
type Row[V any] interface {
	// Len returns the number of columns in the row.
	Len() int
	// GetRaw returns the raw value of the referenced column. A NULL column
	// is reported as present == false with a nil error.
	GetRaw(ref ColumnRef) (v V, present bool, err error)
}

// ColumnRef identifies a column by ordinal or by name.
type ColumnRef struct {
	name    string
	ordinal int
	byName  bool
}

func Ordinal(i int) ColumnRef {
	return ColumnRef{ordinal: i}
}

func Named(name string) ColumnRef {
	return ColumnRef{name: name, byName: true}
}

func (r ColumnRef) String() string {
	if r.byName {
		return strconv.Quote(r.name)
	}
	return strconv.Itoa(r.ordinal)
}

// Resolve maps the reference to an ordinal in a row of |n| columns shaped by
// |cols|.
func (r ColumnRef) Resolve(cols *Columns, n int) (int, error) {
	if r.byName {
		i, ok := cols.Index(r.name)
		if !ok {
			return 0, ErrColumnNotFound.New(r.name)
		}
		return i, nil
	}
	if r.ordinal < 0 || r.ordinal >= n {
		return 0, ErrColumnIndexOutOfRange.New(r.ordinal, n)
	}
	return r.ordinal, nil
}

// Get decodes the referenced column with |dec|. NULL is an error for a
// non-nullable target; use GetNullable when the column may be NULL.
func Get[T, V any, R Row[V]](row R, ref ColumnRef, dec func(V) (T, error)) (T, error) {
	var zero T
	v, ok, err := row.GetRaw(ref)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, ErrUnexpectedNull.New(ref.String())
	}
	return dec(v)
}

// GetNullable decodes the referenced column with |dec|, reporting NULL as an
// invalid sql.Null.
func GetNullable[T, V any, R Row[V]](row R, ref ColumnRef, dec func(V) (T, error)) (sql.Null[T], error) {
	v, ok, err := row.GetRaw(ref)
	if err != nil || !ok {
		return sql.Null[T]{}, err
	}
	t, err := dec(v)
	if err != nil {
		return sql.Null[T]{}, err
	}
	return sql.Null[T]{V: t, Valid: true}, nil
}

// Lease ties a row to the cursor step that produced it. Cursors bump their
// step counter whenever the connection buffer may be reused, which expires
// every lease handed out before.
type Lease struct {
	step *uint64
	at   uint64
}

func NewLease(step *uint64) Lease {
	return Lease{step: step, at: *step}
}

// Check fails with ErrRowReleased once the lease has expired.
func (l Lease) Check() error {
	if l.step == nil || *l.step != l.at {
		return ErrRowReleased.New()
	}
	return nil
}
