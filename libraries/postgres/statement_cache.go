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

package postgres

import (
	"strconv"

	"github.com/dolthub/rowstream/libraries/rowval"
)

// StatementID identifies a prepared statement on one connection. Ids are
// never reused for the lifetime of a connection.
type StatementID uint32

// Name returns the server-side statement name.
func (id StatementID) Name() string {
	return "_rs_" + strconv.FormatUint(uint64(id), 10)
}

// StatementCache maps prepared statements to the result shape learned the
// first time they were described. It belongs to a single connection and is
// only touched by whoever holds that connection, so it is not synchronized.
type StatementCache struct {
	columns map[StatementID]*rowval.Columns
}

func newStatementCache() *StatementCache {
	return &StatementCache{columns: make(map[StatementID]*rowval.Columns)}
}

// Get returns the cached shape of |id|.
func (sc *StatementCache) Get(id StatementID) (*rowval.Columns, bool) {
	cols, ok := sc.columns[id]
	return cols, ok
}

// Has reports whether |id| has been described.
func (sc *StatementCache) Has(id StatementID) bool {
	_, ok := sc.columns[id]
	return ok
}

// Len returns the number of cached statements.
func (sc *StatementCache) Len() int {
	return len(sc.columns)
}

// insert caches the shape of |id|. An entry is written once; a second insert
// for the same id keeps the first shape so rows already handed out and rows
// yet to come agree.
func (sc *StatementCache) insert(id StatementID, cols *rowval.Columns) *rowval.Columns {
	if existing, ok := sc.columns[id]; ok {
		return existing
	}
	sc.columns[id] = cols
	return cols
}

// remove drops |id| once its server-side statement is closed.
func (sc *StatementCache) remove(id StatementID) {
	delete(sc.columns, id)
}
