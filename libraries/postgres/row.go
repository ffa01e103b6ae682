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
	"github.com/dolthub/rowstream/libraries/rowval"
)

// Row is one DataRow. Its values point into the connection's receive buffer
// and are released when the cursor that returned it advances or closes.
type Row struct {
	lease  rowval.Lease
	cols   *rowval.Columns
	values [][]byte
}

var _ rowval.Row[rowval.Value] = (*Row)(nil)

func (r *Row) Len() int {
	return len(r.values)
}

func (r *Row) Columns() *rowval.Columns {
	return r.cols
}

// GetRaw returns the value at |ref| in the format the column was sent in.
// A SQL NULL is reported with present set to false.
func (r *Row) GetRaw(ref rowval.ColumnRef) (rowval.Value, bool, error) {
	if err := r.lease.Check(); err != nil {
		return rowval.Value{}, false, err
	}
	i, err := ref.Resolve(r.cols, len(r.values))
	if err != nil {
		return rowval.Value{}, false, err
	}
	raw := r.values[i]
	if raw == nil {
		return rowval.Value{}, false, nil
	}
	if r.cols.Format(i) == rowval.BinaryFormat {
		return rowval.BinaryValue(raw), true, nil
	}
	return rowval.TextValue(raw), true, nil
}
