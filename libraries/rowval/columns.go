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

// Format is the wire encoding of a single column. The numeric values match
// the Postgres format codes.
type Format int16

const (
	TextFormat   Format = 0
	BinaryFormat Format = 1
)

func (f Format) String() string {
	if f == BinaryFormat {
		return "binary"
	}
	return "text"
}

// Columns describes the shape of a result set: a name to ordinal mapping
// and the wire format of every column, in ordinal order. A *Columns is shared
// by every row a cursor produces and must not be modified once built. Code
// that learns a new shape builds a new Columns and swaps the pointer.
type Columns struct {
	names   map[string]int
	formats []Format
}

var emptyColumns = &Columns{names: map[string]int{}}

// EmptyColumns returns the shape of a statement that produces no columns.
func EmptyColumns() *Columns {
	return emptyColumns
}

// Len returns the number of columns, named or not.
func (c *Columns) Len() int {
	return len(c.formats)
}

// Index returns the ordinal of the column called |name|.
func (c *Columns) Index(name string) (int, bool) {
	i, ok := c.names[name]
	return i, ok
}

// Format returns the wire format of column |i|. Ordinals past the described
// columns are reported as text, which is what a backend sends when it was
// not asked for anything else.
func (c *Columns) Format(i int) Format {
	if i < 0 || i >= len(c.formats) {
		return TextFormat
	}
	return c.formats[i]
}

// Names returns the number of columns reachable by name.
func (c *Columns) Names() int {
	return len(c.names)
}

// ColumnsBuilder accumulates column descriptions in ordinal order.
type ColumnsBuilder struct {
	names   map[string]int
	formats []Format
}

func NewColumnsBuilder(capacity int) *ColumnsBuilder {
	return &ColumnsBuilder{
		names:   make(map[string]int, capacity),
		formats: make([]Format, 0, capacity),
	}
}

// Add appends the next column. Unnamed columns still occupy an ordinal but
// cannot be looked up by name. A repeated name resolves to its last ordinal.
func (b *ColumnsBuilder) Add(name string, format Format) *ColumnsBuilder {
	if name != "" {
		b.names[name] = len(b.formats)
	}
	b.formats = append(b.formats, format)
	return b
}

// Build publishes the accumulated columns. The builder must not be used
// afterwards.
func (b *ColumnsBuilder) Build() *Columns {
	if len(b.formats) == 0 {
		return emptyColumns
	}
	cols := &Columns{names: b.names, formats: b.formats}
	b.names, b.formats = nil, nil
	return cols
}
