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
	"context"

	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/lib/pq/oid"

	"github.com/dolthub/rowstream/libraries/postgres/pgtypes"
	"github.com/dolthub/rowstream/libraries/rowval"
)

// Arguments are the bind parameters of a prepared query. All parameters are
// sent in binary format.
type Arguments struct {
	oids    []uint32
	formats []int16
	values  [][]byte
}

func NewArguments(vals ...pgtypes.Encodable) *Arguments {
	a := &Arguments{}
	for _, v := range vals {
		a.Add(v)
	}
	return a
}

func (a *Arguments) Add(v pgtypes.Encodable) *Arguments {
	if pgtypes.IsNull(v) {
		return a.AddNull(v.TypeOID())
	}
	a.oids = append(a.oids, uint32(v.TypeOID()))
	a.formats = append(a.formats, int16(rowval.BinaryFormat))
	a.values = append(a.values, v.EncodeBinary([]byte{}))
	return a
}

func (a *Arguments) AddNull(t oid.Oid) *Arguments {
	a.oids = append(a.oids, uint32(t))
	a.formats = append(a.formats, int16(rowval.BinaryFormat))
	a.values = append(a.values, nil)
	return a
}

func (a *Arguments) Len() int {
	return len(a.values)
}

// Run sends |query| to the server. Without arguments it goes out as a simple
// query and results arrive in text format. With arguments, possibly none, it
// is prepared, reusing this connection's statement for the same query text
// if there is one, and results arrive in binary format. The result shape is
// only requested when the statement cache does not already know it.
//
// Run first waits out any response still in flight from an earlier query.
func (c *Conn) Run(ctx context.Context, query string, args *Arguments) (StatementID, bool, error) {
	if err := c.waitUntilReady(ctx); err != nil {
		return 0, false, err
	}
	c.runSeq++

	if args == nil {
		c.log.WithField("query", query).Trace("running simple query")
		c.fe.Send(&pgproto3.Query{String: query})
		c.pending++
		return 0, false, c.flush()
	}

	for _, id := range c.closing {
		c.fe.Send(&pgproto3.Close{ObjectType: 'S', Name: id.Name()})
	}
	c.closing = c.closing[:0]

	id, ok := c.queries.Get(query)
	if !ok {
		c.nextID++
		id = c.nextID
		c.log.WithField("statement", id.Name()).Trace("preparing statement")
		c.fe.Send(&pgproto3.Parse{Name: id.Name(), Query: query, ParameterOIDs: args.oids})
		c.queries.Add(query, id)
		c.parsing = query
	}

	c.fe.Send(&pgproto3.Bind{
		PreparedStatement:    id.Name(),
		ParameterFormatCodes: args.formats,
		Parameters:           args.values,
		ResultFormatCodes:    []int16{int16(rowval.BinaryFormat)},
	})
	if !c.statements.Has(id) {
		c.fe.Send(&pgproto3.Describe{ObjectType: 'P'})
	}
	c.fe.Send(&pgproto3.Execute{})
	c.fe.Send(&pgproto3.Sync{})
	c.pending++
	return id, true, c.flush()
}
