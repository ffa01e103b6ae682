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

package mysql

import (
	"fmt"

	vtmysql "github.com/dolthub/vitess/go/mysql"
	"github.com/dolthub/vitess/go/sqltypes"
	query "github.com/dolthub/vitess/go/vt/proto/query"
)

const (
	nullValue         = 0xfb
	localInfilePacket = 0xfb
	// an EOF marker is never longer than this; longer packets starting with
	// 0xfe are rows
	maxEOFPacketLen = 9
)

type okResult struct {
	affectedRows uint64
	lastInsertID uint64
	status       uint16
	warnings     uint16
}

func (ok okResult) moreResults() bool {
	return ok.status&vtmysql.ServerMoreResultsExists != 0
}

// parseOK reads an OK packet, whose header is 0x00, or 0xfe when it stands
// in for EOF.
func parseOK(data []byte) (okResult, error) {
	r := &reader{data: data, pos: 1}
	var ok okResult
	var err error
	if ok.affectedRows, _, err = r.lenEncInt(); err != nil {
		return ok, err
	}
	if ok.lastInsertID, _, err = r.lenEncInt(); err != nil {
		return ok, err
	}
	if ok.status, err = r.uint16(); err != nil {
		return ok, err
	}
	if ok.warnings, err = r.uint16(); err != nil {
		return ok, err
	}
	return ok, nil
}

func parseEOF(data []byte) (okResult, error) {
	r := &reader{data: data, pos: 1}
	var ok okResult
	var err error
	if ok.warnings, err = r.uint16(); err != nil {
		return ok, err
	}
	if ok.status, err = r.uint16(); err != nil {
		return ok, err
	}
	return ok, nil
}

// parseErr turns an ERR packet into the server's error.
func parseErr(data []byte) error {
	r := &reader{data: data, pos: 1}
	code, err := r.uint16()
	if err != nil {
		return err
	}
	state := vtmysql.SSUnknownSQLState
	if r.remaining() >= 6 && r.data[r.pos] == '#' {
		b, _ := r.bytes(6)
		state = string(b[1:])
	}
	msg := string(r.data[r.pos:])
	return vtmysql.NewSQLError(int(code), state, "%s", msg)
}

// IsSQLError reports whether |err| came from the server rather than from the
// connection.
func IsSQLError(err error) bool {
	_, ok := err.(*vtmysql.SQLError)
	return ok
}

// parseColumnDefinition reads a Protocol::ColumnDefinition41 packet.
func parseColumnDefinition(data []byte) (*query.Field, error) {
	r := &reader{data: data}
	f := &query.Field{}
	var err error

	if _, err = r.lenEncString(); err != nil { // catalog
		return nil, err
	}
	if f.Database, err = r.lenEncString(); err != nil {
		return nil, err
	}
	if f.Table, err = r.lenEncString(); err != nil {
		return nil, err
	}
	if f.OrgTable, err = r.lenEncString(); err != nil {
		return nil, err
	}
	if f.Name, err = r.lenEncString(); err != nil {
		return nil, err
	}
	if f.OrgName, err = r.lenEncString(); err != nil {
		return nil, err
	}
	if _, _, err = r.lenEncInt(); err != nil { // length of fixed fields
		return nil, err
	}

	charset, err := r.uint16()
	if err != nil {
		return nil, err
	}
	f.Charset = uint32(charset)
	if f.ColumnLength, err = r.uint32(); err != nil {
		return nil, err
	}
	typ, err := r.uint8()
	if err != nil {
		return nil, err
	}
	flags, err := r.uint16()
	if err != nil {
		return nil, err
	}
	f.Flags = uint32(flags)
	decimals, err := r.uint8()
	if err != nil {
		return nil, err
	}
	f.Decimals = uint32(decimals)

	f.Type, err = sqltypes.MySQLToType(int64(typ), int64(flags))
	if err != nil {
		return nil, ErrMalformedPacket.New(fmt.Sprintf("column %s: %v", f.Name, err))
	}
	return f, nil
}
