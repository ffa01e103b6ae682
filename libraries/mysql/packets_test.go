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
	"context"
	"encoding/binary"
	"io"

	vtmysql "github.com/dolthub/vitess/go/mysql"
)

// scriptedPackets replays canned server packets and records the commands
// the client sends.
type scriptedPackets struct {
	in   [][]byte
	sent [][]byte
}

func (p *scriptedPackets) ReadPacket(ctx context.Context) ([]byte, error) {
	if len(p.in) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	data := p.in[0]
	p.in = p.in[1:]
	return data, nil
}

func (p *scriptedPackets) WriteCommand(ctx context.Context, payload []byte) error {
	p.sent = append(p.sent, append([]byte{}, payload...))
	return nil
}

func (p *scriptedPackets) reply(packets ...[]byte) {
	p.in = append(p.in, packets...)
}

// commands returns the command bytes sent since the last call.
func (p *scriptedPackets) commands() []byte {
	var out []byte
	for _, c := range p.sent {
		out = append(out, c[0])
	}
	p.sent = nil
	return out
}

const (
	statusAutocommit   = 0x0002
	binaryCharset      = 63
	utf8mb4Charset     = 255
	binaryColumnFlag   = 0x0080
	unsignedColumnFlag = 0x0020
)

func appendColumnDefinition(buf []byte, name string, mysqlType byte, flags uint16) []byte {
	charset := uint16(utf8mb4Charset)
	if flags&binaryColumnFlag != 0 || mysqlType == vtmysql.TypeLongLong {
		charset = binaryCharset
	}
	buf = appendLenEncBytes(buf, []byte("def"))
	buf = appendLenEncBytes(buf, []byte("db"))
	buf = appendLenEncBytes(buf, []byte("t"))
	buf = appendLenEncBytes(buf, []byte("t"))
	buf = appendLenEncBytes(buf, []byte(name))
	buf = appendLenEncBytes(buf, []byte(name))
	buf = append(buf, 0x0c)
	buf = binary.LittleEndian.AppendUint16(buf, charset)
	buf = binary.LittleEndian.AppendUint32(buf, 20)
	buf = append(buf, mysqlType)
	buf = binary.LittleEndian.AppendUint16(buf, flags)
	buf = append(buf, 0, 0, 0)
	return buf
}

func columnDef(name string, mysqlType byte) []byte {
	return appendColumnDefinition(nil, name, mysqlType, 0)
}

func resultHeader(n int) []byte {
	return appendLenEncInt(nil, uint64(n))
}

func eofPacket(status uint16) []byte {
	return binary.LittleEndian.AppendUint16([]byte{vtmysql.EOFPacket, 0, 0}, status)
}

func okPacket(header byte, status uint16) []byte {
	buf := binary.LittleEndian.AppendUint16([]byte{header, 0, 0}, status)
	return append(buf, 0, 0)
}

func errPacket(code uint16, state, msg string) []byte {
	buf := binary.LittleEndian.AppendUint16([]byte{vtmysql.ErrPacket}, code)
	buf = append(buf, '#')
	buf = append(buf, state...)
	return append(buf, msg...)
}

// textRow encodes a text protocol row; nil values are NULL.
func textRow(values ...[]byte) []byte {
	var buf []byte
	for _, v := range values {
		if v == nil {
			buf = append(buf, nullValue)
			continue
		}
		buf = appendLenEncBytes(buf, v)
	}
	return buf
}

// binaryRow encodes a binary protocol row from already encoded values; nil
// values are NULL.
func binaryRow(values ...[]byte) []byte {
	bitmap := make([]byte, (len(values)+7+2)/8)
	var body []byte
	for i, v := range values {
		if v == nil {
			bit := i + 2
			bitmap[bit/8] |= 1 << (bit % 8)
			continue
		}
		body = append(body, v...)
	}
	buf := append([]byte{0x00}, bitmap...)
	return append(buf, body...)
}

func prepareOK(id uint32, columns, params uint16) []byte {
	buf := binary.LittleEndian.AppendUint32([]byte{vtmysql.OKPacket}, id)
	buf = binary.LittleEndian.AppendUint16(buf, columns)
	buf = binary.LittleEndian.AppendUint16(buf, params)
	return append(buf, 0, 0, 0)
}

func int64Bytes(v int64) []byte {
	return binary.LittleEndian.AppendUint64(nil, uint64(v))
}
