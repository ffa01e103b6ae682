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
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"gopkg.in/src-d/go-errors.v1"
)

var ErrMalformedPacket = errors.NewKind("malformed packet: %s")

const maxPacketSize = 1<<24 - 1

// PacketConn moves whole MySQL packets. Payloads larger than one wire packet
// are joined on read and split on write.
type PacketConn interface {
	// ReadPacket returns the next payload. It is only valid until the next
	// call.
	ReadPacket(ctx context.Context) ([]byte, error)
	// WriteCommand sends |payload| as the first packet of a new command.
	WriteCommand(ctx context.Context, payload []byte) error
}

type deadliner interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

type framedConn struct {
	rw  io.ReadWriter
	r   *bufio.Reader
	seq uint8
	buf []byte
	out []byte
}

// NewPacketConn frames packets over |rw|, usually a net.Conn that already
// completed the handshake.
func NewPacketConn(rw io.ReadWriter) PacketConn {
	return &framedConn{rw: rw, r: bufio.NewReader(rw)}
}

func (f *framedConn) Close() error {
	if c, ok := f.rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (f *framedConn) ReadPacket(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d, ok := f.rw.(deadliner); ok {
		deadline, _ := ctx.Deadline()
		if err := d.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
	}

	f.buf = f.buf[:0]
	var hdr [4]byte
	for {
		if _, err := io.ReadFull(f.r, hdr[:]); err != nil {
			return nil, err
		}
		n := int(uint32(hdr[0]) | uint32(hdr[1])<<8 | uint32(hdr[2])<<16)
		if hdr[3] != f.seq {
			return nil, ErrMalformedPacket.New(fmt.Sprintf("sequence %d, expected %d", hdr[3], f.seq))
		}
		f.seq++

		start := len(f.buf)
		f.buf = append(f.buf, make([]byte, n)...)
		if _, err := io.ReadFull(f.r, f.buf[start:]); err != nil {
			return nil, err
		}
		if n < maxPacketSize {
			return f.buf, nil
		}
	}
}

func (f *framedConn) WriteCommand(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d, ok := f.rw.(deadliner); ok {
		deadline, _ := ctx.Deadline()
		if err := d.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}

	f.seq = 0
	f.out = f.out[:0]
	for {
		n := len(payload)
		if n > maxPacketSize {
			n = maxPacketSize
		}
		f.out = append(f.out, byte(n), byte(n>>8), byte(n>>16), f.seq)
		f.out = append(f.out, payload[:n]...)
		f.seq++
		payload = payload[n:]
		// a payload that fills its last packet exactly is followed by an
		// empty one
		if n < maxPacketSize {
			break
		}
	}
	_, err := f.rw.Write(f.out)
	return err
}

// reader walks the fields of one packet payload.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) remaining() int {
	return len(r.data) - r.pos
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, ErrMalformedPacket.New(fmt.Sprintf("need %d bytes at offset %d, have %d", n, r.pos, r.remaining()))
	}
	b := r.data[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) uint8() (uint8, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) uint16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// lenEncInt reads a length-encoded integer. |null| is set for the 0xfb
// marker used by text rows.
func (r *reader) lenEncInt() (v uint64, null bool, err error) {
	first, err := r.uint8()
	if err != nil {
		return 0, false, err
	}
	switch first {
	case nullValue:
		return 0, true, nil
	case 0xfc:
		b, err := r.bytes(2)
		if err != nil {
			return 0, false, err
		}
		return uint64(binary.LittleEndian.Uint16(b)), false, nil
	case 0xfd:
		b, err := r.bytes(3)
		if err != nil {
			return 0, false, err
		}
		return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16, false, nil
	case 0xfe:
		b, err := r.bytes(8)
		if err != nil {
			return 0, false, err
		}
		return binary.LittleEndian.Uint64(b), false, nil
	case 0xff:
		return 0, false, ErrMalformedPacket.New("invalid length-encoded integer prefix 0xff")
	}
	return uint64(first), false, nil
}

func (r *reader) lenEncBytes() ([]byte, bool, error) {
	n, null, err := r.lenEncInt()
	if err != nil || null {
		return nil, null, err
	}
	if n > uint64(r.remaining()) {
		return nil, false, ErrMalformedPacket.New(fmt.Sprintf("length-encoded string of %d bytes, have %d", n, r.remaining()))
	}
	b, err := r.bytes(int(n))
	return b, false, err
}

func (r *reader) lenEncString() (string, error) {
	b, _, err := r.lenEncBytes()
	return string(b), err
}

func appendLenEncInt(buf []byte, v uint64) []byte {
	switch {
	case v < 0xfb:
		return append(buf, byte(v))
	case v < 1<<16:
		return append(buf, 0xfc, byte(v), byte(v>>8))
	case v < 1<<24:
		return append(buf, 0xfd, byte(v), byte(v>>8), byte(v>>16))
	}
	buf = append(buf, 0xfe)
	return binary.LittleEndian.AppendUint64(buf, v)
}

func appendLenEncBytes(buf []byte, b []byte) []byte {
	buf = appendLenEncInt(buf, uint64(len(b)))
	return append(buf, b...)
}
