/*
 * Copyright (c) "Neo4j"
 * Neo4j Sweden AB [https://neo4j.com]
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package packstream implements the serialization format used by the
// Bolt protocol: one-byte markers, big-endian sizes and tagged structs.
// The codec is value-agnostic; knowledge of graph, temporal and spatial
// structs belongs to the caller.
package packstream

import (
	"encoding/binary"
	"math"
)

// Packer appends packstream values to a byte buffer. The first error
// latches and End reports it; later calls keep appending, so the buffer
// is not usable once End returns an error. Begin clears the error.
type Packer struct {
	buf []byte
	err error
}

// Begin starts packing into buf, which may be a recycled buffer with
// its length reset by the caller.
func (p *Packer) Begin(buf []byte) {
	p.buf = buf
	p.err = nil
}

// End returns the packed buffer and the first error encountered.
func (p *Packer) End() ([]byte, error) {
	return p.buf, p.err
}

func (p *Packer) setErr(err error) {
	if p.err == nil {
		p.err = err
	}
}

// StructHeader appends a struct marker. The caller packs exactly num
// fields afterwards; packstream structs cannot exceed 15 fields.
func (p *Packer) StructHeader(tag byte, num int) {
	if num > 0x0f {
		p.setErr(&OverflowError{Msg: "struct has too many fields"})
		return
	}
	p.buf = append(p.buf, 0xb0+byte(num), tag)
}

func (p *Packer) Nil() {
	p.buf = append(p.buf, 0xc0)
}

func (p *Packer) Bool(b bool) {
	if b {
		p.buf = append(p.buf, 0xc3)
		return
	}
	p.buf = append(p.buf, 0xc2)
}

func (p *Packer) Int64(i int64) {
	switch {
	case int64(-0x10) <= i && i < int64(0x80):
		p.buf = append(p.buf, byte(i))
	case int64(-0x80) <= i && i < int64(-0x10):
		p.buf = append(p.buf, 0xc8, byte(i))
	case int64(-0x8000) <= i && i < int64(0x8000):
		p.buf = append(p.buf, 0xc9, byte(i>>8), byte(i))
	case int64(-0x80000000) <= i && i < int64(0x80000000):
		p.buf = append(p.buf, 0xca, byte(i>>24), byte(i>>16), byte(i>>8), byte(i))
	default:
		p.buf = append(p.buf, 0xcb,
			byte(i>>56), byte(i>>48), byte(i>>40), byte(i>>32),
			byte(i>>24), byte(i>>16), byte(i>>8), byte(i))
	}
}

func (p *Packer) Int(i int) {
	p.Int64(int64(i))
}

func (p *Packer) Uint64(i uint64) {
	if i > math.MaxInt64 {
		p.setErr(&OverflowError{Msg: "uint64 does not fit in the signed 64-bit integer packstream offers"})
		return
	}
	p.Int64(int64(i))
}

func (p *Packer) Float64(f float64) {
	p.buf = append(p.buf, 0xc1)
	p.buf = binary.BigEndian.AppendUint64(p.buf, math.Float64bits(f))
}

func (p *Packer) String(s string) {
	p.sizedHeader(len(s), 0x80, 0xd0, "string")
	p.buf = append(p.buf, s...)
}

func (p *Packer) Bytes(b []byte) {
	l := len(b)
	switch {
	case l < 0x100:
		p.buf = append(p.buf, 0xcc, byte(l))
	case l < 0x10000:
		p.buf = append(p.buf, 0xcd, byte(l>>8), byte(l))
	case int64(l) < 0x100000000:
		p.buf = append(p.buf, 0xce, byte(l>>24), byte(l>>16), byte(l>>8), byte(l))
	default:
		p.setErr(&OverflowError{Msg: "byte array too long to pack"})
		return
	}
	p.buf = append(p.buf, b...)
}

// ListHeader appends a list marker. The caller packs exactly num values
// afterwards.
func (p *Packer) ListHeader(num int) {
	p.sizedHeader(num, 0x90, 0xd4, "list")
}

// MapHeader appends a map marker. The caller packs exactly num
// string-key/value pairs afterwards.
func (p *Packer) MapHeader(num int) {
	p.sizedHeader(num, 0xa0, 0xd8, "map")
}

// Strings packs a full list of strings.
func (p *Packer) Strings(ss []string) {
	p.ListHeader(len(ss))
	for _, s := range ss {
		p.String(s)
	}
}

// StringMap packs a full map with string values.
func (p *Packer) StringMap(m map[string]string) {
	p.MapHeader(len(m))
	for k, v := range m {
		p.String(k)
		p.String(v)
	}
}

func (p *Packer) sizedHeader(size int, tiny, long byte, what string) {
	switch {
	case size < 0x10:
		p.buf = append(p.buf, tiny+byte(size))
	case size < 0x100:
		p.buf = append(p.buf, long, byte(size))
	case size < 0x10000:
		p.buf = append(p.buf, long+1, byte(size>>8), byte(size))
	case int64(size) < 0x100000000:
		p.buf = append(p.buf, long+2, byte(size>>24), byte(size>>16), byte(size>>8), byte(size))
	default:
		p.setErr(&OverflowError{Msg: what + " too long to pack"})
	}
}
