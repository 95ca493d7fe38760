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

package packstream

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Token kinds reported by Unpacker.Next.
const (
	PackedUndef = iota // Not done or error
	PackedInt
	PackedFloat
	PackedStr
	PackedStruct
	PackedBytes
	PackedArray
	PackedMap
	PackedNil
	PackedTrue
	PackedFalse
)

// Unpacker is a pull parser over one complete message buffer. After
// Next, Curr describes the token and the typed accessors return its
// value. The first error latches in Err; parsing stops there.
type Unpacker struct {
	buf  []byte
	off  uint32
	len  uint32
	mrk  byte
	Curr int
	Err  error
}

// Reset makes the unpacker parse buf from the start.
func (u *Unpacker) Reset(buf []byte) {
	u.buf = buf
	u.off = 0
	u.len = uint32(len(buf))
	u.mrk = 0
	u.Curr = PackedUndef
	u.Err = nil
}

func (u *Unpacker) setErr(err error) {
	if u.Err == nil {
		u.Err = err
	}
}

// Next advances to the next token.
func (u *Unpacker) Next() {
	i := u.pop()
	if u.Err != nil {
		u.Curr = PackedUndef
		return
	}
	u.mrk = i
	switch {
	case i < 0x80: // Tiny positive int
		u.Curr = PackedInt
	case i < 0x90: // Tiny string
		u.Curr = PackedStr
	case i < 0xa0: // Tiny array
		u.Curr = PackedArray
	case i < 0xb0: // Tiny map
		u.Curr = PackedMap
	case i < 0xc0: // Struct
		u.Curr = PackedStruct
	case i == 0xc0:
		u.Curr = PackedNil
	case i == 0xc1:
		u.Curr = PackedFloat
	case i == 0xc2:
		u.Curr = PackedFalse
	case i == 0xc3:
		u.Curr = PackedTrue
	case i >= 0xc8 && i <= 0xcb:
		u.Curr = PackedInt
	case i >= 0xcc && i <= 0xce:
		u.Curr = PackedBytes
	case i >= 0xd0 && i <= 0xd2:
		u.Curr = PackedStr
	case i >= 0xd4 && i <= 0xd6:
		u.Curr = PackedArray
	case i >= 0xd8 && i <= 0xda:
		u.Curr = PackedMap
	case i >= 0xf0: // Tiny negative int
		u.Curr = PackedInt
	default:
		u.Curr = PackedUndef
		u.setErr(&UnpackError{Msg: fmt.Sprintf("unknown marker: %02x", i)})
	}
}

// Len returns the number of entries of the current string, bytes, array,
// map or struct token. Must be called before consuming the entries.
func (u *Unpacker) Len() uint32 {
	switch {
	case u.mrk >= 0x80 && u.mrk < 0xc0: // All tiny sized plus struct
		return uint32(u.mrk & 0x0f)
	case u.mrk == 0xcc || u.mrk == 0xd0 || u.mrk == 0xd4 || u.mrk == 0xd8:
		return uint32(u.pop())
	case u.mrk == 0xcd || u.mrk == 0xd1 || u.mrk == 0xd5 || u.mrk == 0xd9:
		return uint32(u.popUint16())
	case u.mrk == 0xce || u.mrk == 0xd2 || u.mrk == 0xd6 || u.mrk == 0xda:
		return u.popUint32()
	}
	u.setErr(&UnpackError{Msg: fmt.Sprintf("marker %02x has no length", u.mrk)})
	return 0
}

// Int returns the current integer token value.
func (u *Unpacker) Int() int64 {
	switch {
	case u.mrk < 0x80:
		return int64(u.mrk)
	case u.mrk >= 0xf0:
		return int64(u.mrk) - 0x100
	}
	switch u.mrk {
	case 0xc8:
		return int64(int8(u.pop()))
	case 0xc9:
		return int64(int16(u.popUint16()))
	case 0xca:
		return int64(int32(u.popUint32()))
	case 0xcb:
		return int64(u.popUint64())
	}
	u.setErr(&UnpackError{Msg: fmt.Sprintf("marker %02x is not an integer", u.mrk)})
	return 0
}

// Float returns the current float token value.
func (u *Unpacker) Float() float64 {
	if u.mrk != 0xc1 {
		u.setErr(&UnpackError{Msg: fmt.Sprintf("marker %02x is not a float", u.mrk)})
		return 0
	}
	return math.Float64frombits(u.popUint64())
}

// Bool returns the current boolean token value.
func (u *Unpacker) Bool() bool {
	switch u.mrk {
	case 0xc3:
		return true
	case 0xc2:
		return false
	}
	u.setErr(&UnpackError{Msg: fmt.Sprintf("marker %02x is not a boolean", u.mrk)})
	return false
}

// String returns the current string token value.
func (u *Unpacker) String() string {
	n := u.Len()
	return string(u.read(n))
}

// Bytes returns a copy of the current byte array token value.
func (u *Unpacker) Bytes() []byte {
	n := u.Len()
	raw := u.read(n)
	out := make([]byte, len(raw))
	copy(out, raw)
	return out
}

// StructTag returns the tag byte of the current struct token. The
// struct's field count is available through Len before this call.
func (u *Unpacker) StructTag() byte {
	return u.pop()
}

func (u *Unpacker) read(n uint32) []byte {
	start := u.off
	end := start + n
	if end > u.len || end < start {
		u.setErr(&UnpackError{Msg: "buffer ends in the middle of a value"})
		return nil
	}
	u.off = end
	return u.buf[start:end]
}

func (u *Unpacker) pop() byte {
	if u.off < u.len {
		x := u.buf[u.off]
		u.off++
		return x
	}
	u.setErr(&UnpackError{Msg: "unexpected end of buffer"})
	return 0
}

func (u *Unpacker) popUint16() uint16 {
	b := u.read(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (u *Unpacker) popUint32() uint32 {
	b := u.read(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (u *Unpacker) popUint64() uint64 {
	b := u.read(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
