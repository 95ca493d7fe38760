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

package bolt

// Every Bolt message travels as a sequence of chunks: a 16-bit big
// endian length followed by that many bytes, terminated by a zero
// length chunk. The chunker accumulates the wire image of any number of
// messages, flushed in one write at message pipeline boundaries.

const maxChunkSize = 0xffff

type chunker struct {
	buf []byte
}

// addMessage appends one packed message, split into as many chunks as
// its size requires.
func (c *chunker) addMessage(msg []byte) {
	for len(msg) > 0 {
		n := len(msg)
		if n > maxChunkSize {
			n = maxChunkSize
		}
		c.buf = append(c.buf, byte(n>>8), byte(n))
		c.buf = append(c.buf, msg[:n]...)
		msg = msg[n:]
	}
	// End of message
	c.buf = append(c.buf, 0x00, 0x00)
}

func (c *chunker) pending() []byte {
	return c.buf
}

// reset discards all accumulated chunks, preserving capacity.
func (c *chunker) reset() {
	c.buf = c.buf[:0]
}
