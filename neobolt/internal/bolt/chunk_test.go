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

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkerSplitsLargeMessages(t *testing.T) {
	msg := make([]byte, maxChunkSize+100)
	for i := range msg {
		msg[i] = byte(i)
	}
	c := &chunker{}
	c.addMessage(msg)
	wire := c.pending()

	// First chunk: max size
	require.Equal(t, byte(0xff), wire[0])
	require.Equal(t, byte(0xff), wire[1])
	// Second chunk: the remaining 100 bytes
	secondHdr := 2 + maxChunkSize
	require.Equal(t, byte(0x00), wire[secondHdr])
	require.Equal(t, byte(100), wire[secondHdr+1])
	// Terminator
	require.Equal(t, []byte{0x00, 0x00}, wire[len(wire)-2:])
}

func TestChunkDechunkRoundTrip(t *testing.T) {
	messages := [][]byte{
		{0x01},
		make([]byte, maxChunkSize),
		make([]byte, maxChunkSize+1),
		make([]byte, 3*maxChunkSize+7),
		{0xca, 0xfe},
	}
	for i := range messages[3] {
		messages[3][i] = byte(i * 7)
	}

	c := &chunker{}
	for _, msg := range messages {
		c.addMessage(msg)
	}
	rd := bytes.NewReader(c.pending())

	var buf []byte
	for _, want := range messages {
		got, err := dechunkMessage(rd, buf)
		require.NoError(t, err)
		require.Equal(t, want, got)
		buf = got
	}
}

func TestDechunkSkipsKeepAlive(t *testing.T) {
	// Two keep-alive chunks, then a one-chunk message
	wire := []byte{
		0x00, 0x00,
		0x00, 0x00,
		0x00, 0x03, 0x0a, 0x0b, 0x0c,
		0x00, 0x00,
	}
	got, err := dechunkMessage(bytes.NewReader(wire), nil)
	require.NoError(t, err)
	require.Equal(t, []byte{0x0a, 0x0b, 0x0c}, got)
}

func TestChunkerReset(t *testing.T) {
	c := &chunker{}
	c.addMessage([]byte{0x01, 0x02})
	c.reset()
	require.Empty(t, c.pending())
}
