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
	"encoding/binary"
	"io"
)

// dechunkMessage reads chunks off rd until the zero length terminator
// and returns the reassembled message. The previous message buffer is
// recycled when it has capacity.
func dechunkMessage(rd io.Reader, msgBuf []byte) ([]byte, error) {
	sizeBuf := []byte{0x00, 0x00}
	off := 0
	msgBuf = msgBuf[:0]

	for {
		if _, err := io.ReadFull(rd, sizeBuf); err != nil {
			return nil, err
		}
		chunkSize := int(binary.BigEndian.Uint16(sizeBuf))
		if chunkSize == 0 {
			if off > 0 {
				return msgBuf[:off], nil
			}
			// Zero sized chunk with no message bytes is a keep-alive,
			// wait for the real message.
			continue
		}
		for cap(msgBuf) < off+chunkSize {
			msgBuf = append(msgBuf[:cap(msgBuf)], 0)
		}
		msgBuf = msgBuf[:off+chunkSize]
		if _, err := io.ReadFull(rd, msgBuf[off:]); err != nil {
			return nil, err
		}
		off += chunkSize
	}
}
