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
	"io"
	"net"
	"testing"

	"github.com/neo4j-drivers/neobolt/neobolt/internal/packstream"
	"github.com/stretchr/testify/require"
)

// testServer scripts the server side of a Bolt exchange over a
// loopback socket (see socketPipe).
type testServer struct {
	t    *testing.T
	conn net.Conn
	unp  packstream.Unpacker
	msg  []byte
}

func newTestServer(t *testing.T, conn net.Conn) *testServer {
	return &testServer{t: t, conn: conn}
}

// acceptVersion reads the client handshake and answers with one fixed
// version.
func (s *testServer) acceptVersion(major, minor byte) {
	buf := make([]byte, 20)
	if _, err := io.ReadFull(s.conn, buf); err != nil {
		s.t.Errorf("server: reading handshake: %v", err)
		return
	}
	if _, err := s.conn.Write([]byte{0x00, 0x00, minor, major}); err != nil {
		s.t.Errorf("server: writing version: %v", err)
	}
}

// waitForMessage dechunks one client message and returns its tag and
// generically decoded fields.
func (s *testServer) waitForMessage() (byte, []any) {
	msg, err := dechunkMessage(s.conn, s.msg)
	if err != nil {
		s.t.Errorf("server: reading message: %v", err)
		return 0, nil
	}
	s.msg = msg
	s.unp.Reset(msg)
	s.unp.Next()
	if s.unp.Curr != packstream.PackedStruct {
		s.t.Errorf("server: expected struct message")
		return 0, nil
	}
	n := s.unp.Len()
	tag := s.unp.StructTag()
	fields := make([]any, n)
	for i := range fields {
		fields[i] = s.readAny()
	}
	if s.unp.Err != nil {
		s.t.Errorf("server: decoding message: %v", s.unp.Err)
	}
	return tag, fields
}

func (s *testServer) expectMessage(tag byte) []any {
	gotTag, fields := s.waitForMessage()
	if gotTag != tag {
		s.t.Errorf("server: expected message %02x, got %02x", tag, gotTag)
	}
	return fields
}

func (s *testServer) readAny() any {
	u := &s.unp
	u.Next()
	switch u.Curr {
	case packstream.PackedNil:
		return nil
	case packstream.PackedTrue:
		return true
	case packstream.PackedFalse:
		return false
	case packstream.PackedInt:
		return u.Int()
	case packstream.PackedFloat:
		return u.Float()
	case packstream.PackedStr:
		return u.String()
	case packstream.PackedBytes:
		return u.Bytes()
	case packstream.PackedArray:
		n := u.Len()
		arr := make([]any, n)
		for i := range arr {
			arr[i] = s.readAny()
		}
		return arr
	case packstream.PackedMap:
		n := u.Len()
		m := make(map[string]any, n)
		for i := uint32(0); i < n; i++ {
			u.Next()
			key := u.String()
			m[key] = s.readAny()
		}
		return m
	case packstream.PackedStruct:
		n := u.Len()
		tag := u.StructTag()
		fields := make([]any, n)
		for i := range fields {
			fields[i] = s.readAny()
		}
		return packstream.Struct{Tag: tag, Fields: fields}
	}
	s.t.Errorf("server: unexpected token %d", u.Curr)
	return nil
}

func (s *testServer) sendMessage(tag byte, fields ...any) {
	p := &packstream.Packer{}
	p.Begin(nil)
	p.StructHeader(tag, len(fields))
	for _, f := range fields {
		s.packAny(p, f)
	}
	buf, err := p.End()
	if err != nil {
		s.t.Errorf("server: packing response: %v", err)
		return
	}
	c := &chunker{}
	c.addMessage(buf)
	if _, err := s.conn.Write(c.pending()); err != nil {
		s.t.Errorf("server: writing response: %v", err)
	}
}

func (s *testServer) packAny(p *packstream.Packer, x any) {
	switch v := x.(type) {
	case nil:
		p.Nil()
	case bool:
		p.Bool(v)
	case int:
		p.Int(v)
	case int64:
		p.Int64(v)
	case float64:
		p.Float64(v)
	case string:
		p.String(v)
	case []string:
		p.Strings(v)
	case []any:
		p.ListHeader(len(v))
		for _, e := range v {
			s.packAny(p, e)
		}
	case map[string]any:
		p.MapHeader(len(v))
		for k, e := range v {
			p.String(k)
			s.packAny(p, e)
		}
	default:
		s.t.Errorf("server: cannot pack %T", x)
	}
}

func (s *testServer) sendSuccess(meta map[string]any) {
	s.sendMessage(msgSuccess, meta)
}

func (s *testServer) sendRecord(values ...any) {
	s.sendMessage(msgRecord, values)
}

func (s *testServer) sendFailure(code, message string) {
	s.sendMessage(msgFailure, map[string]any{"code": code, "message": message})
}

func (s *testServer) sendIgnored() {
	s.sendMessage(msgIgnored, map[string]any{})
}

// acceptHello serves the authentication exchange of a 5.1+ connection.
func (s *testServer) acceptHello(helloMeta map[string]any) {
	s.expectMessage(msgHello)
	s.sendSuccess(helloMeta)
	s.expectMessage(msgLogon)
	s.sendSuccess(map[string]any{})
}

func defaultHelloMeta() map[string]any {
	return map[string]any{
		"server":        "Neo4j/5.23.0",
		"connection_id": "bolt-1",
	}
}

func requireMapField(t *testing.T, fields []any, index int) map[string]any {
	t.Helper()
	require.Greater(t, len(fields), index)
	m, ok := fields[index].(map[string]any)
	require.True(t, ok, "field %d is not a map", index)
	return m
}
