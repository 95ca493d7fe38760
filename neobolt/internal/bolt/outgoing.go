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
	"context"
	"fmt"
	"net"
	"reflect"
	"time"

	"github.com/neo4j-drivers/neobolt/neobolt/db"
	idb "github.com/neo4j-drivers/neobolt/neobolt/internal/db"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/packstream"
)

// outgoing packs request messages and keeps their chunked wire image
// until the pipeline is flushed with send.
type outgoing struct {
	chunker    chunker
	packer     packstream.Packer
	msgBuf     []byte
	onPackErr  func(error)
	onIoErr    func(context.Context, error)
	boltLogger idb.BoltLogger
	logId      string
	useUtc     bool // Bolt >= 5.0 encodes zoned datetimes relative to UTC
	elementIds bool // Bolt >= 5.0 carries element ids on graph entities
}

func (o *outgoing) begin() {
	o.packer.Begin(o.msgBuf[:0])
}

func (o *outgoing) end() {
	buf, err := o.packer.End()
	o.msgBuf = buf[:0]
	if err != nil {
		o.onPackErr(err)
		return
	}
	o.chunker.addMessage(buf)
}

func (o *outgoing) appendHello(hello map[string]any) {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "HELLO %s", loggableDehydrated(hello))
	}
	o.begin()
	o.packer.StructHeader(msgHello, 1)
	o.packMap(hello)
	o.end()
}

func (o *outgoing) appendLogon(token map[string]any) {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "LOGON %s", loggableDehydrated(token))
	}
	o.begin()
	o.packer.StructHeader(msgLogon, 1)
	o.packMap(token)
	o.end()
}

func (o *outgoing) appendLogoff() {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "LOGOFF")
	}
	o.begin()
	o.packer.StructHeader(msgLogoff, 0)
	o.end()
}

func (o *outgoing) appendBegin(meta map[string]any) {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "BEGIN %s", loggableMap(meta))
	}
	o.begin()
	o.packer.StructHeader(msgBegin, 1)
	o.packMap(meta)
	o.end()
}

func (o *outgoing) appendCommit() {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "COMMIT")
	}
	o.begin()
	o.packer.StructHeader(msgCommit, 0)
	o.end()
}

func (o *outgoing) appendRollback() {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "ROLLBACK")
	}
	o.begin()
	o.packer.StructHeader(msgRollback, 0)
	o.end()
}

func (o *outgoing) appendRun(cypher string, params, meta map[string]any) {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "RUN %q %s %s", cypher, loggableMap(params), loggableMap(meta))
	}
	o.begin()
	o.packer.StructHeader(msgRun, 3)
	o.packer.String(cypher)
	o.packMap(params)
	o.packMap(meta)
	o.end()
}

func (o *outgoing) appendPullN(n int) {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "PULL {\"n\": %d}", n)
	}
	o.begin()
	o.packer.StructHeader(msgPull, 1)
	o.packer.MapHeader(1)
	o.packer.String("n")
	o.packer.Int(n)
	o.end()
}

func (o *outgoing) appendPullNQid(n int, qid int64) {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "PULL {\"n\": %d, \"qid\": %d}", n, qid)
	}
	o.begin()
	o.packer.StructHeader(msgPull, 1)
	o.packer.MapHeader(2)
	o.packer.String("n")
	o.packer.Int(n)
	o.packer.String("qid")
	o.packer.Int64(qid)
	o.end()
}

func (o *outgoing) appendDiscardN(n int) {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "DISCARD {\"n\": %d}", n)
	}
	o.begin()
	o.packer.StructHeader(msgDiscard, 1)
	o.packer.MapHeader(1)
	o.packer.String("n")
	o.packer.Int(n)
	o.end()
}

func (o *outgoing) appendDiscardNQid(n int, qid int64) {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "DISCARD {\"n\": %d, \"qid\": %d}", n, qid)
	}
	o.begin()
	o.packer.StructHeader(msgDiscard, 1)
	o.packer.MapHeader(2)
	o.packer.String("n")
	o.packer.Int(n)
	o.packer.String("qid")
	o.packer.Int64(qid)
	o.end()
}

func (o *outgoing) appendReset() {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "RESET")
	}
	o.begin()
	o.packer.StructHeader(msgReset, 0)
	o.end()
}

func (o *outgoing) appendGoodbye() {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "GOODBYE")
	}
	o.begin()
	o.packer.StructHeader(msgGoodbye, 0)
	o.end()
}

func (o *outgoing) appendRoute(context map[string]string, bookmarks []string, extras map[string]any) {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "ROUTE %s %s %s", loggableStringMap(context), bookmarks, loggableMap(extras))
	}
	o.begin()
	o.packer.StructHeader(msgRoute, 3)
	o.packer.StringMap(context)
	o.packer.Strings(bookmarks)
	o.packMap(extras)
	o.end()
}

func (o *outgoing) appendTelemetry(api int) {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "TELEMETRY %d", api)
	}
	o.begin()
	o.packer.StructHeader(msgTelemetry, 1)
	o.packer.Int(api)
	o.end()
}

// send flushes all pending messages in one write.
func (o *outgoing) send(ctx context.Context, conn net.Conn) {
	buf := o.chunker.pending()
	if len(buf) == 0 {
		return
	}
	defer o.chunker.reset()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			o.onIoErr(ctx, err)
			return
		}
	} else if err := conn.SetWriteDeadline(time.Time{}); err != nil {
		o.onIoErr(ctx, err)
		return
	}
	if _, err := conn.Write(buf); err != nil {
		o.onIoErr(ctx, err)
	}
}

func (o *outgoing) packMap(m map[string]any) {
	o.packer.MapHeader(len(m))
	for k, v := range m {
		o.packer.String(k)
		o.packX(v)
	}
}

// packX packs any query parameter value, dehydrating the typed values of
// the dbtype package into their struct encodings.
func (o *outgoing) packX(x any) {
	switch v := x.(type) {
	case nil:
		o.packer.Nil()
	case bool:
		o.packer.Bool(v)
	case int:
		o.packer.Int(v)
	case int8:
		o.packer.Int64(int64(v))
	case int16:
		o.packer.Int64(int64(v))
	case int32:
		o.packer.Int64(int64(v))
	case int64:
		o.packer.Int64(v)
	case uint:
		o.packer.Uint64(uint64(v))
	case uint8:
		o.packer.Int64(int64(v))
	case uint16:
		o.packer.Int64(int64(v))
	case uint32:
		o.packer.Int64(int64(v))
	case uint64:
		o.packer.Uint64(v)
	case float32:
		o.packer.Float64(float64(v))
	case float64:
		o.packer.Float64(v)
	case string:
		o.packer.String(v)
	case []byte:
		o.packer.Bytes(v)
	case []any:
		o.packer.ListHeader(len(v))
		for _, e := range v {
			o.packX(e)
		}
	case []string:
		o.packer.Strings(v)
	case []int:
		o.packer.ListHeader(len(v))
		for _, e := range v {
			o.packer.Int(e)
		}
	case []int64:
		o.packer.ListHeader(len(v))
		for _, e := range v {
			o.packer.Int64(e)
		}
	case []float64:
		o.packer.ListHeader(len(v))
		for _, e := range v {
			o.packer.Float64(e)
		}
	case map[string]any:
		o.packMap(v)
	case map[string]string:
		o.packer.StringMap(v)
	default:
		if o.packDehydrated(x) {
			return
		}
		o.packReflect(x)
	}
}

// packReflect handles slices and maps of types not covered by the
// optimized cases above.
func (o *outgoing) packReflect(x any) {
	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			o.packer.Nil()
			return
		}
		o.packX(rv.Elem().Interface())
	case reflect.Slice:
		num := rv.Len()
		o.packer.ListHeader(num)
		for i := 0; i < num; i++ {
			o.packX(rv.Index(i).Interface())
		}
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			o.onPackErr(&db.UnsupportedTypeError{Type: reflect.TypeOf(x)})
			return
		}
		o.packer.MapHeader(rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			o.packer.String(iter.Key().String())
			o.packX(iter.Value().Interface())
		}
	default:
		o.onPackErr(&db.UnsupportedTypeError{Type: reflect.TypeOf(x)})
	}
}

func loggableMap(m map[string]any) string {
	return fmt.Sprintf("%v", m)
}

func loggableDehydrated(m map[string]any) string {
	// Avoid leaking credentials into bolt logs
	redacted := make(map[string]any, len(m))
	for k, v := range m {
		if k == "credentials" {
			redacted[k] = "<redacted>"
			continue
		}
		redacted[k] = v
	}
	return fmt.Sprintf("%v", redacted)
}

func loggableStringMap(m map[string]string) string {
	return fmt.Sprintf("%v", m)
}
