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
	"errors"
	"fmt"
	"net"

	"github.com/neo4j-drivers/neobolt/neobolt/db"
	idb "github.com/neo4j-drivers/neobolt/neobolt/internal/db"
)

// responseHandler reacts to one server response. A handler with a nil
// callback for the response kind actually received marks a protocol
// violation.
type responseHandler struct {
	onSuccess func(*success)
	onRecord  func(*db.Record)
	onFailure func(context.Context, *db.ServerError)
	onIgnored func(*ignored)
}

func onSuccessNoOp(*success)  {}
func onIgnoredNoOp(*ignored)  {}

// replyQueue pairs pipelined requests with their responses: every
// appended request enqueues a handler, every received response pops the
// head.
type replyQueue struct {
	in       *incoming
	out      *outgoing
	handlers []responseHandler
	conn     net.Conn
	err      error

	onNextMessage func()
	onIoErr       func(context.Context, error)
}

func (q *replyQueue) appendHello(hello map[string]any, handler responseHandler) {
	q.out.appendHello(hello)
	q.enqueue(handler)
}

func (q *replyQueue) appendLogon(token map[string]any, handler responseHandler) {
	q.out.appendLogon(token)
	q.enqueue(handler)
}

func (q *replyQueue) appendLogoff(handler responseHandler) {
	q.out.appendLogoff()
	q.enqueue(handler)
}

func (q *replyQueue) appendBegin(meta map[string]any, handler responseHandler) {
	q.out.appendBegin(meta)
	q.enqueue(handler)
}

func (q *replyQueue) appendCommit(handler responseHandler) {
	q.out.appendCommit()
	q.enqueue(handler)
}

func (q *replyQueue) appendRollback(handler responseHandler) {
	q.out.appendRollback()
	q.enqueue(handler)
}

func (q *replyQueue) appendRun(cypher string, params, meta map[string]any, handler responseHandler) {
	q.out.appendRun(cypher, params, meta)
	q.enqueue(handler)
}

func (q *replyQueue) appendPullN(n int, handler responseHandler) {
	q.out.appendPullN(n)
	q.enqueue(handler)
}

func (q *replyQueue) appendPullNQid(n int, qid int64, handler responseHandler) {
	q.out.appendPullNQid(n, qid)
	q.enqueue(handler)
}

func (q *replyQueue) appendDiscardN(n int, handler responseHandler) {
	q.out.appendDiscardN(n)
	q.enqueue(handler)
}

func (q *replyQueue) appendDiscardNQid(n int, qid int64, handler responseHandler) {
	q.out.appendDiscardNQid(n, qid)
	q.enqueue(handler)
}

func (q *replyQueue) appendReset(handler responseHandler) {
	q.out.appendReset()
	q.enqueue(handler)
}

func (q *replyQueue) appendRoute(context map[string]string, bookmarks []string, extras map[string]any, handler responseHandler) {
	q.out.appendRoute(context, bookmarks, extras)
	q.enqueue(handler)
}

func (q *replyQueue) appendTelemetry(api int, handler responseHandler) {
	q.out.appendTelemetry(api)
	q.enqueue(handler)
}

func (q *replyQueue) appendGoodbye() {
	q.out.appendGoodbye()
	// The server never answers a GOODBYE
}

func (q *replyQueue) send(ctx context.Context) {
	q.out.send(ctx, q.conn)
}

// receive handles exactly one response against the head handler.
func (q *replyQueue) receive(ctx context.Context) error {
	res := q.receiveMsg(ctx)
	if q.err != nil {
		return q.err
	}

	if len(q.handlers) == 0 {
		return errors.New("no pending response handler to apply")
	}
	handler := q.pop()
	switch message := res.(type) {
	case *db.Record:
		if handler.onRecord == nil {
			return errors.New("protocol violation: the server sent an unexpected RECORD response")
		}
		handler.onRecord(message)
	case *success:
		if handler.onSuccess == nil {
			return errors.New("protocol violation: the server sent an unexpected SUCCESS response")
		}
		handler.onSuccess(message)
	case *db.ServerError:
		if handler.onFailure == nil {
			return errors.New("protocol violation: the server sent an unexpected FAILURE response")
		}
		handler.onFailure(ctx, message)
		return message
	case *ignored:
		if handler.onIgnored == nil {
			return errors.New("protocol violation: the server sent an unexpected IGNORED response")
		}
		handler.onIgnored(message)
	default:
		panic(fmt.Errorf("unexpected message type %T", res))
	}
	return nil
}

// receiveAll drains every pending handler.
func (q *replyQueue) receiveAll(ctx context.Context) error {
	for len(q.handlers) > 0 {
		if err := q.receive(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (q *replyQueue) receiveMsg(ctx context.Context) any {
	// Receiving after an error could hang forever, the latch keeps all
	// subsequent receives cheap no-ops.
	if q.err != nil {
		return nil
	}
	msg, err := q.in.next(ctx, q.conn)
	q.err = err
	if err != nil {
		q.onIoErr(ctx, err)
		return nil
	}
	q.onNextMessage()
	return msg
}

func (q *replyQueue) enqueue(handler responseHandler) {
	q.handlers = append(q.handlers, handler)
}

// pushFront re-arms a handler for the next response of the same request,
// used for the record flood following a PULL.
func (q *replyQueue) pushFront(handler responseHandler) {
	q.handlers = append([]responseHandler{handler}, q.handlers...)
}

func (q *replyQueue) pop() responseHandler {
	handler := q.handlers[0]
	q.handlers = q.handlers[1:]
	return handler
}

func (q *replyQueue) isEmpty() bool {
	return len(q.handlers) == 0
}

func (q *replyQueue) setLogId(logId string) {
	q.in.hyd.logId = logId
	q.out.logId = logId
}

func (q *replyQueue) setBoltLogger(logger idb.BoltLogger) {
	q.in.hyd.boltLogger = logger
	q.out.boltLogger = logger
}
