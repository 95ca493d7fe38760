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
	"net"
	"time"

	"github.com/neo4j-drivers/neobolt/neobolt/internal/errorutil"
	itime "github.com/neo4j-drivers/neobolt/neobolt/internal/time"
)

// incoming reads and hydrates one response message at a time. A read
// deadline applies while a response is awaited: the tighter of the
// context deadline and the server's connection.recv_timeout_seconds
// hint. Hitting the hint deadline makes the connection unusable.
type incoming struct {
	buf             []byte
	hyd             hydrator
	connReadTimeout time.Duration // <= 0 when the server sent no hint
}

func (i *incoming) next(ctx context.Context, conn net.Conn) (any, error) {
	var deadline time.Time
	hinted := false
	if i.connReadTimeout > 0 {
		deadline = itime.Now().Add(i.connReadTimeout)
		hinted = true
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (deadline.IsZero() || ctxDeadline.Before(deadline)) {
		deadline = ctxDeadline
		hinted = false
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	buf, err := dechunkMessage(conn, i.buf)
	if err != nil {
		if hinted && isTimeoutError(err) {
			return nil, &errorutil.ConnectionReadTimeout{ReadTimeout: i.connReadTimeout, Err: err}
		}
		return nil, err
	}
	i.buf = buf
	return i.hyd.hydrate(buf)
}

func isTimeoutError(err error) bool {
	netErr, ok := err.(net.Error)
	return ok && netErr.Timeout()
}
