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

package neobolt

import (
	"context"

	idb "github.com/neo4j-drivers/neobolt/neobolt/internal/db"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/errorutil"
)

// ExplicitTransaction is a transaction the caller commits or rolls back
// themselves.
type ExplicitTransaction interface {
	// Run executes a statement in the transaction and returns its
	// result.
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
	// Commit commits the transaction.
	Commit(ctx context.Context) error
	// Rollback rolls the transaction back.
	Rollback(ctx context.Context) error
	// Close rolls the transaction back when it was neither committed
	// nor rolled back yet.
	Close(ctx context.Context) error
}

// ManagedTransaction is the view of a transaction a unit of work gets:
// it can run statements but the driver owns the life-cycle.
type ManagedTransaction interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
}

type explicitTransaction struct {
	conn      idb.Connection
	fetchSize int
	txHandle  idb.TxHandle
	done      bool
	err       error
	onClosed  func()
	res       *result
}

func (t *explicitTransaction) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	if t.done {
		return nil, &errorutil.UsageError{Message: "cannot run statement on a closed transaction"}
	}
	// The previous result of this transaction must be fully received
	// before the next statement goes out
	if t.res != nil {
		t.res.buffer(ctx)
		t.res = nil
	}
	stream, err := t.conn.RunTx(ctx, t.txHandle, idb.Command{
		Cypher: cypher, Params: params, FetchSize: t.fetchSize,
	})
	if err != nil {
		t.err = errorutil.WrapError(err)
		t.done = true
		t.onClosed()
		return nil, t.err
	}
	t.res = newResult(t.conn, stream, cypher, params, nil)
	return t.res, nil
}

func (t *explicitTransaction) Commit(ctx context.Context) error {
	if t.done {
		return &errorutil.UsageError{Message: "cannot commit a closed transaction"}
	}
	t.err = t.conn.TxCommit(ctx, t.txHandle)
	t.done = true
	t.onClosed()
	return errorutil.WrapError(t.err)
}

func (t *explicitTransaction) Rollback(ctx context.Context) error {
	if t.done {
		return &errorutil.UsageError{Message: "cannot rollback a closed transaction"}
	}
	if !t.conn.IsAlive() || t.conn.HasFailed() {
		// The server already dropped the transaction
		t.err = nil
	} else {
		t.err = t.conn.TxRollback(ctx, t.txHandle)
	}
	t.done = true
	t.onClosed()
	return errorutil.WrapError(t.err)
}

func (t *explicitTransaction) Close(ctx context.Context) error {
	if t.done {
		return nil
	}
	return t.Rollback(ctx)
}

type managedTransaction struct {
	conn      idb.Connection
	fetchSize int
	txHandle  idb.TxHandle
	res       *result
}

func (t *managedTransaction) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	if t.res != nil {
		t.res.buffer(ctx)
		t.res = nil
	}
	stream, err := t.conn.RunTx(ctx, t.txHandle, idb.Command{
		Cypher: cypher, Params: params, FetchSize: t.fetchSize,
	})
	if err != nil {
		return nil, errorutil.WrapError(err)
	}
	t.res = newResult(t.conn, stream, cypher, params, nil)
	return t.res, nil
}

// autocommitTransaction pairs an auto-commit result with the connection
// it borrows for its lifetime.
type autocommitTransaction struct {
	conn     idb.Connection
	res      *result
	closed   bool
	onClosed func()
}

// done buffers the remaining records client side and releases the
// connection, called when the session moves on to its next statement.
func (tx *autocommitTransaction) done(ctx context.Context) {
	if tx.closed {
		return
	}
	tx.res.buffer(ctx)
	tx.closed = true
	tx.onClosed()
}

// discard drops the rest of the result server side, called when the
// session closes.
func (tx *autocommitTransaction) discard(ctx context.Context) {
	if tx.closed {
		return
	}
	_, _ = tx.res.Consume(ctx)
	tx.closed = true
	tx.onClosed()
}
