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
	"errors"
	"testing"
	"time"

	"github.com/neo4j-drivers/neobolt/neobolt/config"
	"github.com/neo4j-drivers/neobolt/neobolt/db"
	idb "github.com/neo4j-drivers/neobolt/neobolt/internal/db"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/testutil"
	"github.com/neo4j-drivers/neobolt/neobolt/log"
	"github.com/stretchr/testify/require"
)

func testDriverConfig() *config.Config {
	return &config.Config{
		Log:                          log.Void(),
		MaxTransactionRetryTime:      5 * time.Second,
		MaxConnectionPoolSize:        10,
		ConnectionAcquisitionTimeout: time.Minute,
		FetchSize:                    FetchDefault,
	}
}

func newTestSession(t *testing.T, conns ...*testutil.ConnFake) (*session, *poolFake, *routerFake) {
	t.Helper()
	p := &poolFake{conns: conns}
	r := newRouterFake()
	s := newSession(testDriverConfig(), config.SessionConfig{}, r, p, log.Void(),
		&idb.ReAuthToken{Manager: BasicAuth("u", "p", "")}, time.Now)
	s.sleep = func(time.Duration) {}
	return s, p, r
}

func TestSessionRunYieldsRecords(t *testing.T) {
	conn := testutil.NewConnFake("srv:7687")
	conn.Records = []*db.Record{
		{Keys: []string{"x"}, Values: []any{int64(123)}},
	}
	conn.Summary = &db.Summary{StmntType: db.StatementTypeRead}
	s, p, _ := newTestSession(t, conn)
	ctx := context.Background()

	res, err := s.Run(ctx, "RETURN $x AS x", map[string]any{"x": 123})
	require.NoError(t, err)

	require.True(t, res.Next(ctx))
	value, ok := res.Record().Get("x")
	require.True(t, ok)
	require.Equal(t, int64(123), value)
	require.False(t, res.Next(ctx))
	require.NoError(t, res.Err())

	summary, err := res.Consume(ctx)
	require.NoError(t, err)
	require.Equal(t, StatementTypeReadOnly, summary.StatementType())

	require.NoError(t, s.Close(ctx))
	require.Equal(t, p.borrowed, p.returned)
}

func TestSessionRunPropagatesBookmarks(t *testing.T) {
	conn := testutil.NewConnFake("srv:7687")
	conn.Summary = &db.Summary{}
	conn.Bookm = "bm:42"
	s, _, _ := newTestSession(t, conn)
	ctx := context.Background()

	res, err := s.Run(ctx, "CREATE ()", nil)
	require.NoError(t, err)
	_, err = res.Consume(ctx)
	require.NoError(t, err)

	require.Equal(t, []string{"bm:42"}, s.LastBookmarks())

	// The next statement carries the bookmark
	res2, err := s.Run(ctx, "MATCH (n) RETURN n", nil)
	require.NoError(t, err)
	_ = res2
	require.GreaterOrEqual(t, len(conn.RecordedTxs), 2)
	require.Equal(t, []string{"bm:42"}, conn.RecordedTxs[1].Bookmarks)
}

func TestSessionInitialBookmarksAreSent(t *testing.T) {
	conn := testutil.NewConnFake("srv:7687")
	conn.Summary = &db.Summary{}
	p := &poolFake{conns: []*testutil.ConnFake{conn}}
	r := newRouterFake()
	s := newSession(testDriverConfig(), config.SessionConfig{
		Bookmarks: []string{"bm:a", "bm:b"},
	}, r, p, log.Void(), &idb.ReAuthToken{Manager: BasicAuth("u", "p", "")}, time.Now)
	ctx := context.Background()

	_, err := s.Run(ctx, "RETURN 1", nil)
	require.NoError(t, err)
	require.Len(t, conn.RecordedTxs, 1)
	require.ElementsMatch(t, []string{"bm:a", "bm:b"}, conn.RecordedTxs[0].Bookmarks)
}

func TestSessionSecondRunBuffersFirstResult(t *testing.T) {
	conn := testutil.NewConnFake("srv:7687")
	conn.Summary = &db.Summary{}
	s, p, _ := newTestSession(t, conn)
	ctx := context.Background()

	_, err := s.Run(ctx, "RETURN 1", nil)
	require.NoError(t, err)
	require.Equal(t, 0, p.returned)

	_, err = s.Run(ctx, "RETURN 2", nil)
	require.NoError(t, err)
	// First auto-commit was finished and its connection returned
	require.Equal(t, 1, p.returned)
}

func TestSessionRunWhileExplicitTxIsUsageError(t *testing.T) {
	conn := testutil.NewConnFake("srv:7687")
	s, _, _ := newTestSession(t, conn)
	ctx := context.Background()

	_, err := s.BeginTransaction(ctx)
	require.NoError(t, err)

	_, err = s.Run(ctx, "RETURN 1", nil)
	require.Error(t, err)
	require.True(t, IsUsageError(err))
}

func TestSessionSecondBeginTransactionIsUsageError(t *testing.T) {
	conn := testutil.NewConnFake("srv:7687")
	s, _, _ := newTestSession(t, conn)
	ctx := context.Background()

	_, err := s.BeginTransaction(ctx)
	require.NoError(t, err)
	_, err = s.BeginTransaction(ctx)
	require.Error(t, err)
	require.True(t, IsUsageError(err))
}

func TestClosedSessionRefusesWork(t *testing.T) {
	conn := testutil.NewConnFake("srv:7687")
	s, _, _ := newTestSession(t, conn)
	ctx := context.Background()
	require.NoError(t, s.Close(ctx))

	_, err := s.Run(ctx, "RETURN 1", nil)
	require.True(t, IsUsageError(err))
	_, err = s.BeginTransaction(ctx)
	require.True(t, IsUsageError(err))
	_, err = s.ExecuteRead(ctx, func(tx ManagedTransaction) (any, error) { return nil, nil })
	require.True(t, IsUsageError(err))
}

func TestExplicitTransactionCommit(t *testing.T) {
	conn := testutil.NewConnFake("srv:7687")
	conn.Summary = &db.Summary{}
	conn.Bookm = "bm:7"
	s, p, _ := newTestSession(t, conn)
	ctx := context.Background()

	tx, err := s.BeginTransaction(ctx)
	require.NoError(t, err)
	_, err = tx.Run(ctx, "CREATE ()", nil)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	require.Equal(t, 1, p.returned)
	require.Equal(t, []string{"bm:7"}, s.LastBookmarks())

	// Transaction is spent
	_, err = tx.Run(ctx, "RETURN 1", nil)
	require.True(t, IsUsageError(err))
	require.Error(t, tx.Commit(ctx))

	// And a new one may start
	_, err = s.BeginTransaction(ctx)
	require.NoError(t, err)
}

func TestExplicitTransactionRollback(t *testing.T) {
	conn := testutil.NewConnFake("srv:7687")
	s, p, _ := newTestSession(t, conn)
	ctx := context.Background()

	tx, err := s.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))
	require.Equal(t, 1, p.returned)
}

func TestSessionCloseRollsBackOpenTransaction(t *testing.T) {
	conn := testutil.NewConnFake("srv:7687")
	s, p, _ := newTestSession(t, conn)
	ctx := context.Background()

	_, err := s.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))
	require.Equal(t, 1, p.returned)
}

func TestManagedTransactionRetriesTransientErrors(t *testing.T) {
	conn := testutil.NewConnFake("srv:7687")
	conn.Summary = &db.Summary{}
	s, _, _ := newTestSession(t, conn)
	ctx := context.Background()

	transient := &db.ServerError{Code: "Neo.TransientError.General.TransactionMemoryLimit", Msg: "oom"}
	attempts := 0
	result, err := s.ExecuteWrite(ctx, func(tx ManagedTransaction) (any, error) {
		attempts++
		if attempts <= 2 {
			return nil, transient
		}
		return "done", nil
	})
	require.NoError(t, err)
	require.Equal(t, "done", result)
	require.Equal(t, 3, attempts)
	// Three transactions were started, one per attempt
	require.Len(t, conn.RecordedTxs, 3)
}

func TestManagedTransactionDoesNotRetryUserErrors(t *testing.T) {
	conn := testutil.NewConnFake("srv:7687")
	s, _, _ := newTestSession(t, conn)
	ctx := context.Background()

	boom := errors.New("boom")
	attempts := 0
	_, err := s.ExecuteWrite(ctx, func(tx ManagedTransaction) (any, error) {
		attempts++
		return nil, boom
	})
	require.Same(t, boom, err)
	require.Equal(t, 1, attempts)
}

func TestManagedTransactionGivesUpAfterBudget(t *testing.T) {
	conn := testutil.NewConnFake("srv:7687")
	s, _, _ := newTestSession(t, conn)
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time {
		// Every observation moves the clock past the budget
		now = now.Add(10 * time.Second)
		return now
	}
	transient := &db.ServerError{Code: "Neo.TransientError.General.Whatever", Msg: "x"}
	attempts := 0
	_, err := s.ExecuteWrite(ctx, func(tx ManagedTransaction) (any, error) {
		attempts++
		return nil, transient
	})
	require.Error(t, err)
	var limit *TransactionExecutionLimit
	require.ErrorAs(t, err, &limit)
	require.Equal(t, attempts, len(limit.Errors))
}

func TestManagedTransactionReadRoutesToReaders(t *testing.T) {
	conn := testutil.NewConnFake("reader:7687")
	conn.Summary = &db.Summary{}
	s, p, _ := newTestSession(t, conn)
	ctx := context.Background()

	_, err := s.ExecuteRead(ctx, func(tx ManagedTransaction) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"reader:7687"}, p.borrowedTo)

	_, err = s.ExecuteWrite(ctx, func(tx ManagedTransaction) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"reader:7687", "writer:7687"}, p.borrowedTo)
}

func TestSessionResolvesHomeDatabaseOnce(t *testing.T) {
	conn := testutil.NewConnFake("srv:7687")
	conn.Summary = &db.Summary{}
	p := &poolFake{conns: []*testutil.ConnFake{conn}}
	r := newRouterFake()
	r.defaultDb = "customers"
	s := newSession(testDriverConfig(), config.SessionConfig{}, r, p, log.Void(),
		&idb.ReAuthToken{Manager: BasicAuth("u", "p", "")}, time.Now)
	ctx := context.Background()

	_, err := s.Run(ctx, "RETURN 1", nil)
	require.NoError(t, err)
	require.Equal(t, "customers", conn.DatabaseName)
	require.False(t, s.resolveHomeDb)
}

func TestSessionCachesServerResolvedHomeDb(t *testing.T) {
	conn := testutil.NewConnFake("srv:7687")
	conn.Summary = &db.Summary{}
	conn.HomeDb = "movies"
	s, _, r := newTestSession(t, conn)
	ctx := context.Background()

	res, err := s.Run(ctx, "RETURN 1", nil)
	require.NoError(t, err)
	_, err = res.Consume(ctx)
	require.NoError(t, err)

	require.Equal(t, "movies", r.cachedHomeDb["auth:u"])
	// The session pinned itself to the resolved database
	require.Equal(t, "movies", s.config.DatabaseName)
}
