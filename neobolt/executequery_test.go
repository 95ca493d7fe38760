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
	"net/url"
	"testing"
	"time"

	bm "github.com/neo4j-drivers/neobolt/neobolt/bookmarks"
	"github.com/neo4j-drivers/neobolt/neobolt/config"
	"github.com/neo4j-drivers/neobolt/neobolt/db"
	"github.com/neo4j-drivers/neobolt/neobolt/dbtype"
	idb "github.com/neo4j-drivers/neobolt/neobolt/internal/db"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/testutil"
	"github.com/neo4j-drivers/neobolt/neobolt/log"
	"github.com/stretchr/testify/require"
)

// fakeDriver wires the session fakes behind the Driver interface so
// ExecuteQuery can be exercised without a server.
type fakeDriver struct {
	pool        *poolFake
	router      *routerFake
	bookmarkMgr bm.BookmarkManager
}

func (d *fakeDriver) Target() url.URL { return url.URL{} }

func (d *fakeDriver) NewSession(_ context.Context, sessConfig config.SessionConfig) Session {
	return newSession(testDriverConfig(), sessConfig, d.router, d.pool, log.Void(),
		&idb.ReAuthToken{Manager: BasicAuth("u", "p", "")}, time.Now)
}

func (d *fakeDriver) VerifyConnectivity(context.Context) error { return nil }
func (d *fakeDriver) Close(context.Context) error              { return nil }
func (d *fakeDriver) IsEncrypted() bool                        { return false }

func (d *fakeDriver) ExecuteQueryBookmarkManager() bm.BookmarkManager {
	return d.bookmarkMgr
}

func newFakeDriver(conn *testutil.ConnFake) *fakeDriver {
	return &fakeDriver{
		pool:        &poolFake{conns: []*testutil.ConnFake{conn}},
		router:      newRouterFake(),
		bookmarkMgr: bm.NewBookmarkManager(bm.BookmarkManagerConfig{}),
	}
}

func TestExecuteQueryCollectsEagerly(t *testing.T) {
	conn := testutil.NewConnFake("writer:7687")
	conn.Records = []*db.Record{
		{Keys: []string{"n"}, Values: []any{dbtype.Node{Id: 1, ElementId: "e1", Labels: []string{"T"}, Props: map[string]any{"v": "hi"}}}},
	}
	conn.Summary = &db.Summary{StmntType: db.StatementTypeReadWrite}
	conn.Bookm = "bm:create"
	d := newFakeDriver(conn)
	ctx := context.Background()

	eager, err := ExecuteQuery(ctx, d, "CREATE (n:T {v:$v}) RETURN n", map[string]any{"v": "hi"})
	require.NoError(t, err)
	require.Equal(t, []string{"n"}, eager.Keys)
	require.Len(t, eager.Records, 1)
	node, ok := eager.Records[0].Values[0].(dbtype.Node)
	require.True(t, ok)
	require.Equal(t, []string{"T"}, node.Labels)
	require.Equal(t, map[string]any{"v": "hi"}, node.Props)
	require.NotNil(t, eager.Summary)

	// Routed to a writer by default
	require.Equal(t, []string{"writer:7687"}, d.pool.borrowedTo)
	// Connection went back to the pool
	require.Equal(t, d.pool.borrowed, d.pool.returned)
}

func TestExecuteQueryReadRouting(t *testing.T) {
	conn := testutil.NewConnFake("reader:7687")
	conn.Summary = &db.Summary{}
	d := newFakeDriver(conn)

	_, err := ExecuteQuery(context.Background(), d, "MATCH (n) RETURN count(n)", nil,
		ExecuteQueryWithReadersRouting())
	require.NoError(t, err)
	require.Equal(t, []string{"reader:7687"}, d.pool.borrowedTo)
}

func TestExecuteQueryThreadsBookmarksThroughManager(t *testing.T) {
	conn := testutil.NewConnFake("writer:7687")
	conn.Summary = &db.Summary{}
	conn.Bookm = "bm:x"
	d := newFakeDriver(conn)
	ctx := context.Background()

	_, err := ExecuteQuery(ctx, d, "CREATE ()", nil)
	require.NoError(t, err)

	managed, err := d.bookmarkMgr.GetBookmarks(ctx)
	require.NoError(t, err)
	require.Equal(t, bm.Bookmarks{"bm:x"}, managed)

	// The second call sends the first call's bookmark
	_, err = ExecuteQuery(ctx, d, "CREATE ()", nil)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(conn.RecordedTxs), 2)
	require.Equal(t, []string{"bm:x"}, conn.RecordedTxs[1].Bookmarks)
}

func TestExecuteQueryWithoutBookmarkManager(t *testing.T) {
	conn := testutil.NewConnFake("writer:7687")
	conn.Summary = &db.Summary{}
	conn.Bookm = "bm:y"
	d := newFakeDriver(conn)
	ctx := context.Background()

	_, err := ExecuteQuery(ctx, d, "CREATE ()", nil, ExecuteQueryWithoutBookmarkManager())
	require.NoError(t, err)

	managed, err := d.bookmarkMgr.GetBookmarks(ctx)
	require.NoError(t, err)
	require.Empty(t, managed)
}

func TestBookmarkManagerUnionsAcrossSessions(t *testing.T) {
	manager := bm.NewBookmarkManager(bm.BookmarkManagerConfig{InitialBookmarks: bm.Bookmarks{"bm:init"}})
	ctx := context.Background()

	require.NoError(t, manager.UpdateBookmarks(ctx, nil, bm.Bookmarks{"bm:1"}))
	require.NoError(t, manager.UpdateBookmarks(ctx, bm.Bookmarks{"bm:init"}, bm.Bookmarks{"bm:2"}))

	current, err := manager.GetBookmarks(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, bm.Bookmarks{"bm:1", "bm:2"}, current)
}

func TestCombineBookmarksDeduplicates(t *testing.T) {
	combined := bm.CombineBookmarks(bm.Bookmarks{"a", "b"}, bm.Bookmarks{"b", "c"}, nil)
	require.ElementsMatch(t, bm.Bookmarks{"a", "b", "c"}, combined)
}
