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

package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/neo4j-drivers/neobolt/neobolt/auth"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/bolt"
	idb "github.com/neo4j-drivers/neobolt/neobolt/internal/db"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/errorutil"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/testutil"
	"github.com/neo4j-drivers/neobolt/neobolt/log"
	"github.com/stretchr/testify/require"
)

func staticServers(names ...string) func() []string {
	return func() []string { return names }
}

func testAuth() *idb.ReAuthToken {
	return &idb.ReAuthToken{Manager: auth.StaticTokenManager(auth.BasicAuth("u", "p", ""))}
}

func connectTo(connsMade *[]*testutil.ConnFake) Connect {
	var mut sync.Mutex
	return func(ctx context.Context, address string, auth *idb.ReAuthToken,
		errorListener bolt.ConnectionErrorListener, boltLogger idb.BoltLogger) (idb.Connection, error) {
		c := testutil.NewConnFake(address)
		if connsMade != nil {
			mut.Lock()
			*connsMade = append(*connsMade, c)
			mut.Unlock()
		}
		return c, nil
	}
}

func newTestPool(maxSize int, connect Connect) *Pool {
	return New(Config{MaxSize: maxSize, MaxLifetime: time.Hour}, connect, log.Void(), "pool-test")
}

func TestBorrowDialsWhenEmpty(t *testing.T) {
	var made []*testutil.ConnFake
	p := newTestPool(2, connectTo(&made))
	defer p.Close(context.Background())

	conn, err := p.Borrow(context.Background(), staticServers("srv:7687"), true, nil, DefaultLivenessCheckThreshold, testAuth())
	require.NoError(t, err)
	require.NotNil(t, conn)
	require.Len(t, made, 1)
}

func TestBorrowReusesReturnedConnection(t *testing.T) {
	var made []*testutil.ConnFake
	p := newTestPool(2, connectTo(&made))
	defer p.Close(context.Background())
	ctx := context.Background()

	c1, err := p.Borrow(ctx, staticServers("srv:7687"), true, nil, DefaultLivenessCheckThreshold, testAuth())
	require.NoError(t, err)
	p.Return(ctx, c1)

	c2, err := p.Borrow(ctx, staticServers("srv:7687"), true, nil, DefaultLivenessCheckThreshold, testAuth())
	require.NoError(t, err)
	require.Same(t, c1, c2)
	require.Len(t, made, 1)
	// Return resets session state before the connection is reused
	require.Equal(t, 1, made[0].ResetCalled)
}

func TestBorrowRespectsCap(t *testing.T) {
	p := newTestPool(1, connectTo(nil))
	defer p.Close(context.Background())
	ctx := context.Background()

	_, err := p.Borrow(ctx, staticServers("srv:7687"), true, nil, DefaultLivenessCheckThreshold, testAuth())
	require.NoError(t, err)

	// Cap reached; non-waiting borrow fails immediately
	_, err = p.Borrow(ctx, staticServers("srv:7687"), false, nil, DefaultLivenessCheckThreshold, testAuth())
	require.Error(t, err)
	require.IsType(t, &errorutil.PoolFull{}, err)
}

func TestBorrowTimesOutWhenExhausted(t *testing.T) {
	p := newTestPool(1, connectTo(nil))
	defer p.Close(context.Background())
	ctx := context.Background()

	_, err := p.Borrow(ctx, staticServers("srv:7687"), true, nil, DefaultLivenessCheckThreshold, testAuth())
	require.NoError(t, err)

	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = p.Borrow(timeoutCtx, staticServers("srv:7687"), true, nil, DefaultLivenessCheckThreshold, testAuth())
	require.Error(t, err)
	require.IsType(t, &errorutil.PoolTimeout{}, err)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestWaiterIsWokenByReturn(t *testing.T) {
	p := newTestPool(1, connectTo(nil))
	defer p.Close(context.Background())
	ctx := context.Background()

	c1, err := p.Borrow(ctx, staticServers("srv:7687"), true, nil, DefaultLivenessCheckThreshold, testAuth())
	require.NoError(t, err)

	borrowed := make(chan idb.Connection, 1)
	go func() {
		timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		c, err := p.Borrow(timeoutCtx, staticServers("srv:7687"), true, nil, DefaultLivenessCheckThreshold, testAuth())
		if err != nil {
			borrowed <- nil
			return
		}
		borrowed <- c
	}()

	// Give the borrower a moment to enqueue itself, then return
	time.Sleep(20 * time.Millisecond)
	p.Return(ctx, c1)

	c2 := <-borrowed
	require.NotNil(t, c2)
	require.Same(t, c1, c2)
}

func TestWaiterIsWokenByDiscard(t *testing.T) {
	var made []*testutil.ConnFake
	p := newTestPool(1, connectTo(&made))
	defer p.Close(context.Background())
	ctx := context.Background()

	c1, err := p.Borrow(ctx, staticServers("srv:7687"), true, nil, DefaultLivenessCheckThreshold, testAuth())
	require.NoError(t, err)

	borrowed := make(chan idb.Connection, 1)
	go func() {
		timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		c, _ := p.Borrow(timeoutCtx, staticServers("srv:7687"), true, nil, DefaultLivenessCheckThreshold, testAuth())
		borrowed <- c
	}()

	time.Sleep(20 * time.Millisecond)
	// Returning a dead connection discards it and frees the slot
	made[0].Alive = false
	p.Return(ctx, c1)

	c2 := <-borrowed
	require.NotNil(t, c2)
	require.Len(t, made, 2)
}

func TestBorrowDropsDeadIdleConnections(t *testing.T) {
	var made []*testutil.ConnFake
	p := newTestPool(2, connectTo(&made))
	defer p.Close(context.Background())
	ctx := context.Background()

	c1, err := p.Borrow(ctx, staticServers("srv:7687"), true, nil, DefaultLivenessCheckThreshold, testAuth())
	require.NoError(t, err)
	p.Return(ctx, c1)
	made[0].Alive = false

	c2, err := p.Borrow(ctx, staticServers("srv:7687"), true, nil, DefaultLivenessCheckThreshold, testAuth())
	require.NoError(t, err)
	require.NotSame(t, c1, c2)
	require.Len(t, made, 2)
}

func TestBorrowEvictsPastLifetime(t *testing.T) {
	var made []*testutil.ConnFake
	p := New(Config{MaxSize: 2, MaxLifetime: time.Minute}, connectTo(&made), log.Void(), "pool-test")
	defer p.Close(context.Background())
	ctx := context.Background()

	c1, err := p.Borrow(ctx, staticServers("srv:7687"), true, nil, DefaultLivenessCheckThreshold, testAuth())
	require.NoError(t, err)
	p.Return(ctx, c1)
	made[0].Birth = time.Now().Add(-2 * time.Minute)

	c2, err := p.Borrow(ctx, staticServers("srv:7687"), true, nil, DefaultLivenessCheckThreshold, testAuth())
	require.NoError(t, err)
	require.NotSame(t, c1, c2)
}

func TestBorrowProbesLongIdleConnections(t *testing.T) {
	var made []*testutil.ConnFake
	p := newTestPool(2, connectTo(&made))
	defer p.Close(context.Background())
	ctx := context.Background()

	c1, err := p.Borrow(ctx, staticServers("srv:7687"), true, nil, DefaultLivenessCheckThreshold, testAuth())
	require.NoError(t, err)
	p.Return(ctx, c1)
	probed := false
	made[0].Idle = time.Now().Add(-time.Hour)
	made[0].ForceResetHook = func() { probed = true }

	c2, err := p.Borrow(ctx, staticServers("srv:7687"), true, nil, time.Minute, testAuth())
	require.NoError(t, err)
	require.Same(t, c1, c2)
	require.True(t, probed)
}

func TestBorrowPrefersLeastConnectedServer(t *testing.T) {
	p := newTestPool(10, connectTo(nil))
	defer p.Close(context.Background())
	ctx := context.Background()
	servers := staticServers("a:7687", "b:7687")

	// Occupy two connections on a, none on b
	c1, _ := p.Borrow(ctx, staticServers("a:7687"), true, nil, DefaultLivenessCheckThreshold, testAuth())
	c2, _ := p.Borrow(ctx, staticServers("a:7687"), true, nil, DefaultLivenessCheckThreshold, testAuth())
	require.NotNil(t, c1)
	require.NotNil(t, c2)

	c3, err := p.Borrow(ctx, servers, true, nil, DefaultLivenessCheckThreshold, testAuth())
	require.NoError(t, err)
	require.Equal(t, "b:7687", c3.ServerName())
}

func TestPoolCapInvariantUnderConcurrency(t *testing.T) {
	const maxSize = 4
	var made []*testutil.ConnFake
	p := newTestPool(maxSize, connectTo(&made))
	defer p.Close(context.Background())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			c, err := p.Borrow(timeoutCtx, staticServers("srv:7687"), true, nil, DefaultLivenessCheckThreshold, testAuth())
			if err != nil {
				return
			}
			time.Sleep(time.Millisecond)
			p.Return(ctx, c)
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, len(made), maxSize)
}

func TestBorrowFromClosedPool(t *testing.T) {
	p := newTestPool(1, connectTo(nil))
	p.Close(context.Background())
	_, err := p.Borrow(context.Background(), staticServers("srv:7687"), true, nil, DefaultLivenessCheckThreshold, testAuth())
	require.IsType(t, &errorutil.PoolClosed{}, err)
}

func TestReturnToClosedPoolClosesConnection(t *testing.T) {
	var made []*testutil.ConnFake
	p := newTestPool(1, connectTo(&made))
	ctx := context.Background()
	c, err := p.Borrow(ctx, staticServers("srv:7687"), true, nil, DefaultLivenessCheckThreshold, testAuth())
	require.NoError(t, err)
	p.Close(ctx)
	p.Return(ctx, c)
	require.Eventually(t, func() bool { return made[0].CloseCalled > 0 }, time.Second, 5*time.Millisecond)
}

func TestReAuthFailurePropagates(t *testing.T) {
	wantErr := errors.New("token source broke")
	connect := func(ctx context.Context, address string, auth *idb.ReAuthToken,
		errorListener bolt.ConnectionErrorListener, boltLogger idb.BoltLogger) (idb.Connection, error) {
		c := testutil.NewConnFake(address)
		c.ReAuthHook = func(context.Context, *idb.ReAuthToken) error { return wantErr }
		return c, nil
	}
	p := newTestPool(1, connect)
	defer p.Close(context.Background())
	ctx := context.Background()

	// First borrow dials (no health check on fresh connections)
	c, err := p.Borrow(ctx, staticServers("srv:7687"), true, nil, DefaultLivenessCheckThreshold, testAuth())
	require.NoError(t, err)
	p.Return(ctx, c)

	_, err = p.Borrow(ctx, staticServers("srv:7687"), true, nil, DefaultLivenessCheckThreshold, testAuth())
	require.ErrorIs(t, err, wantErr)
}
