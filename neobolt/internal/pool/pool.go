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

// Package pool keeps live connections around for reuse, partitioned by
// target address. Thread safe.
package pool

import (
	"container/list"
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/neo4j-drivers/neobolt/neobolt/db"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/bolt"
	idb "github.com/neo4j-drivers/neobolt/neobolt/internal/db"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/errorutil"
	itime "github.com/neo4j-drivers/neobolt/neobolt/internal/time"
	"github.com/neo4j-drivers/neobolt/neobolt/log"
)

// DefaultLivenessCheckThreshold disables the idle liveness probe.
const DefaultLivenessCheckThreshold = time.Duration(-1)

// Connect dials, negotiates and authenticates one connection.
type Connect func(ctx context.Context, address string, auth *idb.ReAuthToken,
	errorListener bolt.ConnectionErrorListener, boltLogger idb.BoltLogger) (idb.Connection, error)

type Config struct {
	// MaxSize caps idle plus checked out connections per address.
	MaxSize int
	// MaxLifetime evicts connections older than this on checkout and
	// cleanup. Zero or negative disables the check.
	MaxLifetime time.Duration
}

type qitem struct {
	servers []string
	wakeup  chan bool
	conn    idb.Connection
}

type Pool struct {
	config     Config
	connect    Connect
	servers    map[string]*server
	serversMut sync.Mutex
	queueMut   sync.Mutex
	queue      list.List // Of *qitem
	closed     bool
	log        log.Logger
	logId      string
}

func New(config Config, connect Connect, logger log.Logger, logId string) *Pool {
	return &Pool{
		config:  config,
		connect: connect,
		servers: make(map[string]*server),
		log:     logger,
		logId:   logId,
	}
}

// Borrow acquires a connection to any of the candidate servers, in
// least-connected order, carrying the auth identity of the given token.
//
// A connection is taken from the idle set when one passes the liveness
// checks, dialed fresh while the per-address cap permits, and otherwise
// waited for until a slot frees or ctx expires. With wait false the
// wait step fails immediately instead.
func (p *Pool) Borrow(
	ctx context.Context,
	getServerNames func() []string,
	wait bool,
	boltLogger idb.BoltLogger,
	livenessCheckThreshold time.Duration,
	auth *idb.ReAuthToken,
) (idb.Connection, error) {
	for {
		if p.isClosed() {
			return nil, &errorutil.PoolClosed{}
		}
		serverNames := append([]string(nil), getServerNames()...)
		if len(serverNames) == 0 {
			return nil, &errorutil.ConnectivityError{Inner: &errorutil.ReadRoutingTableError{}}
		}
		// Sorting works on the copy, the caller's slice may be the
		// routing table's own.
		p.sortByLeastConnected(serverNames)

		// Reuse an idle connection when a healthy one exists
		for _, serverName := range serverNames {
			for {
				conn := p.popIdle(serverName)
				if conn == nil {
					break
				}
				healthy, err := p.checkHealth(ctx, conn, livenessCheckThreshold, auth)
				if err != nil {
					p.discard(ctx, conn)
					return nil, err
				}
				if !healthy {
					p.discard(ctx, conn)
					continue
				}
				conn.SetBoltLogger(boltLogger)
				return conn, nil
			}
		}

		// Dial a new connection where the cap allows it
		var lastErr error
		for _, serverName := range serverNames {
			if !p.reserve(serverName) {
				continue
			}
			conn, err := p.connect(ctx, serverName, auth, p, boltLogger)
			p.unreserve(serverName)
			if err != nil {
				lastErr = err
				if ctx.Err() != nil {
					return nil, &errorutil.PoolTimeout{Servers: serverNames}
				}
				continue
			}
			p.register(serverName, conn)
			return conn, nil
		}
		if lastErr != nil {
			return nil, lastErr
		}

		// All servers are at capacity
		if !wait {
			return nil, &errorutil.PoolFull{Servers: serverNames}
		}
		conn, err := p.waitForSlot(ctx, serverNames)
		if err != nil {
			return nil, err
		}
		if conn != nil {
			healthy, err := p.checkHealth(ctx, conn, livenessCheckThreshold, auth)
			if err != nil {
				p.discard(ctx, conn)
				return nil, err
			}
			if healthy {
				conn.SetBoltLogger(boltLogger)
				return conn, nil
			}
			p.discard(ctx, conn)
		}
		// Woken without a connection: a slot freed somewhere, try again
	}
}

func (p *Pool) isClosed() bool {
	p.serversMut.Lock()
	defer p.serversMut.Unlock()
	return p.closed
}

// sortByLeastConnected orders candidates by their number of checked out
// connections, ties broken randomly.
func (p *Pool) sortByLeastConnected(serverNames []string) {
	rand.Shuffle(len(serverNames), func(i, j int) {
		serverNames[i], serverNames[j] = serverNames[j], serverNames[i]
	})
	busy := make(map[string]int, len(serverNames))
	p.serversMut.Lock()
	for _, name := range serverNames {
		if srv := p.servers[name]; srv != nil {
			busy[name] = srv.numBusy()
		}
	}
	p.serversMut.Unlock()
	sort.SliceStable(serverNames, func(i, j int) bool {
		return busy[serverNames[i]] < busy[serverNames[j]]
	})
}

func (p *Pool) popIdle(serverName string) idb.Connection {
	p.serversMut.Lock()
	defer p.serversMut.Unlock()
	srv := p.servers[serverName]
	if srv == nil {
		return nil
	}
	return srv.getIdle()
}

// checkHealth applies the liveness predicate and re-authentication to a
// just-checked-out connection. False means discard and keep looking.
func (p *Pool) checkHealth(ctx context.Context, conn idb.Connection,
	livenessCheckThreshold time.Duration, auth *idb.ReAuthToken) (bool, error) {
	if !conn.IsAlive() {
		return false, nil
	}
	p.serversMut.Lock()
	tooOld := p.servers[conn.ServerName()] != nil &&
		p.servers[conn.ServerName()].tooOld(conn, p.config.MaxLifetime)
	p.serversMut.Unlock()
	if tooOld {
		p.log.Debugf(log.Pool, p.logId, "dropping connection to %s, past its maximum lifetime", conn.ServerName())
		return false, nil
	}
	if livenessCheckThreshold >= 0 && itime.Since(conn.IdleDate()) > livenessCheckThreshold {
		conn.ForceReset(ctx)
		if !conn.IsAlive() {
			p.log.Debugf(log.Pool, p.logId, "dropping connection to %s, failed liveness probe", conn.ServerName())
			return false, nil
		}
	}
	if err := conn.ReAuth(ctx, auth); err != nil {
		return false, err
	}
	if !conn.IsAlive() {
		// ReAuth on old protocol versions closes the connection on an
		// identity switch
		return false, nil
	}
	return true, nil
}

// reserve takes a dial slot for the server when under the cap.
func (p *Pool) reserve(serverName string) bool {
	p.serversMut.Lock()
	defer p.serversMut.Unlock()
	if p.closed {
		return false
	}
	srv := p.servers[serverName]
	if srv == nil {
		srv = &server{}
		p.servers[serverName] = srv
	}
	if p.config.MaxSize > 0 && srv.size() >= p.config.MaxSize {
		return false
	}
	srv.reservations++
	return true
}

func (p *Pool) unreserve(serverName string) {
	p.serversMut.Lock()
	defer p.serversMut.Unlock()
	if srv := p.servers[serverName]; srv != nil {
		srv.reservations--
	}
}

func (p *Pool) register(serverName string, conn idb.Connection) {
	p.serversMut.Lock()
	defer p.serversMut.Unlock()
	srv := p.servers[serverName]
	if srv == nil {
		srv = &server{}
		p.servers[serverName] = srv
	}
	srv.registerBusy(conn)
}

// discard drops a checked out connection entirely and lets one waiter
// retry, since a slot just freed.
func (p *Pool) discard(ctx context.Context, conn idb.Connection) {
	serverName := conn.ServerName()
	p.serversMut.Lock()
	if srv := p.servers[serverName]; srv != nil {
		srv.removeBusy(conn)
		if srv.size() == 0 {
			delete(p.servers, serverName)
		}
	}
	p.serversMut.Unlock()
	go conn.Close(ctx)
	p.wakeRetry(serverName)
}

// wakeRetry wakes one waiter for the address without giving it a
// connection; it re-enters the borrow loop and may dial a fresh one.
func (p *Pool) wakeRetry(serverName string) {
	p.queueMut.Lock()
	for e := p.queue.Front(); e != nil; e = e.Next() {
		item := e.Value.(*qitem)
		for _, s := range item.servers {
			if s == serverName {
				p.queue.Remove(e)
				p.queueMut.Unlock()
				item.wakeup <- true
				return
			}
		}
	}
	p.queueMut.Unlock()
}

func (p *Pool) waitForSlot(ctx context.Context, serverNames []string) (idb.Connection, error) {
	p.queueMut.Lock()
	// A connection may have been returned between the failed borrow
	// attempt and taking the queue lock; re-check to avoid stalling.
	for _, serverName := range serverNames {
		if conn := p.popIdle(serverName); conn != nil {
			p.queueMut.Unlock()
			return conn, nil
		}
	}
	item := &qitem{servers: serverNames, wakeup: make(chan bool, 1)}
	element := p.queue.PushBack(item)
	p.queueMut.Unlock()

	p.log.Debugf(log.Pool, p.logId, "waiting for a connection to any of %v", serverNames)
	select {
	case <-item.wakeup:
		return item.conn, nil
	case <-ctx.Done():
		p.queueMut.Lock()
		p.queue.Remove(element)
		p.queueMut.Unlock()
		select {
		case <-item.wakeup:
			// Won the race after all
			return item.conn, nil
		default:
		}
		return nil, &errorutil.PoolTimeout{Servers: serverNames}
	}
}

// Return gives a checked out connection back. Misbehaving connections
// are reset first; dead ones are dropped, freeing their slot.
func (p *Pool) Return(ctx context.Context, conn idb.Connection) {
	if p.isClosed() {
		p.serversMut.Lock()
		if srv := p.servers[conn.ServerName()]; srv != nil {
			srv.removeBusy(conn)
		}
		p.serversMut.Unlock()
		go conn.Close(ctx)
		return
	}

	if conn.IsAlive() {
		// Bring the connection back to its ready state; failure marks
		// it defunct.
		conn.Reset(ctx)
	}
	if !conn.IsAlive() {
		p.log.Debugf(log.Pool, p.logId, "dropping dead connection to %s", conn.ServerName())
		p.discard(ctx, conn)
		return
	}

	serverName := conn.ServerName()
	// Hand the connection to a matching waiter if there is one
	p.queueMut.Lock()
	for e := p.queue.Front(); e != nil; e = e.Next() {
		item := e.Value.(*qitem)
		for _, s := range item.servers {
			if s == serverName {
				item.conn = conn
				p.queue.Remove(e)
				p.queueMut.Unlock()
				item.wakeup <- true
				return
			}
		}
	}
	p.queueMut.Unlock()

	p.serversMut.Lock()
	defer p.serversMut.Unlock()
	if srv := p.servers[serverName]; srv != nil {
		srv.returnBusy(conn)
	} else {
		go conn.Close(ctx)
	}
}

// CleanUp evicts idle connections past their lifetime.
func (p *Pool) CleanUp(ctx context.Context) {
	p.serversMut.Lock()
	defer p.serversMut.Unlock()
	for serverName, srv := range p.servers {
		srv.prune(ctx, func(c idb.Connection) bool {
			return c.IsAlive() && !srv.tooOld(c, p.config.MaxLifetime)
		})
		if srv.size() == 0 {
			delete(p.servers, serverName)
		}
	}
}

// Close shuts the pool down: new borrows fail, waiters are released,
// idle connections say GOODBYE, checked out ones are dropped when
// returned.
func (p *Pool) Close(ctx context.Context) {
	p.serversMut.Lock()
	p.closed = true
	for serverName, srv := range p.servers {
		srv.closeAll(ctx)
		if srv.size() == 0 {
			delete(p.servers, serverName)
		}
	}
	p.serversMut.Unlock()

	p.queueMut.Lock()
	for e := p.queue.Front(); e != nil; e = e.Next() {
		item := e.Value.(*qitem)
		item.wakeup <- true
	}
	p.queue.Init()
	p.queueMut.Unlock()
	p.log.Infof(log.Pool, p.logId, "closed")
}

// OnServerError implements bolt.ConnectionErrorListener: an expired
// authorization on one connection invalidates the auth of every other
// connection to the same server.
func (p *Pool) OnServerError(ctx context.Context, conn idb.Connection, err *db.ServerError) error {
	if err.IsAuthorizationExpired() {
		p.serversMut.Lock()
		if srv := p.servers[conn.ServerName()]; srv != nil {
			srv.resetAuthOnAll()
		}
		p.serversMut.Unlock()
	}
	return nil
}

func (p *Pool) OnIoError(ctx context.Context, conn idb.Connection, err error) {
	p.log.Warnf(log.Pool, p.logId, "connection to %s failed: %s", conn.ServerName(), err)
}

func (p *Pool) OnDialError(ctx context.Context, serverName string, err error) {
	p.log.Warnf(log.Pool, p.logId, "could not connect to %s: %s", serverName, err)
}
