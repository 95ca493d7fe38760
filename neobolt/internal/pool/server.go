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
	"container/list"
	"context"
	"sync/atomic"
	"time"

	idb "github.com/neo4j-drivers/neobolt/neobolt/internal/db"
	itime "github.com/neo4j-drivers/neobolt/neobolt/internal/time"
)

// server is the per-address partition of the pool: its idle and busy
// connections plus slots reserved for dials in progress. Mutation is
// guarded by the pool's lock; busyCount is additionally readable
// without it for least-connected ordering.
type server struct {
	idle         list.List
	busy         list.List
	reservations int
	busyCount    atomic.Int64
}

// numBusy is safe without the pool lock.
func (s *server) numBusy() int {
	return int(s.busyCount.Load())
}

func (s *server) size() int {
	return s.idle.Len() + s.busy.Len() + s.reservations
}

// getIdle pops the most recently returned idle connection and marks it
// busy.
func (s *server) getIdle() idb.Connection {
	e := s.idle.Front()
	if e == nil {
		return nil
	}
	c := s.idle.Remove(e).(idb.Connection)
	s.busy.PushFront(c)
	s.busyCount.Add(1)
	return c
}

// registerBusy adds a freshly dialed connection as checked out.
func (s *server) registerBusy(c idb.Connection) {
	s.busy.PushFront(c)
	s.busyCount.Add(1)
}

// returnBusy makes a busy connection idle again.
func (s *server) returnBusy(c idb.Connection) {
	s.removeBusy(c)
	s.idle.PushFront(c)
}

func (s *server) removeBusy(c idb.Connection) {
	for e := s.busy.Front(); e != nil; e = e.Next() {
		if e.Value.(idb.Connection) == c {
			s.busy.Remove(e)
			s.busyCount.Add(-1)
			return
		}
	}
}

// prune closes and removes all idle connections the keep predicate
// rejects.
func (s *server) prune(ctx context.Context, keep func(c idb.Connection) bool) {
	e := s.idle.Front()
	for e != nil {
		next := e.Next()
		c := e.Value.(idb.Connection)
		if !keep(c) {
			s.idle.Remove(e)
			go c.Close(ctx)
		}
		e = next
	}
}

func (s *server) tooOld(c idb.Connection, maxLifetime time.Duration) bool {
	return maxLifetime > 0 && itime.Since(c.Birthdate()) >= maxLifetime
}

// resetAuthOnAll marks the auth of every connection of this server as
// invalidated, idle and busy alike.
func (s *server) resetAuthOnAll() {
	for e := s.idle.Front(); e != nil; e = e.Next() {
		e.Value.(idb.Connection).ResetAuth()
	}
	for e := s.busy.Front(); e != nil; e = e.Next() {
		e.Value.(idb.Connection).ResetAuth()
	}
}

func (s *server) closeAll(ctx context.Context) {
	for e := s.idle.Front(); e != nil; e = e.Next() {
		c := e.Value.(idb.Connection)
		go c.Close(ctx)
	}
	s.idle.Init()
	// Busy connections discard themselves on return
}
