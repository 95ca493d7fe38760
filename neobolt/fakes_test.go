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
	"time"

	idb "github.com/neo4j-drivers/neobolt/neobolt/internal/db"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/router"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/testutil"
)

// poolFake hands out scripted connections in order.
type poolFake struct {
	conns       []*testutil.ConnFake
	next        int
	borrowErr   error
	borrowed    int
	returned    int
	borrowedTo  []string
	cleanedUp   int
}

func (p *poolFake) Borrow(_ context.Context, getServerNames func() []string, _ bool, _ idb.BoltLogger,
	_ time.Duration, _ *idb.ReAuthToken) (idb.Connection, error) {
	if p.borrowErr != nil {
		return nil, p.borrowErr
	}
	names := getServerNames()
	if len(names) > 0 {
		p.borrowedTo = append(p.borrowedTo, names[0])
	}
	if p.next >= len(p.conns) {
		p.next = len(p.conns) - 1
	}
	conn := p.conns[p.next]
	p.next++
	p.borrowed++
	return conn, nil
}

func (p *poolFake) Return(context.Context, idb.Connection) {
	p.returned++
}

func (p *poolFake) CleanUp(context.Context) {
	p.cleanedUp++
}

// routerFake answers with fixed reader/writer sets.
type routerFake struct {
	readers      []string
	writers      []string
	defaultDb    string
	invalidated  []string
	cachedHomeDb map[string]string
}

func newRouterFake() *routerFake {
	return &routerFake{
		readers:      []string{"reader:7687"},
		writers:      []string{"writer:7687"},
		cachedHomeDb: map[string]string{},
	}
}

func (r *routerFake) GetOrUpdateReaders(context.Context, func(context.Context) ([]string, error), string,
	*idb.ReAuthToken, idb.BoltLogger) ([]string, error) {
	return r.readers, nil
}

func (r *routerFake) GetOrUpdateWriters(context.Context, func(context.Context) ([]string, error), string,
	*idb.ReAuthToken, idb.BoltLogger) ([]string, error) {
	return r.writers, nil
}

func (r *routerFake) Readers(string) []string { return r.readers }
func (r *routerFake) Writers(string) []string { return r.writers }

func (r *routerFake) GetNameOfDefaultDatabase(context.Context, []string, string,
	*idb.ReAuthToken, idb.BoltLogger) (string, error) {
	return r.defaultDb, nil
}

func (r *routerFake) CacheHomeDb(ctx context.Context, user string, reAuth *idb.ReAuthToken, database string) {
	token, _ := reAuth.Manager.GetAuthToken(ctx)
	r.cachedHomeDb[router.HomeDbCacheKey(user, token)] = database
}

func (r *routerFake) InvalidateHomeDb(ctx context.Context, user string, reAuth *idb.ReAuthToken) {
	token, _ := reAuth.Manager.GetAuthToken(ctx)
	delete(r.cachedHomeDb, router.HomeDbCacheKey(user, token))
}

func (r *routerFake) Invalidate(database string) {
	r.invalidated = append(r.invalidated, database)
}

func (r *routerFake) InvalidateWriter(string, string) {}
func (r *routerFake) InvalidateServer(string)         {}
func (r *routerFake) CleanUp()                        {}
