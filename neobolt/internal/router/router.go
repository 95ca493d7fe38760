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

// Package router caches a routing table per database and refreshes it
// through the ROUTE discovery procedure. Thread safe.
package router

import (
	"context"
	"sync"
	"time"

	idb "github.com/neo4j-drivers/neobolt/neobolt/internal/db"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/errorutil"
	itime "github.com/neo4j-drivers/neobolt/neobolt/internal/time"
	"github.com/neo4j-drivers/neobolt/neobolt/log"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
)

// How long a writer that bounced a write stays out of selection.
const badWriterPenalty = 5 * time.Second

type routerPool interface {
	Borrow(ctx context.Context, getServerNames func() []string, wait bool, boltLogger idb.BoltLogger,
		livenessCheckThreshold time.Duration, auth *idb.ReAuthToken) (idb.Connection, error)
	Return(ctx context.Context, c idb.Connection)
}

type databaseRouter struct {
	dueUnix int64
	table   *idb.RoutingTable
}

type Router struct {
	routerContext map[string]string
	pool          routerPool
	dbRouters     map[string]*databaseRouter
	updating      singleflight.Group
	dbRoutersMut  sync.Mutex
	rootRouter    string
	getRouters    func() []string
	log           log.Logger
	logId         string
	homeDb        *HomeDbCache
	badWriters    map[string]map[string]time.Time
}

// New creates a router seeded with rootRouter. getRouters, when not
// nil, expands the seed into several physical addresses on every
// refresh (address resolver).
func New(rootRouter string, getRouters func() []string, routerContext map[string]string,
	connectionPool routerPool, logger log.Logger, logId string) *Router {
	r := &Router{
		rootRouter:    rootRouter,
		getRouters:    getRouters,
		routerContext: routerContext,
		pool:          connectionPool,
		dbRouters:     make(map[string]*databaseRouter),
		log:           logger,
		logId:         logId,
		homeDb:        NewHomeDbCache(0),
		badWriters:    make(map[string]map[string]time.Time),
	}
	r.log.Infof(log.Router, r.logId, "created with context %v", routerContext)
	return r
}

// normalizeDatabase folds a database name to its canonical form; the
// server treats names case insensitively. A Caser carries state and is
// not safe for concurrent use, so each call gets its own.
func (r *Router) normalizeDatabase(database string) string {
	if database == idb.DefaultDatabase {
		return database
	}
	return cases.Fold().String(database)
}

// getOrUpdateTable returns a fresh table for the database, refreshing
// at most once concurrently per database.
func (r *Router) getOrUpdateTable(ctx context.Context, bookmarks func(context.Context) ([]string, error),
	database string, auth *idb.ReAuthToken, boltLogger idb.BoltLogger) (*idb.RoutingTable, error) {
	database = r.normalizeDatabase(database)

	r.dbRoutersMut.Lock()
	dbRouter := r.dbRouters[database]
	if dbRouter != nil && itime.Now().Unix() < dbRouter.dueUnix {
		table := dbRouter.table
		r.dbRoutersMut.Unlock()
		return table, nil
	}
	r.dbRoutersMut.Unlock()

	result, err, _ := r.updating.Do(database, func() (any, error) {
		// The table may have been refreshed while waiting for the
		// single flight.
		r.dbRoutersMut.Lock()
		dbRouter := r.dbRouters[database]
		if dbRouter != nil && itime.Now().Unix() < dbRouter.dueUnix {
			table := dbRouter.table
			r.dbRoutersMut.Unlock()
			return table, nil
		}
		r.dbRoutersMut.Unlock()
		return r.readAndStoreTable(ctx, bookmarks, database, auth, boltLogger)
	})
	if err != nil {
		return nil, err
	}
	return result.(*idb.RoutingTable), nil
}

func (r *Router) readAndStoreTable(ctx context.Context, bookmarks func(context.Context) ([]string, error),
	database string, auth *idb.ReAuthToken, boltLogger idb.BoltLogger) (*idb.RoutingTable, error) {
	bms, err := bookmarks(ctx)
	if err != nil {
		return nil, err
	}

	routers := r.seedRouters(database)
	r.log.Infof(log.Router, r.logId, "refreshing routing table for %q from any of %v", database, routers)
	table, err := readTable(ctx, r.pool, routers, r.routerContext, bms, database, "", auth, boltLogger)
	if err != nil {
		r.log.Error(log.Router, r.logId, err)
		return nil, errorutil.WrapError(err)
	}
	if len(table.Routers) == 0 {
		// A fresh table must know where to refresh from next time
		table.Routers = routers
	}

	now := itime.Now()
	r.dbRoutersMut.Lock()
	r.dbRouters[database] = &databaseRouter{
		table:   table,
		dueUnix: now.Add(time.Duration(table.TimeToLive) * time.Second).Unix(),
	}
	r.dbRoutersMut.Unlock()
	r.log.Debugf(log.Router, r.logId, "new routing table for %q, TTL %d", database, table.TimeToLive)
	return table, nil
}

// seedRouters is the pre-seed for a refresh: the resolved root
// address(es) first, then the routers of the current table.
func (r *Router) seedRouters(database string) []string {
	var seeds []string
	if r.getRouters != nil {
		seeds = append(seeds, r.getRouters()...)
	} else {
		seeds = append(seeds, r.rootRouter)
	}
	r.dbRoutersMut.Lock()
	if dbRouter := r.dbRouters[database]; dbRouter != nil {
		seeds = append(seeds, dbRouter.table.Routers...)
	}
	r.dbRoutersMut.Unlock()

	seen := make(map[string]struct{}, len(seeds))
	deduped := seeds[:0]
	for _, s := range seeds {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		deduped = append(deduped, s)
	}
	return deduped
}

func (r *Router) GetOrUpdateReaders(ctx context.Context, bookmarks func(context.Context) ([]string, error),
	database string, auth *idb.ReAuthToken, boltLogger idb.BoltLogger) ([]string, error) {
	table, err := r.getOrUpdateTable(ctx, bookmarks, database, auth, boltLogger)
	if err != nil {
		return nil, err
	}
	return table.Readers, nil
}

func (r *Router) GetOrUpdateWriters(ctx context.Context, bookmarks func(context.Context) ([]string, error),
	database string, auth *idb.ReAuthToken, boltLogger idb.BoltLogger) ([]string, error) {
	table, err := r.getOrUpdateTable(ctx, bookmarks, database, auth, boltLogger)
	if err != nil {
		return nil, err
	}
	return r.withoutBadWriters(database, table.Writers), nil
}

// Readers returns the cached readers without attempting a refresh.
func (r *Router) Readers(database string) []string {
	database = r.normalizeDatabase(database)
	r.dbRoutersMut.Lock()
	defer r.dbRoutersMut.Unlock()
	if dbRouter := r.dbRouters[database]; dbRouter != nil {
		return dbRouter.table.Readers
	}
	return nil
}

// Writers returns the cached writers without attempting a refresh,
// skipping writers recently seen to bounce writes.
func (r *Router) Writers(database string) []string {
	database = r.normalizeDatabase(database)
	r.dbRoutersMut.Lock()
	var writers []string
	if dbRouter := r.dbRouters[database]; dbRouter != nil {
		writers = dbRouter.table.Writers
	}
	r.dbRoutersMut.Unlock()
	return r.withoutBadWriters(database, writers)
}

func (r *Router) withoutBadWriters(database string, writers []string) []string {
	r.dbRoutersMut.Lock()
	defer r.dbRoutersMut.Unlock()
	penalized := r.badWriters[database]
	if len(penalized) == 0 {
		return writers
	}
	now := itime.Now()
	kept := make([]string, 0, len(writers))
	for _, w := range writers {
		if until, ok := penalized[w]; ok && now.Before(until) {
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		// Better a suspicious writer than none at all
		return writers
	}
	return kept
}

// GetNameOfDefaultDatabase resolves which database the server considers
// home for the principal, using the cache when it can.
func (r *Router) GetNameOfDefaultDatabase(ctx context.Context, bookmarks []string, impersonatedUser string,
	auth *idb.ReAuthToken, boltLogger idb.BoltLogger) (string, error) {
	key, err := r.homeDbKey(ctx, impersonatedUser, auth)
	if err == nil {
		if name, ok := r.homeDb.Get(key); ok {
			r.log.Debugf(log.Router, r.logId, "home database cache hit: %q", name)
			return name, nil
		}
	}

	routers := r.seedRouters(idb.DefaultDatabase)
	table, err := readTable(ctx, r.pool, routers, r.routerContext, bookmarks,
		idb.DefaultDatabase, impersonatedUser, auth, boltLogger)
	if err != nil {
		return "", errorutil.WrapError(err)
	}
	return table.DatabaseName, nil
}

// CacheHomeDb records the home database a RUN/BEGIN reply resolved for
// the principal.
func (r *Router) CacheHomeDb(ctx context.Context, impersonatedUser string, auth *idb.ReAuthToken, database string) {
	key, err := r.homeDbKey(ctx, impersonatedUser, auth)
	if err != nil {
		return
	}
	r.homeDb.Put(key, r.normalizeDatabase(database))
}

// InvalidateHomeDb drops the cached entry, done when the server's reply
// disagreed with the optimistically routed database.
func (r *Router) InvalidateHomeDb(ctx context.Context, impersonatedUser string, auth *idb.ReAuthToken) {
	key, err := r.homeDbKey(ctx, impersonatedUser, auth)
	if err != nil {
		return
	}
	r.homeDb.Delete(key)
}

func (r *Router) homeDbKey(ctx context.Context, impersonatedUser string, reAuth *idb.ReAuthToken) (string, error) {
	token, err := reAuth.Manager.GetAuthToken(ctx)
	if err != nil {
		return "", err
	}
	return HomeDbCacheKey(impersonatedUser, token), nil
}

// Invalidate discards the cached table of a database, forcing discovery
// on next use.
func (r *Router) Invalidate(database string) {
	database = r.normalizeDatabase(database)
	r.log.Infof(log.Router, r.logId, "invalidating routing table for %q", database)
	r.dbRoutersMut.Lock()
	defer r.dbRoutersMut.Unlock()
	if dbRouter := r.dbRouters[database]; dbRouter != nil {
		dbRouter.dueUnix = 0
	}
}

// InvalidateWriter penalizes one writer of a database after it bounced
// a write, keeping it out of selection for a grace window.
func (r *Router) InvalidateWriter(database, server string) {
	database = r.normalizeDatabase(database)
	r.dbRoutersMut.Lock()
	defer r.dbRoutersMut.Unlock()
	penalized := r.badWriters[database]
	if penalized == nil {
		penalized = make(map[string]time.Time)
		r.badWriters[database] = penalized
	}
	penalized[server] = itime.Now().Add(badWriterPenalty)
}

// InvalidateServer removes a dead server from every cached table.
func (r *Router) InvalidateServer(server string) {
	r.dbRoutersMut.Lock()
	defer r.dbRoutersMut.Unlock()
	for _, dbRouter := range r.dbRouters {
		t := dbRouter.table
		t.Routers = withoutServer(t.Routers, server)
		t.Readers = withoutServer(t.Readers, server)
		t.Writers = withoutServer(t.Writers, server)
	}
}

func withoutServer(servers []string, server string) []string {
	kept := make([]string, 0, len(servers))
	for _, s := range servers {
		if s != server {
			kept = append(kept, s)
		}
	}
	return kept
}

// CleanUp drops expired routing tables.
func (r *Router) CleanUp() {
	now := itime.Now().Unix()
	r.dbRoutersMut.Lock()
	defer r.dbRoutersMut.Unlock()
	for database, dbRouter := range r.dbRouters {
		if now > dbRouter.dueUnix {
			delete(r.dbRouters, database)
		}
	}
}
