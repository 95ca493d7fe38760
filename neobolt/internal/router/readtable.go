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

package router

import (
	"context"

	idb "github.com/neo4j-drivers/neobolt/neobolt/internal/db"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/errorutil"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/pool"
)

// readTable asks the given routers for a fresh routing table, one at a
// time, until one answers. Failures that indicate a caller mistake
// (unknown database, bad bookmark) abort the loop instead of trying the
// next router.
func readTable(
	ctx context.Context,
	connectionPool routerPool,
	routers []string,
	routerContext map[string]string,
	bookmarks []string,
	database, impersonatedUser string,
	auth *idb.ReAuthToken,
	boltLogger idb.BoltLogger,
) (*idb.RoutingTable, error) {
	var err error = &errorutil.ReadRoutingTableError{}

	for _, router := range routers {
		var conn idb.Connection
		conn, err = connectionPool.Borrow(ctx, staticServer(router), true, boltLogger,
			pool.DefaultLivenessCheckThreshold, auth)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &errorutil.ReadRoutingTableError{Server: router, Err: ctx.Err()}
			}
			if errorutil.IsFatalDuringDiscovery(err) {
				return nil, err
			}
			err = &errorutil.ReadRoutingTableError{Server: router, Err: err}
			continue
		}

		var table *idb.RoutingTable
		table, err = conn.GetRoutingTable(ctx, routerContext, bookmarks, database, impersonatedUser)
		connectionPool.Return(ctx, conn)
		if err == nil {
			return table, nil
		}
		if errorutil.IsFatalDuringDiscovery(err) {
			return nil, err
		}
		err = &errorutil.ReadRoutingTableError{Server: router, Err: err}
	}
	return nil, err
}

func staticServer(server string) func() []string {
	return func() []string {
		return []string{server}
	}
}
