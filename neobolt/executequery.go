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

	"github.com/neo4j-drivers/neobolt/neobolt/auth"
	bm "github.com/neo4j-drivers/neobolt/neobolt/bookmarks"
	"github.com/neo4j-drivers/neobolt/neobolt/config"
	"github.com/neo4j-drivers/neobolt/neobolt/log"
)

// RoutingControl selects which members of the cluster ExecuteQuery may
// route to.
type RoutingControl int

const (
	// Write routes to a writer.
	Write RoutingControl = iota
	// Read routes to a reader.
	Read
)

// ExecuteQueryConfiguration customizes one ExecuteQuery call.
type ExecuteQueryConfiguration struct {
	Routing          RoutingControl
	ImpersonatedUser string
	Database         string
	// BookmarksManager defaults to the driver-level manager that keeps
	// all ExecuteQuery calls causally chained. Set to nil through
	// ExecuteQueryWithoutBookmarkManager to opt out.
	BookmarksManager bm.BookmarkManager
	// Auth runs this call under different credentials, most specific
	// override wins over the driver-level manager. Bolt 5.1+.
	Auth *auth.Token
	BoltLogger log.BoltLogger
}

// ExecuteQueryWithReadersRouting routes the query to a reader.
func ExecuteQueryWithReadersRouting() func(*ExecuteQueryConfiguration) {
	return func(c *ExecuteQueryConfiguration) { c.Routing = Read }
}

// ExecuteQueryWithWritersRouting routes the query to a writer.
func ExecuteQueryWithWritersRouting() func(*ExecuteQueryConfiguration) {
	return func(c *ExecuteQueryConfiguration) { c.Routing = Write }
}

// ExecuteQueryWithDatabase targets the query at a database.
func ExecuteQueryWithDatabase(database string) func(*ExecuteQueryConfiguration) {
	return func(c *ExecuteQueryConfiguration) { c.Database = database }
}

// ExecuteQueryWithImpersonatedUser runs the query as another user.
func ExecuteQueryWithImpersonatedUser(user string) func(*ExecuteQueryConfiguration) {
	return func(c *ExecuteQueryConfiguration) { c.ImpersonatedUser = user }
}

// ExecuteQueryWithBookmarkManager substitutes the bookmark manager the
// call threads bookmarks through.
func ExecuteQueryWithBookmarkManager(manager bm.BookmarkManager) func(*ExecuteQueryConfiguration) {
	return func(c *ExecuteQueryConfiguration) { c.BookmarksManager = manager }
}

// ExecuteQueryWithoutBookmarkManager detaches the call from every
// bookmark manager; it observes and produces no causal chaining.
func ExecuteQueryWithoutBookmarkManager() func(*ExecuteQueryConfiguration) {
	return func(c *ExecuteQueryConfiguration) { c.BookmarksManager = nil }
}

// ExecuteQueryWithAuthToken runs the query under specific credentials.
func ExecuteQueryWithAuthToken(token auth.Token) func(*ExecuteQueryConfiguration) {
	return func(c *ExecuteQueryConfiguration) { c.Auth = &token }
}

// EagerResult is a fully fetched result.
type EagerResult struct {
	Keys    []string
	Records []*Record
	Summary ResultSummary
}

// ExecuteQuery runs the query in a managed transaction with retry,
// collects the whole result eagerly and releases its connection before
// returning. Bookmarks pass through the configured bookmark manager,
// which chains independent ExecuteQuery calls causally.
func ExecuteQuery(ctx context.Context, d Driver, cypher string, params map[string]any,
	settings ...func(*ExecuteQueryConfiguration)) (*EagerResult, error) {
	configuration := ExecuteQueryConfiguration{
		BookmarksManager: d.ExecuteQueryBookmarkManager(),
	}
	for _, setting := range settings {
		setting(&configuration)
	}

	session := d.NewSession(ctx, config.SessionConfig{
		DatabaseName:     configuration.Database,
		ImpersonatedUser: configuration.ImpersonatedUser,
		BookmarkManager:  configuration.BookmarksManager,
		Auth:             configuration.Auth,
		BoltLogger:       configuration.BoltLogger,
	})
	defer func() { _ = session.Close(ctx) }()

	work := func(tx ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		keys, err := res.Keys()
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return &EagerResult{Keys: keys, Records: records, Summary: summary}, nil
	}

	var eager any
	var err error
	switch configuration.Routing {
	case Read:
		eager, err = session.executeQueryRead(ctx, work)
	default:
		eager, err = session.executeQueryWrite(ctx, work)
	}
	if err != nil {
		return nil, err
	}
	return eager.(*EagerResult), nil
}
