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

// Package db defines the contract between the Bolt engine and the
// layers above it: the connection pool, the router and the session.
package db

import (
	"context"
	"time"

	"github.com/neo4j-drivers/neobolt/neobolt/db"
	"github.com/neo4j-drivers/neobolt/neobolt/notifications"
)

// DefaultDatabase is the sentinel meaning "whatever database the server
// resolves for this principal".
const DefaultDatabase = ""

type AccessMode int

const (
	WriteMode AccessMode = 0
	ReadMode  AccessMode = 1
)

// TxHandle is an opaque handle to a transaction on a connection.
type TxHandle uint64

// StreamHandle is an opaque handle to a result stream on a connection.
type StreamHandle any

// Command is one statement to run.
type Command struct {
	Cypher    string
	Params    map[string]any
	FetchSize int
}

// NotificationConfig is the per-statement notification filter, only
// expressible from Bolt 5.2 on.
type NotificationConfig struct {
	MinSev  notifications.NotificationMinimumSeverityLevel
	DisCats notifications.NotificationDisabledCategories
}

// ToMeta writes the filter into an outgoing HELLO/BEGIN/RUN extra map.
func (n NotificationConfig) ToMeta(meta map[string]any) {
	if n.MinSev != notifications.DefaultLevel {
		meta["notifications_minimum_severity"] = string(n.MinSev)
	}
	if n.DisCats.DisablesNone() {
		meta["notifications_disabled_categories"] = []string{}
	} else if cats := n.DisCats.DisabledCategories(); len(cats) > 0 {
		rawCats := make([]string, len(cats))
		for i, cat := range cats {
			rawCats[i] = string(cat)
		}
		meta["notifications_disabled_categories"] = rawCats
	}
}

// TxConfig carries everything a BEGIN or auto-commit RUN needs beyond
// the statement itself.
type TxConfig struct {
	Mode               AccessMode
	Bookmarks          []string
	Timeout            time.Duration
	Meta               map[string]any
	ImpersonatedUser   string
	NotificationConfig NotificationConfig
}

// RoutingTable is the per-database view of the cluster, as answered by a
// ROUTE request.
type RoutingTable struct {
	TimeToLive   int // Seconds
	DatabaseName string
	Routers      []string
	Readers      []string
	Writers      []string
}

// Connection is a live, authenticated Bolt connection. Implementations
// are not thread safe; a connection has exactly one user at a time.
type Connection interface {
	TxBegin(ctx context.Context, txConfig TxConfig, syncMessages bool) (TxHandle, error)
	TxRollback(ctx context.Context, tx TxHandle) error
	TxCommit(ctx context.Context, tx TxHandle) error
	Run(ctx context.Context, cmd Command, txConfig TxConfig) (StreamHandle, error)
	RunTx(ctx context.Context, tx TxHandle, cmd Command) (StreamHandle, error)
	// Keys returns the field names of the stream without pulling records.
	Keys(streamHandle StreamHandle) ([]string, error)
	// Next moves to the next record in the stream and returns it, or the
	// summary when the stream is done, or an error.
	Next(ctx context.Context, streamHandle StreamHandle) (*db.Record, *db.Summary, error)
	// Consume discards all remaining records of the stream server-side
	// and returns the summary.
	Consume(ctx context.Context, streamHandle StreamHandle) (*db.Summary, error)
	// Buffer pulls all remaining records of the stream into client
	// memory, detaching the stream from the connection.
	Buffer(ctx context.Context, streamHandle StreamHandle) error
	// Bookmark returns the last bookmark the server handed out.
	Bookmark() string
	ServerName() string
	// ServerVersion returns the server agent string.
	ServerVersion() string
	// IsAlive reports false once the connection is defunct.
	IsAlive() bool
	// HasFailed reports whether the connection is in its failed state and
	// needs a reset before reuse.
	HasFailed() bool
	Birthdate() time.Time
	IdleDate() time.Time
	// Reset brings the connection back to its ready state and clears all
	// session state from it.
	Reset(ctx context.Context)
	ForceReset(ctx context.Context)
	Close(ctx context.Context)
	// SelectDatabase routes all subsequent statements on this connection
	// to the given database.
	SelectDatabase(database string)
	Database() string
	// HomeDatabase returns the database name the server resolved for the
	// current principal, from Bolt 5.8 on, or "".
	HomeDatabase() string
	Version() db.ProtocolVersion
	ReAuth(ctx context.Context, token *ReAuthToken) error
	// ResetAuth marks the auth the connection was established with as
	// invalidated; the next ReAuth will renegotiate.
	ResetAuth()
	Telemetry(api TelemetryAPI, onSuccess func())
	GetRoutingTable(ctx context.Context, context map[string]string, bookmarks []string,
		database, impersonatedUser string) (*RoutingTable, error)
	SetBoltLogger(logger BoltLogger)
}

// BoltLogger mirrors log.BoltLogger without importing it, keeping this
// package free of dependencies on the public surface.
type BoltLogger interface {
	LogClientMessage(id, msg string, args ...any)
	LogServerMessage(id, msg string, args ...any)
}

// TelemetryAPI enumerates the driver APIs reported via TELEMETRY
// messages (Bolt 5.4+).
type TelemetryAPI int

const (
	TelemetryManagedTransaction   TelemetryAPI = 0
	TelemetryUnmanagedTransaction TelemetryAPI = 1
	TelemetryAutoCommit           TelemetryAPI = 2
	TelemetryExecuteQuery         TelemetryAPI = 3
)
