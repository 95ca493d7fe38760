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

package config

import (
	"github.com/neo4j-drivers/neobolt/neobolt/auth"
	bm "github.com/neo4j-drivers/neobolt/neobolt/bookmarks"
	"github.com/neo4j-drivers/neobolt/neobolt/log"
	"github.com/neo4j-drivers/neobolt/neobolt/notifications"
)

// AccessMode selects which kind of cluster member statements of a
// session are routed to.
type AccessMode int

const (
	// AccessModeWrite routes to a writer.
	AccessModeWrite AccessMode = 0
	// AccessModeRead routes to a reader.
	AccessModeRead AccessMode = 1
)

// SessionConfig configures one session; the zero value uses safe
// defaults.
type SessionConfig struct {
	// AccessMode applies to Session.Run and explicit transactions.
	// ExecuteRead and ExecuteWrite pick their own.
	AccessMode AccessMode
	// Bookmarks this session must observe before executing anything.
	Bookmarks bm.Bookmarks
	// DatabaseName targets all statements of the session at a specific
	// database. Empty means the principal's home database, resolved by
	// the server.
	DatabaseName string
	// FetchSize overrides the driver's record batch size for this
	// session.
	FetchSize int
	// ImpersonatedUser runs the session's statements as another user,
	// provided the authenticated user is allowed to.
	ImpersonatedUser string
	// BookmarkManager shares bookmarks between sessions. Set the same
	// manager on all sessions that must observe each other's writes.
	BookmarkManager bm.BookmarkManager
	// NotificationsMinSeverity overrides the driver-level setting for
	// this session (Bolt >= 5.2).
	NotificationsMinSeverity notifications.NotificationMinimumSeverityLevel
	// NotificationsDisabledCategories overrides the driver-level
	// setting for this session (Bolt >= 5.2).
	NotificationsDisabledCategories notifications.NotificationDisabledCategories
	// BoltLogger traces the raw Bolt exchange of the session's
	// connections.
	BoltLogger log.BoltLogger
	// Auth authenticates this session with different credentials than
	// the driver. Requires Bolt 5.1 or later.
	Auth *auth.Token
}
