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

package bolt

import (
	"github.com/neo4j-drivers/neobolt/neobolt/db"
	idb "github.com/neo4j-drivers/neobolt/neobolt/internal/db"
)

// success is the decoded metadata of a SUCCESS response. Which fields
// are populated depends on the request the response answers.
type success struct {
	fields             []string
	tfirst             int64
	qid                int64
	bookmark           string
	connectionId       string
	server             string
	db                 string
	hasMore            bool
	tlast              int64
	routingTable       *idb.RoutingTable
	configurationHints map[string]any
	statementType      string
	counters           map[string]int
	containsSystemUpdates *bool
	containsUpdates       *bool
}

type ignored struct{}

func (s *success) summary() *db.Summary {
	return &db.Summary{
		Bookmark:              s.bookmark,
		StmntType:             statementTypeOf(s.statementType),
		Counters:              s.counters,
		TLast:                 s.tlast,
		Database:              s.db,
		ContainsSystemUpdates: s.containsSystemUpdates,
		ContainsUpdates:       s.containsUpdates,
	}
}

func statementTypeOf(t string) db.StatementType {
	switch t {
	case "r":
		return db.StatementTypeRead
	case "w":
		return db.StatementTypeWrite
	case "rw":
		return db.StatementTypeReadWrite
	case "s":
		return db.StatementTypeSchemaWrite
	default:
		return db.StatementTypeUnknown
	}
}
