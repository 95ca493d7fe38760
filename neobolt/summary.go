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
	"time"

	"github.com/neo4j-drivers/neobolt/neobolt/db"
)

// StatementType denotes what kind of operations a completed statement
// performed.
type StatementType int

const (
	StatementTypeUnknown     StatementType = StatementType(db.StatementTypeUnknown)
	StatementTypeReadOnly    StatementType = StatementType(db.StatementTypeRead)
	StatementTypeReadWrite   StatementType = StatementType(db.StatementTypeReadWrite)
	StatementTypeWriteOnly   StatementType = StatementType(db.StatementTypeWrite)
	StatementTypeSchemaWrite StatementType = StatementType(db.StatementTypeSchemaWrite)
)

// ResultSummary is the server's account of a fully consumed statement.
type ResultSummary interface {
	// Query returns the statement text and parameters this summary is
	// about.
	Query() (cypher string, params map[string]any)
	// StatementType reports whether the statement read, wrote or
	// changed the schema.
	StatementType() StatementType
	// Counters returns the change counters of the statement.
	Counters() Counters
	// Database returns the name of the database the statement ran
	// against.
	Database() string
	// Server describes the server that executed the statement.
	Server() ServerInfo
	// ResultAvailableAfter is the time it took the server to make the
	// first record available.
	ResultAvailableAfter() time.Duration
	// ResultConsumedAfter is the time the server spent streaming.
	ResultConsumedAfter() time.Duration
}

// Counters counts the changes a statement caused.
type Counters interface {
	NodesCreated() int
	NodesDeleted() int
	RelationshipsCreated() int
	RelationshipsDeleted() int
	PropertiesSet() int
	LabelsAdded() int
	LabelsRemoved() int
	IndexesAdded() int
	IndexesRemoved() int
	ConstraintsAdded() int
	ConstraintsRemoved() int
	// ContainsUpdates reports whether the statement changed any data.
	ContainsUpdates() bool
	// ContainsSystemUpdates reports whether the statement changed the
	// system graph.
	ContainsSystemUpdates() bool
}

type resultSummary struct {
	sum    *db.Summary
	cypher string
	params map[string]any
}

func (s *resultSummary) Query() (string, map[string]any) {
	return s.cypher, s.params
}

func (s *resultSummary) StatementType() StatementType {
	return StatementType(s.sum.StmntType)
}

func (s *resultSummary) Counters() Counters {
	return &counters{stats: s.sum.Counters, sum: s.sum}
}

func (s *resultSummary) Database() string {
	return s.sum.Database
}

func (s *resultSummary) Server() ServerInfo {
	return simpleServerInfo{
		address: s.sum.ServerName,
		agent:   s.sum.Agent,
		protocolVersion: db.ProtocolVersion{
			Major: s.sum.Major,
			Minor: s.sum.Minor,
		},
	}
}

func (s *resultSummary) ResultAvailableAfter() time.Duration {
	if s.sum.TFirst < 0 {
		return 0
	}
	return time.Duration(s.sum.TFirst) * time.Millisecond
}

func (s *resultSummary) ResultConsumedAfter() time.Duration {
	if s.sum.TLast < 0 {
		return 0
	}
	return time.Duration(s.sum.TLast) * time.Millisecond
}

type counters struct {
	stats db.Counters
	sum   *db.Summary
}

func (c *counters) NodesCreated() int         { return c.stats["nodes-created"] }
func (c *counters) NodesDeleted() int         { return c.stats["nodes-deleted"] }
func (c *counters) RelationshipsCreated() int { return c.stats["relationships-created"] }
func (c *counters) RelationshipsDeleted() int { return c.stats["relationships-deleted"] }
func (c *counters) PropertiesSet() int        { return c.stats["properties-set"] }
func (c *counters) LabelsAdded() int          { return c.stats["labels-added"] }
func (c *counters) LabelsRemoved() int        { return c.stats["labels-removed"] }
func (c *counters) IndexesAdded() int         { return c.stats["indexes-added"] }
func (c *counters) IndexesRemoved() int       { return c.stats["indexes-removed"] }
func (c *counters) ConstraintsAdded() int     { return c.stats["constraints-added"] }
func (c *counters) ConstraintsRemoved() int   { return c.stats["constraints-removed"] }

func (c *counters) ContainsUpdates() bool {
	if c.sum.ContainsUpdates != nil {
		return *c.sum.ContainsUpdates
	}
	for key, count := range c.stats {
		if key != "contains-updates" && key != "contains-system-updates" && count > 0 {
			return true
		}
	}
	return false
}

func (c *counters) ContainsSystemUpdates() bool {
	if c.sum.ContainsSystemUpdates != nil {
		return *c.sum.ContainsSystemUpdates
	}
	return c.stats["system-updates"] > 0
}
