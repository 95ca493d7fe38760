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

// Package dbtype contains definitions of the value types the database
// exchanges with client code: graph entities, spatial points and temporal
// values.
package dbtype

import "fmt"

// Entity is implemented by Node and Relationship.
type Entity interface {
	// GetId returns the legacy numeric identity of the entity.
	//
	// Deprecated: identities are not guaranteed to be stable across
	// transactions, use GetElementId instead.
	GetId() int64
	// GetElementId returns the server-assigned element identifier,
	// available from Bolt 5.0.
	GetElementId() string
	GetProperties() map[string]any
}

// Node represents a node in the graph.
type Node struct {
	// Deprecated: Id exists for servers that predate element ids, use
	// ElementId instead.
	Id        int64
	ElementId string
	Labels    []string
	Props     map[string]any
}

func (n Node) GetId() int64                 { return n.Id }
func (n Node) GetElementId() string         { return n.ElementId }
func (n Node) GetProperties() map[string]any { return n.Props }

// Equal reports whether both nodes denote the same database entity.
// Element ids are authoritative when both sides carry one, otherwise the
// legacy numeric ids are compared.
func (n Node) Equal(other Node) bool {
	if n.ElementId != "" && other.ElementId != "" {
		return n.ElementId == other.ElementId
	}
	return n.Id == other.Id
}

// Relationship represents a relationship between two nodes in the graph.
type Relationship struct {
	// Deprecated: Id exists for servers that predate element ids, use
	// ElementId instead.
	Id        int64
	ElementId string
	// Deprecated: use StartElementId instead.
	StartId        int64
	StartElementId string
	// Deprecated: use EndElementId instead.
	EndId        int64
	EndElementId string
	Type         string
	Props        map[string]any
}

func (r Relationship) GetId() int64                 { return r.Id }
func (r Relationship) GetElementId() string         { return r.ElementId }
func (r Relationship) GetProperties() map[string]any { return r.Props }

// Equal reports whether both relationships denote the same database
// entity, following the same rules as Node.Equal.
func (r Relationship) Equal(other Relationship) bool {
	if r.ElementId != "" && other.ElementId != "" {
		return r.ElementId == other.ElementId
	}
	return r.Id == other.Id
}

// Path represents a walk through the graph: len(Relationships) hops over
// len(Relationships)+1 nodes. A path may consist of a single node and no
// relationships.
type Path struct {
	Nodes         []Node
	Relationships []Relationship
}

// NewPath builds a path and verifies its shape: nodes and relationships
// alternate and the endpoints of each relationship match its neighbouring
// nodes (in either direction).
func NewPath(nodes []Node, relationships []Relationship) (Path, error) {
	if len(nodes) == 0 {
		return Path{}, fmt.Errorf("path must contain at least one node")
	}
	if len(nodes) != len(relationships)+1 {
		return Path{}, fmt.Errorf(
			"path with %d relationships must contain %d nodes, got %d",
			len(relationships), len(relationships)+1, len(nodes))
	}
	for i, rel := range relationships {
		prev, next := nodes[i], nodes[i+1]
		forward := matches(rel.StartId, rel.StartElementId, prev) && matches(rel.EndId, rel.EndElementId, next)
		backward := matches(rel.StartId, rel.StartElementId, next) && matches(rel.EndId, rel.EndElementId, prev)
		if !forward && !backward {
			return Path{}, fmt.Errorf(
				"relationship %d of path does not connect its neighbouring nodes", i)
		}
	}
	return Path{Nodes: nodes, Relationships: relationships}, nil
}

// NewUnsafePath builds a path without verifying its shape. Intended for
// callers that have already validated the input.
func NewUnsafePath(nodes []Node, relationships []Relationship) Path {
	return Path{Nodes: nodes, Relationships: relationships}
}

func matches(id int64, elementId string, n Node) bool {
	if elementId != "" && n.ElementId != "" {
		return elementId == n.ElementId
	}
	return id == n.Id
}
