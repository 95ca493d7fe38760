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
	"testing"
	"time"

	"github.com/neo4j-drivers/neobolt/neobolt/db"
	"github.com/neo4j-drivers/neobolt/neobolt/dbtype"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/packstream"
	"github.com/stretchr/testify/require"
)

// serverPack builds a message the way the server would.
func serverPack(t *testing.T, build func(p *packstream.Packer)) []byte {
	t.Helper()
	p := &packstream.Packer{}
	p.Begin(nil)
	build(p)
	buf, err := p.End()
	require.NoError(t, err)
	return buf
}

func newTestHydrator(utc bool) *hydrator {
	return &hydrator{useUtc: utc, elementIds: utc}
}

func hydrateRecordWith(t *testing.T, h *hydrator, build func(p *packstream.Packer)) *db.Record {
	t.Helper()
	buf := serverPack(t, func(p *packstream.Packer) {
		p.StructHeader(msgRecord, 1)
		p.ListHeader(1)
		build(p)
	})
	msg, err := h.hydrate(buf)
	require.NoError(t, err)
	rec, ok := msg.(*db.Record)
	require.True(t, ok)
	require.Len(t, rec.Values, 1)
	return rec
}

func TestHydrateNode(t *testing.T) {
	rec := hydrateRecordWith(t, newTestHydrator(true), func(p *packstream.Packer) {
		p.StructHeader(structNode, 4)
		p.Int64(42)
		p.Strings([]string{"Person", "Admin"})
		p.MapHeader(1)
		p.String("name")
		p.String("Alice")
		p.String("4:deadbeef:42")
	})
	node, ok := rec.Values[0].(dbtype.Node)
	require.True(t, ok)
	require.Equal(t, int64(42), node.Id)
	require.Equal(t, "4:deadbeef:42", node.ElementId)
	require.Equal(t, []string{"Person", "Admin"}, node.Labels)
	require.Equal(t, map[string]any{"name": "Alice"}, node.Props)
}

func TestHydrateNodeWithoutElementIds(t *testing.T) {
	rec := hydrateRecordWith(t, newTestHydrator(false), func(p *packstream.Packer) {
		p.StructHeader(structNode, 3)
		p.Int64(7)
		p.Strings([]string{"T"})
		p.MapHeader(0)
	})
	node, ok := rec.Values[0].(dbtype.Node)
	require.True(t, ok)
	require.Equal(t, int64(7), node.Id)
	require.Empty(t, node.ElementId)
}

func TestHydrateNodeWrongFieldCountIsBroken(t *testing.T) {
	rec := hydrateRecordWith(t, newTestHydrator(true), func(p *packstream.Packer) {
		p.StructHeader(structNode, 2)
		p.Int64(1)
		p.Strings(nil)
	})
	bv, ok := rec.Values[0].(*dbtype.BrokenValue)
	require.True(t, ok)
	require.Error(t, bv.Err())
}

func TestHydratePath(t *testing.T) {
	rec := hydrateRecordWith(t, newTestHydrator(true), func(p *packstream.Packer) {
		p.StructHeader(structPath, 3)
		p.ListHeader(2)
		p.StructHeader(structNode, 4)
		p.Int64(1)
		p.Strings([]string{"A"})
		p.MapHeader(0)
		p.String("e1")
		p.StructHeader(structNode, 4)
		p.Int64(2)
		p.Strings([]string{"B"})
		p.MapHeader(0)
		p.String("e2")
		p.ListHeader(1)
		p.StructHeader(structUnboundRel, 4)
		p.Int64(3)
		p.String("KNOWS")
		p.MapHeader(0)
		p.String("e3")
		// One hop, forward, to node index 1
		p.ListHeader(2)
		p.Int(1)
		p.Int(1)
	})
	path, ok := rec.Values[0].(dbtype.Path)
	require.True(t, ok)
	require.Len(t, path.Nodes, 2)
	require.Len(t, path.Relationships, 1)
	rel := path.Relationships[0]
	require.Equal(t, "KNOWS", rel.Type)
	require.Equal(t, int64(1), rel.StartId)
	require.Equal(t, int64(2), rel.EndId)
	require.Equal(t, "e1", rel.StartElementId)
	require.Equal(t, "e2", rel.EndElementId)
}

func TestHydratePathBadIndicesIsBroken(t *testing.T) {
	rec := hydrateRecordWith(t, newTestHydrator(true), func(p *packstream.Packer) {
		p.StructHeader(structPath, 3)
		p.ListHeader(1)
		p.StructHeader(structNode, 4)
		p.Int64(1)
		p.Strings(nil)
		p.MapHeader(0)
		p.String("e1")
		p.ListHeader(1)
		p.StructHeader(structUnboundRel, 4)
		p.Int64(3)
		p.String("KNOWS")
		p.MapHeader(0)
		p.String("e3")
		// Node index out of range
		p.ListHeader(2)
		p.Int(1)
		p.Int(9)
	})
	_, ok := rec.Values[0].(*dbtype.BrokenValue)
	require.True(t, ok)
}

func TestHydrateSingleNodePath(t *testing.T) {
	rec := hydrateRecordWith(t, newTestHydrator(true), func(p *packstream.Packer) {
		p.StructHeader(structPath, 3)
		p.ListHeader(1)
		p.StructHeader(structNode, 4)
		p.Int64(1)
		p.Strings(nil)
		p.MapHeader(0)
		p.String("e1")
		p.ListHeader(0)
		p.ListHeader(0)
	})
	path, ok := rec.Values[0].(dbtype.Path)
	require.True(t, ok)
	require.Len(t, path.Nodes, 1)
	require.Empty(t, path.Relationships)
}

func TestHydrateUnknownTimezoneIsBroken(t *testing.T) {
	rec := hydrateRecordWith(t, newTestHydrator(true), func(p *packstream.Packer) {
		p.StructHeader(structDateTimeZoneUtc, 3)
		p.Int64(1_000_000)
		p.Int64(0)
		p.String("Middle_Earth/Hobbiton")
	})
	bv, ok := rec.Values[0].(*dbtype.BrokenValue)
	require.True(t, ok)
	require.Contains(t, bv.Reason, "Middle_Earth/Hobbiton")
}

func TestHydrateLegacyDateTimeOnModernVersionIsBroken(t *testing.T) {
	rec := hydrateRecordWith(t, newTestHydrator(true), func(p *packstream.Packer) {
		p.StructHeader(structDateTimeOffsetLegacy, 3)
		p.Int64(1_000_000)
		p.Int64(0)
		p.Int64(3600)
	})
	_, ok := rec.Values[0].(*dbtype.BrokenValue)
	require.True(t, ok)
}

func TestHydrateUtcDateTimeOnLegacyVersionIsBroken(t *testing.T) {
	rec := hydrateRecordWith(t, newTestHydrator(false), func(p *packstream.Packer) {
		p.StructHeader(structDateTimeOffsetUtc, 3)
		p.Int64(1_000_000)
		p.Int64(0)
		p.Int64(3600)
	})
	_, ok := rec.Values[0].(*dbtype.BrokenValue)
	require.True(t, ok)
}

func TestHydrateUtcDateTime(t *testing.T) {
	rec := hydrateRecordWith(t, newTestHydrator(true), func(p *packstream.Packer) {
		p.StructHeader(structDateTimeOffsetUtc, 3)
		p.Int64(1_000_000_000)
		p.Int64(42)
		p.Int64(3600)
	})
	tm, ok := rec.Values[0].(time.Time)
	require.True(t, ok)
	require.Equal(t, int64(1_000_000_000), tm.Unix())
	require.Equal(t, 42, tm.Nanosecond())
	_, offset := tm.Zone()
	require.Equal(t, 3600, offset)
}

func TestHydratePoint3D(t *testing.T) {
	rec := hydrateRecordWith(t, newTestHydrator(true), func(p *packstream.Packer) {
		p.StructHeader(structPoint3D, 4)
		p.Int64(4979)
		p.Float64(1)
		p.Float64(2)
		p.Float64(3)
	})
	point, ok := rec.Values[0].(dbtype.Point3D)
	require.True(t, ok)
	require.Equal(t, dbtype.Point3D{SpatialRefId: 4979, X: 1, Y: 2, Z: 3}, point)
}

// The value codec must reproduce a decoded point bit for bit.
func TestPointEncodeDecodeRoundTripsBytes(t *testing.T) {
	wire := serverPack(t, func(p *packstream.Packer) {
		p.StructHeader(structPoint3D, 4)
		p.Int64(4979)
		p.Float64(1)
		p.Float64(2)
		p.Float64(3)
	})

	h := newTestHydrator(true)
	h.unp.Reset(wire)
	point := h.value()
	require.NoError(t, h.err)

	o := &outgoing{useUtc: true, elementIds: true, onPackErr: func(err error) { t.Fatal(err) }}
	o.packer.Begin(nil)
	o.packX(point)
	buf, err := o.packer.End()
	require.NoError(t, err)
	require.Equal(t, wire, buf)
}

func TestValueRoundTripThroughWire(t *testing.T) {
	values := []any{
		dbtype.Date(time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC)),
		dbtype.Duration{Months: 1, Days: 2, Seconds: 3, Nanos: 4},
		dbtype.Point2D{SpatialRefId: 4326, X: 12.5, Y: -7.25},
		time.Unix(1_700_000_000, 123).In(time.FixedZone("Offset", 7200)),
	}
	for _, value := range values {
		o := &outgoing{useUtc: true, elementIds: true, onPackErr: func(err error) { t.Fatal(err) }}
		o.packer.Begin(nil)
		o.packX(value)
		buf, err := o.packer.End()
		require.NoError(t, err)

		h := newTestHydrator(true)
		h.unp.Reset(buf)
		back := h.value()
		require.NoError(t, h.err)
		switch v := value.(type) {
		case time.Time:
			require.True(t, v.Equal(back.(time.Time)))
		case dbtype.Date:
			require.Equal(t, v.String(), back.(dbtype.Date).String())
		default:
			require.Equal(t, value, back)
		}
	}
}

func TestHydrateFailureWithGqlFields(t *testing.T) {
	buf := serverPack(t, func(p *packstream.Packer) {
		p.StructHeader(msgFailure, 1)
		p.MapHeader(5)
		p.String("neo4j_code")
		p.String("Neo.ClientError.Statement.SyntaxError")
		p.String("message")
		p.String("bad cypher")
		p.String("gql_status")
		p.String("42001")
		p.String("diagnostic_record")
		p.MapHeader(1)
		p.String("_classification")
		p.String("CLIENT_ERROR")
		p.String("cause")
		p.MapHeader(2)
		p.String("message")
		p.String("inner")
		p.String("gql_status")
		p.String("22N00")
	})
	h := newTestHydrator(true)
	msg, err := h.hydrate(buf)
	require.NoError(t, err)
	serverErr, ok := msg.(*db.ServerError)
	require.True(t, ok)
	require.Equal(t, "Neo.ClientError.Statement.SyntaxError", serverErr.Code)
	require.Equal(t, "42001", serverErr.GqlStatus)
	require.Equal(t, db.ClientError, serverErr.GqlClassification)
	require.NotNil(t, serverErr.GqlCause)
	require.Equal(t, "inner", serverErr.GqlCause.Msg)
	require.Equal(t, "ClientError", serverErr.Classification())
}

func TestHydrateSuccessWithRoutingTable(t *testing.T) {
	buf := serverPack(t, func(p *packstream.Packer) {
		p.StructHeader(msgSuccess, 1)
		p.MapHeader(1)
		p.String("rt")
		p.MapHeader(3)
		p.String("ttl")
		p.Int64(300)
		p.String("db")
		p.String("neo4j")
		p.String("servers")
		p.ListHeader(3)
		p.MapHeader(2)
		p.String("role")
		p.String("ROUTE")
		p.String("addresses")
		p.Strings([]string{"r1:7687", "r2:7687"})
		p.MapHeader(2)
		p.String("role")
		p.String("READ")
		p.String("addresses")
		p.Strings([]string{"rd1:7687"})
		p.MapHeader(2)
		p.String("role")
		p.String("WRITE")
		p.String("addresses")
		p.Strings([]string{"w1:7687"})
	})
	h := newTestHydrator(true)
	msg, err := h.hydrate(buf)
	require.NoError(t, err)
	suc, ok := msg.(*success)
	require.True(t, ok)
	require.NotNil(t, suc.routingTable)
	require.Equal(t, 300, suc.routingTable.TimeToLive)
	require.Equal(t, "neo4j", suc.routingTable.DatabaseName)
	require.Equal(t, []string{"r1:7687", "r2:7687"}, suc.routingTable.Routers)
	require.Equal(t, []string{"rd1:7687"}, suc.routingTable.Readers)
	require.Equal(t, []string{"w1:7687"}, suc.routingTable.Writers)
}

func TestHydrateSuccessRunMeta(t *testing.T) {
	buf := serverPack(t, func(p *packstream.Packer) {
		p.StructHeader(msgSuccess, 1)
		p.MapHeader(4)
		p.String("fields")
		p.Strings([]string{"x", "y"})
		p.String("t_first")
		p.Int64(3)
		p.String("qid")
		p.Int64(7)
		p.String("db")
		p.String("movies")
	})
	h := newTestHydrator(true)
	msg, err := h.hydrate(buf)
	require.NoError(t, err)
	suc := msg.(*success)
	require.Equal(t, []string{"x", "y"}, suc.fields)
	require.Equal(t, int64(3), suc.tfirst)
	require.Equal(t, int64(7), suc.qid)
	require.Equal(t, "movies", suc.db)
}

func TestHydrateMalformedMessageIsProtocolError(t *testing.T) {
	buf := serverPack(t, func(p *packstream.Packer) {
		p.StructHeader(msgSuccess, 1)
		p.Int64(13) // metadata must be a map
	})
	h := newTestHydrator(true)
	_, err := h.hydrate(buf)
	require.Error(t, err)
	require.IsType(t, &db.ProtocolError{}, err)
}
