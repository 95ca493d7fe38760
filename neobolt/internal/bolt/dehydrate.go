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
	"time"

	"github.com/neo4j-drivers/neobolt/neobolt/dbtype"
)

// Value struct tags shared by both directions of the wire.
const (
	structNode          byte = 'N'
	structRelationship  byte = 'R'
	structUnboundRel    byte = 'r'
	structPath          byte = 'P'
	structDate          byte = 'D'
	structTime          byte = 'T'
	structLocalTime     byte = 't'
	structLocalDateTime byte = 'd'
	structDuration      byte = 'E'
	structPoint2D       byte = 'X'
	structPoint3D       byte = 'Y'
	// Zoned datetimes exist in two generations. Bolt < 5.0 counts
	// seconds in the local wall clock, Bolt >= 5.0 counts them in UTC.
	structDateTimeOffsetLegacy byte = 'F'
	structDateTimeZoneLegacy   byte = 'f'
	structDateTimeOffsetUtc    byte = 'I'
	structDateTimeZoneUtc      byte = 'i'
)

// packDehydrated packs values of the dbtype package and time.Time.
// Returns false when x is not such a value.
func (o *outgoing) packDehydrated(x any) bool {
	switch v := x.(type) {
	case dbtype.Date:
		o.packDate(time.Time(v))
	case dbtype.LocalTime:
		o.packLocalTime(time.Time(v))
	case dbtype.Time:
		o.packTime(time.Time(v))
	case dbtype.LocalDateTime:
		o.packLocalDateTime(time.Time(v))
	case time.Time:
		o.packDateTime(v)
	case dbtype.Duration:
		o.packer.StructHeader(structDuration, 4)
		o.packer.Int64(v.Months)
		o.packer.Int64(v.Days)
		o.packer.Int64(v.Seconds)
		o.packer.Int(v.Nanos)
	case dbtype.Point2D:
		o.packer.StructHeader(structPoint2D, 3)
		o.packer.Int64(int64(v.SpatialRefId))
		o.packer.Float64(v.X)
		o.packer.Float64(v.Y)
	case dbtype.Point3D:
		o.packer.StructHeader(structPoint3D, 4)
		o.packer.Int64(int64(v.SpatialRefId))
		o.packer.Float64(v.X)
		o.packer.Float64(v.Y)
		o.packer.Float64(v.Z)
	case dbtype.Node:
		o.packNode(v)
	case dbtype.Relationship:
		o.packRelationship(v)
	case dbtype.Path:
		o.packPath(v)
	default:
		return false
	}
	return true
}

func (o *outgoing) packDate(t time.Time) {
	year, month, day := t.Date()
	secs := time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Unix()
	o.packer.StructHeader(structDate, 1)
	o.packer.Int64(secs / (24 * 60 * 60))
}

func nanosSinceMidnight(t time.Time) int64 {
	hour, minute, second := t.Clock()
	return int64(hour*3600+minute*60+second)*int64(time.Second) + int64(t.Nanosecond())
}

func (o *outgoing) packLocalTime(t time.Time) {
	o.packer.StructHeader(structLocalTime, 1)
	o.packer.Int64(nanosSinceMidnight(t))
}

func (o *outgoing) packTime(t time.Time) {
	_, offset := t.Zone()
	o.packer.StructHeader(structTime, 2)
	o.packer.Int64(nanosSinceMidnight(t))
	o.packer.Int(offset)
}

func (o *outgoing) packLocalDateTime(t time.Time) {
	year, month, day := t.Date()
	hour, minute, second := t.Clock()
	secs := time.Date(year, month, day, hour, minute, second, 0, time.UTC).Unix()
	o.packer.StructHeader(structLocalDateTime, 2)
	o.packer.Int64(secs)
	o.packer.Int(t.Nanosecond())
}

// fixedOffsetZone reports whether the location of a zoned datetime has
// no name a server could resolve, in which case the offset encoding is
// used. "Local" has no portable IANA name, its current offset is the
// best available description.
func fixedOffsetZone(name string) bool {
	return name == "" || name == "Local" || name == "Offset"
}

func (o *outgoing) packDateTime(t time.Time) {
	zoneName := t.Location().String()
	_, offset := t.Zone()
	if o.useUtc {
		if fixedOffsetZone(zoneName) {
			o.packer.StructHeader(structDateTimeOffsetUtc, 3)
			o.packer.Int64(t.Unix())
			o.packer.Int(t.Nanosecond())
			o.packer.Int(offset)
			return
		}
		o.packer.StructHeader(structDateTimeZoneUtc, 3)
		o.packer.Int64(t.Unix())
		o.packer.Int(t.Nanosecond())
		o.packer.String(zoneName)
		return
	}
	// Legacy encoding counts seconds as if the local wall clock were UTC
	localSecs := t.Unix() + int64(offset)
	if fixedOffsetZone(zoneName) {
		o.packer.StructHeader(structDateTimeOffsetLegacy, 3)
		o.packer.Int64(localSecs)
		o.packer.Int(t.Nanosecond())
		o.packer.Int(offset)
		return
	}
	o.packer.StructHeader(structDateTimeZoneLegacy, 3)
	o.packer.Int64(localSecs)
	o.packer.Int(t.Nanosecond())
	o.packer.String(zoneName)
}

func (o *outgoing) packNode(n dbtype.Node) {
	if o.elementIds {
		o.packer.StructHeader(structNode, 4)
	} else {
		o.packer.StructHeader(structNode, 3)
	}
	o.packer.Int64(n.Id)
	o.packer.Strings(n.Labels)
	o.packMap(n.Props)
	if o.elementIds {
		o.packer.String(n.ElementId)
	}
}

func (o *outgoing) packRelationship(r dbtype.Relationship) {
	if o.elementIds {
		o.packer.StructHeader(structRelationship, 8)
	} else {
		o.packer.StructHeader(structRelationship, 5)
	}
	o.packer.Int64(r.Id)
	o.packer.Int64(r.StartId)
	o.packer.Int64(r.EndId)
	o.packer.String(r.Type)
	o.packMap(r.Props)
	if o.elementIds {
		o.packer.String(r.ElementId)
		o.packer.String(r.StartElementId)
		o.packer.String(r.EndElementId)
	}
}

func (o *outgoing) packPath(p dbtype.Path) {
	o.packer.StructHeader(structPath, 3)
	o.packer.ListHeader(len(p.Nodes))
	for _, n := range p.Nodes {
		o.packNode(n)
	}
	o.packer.ListHeader(len(p.Relationships))
	for _, r := range p.Relationships {
		if o.elementIds {
			o.packer.StructHeader(structUnboundRel, 4)
		} else {
			o.packer.StructHeader(structUnboundRel, 3)
		}
		o.packer.Int64(r.Id)
		o.packer.String(r.Type)
		o.packMap(r.Props)
		if o.elementIds {
			o.packer.String(r.ElementId)
		}
	}
	// Index pairs: signed 1-based relationship index (negative when
	// traversed against its direction) followed by the next node index.
	o.packer.ListHeader(2 * len(p.Relationships))
	for i, r := range p.Relationships {
		prev := p.Nodes[i]
		forward := r.StartId == prev.Id
		if r.StartElementId != "" && prev.ElementId != "" {
			forward = r.StartElementId == prev.ElementId
		}
		if forward {
			o.packer.Int(i + 1)
		} else {
			o.packer.Int(-(i + 1))
		}
		o.packer.Int(i + 1)
	}
}
