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
	"fmt"
	"time"

	"github.com/neo4j-drivers/neobolt/neobolt/db"
	"github.com/neo4j-drivers/neobolt/neobolt/dbtype"
	idb "github.com/neo4j-drivers/neobolt/neobolt/internal/db"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/packstream"
)

// hydrator turns complete incoming messages into response values:
// *success, *db.Record, *db.ServerError or *ignored.
//
// Protocol-level decoding is strict, a malformed response message fails
// the connection. Value-level decoding is lenient: a struct whose
// contents cannot be validated becomes a dbtype.BrokenValue inside an
// otherwise healthy record.
type hydrator struct {
	unp        packstream.Unpacker
	boltLogger idb.BoltLogger
	logId      string
	useUtc     bool // Bolt >= 5.0 zoned datetimes are UTC relative
	elementIds bool // Bolt >= 5.0 graph entities carry element ids
	err        error
}

// unboundRel is a relationship inside a path, before its endpoints are
// known.
type unboundRel struct {
	id        int64
	elementId string
	relType   string
	props     map[string]any
}

func (h *hydrator) setErr(err error) {
	if h.err == nil {
		h.err = err
	}
}

func (h *hydrator) protocolError(msgType, field, err string) {
	h.setErr(&db.ProtocolError{MessageType: msgType, Field: field, Err: err})
}

// hydrate decodes one message.
func (h *hydrator) hydrate(buf []byte) (any, error) {
	h.err = nil
	u := &h.unp
	u.Reset(buf)
	u.Next()
	if u.Curr != packstream.PackedStruct {
		return nil, &db.ProtocolError{Err: fmt.Sprintf("expected struct, received %d", u.Curr)}
	}
	n := u.Len()
	tag := u.StructTag()
	if u.Err != nil {
		return nil, &db.ProtocolError{Err: u.Err.Error()}
	}

	var msg any
	switch tag {
	case msgSuccess:
		msg = h.hydrateSuccess(n)
	case msgRecord:
		msg = h.hydrateRecord(n)
	case msgIgnored:
		msg = h.hydrateIgnored(n)
	case msgFailure:
		msg = h.hydrateFailure(n)
	default:
		return nil, &db.ProtocolError{Err: fmt.Sprintf("unexpected message tag %02x", tag)}
	}
	if h.err != nil {
		return nil, h.err
	}
	if u.Err != nil {
		return nil, &db.ProtocolError{Err: u.Err.Error()}
	}
	return msg, nil
}

func (h *hydrator) hydrateIgnored(n uint32) *ignored {
	if n > 0 {
		// Old servers attach an empty map
		h.value()
	}
	if h.boltLogger != nil {
		h.boltLogger.LogServerMessage(h.logId, "IGNORED")
	}
	return &ignored{}
}

func (h *hydrator) hydrateFailure(n uint32) *db.ServerError {
	if n != 1 {
		h.protocolError("FAILURE", "", fmt.Sprintf("unexpected number of fields: %d", n))
		return nil
	}
	meta, ok := h.value().(map[string]any)
	if !ok {
		h.protocolError("FAILURE", "metadata", "not a map")
		return nil
	}
	if h.boltLogger != nil {
		h.boltLogger.LogServerMessage(h.logId, "FAILURE %v", meta)
	}
	return serverErrorFromMeta(meta)
}

func serverErrorFromMeta(meta map[string]any) *db.ServerError {
	e := &db.ServerError{}
	e.Code, _ = meta["code"].(string)
	if neo4jCode, ok := meta["neo4j_code"].(string); ok {
		// From Bolt 5.7 the legacy code moved to its own key
		e.Code = neo4jCode
	}
	e.Msg, _ = meta["message"].(string)
	e.GqlStatus, _ = meta["gql_status"].(string)
	e.GqlStatusDescription, _ = meta["description"].(string)
	if diag, ok := meta["diagnostic_record"].(map[string]any); ok {
		e.GqlDiagnosticRecord = diag
		if cls, ok := diag["_classification"].(string); ok {
			e.GqlRawClassification = cls
			e.GqlClassification = gqlClassificationOf(cls)
		}
	}
	if cause, ok := meta["cause"].(map[string]any); ok {
		e.GqlCause = serverErrorFromMeta(cause)
	}
	return e
}

func gqlClassificationOf(raw string) db.ErrorClassification {
	switch db.ErrorClassification(raw) {
	case db.ClientError, db.DatabaseError, db.TransientError:
		return db.ErrorClassification(raw)
	default:
		return db.UnknownError
	}
}

func (h *hydrator) hydrateSuccess(n uint32) *success {
	if n != 1 {
		h.protocolError("SUCCESS", "", fmt.Sprintf("unexpected number of fields: %d", n))
		return nil
	}
	meta, ok := h.value().(map[string]any)
	if !ok {
		h.protocolError("SUCCESS", "metadata", "not a map")
		return nil
	}
	if h.boltLogger != nil {
		h.boltLogger.LogServerMessage(h.logId, "SUCCESS %v", meta)
	}

	suc := &success{qid: -1, tfirst: -1, tlast: -1}
	for k, v := range meta {
		switch k {
		case "fields":
			suc.fields = asStrings(v)
		case "t_first":
			suc.tfirst, _ = v.(int64)
		case "t_last":
			suc.tlast, _ = v.(int64)
		case "qid":
			suc.qid, _ = v.(int64)
		case "bookmark":
			suc.bookmark, _ = v.(string)
		case "connection_id":
			suc.connectionId, _ = v.(string)
		case "server":
			suc.server, _ = v.(string)
		case "db":
			suc.db, _ = v.(string)
		case "has_more":
			suc.hasMore, _ = v.(bool)
		case "hints":
			suc.configurationHints, _ = v.(map[string]any)
		case "type":
			suc.statementType, _ = v.(string)
		case "stats":
			suc.counters, suc.containsSystemUpdates, suc.containsUpdates = countersOf(v)
		case "rt":
			table, err := routingTableOf(v)
			if err != nil {
				h.protocolError("SUCCESS", "rt", err.Error())
				return nil
			}
			suc.routingTable = table
		}
	}
	return suc
}

func asStrings(x any) []string {
	arr, _ := x.([]any)
	ss := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			ss = append(ss, s)
		}
	}
	return ss
}

func countersOf(x any) (db.Counters, *bool, *bool) {
	m, _ := x.(map[string]any)
	if m == nil {
		return nil, nil, nil
	}
	counters := make(db.Counters, len(m))
	var sys, upd *bool
	for k, v := range m {
		switch k {
		case "contains-system-updates":
			if b, ok := v.(bool); ok {
				sys = &b
			}
		case "contains-updates":
			if b, ok := v.(bool); ok {
				upd = &b
			}
		default:
			if i, ok := v.(int64); ok {
				counters[k] = int(i)
			}
		}
	}
	return counters, sys, upd
}

func routingTableOf(x any) (*idb.RoutingTable, error) {
	m, ok := x.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("routing table is not a map")
	}
	table := &idb.RoutingTable{}
	if ttl, ok := m["ttl"].(int64); ok {
		table.TimeToLive = int(ttl)
	}
	table.DatabaseName, _ = m["db"].(string)
	servers, _ := m["servers"].([]any)
	for _, s := range servers {
		sm, ok := s.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("routing table server entry is not a map")
		}
		role, _ := sm["role"].(string)
		addresses := asStrings(sm["addresses"])
		switch role {
		case "READ":
			table.Readers = addresses
		case "WRITE":
			table.Writers = addresses
		case "ROUTE":
			table.Routers = addresses
		default:
			return nil, fmt.Errorf("unknown routing table role %q", role)
		}
	}
	return table, nil
}

func (h *hydrator) hydrateRecord(n uint32) *db.Record {
	if n != 1 {
		h.protocolError("RECORD", "", fmt.Sprintf("unexpected number of fields: %d", n))
		return nil
	}
	u := &h.unp
	u.Next()
	if u.Curr != packstream.PackedArray {
		h.protocolError("RECORD", "values", "not a list")
		return nil
	}
	num := u.Len()
	values := make([]any, num)
	for i := range values {
		values[i] = h.value()
	}
	if h.boltLogger != nil {
		h.boltLogger.LogServerMessage(h.logId, "RECORD %v", values)
	}
	return &db.Record{Values: values}
}

// value decodes one value, interpreting tagged structs into the types
// of the dbtype package.
func (h *hydrator) value() any {
	u := &h.unp
	u.Next()
	switch u.Curr {
	case packstream.PackedNil:
		return nil
	case packstream.PackedTrue:
		return true
	case packstream.PackedFalse:
		return false
	case packstream.PackedInt:
		return u.Int()
	case packstream.PackedFloat:
		return u.Float()
	case packstream.PackedStr:
		return u.String()
	case packstream.PackedBytes:
		return u.Bytes()
	case packstream.PackedArray:
		n := u.Len()
		arr := make([]any, n)
		for i := range arr {
			arr[i] = h.value()
		}
		return arr
	case packstream.PackedMap:
		n := u.Len()
		m := make(map[string]any, n)
		for i := uint32(0); i < n; i++ {
			u.Next()
			if u.Curr != packstream.PackedStr {
				h.protocolError("", "map key", "not a string")
				return nil
			}
			key := u.String()
			m[key] = h.value()
		}
		return m
	case packstream.PackedStruct:
		n := u.Len()
		tag := u.StructTag()
		fields := make([]any, n)
		for i := range fields {
			fields[i] = h.value()
		}
		return h.interpretStruct(tag, fields)
	default:
		h.protocolError("", "", fmt.Sprintf("unexpected token %d in value position", u.Curr))
		return nil
	}
}

func broken(reason string, raw []any) *dbtype.BrokenValue {
	return &dbtype.BrokenValue{Reason: reason, Raw: raw}
}

// interpretStruct maps a tagged value struct onto its dbtype
// representation. Invalid contents produce a BrokenValue, not an error.
func (h *hydrator) interpretStruct(tag byte, fields []any) any {
	switch tag {
	case structNode:
		return h.node(fields)
	case structRelationship:
		return h.relationship(fields)
	case structUnboundRel:
		return h.unboundRelationship(fields)
	case structPath:
		return h.path(fields)
	case structDate:
		return h.date(fields)
	case structTime:
		return h.time(fields)
	case structLocalTime:
		return h.localTime(fields)
	case structLocalDateTime:
		return h.localDateTime(fields)
	case structDateTimeOffsetUtc, structDateTimeZoneUtc:
		if !h.useUtc {
			return broken("UTC datetime encoding is not legal for the negotiated protocol version", fields)
		}
		return h.dateTime(tag == structDateTimeZoneUtc, true, fields)
	case structDateTimeOffsetLegacy, structDateTimeZoneLegacy:
		if h.useUtc {
			return broken("legacy datetime encoding is not legal for the negotiated protocol version", fields)
		}
		return h.dateTime(tag == structDateTimeZoneLegacy, false, fields)
	case structDuration:
		return h.duration(fields)
	case structPoint2D:
		return h.point2d(fields)
	case structPoint3D:
		return h.point3d(fields)
	default:
		return broken(fmt.Sprintf("unknown value struct tag %02x", tag), fields)
	}
}

func (h *hydrator) node(fields []any) any {
	wantFields := 3
	if h.elementIds {
		wantFields = 4
	}
	if len(fields) != wantFields {
		return broken(fmt.Sprintf("node has %d fields, expected %d", len(fields), wantFields), fields)
	}
	id, ok1 := fields[0].(int64)
	labels := asStringsChecked(fields[1])
	props, ok2 := asProps(fields[2])
	if !ok1 || labels == nil || !ok2 {
		return broken("node fields have unexpected types", fields)
	}
	n := dbtype.Node{Id: id, Labels: labels, Props: props}
	if h.elementIds {
		elementId, ok := fields[3].(string)
		if !ok {
			return broken("node element id is not a string", fields)
		}
		n.ElementId = elementId
	}
	return n
}

func (h *hydrator) relationship(fields []any) any {
	wantFields := 5
	if h.elementIds {
		wantFields = 8
	}
	if len(fields) != wantFields {
		return broken(fmt.Sprintf("relationship has %d fields, expected %d", len(fields), wantFields), fields)
	}
	id, ok1 := fields[0].(int64)
	startId, ok2 := fields[1].(int64)
	endId, ok3 := fields[2].(int64)
	relType, ok4 := fields[3].(string)
	props, ok5 := asProps(fields[4])
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return broken("relationship fields have unexpected types", fields)
	}
	r := dbtype.Relationship{Id: id, StartId: startId, EndId: endId, Type: relType, Props: props}
	if h.elementIds {
		var oks [3]bool
		r.ElementId, oks[0] = fields[5].(string)
		r.StartElementId, oks[1] = fields[6].(string)
		r.EndElementId, oks[2] = fields[7].(string)
		if !oks[0] || !oks[1] || !oks[2] {
			return broken("relationship element ids have unexpected types", fields)
		}
	}
	return r
}

func (h *hydrator) unboundRelationship(fields []any) any {
	wantFields := 3
	if h.elementIds {
		wantFields = 4
	}
	if len(fields) != wantFields {
		return broken(fmt.Sprintf("relationship in path has %d fields, expected %d", len(fields), wantFields), fields)
	}
	id, ok1 := fields[0].(int64)
	relType, ok2 := fields[1].(string)
	props, ok3 := asProps(fields[2])
	if !ok1 || !ok2 || !ok3 {
		return broken("relationship in path has fields of unexpected types", fields)
	}
	r := unboundRel{id: id, relType: relType, props: props}
	if h.elementIds {
		elementId, ok := fields[3].(string)
		if !ok {
			return broken("relationship element id is not a string", fields)
		}
		r.elementId = elementId
	}
	return r
}

func (h *hydrator) path(fields []any) any {
	if len(fields) != 3 {
		return broken(fmt.Sprintf("path has %d fields, expected 3", len(fields)), fields)
	}
	rawNodes, ok1 := fields[0].([]any)
	rawRels, ok2 := fields[1].([]any)
	rawIndexes, ok3 := fields[2].([]any)
	if !ok1 || !ok2 || !ok3 {
		return broken("path fields have unexpected types", fields)
	}
	nodes := make([]dbtype.Node, len(rawNodes))
	for i, rn := range rawNodes {
		n, ok := rn.(dbtype.Node)
		if !ok {
			return broken("path contains an invalid node", fields)
		}
		nodes[i] = n
	}
	rels := make([]unboundRel, len(rawRels))
	for i, rr := range rawRels {
		r, ok := rr.(unboundRel)
		if !ok {
			return broken("path contains an invalid relationship", fields)
		}
		rels[i] = r
	}
	if len(rawIndexes)%2 != 0 {
		return broken("path has an odd number of indices", fields)
	}
	if len(nodes) == 0 {
		return broken("path has no nodes", fields)
	}

	// Walk the index pairs, binding each relationship to the nodes on
	// either side of it.
	num := len(rawIndexes) / 2
	pathNodes := make([]dbtype.Node, 0, num+1)
	pathRels := make([]dbtype.Relationship, 0, num)
	prev := nodes[0]
	pathNodes = append(pathNodes, prev)
	for i := 0; i < len(rawIndexes); i += 2 {
		relIndex, ok1 := rawIndexes[i].(int64)
		nodeIndex, ok2 := rawIndexes[i+1].(int64)
		if !ok1 || !ok2 {
			return broken("path indices are not integers", fields)
		}
		if nodeIndex < 0 || int(nodeIndex) >= len(nodes) {
			return broken("path node index out of range", fields)
		}
		next := nodes[nodeIndex]
		forward := relIndex > 0
		if !forward {
			relIndex = -relIndex
		}
		if relIndex == 0 || int(relIndex) > len(rels) {
			return broken("path relationship index out of range", fields)
		}
		ub := rels[relIndex-1]
		rel := dbtype.Relationship{
			Id: ub.id, ElementId: ub.elementId, Type: ub.relType, Props: ub.props,
		}
		if forward {
			rel.StartId, rel.StartElementId = prev.Id, prev.ElementId
			rel.EndId, rel.EndElementId = next.Id, next.ElementId
		} else {
			rel.StartId, rel.StartElementId = next.Id, next.ElementId
			rel.EndId, rel.EndElementId = prev.Id, prev.ElementId
		}
		pathRels = append(pathRels, rel)
		pathNodes = append(pathNodes, next)
		prev = next
	}
	path, err := dbtype.NewPath(pathNodes, pathRels)
	if err != nil {
		return broken(err.Error(), fields)
	}
	return path
}

func (h *hydrator) date(fields []any) any {
	if len(fields) != 1 {
		return broken("date has unexpected number of fields", fields)
	}
	days, ok := fields[0].(int64)
	if !ok {
		return broken("date is not an integer", fields)
	}
	secs := days * 24 * 60 * 60
	return dbtype.Date(time.Unix(secs, 0).UTC())
}

func (h *hydrator) localTime(fields []any) any {
	if len(fields) != 1 {
		return broken("local time has unexpected number of fields", fields)
	}
	nanos, ok := fields[0].(int64)
	if !ok {
		return broken("local time is not an integer", fields)
	}
	t := time.Date(0, 0, 0, 0, 0, 0, 0, time.Local).Add(time.Duration(nanos))
	return dbtype.LocalTime(t)
}

func (h *hydrator) time(fields []any) any {
	if len(fields) != 2 {
		return broken("time has unexpected number of fields", fields)
	}
	nanos, ok1 := fields[0].(int64)
	offset, ok2 := fields[1].(int64)
	if !ok1 || !ok2 {
		return broken("time fields are not integers", fields)
	}
	zone := time.FixedZone("Offset", int(offset))
	t := time.Date(0, 0, 0, 0, 0, 0, 0, zone).Add(time.Duration(nanos))
	return dbtype.Time(t)
}

func (h *hydrator) localDateTime(fields []any) any {
	if len(fields) != 2 {
		return broken("local datetime has unexpected number of fields", fields)
	}
	secs, ok1 := fields[0].(int64)
	nanos, ok2 := fields[1].(int64)
	if !ok1 || !ok2 {
		return broken("local datetime fields are not integers", fields)
	}
	t := time.Unix(secs, nanos).UTC()
	l := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.Local)
	return dbtype.LocalDateTime(l)
}

func (h *hydrator) dateTime(zoned, utc bool, fields []any) any {
	if len(fields) != 3 {
		return broken("datetime has unexpected number of fields", fields)
	}
	secs, ok1 := fields[0].(int64)
	nanos, ok2 := fields[1].(int64)
	if !ok1 || !ok2 {
		return broken("datetime fields are not integers", fields)
	}
	var loc *time.Location
	var offset int64
	if zoned {
		zoneName, ok := fields[2].(string)
		if !ok {
			return broken("datetime zone is not a string", fields)
		}
		var err error
		loc, err = time.LoadLocation(zoneName)
		if err != nil {
			// An unknown zone must not silently shift the instant
			return broken(fmt.Sprintf("unknown timezone %q", zoneName), fields)
		}
	} else {
		var ok bool
		offset, ok = fields[2].(int64)
		if !ok {
			return broken("datetime offset is not an integer", fields)
		}
		loc = time.FixedZone("Offset", int(offset))
	}
	if !utc {
		// Legacy encoding counts seconds in local wall clock time
		if zoned {
			t := time.Unix(secs, nanos).UTC()
			return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
		}
		secs -= offset
	}
	return time.Unix(secs, nanos).In(loc)
}

func (h *hydrator) duration(fields []any) any {
	if len(fields) != 4 {
		return broken("duration has unexpected number of fields", fields)
	}
	months, ok1 := fields[0].(int64)
	days, ok2 := fields[1].(int64)
	secs, ok3 := fields[2].(int64)
	nanos, ok4 := fields[3].(int64)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return broken("duration fields are not integers", fields)
	}
	return dbtype.Duration{Months: months, Days: days, Seconds: secs, Nanos: int(nanos)}
}

func (h *hydrator) point2d(fields []any) any {
	if len(fields) != 3 {
		return broken("2d point has unexpected number of fields", fields)
	}
	srid, ok1 := fields[0].(int64)
	x, ok2 := fields[1].(float64)
	y, ok3 := fields[2].(float64)
	if !ok1 || !ok2 || !ok3 {
		return broken("2d point fields have unexpected types", fields)
	}
	return dbtype.Point2D{SpatialRefId: uint32(srid), X: x, Y: y}
}

func (h *hydrator) point3d(fields []any) any {
	if len(fields) != 4 {
		return broken("3d point has unexpected number of fields", fields)
	}
	srid, ok1 := fields[0].(int64)
	x, ok2 := fields[1].(float64)
	y, ok3 := fields[2].(float64)
	z, ok4 := fields[3].(float64)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return broken("3d point fields have unexpected types", fields)
	}
	return dbtype.Point3D{SpatialRefId: uint32(srid), X: x, Y: y, Z: z}
}

func asStringsChecked(x any) []string {
	arr, ok := x.([]any)
	if !ok {
		return nil
	}
	ss := make([]string, len(arr))
	for i, e := range arr {
		s, ok := e.(string)
		if !ok {
			return nil
		}
		ss[i] = s
	}
	return ss
}

func asProps(x any) (map[string]any, bool) {
	m, ok := x.(map[string]any)
	return m, ok
}
