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

	"github.com/neo4j-drivers/neobolt/neobolt/db"
	idb "github.com/neo4j-drivers/neobolt/neobolt/internal/db"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/errorutil"
)

// Record is one row of a result.
type Record = db.Record

// Result is a lazy forward-only stream of records ending in a summary.
// Records are fetched from the server in batches of the configured
// fetch size as the stream is iterated.
type Result interface {
	// Keys returns the field names of the records.
	Keys() ([]string, error)
	// Next advances to the next record, fetching from the server as
	// needed. False means the stream is done, see Err.
	Next(ctx context.Context) bool
	// NextRecord combines Next and Record.
	NextRecord(ctx context.Context, record **Record) bool
	// PeekRecord looks at the record after the current one without
	// advancing.
	PeekRecord(ctx context.Context, record **Record) bool
	// Record returns the current record.
	Record() *Record
	// Err returns the error that made Next return false, if any.
	Err() error
	// Collect fetches all remaining records into a slice.
	Collect(ctx context.Context) ([]*Record, error)
	// Single returns the only record of the stream and fails when the
	// stream has zero or more than one.
	Single(ctx context.Context) (*Record, error)
	// Consume discards all remaining records server side and returns
	// the summary.
	Consume(ctx context.Context) (ResultSummary, error)
}

type result struct {
	conn          idb.Connection
	streamHandle  idb.StreamHandle
	cypher        string
	params        map[string]any
	record        *Record
	summary       *db.Summary
	err           error
	peekedRecord  *Record
	peekedSummary *db.Summary
	peeked        bool
	afterConsumption func()
	consumptionNoted bool
}

func newResult(conn idb.Connection, stream idb.StreamHandle, cypher string,
	params map[string]any, afterConsumption func()) *result {
	return &result{
		conn:             conn,
		streamHandle:     stream,
		cypher:           cypher,
		params:           params,
		afterConsumption: afterConsumption,
	}
}

func (r *result) Keys() ([]string, error) {
	return r.conn.Keys(r.streamHandle)
}

func (r *result) Next(ctx context.Context) bool {
	r.advance(ctx)
	return r.record != nil
}

func (r *result) NextRecord(ctx context.Context, out **Record) bool {
	r.advance(ctx)
	if out != nil {
		*out = r.record
	}
	return r.record != nil
}

func (r *result) PeekRecord(ctx context.Context, out **Record) bool {
	r.peek(ctx)
	if out != nil {
		*out = r.peekedRecord
	}
	return r.peekedRecord != nil
}

func (r *result) Record() *Record {
	return r.record
}

func (r *result) Err() error {
	return errorutil.WrapError(r.err)
}

func (r *result) Collect(ctx context.Context) ([]*Record, error) {
	records := make([]*Record, 0, 64)
	for r.summary == nil && r.err == nil {
		r.advance(ctx)
		if r.record != nil {
			records = append(records, r.record)
		}
	}
	if r.err != nil {
		return nil, errorutil.WrapError(r.err)
	}
	return records, nil
}

func (r *result) Single(ctx context.Context) (*Record, error) {
	r.advance(ctx)
	if r.err != nil {
		return nil, errorutil.WrapError(r.err)
	}
	if r.summary != nil {
		r.err = &errorutil.UsageError{Message: "result contains no records"}
		return nil, r.err
	}
	single := r.record

	// There must be nothing after the single record
	r.advance(ctx)
	if r.record != nil {
		// Drop the rest; the caller declared interest in one record
		// only
		r.summary, _ = r.conn.Consume(ctx, r.streamHandle)
		r.noteConsumption()
		r.err = &errorutil.UsageError{Message: "result contains more than one record"}
		r.record = nil
		return nil, r.err
	}
	if r.err != nil {
		return nil, errorutil.WrapError(r.err)
	}
	r.record = single
	return single, nil
}

func (r *result) Consume(ctx context.Context) (ResultSummary, error) {
	if r.err != nil {
		return nil, errorutil.WrapError(r.err)
	}
	r.record = nil
	r.summary, r.err = r.conn.Consume(ctx, r.streamHandle)
	if r.err != nil {
		return nil, errorutil.WrapError(r.err)
	}
	r.noteConsumption()
	return r.toResultSummary(), nil
}

// buffer pulls the rest of the stream into client memory so that the
// connection can move on.
func (r *result) buffer(ctx context.Context) {
	if err := r.conn.Buffer(ctx, r.streamHandle); err != nil && r.err == nil {
		r.err = err
	}
}

func (r *result) advance(ctx context.Context) {
	if r.peeked {
		r.record, r.peekedRecord = r.peekedRecord, nil
		r.summary, r.peekedSummary = r.peekedSummary, nil
		r.peeked = false
	} else {
		r.record, r.summary, r.err = r.conn.Next(ctx, r.streamHandle)
	}
	if r.summary != nil {
		r.noteConsumption()
	}
}

func (r *result) peek(ctx context.Context) {
	if !r.peeked {
		r.peekedRecord, r.peekedSummary, r.err = r.conn.Next(ctx, r.streamHandle)
		r.peeked = true
	}
}

func (r *result) noteConsumption() {
	if r.consumptionNoted {
		return
	}
	r.consumptionNoted = true
	if r.afterConsumption != nil {
		r.afterConsumption()
	}
}

func (r *result) toResultSummary() ResultSummary {
	return &resultSummary{
		sum:    r.summary,
		cypher: r.cypher,
		params: r.params,
	}
}
