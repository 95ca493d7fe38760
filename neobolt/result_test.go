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
	"testing"

	"github.com/neo4j-drivers/neobolt/neobolt/db"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/testutil"
	"github.com/stretchr/testify/require"
)

func records(values ...int64) []*db.Record {
	recs := make([]*db.Record, len(values))
	for i, v := range values {
		recs[i] = &db.Record{Keys: []string{"n"}, Values: []any{v}}
	}
	return recs
}

func resultOf(recs []*db.Record) (*result, *testutil.ConnFake) {
	conn := testutil.NewConnFake("srv:7687")
	conn.Records = recs
	conn.Summary = &db.Summary{}
	return newResult(conn, nil, "RETURN n", nil, nil), conn
}

func TestResultCollect(t *testing.T) {
	res, _ := resultOf(records(1, 2, 3))
	collected, err := res.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, collected, 3)
	require.Equal(t, int64(2), collected[1].Values[0])
}

func TestResultSingle(t *testing.T) {
	res, _ := resultOf(records(7))
	record, err := res.Single(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(7), record.Values[0])
	require.Equal(t, record, res.Record())
}

func TestResultSingleOnEmptyResultIsUsageError(t *testing.T) {
	res, _ := resultOf(nil)
	_, err := res.Single(context.Background())
	require.True(t, IsUsageError(err))
}

func TestResultSingleOnMultiRecordResultIsUsageError(t *testing.T) {
	res, conn := resultOf(records(1, 2))
	_, err := res.Single(context.Background())
	require.True(t, IsUsageError(err))
	// The remainder was discarded server side
	require.Equal(t, 1, conn.ConsumeCalled)
}

func TestResultPeekDoesNotAdvance(t *testing.T) {
	res, _ := resultOf(records(1, 2))
	ctx := context.Background()

	require.True(t, res.Next(ctx))
	require.Equal(t, int64(1), res.Record().Values[0])

	var peeked *Record
	require.True(t, res.PeekRecord(ctx, &peeked))
	require.Equal(t, int64(2), peeked.Values[0])
	// Current record is unchanged
	require.Equal(t, int64(1), res.Record().Values[0])

	require.True(t, res.Next(ctx))
	require.Equal(t, int64(2), res.Record().Values[0])
	require.False(t, res.Next(ctx))
}

func TestResultConsumeAfterFailureKeepsError(t *testing.T) {
	res, _ := resultOf(records(1, 2))
	ctx := context.Background()
	_, err := res.Single(ctx)
	require.True(t, IsUsageError(err))
	_, err = res.Consume(ctx)
	require.True(t, IsUsageError(err))
}

func TestResultConsumeReturnsSummary(t *testing.T) {
	res, conn := resultOf(records(1, 2, 3))
	conn.Summary = &db.Summary{StmntType: db.StatementTypeWrite, TFirst: 5, TLast: 9}
	summary, err := res.Consume(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatementTypeWriteOnly, summary.StatementType())
	require.Equal(t, int64(5), summary.ResultAvailableAfter().Milliseconds())
	require.Equal(t, int64(9), summary.ResultConsumedAfter().Milliseconds())
}

func TestSummaryCounters(t *testing.T) {
	res, conn := resultOf(nil)
	conn.Summary = &db.Summary{
		Counters: db.Counters{"nodes-created": 2, "properties-set": 3},
	}
	summary, err := res.Consume(context.Background())
	require.NoError(t, err)
	counters := summary.Counters()
	require.Equal(t, 2, counters.NodesCreated())
	require.Equal(t, 3, counters.PropertiesSet())
	require.Equal(t, 0, counters.NodesDeleted())
	require.True(t, counters.ContainsUpdates())
	require.False(t, counters.ContainsSystemUpdates())
}
