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

package db

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServerErrorCodeParsing(t *testing.T) {
	err := &ServerError{Code: "Neo.ClientError.Statement.SyntaxError"}
	require.Equal(t, "ClientError", err.Classification())
	require.Equal(t, "Statement", err.Category())
	require.Equal(t, "SyntaxError", err.Title())
}

func TestServerErrorMalformedCode(t *testing.T) {
	err := &ServerError{Code: "NotHierarchical"}
	require.Empty(t, err.Classification())
}

func TestRetryClassification(t *testing.T) {
	cases := []struct {
		code      string
		retriable bool
	}{
		{"Neo.TransientError.General.TransactionMemoryLimit", true},
		{"Neo.ClientError.Cluster.NotALeader", true},
		{"Neo.ClientError.General.ForbiddenOnReadOnlyDatabase", true},
		{"Neo.ClientError.Security.AuthorizationExpired", true},
		{"Neo.ClientError.Statement.SyntaxError", false},
		{"Neo.ClientError.Security.Unauthorized", false},
		{"Neo.TransientError.Transaction.Terminated", false},
		{"Neo.TransientError.Transaction.LockClientStopped", false},
		{"Neo.DatabaseError.General.UnknownError", false},
	}
	for _, c := range cases {
		err := &ServerError{Code: c.code}
		require.Equal(t, c.retriable, err.IsRetriable(), c.code)
	}
}

func TestMarkRetriable(t *testing.T) {
	err := &ServerError{Code: "Neo.ClientError.Security.TokenExpired"}
	require.False(t, err.IsRetriable())
	err.MarkRetriable()
	require.True(t, err.IsRetriable())
}

func TestSecurityCodes(t *testing.T) {
	err := &ServerError{Code: "Neo.ClientError.Security.Unauthorized"}
	require.True(t, err.HasSecurityCode())
	require.True(t, err.IsAuthenticationFailed())
	require.False(t, err.IsAuthorizationExpired())
}

func TestGqlCauseChain(t *testing.T) {
	cause := &ServerError{GqlStatus: "22N00", Msg: "inner"}
	err := &ServerError{Code: "Neo.ClientError.Statement.SyntaxError", GqlCause: cause}
	require.Equal(t, cause, err.Unwrap())
}

func TestRecordAccess(t *testing.T) {
	record := &Record{Keys: []string{"a", "b"}, Values: []any{int64(1), "two"}}
	value, ok := record.Get("b")
	require.True(t, ok)
	require.Equal(t, "two", value)
	_, ok = record.Get("missing")
	require.False(t, ok)
	require.Equal(t, map[string]any{"a": int64(1), "b": "two"}, record.AsMap())
}
