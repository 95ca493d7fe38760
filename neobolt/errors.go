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
	"errors"

	"github.com/neo4j-drivers/neobolt/neobolt/db"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/errorutil"
)

// The driver's error kinds, re-exported from the packages that raise
// them. Server failures keep their connection; transport and protocol
// failures poison it.
type (
	// ServerError is a FAILURE response from the server.
	ServerError = db.ServerError
	// UsageError reports a broken API contract. Never retried.
	UsageError = errorutil.UsageError
	// ConfigurationError reports invalid construction input.
	ConfigurationError = errorutil.ConfigurationError
	// ConnectivityError wraps transport-level failures.
	ConnectivityError = errorutil.ConnectivityError
	// TransactionExecutionLimit reports an exhausted retry budget.
	TransactionExecutionLimit = errorutil.TransactionExecutionLimit
	// ProtocolError reports a server that broke the Bolt contract.
	ProtocolError = db.ProtocolError
)

// IsServerError reports whether the error is a FAILURE response from
// the server and returns it.
func IsServerError(err error) (*ServerError, bool) {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr, true
	}
	return nil, false
}

// IsRetryable reports whether running the enclosing work again might
// succeed. Managed transactions apply this classification internally.
func IsRetryable(err error) bool {
	return errorutil.IsRetryable(err)
}

// IsConnectivityError reports whether the error is transport-shaped:
// the server could not be reached or the connection was lost.
func IsConnectivityError(err error) bool {
	var connectivityErr *ConnectivityError
	return errors.As(err, &connectivityErr)
}

// IsUsageError reports whether the error is the caller's misuse of the
// API.
func IsUsageError(err error) bool {
	var usageErr *UsageError
	return errors.As(err, &usageErr)
}
