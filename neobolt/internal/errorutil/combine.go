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

package errorutil

import (
	"fmt"
	"net"

	"github.com/neo4j-drivers/neobolt/neobolt/db"
)

// CombineErrors returns nil, the single non-nil error, or a multi error
// preserving both.
func CombineErrors(errs ...error) error {
	var combined error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if combined == nil {
			combined = err
			continue
		}
		combined = &MultiError{Primary: combined, Secondary: err}
	}
	return combined
}

// MultiError carries two errors that occurred during the same operation.
type MultiError struct {
	Primary   error
	Secondary error
}

func (e *MultiError) Error() string {
	return fmt.Sprintf("%s (additionally: %s)", e.Primary, e.Secondary)
}

func (e *MultiError) Unwrap() error {
	return e.Primary
}

// WrapError translates internal error types into the form surfaced to
// client code: pool and dial failures become connectivity errors, server
// and usage errors pass through untouched.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	switch err.(type) {
	case *db.ServerError, *UsageError, *ConfigurationError,
		*ConnectivityError, *TransactionExecutionLimit:
		return err
	case *PoolTimeout, *PoolFull, *PoolClosed, *ConnectionReadTimeout,
		*ReadRoutingTableError, *InvalidatedAuthError, *TlsError, *net.OpError:
		return &ConnectivityError{Inner: err}
	}
	return err
}

// IsRetryable reports whether an error justifies another attempt of a
// managed transaction.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case *db.ServerError:
		return e.IsRetriable()
	case *ConnectivityError, *PoolTimeout, *ReadRoutingTableError:
		return true
	}
	return false
}

// IsFatalDuringDiscovery reports whether a routing discovery loop should
// give up instead of moving on to the next router.
func IsFatalDuringDiscovery(err error) bool {
	if err, ok := err.(*db.ServerError); ok {
		if err.Code == "Neo.ClientError.Database.DatabaseNotFound" ||
			err.Code == "Neo.ClientError.Transaction.InvalidBookmark" ||
			err.Code == "Neo.ClientError.Transaction.InvalidBookmarkMixture" ||
			err.Code == "Neo.ClientError.Statement.TypeError" ||
			err.Code == "Neo.ClientError.Statement.ArgumentError" ||
			err.Code == "Neo.ClientError.Request.Invalid" {
			return true
		}
		if err.HasSecurityCode() && !err.IsAuthorizationExpired() {
			return true
		}
	}
	return false
}
