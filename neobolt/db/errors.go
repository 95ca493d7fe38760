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
	"fmt"
	"reflect"
	"strings"
)

// ErrorClassification is the GQL classification of a server error,
// reported by servers speaking Bolt 5.7 or later.
type ErrorClassification string

const (
	ClientError    ErrorClassification = "CLIENT_ERROR"
	DatabaseError  ErrorClassification = "DATABASE_ERROR"
	TransientError ErrorClassification = "TRANSIENT_ERROR"
	UnknownError   ErrorClassification = "UNKNOWN"
)

// ServerError is created when the server answers a request with FAILURE.
// Code is a hierarchical status like Neo.ClientError.Statement.SyntaxError.
// The Gql* fields are populated from Bolt 5.7 on.
type ServerError struct {
	Code string
	Msg  string

	GqlStatus            string
	GqlStatusDescription string
	GqlClassification    ErrorClassification
	GqlRawClassification string
	GqlDiagnosticRecord  map[string]any
	GqlCause             *ServerError

	parsed         bool
	classification string // Second element of Code
	category       string
	title          string
	retriable      bool
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %s (%s)", e.Code, e.Msg)
}

func (e *ServerError) Unwrap() error {
	if e.GqlCause == nil {
		return nil
	}
	return e.GqlCause
}

// Classification returns the second element of the error code, e.g.
// "ClientError" for Neo.ClientError.Statement.SyntaxError.
func (e *ServerError) Classification() string {
	e.parse()
	return e.classification
}

func (e *ServerError) Category() string {
	e.parse()
	return e.category
}

func (e *ServerError) Title() string {
	e.parse()
	return e.title
}

func (e *ServerError) parse() {
	if e.parsed {
		return
	}
	e.parsed = true
	parts := strings.Split(e.Code, ".")
	if len(parts) != 4 {
		return
	}
	e.classification = parts[1]
	e.category = parts[2]
	e.title = parts[3]
}

func (e *ServerError) HasSecurityCode() bool {
	return strings.HasPrefix(e.Code, "Neo.ClientError.Security.")
}

func (e *ServerError) IsAuthenticationFailed() bool {
	return e.Code == "Neo.ClientError.Security.Unauthorized"
}

func (e *ServerError) IsAuthorizationExpired() bool {
	return e.Code == "Neo.ClientError.Security.AuthorizationExpired"
}

// IsRetriable reports whether retrying the enclosing transaction on a
// fresh connection may succeed.
func (e *ServerError) IsRetriable() bool {
	return e.retriable ||
		e.IsRetriableTransient() ||
		e.IsRetriableCluster() ||
		e.IsAuthorizationExpired()
}

// IsRetriableTransient reports whether the error belongs to the
// transient class.
func (e *ServerError) IsRetriableTransient() bool {
	e.parse()
	if e.classification != "TransientError" {
		return false
	}
	switch e.Code {
	// These were reclassified as client errors in newer servers and are
	// not worth retrying on older ones either.
	case "Neo.TransientError.Transaction.Terminated",
		"Neo.TransientError.Transaction.LockClientStopped":
		return false
	}
	return true
}

// IsRetriableCluster reports whether the error indicates that a write
// was sent to a server that cannot accept writes. The routing table must
// be refreshed before trying again.
func (e *ServerError) IsRetriableCluster() bool {
	switch e.Code {
	case "Neo.ClientError.Cluster.NotALeader",
		"Neo.ClientError.General.ForbiddenOnReadOnlyDatabase":
		return true
	}
	return false
}

// MarkRetriable upgrades the error to be seen as retryable by managed
// transactions regardless of its code.
func (e *ServerError) MarkRetriable() {
	e.retriable = true
}

// ProtocolError is created when the server sends something the protocol
// state does not allow. The connection is unusable afterwards.
type ProtocolError struct {
	MessageType string
	Field       string
	Err         string
}

func (e *ProtocolError) Error() string {
	if e.MessageType == "" {
		return fmt.Sprintf("ProtocolError: %s", e.Err)
	}
	if e.Field == "" {
		return fmt.Sprintf("ProtocolError: message %s could not be hydrated: %s", e.MessageType, e.Err)
	}
	return fmt.Sprintf("ProtocolError: field %s of message %s could not be hydrated: %s",
		e.Field, e.MessageType, e.Err)
}

// UnsupportedTypeError is created when a query parameter of a type
// packstream cannot express is sent.
type UnsupportedTypeError struct {
	Type reflect.Type
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("usage of type '%s' is not supported", e.Type.String())
}

// FeatureNotSupportedError is created when the negotiated protocol
// version cannot express a requested capability.
type FeatureNotSupportedError struct {
	Server  string
	Feature string
	Reason  string
}

func (e *FeatureNotSupportedError) Error() string {
	return fmt.Sprintf("server %s does not support: %s (%s)", e.Server, e.Feature, e.Reason)
}
