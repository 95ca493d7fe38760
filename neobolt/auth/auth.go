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

// Package auth holds authentication tokens and the TokenManager
// capability interface the driver authenticates through.
package auth

import (
	"context"
	"reflect"
)

// Token is the set of key/value pairs sent to the server as part of
// HELLO or LOGON.
type Token struct {
	Tokens map[string]any
}

// BasicAuth authenticates with username and password, and an optional
// realm.
func BasicAuth(username string, password string, realm string) Token {
	token := Token{Tokens: map[string]any{
		"scheme":      "basic",
		"principal":   username,
		"credentials": password,
	}}
	if realm != "" {
		token.Tokens["realm"] = realm
	}
	return token
}

// KerberosAuth authenticates with a base64 encoded kerberos ticket.
func KerberosAuth(ticket string) Token {
	return Token{Tokens: map[string]any{
		"scheme": "kerberos",
		// Backwards compatibility: the server expects the ticket in the
		// credentials field even though no principal is involved.
		"credentials": ticket,
	}}
}

// BearerAuth authenticates with a token produced by an identity
// provider.
func BearerAuth(token string) Token {
	return Token{Tokens: map[string]any{
		"scheme":      "bearer",
		"credentials": token,
	}}
}

// CustomAuth authenticates through a server-side plugin with an
// arbitrary scheme.
func CustomAuth(scheme string, username string, password string, realm string, parameters map[string]any) Token {
	token := Token{Tokens: map[string]any{
		"scheme":    scheme,
		"principal": username,
	}}
	if password != "" {
		token.Tokens["credentials"] = password
	}
	if realm != "" {
		token.Tokens["realm"] = realm
	}
	if len(parameters) > 0 {
		token.Tokens["parameters"] = parameters
	}
	return token
}

// NoAuth performs no authentication, for servers with auth disabled.
func NoAuth() Token {
	return Token{Tokens: map[string]any{
		"scheme": "none",
	}}
}

// Principal returns the principal of the token, or "" for schemes that
// have none.
func (t Token) Principal() string {
	principal, _ := t.Tokens["principal"].(string)
	return principal
}

func (t Token) Equal(other Token) bool {
	return reflect.DeepEqual(t.Tokens, other.Tokens)
}

// GetAuthToken makes a bare Token usable wherever a TokenManager is
// expected; the token never rotates.
func (t Token) GetAuthToken(context.Context) (Token, error) {
	return t, nil
}

func (t Token) HandleSecurityException(context.Context, Token, string) (bool, error) {
	return false, nil
}

// TokenManager supplies tokens to the driver and is told when the server
// rejects one. Implementations may rotate credentials; the driver calls
// GetAuthToken every time a connection (re)authenticates.
type TokenManager interface {
	// GetAuthToken returns the current token.
	GetAuthToken(ctx context.Context) (Token, error)
	// HandleSecurityException is called when the server answered with a
	// security error while using the given token. Returning true marks
	// the error as handled, making it retryable.
	HandleSecurityException(ctx context.Context, token Token, securityCode string) (bool, error)
}

type staticTokenManager struct {
	token Token
}

func (m *staticTokenManager) GetAuthToken(context.Context) (Token, error) {
	return m.token, nil
}

func (m *staticTokenManager) HandleSecurityException(context.Context, Token, string) (bool, error) {
	return false, nil
}

// StaticTokenManager wraps a fixed token in a TokenManager.
func StaticTokenManager(token Token) TokenManager {
	return &staticTokenManager{token: token}
}
