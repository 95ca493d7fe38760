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

import "github.com/neo4j-drivers/neobolt/neobolt/auth"

// AuthToken is the set of credentials sent to the server on connect. A
// bare token doubles as a TokenManager that never rotates.
type AuthToken = auth.Token

// NoAuth generates an empty authentication token, for servers not
// requiring authentication.
func NoAuth() AuthToken {
	return auth.NoAuth()
}

// BasicAuth generates a basic authentication token with username,
// password and optional realm.
func BasicAuth(username string, password string, realm string) AuthToken {
	return auth.BasicAuth(username, password, realm)
}

// KerberosAuth generates a kerberos authentication token with a base64
// encoded ticket.
func KerberosAuth(ticket string) AuthToken {
	return auth.KerberosAuth(ticket)
}

// BearerAuth generates a token-based authentication token, as produced
// by an identity provider.
func BearerAuth(token string) AuthToken {
	return auth.BearerAuth(token)
}

// CustomAuth generates an authentication token handled by a server-side
// authentication plugin.
func CustomAuth(scheme string, username string, password string, realm string, parameters map[string]any) AuthToken {
	return auth.CustomAuth(scheme, username, password, realm, parameters)
}
