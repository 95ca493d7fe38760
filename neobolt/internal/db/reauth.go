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

import "github.com/neo4j-drivers/neobolt/neobolt/auth"

// ReAuthToken names the auth identity a borrowed connection must carry.
// FromSession marks tokens set per session rather than per driver, which
// older protocol versions cannot switch to on a live connection.
type ReAuthToken struct {
	Manager     auth.TokenManager
	FromSession bool
	ForceReAuth bool
}
