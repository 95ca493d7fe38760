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
	"runtime"
)

// DriverVersion is the version reported in user and bolt agents.
const DriverVersion = "1.0.0"

// boltAgent describes the driver to the server, sent in HELLO from Bolt
// 5.3. Unlike the user agent it must not be overridden by the embedder.
func boltAgent() map[string]string {
	return map[string]string{
		"product":  fmt.Sprintf("neobolt-go/%s", DriverVersion),
		"platform": fmt.Sprintf("%s; %s", runtime.GOOS, runtime.GOARCH),
		"language": fmt.Sprintf("Go/%s", runtime.Version()),
	}
}
