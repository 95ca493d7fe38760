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

package packstream

import "fmt"

// OverflowError is returned when a value exceeds what its packstream
// representation can describe, like a list longer than 2^32-1 entries.
type OverflowError struct {
	Msg string
}

func (e *OverflowError) Error() string {
	return e.Msg
}

// UnpackError is returned on malformed input: an unknown marker, a
// truncated buffer or a token read as a type it is not.
type UnpackError struct {
	Msg string
}

func (e *UnpackError) Error() string {
	return fmt.Sprintf("unpack error: %s", e.Msg)
}
