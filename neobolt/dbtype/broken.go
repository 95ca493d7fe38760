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

package dbtype

import "fmt"

// BrokenValue replaces a server-provided value that was well-formed on
// the wire but failed validation, for example a zoned datetime whose
// timezone is unknown on this machine or a point in an unknown coordinate
// system. The record carrying it remains usable; the error surfaces only
// when the value itself is inspected.
//
// BrokenValue is never sent to the server.
type BrokenValue struct {
	Reason string
	Raw    []any // struct fields as received, undecoded
}

// Err returns the validation failure as an error.
func (b *BrokenValue) Err() error {
	return &BrokenValueError{Reason: b.Reason}
}

func (b *BrokenValue) String() string {
	return fmt.Sprintf("BrokenValue(%s)", b.Reason)
}

// BrokenValueError is returned when client code tries to use a
// BrokenValue as a regular value.
type BrokenValueError struct {
	Reason string
}

func (e *BrokenValueError) Error() string {
	return fmt.Sprintf("value could not be validated: %s", e.Reason)
}
