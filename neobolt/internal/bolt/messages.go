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

// Request message struct tags.
const (
	msgHello     byte = 0x01
	msgGoodbye   byte = 0x02
	msgReset     byte = 0x0f
	msgRun       byte = 0x10
	msgBegin     byte = 0x11
	msgCommit    byte = 0x12
	msgRollback  byte = 0x13
	msgDiscard   byte = 0x2f
	msgPull      byte = 0x3f
	msgTelemetry byte = 0x54
	msgRoute     byte = 0x66
	msgLogon     byte = 0x6a
	msgLogoff    byte = 0x6b
)

// Response message struct tags.
const (
	msgSuccess byte = 0x70
	msgRecord  byte = 0x71
	msgIgnored byte = 0x7e
	msgFailure byte = 0x7f
)
