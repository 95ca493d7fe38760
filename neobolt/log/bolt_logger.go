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

package log

import (
	"fmt"
	"io"
	"time"
)

// BoltLogger traces the raw Bolt exchange of a single connection.
// Mostly useful when debugging protocol issues.
type BoltLogger interface {
	LogClientMessage(id, msg string, args ...any)
	LogServerMessage(id, msg string, args ...any)
}

type boltToWriter struct {
	out io.Writer
}

func (l *boltToWriter) LogClientMessage(id, msg string, args ...any) {
	l.logBoltMessage("C", id, msg, args)
}

func (l *boltToWriter) LogServerMessage(id, msg string, args ...any) {
	l.logBoltMessage("S", id, msg, args)
}

func (l *boltToWriter) logBoltMessage(src, id, msg string, args []any) {
	_, _ = fmt.Fprintf(l.out, "%s   BOLT  %s%s: %s\n",
		time.Now().Format("2006-01-02 15:04:05.000"), formatId(id), src, fmt.Sprintf(msg, args...))
}

func formatId(id string) string {
	if id == "" {
		return ""
	}
	return fmt.Sprintf("[%s] ", id)
}

// NewBoltLogger writes the Bolt exchange to the given writer.
func NewBoltLogger(out io.Writer) BoltLogger {
	return &boltToWriter{out: out}
}
