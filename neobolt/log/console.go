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
	"os"
	"time"
)

// Log level of Console logger
type Level int

const (
	ERROR   Level = 1
	WARNING Level = 2
	INFO    Level = 3
	DEBUG   Level = 4
)

const timeFormat = "2006-01-02 15:04:05.000"

// Console is a simple logger that writes to stdout/stderr.
// Errors go to stderr, everything else to stdout.
type Console struct {
	Errors bool
	Warns  bool
	Infos  bool
	Debugs bool
}

// ToConsole returns a console logger enabled up to and including the
// given level.
func ToConsole(level Level) *Console {
	return &Console{
		Errors: level >= ERROR,
		Warns:  level >= WARNING,
		Infos:  level >= INFO,
		Debugs: level >= DEBUG,
	}
}

func (l *Console) Error(name, id string, err error) {
	if !l.Errors {
		return
	}
	now := time.Now()
	_, _ = fmt.Fprintf(os.Stderr, "%s   ERROR  [%s %s] %s\n", now.Format(timeFormat), name, id, err.Error())
}

func (l *Console) Warnf(name, id string, msg string, args ...any) {
	if !l.Warns {
		return
	}
	now := time.Now()
	_, _ = fmt.Fprintf(os.Stdout, "%s  WARNING  [%s %s] %s\n", now.Format(timeFormat), name, id, fmt.Sprintf(msg, args...))
}

func (l *Console) Infof(name, id string, msg string, args ...any) {
	if !l.Infos {
		return
	}
	now := time.Now()
	_, _ = fmt.Fprintf(os.Stdout, "%s     INFO  [%s %s] %s\n", now.Format(timeFormat), name, id, fmt.Sprintf(msg, args...))
}

func (l *Console) Debugf(name, id string, msg string, args ...any) {
	if !l.Debugs {
		return
	}
	now := time.Now()
	_, _ = fmt.Fprintf(os.Stdout, "%s    DEBUG  [%s %s] %s\n", now.Format(timeFormat), name, id, fmt.Sprintf(msg, args...))
}
