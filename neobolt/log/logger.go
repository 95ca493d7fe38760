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

// Package log defines the logging facade used throughout the driver.
// The embedder supplies an implementation at driver construction; the
// driver never writes to a global logger.
package log

import "github.com/google/uuid"

// Names of driver components as they appear in log output.
const (
	Driver  = "driver"
	Pool    = "pool"
	Router  = "router"
	Session = "session"
	Bolt    = "bolt"
)

// Logger is the facade the driver logs through. Error receives an error
// value, the formatted variants receive printf style arguments. The name
// identifies the component and the id the instance within it.
type Logger interface {
	Error(name string, id string, err error)
	Warnf(name string, id string, msg string, args ...any)
	Infof(name string, id string, msg string, args ...any)
	Debugf(name string, id string, msg string, args ...any)
}

// NewId returns a process-unique identifier used to correlate log lines
// belonging to one driver, session or connection instance.
func NewId() string {
	return uuid.NewString()[0:8]
}

type void struct{}

func (v void) Error(string, string, error)         {}
func (v void) Warnf(string, string, string, ...any) {}
func (v void) Infof(string, string, string, ...any) {}
func (v void) Debugf(string, string, string, ...any) {}

// Void returns a logger that discards everything.
func Void() Logger {
	return void{}
}
