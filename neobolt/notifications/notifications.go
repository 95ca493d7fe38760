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

// Package notifications holds the types used to configure which server
// notifications a query execution should produce.
package notifications

type NotificationMinimumSeverityLevel string

const (
	DefaultLevel     NotificationMinimumSeverityLevel = ""
	OffLevel         NotificationMinimumSeverityLevel = "OFF"
	WarningLevel     NotificationMinimumSeverityLevel = "WARNING"
	InformationLevel NotificationMinimumSeverityLevel = "INFORMATION"
)

type NotificationCategory string

const (
	Hint         NotificationCategory = "HINT"
	Unrecognized NotificationCategory = "UNRECOGNIZED"
	Unsupported  NotificationCategory = "UNSUPPORTED"
	Performance  NotificationCategory = "PERFORMANCE"
	Deprecation  NotificationCategory = "DEPRECATION"
	Generic      NotificationCategory = "GENERIC"
	Security     NotificationCategory = "SECURITY"
	Topology     NotificationCategory = "TOPOLOGY"
)

// NotificationDisabledCategories defines the categories the server
// should not analyse for.
type NotificationDisabledCategories struct {
	categories []NotificationCategory
	none       bool
}

// DisableCategories returns a configuration that disables the given
// categories.
func DisableCategories(categories ...NotificationCategory) NotificationDisabledCategories {
	return NotificationDisabledCategories{categories: categories}
}

// DisableNoCategories returns a configuration that explicitly enables
// all categories, overriding the server's defaults.
func DisableNoCategories() NotificationDisabledCategories {
	return NotificationDisabledCategories{none: true}
}

// DisablesNone reports whether this configuration explicitly enables
// everything.
func (d NotificationDisabledCategories) DisablesNone() bool {
	return d.none
}

// DisabledCategories returns the categories to disable.
func (d NotificationDisabledCategories) DisabledCategories() []NotificationCategory {
	return d.categories
}
