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

import (
	"fmt"
	"time"
)

// Cypher DateTime corresponds to Go time.Time.

type (
	Time          time.Time // Time of day with timezone offset
	Date          time.Time // Date without time or timezone components
	LocalTime     time.Time // Time of day in an unnamed local timezone
	LocalDateTime time.Time // Date and time in an unnamed local timezone
)

// Time casts Date to time.Time.
func (t Date) Time() time.Time {
	return time.Time(t)
}

// String returns this date on ISO-8601 form: `YYYY-MM-DD`.
func (t Date) String() string {
	return t.Time().Format("2006-01-02")
}

// Time casts LocalTime to time.Time.
//
// The location of the returned time.Time is time.Local; from the server's
// point of view a LocalTime has no timezone at all.
func (t LocalTime) Time() time.Time {
	return time.Time(t)
}

// String returns this time on ISO-8601 form: `hh:mm:ss.nnnnnnnnn`.
func (t LocalTime) String() string {
	return t.Time().Format("15:04:05.999999999")
}

// Time casts LocalDateTime to time.Time.
//
// The location of the returned time.Time is time.Local; from the server's
// point of view a LocalDateTime has no timezone at all.
func (t LocalDateTime) Time() time.Time {
	return time.Time(t)
}

// String returns this value on ISO-8601 form:
// `YYYY-MM-DDThh:mm:ss.nnnnnnnnn`.
func (t LocalDateTime) String() string {
	return t.Time().Format("2006-01-02T15:04:05.999999999")
}

// Time casts Time to time.Time.
func (t Time) Time() time.Time {
	return time.Time(t)
}

// String returns this time on ISO-8601 form:
// `hh:mm:ss.nnnnnnnnn±hh:mm`.
func (t Time) String() string {
	return t.Time().Format("15:04:05.999999999Z07:00")
}

// Duration represents a temporal amount, expressed in months, days,
// seconds and nanoseconds. Supports longer durations than time.Duration.
type Duration struct {
	Months  int64
	Days    int64
	Seconds int64
	Nanos   int
}

// String returns this duration on ISO-8601 form.
func (d Duration) String() string {
	sign := ""
	if d.Seconds < 0 && d.Nanos > 0 {
		d.Seconds++
		d.Nanos = int(time.Second) - d.Nanos

		if d.Seconds == 0 {
			sign = "-"
		}
	}

	timePart := ""
	if d.Nanos == 0 {
		timePart = fmt.Sprintf("%s%d", sign, d.Seconds)
	} else {
		timePart = fmt.Sprintf("%s%d.%09d", sign, d.Seconds, d.Nanos)
	}

	return fmt.Sprintf("P%dM%dDT%sS", d.Months, d.Days, timePart)
}

func (d Duration) Equal(other Duration) bool {
	return d.Months == other.Months && d.Days == other.Days &&
		d.Seconds == other.Seconds && d.Nanos == other.Nanos
}
