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

// Package retry decides whether a failed managed transaction attempt is
// worth another try, and how long to sleep before it.
package retry

import (
	"time"

	"github.com/neo4j-drivers/neobolt/neobolt/db"
	idb "github.com/neo4j-drivers/neobolt/neobolt/internal/db"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/errorutil"
	"github.com/neo4j-drivers/neobolt/neobolt/log"
)

// Router is the slice of the routing layer the retry logic needs to
// react to cluster-shaped failures.
type Router interface {
	Invalidate(database string)
	InvalidateWriter(database string, server string)
}

// State drives one managed transaction through its attempts. The
// exported fields are configuration, set once before the first attempt,
// except Errs, Throttle and TelemetrySent, which the attempts update.
type State struct {
	Errs                    []error
	MaxTransactionRetryTime time.Duration
	Log                     log.Logger
	LogName                 string
	LogId                   string
	Now                     func() time.Time
	Sleep                   func(time.Duration)
	Throttle                Throttler
	MaxDeadConnections      int
	Router                  Router
	DatabaseName            string
	// TelemetrySent survives across attempts so the TELEMETRY message
	// goes out at most once per managed transaction.
	TelemetrySent bool

	retryable  bool
	cause      string
	causes     []string
	deadErrors int
	skipSleep  bool
	start      time.Time
}

// OnFailure records the outcome of a failed attempt. isCommitting tells
// whether the failure happened after COMMIT was sent, when the effect
// of the transaction is unknown and a retry could apply it twice.
func (s *State) OnFailure(err error, conn idb.Connection, isCommitting bool) {
	s.Errs = append(s.Errs, err)
	s.retryable = false
	s.cause = ""
	s.skipSleep = false

	if s.start.IsZero() {
		s.start = s.Now()
	}
	if s.Now().Sub(s.start) > s.MaxTransactionRetryTime {
		s.cause = "retry budget exhausted"
		s.causes = append(s.causes, s.cause)
		return
	}

	// No connection at all: nothing was written, safe to retry
	if conn == nil {
		s.retryable = true
		s.cause = "no available connection"
		return
	}

	if !conn.IsAlive() {
		if isCommitting {
			// The commit may have gone through, retrying could apply
			// the work twice
			s.cause = "connection lost during commit"
			s.causes = append(s.causes, s.cause)
			return
		}
		s.deadErrors++
		s.retryable = s.deadErrors <= s.MaxDeadConnections
		s.cause = "connection lost"
		s.skipSleep = true
		return
	}

	if serverErr, ok := err.(*db.ServerError); ok {
		switch {
		case serverErr.IsRetriableCluster():
			// The routing table pointed at a server that can no longer
			// take writes
			if s.Router != nil {
				s.Router.InvalidateWriter(s.DatabaseName, conn.ServerName())
				s.Router.Invalidate(s.DatabaseName)
			}
			s.retryable = true
			s.cause = "cluster error"
		case serverErr.IsRetriableTransient():
			s.retryable = true
			s.cause = "transient error"
		case serverErr.IsRetriable():
			s.retryable = true
			s.cause = "retryable server error"
		}
		return
	}

	if errorutil.IsRetryable(err) {
		s.retryable = true
		s.cause = "connectivity error"
	}
}

// Continue reports whether another attempt should be made, sleeping
// per the backoff policy first.
func (s *State) Continue() bool {
	if len(s.Errs) == 0 {
		return true
	}
	if !s.retryable {
		if s.cause != "" {
			s.Log.Warnf(s.LogName, s.LogId, "transaction failed (%s): %s", s.cause, s.Errs[len(s.Errs)-1])
		}
		return false
	}

	s.causes = append(s.causes, s.cause)
	last := s.Errs[len(s.Errs)-1]
	if s.skipSleep {
		s.Log.Debugf(s.LogName, s.LogId, "retrying transaction (%s): %s", s.cause, last)
	} else {
		s.Throttle = s.Throttle.next()
		sleepTime := s.Throttle.delay()
		s.Log.Debugf(s.LogName, s.LogId, "retrying transaction (%s): %s [after %s]", s.cause, last, sleepTime)
		s.Sleep(sleepTime)
	}
	return true
}

// ProduceError builds the terminal error once Continue said no.
func (s *State) ProduceError() error {
	if len(s.Errs) == 0 {
		return errorutil.NewTransactionExecutionLimit(nil, s.causes)
	}
	last := s.Errs[len(s.Errs)-1]
	if !errorutil.IsRetryable(last) {
		// Non-retryable errors propagate unchanged
		return last
	}
	return errorutil.NewTransactionExecutionLimit(s.Errs, s.causes)
}
