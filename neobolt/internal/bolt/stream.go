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
	"errors"

	"github.com/neo4j-drivers/neobolt/neobolt/db"
)

// stream is the client-side state of one result: buffered records,
// batch position and, once finished, the summary or the error that ended
// it.
type stream struct {
	keys       []string
	fetchSize  int
	qid        int64
	tfirst     int64
	attached   bool
	discarding bool
	endOfBatch bool
	sum        *db.Summary
	err        error
	recs       []*db.Record
	key        int64 // Epoch of the owning connection when attached
}

func (s *stream) push(rec *db.Record) {
	s.recs = append(s.recs, rec)
}

func (s *stream) emptyRecords() {
	s.recs = s.recs[:0]
}

// bufferedNext pops a buffered record or reports the end of the stream.
// The boolean is false when neither is available yet and more messages
// must be received.
func (s *stream) bufferedNext() (bool, *db.Record, *db.Summary, error) {
	if len(s.recs) > 0 {
		rec := s.recs[0]
		s.recs = s.recs[1:]
		return true, rec, nil, nil
	}
	if s.sum != nil {
		return true, nil, s.sum, nil
	}
	if s.err != nil {
		return true, nil, nil, s.err
	}
	return false, nil, nil, nil
}

func (s *stream) Err() error {
	return s.err
}

// openStreams tracks the streams of one connection. At most one stream,
// curr, has PULL/DISCARD traffic in flight; the others are paused.
// Resetting bumps the epoch, which invalidates every handed-out stream
// handle at once.
type openStreams struct {
	curr *stream
	num  int
	key  int64
}

var errForeignStream = errors.New("the result is not valid on this connection anymore")

func (o *openStreams) attach(s *stream) {
	s.attached = true
	s.key = o.key
	o.curr = s
	o.num++
}

func (o *openStreams) pause() {
	o.curr = nil
}

func (o *openStreams) resume(s *stream) {
	o.curr = s
}

func (o *openStreams) detach(sum *db.Summary, err error) {
	if o.curr == nil {
		return
	}
	o.curr.sum = sum
	o.curr.err = err
	o.remove(o.curr)
}

func (o *openStreams) remove(s *stream) {
	if o.curr == s {
		o.curr = nil
	}
	if !s.attached {
		return
	}
	s.attached = false
	o.num--
}

func (o *openStreams) reset() {
	o.curr = nil
	o.num = 0
	o.key++
}

// getUnsafe resolves a handle without checking that the stream still
// belongs to this connection epoch. Used where a finished stream is fine
// to observe.
func (o *openStreams) getUnsafe(h any) (*stream, error) {
	if h == nil {
		return nil, errors.New("result handle is nil")
	}
	s, ok := h.(*stream)
	if !ok {
		return nil, errors.New("result handle is of wrong type")
	}
	return s, nil
}

// isSafe verifies that the stream is live on this connection epoch.
func (o *openStreams) isSafe(s *stream) error {
	if s.attached && s.key == o.key {
		return nil
	}
	return errForeignStream
}
