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

// Package bolt implements the Bolt protocol engine: version negotiation,
// message framing and the per-connection state machine.
package bolt

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	idb "github.com/neo4j-drivers/neobolt/neobolt/internal/db"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/errorutil"
	"github.com/neo4j-drivers/neobolt/neobolt/log"
)

// proposal is one 4-byte handshake slot: a version plus the number of
// consecutive earlier minors the client also accepts.
type proposal struct {
	major byte
	minor byte
	back  byte
}

func (p proposal) bytes() [4]byte {
	return [4]byte{0x00, p.back, p.minor, p.major}
}

// Proposed versions, newest first. The first slot asks for the
// manifest style negotiation; servers too old to know it fall back to
// picking from the remaining slots.
var proposals = [4]proposal{
	{major: 0xff, minor: 0x01}, // Handshake manifest v1
	{major: 5, minor: 8, back: 8},
	{major: 4, minor: 4},
	{},
}

func supportedVersion(major, minor int) bool {
	switch major {
	case 5:
		return minor >= 0 && minor <= 8
	case 4:
		return minor == 4
	}
	return false
}

// Connect negotiates a protocol version, then authenticates. Returns a
// connection in its ready state.
func Connect(ctx context.Context,
	serverName string,
	conn net.Conn,
	auth *idb.ReAuthToken,
	userAgent string,
	routingContext map[string]string,
	errorListener ConnectionErrorListener,
	logger log.Logger,
	boltLogger idb.BoltLogger,
	notificationConfig idb.NotificationConfig,
) (idb.Connection, error) {
	v, err := negotiate(ctx, serverName, conn, boltLogger, errorListener)
	if err != nil {
		return nil, err
	}

	boltConn := newBoltConn(v, serverName, conn, errorListener, logger, boltLogger)
	if err := boltConn.Connect(ctx, auth, userAgent, boltAgent(), routingContext, notificationConfig); err != nil {
		boltConn.Close(ctx)
		return nil, err
	}
	return boltConn, nil
}

func negotiate(ctx context.Context,
	serverName string,
	conn net.Conn,
	boltLogger idb.BoltLogger,
	errorListener ConnectionErrorListener,
) (version, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return version{}, err
		}
	} else if err := conn.SetDeadline(time.Time{}); err != nil {
		return version{}, err
	}

	handshake := make([]byte, 0, 20)
	handshake = append(handshake, 0x60, 0x60, 0xb0, 0x17) // Magic: GoGoBolt
	for _, p := range proposals {
		b := p.bytes()
		handshake = append(handshake, b[:]...)
	}
	if boltLogger != nil {
		boltLogger.LogClientMessage("", "<MAGIC> %#010X", handshake[0:4])
		boltLogger.LogClientMessage("", "<HANDSHAKE> %#010X %#010X %#010X %#010X",
			handshake[4:8], handshake[8:12], handshake[12:16], handshake[16:20])
	}
	if _, err := conn.Write(handshake); err != nil {
		errorListener.OnDialError(ctx, serverName, err)
		return version{}, err
	}

	buf := make([]byte, 4)
	if _, err := io.ReadFull(conn, buf); err != nil {
		errorListener.OnDialError(ctx, serverName, err)
		return version{}, err
	}
	if boltLogger != nil {
		boltLogger.LogServerMessage("", "<HANDSHAKE> %#010X", buf)
	}

	major := int(buf[3])
	minor := int(buf[2])
	switch {
	case major == 0xff && minor == 0x01:
		// Manifest style: the server follows up with everything it
		// supports, the client picks and confirms.
		v, err := negotiateManifest(ctx, serverName, conn, boltLogger, errorListener)
		if err != nil {
			return version{}, err
		}
		return v, nil
	case major == 0 && minor == 0:
		return version{}, &errorutil.UsageError{
			Message: fmt.Sprintf("server did not accept any of the requested Bolt versions (%v)", proposals)}
	case major == 80 && minor == 84:
		return version{}, &errorutil.UsageError{
			Message: "server responded HTTP; make sure you are not connecting to the http endpoint " +
				"(HTTP defaults to port 7474, Bolt to port 7687)"}
	case !supportedVersion(major, minor):
		return version{}, &errorutil.UsageError{
			Message: fmt.Sprintf("server responded with unsupported version %d.%d", major, minor)}
	}
	return version{major: major, minor: minor}, nil
}

// negotiateManifest runs the second round of the manifest v1 handshake:
// a varint count of version entries, the entries, and a capability
// bitmask. The client answers with its pick and the capabilities it
// wants (none).
func negotiateManifest(ctx context.Context,
	serverName string,
	conn net.Conn,
	boltLogger idb.BoltLogger,
	errorListener ConnectionErrorListener,
) (version, error) {
	fail := func(err error) (version, error) {
		errorListener.OnDialError(ctx, serverName, err)
		return version{}, err
	}

	count, err := readVarint(conn)
	if err != nil {
		return fail(err)
	}
	best := version{}
	found := false
	entry := make([]byte, 4)
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(conn, entry); err != nil {
			return fail(err)
		}
		if boltLogger != nil {
			boltLogger.LogServerMessage("", "<MANIFEST VERSION> %#010X", entry)
		}
		major := int(entry[3])
		high := int(entry[2])
		back := int(entry[1])
		for minor := high; minor >= high-back && minor >= 0; minor-- {
			if !supportedVersion(major, minor) {
				continue
			}
			candidate := version{major: major, minor: minor}
			if !found || candidate.atLeast(best.major, best.minor) {
				best = candidate
				found = true
			}
		}
	}
	capabilities, err := readVarint(conn)
	if err != nil {
		return fail(err)
	}
	if boltLogger != nil {
		boltLogger.LogServerMessage("", "<MANIFEST CAPABILITIES> %#02X", capabilities)
	}

	choice := make([]byte, 0, 5)
	if !found {
		// Confirm with an all-zero choice before giving up, the server
		// expects the reply either way
		choice = append(choice, 0x00, 0x00, 0x00, 0x00)
		choice = appendVarint(choice, 0)
		_, _ = conn.Write(choice)
		return version{}, &errorutil.UsageError{
			Message: "server's version manifest contains no version supported by this driver"}
	}
	choice = append(choice, 0x00, 0x00, byte(best.minor), byte(best.major))
	choice = appendVarint(choice, 0) // No capabilities requested
	if boltLogger != nil {
		boltLogger.LogClientMessage("", "<MANIFEST CHOICE> %#010X", choice[0:4])
	}
	if _, err := conn.Write(choice); err != nil {
		return fail(err)
	}
	return best, nil
}

// readVarint reads a base-128 little-endian variable length unsigned
// integer, as used by the manifest sub-handshake.
func readVarint(rd io.Reader) (uint64, error) {
	var value uint64
	var shift uint
	buf := make([]byte, 1)
	for {
		if _, err := io.ReadFull(rd, buf); err != nil {
			return 0, err
		}
		value |= uint64(buf[0]&0x7f) << shift
		if buf[0]&0x80 == 0 {
			return value, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, fmt.Errorf("malformed varint in handshake manifest")
		}
	}
}

func appendVarint(buf []byte, value uint64) []byte {
	for value >= 0x80 {
		buf = append(buf, byte(value)|0x80)
		value >>= 7
	}
	return append(buf, byte(value))
}
