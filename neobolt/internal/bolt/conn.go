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
	"context"
	"errors"
	"fmt"
	"net"
	"reflect"
	"strings"
	"time"

	"github.com/neo4j-drivers/neobolt/neobolt/auth"
	"github.com/neo4j-drivers/neobolt/neobolt/db"
	idb "github.com/neo4j-drivers/neobolt/neobolt/internal/db"
	itime "github.com/neo4j-drivers/neobolt/neobolt/internal/time"
	"github.com/neo4j-drivers/neobolt/neobolt/log"
	"github.com/neo4j-drivers/neobolt/neobolt/notifications"
)

// Connection states. The Negotiating state of the protocol lives in
// Connect, before a boltConn exists; a freshly constructed connection
// starts out unauthenticated.
const (
	stateUnauthenticated = iota // Version agreed, HELLO/LOGON not sent
	stateReady                  // Idle, can run statements
	stateStreaming              // Auto-commit result being streamed
	stateTx                     // Transaction open
	stateTxStreaming            // Result within a transaction being streamed
	stateFailed                 // Server reported a recoverable failure, needs RESET
	stateInterrupted            // RESET sent, response pending
	stateDefunct                // Unrecoverable, the socket is gone or poisoned
)

const defaultFetchSize = 1000

const (
	readTimeoutHintName = "connection.recv_timeout_seconds"
	telemetryHintName   = "telemetry.enabled"
)

// version is a negotiated protocol version.
type version struct {
	major int
	minor int
}

func (v version) atLeast(major, minor int) bool {
	return v.major > major || (v.major == major && v.minor >= minor)
}

func (v version) String() string {
	return fmt.Sprintf("%d.%d", v.major, v.minor)
}

// ConnectionErrorListener is notified of failures on any connection so
// that the pool and the router can react, for example by marking a
// writer as bad or invalidating other connections with the same auth.
type ConnectionErrorListener interface {
	OnServerError(ctx context.Context, c idb.Connection, err *db.ServerError) error
	OnIoError(ctx context.Context, c idb.Connection, err error)
	OnDialError(ctx context.Context, serverName string, err error)
}

// internalTx is the accumulated metadata of a BEGIN or auto-commit RUN.
type internalTx struct {
	mode               idb.AccessMode
	bookmarks          []string
	timeout            time.Duration
	txMeta             map[string]any
	databaseName       string
	impersonatedUser   string
	notificationConfig idb.NotificationConfig
	version            version
}

func (i *internalTx) toMeta(logger log.Logger, logId string) map[string]any {
	if i == nil {
		return nil
	}
	meta := map[string]any{}
	if i.mode == idb.ReadMode {
		meta["mode"] = "r"
	}
	if len(i.bookmarks) > 0 {
		meta["bookmarks"] = i.bookmarks
	}
	ms := i.timeout.Milliseconds()
	if i.timeout.Nanoseconds()%int64(time.Millisecond) > 0 {
		ms++
		logger.Infof(log.Bolt, logId, "the transaction timeout was rounded up to the next millisecond")
	}
	if ms > 0 {
		meta["tx_timeout"] = ms
	}
	if len(i.txMeta) > 0 {
		meta["tx_metadata"] = i.txMeta
	}
	if i.databaseName != idb.DefaultDatabase {
		meta["db"] = i.databaseName
	}
	if i.impersonatedUser != "" {
		meta["imp_user"] = i.impersonatedUser
	}
	if i.version.atLeast(5, 2) {
		i.notificationConfig.ToMeta(meta)
	}
	return meta
}

// boltConn is one Bolt connection of any supported version; differences
// between 4.4 and the 5.x line are gated on the negotiated version
// rather than split over separate implementations.
type boltConn struct {
	version          version
	state            int
	txId             idb.TxHandle
	streams          openStreams
	conn             net.Conn
	serverName       string
	queue            replyQueue
	connId           string
	logId            string
	serverVersion    string
	bookmark         string // Last bookmark the server handed out
	birthDate        time.Time
	idleDate         time.Time
	log              log.Logger
	databaseName     string
	homeDb           string // Resolved home database, Bolt >= 5.8
	err              error  // Last fatal error
	lastQid          int64  // Last seen qid
	auth             map[string]any
	authManager      auth.TokenManager
	resetAuth        bool
	errorListener    ConnectionErrorListener
	telemetryEnabled bool
}

func newBoltConn(
	v version,
	serverName string,
	conn net.Conn,
	errorListener ConnectionErrorListener,
	logger log.Logger,
	boltLog idb.BoltLogger,
) *boltConn {
	now := itime.Now()
	b := &boltConn{
		version:       v,
		state:         stateUnauthenticated,
		conn:          conn,
		serverName:    serverName,
		birthDate:     now,
		idleDate:      now,
		log:           logger,
		lastQid:       -1,
		errorListener: errorListener,
	}
	useUtc := v.atLeast(5, 0)
	b.queue = replyQueue{
		conn: conn,
		in: &incoming{
			buf: make([]byte, 0, 4096),
			hyd: hydrator{
				boltLogger: boltLog,
				useUtc:     useUtc,
				elementIds: useUtc,
			},
			connReadTimeout: -1,
		},
		out: &outgoing{
			onPackErr:  func(err error) { b.setError(err, true) },
			onIoErr:    b.onIoError,
			boltLogger: boltLog,
			useUtc:     useUtc,
			elementIds: useUtc,
		},
		onNextMessage: func() { b.idleDate = itime.Now() },
		onIoErr:       b.onIoError,
	}
	return b
}

func (b *boltConn) ServerName() string {
	return b.serverName
}

func (b *boltConn) ServerVersion() string {
	return b.serverVersion
}

func (b *boltConn) Version() db.ProtocolVersion {
	return db.ProtocolVersion{Major: b.version.major, Minor: b.version.minor}
}

func (b *boltConn) IsAlive() bool {
	return b.state != stateDefunct
}

func (b *boltConn) HasFailed() bool {
	return b.state == stateFailed
}

func (b *boltConn) Birthdate() time.Time {
	return b.birthDate
}

func (b *boltConn) IdleDate() time.Time {
	return b.idleDate
}

func (b *boltConn) Bookmark() string {
	return b.bookmark
}

func (b *boltConn) SelectDatabase(database string) {
	b.databaseName = database
}

func (b *boltConn) Database() string {
	return b.databaseName
}

func (b *boltConn) HomeDatabase() string {
	return b.homeDb
}

func (b *boltConn) SetBoltLogger(logger idb.BoltLogger) {
	b.queue.setBoltLogger(logger)
}

func (b *boltConn) ResetAuth() {
	b.resetAuth = true
}

// setError records an error on the connection. A fatal error makes the
// connection defunct, everything else leaves it in the failed state
// awaiting a RESET.
func (b *boltConn) setError(err error, fatal bool) {
	if err == nil {
		return
	}

	if b.err == nil {
		b.err = err
		b.state = stateFailed
	}
	if fatal {
		b.state = stateDefunct
	}

	// Forward the error to the current stream if there is one
	if b.streams.curr != nil {
		b.streams.detach(nil, err)
		b.checkStreams()
	}

	// Client errors are the caller's business, not connection trouble
	if serverErr, ok := err.(*db.ServerError); ok && serverErr.Classification() == "ClientError" {
		b.log.Debugf(log.Bolt, b.logId, "%s", err)
	} else {
		b.log.Error(log.Bolt, b.logId, err)
	}
}

func (b *boltConn) onIoError(ctx context.Context, err error) {
	if b.state != stateFailed && b.state != stateDefunct {
		// The server closes the connection on some failures; don't
		// report those twice.
		b.errorListener.OnIoError(ctx, b, err)
	}
	b.setError(err, true)
}

func (b *boltConn) onFailure(ctx context.Context, failure *db.ServerError) {
	if failure.HasSecurityCode() && b.authManager != nil {
		handled, mErr := b.authManager.HandleSecurityException(ctx, auth.Token{Tokens: b.auth}, failure.Code)
		if mErr == nil && handled {
			failure.MarkRetriable()
		}
	}
	var err error = failure
	if callbackErr := b.errorListener.OnServerError(ctx, b, failure); callbackErr != nil {
		err = callbackErr
	}
	b.setError(err, isFatalFailure(failure))
}

// isFatalFailure singles out the failures that indicate the server and
// driver no longer agree on the protocol state.
func isFatalFailure(failure *db.ServerError) bool {
	return strings.HasPrefix(failure.Code, "Neo.ClientError.Request.")
}

// assertState does NOT touch b.err or b.state: a state violation is the
// caller misusing a healthy connection.
func (b *boltConn) assertState(allowed ...int) error {
	// A prior error is the root cause of any state mismatch, forward it
	// instead.
	if b.err != nil {
		return b.err
	}
	for _, a := range allowed {
		if b.state == a {
			return nil
		}
	}
	err := fmt.Errorf("invalid state %d, expected: %v", b.state, allowed)
	b.log.Error(log.Bolt, b.logId, err)
	return err
}

func (b *boltConn) assertTxHandle(h1, h2 idb.TxHandle) error {
	if h1 != h2 {
		err := errors.New("invalid transaction handle")
		b.log.Error(log.Bolt, b.logId, err)
		return err
	}
	return nil
}

func (b *boltConn) checkStreams() {
	if b.streams.num > 0 {
		return
	}
	switch b.state {
	case stateTxStreaming:
		b.state = stateTx
	case stateStreaming:
		b.state = stateReady
	}
}

// Connect authenticates the freshly negotiated connection. From Bolt 5.1
// authentication is a separate LOGON exchange, earlier versions inline
// the token in HELLO.
func (b *boltConn) Connect(
	ctx context.Context,
	auth *idb.ReAuthToken,
	userAgent string,
	boltAgent map[string]string,
	routingContext map[string]string,
	notificationConfig idb.NotificationConfig,
) error {
	if err := b.assertState(stateUnauthenticated); err != nil {
		return err
	}
	if err := b.checkReAuthSupport(auth); err != nil {
		return err
	}
	token, err := auth.Manager.GetAuthToken(ctx)
	if err != nil {
		return err
	}
	b.auth = token.Tokens
	b.authManager = auth.Manager

	hello := map[string]any{
		"user_agent": userAgent,
	}
	if routingContext != nil {
		hello["routing"] = routingContext
	}
	if b.version.atLeast(5, 3) && boltAgent != nil {
		hello["bolt_agent"] = boltAgent
	}
	if !b.supportsLogon() {
		// Merge the token into hello without clobbering existing keys
		for k, v := range token.Tokens {
			if _, exists := hello[k]; !exists {
				hello[k] = v
			}
		}
	}
	if err := b.checkNotificationFiltering(notificationConfig); err != nil {
		return err
	}
	if b.version.atLeast(5, 2) {
		notificationConfig.ToMeta(hello)
	}

	b.queue.appendHello(hello, b.expectedSuccessHandler(b.onHelloSuccess))
	if b.supportsLogon() {
		b.queue.appendLogon(token.Tokens, b.expectedSuccessHandler(onSuccessNoOp))
	}
	if b.queue.send(ctx); b.err != nil {
		return b.err
	}
	if err := b.queue.receiveAll(ctx); err != nil {
		return err
	}
	if b.err != nil {
		return b.err
	}

	b.state = stateReady
	b.streams.reset()
	b.log.Infof(log.Bolt, b.logId, "connected (bolt %s)", b.version)
	return nil
}

func (b *boltConn) supportsLogon() bool {
	return b.version.atLeast(5, 1)
}

func (b *boltConn) checkReAuthSupport(auth *idb.ReAuthToken) error {
	if auth.FromSession && !b.supportsLogon() {
		return &db.FeatureNotSupportedError{
			Server:  b.serverName,
			Feature: "session auth",
			Reason:  "requires least bolt 5.1",
		}
	}
	return nil
}

func (b *boltConn) checkNotificationFiltering(config idb.NotificationConfig) error {
	if config.MinSev == notifications.DefaultLevel &&
		!config.DisCats.DisablesNone() && len(config.DisCats.DisabledCategories()) == 0 {
		return nil
	}
	if !b.version.atLeast(5, 2) {
		return &db.FeatureNotSupportedError{
			Server:  b.serverName,
			Feature: "notification filtering",
			Reason:  "requires least bolt 5.2",
		}
	}
	return nil
}

func (b *boltConn) onHelloSuccess(helloSuccess *success) {
	b.connId = helloSuccess.connectionId
	b.serverVersion = helloSuccess.server

	connectionLogId := fmt.Sprintf("%s@%s", b.connId, b.serverName)
	b.logId = connectionLogId
	b.queue.setLogId(connectionLogId)

	b.initializeReadTimeoutHint(helloSuccess.configurationHints)
	b.initializeTelemetryHint(helloSuccess.configurationHints)
}

func (b *boltConn) initializeReadTimeoutHint(hints map[string]any) {
	hint, ok := hints[readTimeoutHintName]
	if !ok {
		return
	}
	seconds, ok := hint.(int64)
	if !ok || seconds <= 0 {
		b.log.Infof(log.Bolt, b.logId,
			"invalid %q hint value %v, ignoring it", readTimeoutHintName, hint)
		return
	}
	b.queue.in.connReadTimeout = time.Duration(seconds) * time.Second
}

func (b *boltConn) initializeTelemetryHint(hints map[string]any) {
	hint, ok := hints[telemetryHintName]
	if !ok {
		return
	}
	enabled, ok := hint.(bool)
	if !ok {
		b.log.Infof(log.Bolt, b.logId,
			"invalid %q hint value %v, ignoring it", telemetryHintName, hint)
		return
	}
	b.telemetryEnabled = enabled
}

// ReAuth makes sure the connection carries the auth identity of the
// token before it is handed out. On Bolt 5.1+ a changed identity is
// renegotiated with LOGOFF+LOGON; earlier versions close the connection
// instead, forcing a fresh dial.
func (b *boltConn) ReAuth(ctx context.Context, auth *idb.ReAuthToken) error {
	if err := b.checkReAuthSupport(auth); err != nil {
		return err
	}
	token, err := auth.Manager.GetAuthToken(ctx)
	if err != nil {
		return err
	}
	sameToken := mapsEqual(b.auth, token.Tokens)
	if !b.supportsLogon() {
		if b.resetAuth || !sameToken {
			b.log.Infof(log.Bolt, b.logId, "closing connection to switch auth identity, no re-auth support before bolt 5.1")
			b.Close(ctx)
		}
		return nil
	}

	if !b.resetAuth && sameToken && !auth.ForceReAuth {
		return nil
	}

	b.queue.appendLogoff(b.expectedSuccessHandler(onSuccessNoOp))
	b.queue.appendLogon(token.Tokens, b.expectedSuccessHandler(onSuccessNoOp))
	if b.queue.send(ctx); b.err != nil {
		return b.err
	}
	b.auth = token.Tokens
	b.authManager = auth.Manager
	b.resetAuth = false
	if auth.ForceReAuth {
		if err := b.queue.receiveAll(ctx); err != nil {
			return err
		}
		if b.err != nil {
			return b.err
		}
	}
	return nil
}

func mapsEqual(a, b map[string]any) bool {
	// Token values may hold nested maps (custom auth parameters)
	return reflect.DeepEqual(a, b)
}

func (b *boltConn) TxBegin(ctx context.Context, txConfig idb.TxConfig, syncMessages bool) (idb.TxHandle, error) {
	// Begin while streaming an auto-commit result is allowed, the
	// remainder of the stream is buffered client side first.
	if b.state == stateStreaming {
		if b.bufferStream(ctx); b.err != nil {
			return 0, b.err
		}
	}
	b.streams.reset()

	if err := b.assertState(stateReady); err != nil {
		return 0, err
	}
	if err := b.checkNotificationFiltering(txConfig.NotificationConfig); err != nil {
		return 0, err
	}

	tx := internalTx{
		mode:               txConfig.Mode,
		bookmarks:          txConfig.Bookmarks,
		timeout:            txConfig.Timeout,
		txMeta:             txConfig.Meta,
		databaseName:       b.databaseName,
		impersonatedUser:   txConfig.ImpersonatedUser,
		notificationConfig: txConfig.NotificationConfig,
		version:            b.version,
	}
	b.queue.appendBegin(tx.toMeta(b.log, b.logId), b.expectedSuccessHandler(b.onBeginSuccess))
	if syncMessages {
		if b.queue.send(ctx); b.err != nil {
			return 0, b.err
		}
		if err := b.queue.receiveAll(ctx); err != nil {
			return 0, err
		}
	}
	if b.err != nil {
		return 0, b.err
	}

	b.state = stateTx
	b.txId = idb.TxHandle(itime.Now().UnixNano())
	return b.txId, nil
}

func (b *boltConn) onBeginSuccess(beginSuccess *success) {
	b.recordHomeDb(beginSuccess)
}

// recordHomeDb remembers the home database the server resolved for this
// principal, reported from Bolt 5.8 when no database was named.
func (b *boltConn) recordHomeDb(suc *success) {
	if !b.version.atLeast(5, 8) {
		return
	}
	if suc.db != "" && b.databaseName == idb.DefaultDatabase {
		b.homeDb = suc.db
	}
}

func (b *boltConn) TxCommit(ctx context.Context, txh idb.TxHandle) error {
	if err := b.assertTxHandle(b.txId, txh); err != nil {
		return err
	}

	// Results of the transaction are invisible after commit, discard
	// anything still open.
	if b.discardAllStreams(ctx); b.err != nil {
		return b.err
	}
	if err := b.assertState(stateTx); err != nil {
		return err
	}

	b.queue.appendCommit(b.expectedSuccessHandler(b.onCommitSuccess))
	if b.queue.send(ctx); b.err != nil {
		return b.err
	}
	if err := b.queue.receiveAll(ctx); err != nil {
		return err
	}
	if b.err != nil {
		return b.err
	}

	b.state = stateReady
	return nil
}

func (b *boltConn) onCommitSuccess(commitSuccess *success) {
	if len(commitSuccess.bookmark) > 0 {
		b.bookmark = commitSuccess.bookmark
	}
}

func (b *boltConn) TxRollback(ctx context.Context, txh idb.TxHandle) error {
	if err := b.assertTxHandle(b.txId, txh); err != nil {
		return err
	}

	if b.discardAllStreams(ctx); b.err != nil {
		return b.err
	}
	if err := b.assertState(stateTx); err != nil {
		return err
	}

	b.queue.appendRollback(b.expectedSuccessHandler(onSuccessNoOp))
	if b.queue.send(ctx); b.err != nil {
		return b.err
	}
	if err := b.queue.receiveAll(ctx); err != nil {
		return err
	}
	if b.err != nil {
		return b.err
	}

	b.state = stateReady
	return nil
}

func (b *boltConn) Run(ctx context.Context, cmd idb.Command, txConfig idb.TxConfig) (idb.StreamHandle, error) {
	if err := b.assertState(stateStreaming, stateReady); err != nil {
		return nil, err
	}
	if err := b.checkNotificationFiltering(txConfig.NotificationConfig); err != nil {
		return nil, err
	}

	tx := internalTx{
		mode:               txConfig.Mode,
		bookmarks:          txConfig.Bookmarks,
		timeout:            txConfig.Timeout,
		txMeta:             txConfig.Meta,
		databaseName:       b.databaseName,
		impersonatedUser:   txConfig.ImpersonatedUser,
		notificationConfig: txConfig.NotificationConfig,
		version:            b.version,
	}
	return b.run(ctx, cmd.Cypher, cmd.Params, cmd.FetchSize, &tx)
}

func (b *boltConn) RunTx(ctx context.Context, txh idb.TxHandle, cmd idb.Command) (idb.StreamHandle, error) {
	if err := b.assertTxHandle(b.txId, txh); err != nil {
		return nil, err
	}
	return b.run(ctx, cmd.Cypher, cmd.Params, cmd.FetchSize, nil)
}

func (b *boltConn) run(ctx context.Context, cypher string, params map[string]any, rawFetchSize int, tx *internalTx) (*stream, error) {
	// A still-streaming previous result is consumed into client memory
	// (auto-commit) or paused (in-tx) before the next RUN goes out.
	if b.state == stateStreaming {
		if b.bufferStream(ctx); b.err != nil {
			return nil, b.err
		}
	} else if b.state == stateTxStreaming {
		if b.pauseStream(ctx); b.err != nil {
			return nil, b.err
		}
	}

	if err := b.assertState(stateTx, stateReady, stateTxStreaming); err != nil {
		return nil, err
	}

	fetchSize := normalizeFetchSize(rawFetchSize)
	stream := &stream{fetchSize: fetchSize}
	b.queue.appendRun(cypher, params, tx.toMeta(b.log, b.logId), b.runResponseHandler(stream))
	b.queue.appendPullN(fetchSize, b.pullResponseHandler(stream))
	if b.queue.send(ctx); b.err != nil {
		return nil, b.err
	}
	// Only receive the RUN response here, records flow on demand
	for !stream.attached {
		if err := b.queue.receive(ctx); err != nil {
			return nil, err
		}
		if b.err != nil {
			return nil, b.err
		}
	}

	if b.state == stateReady {
		b.state = stateStreaming
	} else if b.state == stateTx {
		b.state = stateTxStreaming
	}
	return stream, nil
}

func normalizeFetchSize(fetchSize int) int {
	if fetchSize < 0 {
		return -1
	}
	if fetchSize == 0 {
		return defaultFetchSize
	}
	return fetchSize
}

func (b *boltConn) runResponseHandler(stream *stream) responseHandler {
	return b.expectedSuccessHandler(func(runSuccess *success) {
		stream.keys = runSuccess.fields
		stream.qid = runSuccess.qid
		stream.tfirst = runSuccess.tfirst
		if runSuccess.qid > -1 {
			b.lastQid = runSuccess.qid
		}
		b.recordHomeDb(runSuccess)
		b.streams.attach(stream)
	})
}

func (b *boltConn) pullResponseHandler(stream *stream) responseHandler {
	return responseHandler{
		onRecord: func(record *db.Record) {
			if stream.discarding {
				stream.emptyRecords()
			} else {
				record.Keys = stream.keys
				stream.push(record)
			}
			b.queue.pushFront(b.pullResponseHandler(stream))
		},
		onIgnored: func(*ignored) {
			stream.err = errors.New("stream interrupted while pulling results")
			b.streams.remove(stream)
			b.checkStreams()
		},
		onSuccess: func(pullSuccess *success) {
			if stream.discarding {
				stream.emptyRecords()
			}
			if pullSuccess.hasMore {
				stream.endOfBatch = true
				return
			}
			b.finishStream(stream, pullSuccess)
		},
		onFailure: func(ctx context.Context, failure *db.ServerError) {
			stream.err = failure
			b.onFailure(ctx, failure) // Detaches the stream
		},
	}
}

func (b *boltConn) discardResponseHandler(stream *stream) responseHandler {
	return responseHandler{
		onIgnored: func(*ignored) {
			stream.err = errors.New("stream interrupted while discarding results")
			b.streams.remove(stream)
			b.checkStreams()
		},
		onSuccess: func(discardSuccess *success) {
			if discardSuccess.hasMore {
				stream.endOfBatch = true
				return
			}
			b.finishStream(stream, discardSuccess)
		},
		onFailure: func(ctx context.Context, failure *db.ServerError) {
			stream.err = failure
			b.onFailure(ctx, failure)
		},
	}
}

func (b *boltConn) finishStream(stream *stream, suc *success) {
	summary := b.extractSummary(suc, stream)
	if len(summary.Bookmark) > 0 {
		b.bookmark = summary.Bookmark
	}
	stream.sum = summary
	b.streams.remove(stream)
	b.checkStreams()
}

func (b *boltConn) extractSummary(suc *success, stream *stream) *db.Summary {
	summary := suc.summary()
	summary.Agent = b.serverVersion
	summary.Major = b.version.major
	summary.Minor = b.version.minor
	summary.ServerName = b.serverName
	summary.TFirst = stream.tfirst
	return summary
}

func (b *boltConn) appendPullN(stream *stream) {
	if b.state == stateStreaming {
		b.queue.appendPullN(stream.fetchSize, b.pullResponseHandler(stream))
	} else if b.state == stateTxStreaming {
		if stream.qid == b.lastQid {
			b.queue.appendPullN(stream.fetchSize, b.pullResponseHandler(stream))
		} else {
			b.queue.appendPullNQid(stream.fetchSize, stream.qid, b.pullResponseHandler(stream))
		}
	}
}

func (b *boltConn) Keys(streamHandle idb.StreamHandle) ([]string, error) {
	stream, err := b.streams.getUnsafe(streamHandle)
	if err != nil {
		return nil, err
	}
	return stream.keys, nil
}

// Next returns the next record of the stream, fetching batches from the
// server as needed.
func (b *boltConn) Next(ctx context.Context, streamHandle idb.StreamHandle) (*db.Record, *db.Summary, error) {
	stream, err := b.streams.getUnsafe(streamHandle)
	if err != nil {
		return nil, nil, err
	}

	for {
		buffered, rec, sum, err := stream.bufferedNext()
		if buffered {
			return rec, sum, err
		}
		if stream.endOfBatch {
			b.appendPullN(stream)
			if b.queue.send(ctx); b.err != nil {
				return nil, nil, b.err
			}
			stream.endOfBatch = false
		}
		if b.queue.isEmpty() {
			return nil, nil, errors.New("there should be more results to pull")
		}
		if err := b.queue.receive(ctx); err != nil {
			return nil, nil, err
		}
		if b.err != nil {
			return nil, nil, b.err
		}
	}
}

func (b *boltConn) Consume(ctx context.Context, streamHandle idb.StreamHandle) (*db.Summary, error) {
	stream, err := b.streams.getUnsafe(streamHandle)
	if err != nil {
		return nil, err
	}

	// A finished stream keeps its outcome whatever connection it came
	// from.
	if stream.sum != nil || stream.err != nil {
		return stream.sum, stream.err
	}
	if err = b.streams.isSafe(stream); err != nil {
		return nil, err
	}
	if err = b.assertState(stateStreaming, stateTxStreaming); err != nil {
		return nil, err
	}

	if stream != b.streams.curr {
		b.pauseStream(ctx)
		if b.err != nil {
			return nil, b.err
		}
		b.resumeStream(ctx, stream)
	}

	b.discardStream(ctx)
	return stream.sum, stream.err
}

func (b *boltConn) Buffer(ctx context.Context, streamHandle idb.StreamHandle) error {
	stream, err := b.streams.getUnsafe(streamHandle)
	if err != nil {
		return err
	}

	if stream.sum != nil || stream.err != nil {
		return stream.Err()
	}
	if err = b.streams.isSafe(stream); err != nil {
		return err
	}
	if err = b.assertState(stateStreaming, stateTxStreaming); err != nil {
		return err
	}

	if stream != b.streams.curr {
		b.pauseStream(ctx)
		if b.err != nil {
			return b.err
		}
		b.resumeStream(ctx, stream)
	}

	b.bufferStream(ctx)
	return stream.Err()
}

// bufferStream pulls the remainder of the current stream into client
// memory.
func (b *boltConn) bufferStream(ctx context.Context) {
	stream := b.streams.curr
	if stream == nil {
		return
	}

	for {
		if err := b.queue.receiveAll(ctx); err != nil {
			return
		}
		if b.err != nil {
			return
		}
		if stream.sum != nil || stream.err != nil {
			return
		}
		if stream.endOfBatch {
			stream.fetchSize = -1
			b.appendPullN(stream)
			if b.queue.send(ctx); b.err != nil {
				return
			}
			stream.endOfBatch = false
		}
	}
}

// discardStream drops the remainder of the current stream server side.
func (b *boltConn) discardStream(ctx context.Context) {
	if b.state != stateStreaming && b.state != stateTxStreaming {
		return
	}
	stream := b.streams.curr
	if stream == nil {
		return
	}

	stream.discarding = true // Pull handler drops already accumulated records
	discarded := false
	for {
		if err := b.queue.receiveAll(ctx); err != nil {
			return
		}
		if b.err != nil {
			return
		}
		if stream.sum != nil || stream.err != nil {
			return
		}
		if stream.endOfBatch && discarded {
			b.streams.remove(stream)
			b.checkStreams()
			return
		}
		discarded = true
		stream.fetchSize = -1 // Everything that remains
		if b.state == stateTxStreaming && stream.qid != b.lastQid {
			b.queue.appendDiscardNQid(stream.fetchSize, stream.qid, b.discardResponseHandler(stream))
		} else {
			b.queue.appendDiscardN(stream.fetchSize, b.discardResponseHandler(stream))
		}
		if b.queue.send(ctx); b.err != nil {
			return
		}
	}
}

func (b *boltConn) discardAllStreams(ctx context.Context) {
	if b.state != stateStreaming && b.state != stateTxStreaming {
		return
	}
	b.discardStream(ctx)
	b.streams.reset()
	b.checkStreams()
}

// pauseStream receives the ongoing batch to its end and unsets the
// current stream.
func (b *boltConn) pauseStream(ctx context.Context) {
	stream := b.streams.curr
	if stream == nil {
		return
	}

	if err := b.queue.receiveAll(ctx); err != nil {
		return
	}
	if b.err != nil {
		return
	}
	if stream.sum != nil || stream.err != nil {
		return
	}
	if stream.endOfBatch {
		b.streams.pause()
	}
}

func (b *boltConn) resumeStream(ctx context.Context, s *stream) {
	b.streams.resume(s)
	s.endOfBatch = false
	b.appendPullN(s)
	b.queue.send(ctx)
}

// Reset brings the connection back to ready and clears all session
// state from it.
func (b *boltConn) Reset(ctx context.Context) {
	defer func() {
		b.log.Debugf(log.Bolt, b.logId, "resetting connection internal state")
		b.txId = 0
		b.bookmark = ""
		b.databaseName = idb.DefaultDatabase
		b.homeDb = ""
		b.err = nil
		b.lastQid = -1
		b.streams.reset()
	}()

	if b.state == stateReady {
		return
	}
	b.ForceReset(ctx)
}

// ForceReset sends a RESET probe even when the connection looks fine,
// used as the liveness check on long-idle pooled connections.
func (b *boltConn) ForceReset(ctx context.Context) {
	if b.state == stateDefunct {
		return
	}

	// A pending error should match the failed state, which RESET clears
	b.err = nil

	if err := b.queue.receiveAll(ctx); b.err != nil || err != nil {
		return
	}
	b.state = stateInterrupted
	b.queue.appendReset(responseHandler{
		onSuccess: func(*success) {
			b.state = stateReady
		},
		onFailure: func(ctx context.Context, failure *db.ServerError) {
			_ = b.errorListener.OnServerError(ctx, b, failure)
			b.state = stateDefunct
		},
	})
	if b.queue.send(ctx); b.err != nil {
		return
	}
	_ = b.queue.receive(ctx)
}

func (b *boltConn) GetRoutingTable(
	ctx context.Context,
	routingContext map[string]string,
	bookmarks []string,
	database, impersonatedUser string,
) (*idb.RoutingTable, error) {
	if err := b.assertState(stateReady); err != nil {
		return nil, err
	}

	b.log.Infof(log.Bolt, b.logId, "retrieving routing table")
	extras := map[string]any{}
	if database != idb.DefaultDatabase {
		extras["db"] = database
	}
	if impersonatedUser != "" {
		extras["imp_user"] = impersonatedUser
	}

	var routingTable *idb.RoutingTable
	b.queue.appendRoute(routingContext, bookmarks, extras, b.expectedSuccessHandler(func(routeSuccess *success) {
		routingTable = routeSuccess.routingTable
	}))
	if b.queue.send(ctx); b.err != nil {
		return nil, b.err
	}
	if err := b.queue.receiveAll(ctx); err != nil {
		return nil, err
	}
	if b.err != nil {
		return nil, b.err
	}
	if routingTable == nil {
		return nil, errors.New("the server answered ROUTE without a routing table")
	}
	// The database the table was resolved for, usually relevant when
	// asking for the default database
	if routingTable.DatabaseName == "" {
		routingTable.DatabaseName = database
	}
	return routingTable, nil
}

// Telemetry reports which API triggered the following request. Sent
// only when the server opted in via hint and the version can express it.
func (b *boltConn) Telemetry(api idb.TelemetryAPI, onSuccess func()) {
	if !b.telemetryEnabled || !b.version.atLeast(5, 4) {
		return
	}
	b.queue.appendTelemetry(int(api), b.expectedSuccessHandler(func(*success) {
		if onSuccess != nil {
			onSuccess()
		}
	}))
}

// Close sends GOODBYE and closes the socket. May be called from another
// thread when the driver shuts down.
func (b *boltConn) Close(ctx context.Context) {
	b.log.Infof(log.Bolt, b.logId, "close")
	if b.state != stateDefunct {
		b.state = stateDefunct
		b.queue.appendGoodbye()
		b.queue.send(ctx)
	}
	if err := b.conn.Close(); err != nil {
		b.log.Warnf(log.Driver, b.serverName, "could not close underlying socket")
	}
}

func (b *boltConn) expectedSuccessHandler(onSuccess func(*success)) responseHandler {
	return responseHandler{
		onSuccess: onSuccess,
		onFailure: b.onFailure,
		onIgnored: onIgnoredNoOp,
	}
}
