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

package neobolt

import (
	"context"
	"fmt"
	"time"

	bm "github.com/neo4j-drivers/neobolt/neobolt/bookmarks"
	"github.com/neo4j-drivers/neobolt/neobolt/config"
	"github.com/neo4j-drivers/neobolt/neobolt/db"
	idb "github.com/neo4j-drivers/neobolt/neobolt/internal/db"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/errorutil"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/retry"
	"github.com/neo4j-drivers/neobolt/neobolt/log"
)

// ManagedTransactionWork is a unit of work executed, and possibly
// re-executed, inside a managed transaction.
type ManagedTransactionWork func(tx ManagedTransaction) (any, error)

// FetchAll turns off fetching records in batches.
const FetchAll = -1

// FetchDefault lets the driver decide the batch size.
const FetchDefault = 0

// Session is a single-threaded causal scope: statements run in program
// order and each observes the writes of those before it. Only one
// result is live per session at a time; starting a new statement
// buffers the previous result.
type Session interface {
	// LastBookmarks returns the bookmark set observed after the last
	// completed transaction, or the initial set.
	LastBookmarks() bm.Bookmarks
	// BeginTransaction starts an explicit transaction.
	BeginTransaction(ctx context.Context, configurers ...func(*config.TransactionConfig)) (ExplicitTransaction, error)
	// ExecuteRead runs the unit of work in a read transaction with
	// retry.
	ExecuteRead(ctx context.Context, work ManagedTransactionWork, configurers ...func(*config.TransactionConfig)) (any, error)
	// ExecuteWrite runs the unit of work in a write transaction with
	// retry.
	ExecuteWrite(ctx context.Context, work ManagedTransactionWork, configurers ...func(*config.TransactionConfig)) (any, error)
	// Run executes an auto-commit statement and returns its lazily
	// streamed result.
	Run(ctx context.Context, cypher string, params map[string]any, configurers ...func(*config.TransactionConfig)) (Result, error)
	// Close discards the session. Open transactions are rolled back,
	// unconsumed results discarded.
	Close(ctx context.Context) error

	executeQueryRead(ctx context.Context, work ManagedTransactionWork, configurers ...func(*config.TransactionConfig)) (any, error)
	executeQueryWrite(ctx context.Context, work ManagedTransactionWork, configurers ...func(*config.TransactionConfig)) (any, error)
	getServerInfo(ctx context.Context) (ServerInfo, error)
}

// ServerInfo describes the server a session talked to.
type ServerInfo interface {
	Address() string
	Agent() string
	ProtocolVersion() db.ProtocolVersion
}

type simpleServerInfo struct {
	address         string
	agent           string
	protocolVersion db.ProtocolVersion
}

func (i simpleServerInfo) Address() string                    { return i.address }
func (i simpleServerInfo) Agent() string                     { return i.agent }
func (i simpleServerInfo) ProtocolVersion() db.ProtocolVersion { return i.protocolVersion }

// sessionPool is the pool as seen by the session.
type sessionPool interface {
	Borrow(ctx context.Context, getServerNames func() []string, wait bool, boltLogger idb.BoltLogger,
		livenessCheckThreshold time.Duration, auth *idb.ReAuthToken) (idb.Connection, error)
	Return(ctx context.Context, c idb.Connection)
	CleanUp(ctx context.Context)
}

type session struct {
	driverConfig  *config.Config
	defaultMode   idb.AccessMode
	bookmarks     *sessionBookmarks
	resolveHomeDb bool
	pool          sessionPool
	router        sessionRouter
	explicitTx    *explicitTransaction
	autocommitTx  *autocommitTransaction
	sleep         func(d time.Duration)
	now           func() time.Time
	logId         string
	log           log.Logger
	throttleTime  time.Duration
	fetchSize     int
	config        config.SessionConfig
	auth          *idb.ReAuthToken
	closed        bool
}

func newSession(
	driverConfig *config.Config,
	sessConfig config.SessionConfig,
	router sessionRouter,
	sessPool sessionPool,
	logger log.Logger,
	token *idb.ReAuthToken,
	now func() time.Time,
) *session {
	logId := log.NewId()
	logger.Debugf(log.Session, logId, "created")

	fetchSize := driverConfig.FetchSize
	if sessConfig.FetchSize != FetchDefault {
		fetchSize = sessConfig.FetchSize
	}

	return &session{
		driverConfig:  driverConfig,
		router:        router,
		pool:          sessPool,
		defaultMode:   idb.AccessMode(sessConfig.AccessMode),
		bookmarks:     newSessionBookmarks(sessConfig.BookmarkManager, sessConfig.Bookmarks),
		config:        sessConfig,
		resolveHomeDb: sessConfig.DatabaseName == "",
		sleep:         time.Sleep,
		now:           now,
		log:           logger,
		logId:         logId,
		throttleTime:  time.Second,
		fetchSize:     fetchSize,
		auth:          token,
	}
}

func (s *session) LastBookmarks() bm.Bookmarks {
	// An unconsumed auto-commit result may hold a newer bookmark on its
	// connection
	if s.autocommitTx != nil {
		s.retrieveSessionBookmarks(s.autocommitTx.conn)
	}
	return s.bookmarks.currentBookmarks()
}

func (s *session) BeginTransaction(ctx context.Context, configurers ...func(*config.TransactionConfig)) (ExplicitTransaction, error) {
	if s.closed {
		return nil, &errorutil.UsageError{Message: "session is closed"}
	}
	if s.explicitTx != nil {
		err := &errorutil.UsageError{Message: "session already has a pending transaction"}
		s.log.Error(log.Session, s.logId, err)
		return nil, err
	}
	if s.autocommitTx != nil {
		s.autocommitTx.done(ctx)
	}

	txConfig := defaultTransactionConfig()
	for _, configure := range configurers {
		configure(&txConfig)
	}
	if err := validateTransactionConfig(txConfig); err != nil {
		return nil, err
	}

	conn, err := s.getConnection(ctx, s.defaultMode, s.driverConfig.ConnectionLivenessCheckTimeout)
	if err != nil {
		return nil, errorutil.WrapError(err)
	}

	if !s.driverConfig.TelemetryDisabled {
		conn.Telemetry(idb.TelemetryUnmanagedTransaction, nil)
	}

	beginBookmarks, err := s.getBookmarks(ctx)
	if err != nil {
		s.pool.Return(ctx, conn)
		return nil, errorutil.WrapError(err)
	}
	txHandle, err := conn.TxBegin(ctx, s.txConfigOf(s.defaultMode, beginBookmarks, txConfig), true)
	if err != nil {
		s.pool.Return(ctx, conn)
		return nil, errorutil.WrapError(err)
	}

	tx := &explicitTransaction{
		conn:      conn,
		fetchSize: s.fetchSize,
		txHandle:  txHandle,
	}
	tx.onClosed = func() {
		if tx.conn == nil {
			return
		}
		s.noteHomeDb(ctx, tx.conn)
		if err := s.retrieveBookmarks(ctx, tx.conn, beginBookmarks); err != nil {
			s.log.Warnf(log.Session, s.logId, "could not retrieve bookmarks: %s", err)
		}
		s.pool.Return(ctx, tx.conn)
		tx.conn = nil
		s.explicitTx = nil
	}
	s.explicitTx = tx
	return tx, nil
}

func (s *session) ExecuteRead(ctx context.Context, work ManagedTransactionWork,
	configurers ...func(*config.TransactionConfig)) (any, error) {
	return s.runRetriable(ctx, idb.ReadMode, work, idb.TelemetryManagedTransaction, configurers...)
}

func (s *session) ExecuteWrite(ctx context.Context, work ManagedTransactionWork,
	configurers ...func(*config.TransactionConfig)) (any, error) {
	return s.runRetriable(ctx, idb.WriteMode, work, idb.TelemetryManagedTransaction, configurers...)
}

func (s *session) executeQueryRead(ctx context.Context, work ManagedTransactionWork,
	configurers ...func(*config.TransactionConfig)) (any, error) {
	return s.runRetriable(ctx, idb.ReadMode, work, idb.TelemetryExecuteQuery, configurers...)
}

func (s *session) executeQueryWrite(ctx context.Context, work ManagedTransactionWork,
	configurers ...func(*config.TransactionConfig)) (any, error) {
	return s.runRetriable(ctx, idb.WriteMode, work, idb.TelemetryExecuteQuery, configurers...)
}

func (s *session) runRetriable(ctx context.Context, mode idb.AccessMode, work ManagedTransactionWork,
	api idb.TelemetryAPI, configurers ...func(*config.TransactionConfig)) (any, error) {
	if s.closed {
		return nil, &errorutil.UsageError{Message: "session is closed"}
	}
	if s.explicitTx != nil {
		return nil, &errorutil.UsageError{Message: "session already has a pending transaction"}
	}
	if s.autocommitTx != nil {
		s.autocommitTx.done(ctx)
	}

	txConfig := defaultTransactionConfig()
	for _, configure := range configurers {
		configure(&txConfig)
	}
	if err := validateTransactionConfig(txConfig); err != nil {
		return nil, err
	}

	state := retry.State{
		MaxTransactionRetryTime: s.driverConfig.MaxTransactionRetryTime,
		Log:                     s.log,
		LogName:                 log.Session,
		LogId:                   s.logId,
		Now:                     s.now,
		Sleep:                   s.sleep,
		Throttle:                retry.Throttler(s.throttleTime),
		MaxDeadConnections:      s.driverConfig.MaxConnectionPoolSize,
		Router:                  s.router,
		DatabaseName:            s.config.DatabaseName,
	}
	for state.Continue() {
		if completed, result := s.executeTransactionFunction(ctx, mode, txConfig, &state, work, api); completed {
			return result, nil
		}
	}

	err := state.ProduceError()
	s.log.Error(log.Session, s.logId, err)
	return nil, err
}

func (s *session) executeTransactionFunction(ctx context.Context, mode idb.AccessMode,
	txConfig config.TransactionConfig, state *retry.State, work ManagedTransactionWork,
	api idb.TelemetryAPI) (bool, any) {

	conn, err := s.getConnection(ctx, mode, s.driverConfig.ConnectionLivenessCheckTimeout)
	if err != nil {
		state.OnFailure(err, nil, false)
		return false, nil
	}
	// Connection goes back on every path, including panics in the unit
	// of work
	defer func() {
		s.pool.Return(ctx, conn)
	}()

	if !s.driverConfig.TelemetryDisabled && !state.TelemetrySent {
		conn.Telemetry(api, func() {
			state.TelemetrySent = true
		})
	}

	beginBookmarks, err := s.getBookmarks(ctx)
	if err != nil {
		state.OnFailure(err, conn, false)
		return false, nil
	}
	txHandle, err := conn.TxBegin(ctx, s.txConfigOf(mode, beginBookmarks, txConfig), true)
	if err != nil {
		state.OnFailure(err, conn, false)
		return false, nil
	}

	tx := managedTransaction{conn: conn, fetchSize: s.fetchSize, txHandle: txHandle}
	x, err := work(&tx)
	if err != nil {
		// A failing unit of work wants a rollback; the pool's reset on
		// return performs it implicitly.
		state.OnFailure(err, conn, false)
		return false, nil
	}

	if err = conn.TxCommit(ctx, txHandle); err != nil {
		state.OnFailure(err, conn, true)
		return false, nil
	}

	s.noteHomeDb(ctx, conn)
	if err = s.retrieveBookmarks(ctx, conn, beginBookmarks); err != nil {
		s.log.Warnf(log.Session, s.logId, "could not retrieve bookmarks after commit: %s", err)
	}
	return true, x
}

func (s *session) Run(ctx context.Context, cypher string, params map[string]any,
	configurers ...func(*config.TransactionConfig)) (Result, error) {
	if s.closed {
		return nil, &errorutil.UsageError{Message: "session is closed"}
	}
	if s.explicitTx != nil {
		err := &errorutil.UsageError{Message: "cannot run an auto-commit statement while the session has an explicit transaction open"}
		s.log.Error(log.Session, s.logId, err)
		return nil, err
	}
	if s.autocommitTx != nil {
		s.autocommitTx.done(ctx)
	}

	txConfig := defaultTransactionConfig()
	for _, configure := range configurers {
		configure(&txConfig)
	}
	if err := validateTransactionConfig(txConfig); err != nil {
		return nil, err
	}

	conn, err := s.getConnection(ctx, s.defaultMode, s.driverConfig.ConnectionLivenessCheckTimeout)
	if err != nil {
		return nil, errorutil.WrapError(err)
	}

	if !s.driverConfig.TelemetryDisabled {
		conn.Telemetry(idb.TelemetryAutoCommit, nil)
	}

	runBookmarks, err := s.getBookmarks(ctx)
	if err != nil {
		s.pool.Return(ctx, conn)
		return nil, errorutil.WrapError(err)
	}
	stream, err := conn.Run(ctx,
		idb.Command{Cypher: cypher, Params: params, FetchSize: s.fetchSize},
		s.txConfigOf(s.defaultMode, runBookmarks, txConfig))
	if err != nil {
		s.pool.Return(ctx, conn)
		return nil, errorutil.WrapError(err)
	}

	s.autocommitTx = &autocommitTransaction{
		conn: conn,
		res: newResult(conn, stream, cypher, params, func() {
			s.noteHomeDb(ctx, conn)
			if err := s.retrieveBookmarks(ctx, conn, runBookmarks); err != nil {
				s.log.Warnf(log.Session, s.logId, "could not retrieve bookmarks after result consumption: %s", err)
			}
		}),
		onClosed: func() {
			s.pool.Return(ctx, conn)
			s.autocommitTx = nil
		},
	}
	return s.autocommitTx.res, nil
}

func (s *session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true

	var txErr error
	if s.explicitTx != nil {
		txErr = s.explicitTx.Close(ctx)
	}
	if s.autocommitTx != nil {
		s.autocommitTx.discard(ctx)
	}

	defer s.log.Debugf(log.Session, s.logId, "closed")
	s.pool.CleanUp(ctx)
	s.router.CleanUp()
	return txErr
}

func (s *session) txConfigOf(mode idb.AccessMode, bookmarks bm.Bookmarks,
	txConfig config.TransactionConfig) idb.TxConfig {
	return idb.TxConfig{
		Mode:             mode,
		Bookmarks:        bookmarks,
		Timeout:          txConfig.Timeout,
		Meta:             txConfig.Metadata,
		ImpersonatedUser: s.config.ImpersonatedUser,
		NotificationConfig: idb.NotificationConfig{
			MinSev:  s.config.NotificationsMinSeverity,
			DisCats: s.config.NotificationsDisabledCategories,
		},
	}
}

func (s *session) getServers(mode idb.AccessMode) func() []string {
	return func() []string {
		if mode == idb.ReadMode {
			return s.router.Readers(s.config.DatabaseName)
		}
		return s.router.Writers(s.config.DatabaseName)
	}
}

func (s *session) getOrUpdateServers(ctx context.Context, mode idb.AccessMode) error {
	var err error
	if mode == idb.ReadMode {
		_, err = s.router.GetOrUpdateReaders(ctx, s.getBookmarks, s.config.DatabaseName, s.auth, s.config.BoltLogger)
	} else {
		_, err = s.router.GetOrUpdateWriters(ctx, s.getBookmarks, s.config.DatabaseName, s.auth, s.config.BoltLogger)
	}
	return err
}

func (s *session) getConnection(ctx context.Context, mode idb.AccessMode,
	livenessCheckThreshold time.Duration) (idb.Connection, error) {
	timeout := s.driverConfig.ConnectionAcquisitionTimeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
		deadline, _ := ctx.Deadline()
		s.log.Debugf(log.Session, s.logId, "connection acquisition deadline is %s", deadline)
	}

	if err := s.resolveHomeDatabase(ctx); err != nil {
		return nil, errorutil.WrapError(err)
	}
	if err := s.getOrUpdateServers(ctx, mode); err != nil {
		return nil, errorutil.WrapError(err)
	}

	conn, err := s.pool.Borrow(ctx, s.getServers(mode), timeout != 0, s.config.BoltLogger,
		livenessCheckThreshold, s.auth)
	if err != nil {
		return nil, errorutil.WrapError(err)
	}

	if s.config.DatabaseName != idb.DefaultDatabase {
		conn.SelectDatabase(s.config.DatabaseName)
	}
	return conn, nil
}

// resolveHomeDatabase pins the session to the principal's home database
// when none was configured, asking the home-db cache first and the
// cluster second.
func (s *session) resolveHomeDatabase(ctx context.Context) error {
	if !s.resolveHomeDb {
		return nil
	}
	bookmarks, err := s.getBookmarks(ctx)
	if err != nil {
		return err
	}
	defaultDb, err := s.router.GetNameOfDefaultDatabase(ctx, bookmarks, s.config.ImpersonatedUser,
		s.auth, s.config.BoltLogger)
	if err != nil {
		return err
	}
	if defaultDb == idb.DefaultDatabase {
		// The server did not resolve a name; leave resolution to the
		// next statement's reply.
		return nil
	}
	s.log.Debugf(log.Session, s.logId, "resolved home database %q", defaultDb)
	s.config.DatabaseName = defaultDb
	s.resolveHomeDb = false
	return nil
}

// noteHomeDb records the home database the server reported for this
// principal (Bolt >= 5.8). A reply that disagrees with the name the
// session routed by replaces the cache entry and re-pins the session.
func (s *session) noteHomeDb(ctx context.Context, conn idb.Connection) {
	resolved := conn.HomeDatabase()
	if resolved == "" {
		return
	}
	s.router.CacheHomeDb(ctx, s.config.ImpersonatedUser, s.auth, resolved)
	if s.config.DatabaseName != idb.DefaultDatabase && s.config.DatabaseName != resolved {
		s.log.Debugf(log.Session, s.logId,
			"server resolved home database %q, replacing cached %q", resolved, s.config.DatabaseName)
	}
	s.config.DatabaseName = resolved
	s.resolveHomeDb = false
}

func (s *session) retrieveBookmarks(ctx context.Context, conn idb.Connection, sent bm.Bookmarks) error {
	if conn == nil {
		return nil
	}
	return s.bookmarks.replaceBookmarks(ctx, sent, conn.Bookmark())
}

func (s *session) retrieveSessionBookmarks(conn idb.Connection) {
	if conn == nil {
		return
	}
	s.bookmarks.replaceSessionBookmarks(conn.Bookmark())
}

func (s *session) getBookmarks(ctx context.Context) (bm.Bookmarks, error) {
	return s.bookmarks.getBookmarks(ctx)
}

func (s *session) getServerInfo(ctx context.Context) (ServerInfo, error) {
	if err := s.resolveHomeDatabase(ctx); err != nil {
		return nil, errorutil.WrapError(err)
	}
	if err := s.getOrUpdateServers(ctx, idb.ReadMode); err != nil {
		return nil, errorutil.WrapError(err)
	}
	conn, err := s.pool.Borrow(ctx, s.getServers(idb.ReadMode),
		s.driverConfig.ConnectionAcquisitionTimeout != 0, s.config.BoltLogger, 0, s.auth)
	if err != nil {
		return nil, errorutil.WrapError(err)
	}
	defer s.pool.Return(ctx, conn)
	return simpleServerInfo{
		address:         conn.ServerName(),
		agent:           conn.ServerVersion(),
		protocolVersion: conn.Version(),
	}, nil
}

// erroredSession replaces a session that could not be created.
type erroredSession struct {
	err error
}

func (s *erroredSession) LastBookmarks() bm.Bookmarks { return nil }

func (s *erroredSession) BeginTransaction(context.Context, ...func(*config.TransactionConfig)) (ExplicitTransaction, error) {
	return nil, s.err
}
func (s *erroredSession) ExecuteRead(context.Context, ManagedTransactionWork, ...func(*config.TransactionConfig)) (any, error) {
	return nil, s.err
}
func (s *erroredSession) ExecuteWrite(context.Context, ManagedTransactionWork, ...func(*config.TransactionConfig)) (any, error) {
	return nil, s.err
}
func (s *erroredSession) executeQueryRead(context.Context, ManagedTransactionWork, ...func(*config.TransactionConfig)) (any, error) {
	return nil, s.err
}
func (s *erroredSession) executeQueryWrite(context.Context, ManagedTransactionWork, ...func(*config.TransactionConfig)) (any, error) {
	return nil, s.err
}
func (s *erroredSession) Run(context.Context, string, map[string]any, ...func(*config.TransactionConfig)) (Result, error) {
	return nil, s.err
}
func (s *erroredSession) Close(context.Context) error {
	return s.err
}
func (s *erroredSession) getServerInfo(context.Context) (ServerInfo, error) {
	return nil, s.err
}

func defaultTransactionConfig() config.TransactionConfig {
	return config.TransactionConfig{}
}

func validateTransactionConfig(txConfig config.TransactionConfig) error {
	if txConfig.Timeout < 0 {
		return &errorutil.UsageError{
			Message: fmt.Sprintf("negative transaction timeouts are not allowed, got %d", txConfig.Timeout)}
	}
	return nil
}
