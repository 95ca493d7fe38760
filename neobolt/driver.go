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

// Package neobolt is a driver for Neo4j, speaking the Bolt protocol
// over TCP or TLS to a single server or a routed cluster.
package neobolt

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/neo4j-drivers/neobolt/neobolt/auth"
	bm "github.com/neo4j-drivers/neobolt/neobolt/bookmarks"
	"github.com/neo4j-drivers/neobolt/neobolt/config"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/bolt"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/connector"
	idb "github.com/neo4j-drivers/neobolt/neobolt/internal/db"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/errorutil"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/pool"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/router"
	"github.com/neo4j-drivers/neobolt/neobolt/log"
)

// Driver is the entry point to the database: it owns the connection
// pool and, for routed URIs, the routing table cache. Safe for
// concurrent use; sessions created from it are not.
type Driver interface {
	// Target returns the connection target the driver was created with.
	Target() url.URL
	// NewSession creates a new causal scope. Sessions are single
	// threaded and must be closed when done.
	NewSession(ctx context.Context, config config.SessionConfig) Session
	// VerifyConnectivity checks that the driver can reach and
	// authenticate with a server.
	VerifyConnectivity(ctx context.Context) error
	// Close shuts down the pool; the driver is unusable afterwards.
	Close(ctx context.Context) error
	// IsEncrypted reports whether the target URI carries a TLS scheme.
	IsEncrypted() bool
	// ExecuteQueryBookmarkManager returns the manager ExecuteQuery
	// threads bookmarks through by default.
	ExecuteQueryBookmarkManager() bm.BookmarkManager
}

// sessionRouter is the routing layer as the session sees it. The
// direct (single server) variant short-circuits everything to one
// address.
type sessionRouter interface {
	GetOrUpdateReaders(ctx context.Context, bookmarks func(context.Context) ([]string, error), database string,
		auth *idb.ReAuthToken, boltLogger idb.BoltLogger) ([]string, error)
	GetOrUpdateWriters(ctx context.Context, bookmarks func(context.Context) ([]string, error), database string,
		auth *idb.ReAuthToken, boltLogger idb.BoltLogger) ([]string, error)
	Readers(database string) []string
	Writers(database string) []string
	GetNameOfDefaultDatabase(ctx context.Context, bookmarks []string, user string,
		auth *idb.ReAuthToken, boltLogger idb.BoltLogger) (string, error)
	CacheHomeDb(ctx context.Context, impersonatedUser string, auth *idb.ReAuthToken, database string)
	InvalidateHomeDb(ctx context.Context, impersonatedUser string, auth *idb.ReAuthToken)
	Invalidate(database string)
	InvalidateWriter(database string, server string)
	InvalidateServer(server string)
	CleanUp()
}

const defaultTargetPort = "7687"

type driver struct {
	target                  url.URL
	config                  *config.Config
	pool                    *pool.Pool
	router                  sessionRouter
	auth                    auth.TokenManager
	encrypted               bool
	logId                   string
	now                     func() time.Time
	executeQueryBookmarkMgr bm.BookmarkManager
	mut                     sync.Mutex
	closed                  bool
}

// NewDriver creates a driver for the given target URI.
//
// Supported schemes: bolt, bolt+s, bolt+ssc (single server, with TLS
// variants), neo4j, neo4j+s, neo4j+ssc (cluster routing). The +s
// variants verify the server certificate, +ssc skips verification.
func NewDriver(target string, authManager auth.TokenManager, configurers ...func(*config.Config)) (Driver, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return nil, &errorutil.ConfigurationError{Message: err.Error()}
	}
	if parsed.Host == "" {
		return nil, &errorutil.ConfigurationError{Message: fmt.Sprintf("URI %q has no host", target)}
	}
	if parsed.Port() == "" {
		parsed.Host = parsed.Hostname() + ":" + defaultTargetPort
	}

	routing := false
	encrypted := false
	skipVerify := false
	switch parsed.Scheme {
	case "bolt":
	case "bolt+s":
		encrypted = true
	case "bolt+ssc":
		encrypted = true
		skipVerify = true
	case "neo4j":
		routing = true
	case "neo4j+s":
		routing = true
		encrypted = true
	case "neo4j+ssc":
		routing = true
		encrypted = true
		skipVerify = true
	default:
		return nil, &errorutil.ConfigurationError{Message: fmt.Sprintf("URI scheme %q is not supported", parsed.Scheme)}
	}

	routingContext, err := routingContextOf(parsed, routing)
	if err != nil {
		return nil, err
	}

	conf := defaultConfig()
	for _, configure := range configurers {
		configure(conf)
	}
	if err := validateConfig(conf); err != nil {
		return nil, err
	}

	logId := log.NewId()
	logger := conf.Log

	conn := connector.Connector{
		SkipEncryption:       !encrypted,
		SkipVerify:           skipVerify,
		RootCAs:              conf.RootCAs,
		TlsConfig:            conf.TlsConfig,
		SocketConnectTimeout: conf.SocketConnectTimeout,
		SocketKeepAlive:      conf.SocketKeepalive,
		UserAgent:            conf.UserAgent,
		RoutingContext:       routingContext,
		Network:              "tcp",
		Log:                  logger,
		NotificationConfig: idb.NotificationConfig{
			MinSev:  conf.NotificationsMinSeverity,
			DisCats: conf.NotificationsDisabledCategories,
		},
	}

	d := &driver{
		target:    *parsed,
		config:    conf,
		auth:      authManager,
		encrypted: encrypted,
		logId:     logId,
		now:       time.Now,
	}
	d.pool = pool.New(
		pool.Config{MaxSize: conf.MaxConnectionPoolSize, MaxLifetime: conf.MaxConnectionLifetime},
		d.connectFn(conn),
		logger,
		logId,
	)

	address := parsed.Host
	if routing {
		d.router = router.New(address, resolverFn(conf.AddressResolver, parsed), routingContext, d.pool, logger, logId)
	} else {
		d.router = &directRouter{address: address}
	}
	d.executeQueryBookmarkMgr = bm.NewBookmarkManager(bm.BookmarkManagerConfig{})

	logger.Infof(log.Driver, logId, "created for %s", address)
	return d, nil
}

// connectFn binds the connector into the pool's dial factory.
func (d *driver) connectFn(conn connector.Connector) pool.Connect {
	return func(ctx context.Context, address string, auth *idb.ReAuthToken,
		errorListener bolt.ConnectionErrorListener, boltLogger idb.BoltLogger) (idb.Connection, error) {
		return conn.Connect(ctx, address, auth, errorListener, boltLogger)
	}
}

func routingContextOf(parsed *url.URL, routing bool) (map[string]string, error) {
	query := parsed.Query()
	if !routing {
		if len(query) > 0 {
			return nil, &errorutil.ConfigurationError{
				Message: "routing context is not allowed on direct (bolt) URIs"}
		}
		return nil, nil
	}
	routingContext := make(map[string]string, len(query)+1)
	for key, values := range query {
		if len(values) > 1 {
			return nil, &errorutil.ConfigurationError{
				Message: fmt.Sprintf("duplicate routing context key %q", key)}
		}
		routingContext[key] = values[0]
	}
	if _, reserved := routingContext["address"]; reserved {
		return nil, &errorutil.ConfigurationError{Message: "routing context key \"address\" is reserved"}
	}
	routingContext["address"] = parsed.Host
	return routingContext, nil
}

func resolverFn(resolver config.ServerAddressResolver, parsed *url.URL) func() []string {
	if resolver == nil {
		return nil
	}
	root := serverAddress{hostname: parsed.Hostname(), port: parsed.Port()}
	return func() []string {
		resolved := resolver(root)
		addresses := make([]string, len(resolved))
		for i, addr := range resolved {
			addresses[i] = addr.Hostname() + ":" + addr.Port()
		}
		return addresses
	}
}

type serverAddress struct {
	hostname string
	port     string
}

func (a serverAddress) Hostname() string { return a.hostname }
func (a serverAddress) Port() string     { return a.port }

// NewServerAddress builds a config.ServerAddress, for resolver
// implementations.
func NewServerAddress(hostname, port string) config.ServerAddress {
	return serverAddress{hostname: hostname, port: port}
}

func defaultConfig() *config.Config {
	return &config.Config{
		Log:                          log.Void(),
		MaxTransactionRetryTime:      30 * time.Second,
		MaxConnectionPoolSize:        100,
		MaxConnectionLifetime:        time.Hour,
		ConnectionAcquisitionTimeout: time.Minute,
		ConnectionLivenessCheckTimeout: pool.DefaultLivenessCheckThreshold,
		SocketConnectTimeout:         5 * time.Second,
		SocketKeepalive:              true,
		UserAgent:                    UserAgent,
		FetchSize:                    FetchDefault,
	}
}

func validateConfig(conf *config.Config) error {
	if conf.MaxConnectionPoolSize == 0 {
		return &errorutil.ConfigurationError{Message: "MaxConnectionPoolSize cannot be 0"}
	}
	if conf.MaxTransactionRetryTime < 0 {
		return &errorutil.ConfigurationError{Message: "MaxTransactionRetryTime cannot be negative"}
	}
	if conf.ConnectionLivenessCheckTimeout < pool.DefaultLivenessCheckThreshold {
		return &errorutil.ConfigurationError{Message: "ConnectionLivenessCheckTimeout cannot be below -1"}
	}
	return nil
}

func (d *driver) Target() url.URL {
	return d.target
}

func (d *driver) IsEncrypted() bool {
	return d.encrypted
}

func (d *driver) NewSession(ctx context.Context, sessConfig config.SessionConfig) Session {
	d.mut.Lock()
	closed := d.closed
	d.mut.Unlock()
	if closed {
		return &erroredSession{err: &errorutil.UsageError{Message: "driver is closed"}}
	}

	var reAuthToken *idb.ReAuthToken
	if sessConfig.Auth != nil {
		reAuthToken = &idb.ReAuthToken{Manager: *sessConfig.Auth, FromSession: true}
	} else {
		reAuthToken = &idb.ReAuthToken{Manager: d.auth}
	}
	return newSession(d.config, sessConfig, d.router, d.pool, d.config.Log, reAuthToken, d.now)
}

func (d *driver) VerifyConnectivity(ctx context.Context) error {
	session := d.NewSession(ctx, config.SessionConfig{AccessMode: config.AccessModeRead})
	defer func() { _ = session.Close(ctx) }()
	_, err := session.getServerInfo(ctx)
	return err
}

func (d *driver) ExecuteQueryBookmarkManager() bm.BookmarkManager {
	return d.executeQueryBookmarkMgr
}

func (d *driver) Close(ctx context.Context) error {
	d.mut.Lock()
	defer d.mut.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.pool.Close(ctx)
	d.config.Log.Infof(log.Driver, d.logId, "closed")
	return nil
}

// directRouter answers all routing questions with the single configured
// address.
type directRouter struct {
	address string
}

func (r *directRouter) GetOrUpdateReaders(context.Context, func(context.Context) ([]string, error), string,
	*idb.ReAuthToken, idb.BoltLogger) ([]string, error) {
	return []string{r.address}, nil
}

func (r *directRouter) GetOrUpdateWriters(context.Context, func(context.Context) ([]string, error), string,
	*idb.ReAuthToken, idb.BoltLogger) ([]string, error) {
	return []string{r.address}, nil
}

func (r *directRouter) Readers(string) []string { return []string{r.address} }

func (r *directRouter) Writers(string) []string { return []string{r.address} }

func (r *directRouter) GetNameOfDefaultDatabase(context.Context, []string, string,
	*idb.ReAuthToken, idb.BoltLogger) (string, error) {
	return idb.DefaultDatabase, nil
}

func (r *directRouter) CacheHomeDb(context.Context, string, *idb.ReAuthToken, string) {}

func (r *directRouter) InvalidateHomeDb(context.Context, string, *idb.ReAuthToken) {}

func (r *directRouter) Invalidate(string) {}

func (r *directRouter) InvalidateWriter(string, string) {}

func (r *directRouter) InvalidateServer(string) {}

func (r *directRouter) CleanUp() {}

// UserAgent is the default user agent reported to the server.
var UserAgent = fmt.Sprintf("neobolt-go/%s", bolt.DriverVersion)
