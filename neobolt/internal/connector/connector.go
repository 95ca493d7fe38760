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

// Package connector dials servers: TCP, optionally TLS, then the Bolt
// handshake.
package connector

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"time"

	"github.com/neo4j-drivers/neobolt/neobolt/internal/bolt"
	idb "github.com/neo4j-drivers/neobolt/neobolt/internal/db"
	"github.com/neo4j-drivers/neobolt/neobolt/internal/errorutil"
	"github.com/neo4j-drivers/neobolt/neobolt/log"
)

type Connector struct {
	SkipEncryption bool
	SkipVerify     bool
	// RootCAs overrides the host's trusted authorities. Ignored when
	// TlsConfig is set.
	RootCAs *x509.CertPool
	// TlsConfig replaces the derived TLS configuration entirely.
	TlsConfig            *tls.Config
	SocketConnectTimeout time.Duration
	SocketKeepAlive      bool
	UserAgent            string
	RoutingContext       map[string]string
	Network              string
	Log                  log.Logger
	NotificationConfig   idb.NotificationConfig
}

func (c Connector) Connect(
	ctx context.Context,
	address string,
	auth *idb.ReAuthToken,
	errorListener bolt.ConnectionErrorListener,
	boltLogger idb.BoltLogger,
) (idb.Connection, error) {
	dialer := net.Dialer{Timeout: c.SocketConnectTimeout}
	if !c.SocketKeepAlive {
		dialer.KeepAlive = -1
	}
	conn, err := dialer.DialContext(ctx, c.Network, address)
	if err != nil {
		errorListener.OnDialError(ctx, address, err)
		return nil, err
	}
	// TCP_NODELAY is on by default in Go, leave it that way to keep
	// request latency down.

	if !c.SkipEncryption {
		conn, err = c.wrapTls(ctx, address, conn)
		if err != nil {
			errorListener.OnDialError(ctx, address, err)
			return nil, err
		}
	}

	connection, err := bolt.Connect(ctx,
		address,
		conn,
		auth,
		c.UserAgent,
		c.RoutingContext,
		errorListener,
		c.Log,
		boltLogger,
		c.NotificationConfig,
	)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return connection, nil
}

func (c Connector) wrapTls(ctx context.Context, address string, conn net.Conn) (net.Conn, error) {
	serverName, _, err := net.SplitHostPort(address)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	config := c.TlsConfig
	if config == nil {
		config = &tls.Config{
			MinVersion: tls.VersionTLS12,
			RootCAs:    c.RootCAs,
		}
	} else {
		config = config.Clone()
	}
	config.InsecureSkipVerify = c.SkipVerify
	config.ServerName = serverName

	tlsConn := tls.Client(conn, config)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, &errorutil.TlsError{Inner: err}
	}
	return tlsConn, nil
}
