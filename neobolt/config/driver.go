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

// Package config holds the driver, session and transaction
// configuration types.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"time"

	"github.com/neo4j-drivers/neobolt/neobolt/log"
	"github.com/neo4j-drivers/neobolt/neobolt/notifications"
)

// Config customizes a driver. Zero value fields are replaced with the
// documented defaults at driver construction.
type Config struct {
	// RootCAs defines the certificate authorities the driver trusts for
	// the +s URI schemes. Nil means the host's system certificates.
	// Ignored when TlsConfig is set.
	RootCAs *x509.CertPool
	// TlsConfig replaces the derived TLS configuration entirely.
	// InsecureSkipVerify and ServerName are still derived from the URI.
	// An advanced setting, use at your own risk.
	TlsConfig *tls.Config
	// Log receives the driver's log output. Defaults to a silent
	// logger; log.ToConsole gives a quick alternative.
	Log log.Logger
	// AddressResolver expands the initial router address into several
	// physical addresses, for HA front ends.
	//
	// default: nil
	AddressResolver ServerAddressResolver
	// MaxTransactionRetryTime caps the total time a managed transaction
	// keeps retrying.
	//
	// default: 30 * time.Second
	MaxTransactionRetryTime time.Duration
	// MaxConnectionPoolSize caps idle plus in-use connections per
	// server. Cannot be zero; negative means unlimited.
	//
	// default: 100
	MaxConnectionPoolSize int
	// MaxConnectionLifetime evicts pooled connections older than this.
	// Values <= 0 disable the check.
	//
	// default: 1 * time.Hour
	MaxConnectionLifetime time.Duration
	// ConnectionAcquisitionTimeout caps the wait for a connection from
	// the pool, including dialing new ones. Negative waits forever,
	// zero fails immediately when the pool is exhausted.
	//
	// default: 1 * time.Minute
	ConnectionAcquisitionTimeout time.Duration
	// ConnectionLivenessCheckTimeout makes the pool probe connections
	// that sat idle longer than this before handing them out. Probing
	// costs a network round trip; by default no probe is done.
	ConnectionLivenessCheckTimeout time.Duration
	// SocketConnectTimeout bounds the TCP dial. Values <= 0 mean no
	// timeout.
	//
	// default: 5 * time.Second
	SocketConnectTimeout time.Duration
	// SocketKeepalive enables TCP keep-alive probes. The interval is
	// the OS default; it cannot be tuned portably.
	//
	// default: true
	SocketKeepalive bool
	// UserAgent is sent to the server in HELLO.
	//
	// default: the driver's own product string
	UserAgent string
	// FetchSize is how many records each PULL requests. FetchAll turns
	// batching off.
	FetchSize int
	// NotificationsMinSeverity filters which notifications the server
	// produces (Bolt >= 5.2).
	NotificationsMinSeverity notifications.NotificationMinimumSeverityLevel
	// NotificationsDisabledCategories filters notification categories
	// the server should skip (Bolt >= 5.2).
	NotificationsDisabledCategories notifications.NotificationDisabledCategories
	// TelemetryDisabled stops the driver from reporting which driver
	// APIs are in use to servers that ask for it.
	//
	// default: false
	TelemetryDisabled bool
}

// ServerAddressResolver resolves the initial address into one or more
// physical addresses to try as routers.
type ServerAddressResolver func(address ServerAddress) []ServerAddress

// ServerAddress is a host and port. The host may be an IP address or a
// DNS name, IPv4 or IPv6.
type ServerAddress interface {
	Hostname() string
	Port() string
}
