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

// Package testutil holds hand-rolled fakes shared between the driver's
// unit tests.
package testutil

import (
	"context"
	"time"

	"github.com/neo4j-drivers/neobolt/neobolt/db"
	idb "github.com/neo4j-drivers/neobolt/neobolt/internal/db"
)

// RecordedTx captures what a fake connection was asked to begin.
type RecordedTx struct {
	Mode      idb.AccessMode
	Bookmarks []string
	Timeout   time.Duration
	Meta      map[string]any
}

// ConnFake implements idb.Connection with scripted behavior.
type ConnFake struct {
	Name          string
	ConnectionVersion db.ProtocolVersion
	Alive         bool
	Failed        bool
	Birth         time.Time
	Idle          time.Time
	Table         *idb.RoutingTable
	Err           error
	TxBeginErr    error
	TxBeginHandle idb.TxHandle
	TxCommitErr   error
	RunErr        error
	RunStream     idb.StreamHandle
	Records       []*db.Record
	Summary       *db.Summary
	Bookm         string
	HomeDb        string
	DatabaseName  string
	ForceResetHook func()
	ReAuthHook    func(context.Context, *idb.ReAuthToken) error
	CloseCalled   int
	ResetCalled   int
	RecordedTxs   []RecordedTx
	ConsumeCalled int

	nextRecord int
}

func NewConnFake(name string) *ConnFake {
	return &ConnFake{
		Name:              name,
		ConnectionVersion: db.ProtocolVersion{Major: 5, Minor: 8},
		Alive:             true,
		Birth:             time.Now(),
		Idle:              time.Now(),
		TxBeginHandle:     idb.TxHandle(1),
	}
}

func (c *ConnFake) TxBegin(_ context.Context, txConfig idb.TxConfig, _ bool) (idb.TxHandle, error) {
	c.RecordedTxs = append(c.RecordedTxs, RecordedTx{
		Mode: txConfig.Mode, Bookmarks: txConfig.Bookmarks, Timeout: txConfig.Timeout, Meta: txConfig.Meta,
	})
	if c.TxBeginErr != nil {
		return 0, c.TxBeginErr
	}
	return c.TxBeginHandle, nil
}

func (c *ConnFake) TxRollback(context.Context, idb.TxHandle) error {
	return c.Err
}

func (c *ConnFake) TxCommit(context.Context, idb.TxHandle) error {
	return c.TxCommitErr
}

func (c *ConnFake) Run(_ context.Context, cmd idb.Command, txConfig idb.TxConfig) (idb.StreamHandle, error) {
	c.RecordedTxs = append(c.RecordedTxs, RecordedTx{
		Mode: txConfig.Mode, Bookmarks: txConfig.Bookmarks, Timeout: txConfig.Timeout, Meta: txConfig.Meta,
	})
	if c.RunErr != nil {
		return nil, c.RunErr
	}
	c.nextRecord = 0
	return c.RunStream, nil
}

func (c *ConnFake) RunTx(_ context.Context, _ idb.TxHandle, _ idb.Command) (idb.StreamHandle, error) {
	if c.RunErr != nil {
		return nil, c.RunErr
	}
	c.nextRecord = 0
	return c.RunStream, nil
}

func (c *ConnFake) Keys(idb.StreamHandle) ([]string, error) {
	if len(c.Records) > 0 {
		return c.Records[0].Keys, nil
	}
	return nil, nil
}

func (c *ConnFake) Next(context.Context, idb.StreamHandle) (*db.Record, *db.Summary, error) {
	if c.Err != nil {
		return nil, nil, c.Err
	}
	if c.nextRecord < len(c.Records) {
		c.nextRecord++
		return c.Records[c.nextRecord-1], nil, nil
	}
	return nil, c.Summary, nil
}

func (c *ConnFake) Consume(context.Context, idb.StreamHandle) (*db.Summary, error) {
	c.ConsumeCalled++
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Summary, nil
}

func (c *ConnFake) Buffer(context.Context, idb.StreamHandle) error {
	return c.Err
}

func (c *ConnFake) Bookmark() string {
	return c.Bookm
}

func (c *ConnFake) ServerName() string {
	return c.Name
}

func (c *ConnFake) ServerVersion() string {
	return "fake/1.0"
}

func (c *ConnFake) IsAlive() bool {
	return c.Alive
}

func (c *ConnFake) HasFailed() bool {
	return c.Failed
}

func (c *ConnFake) Birthdate() time.Time {
	return c.Birth
}

func (c *ConnFake) IdleDate() time.Time {
	return c.Idle
}

func (c *ConnFake) Reset(context.Context) {
	c.ResetCalled++
}

func (c *ConnFake) ForceReset(context.Context) {
	if c.ForceResetHook != nil {
		c.ForceResetHook()
	}
}

func (c *ConnFake) Close(context.Context) {
	c.CloseCalled++
	c.Alive = false
}

func (c *ConnFake) SelectDatabase(database string) {
	c.DatabaseName = database
}

func (c *ConnFake) Database() string {
	return c.DatabaseName
}

func (c *ConnFake) HomeDatabase() string {
	return c.HomeDb
}

func (c *ConnFake) Version() db.ProtocolVersion {
	return c.ConnectionVersion
}

func (c *ConnFake) ReAuth(ctx context.Context, token *idb.ReAuthToken) error {
	if c.ReAuthHook != nil {
		return c.ReAuthHook(ctx, token)
	}
	return nil
}

func (c *ConnFake) ResetAuth() {}

func (c *ConnFake) Telemetry(idb.TelemetryAPI, func()) {}

func (c *ConnFake) GetRoutingTable(context.Context, map[string]string, []string, string, string) (*idb.RoutingTable, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Table, nil
}

func (c *ConnFake) SetBoltLogger(idb.BoltLogger) {}
