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

package config

import "time"

// TransactionConfig holds the per-transaction settings of explicit,
// managed and auto-commit transactions.
type TransactionConfig struct {
	// Timeout is enforced server side; the transaction is terminated
	// when it runs longer. Zero uses the server's default. Sub-
	// millisecond values are rounded up.
	Timeout time.Duration
	// Metadata is attached to the transaction and visible in the
	// server's query log and status procedures.
	Metadata map[string]any
}

// WithTxTimeout returns a configurer that sets the transaction timeout.
func WithTxTimeout(timeout time.Duration) func(*TransactionConfig) {
	return func(config *TransactionConfig) {
		config.Timeout = timeout
	}
}

// WithTxMetadata returns a configurer that attaches metadata to the
// transaction.
func WithTxMetadata(metadata map[string]any) func(*TransactionConfig) {
	return func(config *TransactionConfig) {
		config.Metadata = metadata
	}
}
