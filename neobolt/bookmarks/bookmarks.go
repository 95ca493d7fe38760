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

// Package bookmarks holds the causal consistency tokens the server
// hands out and the manager that shares them between sessions.
package bookmarks

import (
	"context"
	"sync"
)

// Bookmarks is an unordered set of opaque server-assigned strings. Each
// one encodes "has observed up to this transaction".
type Bookmarks = []string

// CombineBookmarks unions bookmark sets; the only combinator bookmarks
// support.
func CombineBookmarks(sets ...Bookmarks) Bookmarks {
	var size int
	for _, set := range sets {
		size += len(set)
	}
	seen := make(map[string]struct{}, size)
	combined := make(Bookmarks, 0, size)
	for _, set := range sets {
		for _, bookmark := range set {
			if _, ok := seen[bookmark]; ok {
				continue
			}
			seen[bookmark] = struct{}{}
			combined = append(combined, bookmark)
		}
	}
	return combined
}

// BookmarkManager centralizes bookmark supply and collection so that
// independent sessions against the same database stay causally
// consistent with each other.
type BookmarkManager interface {
	// UpdateBookmarks replaces previousBookmarks with newBookmarks in
	// the manager's set.
	UpdateBookmarks(ctx context.Context, previousBookmarks, newBookmarks Bookmarks) error
	// GetBookmarks returns the current set. Callers must not mutate it.
	GetBookmarks(ctx context.Context) (Bookmarks, error)
}

// BookmarkManagerConfig configures NewBookmarkManager.
type BookmarkManagerConfig struct {
	// InitialBookmarks seed the manager.
	InitialBookmarks Bookmarks
	// BookmarkSupplier contributes extra bookmarks, on top of the
	// managed set, every time the set is read.
	BookmarkSupplier func(context.Context) (Bookmarks, error)
	// BookmarkConsumer observes the managed set after every update.
	BookmarkConsumer func(ctx context.Context, bookmarks Bookmarks) error
}

type bookmarkManager struct {
	bookmarks map[string]struct{}
	mut       sync.RWMutex
	supplier  func(context.Context) (Bookmarks, error)
	consumer  func(context.Context, Bookmarks) error
}

func NewBookmarkManager(config BookmarkManagerConfig) BookmarkManager {
	bookmarks := make(map[string]struct{}, len(config.InitialBookmarks))
	for _, bookmark := range config.InitialBookmarks {
		bookmarks[bookmark] = struct{}{}
	}
	return &bookmarkManager{
		bookmarks: bookmarks,
		supplier:  config.BookmarkSupplier,
		consumer:  config.BookmarkConsumer,
	}
}

func (m *bookmarkManager) UpdateBookmarks(ctx context.Context, previousBookmarks, newBookmarks Bookmarks) error {
	if len(newBookmarks) == 0 {
		return nil
	}
	m.mut.Lock()
	for _, bookmark := range previousBookmarks {
		delete(m.bookmarks, bookmark)
	}
	for _, bookmark := range newBookmarks {
		m.bookmarks[bookmark] = struct{}{}
	}
	var current Bookmarks
	if m.consumer != nil {
		current = m.currentLocked()
	}
	m.mut.Unlock()
	if m.consumer != nil {
		return m.consumer(ctx, current)
	}
	return nil
}

func (m *bookmarkManager) GetBookmarks(ctx context.Context) (Bookmarks, error) {
	var extra Bookmarks
	if m.supplier != nil {
		var err error
		if extra, err = m.supplier(ctx); err != nil {
			return nil, err
		}
	}
	m.mut.RLock()
	current := m.currentLocked()
	m.mut.RUnlock()
	return CombineBookmarks(current, extra), nil
}

func (m *bookmarkManager) currentLocked() Bookmarks {
	current := make(Bookmarks, 0, len(m.bookmarks))
	for bookmark := range m.bookmarks {
		current = append(current, bookmark)
	}
	return current
}
