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

package router

import (
	"container/list"
	"sync"

	"github.com/neo4j-drivers/neobolt/neobolt/auth"
)

const defaultHomeDbCacheSize = 1000

// HomeDbCache remembers the home database the server most recently
// resolved for a principal, so that executions against the default
// database can route optimistically without a discovery round trip.
// Bounded, least recently used entries are evicted first.
type HomeDbCache struct {
	mut     sync.Mutex
	max     int
	entries map[string]*list.Element
	order   list.List // Front is most recently used
}

type homeDbEntry struct {
	key  string
	name string
}

func NewHomeDbCache(max int) *HomeDbCache {
	if max <= 0 {
		max = defaultHomeDbCacheSize
	}
	return &HomeDbCache{
		max:     max,
		entries: make(map[string]*list.Element),
	}
}

// HomeDbCacheKey identifies the principal a home database belongs to:
// the impersonated user when set, otherwise the principal of the auth
// token, otherwise the anonymous marker.
func HomeDbCacheKey(impersonatedUser string, token auth.Token) string {
	if impersonatedUser != "" {
		return "imp:" + impersonatedUser
	}
	if principal := token.Principal(); principal != "" {
		return "auth:" + principal
	}
	return "anonymous"
}

func (c *HomeDbCache) Get(key string) (string, bool) {
	c.mut.Lock()
	defer c.mut.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	c.order.MoveToFront(e)
	return e.Value.(*homeDbEntry).name, true
}

func (c *HomeDbCache) Put(key, name string) {
	c.mut.Lock()
	defer c.mut.Unlock()
	if e, ok := c.entries[key]; ok {
		e.Value.(*homeDbEntry).name = name
		c.order.MoveToFront(e)
		return
	}
	c.entries[key] = c.order.PushFront(&homeDbEntry{key: key, name: name})
	if c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*homeDbEntry).key)
	}
}

func (c *HomeDbCache) Delete(key string) {
	c.mut.Lock()
	defer c.mut.Unlock()
	if e, ok := c.entries[key]; ok {
		c.order.Remove(e)
		delete(c.entries, key)
	}
}

func (c *HomeDbCache) Len() int {
	c.mut.Lock()
	defer c.mut.Unlock()
	return c.order.Len()
}
