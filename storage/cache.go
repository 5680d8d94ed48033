/*
 * Copyright 2018 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package storage

import lru "github.com/hashicorp/golang-lru"

// LeafCache remembers, for a docID, the sequence of the row get()
// would return for an unconditional read: the current, non-deleted
// row with the lexicographically greatest revid, the last time it was
// computed. It is a pure speed-up — a cache miss or a stale hit both
// fall back to the indexed docid+current query, they just cost one
// extra primary-key lookup first.
//
// Grounded on the teacher's go.mod dependency on hashicorp/golang-lru,
// otherwise unused by this distilled spec's scope.
type LeafCache struct {
	cache *lru.Cache
}

// NewLeafCache creates a cache holding up to size entries.
func NewLeafCache(size int) *LeafCache {
	if size <= 0 {
		size = 1024
	}
	c, _ := lru.New(size) // only errors on size <= 0, guarded above
	return &LeafCache{cache: c}
}

// Get returns the cached winning sequence for docID, if any.
func (c *LeafCache) Get(docID string) (sequence int64, ok bool) {
	v, ok := c.cache.Get(docID)
	if !ok {
		return 0, false
	}
	return v.(int64), true
}

// Set records the winning sequence for docID.
func (c *LeafCache) Set(docID string, sequence int64) {
	c.cache.Add(docID, sequence)
}

// Invalidate drops any cached entry for docID. Called after every
// successful put/forceInsert that touches docID, since the winning
// leaf may have changed.
func (c *LeafCache) Invalidate(docID string) {
	c.cache.Remove(docID)
}
