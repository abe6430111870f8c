// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"container/list"
	"sync"
)

// DefaultCacheSize bounds the number of cached retrieval results.
const DefaultCacheSize = 256

// cacheKey identifies a cached result. The snapshot version is part of
// the key, so a rebuild naturally invalidates every cached result for
// the old snapshot without an explicit flush. The resolved tunables are
// included because the same query with different hops or budget is a
// different result.
type cacheKey struct {
	query           string
	snapshotVersion string
	hops            int
	minConfidence   float64
	budget          int
	limit           int
}

type cacheEntry struct {
	key    cacheKey
	result *RetrieveResponse
}

// resultCache is an LRU over retrieval responses. Cached responses are
// shared; callers must treat them as read-only.
type resultCache struct {
	mu      sync.Mutex
	maxSize int
	entries map[cacheKey]*list.Element
	lru     *list.List
}

func newResultCache(maxSize int) *resultCache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	return &resultCache{
		maxSize: maxSize,
		entries: make(map[cacheKey]*list.Element),
		lru:     list.New(),
	}
}

func (c *resultCache) get(key cacheKey) (*RetrieveResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(elem)
	return elem.Value.(*cacheEntry).result, true
}

func (c *resultCache) put(key cacheKey, result *RetrieveResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).result = result
		return
	}

	elem := c.lru.PushFront(&cacheEntry{key: key, result: result})
	c.entries[key] = elem

	for c.lru.Len() > c.maxSize {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
