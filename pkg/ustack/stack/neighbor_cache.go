// Copyright 2024 The uStack Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stack

import (
	"sync"

	"github.com/ustacknet/ustack/pkg/ustack"
)

const neighborCacheSize = 512 // max cache entries

// Cache is a fixed-size neighbor cache mapping IPv6 addresses to link-layer
// addresses. When full, the least recently updated entry is evicted.
//
// This struct is safe for concurrent use.
type Cache struct {
	mu    sync.Mutex
	table map[ustack.Address]*neighborEntry

	// lru is a doubly linked list of entries, most recently updated
	// first.
	head *neighborEntry
	tail *neighborEntry
}

var _ NeighborCache = (*Cache)(nil)

// A neighborEntry is an entry in the Cache. Its list links are synchronized
// by the cache lock.
type neighborEntry struct {
	addr     ustack.Address
	linkAddr ustack.LinkAddress

	next, prev *neighborEntry
}

// NewNeighborCache creates an empty neighbor cache.
func NewNeighborCache() *Cache {
	return &Cache{
		table: make(map[ustack.Address]*neighborEntry),
	}
}

// Upsert implements NeighborCache.Upsert.
func (c *Cache) Upsert(addr ustack.Address, linkAddr ustack.LinkAddress) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.table[addr]; ok {
		e.linkAddr = linkAddr
		c.removeLocked(e)
		c.pushFrontLocked(e)
		return
	}

	if len(c.table) >= neighborCacheSize {
		// Evict the least recently updated entry.
		old := c.tail
		c.removeLocked(old)
		delete(c.table, old.addr)
	}

	e := &neighborEntry{addr: addr, linkAddr: linkAddr}
	c.table[addr] = e
	c.pushFrontLocked(e)
}

// Get returns the link-layer address cached for addr, if any.
func (c *Cache) Get(addr ustack.Address) (ustack.LinkAddress, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.table[addr]
	if !ok {
		return "", false
	}
	return e.linkAddr, true
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.table)
}

func (c *Cache) pushFrontLocked(e *neighborEntry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	} else {
		c.tail = e
	}
	c.head = e
}

func (c *Cache) removeLocked(e *neighborEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.next = nil
	e.prev = nil
}
