// Package cache implements the hash-indexed, size-bounded, LRU-evicting
// store at the heart of the server: O(1) lookup/insert/remove, LRU order,
// byte-budget enforcement and CAS semantics, built around a single
// exclusion lock that can be disabled entirely for single-threaded use.
package cache

import (
	"errors"
	"sync"

	"github.com/hashicorp/golang-lru/simplelru"
)

// ErrKeyExists is returned by Cas/Remove when the caller's CAS token does
// not match the entry currently stored for the key (wire status
// KEY_EEXISTS).
var ErrKeyExists = errors.New("cache: cas token mismatch")

// ErrTooLarge is returned by Set/Cas when a single item's memory cost
// exceeds the cache's budget by itself; admitting it is refused even after
// evicting everything else.
var ErrTooLarge = errors.New("cache: item exceeds cache capacity")

// Cache is the process-wide key/value store. Thread-safety is chosen once,
// at construction: in shared mode every public method takes a single
// exclusion lock guarding the map, the LRU order and the byte counters
// together; in single-threaded mode (a server running with a single
// worker) no lock is taken at all.
type Cache struct {
	mu     *sync.Mutex // nil in single-threaded mode
	data   map[string]*node
	lru    *list
	used   uint64
	max    uint64
	onEvict simplelru.EvictCallback
}

// New returns a Cache with the given byte budget. threadSafe selects the
// locking mode; onEvict, if non-nil, is invoked synchronously (while the
// lock, if any, is held) whenever an entry leaves the cache — replaced,
// removed, or LRU-evicted — reusing hashicorp/golang-lru's
// simplelru.EvictCallback type verbatim rather than inventing a parallel
// one.
func New(maxBytes uint64, threadSafe bool, onEvict simplelru.EvictCallback) *Cache {
	c := &Cache{
		data:    make(map[string]*node),
		lru:     newList(),
		max:     maxBytes,
		onEvict: onEvict,
	}
	if threadSafe {
		c.mu = &sync.Mutex{}
	}
	return c
}

func (c *Cache) lock() {
	if c.mu != nil {
		c.mu.Lock()
	}
}

func (c *Cache) unlock() {
	if c.mu != nil {
		c.mu.Unlock()
	}
}

// Set inserts or replaces the entry for item's key, reclaiming LRU entries
// first if admitting it would exceed the byte budget.
func (c *Cache) Set(item *Item) error {
	c.lock()
	defer c.unlock()
	return c.doSet(item)
}

// Cas performs an atomic read-then-set: if an entry exists for item's key
// and its stored CAS token differs from token, the operation fails with
// ErrKeyExists and the cache is left unchanged. Otherwise it behaves as
// Set. token == 0 is not special-cased here: callers route a store with
// cas 0 to Set instead, never to Cas.
func (c *Cache) Cas(item *Item, token uint64) error {
	c.lock()
	defer c.unlock()

	if existing, ok := c.data[string(item.Key)]; ok && existing.entry.Cas != token {
		return ErrKeyExists
	}
	return c.doSet(item)
}

func (c *Cache) doSet(item *Item) error {
	k := string(item.Key)
	itemmem := item.memsize()

	if existing, ok := c.data[k]; ok {
		c.deleteNode(k, existing)
	}

	if itemmem+c.used > c.max {
		need := itemmem * 2
		if floor := c.max / 100; floor > need {
			need = floor
		}
		c.freeBytes(need)
	}
	if itemmem > c.max {
		// Even a fully empty cache cannot hold this item.
		return ErrTooLarge
	}

	n := c.lru.PushBack(item)
	item.lru = n
	c.data[k] = n
	c.used += itemmem
	return nil
}

// Remove deletes the entry for key. If token != 0, the current entry's CAS
// token must match or the call fails with ErrKeyExists and the cache is
// unchanged. Removing a missing key is a success, not an error.
func (c *Cache) Remove(rawKey []byte, token uint64) error {
	c.lock()
	defer c.unlock()

	k := string(rawKey)
	n, ok := c.data[k]
	if !ok {
		return nil
	}
	if token != 0 && n.entry.Cas != token {
		return ErrKeyExists
	}
	c.deleteNode(k, n)
	return nil
}

// Get looks up key, moving it to the MRU end of the LRU order on a hit. The
// returned Item shares its backing buffer with the stored entry: Go's
// garbage collector keeps that buffer alive for as long as the caller
// holds the returned pointer, even if a concurrent Set/Remove unlinks the
// entry from the cache afterwards, so no reference counting is needed to
// keep a read handle valid until the caller is done with it — the
// collector is the release mechanism.
func (c *Cache) Get(rawKey []byte) (*Item, bool) {
	c.lock()
	defer c.unlock()

	n, ok := c.data[string(rawKey)]
	if !ok {
		return nil, false
	}
	c.lru.MoveToBack(n)
	return n.entry, true
}

// GetValue copies the value bytes for key into a freshly allocated slice
// and reports whether key was present, as a copy-out alternative to Get
// for callers that don't want to hold a shared handle into the cache.
func (c *Cache) GetValue(rawKey []byte) (value []byte, flags uint32, cas uint64, ok bool) {
	item, ok := c.Get(rawKey)
	if !ok {
		return nil, 0, 0, false
	}
	out := make([]byte, len(item.Value))
	copy(out, item.Value)
	return out, item.Flags, item.Cas, true
}

// Len reports the number of entries currently admitted.
func (c *Cache) Len() int {
	c.lock()
	defer c.unlock()
	return c.lru.Len()
}

// UsedBytes reports the sum of memsize() over every admitted entry.
func (c *Cache) UsedBytes() uint64 {
	c.lock()
	defer c.unlock()
	return c.used
}

// freeBytes evicts strict-LRU from the front of the list until at least
// size bytes have been reclaimed or the cache is empty.
func (c *Cache) freeBytes(size uint64) {
	var freed uint64
	for freed < size {
		n := c.lru.Front()
		if n == nil {
			return
		}
		k := string(n.entry.Key)
		freed += n.entry.memsize()
		c.deleteNode(k, n)
	}
}

// deleteNode unlinks n from both the map and the LRU list and adjusts the
// byte counter; it is the sole place entries leave the cache so invariants
// 1 and 2 (map/list key-set equality, used_bytes accounting) stay in sync.
func (c *Cache) deleteNode(k string, n *node) {
	delete(c.data, k)
	c.lru.Remove(n)
	c.used -= n.entry.memsize()
	if c.onEvict != nil {
		c.onEvict(k, n.entry)
	}
}
