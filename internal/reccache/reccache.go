// Package reccache implements the per-process record cache:
// a fixed-size LRU keyed by (file_id, id), invalidated by the owning
// file's upd_ct counter rather than by explicit invalidation messages.
//
// Grounded verbatim on gplsrc/reccache.c (cache_record, scan_record_cache,
// init_record_cache's expand/contract) with the LRU dechain/rechain-at-head
// logic delegated to github.com/hashicorp/golang-lru/v2 (teacher dependency)
// since that library already implements exactly this move-to-front policy;
// the upd_ct staleness check it knows nothing about is layered on top.
package reccache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/scarletdme/qmcore/internal/descriptor"
)

// key identifies one cached record the way REC_CACHE_ENTRY's file_no+id
// pair does.
type key struct {
	fileID int
	id     string
}

// entry mirrors REC_CACHE_ENTRY: the data chunk chain plus the upd_ct
// snapshot taken when it was cached.
type entry struct {
	updCt uint64
	data  *descriptor.Chunk
}

// Cache is the bounded LRU. Size 0 disables caching entirely, matching
// the RECCACHE=0 config setting.
type Cache struct {
	size int
	lru  *lru.Cache[key, entry]
}

// New builds a cache of the given size (0..32; 0 disables it).
func New(size int) *Cache {
	c := &Cache{}
	c.Resize(size)
	return c
}

// Enabled reports whether the cache accepts entries (pcfg.reccache != 0).
func (c *Cache) Enabled() bool {
	return c.size > 0
}

// Get looks up (fileID, id), requiring the caller-supplied currentUpdCt to
// match the entry's snapshot (scan_record_cache's upd_ct equality test). A
// stale hit is treated as a miss and is left for natural LRU eviction
// rather than removed eagerly.
// On a genuine hit the entry's ref count is bumped (the caller owns one
// more reference) and it moves to the head of the LRU, mirroring
// cache_record's move-to-front.
func (c *Cache) Get(fileID int, id string, currentUpdCt uint64) (*descriptor.Chunk, bool) {
	if c.lru == nil {
		return nil, false
	}
	e, ok := c.lru.Get(key{fileID, id})
	if !ok || e.updCt != currentUpdCt {
		return nil, false
	}
	return descriptor.Retain(e.data), true
}

// Put installs (fileID, id) -> data at the head of the cache (cache_record).
// data's reference count is bumped because the cache itself now holds a
// reference; any entry this displaces has its reference released: an entry
// under the same key here, the LRU tail once the cache is full via the
// eviction callback installed in New/Resize.
func (c *Cache) Put(fileID int, id string, data *descriptor.Chunk, updCt uint64) {
	if c.lru == nil {
		return
	}
	descriptor.Retain(data)
	k := key{fileID, id}
	if old, ok := c.lru.Peek(k); ok {
		descriptor.Release(old.data)
	}
	c.lru.Add(k, entry{updCt: updCt, data: data})
}

func (c *Cache) onEvict(_ key, e entry) {
	descriptor.Release(e.data)
}

// Resize grows or shrinks the cache to n entries, releasing references held
// by any entries evicted during a shrink (init_record_cache's expand/
// contract loop). n<=0 disables the cache.
func (c *Cache) Resize(n int) {
	old := c.lru
	if n <= 0 {
		c.size, c.lru = 0, nil
	} else {
		l, _ := lru.NewWithEvict[key, entry](n, c.onEvict)
		c.size, c.lru = n, l
	}
	if old != nil {
		for _, k := range old.Keys() {
			e, ok := old.Get(k)
			if !ok {
				continue
			}
			if c.lru != nil {
				c.lru.Add(k, e) // ownership of e.data's reference transfers
			} else {
				descriptor.Release(e.data)
			}
		}
	}
}

// Len reports the current number of cached entries.
func (c *Cache) Len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}
