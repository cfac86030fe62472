// Package objcache implements the object-code cache: an LRU of loaded
// byte-code program images keyed by program name, with budget-triggered
// eviction of unreferenced entries, account-switch invalidation, and an
// optional hot-spot CPU-time monitor.
package objcache

import (
	"errors"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrNotFound is returned by FindByID when no loaded object has that id.
var ErrNotFound = errors.New("objcache: object not found")

// reservedPrefixes holds the leading characters that mark a program name as
// coming from a namespace immune to account-switch invalidation (system
// verbs, $-prefixed internals, and the like).
const reservedPrefixes = "*$!_"

// Object is one loaded program image.
type Object struct {
	ID     int32
	Name   string
	Header ObjectHeader // decoded header, byte-swapped if loaded cross-endian
	Bytes  []byte       // byte-code body, header and program name stripped
	Global bool         // loaded from the global catalogue
	Refs   int32

	invalid bool
	calls   int32
	cpTime  time.Duration
}

// Loader resolves a program name to its raw on-disk object bytes (header
// followed by byte-code body), following whatever search order (runfile
// path, local catalogue, private catalogue, global catalogue) the caller's
// account configuration implies. isGlobal reports whether the result came
// from the global catalogue.
type Loader interface {
	Load(name string) (data []byte, isGlobal bool, err error)
}

// Cache is the LRU of loaded objects.
type Cache struct {
	mu sync.Mutex

	lru        *lru.Cache[string, *Object]
	byID       map[int32]*Object
	nextID     int32
	totalBytes int64

	memBudget  int64 // objmem; 0 = unbounded
	itemBudget int   // objects cap; 0 = unbounded

	hsmEnabled bool
	hsmActive  *Object
	hsmLastCP  time.Time
	hsmEntries map[string]*HotSpotEntry
}

// HotSpotEntry accumulates CPU time and call count for one program name
// across however many times it has been loaded and unloaded while the
// monitor was running.
type HotSpotEntry struct {
	Name   string
	Calls  int32
	CPTime time.Duration
}

// New creates a cache enforcing memBudget bytes and/or itemBudget entries
// (either may be 0 to disable that limit).
func New(memBudget int64, itemBudget int) *Cache {
	// The underlying LRU's own size cap is set arbitrarily high: all real
	// eviction decisions go through discard(), which (unlike the library's
	// automatic eviction) skips entries still in active use.
	backing, _ := lru.New[string, *Object](1 << 20)
	return &Cache{
		lru:        backing,
		byID:       make(map[int32]*Object),
		nextID:     1,
		memBudget:  memBudget,
		itemBudget: itemBudget,
		hsmEntries: make(map[string]*HotSpotEntry),
	}
}

// Get returns the cached object named name, loading it via loader on a
// miss. An invalidated entry is treated as absent and reloaded. A genuine
// hit moves the entry to the head of the LRU and, if the monitor is
// running, bumps its call count.
func (c *Cache) Get(name string, loader Loader) (*Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if obj, ok := c.lru.Get(name); ok && !obj.invalid {
		if c.hsmEnabled {
			obj.calls++
		}
		return obj, nil
	}

	data, isGlobal, err := loader.Load(name)
	if err != nil {
		return nil, err
	}
	hdr, body, err := decodeObjectHeader(data)
	if err != nil {
		return nil, err
	}

	// Evict down to one below budget before inserting, so the entry about to
	// be added lands the cache back at (not over) its configured budget.
	for ((c.memBudget != 0 && c.totalBytes+int64(len(body)) > c.memBudget) ||
		(c.itemBudget != 0 && c.lru.Len() >= c.itemBudget)) && c.discard() {
	}

	// The id assigned at load time is the cache's own running sequence, not
	// whatever happened to be on disk, mirroring object.c's op_catalog
	// overwriting obj->code.id with next_id unconditionally.
	hdr.ID = c.nextID
	obj := &Object{
		ID:     c.nextID,
		Name:   name,
		Header: *hdr,
		Bytes:  body,
		Global: isGlobal,
	}
	if c.hsmEnabled {
		obj.calls = 1
	}
	c.nextID++

	c.lru.Add(name, obj)
	c.byID[obj.ID] = obj
	c.totalBytes += int64(len(body))
	return obj, nil
}

// discard evicts the least-recently-used object with a zero reference
// count, reporting whether anything was evicted. Referenced entries are
// skipped rather than evicted, mirroring the load-policy rule that only
// unreferenced code can be reclaimed under memory pressure.
func (c *Cache) discard() bool {
	for _, key := range c.lru.Keys() {
		obj, ok := c.lru.Peek(key)
		if !ok || obj.Refs != 0 {
			continue
		}
		c.removeLocked(obj)
		return true
	}
	return false
}

func (c *Cache) removeLocked(obj *Object) {
	if c.hsmEnabled {
		c.logHotSpotLocked(obj)
	}
	if c.hsmActive == obj {
		c.hsmActive = nil
	}
	c.lru.Remove(obj.Name)
	delete(c.byID, obj.ID)
	c.totalBytes -= int64(len(obj.Bytes))
}

// Unload removes name from the cache if it is present and unreferenced.
func (c *Cache) Unload(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if obj, ok := c.lru.Peek(name); ok && obj.Refs == 0 {
		c.removeLocked(obj)
	}
}

// UnloadAll removes every currently unreferenced object.
func (c *Cache) UnloadAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.lru.Keys() {
		if obj, ok := c.lru.Peek(key); ok && obj.Refs == 0 {
			c.removeLocked(obj)
		}
	}
}

// Invalidate marks every object invalid except globally catalogued items
// whose name starts with a reserved prefix, matching what an account
// switch (logto) must flush: anything that could mean something different
// under the new account's catalogue. Invalidated entries are skipped by Get
// and drain as their reference counts fall to zero.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.lru.Keys() {
		obj, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		if !obj.Global || !strings.ContainsRune(reservedPrefixes, rune(obj.Name[0])) {
			obj.invalid = true
		}
	}
}

// FindByID returns the loaded object with the given id.
func (c *Cache) FindByID(id int32) (*Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if obj, ok := c.byID[id]; ok {
		return obj, nil
	}
	return nil, ErrNotFound
}

// IsLoaded reports whether an object with the given id is currently cached.
func (c *Cache) IsLoaded(id int32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.byID[id]
	return ok
}

// EnableHotSpotMonitor turns on CPU-time attribution, clearing any
// previously accumulated data.
func (c *Cache) EnableHotSpotMonitor() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.lru.Keys() {
		if obj, ok := c.lru.Peek(key); ok {
			obj.calls = 0
			obj.cpTime = 0
		}
	}
	c.hsmEntries = make(map[string]*HotSpotEntry)
	c.hsmLastCP = time.Now()
	c.hsmEnabled = true
}

// HotSpotEnter attributes elapsed time since the last call/enter to
// whichever object was previously active, then makes obj the active one.
// Call this on every program entry (call or return) so cross-program CPU
// time is split at the right boundary rather than all charged to whichever
// program happens to be active when the monitor is read.
func (c *Cache) HotSpotEnter(obj *Object) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hsmEnabled {
		return
	}
	now := time.Now()
	if c.hsmActive != nil {
		c.hsmActive.cpTime += now.Sub(c.hsmLastCP)
	}
	if obj != nil {
		c.hsmActive = obj
	}
	c.hsmLastCP = now
}

// logHotSpotLocked folds an object's accumulated calls/cpTime into its
// name's running totals before the object itself is discarded, so hot-spot
// data survives reload of the same program.
func (c *Cache) logHotSpotLocked(obj *Object) {
	e, ok := c.hsmEntries[obj.Name]
	if !ok {
		e = &HotSpotEntry{Name: obj.Name}
		c.hsmEntries[obj.Name] = e
	}
	e.Calls += obj.calls
	e.CPTime += obj.cpTime
	obj.calls = 0
	obj.cpTime = 0
}

// HotSpotDump returns accumulated hot-spot data for every program seen
// since EnableHotSpotMonitor, folding in any still-loaded object's
// in-progress totals.
func (c *Cache) HotSpotDump() []HotSpotEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hsmEnabled {
		for _, key := range c.lru.Keys() {
			if obj, ok := c.lru.Peek(key); ok {
				c.logHotSpotLocked(obj)
			}
		}
	}
	out := make([]HotSpotEntry, 0, len(c.hsmEntries))
	for _, e := range c.hsmEntries {
		out = append(out, *e)
	}
	return out
}
