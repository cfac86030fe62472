package objcache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	calls map[string]int
	data  map[string][]byte
	globl map[string]bool
	err   error
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{calls: map[string]int{}, data: map[string][]byte{}, globl: map[string]bool{}}
}

func (f *fakeLoader) Load(name string) ([]byte, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	f.calls[name]++
	body, ok := f.data[name]
	if !ok {
		body = []byte(name)
	}
	hdr := &ObjectHeader{Magic: magicNative, ProgramName: name}
	return encodeObjectHeader(hdr, body), f.globl[name], nil
}

func TestGetLoadsOnMissAndCachesOnHit(t *testing.T) {
	c := New(0, 0)
	loader := newFakeLoader()

	obj1, err := c.Get("PROG1", loader)
	require.NoError(t, err)
	require.Equal(t, "PROG1", obj1.Name)
	require.Equal(t, 1, loader.calls["PROG1"])

	obj2, err := c.Get("PROG1", loader)
	require.NoError(t, err)
	require.Same(t, obj1, obj2)
	require.Equal(t, 1, loader.calls["PROG1"], "second Get must hit the cache, not reload")
}

func TestGetPropagatesLoaderError(t *testing.T) {
	c := New(0, 0)
	loader := newFakeLoader()
	loader.err = errors.New("boom")

	_, err := c.Get("PROG1", loader)
	require.Error(t, err)
}

func TestItemBudgetDiscardsUnreferencedLRU(t *testing.T) {
	c := New(0, 2)
	loader := newFakeLoader()

	a, err := c.Get("A", loader)
	require.NoError(t, err)
	_, err = c.Get("B", loader)
	require.NoError(t, err)

	// Touch A so B is the least-recently-used entry, then add a third
	// program: B (unreferenced, LRU) should be discarded, not A.
	_, err = c.Get("A", loader)
	require.NoError(t, err)
	_, err = c.Get("C", loader)
	require.NoError(t, err)

	require.True(t, c.IsLoaded(a.ID))
	require.False(t, c.IsLoaded(idOf(t, c, "B")))
	require.True(t, c.IsLoaded(idOf(t, c, "C")))
}

func idOf(t *testing.T, c *Cache, name string) int32 {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.lru.Peek(name)
	if !ok {
		return -1
	}
	return obj.ID
}

func TestDiscardSkipsReferencedEntries(t *testing.T) {
	c := New(0, 1)
	loader := newFakeLoader()

	a, err := c.Get("A", loader)
	require.NoError(t, err)
	a.Refs = 1

	_, err = c.Get("B", loader)
	require.NoError(t, err)

	// A is still referenced, so the budget-enforcing discard had to skip it;
	// the cache grows past its item budget rather than evict a live entry.
	require.True(t, c.IsLoaded(a.ID))
}

func TestUnloadRequiresZeroRefs(t *testing.T) {
	c := New(0, 0)
	loader := newFakeLoader()
	obj, err := c.Get("A", loader)
	require.NoError(t, err)

	obj.Refs = 1
	c.Unload("A")
	require.True(t, c.IsLoaded(obj.ID))

	obj.Refs = 0
	c.Unload("A")
	require.False(t, c.IsLoaded(obj.ID))
}

func TestInvalidatePreservesReservedGlobalPrograms(t *testing.T) {
	c := New(0, 0)
	loader := newFakeLoader()
	loader.globl["$SYSTEM.VERB"] = true

	sysObj, err := c.Get("$SYSTEM.VERB", loader)
	require.NoError(t, err)
	userObj, err := c.Get("MYPROG", loader)
	require.NoError(t, err)

	c.Invalidate()

	// The reserved global program reloads as the same cached object; the
	// ordinary one was invalidated and reloads as a fresh object.
	again, err := c.Get("$SYSTEM.VERB", loader)
	require.NoError(t, err)
	require.Same(t, sysObj, again)

	reloaded, err := c.Get("MYPROG", loader)
	require.NoError(t, err)
	require.NotSame(t, userObj, reloaded)
	require.Equal(t, 2, loader.calls["MYPROG"])
}

func TestHotSpotAccumulatesAcrossReload(t *testing.T) {
	c := New(0, 1)
	loader := newFakeLoader()
	c.EnableHotSpotMonitor()

	a, err := c.Get("A", loader)
	require.NoError(t, err)
	c.HotSpotEnter(a)

	// Force A out by loading past the item budget while unreferenced.
	_, err = c.Get("B", loader)
	require.NoError(t, err)
	require.False(t, c.IsLoaded(a.ID))

	dump := c.HotSpotDump()
	var found bool
	for _, e := range dump {
		if e.Name == "A" {
			found = true
			require.GreaterOrEqual(t, e.Calls, int32(1))
		}
	}
	require.True(t, found, "hot-spot data for A must survive its eviction")
}

func TestFindByIDUnknown(t *testing.T) {
	c := New(0, 0)
	_, err := c.FindByID(999)
	require.ErrorIs(t, err, ErrNotFound)
}
