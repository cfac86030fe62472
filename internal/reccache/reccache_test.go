package reccache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scarletdme/qmcore/internal/descriptor"
)

// TestRecordReadThroughCache exercises the worked scenario verbatim:
// RECCACHE=4, write "a"/"b", re-read in an order that exercises move-to-
// front, then a write bumps upd_ct and the stale cache entry is ignored.
func TestRecordReadThroughCache(t *testing.T) {
	c := New(4)
	require.True(t, c.Enabled())

	const fileID = 1
	var updCt uint64 = 1

	// Miss, then populate "a".
	_, ok := c.Get(fileID, "a", updCt)
	require.False(t, ok)
	c.Put(fileID, "a", descriptor.NewFromBytes([]byte("hello")), updCt)
	require.Equal(t, 1, c.Len())

	// Populate "b".
	c.Put(fileID, "b", descriptor.NewFromBytes([]byte("world")), updCt)
	require.Equal(t, 2, c.Len())

	data, ok := c.Get(fileID, "b", updCt)
	require.True(t, ok)
	require.Equal(t, "world", string(descriptor.Bytes(data)))
	descriptor.Release(data)

	data, ok = c.Get(fileID, "a", updCt)
	require.True(t, ok)
	require.Equal(t, "hello", string(descriptor.Bytes(data)))
	descriptor.Release(data)

	// Write "a" = "HELLO" bumps upd_ct; old cache entry must now miss.
	updCt++
	_, ok = c.Get(fileID, "a", updCt)
	require.False(t, ok, "stale entry (old upd_ct) must be ignored")

	c.Put(fileID, "a", descriptor.NewFromBytes([]byte("HELLO")), updCt)
	data, ok = c.Get(fileID, "a", updCt)
	require.True(t, ok)
	require.Equal(t, "HELLO", string(descriptor.Bytes(data)))
	descriptor.Release(data)
}

func TestCacheDisabled(t *testing.T) {
	c := New(0)
	require.False(t, c.Enabled())
	c.Put(1, "a", descriptor.NewFromBytes([]byte("x")), 1)
	_, ok := c.Get(1, "a", 1)
	require.False(t, ok)
}

func TestResizeEvictsTail(t *testing.T) {
	c := New(2)
	c.Put(1, "a", descriptor.NewFromBytes([]byte("1")), 1)
	c.Put(1, "b", descriptor.NewFromBytes([]byte("2")), 1)
	c.Resize(1)
	require.LessOrEqual(t, c.Len(), 1)
}
