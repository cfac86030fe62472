package sysseg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSegment(t *testing.T) *Segment {
	t.Helper()
	return New(Limits{NumFiles: 4, NumLocks: 8, MaxUsers: 2})
}

func TestGetFileEntryAllocatesAndSharesByPath(t *testing.T) {
	seg := newTestSegment(t)

	id1, err := seg.GetFileEntry(1, "/data/CUSTOMERS", 0, 0, FileEntry{})
	require.NoError(t, err)
	require.Equal(t, 1, id1)

	id2, err := seg.GetFileEntry(2, "/data/CUSTOMERS", 0, 0, FileEntry{})
	require.NoError(t, err)
	require.Equal(t, id1, id2, "same path must share one slot")

	fe, ok := seg.FileEntrySnapshot(id1)
	require.True(t, ok)
	require.EqualValues(t, 2, fe.RefCount)
}

func TestGetFileEntryMatchesByDeviceInode(t *testing.T) {
	seg := newTestSegment(t)

	id1, err := seg.GetFileEntry(1, "/mnt/a/CUSTOMERS", 10, 20, FileEntry{})
	require.NoError(t, err)
	id2, err := seg.GetFileEntry(2, "/mnt/b/CUSTOMERS", 10, 20, FileEntry{})
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

func TestGetFileEntryExclusiveConflict(t *testing.T) {
	seg := newTestSegment(t)
	id, err := seg.GetFileEntry(1, "/data/X", 0, 0, FileEntry{})
	require.NoError(t, err)
	seg.CloseFileEntry(1, id)

	id, err = seg.GetFileEntry(1, "/data/X", 0, 0, FileEntry{})
	require.NoError(t, err)
	require.NoError(t, seg.OpenExclusive(1, id))

	_, err = seg.GetFileEntry(2, "/data/X", 0, 0, FileEntry{})
	require.ErrorIs(t, err, ErrExclusive)
}

func TestGetFileEntryNoFreeSlot(t *testing.T) {
	seg := New(Limits{NumFiles: 1, NumLocks: 1, MaxUsers: 1})
	_, err := seg.GetFileEntry(1, "/a", 0, 0, FileEntry{})
	require.NoError(t, err)
	_, err = seg.GetFileEntry(1, "/b", 0, 0, FileEntry{})
	require.ErrorIs(t, err, ErrNoFreeSlot)
}

func TestCloseFileEntryFreesSlotAtZeroRefCount(t *testing.T) {
	seg := newTestSegment(t)
	id, err := seg.GetFileEntry(1, "/data/X", 0, 0, FileEntry{})
	require.NoError(t, err)
	_, err = seg.GetFileEntry(2, "/data/X", 0, 0, FileEntry{})
	require.NoError(t, err)

	seg.CloseFileEntry(1, id)
	_, ok := seg.FileEntrySnapshot(id)
	require.True(t, ok, "slot stays allocated while a second opener holds it")

	seg.CloseFileEntry(2, id)
	_, ok = seg.FileEntrySnapshot(id)
	require.False(t, ok, "slot frees once the last opener closes")
}

func TestUserFilesTracksOpenSet(t *testing.T) {
	seg := newTestSegment(t)
	id1, err := seg.GetFileEntry(1, "/a", 0, 0, FileEntry{})
	require.NoError(t, err)
	id2, err := seg.GetFileEntry(1, "/b", 0, 0, FileEntry{})
	require.NoError(t, err)

	require.ElementsMatch(t, []int{id1, id2}, seg.UserFiles(1))

	seg.CloseFileEntry(1, id1)
	require.ElementsMatch(t, []int{id2}, seg.UserFiles(1))
}

func TestBumpUpdCountIncrements(t *testing.T) {
	seg := newTestSegment(t)
	id, err := seg.GetFileEntry(1, "/a", 0, 0, FileEntry{})
	require.NoError(t, err)

	fe, _ := seg.FileEntrySnapshot(id)
	require.EqualValues(t, 1, fe.UpdCount)

	n := seg.BumpUpdCount(id)
	require.EqualValues(t, 2, n)
}

func TestNextTxnIDSkipsZeroOnWrap(t *testing.T) {
	seg := newTestSegment(t)
	first := seg.NextTxnID()
	require.NotZero(t, first)
	second := seg.NextTxnID()
	require.Equal(t, first+1, second)

	seg.nextTxnID = ^uint32(0)
	require.EqualValues(t, 1, seg.NextTxnID())
}

func TestFindFreeLockSlot(t *testing.T) {
	locks := make([]LockEntry, 3)
	locks[0].InUse = true
	require.Equal(t, 1, FindFreeLockSlot(locks))

	locks[1].InUse = true
	locks[2].InUse = true
	require.Equal(t, -1, FindFreeLockSlot(locks))
}
