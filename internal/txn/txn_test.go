package txn

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scarletdme/qmcore/internal/descriptor"
	"github.com/scarletdme/qmcore/internal/dirfile"
	"github.com/scarletdme/qmcore/internal/lockmgr"
	"github.com/scarletdme/qmcore/internal/sysseg"
)

func newTestManager(t *testing.T) (*Manager, *dirfile.File) {
	t.Helper()
	seg := sysseg.New(sysseg.Limits{NumFiles: 8, NumLocks: 8, MaxUsers: 4})
	locks := lockmgr.New(seg, false)
	mgr := New(seg, locks)

	dir := filepath.Join(t.TempDir(), "CUSTOMERS")
	f, err := dirfile.Open(dir, false, false)
	require.NoError(t, err)
	t.Cleanup(f.Close)
	return mgr, f
}

func TestWriteCommitVisibleOnDisk(t *testing.T) {
	mgr, f := newTestManager(t)
	target := DirTarget{File: f}

	tx := mgr.Begin(1)
	data, result := tx.Read(1, "1001")
	require.Nil(t, data)
	require.Equal(t, NoPending, result)

	tx.Write(1, target, "1001", descriptor.NewFromBytes([]byte("Alice")), nil)
	data, result = tx.Read(1, "1001")
	require.Equal(t, PendingWrite, result)
	require.Equal(t, "Alice", string(descriptor.Bytes(data)))

	// Not on disk until commit.
	_, _, err := f.Read("1001")
	require.Error(t, err)

	require.NoError(t, tx.Commit())
	got, _, err := f.Read("1001")
	require.NoError(t, err)
	require.Equal(t, "Alice", string(descriptor.Bytes(got)))
}

func TestWriteThenDeleteCollapses(t *testing.T) {
	mgr, f := newTestManager(t)
	target := DirTarget{File: f}

	tx := mgr.Begin(1)
	tx.Write(1, target, "a", descriptor.NewFromBytes([]byte("v1")), nil)
	tx.Delete(1, target, "a", nil)
	require.Len(t, tx.queue, 1)

	_, result := tx.Read(1, "a")
	require.Equal(t, PendingDelete, result)

	require.NoError(t, tx.Commit())
	_, _, err := f.Read("a")
	require.ErrorIs(t, err, dirfile.ErrRecordNotFound)
}

func TestDeleteThenWriteCollapses(t *testing.T) {
	mgr, f := newTestManager(t)
	target := DirTarget{File: f}
	require.NoError(t, f.Write("a", descriptor.NewFromBytes([]byte("orig"))))

	tx := mgr.Begin(1)
	tx.Delete(1, target, "a", nil)
	tx.Write(1, target, "a", descriptor.NewFromBytes([]byte("v2")), nil)
	require.Len(t, tx.queue, 1)

	require.NoError(t, tx.Commit())
	got, _, err := f.Read("a")
	require.NoError(t, err)
	require.Equal(t, "v2", string(descriptor.Bytes(got)))
}

func TestRollbackDiscardsQueue(t *testing.T) {
	mgr, f := newTestManager(t)
	target := DirTarget{File: f}

	tx := mgr.Begin(1)
	tx.Write(1, target, "a", descriptor.NewFromBytes([]byte("v1")), nil)
	tx.Rollback()

	_, _, err := f.Read("a")
	require.ErrorIs(t, err, dirfile.ErrRecordNotFound)
}

func TestNestedCommitClearsParentStaleEntry(t *testing.T) {
	mgr, f := newTestManager(t)
	target := DirTarget{File: f}

	parent := mgr.Begin(1)
	parent.Write(1, target, "a", descriptor.NewFromBytes([]byte("parent-v")), nil)

	child := mgr.Begin(1)
	require.NotEqual(t, parent.ID(), child.ID())
	child.Write(1, target, "a", descriptor.NewFromBytes([]byte("child-v")), nil)
	require.NoError(t, child.Commit())

	// Parent's queued write to "a" is now stale; committing parent must not
	// clobber the child's already-committed value.
	_, ok := parent.byKey[recordKey(1, "a")]
	require.False(t, ok)

	require.NoError(t, parent.Commit())
	got, _, err := f.Read("a")
	require.NoError(t, err)
	require.Equal(t, "child-v", string(descriptor.Bytes(got)))
}

func TestPendingCloseCancelable(t *testing.T) {
	mgr, _ := newTestManager(t)
	tx := mgr.Begin(1)

	tx.Close(42)
	require.True(t, tx.HasPendingClose(42))
	require.True(t, tx.CancelPendingClose(42))
	require.False(t, tx.HasPendingClose(42))
	require.Len(t, tx.queue, 0)
}
