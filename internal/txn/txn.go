// Package txn implements the transaction manager: a write-ahead queue of
// pending writes/deletes/closes per transaction, nested begin/commit/
// rollback, and the collapsing rules that keep repeated writes to the same
// record from growing the queue without bound.
package txn

import (
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/scarletdme/qmcore/internal/descriptor"
	"github.com/scarletdme/qmcore/internal/lockmgr"
	"github.com/scarletdme/qmcore/internal/sysseg"
)

type action int

const (
	actionWrite action = iota
	actionDelete
	actionClose
)

type entry struct {
	fileID int
	id     string
	action action
	target Target
	data   *descriptor.Chunk
	akKeys map[int]string
}

func recordKey(fileID int, id string) string {
	return fmt.Sprintf("%d|%s", fileID, id)
}

// Txn is one open transaction. Nested transactions chain through parent;
// Begin on a Manager with an already-open transaction pushes the current
// one onto that chain and starts a fresh queue.
type Txn struct {
	mgr    *Manager
	id     uint32
	uid    int32
	parent *Txn

	queue     []*entry
	byKey     map[string]*entry // fileID|id -> queued write/delete entry, for O(1) collapse
	closePend mapset.Set[int]   // fileIDs with a queued Close action
}

// Manager coordinates transactions for one logical connection: it tracks
// the single currently-open transaction (if any) and the locking/segment
// state commit and rollback must touch.
type Manager struct {
	seg   *sysseg.Segment
	locks *lockmgr.Manager

	mu      sync.Mutex
	current *Txn

	// FsyncOnCommit mirrors the fsync config bit: when set, Commit fsyncs
	// every target that received a Write during the transaction.
	FsyncOnCommit bool
}

// New creates a transaction manager bound to seg and locks.
func New(seg *sysseg.Segment, locks *lockmgr.Manager) *Manager {
	return &Manager{seg: seg, locks: locks}
}

// Begin opens a new transaction for uid, nesting inside any transaction
// already open on this Manager.
func (m *Manager) Begin(uid int32) *Txn {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &Txn{
		mgr:       m,
		id:        m.seg.NextTxnID(),
		uid:       uid,
		parent:    m.current,
		byKey:     make(map[string]*entry),
		closePend: mapset.NewThreadUnsafeSet[int](),
	}
	m.current = t
	return t
}

// ID returns the transaction id assigned at Begin.
func (t *Txn) ID() uint32 { return t.id }

// Write enqueues a write of data under id against target, collapsing with
// any already-queued action on the same (fileID, id):
//
//	Write then Write  -> replace payload
//	Delete then Write -> convert back to Write
func (t *Txn) Write(fileID int, target Target, id string, data *descriptor.Chunk, akKeys map[int]string) {
	key := recordKey(fileID, id)
	if e, ok := t.byKey[key]; ok {
		e.action = actionWrite
		e.target = target
		e.data = data
		e.akKeys = akKeys
		return
	}
	e := &entry{fileID: fileID, id: id, action: actionWrite, target: target, data: data, akKeys: akKeys}
	t.queue = append(t.queue, e)
	t.byKey[key] = e
}

// Delete enqueues a delete of id against target, collapsing with any
// already-queued action on the same (fileID, id):
//
//	Write then Delete  -> convert to Delete, releasing the queued payload
//	Delete then Delete -> idempotent
func (t *Txn) Delete(fileID int, target Target, id string, akKeys map[int]string) {
	key := recordKey(fileID, id)
	if e, ok := t.byKey[key]; ok {
		if e.action == actionDelete {
			return
		}
		e.action = actionDelete
		e.target = target
		e.data = nil
		e.akKeys = akKeys
		return
	}
	e := &entry{fileID: fileID, id: id, action: actionDelete, target: target, akKeys: akKeys}
	t.queue = append(t.queue, e)
	t.byKey[key] = e
}

// Close enqueues a deferred close of fileID: the file's ref count is kept
// alive until commit so it cannot be reused/reopened mid-transaction.
func (t *Txn) Close(fileID int) {
	t.queue = append(t.queue, &entry{fileID: fileID, action: actionClose})
	t.closePend.Add(fileID)
}

// HasPendingClose reports whether fileID has a queued Close action, letting
// an Open on the same path cancel it and reuse the existing handle instead
// of oscillating closed/reopened within one transaction.
func (t *Txn) HasPendingClose(fileID int) bool {
	return t.closePend.Contains(fileID)
}

// CancelPendingClose removes a queued Close action for fileID, if any,
// reporting whether one was found.
func (t *Txn) CancelPendingClose(fileID int) bool {
	if !t.closePend.Contains(fileID) {
		return false
	}
	t.closePend.Remove(fileID)
	for i, e := range t.queue {
		if e.action == actionClose && e.fileID == fileID {
			t.queue = append(t.queue[:i], t.queue[i+1:]...)
			break
		}
	}
	return true
}

// ReadResult reports the outcome of a Read lookup against the pending
// transaction queues.
type ReadResult int

const (
	// NoPending means neither this transaction nor any ancestor has a
	// queued action on (fileID, id); the caller should read disk.
	NoPending ReadResult = iota
	// PendingWrite means a queued Write should be served instead of disk.
	PendingWrite
	// PendingDelete means a queued Delete hides the on-disk record.
	PendingDelete
)

// Read searches this transaction's queue and then every enclosing
// transaction's queue (innermost first) for a pending action on
// (fileID, id). A Write hit returns its payload and bypasses disk; a
// Delete hit reports "not found" without touching disk.
func (t *Txn) Read(fileID int, id string) (data *descriptor.Chunk, result ReadResult) {
	key := recordKey(fileID, id)
	for cur := t; cur != nil; cur = cur.parent {
		if e, ok := cur.byKey[key]; ok {
			if e.action == actionWrite {
				return e.data, PendingWrite
			}
			return nil, PendingDelete
		}
	}
	return nil, NoPending
}

// Commit replays every queued action in FIFO order, clearing the
// transaction's own id first so nested writes/closes triggered by replay
// (e.g. a trigger) are not themselves logged against this transaction. On
// success it fsyncs every written target when FsyncOnCommit is set, then
// releases all locks tagged with this transaction and dechains any
// now-committed entries from the parent's queue.
func (t *Txn) Commit() error {
	t.mgr.mu.Lock()
	if t.mgr.current != t {
		t.mgr.mu.Unlock()
		return fmt.Errorf("txn: commit called out of order (txn %d not current)", t.id)
	}
	t.mgr.current = t.parent
	t.mgr.mu.Unlock()

	written := map[Target]bool{}
	for _, e := range t.queue {
		switch e.action {
		case actionWrite:
			if err := e.target.WriteRecord(e.id, e.data, e.akKeys); err != nil {
				return fmt.Errorf("txn: commit write %s: %w", e.id, err)
			}
			written[e.target] = true
		case actionDelete:
			if err := e.target.DeleteRecord(e.id, e.akKeys); err != nil {
				return fmt.Errorf("txn: commit delete %s: %w", e.id, err)
			}
		case actionClose:
			t.mgr.seg.CloseFileEntry(t.uid, e.fileID)
		}
	}

	if t.mgr.FsyncOnCommit {
		for target := range written {
			_ = target.Fsync()
		}
	}

	t.mgr.locks.UnlockTxn(t.id)
	t.clearFromParent()
	return nil
}

// Rollback discards every queued action, undoes the ref-count hold a
// pending Close placed on its file (closing it for real if that drops the
// count to zero), and releases all locks tagged with this transaction.
func (t *Txn) Rollback() {
	t.mgr.mu.Lock()
	if t.mgr.current == t {
		t.mgr.current = t.parent
	}
	t.mgr.mu.Unlock()

	for _, e := range t.queue {
		if e.action == actionClose {
			t.mgr.seg.CloseFileEntry(t.uid, e.fileID)
		}
	}
	t.mgr.locks.UnlockTxn(t.id)
}

// clearFromParent removes any parent-queue entry whose (fileID, id) was
// just committed to disk by this transaction: the parent's copy is now
// stale (disk already reflects the committed value) and replaying it at
// the parent's own commit would overwrite the newer data with the older.
func (t *Txn) clearFromParent() {
	if t.parent == nil {
		return
	}
	committed := make(map[string]bool, len(t.byKey))
	for key, e := range t.byKey {
		if e.action != actionClose {
			committed[key] = true
		}
	}
	if len(committed) == 0 {
		return
	}
	filtered := t.parent.queue[:0]
	for _, e := range t.parent.queue {
		key := recordKey(e.fileID, e.id)
		if committed[key] {
			delete(t.parent.byKey, key)
			continue
		}
		filtered = append(filtered, e)
	}
	t.parent.queue = filtered
}
