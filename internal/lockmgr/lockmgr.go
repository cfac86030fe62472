// Package lockmgr implements the lock manager: group read
// locks, group update locks and file locks drawn from a single pool of
// LOCK_ENTRY slots in the shared system segment, tagged by owning
// transaction id, with an optional deadlock-detection toggle.
package lockmgr

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/scarletdme/qmcore/internal/sysseg"
)

// Manager acquires and releases locks against a segment's LOCK_ENTRY table.
type Manager struct {
	seg      *sysseg.Segment
	deadlock bool

	waitMu  sync.Mutex
	waiting map[uint32]int // txnID -> fileID it is currently blocked waiting to acquire
}

func New(seg *sysseg.Segment, deadlockDetect bool) *Manager {
	return &Manager{seg: seg, deadlock: deadlockDetect, waiting: make(map[uint32]int)}
}

// ErrWouldDeadlock is returned instead of blocking when DEADLOCK detection
// is enabled and granting the wait would complete a cycle.
var ErrWouldDeadlock = errors.New("lockmgr: acquire would deadlock")

// Handle identifies an acquired lock so it can be released individually
// (locks are also bulk-released by transaction id via UnlockTxn).
type Handle struct {
	slot int
}

// AcquireGroupRead takes a reference-counted shared lock on (fileID,
// groupNo). Concurrent group-read locks coexist; it blocks (with bounded
// exponential backoff) while an update
// or file lock is held on the same group.
func (m *Manager) AcquireGroupRead(ctx context.Context, fileID int, groupNo int64, uid int32, txnID uint32) (Handle, error) {
	return m.acquire(ctx, fileID, groupNo, uid, txnID, sysseg.LockGroupRead)
}

// AcquireGroupUpdate takes the exclusive update lock on a group, blocking
// while any read, update, or file lock is held on it.
func (m *Manager) AcquireGroupUpdate(ctx context.Context, fileID int, groupNo int64, uid int32, txnID uint32) (Handle, error) {
	return m.acquire(ctx, fileID, groupNo, uid, txnID, sysseg.LockGroupUpdate)
}

// AcquireFileLock takes the exclusive whole-file lock (clearfile, exclusive
// open), blocking while any group or file lock is held on fileID.
func (m *Manager) AcquireFileLock(ctx context.Context, fileID int, uid int32, txnID uint32) (Handle, error) {
	return m.acquire(ctx, fileID, -1, uid, txnID, sysseg.LockFile)
}

func (m *Manager) acquire(ctx context.Context, fileID int, groupNo int64, uid int32, txnID uint32, kind sysseg.LockKind) (Handle, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Microsecond
	bo.MaxInterval = 20 * time.Millisecond
	bo.MaxElapsedTime = 0 // caller's ctx governs the overall deadline

	for {
		slot, ok := m.tryAcquire(fileID, groupNo, uid, txnID, kind)
		if ok {
			m.clearWaiting(txnID)
			return Handle{slot: slot}, nil
		}
		m.setWaiting(txnID, fileID)
		if m.deadlock && m.wouldDeadlock(fileID, groupNo, txnID, kind) {
			m.clearWaiting(txnID)
			return Handle{}, ErrWouldDeadlock
		}
		select {
		case <-ctx.Done():
			m.clearWaiting(txnID)
			return Handle{}, ctx.Err()
		case <-time.After(bo.NextBackOff()):
		}
	}
}

func (m *Manager) setWaiting(txnID uint32, fileID int) {
	if txnID == 0 {
		return
	}
	m.waitMu.Lock()
	m.waiting[txnID] = fileID
	m.waitMu.Unlock()
}

func (m *Manager) clearWaiting(txnID uint32) {
	if txnID == 0 {
		return
	}
	m.waitMu.Lock()
	delete(m.waiting, txnID)
	m.waitMu.Unlock()
}

// tryAcquire attempts one non-blocking acquisition, returning the slot
// index on success.
func (m *Manager) tryAcquire(fileID int, groupNo int64, uid int32, txnID uint32, kind sysseg.LockKind) (int, bool) {
	var slot int = -1
	m.seg.WithLocks(func(locks []sysseg.LockEntry) {
		conflict := false
		existingRead := -1
		for i := range locks {
			l := &locks[i]
			if !l.InUse || l.FileID != fileID {
				continue
			}
			sameGroup := kind == sysseg.LockFile || l.Kind == sysseg.LockFile || l.GroupNo == groupNo
			if !sameGroup {
				continue
			}
			switch kind {
			case sysseg.LockGroupRead:
				if l.Kind == sysseg.LockGroupUpdate || l.Kind == sysseg.LockFile {
					conflict = true
				} else if l.Kind == sysseg.LockGroupRead {
					existingRead = i
				}
			case sysseg.LockGroupUpdate, sysseg.LockFile:
				conflict = true
			}
		}
		if conflict {
			return
		}
		if kind == sysseg.LockGroupRead && existingRead >= 0 {
			locks[existingRead].RefCount++
			slot = existingRead
			return
		}
		free := sysseg.FindFreeLockSlot(locks)
		if free < 0 {
			return
		}
		locks[free] = sysseg.LockEntry{
			InUse:     true,
			FileID:    fileID,
			GroupNo:   groupNo,
			Kind:      kind,
			HolderUID: uid,
			TxnID:     txnID,
			RefCount:  1,
		}
		slot = free
	})
	return slot, slot >= 0
}

// wouldDeadlock is a single-hop cycle check: true if some other transaction
// holding a conflicting lock on (fileID, groupNo) is itself blocked waiting
// to acquire a resource this transaction already holds. A full wait-for
// graph walk is not attempted; this catches the direct two-party cycle
// (A holds what B wants, B holds what A wants) but not longer chains.
func (m *Manager) wouldDeadlock(fileID int, groupNo int64, txnID uint32, kind sysseg.LockKind) bool {
	if txnID == 0 {
		return false
	}

	m.waitMu.Lock()
	waitSnapshot := make(map[uint32]int, len(m.waiting))
	for k, v := range m.waiting {
		waitSnapshot[k] = v
	}
	m.waitMu.Unlock()

	result := false
	m.seg.WithLocks(func(locks []sysseg.LockEntry) {
		holdsFile := func(holder uint32, wantedFileID int) bool {
			for i := range locks {
				if locks[i].InUse && locks[i].TxnID == holder && locks[i].FileID == wantedFileID {
					return true
				}
			}
			return false
		}
		for i := range locks {
			l := &locks[i]
			if !l.InUse || l.FileID != fileID || l.TxnID == 0 || l.TxnID == txnID {
				continue
			}
			conflicts := l.Kind == sysseg.LockFile || l.GroupNo == groupNo
			if kind == sysseg.LockGroupRead && l.Kind == sysseg.LockGroupRead {
				conflicts = false
			}
			if !conflicts {
				continue
			}
			if waitingFor, ok := waitSnapshot[l.TxnID]; ok && holdsFile(txnID, waitingFor) {
				result = true
				return
			}
		}
	})
	return result
}

// Release drops h, decrementing a group-read lock's refcount and freeing
// the slot only when it reaches zero.
func (m *Manager) Release(h Handle) {
	if h.slot < 0 {
		return
	}
	m.seg.WithLocks(func(locks []sysseg.LockEntry) {
		l := &locks[h.slot]
		if !l.InUse {
			return
		}
		if l.Kind == sysseg.LockGroupRead {
			l.RefCount--
			if l.RefCount > 0 {
				return
			}
		}
		*l = sysseg.LockEntry{}
	})
}

// UnlockTxn releases every lock tagged with txnID.
func (m *Manager) UnlockTxn(txnID uint32) {
	if txnID == 0 {
		return
	}
	m.seg.WithLocks(func(locks []sysseg.LockEntry) {
		for i := range locks {
			if locks[i].InUse && locks[i].TxnID == txnID {
				locks[i] = sysseg.LockEntry{}
			}
		}
	})
}
