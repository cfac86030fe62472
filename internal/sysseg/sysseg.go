// Package sysseg models the process-shared system segment: the
// FILE_ENTRY and LOCK_ENTRY tables, the per-user open-file map, global stats
// and the next transaction id allocator. The original engine attaches every
// process to one POSIX shared-memory region guarded by named spinlocks; here
// a single in-process Segment, guarded by sync.Mutex, stands in for that
// region (see DESIGN.md's internal/sysseg section — many goroutines sharing one
// Go process is the idiomatic re-expression of "many OS processes attached
// to one segment").
package sysseg

import (
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/pkg/errors"
)

// Limits mirrors the config-derived capacity fields of the segment header
type Limits struct {
	NumFiles  int
	NumLocks  int
	MaxUsers  int
	MaxIDLen  int
	CmdStack  int
	Deadlock  bool
	DebugBits uint32
}

// FileEntry is one slot of the FILE_ENTRY table. RefCount == 0
// means the slot is free; RefCount < 0 means exclusively open; RefCount > 0
// counts shared opens.
type FileEntry struct {
	RefCount    int32
	Device      uint64
	Inode       uint64
	Path        string
	UpdCount    uint64
	AKUpdCount  uint64
	Flags       uint32
	Stats       FileStats
	FileLockUID int32 // holder of the exclusive file lock, 0 if none
}

// FileStats tracks per-file I/O counters.
type FileStats struct {
	Reads, Writes, Deletes uint64
}

// LockKind discriminates the three lock kinds a LOCK_ENTRY slot can hold
type LockKind int

const (
	LockGroupRead LockKind = iota
	LockGroupUpdate
	LockFile
)

// LockEntry is one slot of the LOCK_ENTRY table.
type LockEntry struct {
	InUse   bool
	FileID  int
	GroupNo int64
	Kind    LockKind
	HolderUID int32
	TxnID   uint32
	RefCount int32 // group-read locks are reference-counted
}

// Segment is the in-process stand-in for the shared memory region.
type Segment struct {
	mu sync.Mutex

	Limits Limits

	files []FileEntry // index 0 unused; 1-origin file_id
	used  []bool

	locks []LockEntry

	// userFiles[uid] is the bitmap of file_ids that user uid holds open,
	// used for crash cleanup.
	userFiles map[int32]*roaring.Bitmap

	nextTxnID uint32

	Stats GlobalStats
}

// GlobalStats accumulates segment-wide counters.
type GlobalStats struct {
	OpensTotal  uint64
	ClosesTotal uint64
	ReadsTotal  uint64
	WritesTotal uint64
}

// New allocates a segment sized per lim. NumFiles/NumLocks are 1-origin
// tables; index 0 of each slice is reserved and never allocated.
func New(lim Limits) *Segment {
	return &Segment{
		Limits:    lim,
		files:     make([]FileEntry, lim.NumFiles+1),
		used:      make([]bool, lim.NumFiles+1),
		locks:     make([]LockEntry, lim.NumLocks),
		userFiles: make(map[int32]*roaring.Bitmap),
		nextTxnID: 0,
	}
}

var (
	// ErrExclusive reports that the file is already open exclusively.
	ErrExclusive = errors.New("file already open exclusively")
	// ErrNoFreeSlot reports the file-entry table is full.
	ErrNoFreeSlot = errors.New("no free file-entry slot")
)

// GetFileEntry implements get_file_entry: scans used entries by
// (device, inode), falling back to path comparison when both are zero
// (directory files on hosts without stable inode numbers). On a match with
// RefCount < 0 the file is held exclusively and acquisition fails. On no
// match the first free slot of the NumFiles-slot table is allocated and
// seeded from params.
func (s *Segment) GetFileEntry(uid int32, path string, device, inode uint64, params FileEntry) (fileID int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 1; i < len(s.files); i++ {
		if !s.used[i] {
			continue
		}
		fe := &s.files[i]
		matched := false
		if device != 0 || inode != 0 {
			matched = fe.Device == device && fe.Inode == inode
		} else {
			matched = fe.Path == path
		}
		if !matched {
			continue
		}
		if fe.RefCount < 0 {
			return 0, ErrExclusive
		}
		fe.RefCount++
		s.markUserFile(uid, i)
		return i, nil
	}

	slot := 0
	for i := 1; i < len(s.files); i++ {
		if !s.used[i] {
			slot = i
			break
		}
	}
	if slot == 0 {
		return 0, ErrNoFreeSlot
	}

	fe := params
	fe.Path = path
	fe.Device = device
	fe.Inode = inode
	fe.RefCount = 1
	fe.UpdCount = 1
	fe.AKUpdCount = 1
	s.files[slot] = fe
	s.used[slot] = true
	s.markUserFile(uid, slot)
	s.Stats.OpensTotal++
	return slot, nil
}

// OpenExclusive marks fileID's slot as held exclusively (RefCount<0), used
// by clearfile and exclusive-open requests. Fails unless the caller's own
// open is the only one (RefCount == 1).
func (s *Segment) OpenExclusive(uid int32, fileID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fileID <= 0 || fileID >= len(s.files) || !s.used[fileID] {
		return fmt.Errorf("sysseg: invalid file id %d", fileID)
	}
	fe := &s.files[fileID]
	if fe.RefCount != 1 {
		return ErrExclusive
	}
	fe.RefCount = -1
	fe.FileLockUID = uid
	return nil
}

// CloseFileEntry decrements the slot's ref count, freeing it at zero, and
// clears the bit in the user's file map.
func (s *Segment) CloseFileEntry(uid int32, fileID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fileID <= 0 || fileID >= len(s.files) || !s.used[fileID] {
		return
	}
	fe := &s.files[fileID]
	if fe.RefCount < 0 {
		fe.RefCount = 0
	} else if fe.RefCount > 0 {
		fe.RefCount--
	}
	if fe.RefCount == 0 {
		s.used[fileID] = false
		s.files[fileID] = FileEntry{}
	}
	if bm, ok := s.userFiles[uid]; ok {
		bm.Remove(uint32(fileID))
	}
	s.Stats.ClosesTotal++
}

func (s *Segment) markUserFile(uid int32, fileID int) {
	bm, ok := s.userFiles[uid]
	if !ok {
		bm = roaring.New()
		s.userFiles[uid] = bm
	}
	bm.Add(uint32(fileID))
}

// UserFiles returns the sorted list of file_ids user uid holds open, used
// by crash-recovery cleanup.
func (s *Segment) UserFiles(uid int32) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	bm, ok := s.userFiles[uid]
	if !ok {
		return nil
	}
	out := make([]int, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, int(it.Next()))
	}
	return out
}

// BumpUpdCount bumps upd_ct on every successful mutating operation against
// the file, invalidating any record-cache entries keyed by the old value.
func (s *Segment) BumpUpdCount(fileID int) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fileID <= 0 || fileID >= len(s.files) || !s.used[fileID] {
		return 0
	}
	s.files[fileID].UpdCount++
	return s.files[fileID].UpdCount
}

// FileEntrySnapshot returns a copy of the file's entry for callers that
// need to read stats/params without holding the segment lock.
func (s *Segment) FileEntrySnapshot(fileID int) (FileEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fileID <= 0 || fileID >= len(s.files) || !s.used[fileID] {
		return FileEntry{}, false
	}
	return s.files[fileID], true
}

// NextTxnID allocates the next global transaction id, skipping zero on wrap
func (s *Segment) NextTxnID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTxnID++
	if s.nextTxnID == 0 {
		s.nextTxnID = 1
	}
	return s.nextTxnID
}

// WithLocks runs fn under the segment mutex with direct access to the
// LOCK_ENTRY table, for lockmgr's higher-level acquire/release/deadlock
// logic.
func (s *Segment) WithLocks(fn func(locks []LockEntry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.locks)
}

// FindFreeLockSlot returns the index of an unused LOCK_ENTRY slot, or -1 if
// the table is full. Must be called from inside WithLocks.
func FindFreeLockSlot(locks []LockEntry) int {
	for i := range locks {
		if !locks[i].InUse {
			return i
		}
	}
	return -1
}
