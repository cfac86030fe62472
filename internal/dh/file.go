package dh

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/scarletdme/qmcore/internal/sysseg"
)

// File is the per-process handle to an open DH file (DH_FILE in the
// original engine): the decoded header, primary/overflow subfile handles,
// any open AK subfiles and their in-memory indices, and the advisory
// exclusive-open lock.
type File struct {
	mu sync.Mutex

	path       string
	header     *Header
	primary    *subfile
	overflow   *subfile
	aks        map[int]*subfile
	akIdx      map[int]*akIndex
	fileLock   *flock.Flock // advisory OS lock backing FILE_ENTRY.ref_ct<0
	fileID     int
	seg        *sysseg.Segment
	openCount  int
	groupBytes int
	readOnly   bool
}

// registry tracks DH files already open to this process, mirroring the
// dh_file_head chain scan in dh_open.c (so repeated Open calls on the same
// path bump open_count instead of reopening the subfiles).
var (
	registryMu sync.Mutex
	registry   = map[string]*File{}
)

// Open resolves path to its absolute form, consults the per-process
// registry and the shared system segment's FILE_ENTRY table, then opens
// the primary/overflow subfiles and any AK subfiles named by the header's
// ak_map.
func Open(path string, seg *sysseg.Segment, uid int32) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, wrapErr("dh_open", ErrFileNotFound)
	}

	registryMu.Lock()
	if f, ok := registry[abs]; ok {
		f.mu.Lock()
		f.openCount++
		f.mu.Unlock()
		registryMu.Unlock()
		return f, nil
	}
	registryMu.Unlock()

	fi, err := os.Stat(abs)
	if err != nil {
		return nil, wrapErr("dh_open", ErrFileNotFound)
	}
	device, inode := statDeviceInode(fi)

	primaryPath := filepath.Join(abs, "~0")
	readOnly := false
	if unix_access(primaryPath) != nil {
		readOnly = true
	}
	primary, err := openSubfile(primaryPath, readOnly)
	if err != nil {
		return nil, wrapErr("dh_open", ErrFileNotFound)
	}

	hdrBuf, err := primary.readAt(0, fixedHeaderSize+2*(maxHeaderStringLen+2))
	if err != nil {
		primary.close()
		return nil, wrapErr("dh_open", ErrReadError)
	}
	header, err := DecodeHeader(hdrBuf)
	if err != nil {
		primary.close()
		return nil, err
	}
	// Trusted-access enforcement (DHF_TRUSTED) depends on the calling
	// program's HDR_IS_TRUSTED flag, a property of the interpreter's
	// program header rather than of this package; callers check
	// header.Flags&FlagTrusted themselves before calling Open.

	overflowPath := filepath.Join(abs, "~1")
	overflow, err := openSubfile(overflowPath, readOnly)
	if err != nil {
		primary.close()
		return nil, wrapErr("dh_open", ErrFileNotFound)
	}

	f := &File{
		path:       abs,
		header:     header,
		primary:    primary,
		overflow:   overflow,
		aks:        map[int]*subfile{},
		akIdx:      map[int]*akIndex{},
		seg:        seg,
		openCount:  1,
		groupBytes: header.GroupBytes(),
		readOnly:   readOnly,
	}

	if err := f.openAKs(abs); err != nil {
		f.closeSubfiles()
		return nil, err
	}

	params := sysseg.FileEntry{
		Flags: header.Flags,
	}
	fileID, ferr := seg.GetFileEntry(uid, abs, device, inode, params)
	if ferr != nil {
		f.closeSubfiles()
		return nil, wrapErr("dh_open", ErrExclusive)
	}
	f.fileID = fileID

	registryMu.Lock()
	registry[abs] = f
	registryMu.Unlock()

	return f, nil
}

// statDeviceInode extracts (device, inode) where the host supports it; on
// hosts without that notion both are zero and Open/GetFileEntry fall back
// to path comparison.
func statDeviceInode(fi os.FileInfo) (uint64, uint64) {
	return deviceInodeOf(fi)
}

// unix_access reports an error if path is not writable, used the way
// dh_open.c's access(pathname, 2) check picks read-only mode.
func unix_access(path string) error {
	return unix_accessImpl(path)
}

func (f *File) openAKs(abs string) error {
	for i := 0; i < MaxIndices; i++ {
		if f.header.AKMap&(1<<uint(i)) == 0 {
			continue
		}
		subPath := filepath.Join(abs, "~"+itoa(i+AKBaseSubfile))
		sf, err := openSubfile(subPath, f.readOnly)
		if err != nil {
			return wrapErr("dh_open", ErrAKNotFound)
		}
		hdrBuf, err := sf.readAt(0, int64(f.groupBytes))
		if err != nil {
			return wrapErr("dh_open", ErrAKHeaderCorrupt)
		}
		akHdr, err := DecodeAKHeader(hdrBuf)
		if err != nil {
			return err
		}
		if akHdr.DataCreationTimestamp != f.header.Created.Unix() {
			return wrapErr("dh_open", ErrAKCrossCheck)
		}
		f.aks[i] = sf
		f.akIdx[i] = newAKIndex(akHdr)
		if err := f.akIdx[i].loadFromSubfile(sf, f.groupBytes); err != nil {
			return err
		}
	}
	return nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// Close decrements open_count, actually releasing subfiles and the
// FILE_ENTRY slot only when it reaches zero.
func (f *File) Close(uid int32) error {
	f.mu.Lock()
	f.openCount--
	remaining := f.openCount
	f.mu.Unlock()
	if remaining > 0 {
		return nil
	}

	registryMu.Lock()
	delete(registry, f.path)
	registryMu.Unlock()

	f.seg.CloseFileEntry(uid, f.fileID)
	return f.closeSubfiles()
}

func (f *File) closeSubfiles() error {
	var firstErr error
	if f.primary != nil {
		if err := f.primary.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if f.overflow != nil {
		if err := f.overflow.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, sf := range f.aks {
		_ = sf.close()
	}
	if f.fileLock != nil {
		_ = f.fileLock.Unlock()
	}
	return firstErr
}

// Fsync flushes the primary and overflow subfiles, mirroring
// dh_fsync(dh_file, PRIMARY_SUBFILE)/dh_fsync(..., OVERFLOW_SUBFILE) as
// invoked by the transaction manager's commit-time fsync sweep.
func (f *File) Fsync() error {
	if err := f.primary.fsync(); err != nil {
		return err
	}
	return f.overflow.fsync()
}

// FileID returns the shared system segment's FILE_ENTRY index for this
// file, used by lockmgr/txn/reccache to key per-file state.
func (f *File) FileID() int { return f.fileID }

// HeaderSnapshot returns a copy of the current in-memory header (callers must not
// mutate Params directly; use the engine's write/split paths).
func (f *File) HeaderSnapshot() Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.header
}

// Create initializes a brand-new empty DH file at path: the directory plus
// a primary subfile (header + one empty group) and an empty overflow
// subfile. Not present in the retrieved dh_open.c excerpt (file creation
// lives elsewhere in the real engine's file-system glue) so it is built
// directly from the on-disk layout description to give this package a
// usable end-to-end entry point.
func Create(path string, groupSize int, p Params) (*File, error) {
	if groupSize < 1 || groupSize > MaxGroupSize {
		groupSize = 1
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, errors.Wrap(err, "dh: create directory")
	}

	header := &Header{
		Magic:       MagicPrimary,
		FileVersion: CurrentVersion,
		GroupSize:   uint16(groupSize),
		Params:      p,
		Created:     time.Now(),
	}
	groupBytes := header.GroupBytes()
	hdrBytes := header.HeaderBytesOnDisk()

	emptyGroup := newBlock(groupBytes)
	primaryInit := append(EncodeHeader(header), emptyGroup.encode()...)
	if int64(len(primaryInit)) < hdrBytes+int64(groupBytes) {
		pad := make([]byte, hdrBytes+int64(groupBytes)-int64(len(primaryInit)))
		primaryInit = append(primaryInit, pad...)
	}

	primary, err := createSubfile(filepath.Join(path, "~0"), primaryInit)
	if err != nil {
		return nil, err
	}
	overflowHeader := make([]byte, hdrBytes)
	overflow, err := createSubfile(filepath.Join(path, "~1"), overflowHeader)
	if err != nil {
		primary.close()
		return nil, err
	}

	f := &File{
		path:       path,
		header:     header,
		primary:    primary,
		overflow:   overflow,
		aks:        map[int]*subfile{},
		akIdx:      map[int]*akIndex{},
		openCount:  1,
		groupBytes: groupBytes,
	}
	return f, nil
}

// ExclusiveOpen takes the whole-file lock backing FILE_ENTRY.ref_ct<0, used
// for clearfile and exclusive open, and blocking all group operations; it uses
// a real OS advisory lock (flock(2) via github.com/gofrs/flock) alongside
// the in-process sysseg bookkeeping so a second OS process attempting the
// same file is also held off.
func (f *File) ExclusiveOpen(uid int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fileLock == nil {
		f.fileLock = flock.New(filepath.Join(f.path, "~0.lock"))
	}
	locked, err := f.fileLock.TryLock()
	if err != nil || !locked {
		return wrapErr("dh_open", ErrExclusive)
	}
	if err := f.seg.OpenExclusive(uid, f.fileID); err != nil {
		_ = f.fileLock.Unlock()
		return wrapErr("dh_open", ErrExclusive)
	}
	return nil
}

// Clearfile empties the file: every primary group the linear hash
// currently addresses is rewritten as an empty block, mod_value is reset so
// the min_modulus groups remain, and the record count and load are zeroed.
// Overflow and big-record blocks drop out of every chain and the free chain
// is reset; the overflow subfile keeps its size and those blocks are not
// reused. Requires the caller already hold the exclusive file lock.
func (f *File) Clearfile() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	empty := newBlock(f.groupBytes)
	for g := int64(1); g <= f.header.Params.CurrentModulus(); g++ {
		if err := f.writeGroupRaw(PrimarySubfile, g, empty.encode()); err != nil {
			return err
		}
	}
	f.header.RecordCount = 0
	f.header.Params.FreeChain = 0
	f.header.Params.LoadBytes = 0
	f.header.Params.Modulus = f.header.Params.MinModulus
	f.header.Params.ModValue = 0
	return nil
}

// CreateAK adds a new AK index i (the bit position in ak_map; its subfile
// is ~{i+AKBaseSubfile}), writing the AK header block and registering the
// in-memory B-tree index. The new bit is folded into ak_map and DHF_AK is
// set.
func (f *File) CreateAK(i int, name string, fieldNo int32, itype string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= MaxIndices {
		return wrapErr("dh_open", ErrAKNotFound)
	}
	akHdr := &AKHeader{
		Magic:                 MagicIndex,
		DataCreationTimestamp: f.header.Created.Unix(),
		Name:                  name,
		FieldNo:               fieldNo,
		IType:                 itype,
	}
	subPath := filepath.Join(f.path, "~"+itoa(i+AKBaseSubfile))
	sf, err := createSubfile(subPath, EncodeAKHeader(akHdr, f.groupBytes))
	if err != nil {
		return err
	}
	f.aks[i] = sf
	f.akIdx[i] = newAKIndex(akHdr)
	f.header.AKMap |= 1 << uint(i)
	f.header.Flags |= FlagAK
	return nil
}
