package dh

import (
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

// subfile wraps one physical file (~0, ~1, or ~2..~33) with an mmap-backed
// read view for group access and a
// plain *os.File handle for writes and growth, since mmap-go's mapping is
// fixed-size and must be remapped whenever the file grows past it.
type subfile struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	mapping  mmap.MMap
	readOnly bool
}

func openSubfile(path string, readOnly bool) (*subfile, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "dh: open subfile %s", path)
	}
	sf := &subfile{path: path, file: f, readOnly: readOnly}
	if err := sf.remap(); err != nil {
		f.Close()
		return nil, err
	}
	return sf, nil
}

func createSubfile(path string, initial []byte) (*subfile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "dh: create subfile %s", path)
	}
	if _, err := f.Write(initial); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "dh: init subfile %s", path)
	}
	sf := &subfile{path: path, file: f}
	if err := sf.remap(); err != nil {
		f.Close()
		return nil, err
	}
	return sf, nil
}

// remap (re)establishes the mmap view over the file's current size. Called
// on open and after any write that grows the file.
func (s *subfile) remap() error {
	if s.mapping != nil {
		_ = s.mapping.Unmap()
		s.mapping = nil
	}
	fi, err := s.file.Stat()
	if err != nil {
		return errors.Wrap(err, "dh: stat subfile")
	}
	if fi.Size() == 0 {
		return nil // nothing to map yet
	}
	mode := mmap.RDWR
	if s.readOnly {
		mode = mmap.RDONLY
	}
	m, err := mmap.Map(s.file, mode, 0)
	if err != nil {
		return errors.Wrap(err, "dh: mmap subfile")
	}
	s.mapping = m
	return nil
}

// readAt returns a copy of n bytes starting at byte offset off, growing no
// state. Reads are served from the mmap view.
func (s *subfile) readAt(off int64, n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mapping == nil || off+int64(n) > int64(len(s.mapping)) {
		return nil, wrapErr("dh_read", ErrPointerError)
	}
	out := make([]byte, n)
	copy(out, s.mapping[off:off+int64(n)])
	return out, nil
}

// writeAt writes data at byte offset off, extending the file (and
// remapping) if needed. The caller is responsible for serializing writers
// against concurrent readAt calls via the engine's group locks.
func (s *subfile) writeAt(off int64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		return wrapErr("dh_write", ErrWriteError)
	}
	fi, err := s.file.Stat()
	if err != nil {
		return errors.Wrap(err, "dh: stat subfile")
	}
	need := off + int64(len(data))
	if need > fi.Size() {
		if err := s.file.Truncate(need); err != nil {
			return errors.Wrap(err, "dh: grow subfile")
		}
	}
	if _, err := s.file.WriteAt(data, off); err != nil {
		return errors.Wrap(err, "dh: write subfile")
	}
	return s.remap()
}

func (s *subfile) size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.mapping))
}

// growByOneGroup extends the subfile by one group-sized block of zeros and
// returns the 1-origin group number of the newly reserved block. Unlike
// writeAt, the reservation is committed (truncate + remap) before any data
// is written, so a caller that must reserve several blocks before writing
// any of them sees each reservation reflected in the next size() call —
// consecutive reservations never collide on the same group number.
func (s *subfile) growByOneGroup(hdrBytes int64, groupBytes int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		return 0, wrapErr("dh_write", ErrWriteError)
	}
	fi, err := s.file.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "dh: stat subfile")
	}
	grp := (fi.Size()-hdrBytes)/int64(groupBytes) + 1
	need := hdrBytes + grp*int64(groupBytes)
	if err := s.file.Truncate(need); err != nil {
		return 0, errors.Wrap(err, "dh: grow subfile")
	}
	if err := s.remap(); err != nil {
		return 0, err
	}
	return grp, nil
}

func (s *subfile) fsync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mapping != nil {
		_ = s.mapping.Flush()
	}
	return s.file.Sync()
}

func (s *subfile) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mapping != nil {
		_ = s.mapping.Unmap()
		s.mapping = nil
	}
	return s.file.Close()
}
