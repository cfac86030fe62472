// Package dirfile implements the directory-file engine: a directory file is
// a host directory where each record is one file whose name is the id.
// Reads, writes, and deletes map directly onto host filesystem operations;
// safedir mode writes through a temp file and renames into place so a crash
// mid-write never leaves a partially-written record visible.
package dirfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/scarletdme/qmcore/internal/descriptor"
)

// ErrRecordNotFound is returned by Read/Delete when no file matches id.
var ErrRecordNotFound = errors.New("dirfile: record not found")

// ErrExclusive is returned by Open/ExclusiveOpen when the directory is
// already held exclusively by another handle in this process.
var ErrExclusive = errors.New("dirfile: file already open exclusively")

// File is an open directory file. One File per open handle; concurrent
// handles on the same path coordinate through a process-wide registry so an
// exclusive open is visible to other opens in this process, mirroring how
// DH's get_file_entry tracks ref_ct by (device, inode).
type File struct {
	path    string
	nocase  bool // DHF_NOCASE: id comparisons ignore case
	safedir bool // write via temp file + rename

	mu        sync.Mutex
	exclusive bool
}

var (
	registryMu sync.Mutex
	registry   = map[string]*sharedState{}
)

type sharedState struct {
	refCount  int
	exclusive bool
}

// Open opens path as a directory file, creating the directory if it does
// not already exist. nocase governs case-insensitive id matching (set on
// hosts whose filesystem is itself case-insensitive, so lookups stay
// consistent regardless of how a given id was cased on write). safedir
// enables temp-file-then-rename writes.
func Open(path string, nocase, safedir bool) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("dirfile: stat %s: %w", path, err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("dirfile: create %s: %w", path, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("dirfile: %s is not a directory", path)
	}

	key := filepath.Clean(path)
	registryMu.Lock()
	defer registryMu.Unlock()
	st, ok := registry[key]
	if ok && st.exclusive {
		return nil, ErrExclusive
	}
	if !ok {
		st = &sharedState{}
		registry[key] = st
	}
	st.refCount++

	return &File{path: key, nocase: nocase, safedir: safedir}, nil
}

// ExclusiveOpen opens path for exclusive access: no other File handle in
// this process may attach until Close. Used for clearfile and maintenance
// operations that must not race with concurrent record access.
func ExclusiveOpen(path string, nocase, safedir bool) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("dirfile: stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("dirfile: %s is not a directory", path)
	}

	key := filepath.Clean(path)
	registryMu.Lock()
	defer registryMu.Unlock()
	if st, ok := registry[key]; ok && st.refCount > 0 {
		return nil, ErrExclusive
	}
	registry[key] = &sharedState{refCount: 1, exclusive: true}

	return &File{path: key, nocase: nocase, safedir: safedir, exclusive: true}, nil
}

// Close releases this handle's reference. The directory itself is never
// removed.
func (f *File) Close() {
	registryMu.Lock()
	defer registryMu.Unlock()
	st, ok := registry[f.path]
	if !ok {
		return
	}
	st.refCount--
	if st.refCount <= 0 {
		delete(registry, f.path)
	}
}

// recordPath resolves id to the on-disk filename for this directory file.
// With nocase set, an existing entry differing only in case is located by
// scanning the directory; this keeps id comparisons consistent with a
// case-insensitive host filesystem regardless of how the id was cased when
// the record was written.
func (f *File) recordPath(id string) (string, error) {
	if strings.ContainsAny(id, "/\x00") {
		return "", fmt.Errorf("dirfile: invalid id %q", id)
	}
	direct := filepath.Join(f.path, id)
	if !f.nocase {
		return direct, nil
	}
	if _, err := os.Lstat(direct); err == nil {
		return direct, nil
	}
	entries, err := os.ReadDir(f.path)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if strings.EqualFold(e.Name(), id) {
			return filepath.Join(f.path, e.Name()), nil
		}
	}
	return direct, nil
}

// Read returns the record stored under id, plus the id as actually cased on
// disk (relevant only when nocase is set and the on-disk name differs from
// the requested case).
func (f *File) Read(id string) (data *descriptor.Chunk, actualID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, err := f.recordPath(id)
	if err != nil {
		return nil, "", err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", ErrRecordNotFound
		}
		return nil, "", fmt.Errorf("dirfile: read %s: %w", p, err)
	}
	return descriptor.NewFromBytes(b), filepath.Base(p), nil
}

// Write stores data under id, replacing any existing record. In safedir
// mode the new content is written to a sibling temp file and renamed over
// the target, so a crash mid-write cannot leave a truncated record.
func (f *File) Write(id string, data *descriptor.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, err := f.recordPath(id)
	if err != nil {
		return err
	}
	payload := descriptor.Bytes(data)

	if !f.safedir {
		return os.WriteFile(p, payload, 0o644)
	}

	tmp, err := os.CreateTemp(f.path, ".dirfile-tmp-*")
	if err != nil {
		return fmt.Errorf("dirfile: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("dirfile: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("dirfile: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("dirfile: close temp: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("dirfile: rename into place: %w", err)
	}
	return nil
}

// Delete removes the record stored under id.
func (f *File) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, err := f.recordPath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrRecordNotFound
		}
		return fmt.Errorf("dirfile: remove %s: %w", p, err)
	}
	return nil
}

// Clearfile removes every record in the directory without removing the
// directory itself.
func (f *File) Clearfile() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.path)
	if err != nil {
		return fmt.Errorf("dirfile: read %s: %w", f.path, err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".dirfile-tmp-") {
			continue
		}
		if err := os.RemoveAll(filepath.Join(f.path, e.Name())); err != nil {
			return fmt.Errorf("dirfile: remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Select lists every record id currently present, skipping safedir's
// leftover temp files from any interrupted write.
func (f *File) Select() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.path)
	if err != nil {
		return nil, fmt.Errorf("dirfile: read %s: %w", f.path, err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".dirfile-tmp-") {
			continue
		}
		ids = append(ids, e.Name())
	}
	return ids, nil
}

// RecordCount returns the number of records currently stored, used by
// callers that report file statistics uniformly across the DH and
// directory-file engines.
func (f *File) RecordCount() (int, error) {
	ids, err := f.Select()
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
