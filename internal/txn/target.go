package txn

import (
	"github.com/scarletdme/qmcore/internal/descriptor"
	"github.com/scarletdme/qmcore/internal/dh"
	"github.com/scarletdme/qmcore/internal/dirfile"
)

// Target is anything a transaction can replay a write or delete against: a
// DH file or a directory file. Write/Delete are called only at commit time,
// outside any lock the caller may already hold on behalf of the caller's
// own group/file locking discipline.
type Target interface {
	WriteRecord(id string, data *descriptor.Chunk, akKeys map[int]string) error
	DeleteRecord(id string, akKeys map[int]string) error
	Fsync() error
}

// DHTarget adapts a *dh.File to Target.
type DHTarget struct {
	File *dh.File
}

func (t DHTarget) WriteRecord(id string, data *descriptor.Chunk, akKeys map[int]string) error {
	return t.File.Write([]byte(id), data, akKeys)
}

func (t DHTarget) DeleteRecord(id string, akKeys map[int]string) error {
	return t.File.Delete([]byte(id), akKeys)
}

func (t DHTarget) Fsync() error { return t.File.Fsync() }

// DirTarget adapts a *dirfile.File to Target. Directory files have no
// group/overflow structure to fsync, so Fsync is a no-op.
type DirTarget struct {
	File *dirfile.File
}

func (t DirTarget) WriteRecord(id string, data *descriptor.Chunk, _ map[int]string) error {
	return t.File.Write(id, data)
}

func (t DirTarget) DeleteRecord(id string, _ map[int]string) error {
	return t.File.Delete(id)
}

func (t DirTarget) Fsync() error { return nil }
