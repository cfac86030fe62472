package main

import (
	"fmt"

	"github.com/scarletdme/qmcore/internal/dirfile"
	"github.com/scarletdme/qmcore/internal/lockmgr"
	"github.com/scarletdme/qmcore/internal/sysseg"
	"github.com/scarletdme/qmcore/internal/txn"
)

func requireDir(e *env) error {
	if e.dir == "" {
		return fmt.Errorf("--dir is required")
	}
	return nil
}

// openDir opens e.dir as a directory file and wires a standalone
// transaction manager over it, scoped to the lifetime of one CLI command.
func openDir(e *env) (*dirfile.File, *txn.Manager, error) {
	if err := requireDir(e); err != nil {
		return nil, nil, err
	}
	f, err := dirfile.Open(e.dir, e.nocase, e.safedir)
	if err != nil {
		return nil, nil, err
	}
	seg := sysseg.New(sysseg.Limits{NumFiles: 8, NumLocks: 64, MaxUsers: 1})
	locks := lockmgr.New(seg, false)
	mgr := txn.New(seg, locks)
	return f, mgr, nil
}
