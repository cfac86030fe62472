package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scarletdme/qmcore/internal/descriptor"
	"github.com/scarletdme/qmcore/internal/qmlog"
	"github.com/scarletdme/qmcore/internal/txn"
)

func newWriteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "write <id> <value>",
		Short: "Write a record through a single-statement transaction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, mgr, err := openDir(e)
			if err != nil {
				return err
			}
			defer f.Close()

			id, value := args[0], args[1]
			tx := mgr.Begin(1)
			tx.Write(0, txn.DirTarget{File: f}, id, descriptor.NewFromBytes([]byte(value)), nil)
			if err := tx.Commit(); err != nil {
				return err
			}
			e.log.Info("wrote record", qmlog.RecordID(id), zap.Int("bytes", len(value)))
			return nil
		},
	}
}
