package main

import (
	"github.com/spf13/cobra"

	"github.com/scarletdme/qmcore/internal/qmlog"
	"github.com/scarletdme/qmcore/internal/txn"
)

func newDeleteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a record through a single-statement transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, mgr, err := openDir(e)
			if err != nil {
				return err
			}
			defer f.Close()

			id := args[0]
			tx := mgr.Begin(1)
			tx.Delete(0, txn.DirTarget{File: f}, id, nil)
			if err := tx.Commit(); err != nil {
				return err
			}
			e.log.Info("deleted record", qmlog.RecordID(id))
			return nil
		},
	}
}
