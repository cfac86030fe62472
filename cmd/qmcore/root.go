package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scarletdme/qmcore/internal/qmlog"
)

// env bundles the process-wide state every subcommand needs: a logger and,
// once a command parses --dir, the directory file it operates on.
type env struct {
	log   *zap.Logger
	dir   string
	nocase bool
	safedir bool
}

func newRootCmd() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:           "qmcore",
		Short:         "Multi-value record store: directory-file open/read/write/delete/sort",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			dev, _ := cmd.Flags().GetBool("dev-log")
			log, err := qmlog.New(dev)
			if err != nil {
				return err
			}
			e.log = log
			return nil
		},
	}
	root.PersistentFlags().Bool("dev-log", false, "use human-readable development logging instead of JSON")
	root.PersistentFlags().StringVar(&e.dir, "dir", "", "directory file path")
	root.PersistentFlags().BoolVar(&e.nocase, "nocase", false, "case-insensitive record ids")
	root.PersistentFlags().BoolVar(&e.safedir, "safedir", false, "write-then-rename durability for record writes")

	root.AddCommand(
		newWriteCmd(e),
		newReadCmd(e),
		newDeleteCmd(e),
		newSelectCmd(e),
		newSortCmd(e),
		newConfigCmd(e),
	)
	return root
}
