package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scarletdme/qmcore/internal/config"
)

func newConfigCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "config <qm.ini path>",
		Short: "Load and validate a qm.ini configuration file, printing the resolved values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "QMSYS       %s\n", cfg.SysDir)
			fmt.Fprintf(out, "NUMFILES    %d\n", cfg.NumFiles)
			fmt.Fprintf(out, "NUMLOCKS    %d\n", cfg.NumLocks)
			fmt.Fprintf(out, "MAXIDLEN    %d\n", cfg.MaxIDLen)
			fmt.Fprintf(out, "SORTMEM     %s\n", cfg.SortMem.String())
			fmt.Fprintf(out, "SORTWORK    %s\n", cfg.SortWorkDir)
			fmt.Fprintf(out, "TEMPDIR     %s\n", cfg.TempDir)
			fmt.Fprintf(out, "SAFEDIR     %t\n", cfg.SafeDir)
			return nil
		},
	}
}
