package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSelectCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "select",
		Short: "List every record id in the directory file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, _, err := openDir(e)
			if err != nil {
				return err
			}
			defer f.Close()

			ids, err := f.Select()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, id := range ids {
				fmt.Fprintln(out, id)
			}
			return nil
		},
	}
}
