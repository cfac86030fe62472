package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scarletdme/qmcore/internal/descriptor"
)

func newReadCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "read <id>",
		Short: "Read one record and print its value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, _, err := openDir(e)
			if err != nil {
				return err
			}
			defer f.Close()

			data, _, err := f.Read(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(descriptor.Bytes(data)))
			return nil
		},
	}
}
