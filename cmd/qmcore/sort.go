package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scarletdme/qmcore/internal/descriptor"
	qsort "github.com/scarletdme/qmcore/internal/sort"
)

func newSortCmd(e *env) *cobra.Command {
	var numeric, descending bool
	var memLimitKB int64

	cmd := &cobra.Command{
		Use:   "sort",
		Short: "Select every record, sort by id, and print id/value pairs in order",
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

			workDir := os.TempDir()
			s := qsort.New(qsort.Config{
				Keys:       []qsort.KeyFlags{{RightJustified: numeric, Descending: descending}},
				HasData:    true,
				MemLimit:   memLimitKB * 1024,
				WorkDir:    workDir,
				PID:        os.Getpid(),
			})
			defer s.Cleanup()

			for _, id := range ids {
				data, _, err := f.Read(id)
				if err != nil {
					return err
				}
				if _, err := s.Add([]string{id}, descriptor.Bytes(data)); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			for {
				data, keys, ok, err := s.Next()
				if err != nil {
					return err
				}
				if !ok {
					break
				}
				fmt.Fprintf(out, "%s\t%s\n", keys[0], string(data))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&numeric, "numeric", false, "compare ids as right-justified numbers")
	cmd.Flags().BoolVar(&descending, "desc", false, "sort in descending order")
	cmd.Flags().Int64Var(&memLimitKB, "mem-limit-kb", 0, "spill to disk once this many KB of keys/data accumulate (0 = never spill)")
	return cmd
}
