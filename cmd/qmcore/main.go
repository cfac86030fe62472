// Command qmcore is a thin CLI over the engine's record, transaction, and
// sort primitives: enough to open a directory file, write/read/delete
// records through a transaction, and run an external sort over its ids,
// all from the shell rather than from embedding the packages directly.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
