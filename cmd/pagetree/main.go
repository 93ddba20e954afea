// Command pagetree inspects, validates and edits stored page trees.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/pagetree/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
