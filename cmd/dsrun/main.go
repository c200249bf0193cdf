// Command dsrun compiles and runs dataspace rule programs.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/dataspace/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
