// Command khatm runs the shared recitation progress engine.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/khatm/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
