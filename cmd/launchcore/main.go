package main

import (
	"fmt"
	"os"

	"github.com/outpost-dev/launchcore/cmd/launchcore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cmd.ExitCodeFor(err))
	}
}
