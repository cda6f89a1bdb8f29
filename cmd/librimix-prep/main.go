package main

import (
	"fmt"
	"os"

	"github.com/asteroid-team/librimix-prep/internal/cli"
)

func main() {
	// Step failures return an ExitCoder, which the framework turns into
	// the failing child's exit code. Anything else (e.g. an unrecognized
	// option) lands here.
	if err := cli.New().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "librimix-prep:", err)
		os.Exit(1)
	}
}
