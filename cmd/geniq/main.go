// geniq CLI: generate synthetic datasets and check existing ones without
// running the HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/vaisu-bhut/GeniQ/internal/cli"
)

// Version is injected during build via ldflags.
var Version = "dev"

func main() {
	cli.Version = Version
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}
