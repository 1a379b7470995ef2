package main

import (
	"fmt"
	"os"

	"github.com/podaac/generate-error-handler/cmd/error-handler/commands"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	// Exit non-zero on any fatal condition so the host records the
	// invocation as failed.
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
