package main

import (
	"fmt"
	"os"
	"slices"

	app "github.com/valter-silva-au/knc/internal"
	"github.com/valter-silva-au/knc/internal/cli"
)

// Set by goreleaser ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, date)
	basePath := app.ResolveBasePath()

	// --ephemeral has to be known before cobra parses flags, since it picks
	// the storage backend the commands run against.
	a, err := app.NewApp(basePath, app.Options{Ephemeral: slices.Contains(os.Args[1:], "--ephemeral")})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing knc: %v\n", err)
		os.Exit(1)
	}

	err = cli.Execute()
	_ = a.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
