package main

import (
	"github.com/3leaps/spoolwatch/internal/cmd"
	"github.com/3leaps/spoolwatch/internal/server/handlers"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	handlers.SetVersionInfo(version, commit, buildDate)
	cmd.Execute()
}
