// Package main is the Heimdall agent.
//
// It keeps a flag snapshot in sync with its source (file, Redis or PostgreSQL)
// and serves evaluations over HTTP, alongside the observability endpoints and
// a gRPC health service. The eval and validate subcommands work offline on a
// flag document.
package main

import (
	"os"
)

// main is the application entrypoint.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		// cobra already printed the error.
		os.Exit(1)
	}
}
