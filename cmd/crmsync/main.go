// Package main provides the entry point for the crmsync CLI tool.
package main

import "github.com/ligrlabs/crmsync/cmd/crmsync/cmd"

// Version information populated by goreleaser.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.Execute(version, commit, date)
}
