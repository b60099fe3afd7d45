// Package main is the entry point for the taskpilot CLI.
package main

import (
	"os"

	"github.com/TaskPilot/TaskPilot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
