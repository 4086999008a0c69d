package main

import (
	"os"

	"github.com/pysugar/oura-twin-sync/cmd/twinsync/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
