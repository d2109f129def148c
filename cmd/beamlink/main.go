package main

import (
	"os"

	"github.com/beamlink/beamlink/cmd/beamlink/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
