package main

import (
	"os"

	"github.com/marmos91/langmirror/cmd/langmirror/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
