package main

import (
	"os"

	"github.com/meshpipe/meshpipe/cmd/meshpipe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
