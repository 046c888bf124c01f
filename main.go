package main

import (
	"os"

	"github.com/a2aproto/taskengine/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
