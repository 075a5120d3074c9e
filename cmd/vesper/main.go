package main

import (
	"os"

	"github.com/vesper-voice/vesper/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
