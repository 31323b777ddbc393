package main

import (
	"os"

	"github.com/mrsingh-rishi/voice-agent/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
