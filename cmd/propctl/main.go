package main

import (
	"os"

	"propMonitor/cmd/propctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
