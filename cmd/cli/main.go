package main

import (
	"os"

	"github.com/fatih/color"

	"github.com/smallwat3r/secretlink/internal/client"
)

func main() {
	if err := newRootCmd(defaultDeps()).Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "✗ "+err.Error())
		if client.IsRateLimited(err) {
			color.New(color.FgYellow).Fprintln(os.Stderr, "Too many requests, wait a minute and try again.")
		}
		os.Exit(1)
	}
}
