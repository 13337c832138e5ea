package main

import (
	"os"
	"time"

	"github.com/briandowns/spinner"
)

// startSpinner shows progress on stderr when attached to a terminal. The
// returned func stops it.
func startSpinner(message string, interactive bool) func() {
	if !interactive {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + message
	_ = s.Color("cyan")
	s.Start()
	return s.Stop
}
