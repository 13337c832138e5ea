package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/smallwat3r/secretlink/internal/client"
	"github.com/smallwat3r/secretlink/internal/utility"
)

const defaultBaseURL = "https://secret.smallwat3r.com"

// deps are the pieces of the CLI that touch the terminal.
type deps struct {
	readPassword func(prompt string) (string, error)
	interactive  func() bool
	retryWait    time.Duration
}

func defaultDeps() deps {
	return deps{
		readPassword: readPassword,
		interactive:  isTerminal,
		retryWait:    time.Second,
	}
}

type cli struct {
	deps
	server  string
	timeout time.Duration
	verbose bool
}

// client retries generously so serverless instances have time to wake up.
func (c *cli) client() *client.Client {
	opts := []client.Option{
		client.WithRetry(5, c.retryWait),
		client.WithTimeout(c.timeout),
	}
	if c.verbose {
		l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		opts = append(opts, client.WithLogger(l))
	}
	return client.New(c.server, opts...)
}

func newRootCmd(d deps) *cobra.Command {
	c := &cli{deps: d}

	root := &cobra.Command{
		Use:   "secretlink",
		Short: "Share one-time secrets through self-destructing links",
		Long: `Share one-time secrets through self-destructing links.

Secrets are encrypted locally. The decryption key travels only in the
link fragment and never reaches the server. A link can be opened once.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.server, "server",
		utility.Getenv("SECRET_API_URL", defaultBaseURL), "secret API base URL (env SECRET_API_URL)")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 15*time.Second, "per-request timeout")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log HTTP retries to stderr")

	root.AddCommand(c.createCmd(), c.revealCmd(), c.deleteCmd())
	return root
}
