package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/smallwat3r/secretlink/internal/domain"
	"github.com/smallwat3r/secretlink/internal/envelope"
)

func (c *cli) revealCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "reveal <link>",
		Short: "Open a one-time link and print the secret",
		Long: `Open a one-time link and print the secret.

The secret is destroyed on the server once it has been revealed. For a
password protected link, three incorrect passwords destroy it as well.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cl := c.client()

			info, err := cl.Info(ctx)
			if err != nil {
				return fmt.Errorf("failed to reach server: %w", err)
			}
			r := envelope.NewRevealer(cl, info.GateMode, info.MaxAttempts)

			stop := startSpinner("Fetching secret...", c.interactive())
			s := r.Open(ctx, args[0])
			stop()

			for s.State == envelope.StatePasswordRequired {
				guess := password
				password = ""
				if guess == "" {
					if !c.interactive() {
						return fmt.Errorf("%w: use --password or run in a terminal", domain.ErrPasswordRequired)
					}
					if guess, err = c.readPassword("Password: "); err != nil {
						return err
					}
					if guess == "" {
						continue
					}
				}

				s = r.Submit(ctx, s, guess)
				if s.State != envelope.StatePasswordRequired {
					break
				}
				if errors.Is(s.Err, domain.ErrTransient) {
					return fmt.Errorf("failed to check password: %w", s.Err)
				}
				if errors.Is(s.Err, domain.ErrPasswordMismatch) {
					color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(),
						"✗ Incorrect password, %d attempt(s) remaining\n", s.Remaining())
				}
			}

			switch s.State {
			case envelope.StateRevealed:
				out := cmd.OutOrStdout()
				out.Write(s.Plaintext)
				fmt.Fprintln(out)
				return nil
			case envelope.StateLockedOut:
				return domain.ErrLockedOut
			default:
				return revealError(s.Err)
			}
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "password for a protected link (first attempt)")
	return cmd
}

func revealError(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.ErrNotFound
	case errors.Is(err, domain.ErrMalformedLocator):
		return domain.ErrMalformedLocator
	case errors.Is(err, domain.ErrDecryption):
		return fmt.Errorf("%w: the link may be incomplete or corrupted", domain.ErrDecryption)
	case err == nil:
		return errors.New("secret could not be revealed")
	default:
		return err
	}
}
