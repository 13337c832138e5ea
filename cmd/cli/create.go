package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/smallwat3r/secretlink/internal/domain"
	"github.com/smallwat3r/secretlink/internal/envelope"
)

func (c *cli) createCmd() *cobra.Command {
	var (
		password       string
		promptPassword bool
		linkBase       string
	)

	cmd := &cobra.Command{
		Use:   "create [secret]",
		Short: "Encrypt a secret and print a one-time link",
		Long: `Encrypt a secret and print a one-time link.

The secret is read from the argument, or from stdin when no argument is
given. The link expires after 24 hours or on first view, whichever comes
first.

Examples:
  secretlink create "db password is hunter2"
  cat key.pem | secretlink create --ask-password`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readSecret(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			if promptPassword {
				if password, err = c.confirmPassword(); err != nil {
					return err
				}
			}
			if linkBase == "" {
				linkBase = c.server
			}

			cl := c.client()
			stop := startSpinner("Encrypting and uploading...", c.interactive())
			share, err := envelope.NewSender(cl, linkBase).Create(cmd.Context(), secret, password)
			stop()
			if err != nil {
				return fmt.Errorf("failed to create secret: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, color.GreenString("✓")+" Your secret is ready to share:")
			fmt.Fprintln(out, share.Link)
			fmt.Fprintf(out, "Expires: %s\n", share.ExpiresAt.Local().Format(time.RFC1123))
			if share.Protected {
				// the attempt limit is configured on the server
				if info, err := cl.Info(cmd.Context()); err == nil && info.MaxAttempts > 0 {
					fmt.Fprintf(out, "Password protected: %d attempts before the secret is destroyed\n",
						info.MaxAttempts)
				} else {
					fmt.Fprintln(out, "Password protected")
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "require this password to reveal the secret")
	cmd.Flags().BoolVar(&promptPassword, "ask-password", false, "prompt for a reveal password")
	cmd.Flags().StringVar(&linkBase, "link-base", "", "base URL for the printed link (default: --server)")
	cmd.MarkFlagsMutuallyExclusive("password", "ask-password")
	return cmd
}

func readSecret(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 1 {
		if args[0] == "" {
			return nil, domain.ErrEmptyCiphertext
		}
		return []byte(args[0]), nil
	}
	data, err := io.ReadAll(io.LimitReader(stdin, domain.MaxSecretSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from stdin: %w", err)
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return nil, errors.New("secret is required")
	}
	return []byte(secret), nil
}

func (c *cli) confirmPassword() (string, error) {
	password, err := c.readPassword("Password: ")
	if err != nil {
		return "", err
	}
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	confirm, err := c.readPassword("Confirm password: ")
	if err != nil {
		return "", err
	}
	if confirm != password {
		return "", errors.New("passwords do not match")
	}
	return password, nil
}
