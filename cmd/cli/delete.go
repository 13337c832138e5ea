package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/smallwat3r/secretlink/internal/domain"
	"github.com/smallwat3r/secretlink/internal/envelope"
)

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <link|id>",
		Short: "Destroy a secret before it is viewed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if !domain.ValidID(id) {
				var err error
				if id, _, err = envelope.ParseLink(args[0]); err != nil {
					return err
				}
			}

			if err := c.client().Delete(cmd.Context(), id); err != nil {
				return fmt.Errorf("failed to delete secret: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("✓")+" Secret deleted")
			return nil
		},
	}
}
