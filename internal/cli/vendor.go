package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/revaspay/onboarding/internal/app"
)

func newVendorCmd() *cobra.Command {
	vendorCmd := &cobra.Command{
		Use:   "vendor",
		Short: "Manage the verification vendor configuration",
	}

	vendorCmd.AddCommand(&cobra.Command{
		Use:   "setup",
		Short: "Register the webhook endpoint and onboarding settings with the vendor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Orchestrator.ConfigureVendor(ctx); err != nil {
					return fmt.Errorf("vendor setup failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Vendor configured, webhooks -> %s\n", a.Config.Onboarding.WebhookBaseURL)
				return nil
			})
		},
	})
	return vendorCmd
}
