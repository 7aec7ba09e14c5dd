package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/revaspay/onboarding/internal/app"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <organization-id>",
		Short: "Poll the vendor for one organization and reconcile its status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := parseOrgID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Orchestrator.ResyncOrganization(ctx, orgID); err != nil {
					return err
				}
				view, err := a.Orchestrator.StatusOf(ctx, orgID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), view)
			})
		},
	}
}

func newSyncStaleCmd() *cobra.Command {
	var (
		olderThan time.Duration
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "sync-stale",
		Short: "Resync records that have not changed recently",
		Long: `Resync every in-flight onboarding record that has not been updated for
--older-than. This is what the server's sweeper runs on a schedule; run it by
hand after a webhook outage.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.Orchestrator.SyncStale(ctx, olderThan, limit)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Resynced %d records\n", n)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 6*time.Hour, "Only records not updated for this long")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum records to resync")
	return cmd
}
