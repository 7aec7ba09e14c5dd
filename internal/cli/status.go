package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/revaspay/onboarding/internal/app"
	"github.com/revaspay/onboarding/internal/utils"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <organization-id>",
		Short: "Show the stored onboarding status of an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := parseOrgID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				view, err := a.Orchestrator.StatusOf(ctx, orgID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), view)
			})
		},
	}
}

func newMappingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mappings <organization-id>",
		Short: "List the identity mappings of an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := parseOrgID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				mappings, err := a.Mappings.ListMappings(ctx, orgID)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "KIND\tNAME\tCOD\tEOD\tKYC\tKYB")
				for _, m := range mappings {
					name := m.Name
					if name == "" {
						name = m.BusinessName
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", m.EntityKind, name, dash(m.CODRequestID), dash(m.EODRequestID), dash(m.KYCID), dash(m.KYBID))
				}
				return w.Flush()
			})
		},
	}
}

func newAuditCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit <organization-id>",
		Short: "Show recent onboarding audit entries of an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := parseOrgID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if a.DB == nil {
					return errors.New("audit log requires the postgres store")
				}
				logs, err := utils.NewAuditLogger(a.DB).QueryOrganizationLogs(ctx, orgID, nil, limit)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tEVENT\tSEVERITY\tDESCRIPTION")
				for _, l := range logs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.Timestamp.Format("2006-01-02 15:04:05"), l.EventType, l.Severity, l.Description)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to show")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
