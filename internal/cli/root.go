// Package cli implements onboardctl, the operator tool for the onboarding
// engine.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/revaspay/onboarding/internal/app"
	"github.com/revaspay/onboarding/internal/config"
)

// Swapped in tests
var (
	loadConfig = config.LoadConfig
	newApp     = app.New
)

var timeout time.Duration

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "onboardctl",
		Short: "Operate the verification onboarding engine",
		Long: `onboardctl runs operator tasks against the onboarding store and the
verification vendor: resyncing organizations whose webhooks were missed,
registering the webhook endpoint, inspecting status and identity mappings,
and running database migrations.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall deadline for the command")

	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newSyncStaleCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newMappingsCmd())
	rootCmd.AddCommand(newAuditCmd())
	rootCmd.AddCommand(newVendorCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newTokenCmd())
	return rootCmd
}

// Execute runs the root command
func Execute(version string) error {
	rootCmd := NewRootCmd()
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// withApp builds the engine for one command and tears it down afterwards
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	a, err := newApp(ctx, loadConfig())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func parseOrgID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid organization id %q: %w", arg, err)
	}
	return id, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
