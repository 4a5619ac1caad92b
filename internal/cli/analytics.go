package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/futures-journal/analytics"
	"github.com/rustyeddy/futures-journal/internal/app"
)

func newAnalyticsCmd(rc *RootConfig) *cobra.Command {
	var (
		userID string
		format string
	)

	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Show or rebuild a user's performance snapshot",
	}
	cmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "user id (required)")
	cmd.PersistentFlags().StringVar(&format, "format", "org", "org|json")
	_ = cmd.MarkPersistentFlagRequired("user")

	render := func(cmd *cobra.Command, snap *analytics.Snapshot) error {
		out := cmd.OutOrStdout()
		switch format {
		case "org":
			return analytics.WriteOrg(out, snap)
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		default:
			return fmt.Errorf("unknown format %q, want org or json", format)
		}
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the stored snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.open(cmd, func(ctx context.Context, a *app.App) error {
				snap, err := a.Analytics.Load(ctx, userID)
				if err != nil {
					return err
				}
				return render(cmd, snap)
			})
		},
	}

	recompute := &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild the snapshot from all stored trades",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.open(cmd, func(ctx context.Context, a *app.App) error {
				snap, err := a.Analytics.Recompute(ctx, userID)
				if err != nil {
					return err
				}
				return render(cmd, snap)
			})
		},
	}

	cmd.AddCommand(show, recompute)
	return cmd
}
