package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/futures-journal/internal/app"
	"github.com/rustyeddy/futures-journal/journal"
	"github.com/rustyeddy/futures-journal/pkg/id"
)

func newUserCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage journal users",
	}

	var name string
	add := &cobra.Command{
		Use:   "add [user-id]",
		Short: "Register a user; an id is generated when omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u := journal.User{DisplayName: name, CreatedAt: time.Now().UTC()}
			if len(args) == 1 {
				u.ID = args[0]
			} else {
				u.ID = id.New()
			}
			if u.DisplayName == "" {
				u.DisplayName = u.ID
			}
			return rc.open(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Store.CreateUser(ctx, u); err != nil {
					return fmt.Errorf("create user: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Created user %s (%s)\n", u.ID, u.DisplayName)
				return nil
			})
		},
	}
	add.Flags().StringVarP(&name, "name", "n", "", "display name")

	accounts := &cobra.Command{
		Use:   "accounts <user-id>",
		Short: "List a user's accounts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.open(cmd, func(ctx context.Context, a *app.App) error {
				list, err := a.Store.ListAccounts(ctx, args[0])
				if err != nil {
					return fmt.Errorf("list accounts: %w", err)
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No accounts.")
					return nil
				}
				for _, acct := range list {
					fmt.Fprintf(out, "%s  %-10s  %s\n", acct.ID, acct.Platform, acct.Name)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(add, accounts)
	return cmd
}
