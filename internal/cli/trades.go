package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/futures-journal/internal/app"
	"github.com/rustyeddy/futures-journal/journal"
)

func newTradesCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "Query and manage stored trades",
		Long: `Query and display trades from the journal.

Subcommands:
  list    - List a user's trades, optionally by trade date range
  show    - Show one trade as an Org block
  delete  - Delete a trade and refresh analytics

Examples:
  futures-journal trades list --user alice --from 2024-03-01 --to 2024-03-31
  futures-journal trades list --user alice --format csv > march.csv
  futures-journal trades show 01HV7Z3Q8M6K4W2N0P9R5T1Y3C`,
	}

	cmd.AddCommand(newTradesListCmd(rc), newTradesShowCmd(rc), newTradesDeleteCmd(rc))
	return cmd
}

func newTradesListCmd(rc *RootConfig) *cobra.Command {
	var (
		userID string
		from   string
		to     string
		format string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's trades",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, d := range []string{from, to} {
				if d == "" {
					continue
				}
				if _, err := time.Parse(journal.DateLayout, d); err != nil {
					return fmt.Errorf("bad date %q: want YYYY-MM-DD", d)
				}
			}

			return rc.open(cmd, func(ctx context.Context, a *app.App) error {
				var (
					trades []journal.Trade
					err    error
				)
				if from == "" && to == "" {
					trades, err = a.Store.ListTrades(ctx, userID)
				} else {
					if from == "" {
						from = "0001-01-01"
					}
					if to == "" {
						to = "9999-12-31"
					}
					trades, err = a.Store.ListTradesBetween(ctx, userID, from, to)
				}
				if err != nil {
					return fmt.Errorf("list trades: %w", err)
				}

				out := cmd.OutOrStdout()
				switch format {
				case "org":
					if len(trades) == 0 {
						fmt.Fprintln(out, "No trades.")
						return nil
					}
					fmt.Fprintln(out, journal.FormatTradesOrg(trades))
				case "csv":
					w, err := journal.NewCSVWriter(out)
					if err != nil {
						return err
					}
					return w.WriteTrades(trades)
				case "json":
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(trades)
				default:
					return fmt.Errorf("unknown format %q, want org, csv or json", format)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id (required)")
	cmd.Flags().StringVar(&from, "from", "", "first trade date, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last trade date, YYYY-MM-DD")
	cmd.Flags().StringVar(&format, "format", "org", "org|csv|json")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newTradesShowCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "show <trade-id>",
		Short: "Show one trade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.open(cmd, func(ctx context.Context, a *app.App) error {
				t, err := a.Store.GetTrade(ctx, args[0])
				if err != nil {
					return fmt.Errorf("get trade: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(t))
				return nil
			})
		},
	}
}

func newTradesDeleteCmd(rc *RootConfig) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "delete <trade-id>",
		Short: "Delete a trade and recompute the user's analytics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.open(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Pipeline.DeleteTrade(ctx, userID, args[0])
				if err != nil {
					return fmt.Errorf("delete trade: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "✓ Deleted trade %s\n", res.TradeID)
				if res.AggregationError != "" {
					fmt.Fprintf(out, "! analytics not refreshed: %s\n", res.AggregationError)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "owner of the trade (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
