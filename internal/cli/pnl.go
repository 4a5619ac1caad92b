package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/futures-journal/market"
	"github.com/rustyeddy/futures-journal/pnl"
)

// newPnLCmd prices a single round trip without touching the store.
func newPnLCmd(rc *RootConfig) *cobra.Command {
	var (
		symbol string
		side   string
		qty    int
		entry  float64
		exit   float64
		fees   float64
	)

	cmd := &cobra.Command{
		Use:   "pnl",
		Short: "Price one round trip with the contract table",
		Long: `Compute ticks, gross P/L, fees and net P/L for one trade.

Example:
  futures-journal pnl --symbol NQZ4 --side long --qty 10 --entry 24970.75 --exit 24971.25`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := pnl.ParseSide(side)
			if err != nil {
				return err
			}

			table := market.NewTable(rc.cfg.Commissions.Schedule())
			res, err := pnl.Compute(table, pnl.Input{
				Symbol:       symbol,
				Side:         s,
				EntryPrice:   entry,
				ExitPrice:    exit,
				Quantity:     qty,
				SuppliedFees: fees,
			})
			if err != nil {
				return err
			}
			res = res.Rounded()

			c := table.Lookup(symbol)
			out := cmd.OutOrStdout()
			if c.Known {
				fmt.Fprintf(out, "Contract:  %s (%s, tick %g = $%.2f)\n", c.Root, c.Name, c.TickSize, c.TickValue)
			} else {
				fmt.Fprintf(out, "Contract:  %s (unknown, tick %g = $%.2f)\n", c.Symbol, c.TickSize, c.TickValue)
			}
			fmt.Fprintf(out, "Ticks:     %g\n", res.Ticks)
			fmt.Fprintf(out, "Gross P/L: %.2f\n", res.GrossPnL)
			fmt.Fprintf(out, "Fees:      %.2f\n", res.Fees)
			fmt.Fprintf(out, "Net P/L:   %.2f\n", res.NetPnL)
			return nil
		},
	}

	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "contract symbol, e.g. NQZ4 (required)")
	cmd.Flags().StringVar(&side, "side", "long", "long|short|buy|sell")
	cmd.Flags().IntVarP(&qty, "qty", "q", 1, "contracts")
	cmd.Flags().Float64Var(&entry, "entry", 0, "entry price (required)")
	cmd.Flags().Float64Var(&exit, "exit", 0, "exit price (required)")
	cmd.Flags().Float64Var(&fees, "fees", 0, "fees charged; 0 computes commission")
	_ = cmd.MarkFlagRequired("symbol")
	_ = cmd.MarkFlagRequired("entry")
	_ = cmd.MarkFlagRequired("exit")
	return cmd
}
