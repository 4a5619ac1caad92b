package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatTradeOrg renders one trade as an Org heading. Facts go in the
// PROPERTIES drawer so they stay searchable; the Thesis, Execution and
// Review subheadings are left for the trader to fill in.
func FormatTradeOrg(t Trade) string {
	props := [][2]string{
		{"TRADE_ID", t.ID},
		{"ACCOUNT_ID", t.AccountID},
		{"PLATFORM", string(t.Platform)},
		{"SYMBOL", t.Symbol},
		{"SIDE", string(t.Side)},
		{"QUANTITY", fmt.Sprint(t.Quantity)},
		{"ENTRY_PRICE", formatPrice(t.EntryPrice)},
		{"EXIT_PRICE", formatPrice(t.ExitPrice)},
		{"ENTRY_TIME", t.EntryTime.UTC().Format(time.RFC3339)},
		{"EXIT_TIME", t.ExitTime.UTC().Format(time.RFC3339)},
		{"TRADE_DATE", t.TradeDate},
		{"GROSS_PNL", money(t.GrossPnL)},
		{"FEES", money(t.Fees)},
		{"NET_PNL", money(t.NetPnL)},
	}

	var b strings.Builder
	fmt.Fprintf(&b, "** Trade: %s %s x%d (%s)\n", t.Symbol, strings.ToUpper(string(t.Side)), t.Quantity, shortID(t.ID))
	b.WriteString(":PROPERTIES:\n")
	for _, p := range props {
		fmt.Fprintf(&b, ":%s: %s\n", p[0], p[1])
	}
	b.WriteString(":END:\n\n")
	b.WriteString("*** Thesis\n- \n\n*** Execution\n- \n\n*** Review\n- ")
	b.WriteString(t.Notes)
	b.WriteString("\n")
	return b.String()
}

// FormatTradesOrg joins trades with a blank line between blocks.
func FormatTradesOrg(trades []Trade) string {
	blocks := make([]string, len(trades))
	for i, t := range trades {
		blocks[i] = FormatTradeOrg(t)
	}
	return strings.Join(blocks, "\n\n")
}

// shortID is the first 8 characters, enough to tell ULIDs apart by eye.
func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
