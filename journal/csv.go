package journal

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// CSVHeader is the column order written by CSVWriter.
var CSVHeader = []string{
	"trade_id", "account_id", "platform", "trade_date", "symbol", "side", "quantity",
	"entry_price", "exit_price", "entry_time", "exit_time",
	"gross_pnl", "fees", "net_pnl", "notes",
}

// CSVWriter exports trades in a flat CSV layout.
type CSVWriter struct {
	w *csv.Writer
}

// NewCSVWriter writes the header immediately.
func NewCSVWriter(out io.Writer) (*CSVWriter, error) {
	w := csv.NewWriter(out)
	if err := w.Write(CSVHeader); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return &CSVWriter{w: w}, nil
}

func (c *CSVWriter) WriteTrade(t Trade) error {
	err := c.w.Write([]string{
		t.ID,
		t.AccountID,
		string(t.Platform),
		t.TradeDate,
		t.Symbol,
		string(t.Side),
		strconv.Itoa(t.Quantity),
		formatPrice(t.EntryPrice),
		formatPrice(t.ExitPrice),
		t.EntryTime.UTC().Format(time.RFC3339),
		t.ExitTime.UTC().Format(time.RFC3339),
		money(t.GrossPnL),
		money(t.Fees),
		money(t.NetPnL),
		t.Notes,
	})
	if err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

// WriteTrades writes every trade and flushes.
func (c *CSVWriter) WriteTrades(trades []Trade) error {
	for _, t := range trades {
		if err := c.WriteTrade(t); err != nil {
			return err
		}
	}
	return nil
}

func money(x float64) string {
	return strconv.FormatFloat(x, 'f', 2, 64)
}

// formatPrice keeps every significant digit so tick-sized prices survive.
func formatPrice(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
