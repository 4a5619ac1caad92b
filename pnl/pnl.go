package pnl

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/futures-journal/market"
)

// Side of a round-trip trade.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

func (s Side) Valid() bool {
	return s == Long || s == Short
}

// ParseSide accepts long/short and the buy/sell spellings brokers use.
func ParseSide(raw string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy", "long", "b", "l":
		return Long, nil
	case "sell", "short", "s":
		return Short, nil
	}
	return "", fmt.Errorf("unknown side %q", raw)
}

// sign is +1 for long and -1 for short.
func (s Side) sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}

// Input describes one matched entry/exit.
type Input struct {
	Symbol       string
	Side         Side
	EntryPrice   float64
	ExitPrice    float64
	Quantity     int
	SuppliedFees float64 // used when > 0, otherwise commission is computed
}

// Result holds unrounded money values. Call Rounded before persisting.
type Result struct {
	Ticks    float64
	GrossPnL float64
	Fees     float64
	NetPnL   float64
}

// ContractSource is satisfied by *market.Table.
type ContractSource interface {
	Lookup(symbol string) market.Contract
}

// Compute prices a trade in ticks. It is pure: the same input and table
// always yield the same result.
func Compute(table ContractSource, in Input) (Result, error) {
	if !in.Side.Valid() {
		return Result{}, fmt.Errorf("invalid side %q", in.Side)
	}
	if in.Quantity <= 0 {
		return Result{}, fmt.Errorf("quantity must be positive, got %d", in.Quantity)
	}

	c := table.Lookup(in.Symbol)
	if c.TickSize <= 0 {
		return Result{}, fmt.Errorf("contract %s has no tick size", c.Symbol)
	}

	priceDiff := in.Side.sign() * (in.ExitPrice - in.EntryPrice)
	ticks := priceDiff / c.TickSize
	gross := ticks * float64(in.Quantity) * c.TickValue

	fees := in.SuppliedFees
	if fees <= 0 {
		fees = c.CommissionPerSide * float64(in.Quantity) * 2
	}

	return Result{
		Ticks:    ticks,
		GrossPnL: gross,
		Fees:     fees,
		NetPnL:   gross - fees,
	}, nil
}

// Rounded returns the result with money rounded to cents. Net is derived
// from the rounded gross and fees so net == gross - fees holds exactly.
func (r Result) Rounded() Result {
	gross := decimal.NewFromFloat(r.GrossPnL).Round(2)
	fees := decimal.NewFromFloat(r.Fees).Round(2)
	return Result{
		Ticks:    r.Ticks,
		GrossPnL: gross.InexactFloat64(),
		Fees:     fees.InexactFloat64(),
		NetPnL:   gross.Sub(fees).InexactFloat64(),
	}
}

// Round rounds a money amount to cents, half away from zero.
func Round(x float64) float64 {
	return decimal.NewFromFloat(x).Round(2).InexactFloat64()
}

// Sum adds money amounts in decimal and rounds the total to cents.
func Sum(xs ...float64) float64 {
	total := decimal.Zero
	for _, x := range xs {
		total = total.Add(decimal.NewFromFloat(x))
	}
	return total.Round(2).InexactFloat64()
}
