package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/futures-journal/journal"
	"github.com/rustyeddy/futures-journal/market"
	"github.com/rustyeddy/futures-journal/pnl"
)

// Row is one loosely typed input record as decoded from a broker export.
type Row map[string]any

// Normalized is a row after field extraction, ready to be priced.
type Normalized struct {
	Symbol      string
	Side        pnl.Side
	Quantity    int
	EntryPrice  float64
	ExitPrice   float64
	EntryTime   time.Time
	ExitTime    time.Time
	Fees        float64  // supplied fees plus commission, zero when absent
	ReportedPnL *float64 // broker's own figure, kept for reference only
	Notes       string
	RawPayload  json.RawMessage
}

// PnLInput is the calculator input for this row.
func (n Normalized) PnLInput() pnl.Input {
	return pnl.Input{
		Symbol:       n.Symbol,
		Side:         n.Side,
		EntryPrice:   n.EntryPrice,
		ExitPrice:    n.ExitPrice,
		Quantity:     n.Quantity,
		SuppliedFees: n.Fees,
	}
}

// Normalizer extracts trade fields from rows according to the per-platform
// policy table. Zone-less timestamps are read in its location.
type Normalizer struct {
	loc      *time.Location
	policies map[journal.Platform]Policy
}

func NewNormalizer(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{loc: loc, policies: Policies}
}

func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Normalize extracts one trade from row. Errors are *FieldError values
// naming the offending field, except for an unknown platform.
func (n *Normalizer) Normalize(platform journal.Platform, row Row) (Normalized, error) {
	policy, ok := n.policies[platform]
	if !ok {
		return Normalized{}, fmt.Errorf("%w: %q", ErrUnknownPlatform, platform)
	}

	var out Normalized

	sym, ok := lookup(row, FieldSymbol)
	if !ok {
		if err := policy.absent(FieldSymbol); err != nil {
			return out, err
		}
	}
	out.Symbol = market.NormalizeSymbol(sym)
	if out.Symbol == "" {
		return out, missing(FieldSymbol)
	}

	out.Quantity = 1
	shortHint := false
	if raw, ok := lookup(row, FieldQuantity); ok {
		q, err := parseQuantity(raw)
		if err == nil && q == 0 {
			err = errors.New("quantity must be non-zero")
		}
		if err != nil {
			if ferr := policy.malformed(FieldQuantity, raw, err); ferr != nil {
				return out, ferr
			}
		} else {
			if q < 0 {
				shortHint = true
				q = -q
			}
			out.Quantity = q
		}
	} else if err := policy.absent(FieldQuantity); err != nil {
		return out, err
	}

	var (
		fillSide pnl.Side
		err      error
	)
	if platform == journal.PlatformTradovate && isFillShape(row) {
		fillSide, err = n.fills(row, &out)
		if err != nil {
			return out, err
		}
	} else {
		if out.EntryPrice, err = price(row, FieldEntryPrice); err != nil {
			return out, err
		}
		if out.ExitPrice, err = price(row, FieldExitPrice); err != nil {
			return out, err
		}
		entryRaw, _ := lookup(row, FieldEntryTime)
		exitRaw, _ := lookup(row, FieldExitTime)
		if out.EntryTime, out.ExitTime, err = n.times(policy, FieldEntryTime, entryRaw, FieldExitTime, exitRaw); err != nil {
			return out, err
		}
	}

	if raw, ok := lookup(row, FieldSide); ok {
		s, perr := parseSide(raw)
		if perr != nil {
			if ferr := policy.malformed(FieldSide, raw, perr); ferr != nil {
				return out, ferr
			}
		}
		out.Side = s
	} else if err := policy.absent(FieldSide); err != nil {
		return out, err
	}
	switch {
	case fillSide != "":
		// fill order decides, whatever the side column says
		out.Side = fillSide
	case out.Side != "":
	case shortHint:
		out.Side = pnl.Short
	default:
		out.Side = pnl.Long
	}

	for _, f := range []string{FieldFees, FieldCommission} {
		raw, ok := lookup(row, f)
		if !ok {
			if err := policy.absent(f); err != nil {
				return out, err
			}
			continue
		}
		v, perr := parseNumber(raw)
		if perr != nil {
			if ferr := policy.malformed(f, raw, perr); ferr != nil {
				return out, ferr
			}
			continue
		}
		// Exports disagree on the sign of costs.
		out.Fees += math.Abs(v)
	}

	if raw, ok := lookup(row, FieldPnL); ok {
		if v, perr := parseNumber(raw); perr == nil {
			out.ReportedPnL = &v
		} else if ferr := policy.malformed(FieldPnL, raw, perr); ferr != nil {
			return out, ferr
		}
	}

	out.Notes, _ = lookup(row, FieldNotes)

	if b, err := json.Marshal(row); err == nil {
		out.RawPayload = b
	}
	return out, nil
}

// fills handles the Tradovate performance report layout, where prices and
// timestamps are per fill and the side follows from which fill came first.
func (n *Normalizer) fills(row Row, out *Normalized) (pnl.Side, error) {
	buy, err := requiredNumber(row, tradovateBuyPrice)
	if err != nil {
		return "", err
	}
	sell, err := requiredNumber(row, tradovateSellPrice)
	if err != nil {
		return "", err
	}

	boughtRaw := text(row[tradovateBoughtAt])
	soldRaw := text(row[tradovateSoldAt])
	fillPolicy := Policy{tradovateBoughtAt: Derivable, tradovateSoldAt: Derivable}
	bought, sold, err := n.pair(fillPolicy, tradovateBoughtAt, boughtRaw, tradovateSoldAt, soldRaw)
	if err != nil {
		return "", err
	}

	if sold.Before(bought) {
		out.EntryPrice, out.ExitPrice = sell, buy
		out.EntryTime, out.ExitTime = sold, bought
		return pnl.Short, nil
	}
	out.EntryPrice, out.ExitPrice = buy, sell
	out.EntryTime, out.ExitTime = bought, sold
	return pnl.Long, nil
}

// times parses an entry/exit pair and rejects exits before entries.
func (n *Normalizer) times(policy Policy, entryField, entryRaw, exitField, exitRaw string) (time.Time, time.Time, error) {
	entry, exit, err := n.pair(policy, entryField, entryRaw, exitField, exitRaw)
	if err != nil {
		return entry, exit, err
	}
	if exit.Before(entry) {
		return entry, exit, unparseable(exitField, exitRaw, errors.New("exit is before entry"))
	}
	return entry, exit, nil
}

// pair parses two related timestamps, deriving an absent one from the other
// when the policy allows it.
func (n *Normalizer) pair(policy Policy, aField, aRaw, bField, bRaw string) (time.Time, time.Time, error) {
	var a, b time.Time
	var err error

	if aRaw != "" {
		if a, err = parseTime(aRaw, n.loc); err != nil {
			return a, b, unparseable(aField, aRaw, err)
		}
	}
	if bRaw != "" {
		if b, err = parseTime(bRaw, n.loc); err != nil {
			return a, b, unparseable(bField, bRaw, err)
		}
	}

	switch {
	case aRaw == "" && bRaw == "":
		return a, b, missing(aField)
	case aRaw == "":
		if policy[aField] != Derivable {
			return a, b, missing(aField)
		}
		a = b
	case bRaw == "":
		if policy[bField] != Derivable {
			return a, b, missing(bField)
		}
		b = a
	}
	return a, b, nil
}

func isFillShape(row Row) bool {
	if _, ok := lookup(row, FieldEntryPrice); ok {
		return false
	}
	if _, ok := lookup(row, FieldExitPrice); ok {
		return false
	}
	return text(row[tradovateBuyPrice]) != "" && text(row[tradovateSellPrice]) != ""
}

func (p Policy) absent(field string) error {
	if p[field] == Required {
		return missing(field)
	}
	return nil
}

func (p Policy) malformed(field, raw string, cause error) error {
	if p[field] == Lenient {
		return nil
	}
	return unparseable(field, raw, cause)
}

func price(row Row, field string) (float64, error) {
	raw, ok := lookup(row, field)
	if !ok {
		return 0, missing(field)
	}
	v, err := parseNumber(raw)
	if err != nil {
		return 0, unparseable(field, raw, err)
	}
	return v, nil
}

func requiredNumber(row Row, key string) (float64, error) {
	raw := text(row[key])
	if raw == "" {
		return 0, missing(key)
	}
	v, err := parseNumber(raw)
	if err != nil {
		return 0, unparseable(key, raw, err)
	}
	return v, nil
}

// lookup returns the first non-empty value among the field's aliases.
func lookup(row Row, field string) (string, bool) {
	for _, key := range aliases[field] {
		if s := text(row[key]); s != "" {
			return s, true
		}
	}
	return "", false
}

func text(v any) string {
	var s string
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		s = v
	case json.Number:
		s = v.String()
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		s = strconv.Itoa(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	case int32:
		s = strconv.FormatInt(int64(v), 10)
	case bool:
		s = strconv.FormatBool(v)
	default:
		s = fmt.Sprint(v)
	}
	return strings.TrimSpace(s)
}

// parseNumber accepts currency formatting: "$1,234.50", "(12.50)",
// "$(12.50)", "-$3".
func parseNumber(raw string) (float64, error) {
	s := strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(raw))
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	if s == "" {
		return 0, errors.New("empty number")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number: %q", raw)
	}
	if neg {
		v = -v
	}
	return v, nil
}

// parseQuantity accepts integers with thousands separators. Integral floats
// such as "2.0" are accepted since JSON decoders produce them. Magnitudes
// must fit the store's 32-bit quantity column.
func parseQuantity(raw string) (int, error) {
	s := strings.NewReplacer(",", "", " ", "").Replace(strings.TrimSpace(raw))
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %q", raw)
	}
	if math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("quantity out of range: %q", raw)
	}
	return int(f), nil
}

func parseSide(raw string) (pnl.Side, error) {
	return pnl.ParseSide(raw)
}

var zonedLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 Z07:00",
	// hour-only offsets, as in Postgres timestamptz text
	"2006-01-02 15:04:05Z07",
	"2006-01-02T15:04:05Z07",
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04Z07:00",
	"1/2/2006 15:04:05 Z07:00",
	"1/2/2006 15:04:05 -0700",
}

// Zone-less layouts are read in the journal location. Fractional seconds
// after the seconds field are accepted by time.Parse without a layout entry.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/2006",
}

func parseTime(raw string, loc *time.Location) (time.Time, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
