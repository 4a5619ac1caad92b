// market/contracts.go
package market

import (
	"sort"
	"strings"
)

// Class groups contracts that share a commission schedule.
type Class string

const (
	ClassEmini    Class = "emini"
	ClassMicro    Class = "micro"
	ClassEnergy   Class = "energy"
	ClassMetal    Class = "metal"
	ClassCurrency Class = "currency"
	ClassRates    Class = "rates"
	ClassUnknown  Class = "unknown"
)

// Defaults applied to symbols that do not match any known root.
const (
	DefaultTickSize  = 0.25
	DefaultTickValue = 1.0
)

// ContractMeta is the static reference data for a futures root.
type ContractMeta struct {
	Root      string
	Name      string
	Class     Class
	TickSize  float64 // minimum price increment
	TickValue float64 // USD per tick per contract
}

// Contracts is the reference table keyed by contract root.
var Contracts = map[string]ContractMeta{
	// E-mini equity index
	"NQ":  {Root: "NQ", Name: "E-mini Nasdaq-100", Class: ClassEmini, TickSize: 0.25, TickValue: 5.00},
	"ES":  {Root: "ES", Name: "E-mini S&P 500", Class: ClassEmini, TickSize: 0.25, TickValue: 12.50},
	"RTY": {Root: "RTY", Name: "E-mini Russell 2000", Class: ClassEmini, TickSize: 0.10, TickValue: 5.00},
	"YM":  {Root: "YM", Name: "E-mini Dow", Class: ClassEmini, TickSize: 1.00, TickValue: 5.00},

	// Micro
	"MNQ": {Root: "MNQ", Name: "Micro E-mini Nasdaq-100", Class: ClassMicro, TickSize: 0.25, TickValue: 0.50},
	"MES": {Root: "MES", Name: "Micro E-mini S&P 500", Class: ClassMicro, TickSize: 0.25, TickValue: 1.25},
	"M2K": {Root: "M2K", Name: "Micro E-mini Russell 2000", Class: ClassMicro, TickSize: 0.10, TickValue: 0.50},
	"MYM": {Root: "MYM", Name: "Micro E-mini Dow", Class: ClassMicro, TickSize: 1.00, TickValue: 0.50},
	"MCL": {Root: "MCL", Name: "Micro WTI Crude Oil", Class: ClassMicro, TickSize: 0.01, TickValue: 1.00},
	"MGC": {Root: "MGC", Name: "Micro Gold", Class: ClassMicro, TickSize: 0.10, TickValue: 1.00},

	// Energy
	"CL": {Root: "CL", Name: "WTI Crude Oil", Class: ClassEnergy, TickSize: 0.01, TickValue: 10.00},
	"NG": {Root: "NG", Name: "Henry Hub Natural Gas", Class: ClassEnergy, TickSize: 0.001, TickValue: 10.00},
	"RB": {Root: "RB", Name: "RBOB Gasoline", Class: ClassEnergy, TickSize: 0.0001, TickValue: 4.20},
	"HO": {Root: "HO", Name: "NY Harbor ULSD", Class: ClassEnergy, TickSize: 0.0001, TickValue: 4.20},

	// Metals
	"GC": {Root: "GC", Name: "Gold", Class: ClassMetal, TickSize: 0.10, TickValue: 10.00},
	"SI": {Root: "SI", Name: "Silver", Class: ClassMetal, TickSize: 0.005, TickValue: 25.00},
	"HG": {Root: "HG", Name: "Copper", Class: ClassMetal, TickSize: 0.0005, TickValue: 12.50},
	"PL": {Root: "PL", Name: "Platinum", Class: ClassMetal, TickSize: 0.10, TickValue: 5.00},

	// Currency
	"6E": {Root: "6E", Name: "Euro FX", Class: ClassCurrency, TickSize: 0.00005, TickValue: 6.25},
	"6J": {Root: "6J", Name: "Japanese Yen", Class: ClassCurrency, TickSize: 0.0000005, TickValue: 6.25},
	"6B": {Root: "6B", Name: "British Pound", Class: ClassCurrency, TickSize: 0.0001, TickValue: 6.25},
	"6A": {Root: "6A", Name: "Australian Dollar", Class: ClassCurrency, TickSize: 0.00005, TickValue: 5.00},
	"6C": {Root: "6C", Name: "Canadian Dollar", Class: ClassCurrency, TickSize: 0.00005, TickValue: 5.00},

	// Interest rates
	"ZN": {Root: "ZN", Name: "10-Year T-Note", Class: ClassRates, TickSize: 0.015625, TickValue: 15.625},
	"ZF": {Root: "ZF", Name: "5-Year T-Note", Class: ClassRates, TickSize: 0.0078125, TickValue: 7.8125},
	"ZB": {Root: "ZB", Name: "30-Year T-Bond", Class: ClassRates, TickSize: 0.03125, TickValue: 31.25},
}

// CommissionSchedule is the per-side, per-contract commission by class.
type CommissionSchedule map[Class]float64

// Per-side rates observed for E-mini and Micro contracts. Every other class
// is charged the E-mini rate unless the schedule says otherwise.
const (
	EminiCommissionPerSide = 1.50
	MicroCommissionPerSide = 0.35
)

// DefaultCommissions returns a fresh copy of the default schedule.
func DefaultCommissions() CommissionSchedule {
	return CommissionSchedule{
		ClassEmini: EminiCommissionPerSide,
		ClassMicro: MicroCommissionPerSide,
	}
}

// PerSide returns the commission for one side of one contract of class c.
func (s CommissionSchedule) PerSide(c Class) float64 {
	if v, ok := s[c]; ok {
		return v
	}
	if v, ok := s[ClassEmini]; ok {
		return v
	}
	return EminiCommissionPerSide
}

// Contract is the result of a table lookup.
type Contract struct {
	Symbol            string // normalized symbol as supplied
	ContractMeta              // zero Root when the symbol is unknown
	CommissionPerSide float64
	Known             bool
}

// Table resolves symbols against the reference data and a commission
// schedule. The zero value is not usable; use NewTable.
type Table struct {
	contracts   map[string]ContractMeta
	roots       []string // longest first
	commissions CommissionSchedule
}

// NewTable builds a table over Contracts with the given schedule. A nil
// schedule uses DefaultCommissions.
func NewTable(schedule CommissionSchedule) *Table {
	if schedule == nil {
		schedule = DefaultCommissions()
	}
	t := &Table{
		contracts:   Contracts,
		commissions: schedule,
	}
	for root := range t.contracts {
		t.roots = append(t.roots, root)
	}
	sort.Slice(t.roots, func(i, j int) bool {
		if len(t.roots[i]) != len(t.roots[j]) {
			return len(t.roots[i]) > len(t.roots[j])
		}
		return t.roots[i] < t.roots[j]
	})
	return t
}

// NormalizeSymbol trims whitespace, drops a leading slash and upper-cases.
func NormalizeSymbol(symbol string) string {
	s := strings.TrimSpace(symbol)
	s = strings.TrimPrefix(s, "/")
	return strings.ToUpper(s)
}

// Root returns the contract root for symbol by longest prefix match, so
// MNQZ4 resolves to MNQ rather than NQ.
func (t *Table) Root(symbol string) (string, bool) {
	s := NormalizeSymbol(symbol)
	for _, root := range t.roots {
		if strings.HasPrefix(s, root) {
			return root, true
		}
	}
	return "", false
}

// Lookup is total: unknown symbols get the default tick size, tick value and
// E-mini commission rate.
func (t *Table) Lookup(symbol string) Contract {
	s := NormalizeSymbol(symbol)
	if root, ok := t.Root(s); ok {
		meta := t.contracts[root]
		return Contract{
			Symbol:            s,
			ContractMeta:      meta,
			CommissionPerSide: t.commissions.PerSide(meta.Class),
			Known:             true,
		}
	}
	return Contract{
		Symbol: s,
		ContractMeta: ContractMeta{
			Class:     ClassUnknown,
			TickSize:  DefaultTickSize,
			TickValue: DefaultTickValue,
		},
		CommissionPerSide: t.commissions.PerSide(ClassEmini),
	}
}

// RoundTripCommission is the commission for opening and closing qty contracts.
func (t *Table) RoundTripCommission(symbol string, qty int) float64 {
	return t.Lookup(symbol).CommissionPerSide * float64(qty) * 2
}
