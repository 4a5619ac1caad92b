package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupKnownRoots(t *testing.T) {
	t.Parallel()

	table := NewTable(nil)

	tests := []struct {
		symbol    string
		root      string
		class     Class
		tickSize  float64
		tickValue float64
		perSide   float64
	}{
		{"NQ", "NQ", ClassEmini, 0.25, 5.00, 1.50},
		{"NQZ4", "NQ", ClassEmini, 0.25, 5.00, 1.50},
		{"ESH25", "ES", ClassEmini, 0.25, 12.50, 1.50},
		{"/ES", "ES", ClassEmini, 0.25, 12.50, 1.50},
		{"rtym4", "RTY", ClassEmini, 0.10, 5.00, 1.50},
		{"YMU4", "YM", ClassEmini, 1.00, 5.00, 1.50},
		{"MNQZ4", "MNQ", ClassMicro, 0.25, 0.50, 0.35},
		{"MESH5", "MES", ClassMicro, 0.25, 1.25, 0.35},
		{"M2KM4", "M2K", ClassMicro, 0.10, 0.50, 0.35},
		{"MYMU4", "MYM", ClassMicro, 1.00, 0.50, 0.35},
		{"CLZ4", "CL", ClassEnergy, 0.01, 10.00, 1.50},
		{"MCLZ4", "MCL", ClassMicro, 0.01, 1.00, 0.35},
		{"GCG5", "GC", ClassMetal, 0.10, 10.00, 1.50},
		{"6EZ4", "6E", ClassCurrency, 0.00005, 6.25, 1.50},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			c := table.Lookup(tt.symbol)
			assert.True(t, c.Known)
			assert.Equal(t, tt.root, c.Root)
			assert.Equal(t, tt.class, c.Class)
			assert.InDelta(t, tt.tickSize, c.TickSize, 1e-12)
			assert.InDelta(t, tt.tickValue, c.TickValue, 1e-12)
			assert.InDelta(t, tt.perSide, c.CommissionPerSide, 1e-12)
		})
	}
}

func TestLookupUnknownIsTotal(t *testing.T) {
	t.Parallel()

	table := NewTable(nil)
	c := table.Lookup("  xyzq5 ")

	assert.False(t, c.Known)
	assert.Equal(t, "XYZQ5", c.Symbol)
	assert.Equal(t, ClassUnknown, c.Class)
	assert.Equal(t, DefaultTickSize, c.TickSize)
	assert.Equal(t, DefaultTickValue, c.TickValue)
	assert.Equal(t, EminiCommissionPerSide, c.CommissionPerSide)
}

func TestRootPrefersLongestMatch(t *testing.T) {
	t.Parallel()

	table := NewTable(nil)

	root, ok := table.Root("MNQ")
	assert.True(t, ok)
	assert.Equal(t, "MNQ", root)

	root, ok = table.Root("MES")
	assert.True(t, ok)
	assert.Equal(t, "MES", root)

	_, ok = table.Root("")
	assert.False(t, ok)
}

func TestRoundTripCommission(t *testing.T) {
	t.Parallel()

	table := NewTable(nil)
	assert.InDelta(t, 30.00, table.RoundTripCommission("NQ", 10), 1e-9)
	assert.InDelta(t, 7.00, table.RoundTripCommission("MNQ", 10), 1e-9)
	assert.InDelta(t, 3.00, table.RoundTripCommission("UNKNOWN", 1), 1e-9)
}

func TestCustomSchedule(t *testing.T) {
	t.Parallel()

	table := NewTable(CommissionSchedule{
		ClassEmini:  2.00,
		ClassMicro:  0.50,
		ClassEnergy: 2.25,
	})

	assert.InDelta(t, 2.00, table.Lookup("ES").CommissionPerSide, 1e-12)
	assert.InDelta(t, 0.50, table.Lookup("MES").CommissionPerSide, 1e-12)
	assert.InDelta(t, 2.25, table.Lookup("CL").CommissionPerSide, 1e-12)
	// classes missing from the schedule fall back to the E-mini rate
	assert.InDelta(t, 2.00, table.Lookup("GC").CommissionPerSide, 1e-12)
	assert.InDelta(t, 2.00, table.Lookup("???").CommissionPerSide, 1e-12)
}

func TestNormalizeSymbol(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "NQZ4", NormalizeSymbol(" /nqz4 "))
	assert.Equal(t, "", NormalizeSymbol("   "))
}
