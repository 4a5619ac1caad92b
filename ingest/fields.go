package ingest

import (
	"github.com/rustyeddy/futures-journal/journal"
)

// Canonical field names used in errors and in the policy table.
const (
	FieldSymbol     = "symbol"
	FieldSide       = "side"
	FieldQuantity   = "quantity"
	FieldEntryPrice = "entry_price"
	FieldExitPrice  = "exit_price"
	FieldEntryTime  = "entry_time"
	FieldExitTime   = "exit_time"
	FieldFees       = "fees"
	FieldCommission = "commission"
	FieldPnL        = "pnl"
	FieldNotes      = "notes"
)

// Requirement says what happens when a field is absent or malformed.
type Requirement int

const (
	// Lenient fields fall back to their default when absent or malformed.
	Lenient Requirement = iota
	// Strict fields default when absent but fail on a malformed value.
	Strict
	// Required fields fail when absent or malformed.
	Required
	// Derivable fields are copied from their paired field when absent.
	// They fail when both are absent or when a present value is malformed.
	Derivable
)

func (r Requirement) String() string {
	switch r {
	case Lenient:
		return "lenient"
	case Strict:
		return "strict"
	case Required:
		return "required"
	case Derivable:
		return "derivable"
	}
	return "unknown"
}

// Policy maps each canonical field to its requirement for one platform.
type Policy map[string]Requirement

// Policies is the field policy per ingestion source.
var Policies = map[journal.Platform]Policy{
	journal.PlatformTradovate: {
		FieldSymbol:     Required,
		FieldSide:       Strict,
		FieldQuantity:   Strict,
		FieldEntryPrice: Required,
		FieldExitPrice:  Required,
		FieldEntryTime:  Derivable,
		FieldExitTime:   Derivable,
		FieldFees:       Strict,
		FieldCommission: Strict,
		FieldPnL:        Lenient,
		FieldNotes:      Lenient,
	},
	journal.PlatformTopstepX: {
		FieldSymbol:     Required,
		FieldSide:       Strict,
		FieldQuantity:   Required,
		FieldEntryPrice: Required,
		FieldExitPrice:  Required,
		FieldEntryTime:  Required,
		FieldExitTime:   Required,
		FieldFees:       Strict,
		FieldCommission: Strict,
		FieldPnL:        Lenient,
		FieldNotes:      Lenient,
	},
	journal.PlatformManual: {
		FieldSymbol:     Required,
		FieldSide:       Strict,
		FieldQuantity:   Lenient,
		FieldEntryPrice: Required,
		FieldExitPrice:  Required,
		FieldEntryTime:  Derivable,
		FieldExitTime:   Derivable,
		FieldFees:       Strict,
		FieldCommission: Strict,
		FieldPnL:        Lenient,
		FieldNotes:      Lenient,
	},
}

// aliases lists accepted key spellings per field, highest priority first.
var aliases = map[string][]string{
	FieldSymbol:     {"symbol", "Symbol", "contract", "Contract", "contract_name", "ContractName", "contractName", "instrument", "Instrument", "product", "Product"},
	FieldSide:       {"side", "Side", "type", "Type", "direction", "Direction", "B/S", "action", "Action"},
	FieldQuantity:   {"quantity", "Quantity", "qty", "Qty", "size", "Size", "contracts", "Contracts", "filledQty"},
	FieldEntryPrice: {"entry_price", "entryPrice", "EntryPrice", "Entry Price", "avg_entry_price"},
	FieldExitPrice:  {"exit_price", "exitPrice", "ExitPrice", "Exit Price", "avg_exit_price"},
	FieldEntryTime:  {"entry_time", "entryTime", "EntryTime", "entry_date", "entryDate", "EnteredAt", "enteredAt", "Entry Time", "open_time"},
	FieldExitTime:   {"exit_time", "exitTime", "ExitTime", "exit_date", "exitDate", "ExitedAt", "exitedAt", "Exit Time", "close_time"},
	FieldFees:       {"fees", "Fees", "fee", "Fee"},
	FieldCommission: {"commission", "Commission", "commissions", "Commissions", "Comm"},
	FieldPnL:        {"pnl", "PnL", "PNL", "profit", "Profit", "realized_pnl"},
	FieldNotes:      {"notes", "Notes", "comment", "Comment"},
}

// Tradovate performance exports carry fills instead of entry/exit columns.
const (
	tradovateBuyPrice  = "buyPrice"
	tradovateSellPrice = "sellPrice"
	tradovateBoughtAt  = "boughtTimestamp"
	tradovateSoldAt    = "soldTimestamp"
)
