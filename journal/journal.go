// journal/journal.go
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/futures-journal/pnl"
)

// DateLayout is the canonical trade_date and bucket key format.
const DateLayout = "2006-01-02"

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// Platform is the broker a trade was imported from.
type Platform string

const (
	PlatformTradovate Platform = "tradovate"
	PlatformTopstepX  Platform = "topstepx"
	PlatformManual    Platform = "manual"
)

var platformNames = map[Platform]string{
	PlatformTradovate: "Tradovate",
	PlatformTopstepX:  "TopstepX",
	PlatformManual:    "Manual",
}

// ParsePlatform accepts the platform tag case-insensitively.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := platformNames[p]; !ok {
		return "", fmt.Errorf("unknown platform %q", s)
	}
	return p, nil
}

// DisplayName is used for lazily created accounts.
func (p Platform) DisplayName() string {
	if n, ok := platformNames[p]; ok {
		return n
	}
	return string(p)
}

// Trade is one matched entry/exit. Money fields are stored rounded to cents.
type Trade struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	AccountID  string          `json:"account_id"`
	Symbol     string          `json:"symbol"`
	Side       pnl.Side        `json:"side"`
	Quantity   int             `json:"quantity"`
	EntryPrice float64         `json:"entry_price"`
	ExitPrice  float64         `json:"exit_price"`
	EntryTime  time.Time       `json:"entry_time"`
	ExitTime   time.Time       `json:"exit_time"`
	TradeDate  string          `json:"trade_date"` // YYYY-MM-DD, derived from EntryTime only
	GrossPnL   float64         `json:"gross_pnl"`
	Fees       float64         `json:"fees"`
	NetPnL     float64         `json:"net_pnl"`
	Platform   Platform        `json:"platform"`
	Notes      string          `json:"notes,omitempty"`
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// TradeDate derives the canonical calendar date of a trade from its entry
// timestamp. No other timestamp or supplied date field is ever consulted.
func TradeDate(entry time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return entry.In(loc).Format(DateLayout)
}

// Validate checks the row-level rules enforced before insert.
func (t Trade) Validate() error {
	switch {
	case t.ID == "":
		return errors.New("trade id is required")
	case t.UserID == "":
		return errors.New("user id is required")
	case t.AccountID == "":
		return errors.New("account id is required")
	case t.Symbol == "":
		return errors.New("symbol is required")
	case !t.Side.Valid():
		return fmt.Errorf("invalid side %q", t.Side)
	case t.Quantity <= 0:
		return fmt.Errorf("quantity must be positive, got %d", t.Quantity)
	case t.EntryTime.IsZero():
		return errors.New("entry time is required")
	case t.TradeDate == "":
		return errors.New("trade date is required")
	}
	if pnl.Round(t.GrossPnL-t.Fees) != pnl.Round(t.NetPnL) {
		return fmt.Errorf("net pnl %.2f != gross %.2f - fees %.2f", t.NetPnL, t.GrossPnL, t.Fees)
	}
	return nil
}

// User is the minimal identity record the journal keeps.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Account is a trading account owned by a user on one platform.
type Account struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Platform  Platform  `json:"platform"`
	Name      string    `json:"name"`
	Balance   *float64  `json:"balance,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SnapshotRow is one (user, metric) analytics value encoded as JSON.
type SnapshotRow struct {
	UserID    string
	Metric    string
	Value     json.RawMessage
	UpdatedAt time.Time
}

// SnapshotBuilder computes the full set of snapshot rows from a user's trades.
// Metrics missing from the result are removed from the store.
type SnapshotBuilder func(trades []Trade) ([]SnapshotRow, error)

// Store is the relational store behind the ingestion core. Implementations
// enforce at-most-one account per (user, platform) and at-most-one snapshot
// row per (user, metric) with unique constraints and upserts.
type Store interface {
	UserExists(ctx context.Context, userID string) (bool, error)
	CreateUser(ctx context.Context, u User) error

	// EnsureAccount inserts the account unless one already exists for
	// (UserID, Platform) and returns whichever row is stored.
	EnsureAccount(ctx context.Context, a Account) (Account, error)
	GetAccount(ctx context.Context, accountID string) (Account, error)
	ListAccounts(ctx context.Context, userID string) ([]Account, error)

	InsertTrade(ctx context.Context, t Trade) error
	GetTrade(ctx context.Context, tradeID string) (Trade, error)
	ListTrades(ctx context.Context, userID string) ([]Trade, error)
	ListTradesBetween(ctx context.Context, userID, fromDate, toDate string) ([]Trade, error)
	DeleteTrade(ctx context.Context, userID, tradeID string) error

	// RebuildSnapshot reads the user's trades and replaces the user's
	// snapshot rows with build's output inside one transaction.
	RebuildSnapshot(ctx context.Context, userID string, build SnapshotBuilder) ([]SnapshotRow, error)
	ListSnapshot(ctx context.Context, userID string) ([]SnapshotRow, error)

	Close() error
}
