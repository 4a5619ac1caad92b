package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// SQLite is the embedded journal store.
type SQLite struct {
	db *sql.DB
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSQLite opens (creating if needed) the journal database at path and
// applies Schema. Writers wait on the busy timeout and transactions start
// with BEGIN IMMEDIATE so concurrent ingestions serialize instead of failing.
func NewSQLite(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on&_txlock=immediate&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

func (j *SQLite) UserExists(ctx context.Context, userID string) (bool, error) {
	var one int
	err := j.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (j *SQLite) CreateUser(ctx context.Context, u User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, created_at)
		VALUES (?, ?, ?)`,
		u.ID, u.DisplayName, u.CreatedAt,
	)
	if isConstraint(err) {
		return fmt.Errorf("user %q: %w", u.ID, ErrDuplicate)
	}
	return err
}

// EnsureAccount is an atomic insert-or-fetch on the (user_id, platform)
// unique key. Concurrent callers for the same pair all observe the one row
// that won the insert.
func (j *SQLite) EnsureAccount(ctx context.Context, a Account) (Account, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO accounts (id, user_id, platform, name, balance, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, platform) DO NOTHING`,
		a.ID, a.UserID, string(a.Platform), a.Name, nullFloat(a.Balance), a.CreatedAt,
	)
	if err != nil {
		return Account{}, err
	}

	row := j.db.QueryRowContext(ctx, `
		SELECT id, user_id, platform, name, balance, created_at
		FROM accounts
		WHERE user_id = ? AND platform = ?`, a.UserID, string(a.Platform))
	return scanAccount(row)
}

func (j *SQLite) GetAccount(ctx context.Context, accountID string) (Account, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT id, user_id, platform, name, balance, created_at
		FROM accounts
		WHERE id = ?`, accountID)
	acct, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, fmt.Errorf("account %q: %w", accountID, ErrNotFound)
	}
	return acct, err
}

func (j *SQLite) ListAccounts(ctx context.Context, userID string) ([]Account, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, user_id, platform, name, balance, created_at
		FROM accounts
		WHERE user_id = ?
		ORDER BY platform ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	return out, rows.Err()
}

func (j *SQLite) InsertTrade(ctx context.Context, t Trade) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	payload := string(t.RawPayload)
	if payload == "" {
		payload = "{}"
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO trades
		(id, user_id, account_id, symbol, side, quantity, entry_price, exit_price,
		 entry_time, exit_time, trade_date, gross_pnl, fees, net_pnl,
		 platform, notes, raw_payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.AccountID, t.Symbol, string(t.Side), t.Quantity,
		t.EntryPrice, t.ExitPrice, t.EntryTime.UTC(), t.ExitTime.UTC(), t.TradeDate,
		t.GrossPnL, t.Fees, t.NetPnL, string(t.Platform), t.Notes, payload, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", t.ID, err)
	}
	return nil
}

func (j *SQLite) DeleteTrade(ctx context.Context, userID, tradeID string) error {
	res, err := j.db.ExecContext(ctx, `DELETE FROM trades WHERE id = ? AND user_id = ?`, tradeID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("trade %q: %w", tradeID, ErrNotFound)
	}
	return nil
}

// RebuildSnapshot runs under BEGIN IMMEDIATE, so the trade read and the
// snapshot write see one consistent state even with concurrent ingestions.
func (j *SQLite) RebuildSnapshot(ctx context.Context, userID string, build SnapshotBuilder) ([]SnapshotRow, error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	trades, err := listTrades(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	rows, err := build(trades)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	keep := make([]any, 0, len(rows)+1)
	keep = append(keep, userID)
	for i := range rows {
		rows[i].UserID = userID
		rows[i].UpdatedAt = now
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO analytics_snapshots (user_id, metric, value, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, metric) DO UPDATE SET
				value = excluded.value,
				updated_at = excluded.updated_at`,
			userID, rows[i].Metric, string(rows[i].Value), now,
		); err != nil {
			return nil, fmt.Errorf("upsert metric %s: %w", rows[i].Metric, err)
		}
		keep = append(keep, rows[i].Metric)
	}

	del := `DELETE FROM analytics_snapshots WHERE user_id = ?`
	if len(rows) > 0 {
		del += ` AND metric NOT IN (` + placeholders(len(rows)) + `)`
	}
	if _, err := tx.ExecContext(ctx, del, keep...); err != nil {
		return nil, fmt.Errorf("prune snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return rows, nil
}

func (j *SQLite) ListSnapshot(ctx context.Context, userID string) ([]SnapshotRow, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT user_id, metric, value, updated_at
		FROM analytics_snapshots
		WHERE user_id = ?
		ORDER BY metric ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var (
			r     SnapshotRow
			value string
		)
		if err := rows.Scan(&r.UserID, &r.Metric, &value, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Value = []byte(value)
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(s rowScanner) (Account, error) {
	var (
		a        Account
		platform string
		balance  sql.NullFloat64
	)
	if err := s.Scan(&a.ID, &a.UserID, &platform, &a.Name, &balance, &a.CreatedAt); err != nil {
		return Account{}, err
	}
	a.Platform = Platform(platform)
	if balance.Valid {
		b := balance.Float64
		a.Balance = &b
	}
	return a, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isConstraint(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrConstraint
	}
	return false
}
