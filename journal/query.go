package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rustyeddy/futures-journal/pnl"
)

const tradeColumns = `id, user_id, account_id, symbol, side, quantity, entry_price, exit_price,
	entry_time, exit_time, trade_date, gross_pnl, fees, net_pnl,
	platform, notes, raw_payload, created_at`

// GetTrade returns a single trade by ID.
func (j *SQLite) GetTrade(ctx context.Context, tradeID string) (Trade, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = ?`, tradeID)
	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Trade{}, fmt.Errorf("trade %q: %w", tradeID, ErrNotFound)
		}
		return Trade{}, err
	}
	return rec, nil
}

// ListTrades returns every trade of a user in aggregation order:
// trade_date, then entry_time, then id.
func (j *SQLite) ListTrades(ctx context.Context, userID string) ([]Trade, error) {
	return listTrades(ctx, j.db, userID)
}

// ListTradesBetween returns a user's trades whose trade_date is within
// [fromDate, toDate], both YYYY-MM-DD.
func (j *SQLite) ListTradesBetween(ctx context.Context, userID, fromDate, toDate string) ([]Trade, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE user_id = ? AND trade_date >= ? AND trade_date <= ?
		ORDER BY trade_date ASC, entry_time ASC, id ASC`, userID, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	return collectTrades(rows)
}

func listTrades(ctx context.Context, q queryer, userID string) ([]Trade, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE user_id = ?
		ORDER BY trade_date ASC, entry_time ASC, id ASC`, userID)
	if err != nil {
		return nil, err
	}
	return collectTrades(rows)
}

func collectTrades(rows *sql.Rows) ([]Trade, error) {
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanTrade(s rowScanner) (Trade, error) {
	var (
		rec      Trade
		side     string
		platform string
		payload  string
	)
	err := s.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.AccountID,
		&rec.Symbol,
		&side,
		&rec.Quantity,
		&rec.EntryPrice,
		&rec.ExitPrice,
		&rec.EntryTime,
		&rec.ExitTime,
		&rec.TradeDate,
		&rec.GrossPnL,
		&rec.Fees,
		&rec.NetPnL,
		&platform,
		&rec.Notes,
		&payload,
		&rec.CreatedAt,
	)
	if err != nil {
		return Trade{}, err
	}
	rec.Side = pnl.Side(side)
	rec.Platform = Platform(platform)
	rec.RawPayload = []byte(payload)
	rec.EntryTime = rec.EntryTime.UTC()
	rec.ExitTime = rec.ExitTime.UTC()
	return rec, nil
}
