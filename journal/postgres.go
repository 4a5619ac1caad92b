package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/rustyeddy/futures-journal/pnl"
)

// Postgres is the server-side journal store.
type Postgres struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewPostgres connects to dsn, checks connectivity and applies migrations.
func NewPostgres(ctx context.Context, dsn string, log zerolog.Logger) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	pg := &Postgres{
		Pool: pool,
		log:  log.With().Str("component", "postgres").Logger(),
	}
	if err := pg.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	pg.log.Info().Str("database", poolConfig.ConnConfig.Database).Msg("connected to PostgreSQL")
	return pg, nil
}

// Migrate executes PostgresMigrations in order.
func (p *Postgres) Migrate(ctx context.Context) error {
	for i, migration := range PostgresMigrations {
		if _, err := p.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

func (p *Postgres) Close() error {
	p.Pool.Close()
	return nil
}

func (p *Postgres) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := p.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return exists, nil
}

func (p *Postgres) CreateUser(ctx context.Context, u User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := p.Pool.Exec(ctx, `
		INSERT INTO users (id, display_name, created_at)
		VALUES ($1, $2, $3)`,
		u.ID, u.DisplayName, u.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %q: %w", u.ID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// EnsureAccount relies on accounts_user_platform_key: ON CONFLICT waits for a
// concurrent inserter to commit, so the follow-up SELECT always sees the
// winning row.
func (p *Postgres) EnsureAccount(ctx context.Context, a Account) (Account, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := p.Pool.Exec(ctx, `
		INSERT INTO accounts (id, user_id, platform, name, balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, platform) DO NOTHING`,
		a.ID, a.UserID, string(a.Platform), a.Name, a.Balance, a.CreatedAt,
	)
	if err != nil {
		return Account{}, fmt.Errorf("failed to insert account: %w", err)
	}

	row := p.Pool.QueryRow(ctx, `
		SELECT id, user_id, platform, name, balance, created_at
		FROM accounts
		WHERE user_id = $1 AND platform = $2`, a.UserID, string(a.Platform))
	acct, err := scanPgAccount(row)
	if err != nil {
		return Account{}, fmt.Errorf("failed to fetch account: %w", err)
	}
	return acct, nil
}

func (p *Postgres) GetAccount(ctx context.Context, accountID string) (Account, error) {
	row := p.Pool.QueryRow(ctx, `
		SELECT id, user_id, platform, name, balance, created_at
		FROM accounts
		WHERE id = $1`, accountID)
	acct, err := scanPgAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("account %q: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	return acct, nil
}

func (p *Postgres) ListAccounts(ctx context.Context, userID string) ([]Account, error) {
	rows, err := p.Pool.Query(ctx, `
		SELECT id, user_id, platform, name, balance, created_at
		FROM accounts
		WHERE user_id = $1
		ORDER BY platform ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		acct, err := scanPgAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	return out, rows.Err()
}

func (p *Postgres) InsertTrade(ctx context.Context, t Trade) error {
	if err := t.Validate(); err != nil {
		return err
	}
	tradeDate, err := time.Parse(DateLayout, t.TradeDate)
	if err != nil {
		return fmt.Errorf("trade date %q: %w", t.TradeDate, err)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	payload := []byte(t.RawPayload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	_, err = p.Pool.Exec(ctx, `
		INSERT INTO trades
		(id, user_id, account_id, symbol, side, quantity, entry_price, exit_price,
		 entry_time, exit_time, trade_date, gross_pnl, fees, net_pnl,
		 platform, notes, raw_payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		t.ID, t.UserID, t.AccountID, t.Symbol, string(t.Side), t.Quantity,
		t.EntryPrice, t.ExitPrice, t.EntryTime.UTC(), t.ExitTime.UTC(), tradeDate,
		t.GrossPnL, t.Fees, t.NetPnL, string(t.Platform), t.Notes, payload, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", t.ID, err)
	}
	return nil
}

func (p *Postgres) GetTrade(ctx context.Context, tradeID string) (Trade, error) {
	row := p.Pool.QueryRow(ctx, `SELECT `+pgTradeColumns+` FROM trades WHERE id = $1`, tradeID)
	rec, err := scanPgTrade(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Trade{}, fmt.Errorf("trade %q: %w", tradeID, ErrNotFound)
	}
	if err != nil {
		return Trade{}, fmt.Errorf("failed to get trade: %w", err)
	}
	return rec, nil
}

func (p *Postgres) ListTrades(ctx context.Context, userID string) ([]Trade, error) {
	return pgListTrades(ctx, p.Pool, userID)
}

func (p *Postgres) ListTradesBetween(ctx context.Context, userID, fromDate, toDate string) ([]Trade, error) {
	rows, err := p.Pool.Query(ctx, `
		SELECT `+pgTradeColumns+`
		FROM trades
		WHERE user_id = $1 AND trade_date BETWEEN $2::date AND $3::date
		ORDER BY trade_date ASC, entry_time ASC, id ASC`, userID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return collectPgTrades(rows)
}

func (p *Postgres) DeleteTrade(ctx context.Context, userID, tradeID string) error {
	tag, err := p.Pool.Exec(ctx, `DELETE FROM trades WHERE id = $1 AND user_id = $2`, tradeID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trade %q: %w", tradeID, ErrNotFound)
	}
	return nil
}

// RebuildSnapshot serializes recomputation per user with a transaction
// scoped advisory lock; different users never contend.
func (p *Postgres) RebuildSnapshot(ctx context.Context, userID string, build SnapshotBuilder) ([]SnapshotRow, error) {
	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "analytics:"+userID); err != nil {
		return nil, fmt.Errorf("failed to lock snapshot: %w", err)
	}

	trades, err := pgListTrades(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	rows, err := build(trades)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	metrics := make([]string, 0, len(rows))
	batch := &pgx.Batch{}
	for i := range rows {
		rows[i].UserID = userID
		rows[i].UpdatedAt = now
		batch.Queue(`
			INSERT INTO analytics_snapshots (user_id, metric, value, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, metric) DO UPDATE SET
				value = EXCLUDED.value,
				updated_at = EXCLUDED.updated_at`,
			userID, rows[i].Metric, string(rows[i].Value), now)
		metrics = append(metrics, rows[i].Metric)
	}
	batch.Queue(`DELETE FROM analytics_snapshots WHERE user_id = $1 AND NOT (metric = ANY($2))`, userID, metrics)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return rows, nil
}

func (p *Postgres) ListSnapshot(ctx context.Context, userID string) ([]SnapshotRow, error) {
	rows, err := p.Pool.Query(ctx, `
		SELECT user_id, metric, value, updated_at
		FROM analytics_snapshots
		WHERE user_id = $1
		ORDER BY metric ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot: %w", err)
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

const pgTradeColumns = `id, user_id, account_id, symbol, side, quantity, entry_price, exit_price,
	entry_time, exit_time, trade_date, gross_pnl, fees, net_pnl,
	platform, notes, raw_payload, created_at`

type pgQueryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func pgListTrades(ctx context.Context, q pgQueryer, userID string) ([]Trade, error) {
	rows, err := q.Query(ctx, `
		SELECT `+pgTradeColumns+`
		FROM trades
		WHERE user_id = $1
		ORDER BY trade_date ASC, entry_time ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return collectPgTrades(rows)
}

func collectPgTrades(rows pgx.Rows) ([]Trade, error) {
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		rec, err := scanPgTrade(rows)
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

func scanPgTrade(s pgx.Row) (Trade, error) {
	var (
		rec       Trade
		side      string
		platform  string
		tradeDate time.Time
		payload   []byte
	)
	err := s.Scan(
		&rec.ID, &rec.UserID, &rec.AccountID, &rec.Symbol, &side, &rec.Quantity,
		&rec.EntryPrice, &rec.ExitPrice, &rec.EntryTime, &rec.ExitTime, &tradeDate,
		&rec.GrossPnL, &rec.Fees, &rec.NetPnL, &platform, &rec.Notes, &payload, &rec.CreatedAt,
	)
	if err != nil {
		return Trade{}, err
	}
	rec.Side = pnl.Side(side)
	rec.Platform = Platform(platform)
	rec.TradeDate = tradeDate.Format(DateLayout)
	rec.RawPayload = payload
	rec.EntryTime = rec.EntryTime.UTC()
	rec.ExitTime = rec.ExitTime.UTC()
	return rec, nil
}

func scanPgAccount(s pgx.Row) (Account, error) {
	var (
		a        Account
		platform string
	)
	if err := s.Scan(&a.ID, &a.UserID, &platform, &a.Name, &a.Balance, &a.CreatedAt); err != nil {
		return Account{}, err
	}
	a.Platform = Platform(platform)
	return a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
