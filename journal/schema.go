// journal/schema.go
package journal

// Schema is the SQLite schema. Accounts carry a (id, user_id) key so the
// trades foreign key pins every trade to an account of the same user.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	platform TEXT NOT NULL,
	name TEXT NOT NULL,
	balance REAL,
	created_at DATETIME NOT NULL,
	UNIQUE (user_id, platform),
	UNIQUE (id, user_id)
);

CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	account_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL CHECK (side IN ('long', 'short')),
	quantity INTEGER NOT NULL CHECK (quantity > 0),
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	entry_time DATETIME NOT NULL,
	exit_time DATETIME NOT NULL,
	trade_date TEXT NOT NULL,
	gross_pnl REAL NOT NULL,
	fees REAL NOT NULL,
	net_pnl REAL NOT NULL,
	platform TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	raw_payload TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL,
	FOREIGN KEY (account_id, user_id) REFERENCES accounts(id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_trades_user_date ON trades(user_id, trade_date);

CREATE TABLE IF NOT EXISTS analytics_snapshots (
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	metric TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (user_id, metric)
);
`

// PostgresMigrations are applied in order by (*Postgres).Migrate.
var PostgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		platform VARCHAR(20) NOT NULL,
		name TEXT NOT NULL,
		balance NUMERIC(20, 2),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT accounts_user_platform_key UNIQUE (user_id, platform),
		CONSTRAINT accounts_id_user_key UNIQUE (id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		account_id TEXT NOT NULL,
		symbol VARCHAR(20) NOT NULL,
		side VARCHAR(5) NOT NULL CHECK (side IN ('long', 'short')),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		entry_price NUMERIC(20, 8) NOT NULL,
		exit_price NUMERIC(20, 8) NOT NULL,
		entry_time TIMESTAMPTZ NOT NULL,
		exit_time TIMESTAMPTZ NOT NULL,
		trade_date DATE NOT NULL,
		gross_pnl NUMERIC(20, 2) NOT NULL,
		fees NUMERIC(20, 2) NOT NULL,
		net_pnl NUMERIC(20, 2) NOT NULL,
		platform VARCHAR(20) NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		raw_payload JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT trades_account_owner_fkey FOREIGN KEY (account_id, user_id) REFERENCES accounts(id, user_id),
		CONSTRAINT trades_net_pnl_check CHECK (net_pnl = gross_pnl - fees)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_user_date ON trades(user_id, trade_date)`,

	`CREATE TABLE IF NOT EXISTS analytics_snapshots (
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		metric VARCHAR(64) NOT NULL,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, metric)
	)`,
}
