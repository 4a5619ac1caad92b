//go:build blackbox

package blackbox

import (
	"database/sql"
	"encoding/json"
	"math"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

const topstepExport = `symbol,side,qty,entry_price,exit_price,entry_time,exit_time,fees
ESH4,long,1,4800,4801,2024-01-08T15:00:00Z,2024-01-08T15:05:00Z,
ESH4,short,2,4801,4800,2024-01-09T15:00:00Z,2024-01-09T15:05:00Z,
NQH4,long,1,17000,16990,2024-01-09T16:00:00Z,2024-01-09T16:05:00Z,2.80
NQH4,long,1,17000,,2024-01-10T16:00:00Z,2024-01-10T16:05:00Z,
`

func TestImportStoresTradesAndSnapshot(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "journal.sqlite")
	export := writeFile(t, dir, "topstep.csv", topstepExport)

	run(t, dir, "--db", dbPath, "user", "add", "trader1")
	out := run(t, dir, "--db", dbPath, "import", "--user", "trader1", "--platform", "topstepx", "--file", export)
	if !contains(out, "Imported 3 of 4 rows") {
		t.Fatalf("expected 3 of 4 rows imported, got:\n%s", out)
	}
	if !contains(out, "row 3 [parse]") {
		t.Fatalf("expected row 3 to be rejected, got:\n%s", out)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var n int
	var net float64
	if err := db.QueryRow(`SELECT COUNT(*), SUM(net_pnl) FROM trades WHERE user_id = 'trader1'`).Scan(&n, &net); err != nil {
		t.Fatal(err)
	}
	// 47 + 94 + (-200 - 2.80)
	if n != 3 || math.Abs(net+61.8) > 1e-9 {
		t.Fatalf("expected 3 trades netting -61.80, got %d / %.2f", n, net)
	}

	var raw string
	if err := db.QueryRow(`SELECT value FROM analytics_snapshots WHERE user_id = 'trader1' AND metric = 'total_pnl'`).Scan(&raw); err != nil {
		t.Fatal(err)
	}
	var total float64
	if err := json.Unmarshal([]byte(raw), &total); err != nil {
		t.Fatal(err)
	}
	if total != -61.8 {
		t.Fatalf("expected total_pnl -61.8, got %s", raw)
	}

	var accounts int
	if err := db.QueryRow(`SELECT COUNT(*) FROM accounts WHERE user_id = 'trader1'`).Scan(&accounts); err != nil {
		t.Fatal(err)
	}
	if accounts != 1 {
		t.Fatalf("expected one account, got %d", accounts)
	}
}

func TestImportUnknownUserFails(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "journal.sqlite")
	export := writeFile(t, dir, "topstep.csv", topstepExport)

	out := runFail(t, dir, "--db", dbPath, "import", "--user", "ghost", "--platform", "topstepx", "--file", export)
	if !contains(out, "user not found") {
		t.Fatalf("expected user not found, got:\n%s", out)
	}
}

func TestPnLCalculator(t *testing.T) {
	out := run(t, t.TempDir(), "pnl", "--symbol", "MNQZ4", "--qty", "10", "--entry", "15000", "--exit", "15005")
	if !contains(out, "Net P/L:   93.00") {
		t.Fatalf("unexpected pnl output:\n%s", out)
	}
}
