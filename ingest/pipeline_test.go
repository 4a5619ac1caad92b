package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/futures-journal/analytics"
	"github.com/rustyeddy/futures-journal/journal"
)

func newTestStore(t *testing.T, users ...string) *journal.SQLite {
	t.Helper()

	store, err := journal.NewSQLite(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	for _, u := range users {
		require.NoError(t, store.CreateUser(context.Background(), journal.User{ID: u, DisplayName: u}))
	}
	return store
}

func newTestPipeline(t *testing.T, store *journal.SQLite, opts Options) *Pipeline {
	t.Helper()
	opts.Logger = zerolog.Nop()
	return NewPipeline(store, analytics.NewAggregator(store, zerolog.Nop()), opts)
}

func tradeRow(symbol, side string, qty int, entry, exit float64, at time.Time) Row {
	return Row{
		"symbol":      symbol,
		"side":        side,
		"quantity":    fmt.Sprint(qty),
		"entry_price": fmt.Sprint(entry),
		"exit_price":  fmt.Sprint(exit),
		"entry_time":  at.Format(time.RFC3339),
		"exit_time":   at.Add(10 * time.Minute).Format(time.RFC3339),
	}
}

func TestIngestPricesAndPersists(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, "alice")
	p := newTestPipeline(t, store, Options{})
	ctx := context.Background()

	at := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	res, err := p.Ingest(ctx, Request{
		UserID:   "alice",
		Platform: "Tradovate",
		Rows: []Row{
			tradeRow("NQZ4", "long", 10, 24970.75, 24971.25, at),
			tradeRow("MNQZ4", "buy", 10, 15000, 15005, at.Add(time.Hour)),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ProcessedCount)
	assert.Equal(t, 0, res.ErrorCount)
	assert.Equal(t, journal.PlatformTradovate, res.Platform)
	assert.NotEmpty(t, res.AccountID)
	assert.Empty(t, res.AggregationError)

	nq, err := store.GetTrade(ctx, res.Rows[0].TradeID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, nq.GrossPnL)
	assert.Equal(t, 30.0, nq.Fees)
	assert.Equal(t, 70.0, nq.NetPnL)
	assert.Equal(t, "2024-03-15", nq.TradeDate)
	assert.Equal(t, res.AccountID, nq.AccountID)
	assert.Equal(t, journal.PlatformTradovate, nq.Platform)

	mnq, err := store.GetTrade(ctx, res.Rows[1].TradeID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, mnq.GrossPnL)
	assert.Equal(t, 7.0, mnq.Fees)
	assert.Equal(t, 93.0, mnq.NetPnL)

	require.NotNil(t, res.Snapshot)
	total, ok := res.Snapshot.Float(analytics.MetricTotalTrades)
	require.True(t, ok)
	assert.Equal(t, 2.0, total)
	pnlTotal, ok := res.Snapshot.Float(analytics.MetricTotalPnL)
	require.True(t, ok)
	assert.Equal(t, 163.0, pnlTotal)

	accounts, err := store.ListAccounts(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "Tradovate Account", accounts[0].Name)
}

func TestIngestIsolatesBadRows(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, "alice")
	p := newTestPipeline(t, store, Options{})
	ctx := context.Background()

	at := time.Date(2024, 1, 8, 15, 0, 0, 0, time.UTC)
	rows := make([]Row, 6)
	for i := range rows {
		rows[i] = tradeRow("ESH4", "long", 1, 4800, 4801, at.Add(time.Duration(i)*time.Minute))
	}
	const bad = 3
	delete(rows[bad], "entry_price")

	res, err := p.Ingest(ctx, Request{UserID: "alice", Platform: "topstepx", Rows: rows})
	require.NoError(t, err)

	assert.Equal(t, len(rows)-1, res.ProcessedCount)
	assert.Equal(t, 1, res.ErrorCount)
	require.Len(t, res.Rows, len(rows))

	for i, r := range res.Rows {
		assert.Equal(t, i, r.RowIndex)
		if i == bad {
			assert.False(t, r.Success)
			assert.Equal(t, StageParse, r.Stage)
			assert.Equal(t, FieldEntryPrice, r.Field)
			assert.ErrorIs(t, r.Err, ErrMissingField)
			assert.Contains(t, r.Error, "entry_price")
			assert.Empty(t, r.TradeID)
			continue
		}
		assert.True(t, r.Success)
		assert.NotEmpty(t, r.TradeID)
	}

	trades, err := store.ListTrades(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, trades, len(rows)-1)
}

func TestIngestTradeDateFromEntryOnly(t *testing.T) {
	t.Parallel()

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	store := newTestStore(t, "alice")
	p := newTestPipeline(t, store, Options{Location: ny})
	ctx := context.Background()

	row := Row{
		"symbol":      "NQH4",
		"side":        "short",
		"quantity":    "1",
		"entry_price": "17000",
		"exit_price":  "16990",
		"entry_time":  "2024-02-01T23:50:00-05:00",
		"exit_time":   "2024-02-02T00:20:00-05:00",
		"date":        "2024-02-05",
		"TradeDay":    "2024-02-06",
	}
	res, err := p.Ingest(ctx, Request{UserID: "alice", Platform: "tradovate", Rows: []Row{row}})
	require.NoError(t, err)
	require.Equal(t, 1, res.ProcessedCount)

	tr, err := store.GetTrade(ctx, res.Rows[0].TradeID)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01", tr.TradeDate)
	assert.Equal(t, 200.0, tr.GrossPnL)

	daily, ok := res.Snapshot.Buckets(analytics.MetricDailyPnL)
	require.True(t, ok)
	assert.Contains(t, daily, "2024-02-01")
	assert.Len(t, daily, 1)
}

func TestIngestPreconditions(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, "alice", "bob")
	p := newTestPipeline(t, store, Options{MaxBatchRows: 2})
	ctx := context.Background()

	row := tradeRow("ESH4", "long", 1, 4800, 4801, time.Now())
	bobAcct, err := p.ResolveAccount(ctx, "bob", journal.PlatformTradovate)
	require.NoError(t, err)

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"unknown user", Request{UserID: "mallory", Platform: "tradovate", Rows: []Row{row}}, ErrUserNotFound},
		{"empty user", Request{UserID: "", Platform: "tradovate", Rows: []Row{row}}, ErrUserNotFound},
		{"unknown platform", Request{UserID: "alice", Platform: "ninjatrader", Rows: []Row{row}}, ErrUnknownPlatform},
		{"batch too large", Request{UserID: "alice", Platform: "tradovate", Rows: []Row{row, row, row}}, ErrBatchTooLarge},
		{"foreign account", Request{UserID: "alice", Platform: "tradovate", AccountID: bobAcct.ID, Rows: []Row{row}}, ErrAccountResolutionFailed},
		{"missing account", Request{UserID: "alice", Platform: "tradovate", AccountID: "nope", Rows: []Row{row}}, ErrAccountResolutionFailed},
		{"wrong platform account", Request{UserID: "bob", Platform: "topstepx", AccountID: bobAcct.ID, Rows: []Row{row}}, ErrAccountResolutionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := p.Ingest(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, res)
		})
	}

	accounts, err := store.ListAccounts(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, accounts, "failed preconditions must not create accounts")

	trades, err := store.ListTrades(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestIngestExplicitAccount(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, "alice")
	p := newTestPipeline(t, store, Options{})
	ctx := context.Background()

	acct, err := p.ResolveAccount(ctx, "alice", journal.PlatformTopstepX)
	require.NoError(t, err)

	res, err := p.Ingest(ctx, Request{
		UserID:    "alice",
		Platform:  "topstepx",
		AccountID: acct.ID,
		Rows:      []Row{tradeRow("ESH4", "long", 1, 4800, 4801, time.Now().Add(-time.Hour))},
	})
	require.NoError(t, err)
	assert.Equal(t, acct.ID, res.AccountID)
	assert.Equal(t, 1, res.ProcessedCount)
}

func TestResolveAccountConcurrent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, "alice")
	p := newTestPipeline(t, store, Options{})
	ctx := context.Background()

	const n = 10
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acct, err := p.ResolveAccount(ctx, "alice", journal.PlatformTradovate)
			ids[i], errs[i] = acct.ID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	accounts, err := store.ListAccounts(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestResolveAccountPerPlatform(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, "alice")
	p := newTestPipeline(t, store, Options{})
	ctx := context.Background()

	tv, err := p.ResolveAccount(ctx, "alice", journal.PlatformTradovate)
	require.NoError(t, err)
	tx, err := p.ResolveAccount(ctx, "alice", journal.PlatformTopstepX)
	require.NoError(t, err)
	assert.NotEqual(t, tv.ID, tx.ID)
	assert.Equal(t, "TopstepX Account", tx.Name)

	again, err := p.ResolveAccount(ctx, "alice", journal.PlatformTradovate)
	require.NoError(t, err)
	assert.Equal(t, tv.ID, again.ID)
}

type failingRecomputer struct{}

func (failingRecomputer) Recompute(context.Context, string) (*analytics.Snapshot, error) {
	return nil, errors.New("snapshot table locked")
}

func TestIngestAggregationFailureKeepsTrades(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, "alice")
	p := NewPipeline(store, failingRecomputer{}, Options{Logger: zerolog.Nop()})
	ctx := context.Background()

	res, err := p.Ingest(ctx, Request{
		UserID:   "alice",
		Platform: "tradovate",
		Rows:     []Row{tradeRow("ESH4", "long", 1, 4800, 4801, time.Now().Add(-time.Hour))},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ProcessedCount)
	assert.Contains(t, res.AggregationError, ErrAggregationFailed.Error())
	assert.Contains(t, res.AggregationError, "snapshot table locked")
	assert.Nil(t, res.Snapshot)

	trades, err := store.ListTrades(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestIngestNoSuccessSkipsAggregation(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, "alice")
	p := NewPipeline(store, failingRecomputer{}, Options{Logger: zerolog.Nop()})

	res, err := p.Ingest(context.Background(), Request{
		UserID:   "alice",
		Platform: "tradovate",
		Rows:     []Row{{"symbol": "ESH4"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ProcessedCount)
	assert.Equal(t, 1, res.ErrorCount)
	assert.Empty(t, res.AggregationError)
}

// flakyStore fails every insert of one symbol and can cancel the batch
// context after the first successful insert.
type flakyStore struct {
	*journal.SQLite
	failSymbol string
	cancel     context.CancelFunc
}

func (s *flakyStore) InsertTrade(ctx context.Context, t journal.Trade) error {
	if t.Symbol == s.failSymbol {
		return errors.New("disk full")
	}
	if err := s.SQLite.InsertTrade(ctx, t); err != nil {
		return err
	}
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func TestIngestPersistenceFailure(t *testing.T) {
	t.Parallel()

	base := newTestStore(t, "alice")
	store := &flakyStore{SQLite: base, failSymbol: "CLF5"}
	p := NewPipeline(store, analytics.NewAggregator(base, zerolog.Nop()), Options{Logger: zerolog.Nop()})

	at := time.Date(2024, 12, 2, 15, 0, 0, 0, time.UTC)
	res, err := p.Ingest(context.Background(), Request{
		UserID:   "alice",
		Platform: "tradovate",
		Rows: []Row{
			tradeRow("CLF5", "long", 1, 70.00, 70.10, at),
			tradeRow("ESH5", "long", 1, 6000, 6001, at),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ProcessedCount)
	assert.Equal(t, StagePersist, res.Rows[0].Stage)
	assert.ErrorIs(t, res.Rows[0].Err, ErrPersistenceFailed)
	assert.True(t, res.Rows[1].Success)
}

func TestIngestContextCancelledMidBatch(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	base := newTestStore(t, "alice")
	store := &flakyStore{SQLite: base, cancel: cancel}
	p := NewPipeline(store, analytics.NewAggregator(base, zerolog.Nop()), Options{Logger: zerolog.Nop()})

	at := time.Date(2024, 12, 2, 15, 0, 0, 0, time.UTC)
	res, err := p.Ingest(ctx, Request{
		UserID:   "alice",
		Platform: "tradovate",
		Rows: []Row{
			tradeRow("ESH5", "long", 1, 6000, 6001, at),
			tradeRow("ESH5", "long", 1, 6000, 6002, at),
			tradeRow("ESH5", "long", 1, 6000, 6003, at),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ProcessedCount)
	assert.Equal(t, 2, res.ErrorCount)
	for _, r := range res.Rows[1:] {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}

	// the stored trade is still reflected in analytics
	require.NotNil(t, res.Snapshot)
	total, ok := res.Snapshot.Float(analytics.MetricTotalTrades)
	require.True(t, ok)
	assert.Equal(t, 1.0, total)
}

func TestPipelineDeleteTrade(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, "alice", "bob")
	p := newTestPipeline(t, store, Options{})
	ctx := context.Background()

	may := time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)
	june := time.Date(2024, 6, 10, 14, 0, 0, 0, time.UTC)
	res, err := p.Ingest(ctx, Request{
		UserID:   "alice",
		Platform: "tradovate",
		Rows: []Row{
			tradeRow("ESM4", "long", 1, 5000, 5002, may),                  // +97
			tradeRow("ESM4", "long", 1, 5000, 5004, june),                 // +197
			tradeRow("ESM4", "short", 1, 5000, 5002, june.Add(time.Hour)), // -103
		},
	})
	require.NoError(t, err)
	require.Equal(t, 3, res.ProcessedCount)
	assertFloat(t, res.Snapshot, analytics.MetricTotalPnL, 191)

	_, err = p.DeleteTrade(ctx, "bob", res.Rows[0].TradeID)
	assert.ErrorIs(t, err, journal.ErrNotFound)
	_, err = p.DeleteTrade(ctx, "alice", "not-a-trade-id")
	assert.ErrorIs(t, err, journal.ErrNotFound)

	del, err := p.DeleteTrade(ctx, "alice", res.Rows[1].TradeID)
	require.NoError(t, err)
	assert.Equal(t, res.Rows[1].TradeID, del.TradeID)
	assert.Empty(t, del.AggregationError)
	require.NotNil(t, del.Snapshot)
	assertFloat(t, del.Snapshot, analytics.MetricTotalTrades, 2)
	assertFloat(t, del.Snapshot, analytics.MetricTotalPnL, -6)
	assertFloat(t, del.Snapshot, analytics.MetricLargestWin, 97)
	assertFloat(t, del.Snapshot, analytics.MetricLargestLoss, -103)
	daily, ok := del.Snapshot.Buckets(analytics.MetricDailyPnL)
	require.True(t, ok)
	assert.Equal(t, map[string]float64{"2024-05-01": 97, "2024-06-10": -103}, daily)

	del, err = p.DeleteTrade(ctx, "alice", res.Rows[2].TradeID)
	require.NoError(t, err)
	snap := del.Snapshot
	require.NotNil(t, snap)
	assertFloat(t, snap, analytics.MetricTotalTrades, 1)
	assertFloat(t, snap, analytics.MetricLosingTrades, 0)
	assertFloat(t, snap, analytics.MetricTotalPnL, 97)
	assertFloat(t, snap, analytics.MetricLargestLoss, 0)

	buckets := map[string]map[string]float64{
		analytics.MetricDailyPnL:   {"2024-05-01": 97},
		analytics.MetricWeeklyPnL:  {"2024-04-29": 97},
		analytics.MetricMonthlyPnL: {"2024-05": 97},
	}
	for metric, want := range buckets {
		got, ok := snap.Buckets(metric)
		require.True(t, ok, metric)
		assert.Equal(t, want, got, metric)
	}

	stored, err := analytics.NewAggregator(store, zerolog.Nop()).Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, snap.Values, stored.Values)
}

func TestPipelineDeleteTradeAggregationFailure(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, "alice")
	p := NewPipeline(store, failingRecomputer{}, Options{Logger: zerolog.Nop()})
	ctx := context.Background()

	res, err := p.Ingest(ctx, Request{
		UserID:   "alice",
		Platform: "tradovate",
		Rows:     []Row{tradeRow("ESH4", "long", 1, 4800, 4801, time.Now().Add(-time.Hour))},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.ProcessedCount)

	del, err := p.DeleteTrade(ctx, "alice", res.Rows[0].TradeID)
	require.NoError(t, err)
	assert.Equal(t, res.Rows[0].TradeID, del.TradeID)
	assert.Contains(t, del.AggregationError, ErrAggregationFailed.Error())
	assert.Nil(t, del.Snapshot)

	trades, err := store.ListTrades(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, trades)

	_, err = p.DeleteTrade(ctx, "alice", res.Rows[0].TradeID)
	assert.ErrorIs(t, err, journal.ErrNotFound)
}

func assertFloat(t *testing.T, snap *analytics.Snapshot, metric string, want float64) {
	t.Helper()
	require.NotNil(t, snap)
	got, ok := snap.Float(metric)
	require.True(t, ok, metric)
	assert.Equal(t, want, got, metric)
}
