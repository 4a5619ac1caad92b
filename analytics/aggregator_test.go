package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/futures-journal/journal"
	"github.com/rustyeddy/futures-journal/pnl"
)

func newStoreWithTrades(t *testing.T, userID string, nets ...float64) *journal.SQLite {
	t.Helper()
	ctx := context.Background()

	store, err := journal.NewSQLite(filepath.Join(t.TempDir(), "analytics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.CreateUser(ctx, journal.User{ID: userID}))
	acct, err := store.EnsureAccount(ctx, journal.Account{
		ID: "acct-" + userID, UserID: userID, Platform: journal.PlatformTradovate, Name: "Tradovate Account",
	})
	require.NoError(t, err)

	start := time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)
	for i, net := range nets {
		entry := start.AddDate(0, 0, i)
		require.NoError(t, store.InsertTrade(ctx, journal.Trade{
			ID:         userID + "-" + string(rune('a'+i)),
			UserID:     userID,
			AccountID:  acct.ID,
			Symbol:     "ESH4",
			Side:       pnl.Long,
			Quantity:   1,
			EntryPrice: 4800,
			ExitPrice:  4801,
			EntryTime:  entry,
			ExitTime:   entry.Add(time.Minute),
			TradeDate:  journal.TradeDate(entry, time.UTC),
			GrossPnL:   pnl.Round(net + 3),
			Fees:       3,
			NetPnL:     net,
			Platform:   journal.PlatformTradovate,
		}))
	}
	return store
}

func TestRecomputeStoresEveryMetric(t *testing.T) {
	t.Parallel()

	store := newStoreWithTrades(t, "u1", 100, -40, 25)
	agg := NewAggregator(store, zerolog.Nop())

	snap, err := agg.Recompute(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, snap.Failures)
	assert.Len(t, snap.Values, len(DefaultMetrics()))

	total, ok := snap.Float(MetricTotalPnL)
	require.True(t, ok)
	assert.Equal(t, 85.0, total)

	rate, ok := snap.Float(MetricWinRate)
	require.True(t, ok)
	assert.Equal(t, 66.67, rate)

	monthly, ok := snap.Buckets(MetricMonthlyPnL)
	require.True(t, ok)
	assert.Equal(t, map[string]float64{"2024-01": 85}, monthly)

	rows, err := store.ListSnapshot(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, rows, len(DefaultMetrics()))
}

func TestRecomputeIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newStoreWithTrades(t, "u1", 12.34, -5.67, 0, 8.9)
	agg := NewAggregator(store, zerolog.Nop())
	ctx := context.Background()

	first, err := agg.Recompute(ctx, "u1")
	require.NoError(t, err)
	second, err := agg.Recompute(ctx, "u1")
	require.NoError(t, err)

	require.Equal(t, first.Metrics(), second.Metrics())
	for _, name := range first.Metrics() {
		assert.True(t, bytes.Equal(first.Values[name], second.Values[name]), "metric %s changed", name)
	}

	rows, err := store.ListSnapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, rows, len(DefaultMetrics()), "one row per metric")
}

func TestRecomputeWithNoTrades(t *testing.T) {
	t.Parallel()

	store := newStoreWithTrades(t, "u1")
	agg := NewAggregator(store, zerolog.Nop())

	snap, err := agg.Recompute(context.Background(), "u1")
	require.NoError(t, err)

	assert.JSONEq(t, "0", string(snap.Values[MetricTotalTrades]))
	assert.JSONEq(t, "null", string(snap.Values[MetricWinRate]))
	_, ok := snap.Float(MetricWinRate)
	assert.False(t, ok)
	assert.JSONEq(t, "{}", string(snap.Values[MetricDailyPnL]))
}

func TestRecomputeIsolatesFailingMetric(t *testing.T) {
	t.Parallel()

	store := newStoreWithTrades(t, "u1", 10, 20)
	ctx := context.Background()

	healthy := NewAggregator(store, zerolog.Nop())
	_, err := healthy.Recompute(ctx, "u1")
	require.NoError(t, err)

	metrics := DefaultMetrics()
	metrics = append(metrics,
		Metric{Name: "exploding", Compute: func([]journal.Trade) (any, error) { panic("boom") }},
		Metric{Name: "broken", Compute: func([]journal.Trade) (any, error) { return nil, errors.New("bad input") }},
	)
	// total_pnl fails this round; its stale row must go away
	for i := range metrics {
		if metrics[i].Name == MetricTotalPnL {
			metrics[i].Compute = func([]journal.Trade) (any, error) { return nil, errors.New("overflow") }
		}
	}

	agg := NewAggregator(store, zerolog.Nop(), metrics...)
	snap, err := agg.Recompute(ctx, "u1")
	require.NoError(t, err)

	assert.Len(t, snap.Failures, 3)
	assert.Contains(t, snap.Failures["exploding"], "boom")
	assert.Equal(t, "bad input", snap.Failures["broken"])
	assert.Equal(t, "overflow", snap.Failures[MetricTotalPnL])

	total, ok := snap.Float(MetricTotalTrades)
	require.True(t, ok)
	assert.Equal(t, 2.0, total)

	stored, err := agg.Load(ctx, "u1")
	require.NoError(t, err)
	assert.NotContains(t, stored.Values, MetricTotalPnL)
	assert.NotContains(t, stored.Values, "exploding")
	assert.Contains(t, stored.Values, MetricWinRate)
}

func TestRecomputeConcurrentSingleRowPerMetric(t *testing.T) {
	t.Parallel()

	store := newStoreWithTrades(t, "u1", 1, 2, 3)
	agg := NewAggregator(store, zerolog.Nop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := agg.Recompute(ctx, "u1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rows, err := store.ListSnapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, rows, len(DefaultMetrics()))
}

type brokenStore struct{}

func (brokenStore) RebuildSnapshot(context.Context, string, journal.SnapshotBuilder) ([]journal.SnapshotRow, error) {
	return nil, errors.New("database is locked")
}

func (brokenStore) ListSnapshot(context.Context, string) ([]journal.SnapshotRow, error) {
	return nil, errors.New("database is locked")
}

func TestRecomputeStoreFailure(t *testing.T) {
	t.Parallel()

	agg := NewAggregator(brokenStore{}, zerolog.Nop())
	_, err := agg.Recompute(context.Background(), "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "u1")
	assert.Contains(t, err.Error(), "database is locked")

	_, err = agg.Load(context.Background(), "u1")
	assert.Error(t, err)
}

func TestWriteOrg(t *testing.T) {
	t.Parallel()

	snap := &Snapshot{
		UserID: "u1",
		Values: map[string]json.RawMessage{
			MetricTotalTrades: json.RawMessage("3"),
			MetricWinRate:     json.RawMessage("66.67"),
			MetricDailyPnL:    json.RawMessage(`{"2024-01-02":-40,"2024-01-01":100}`),
		},
		Failures:  map[string]string{"broken": "bad input"},
		UpdatedAt: time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteOrg(&buf, snap))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "* ANALYTICS: u1\n"))
	assert.Contains(t, out, ":UPDATED:     [2024-01-03 Wed 10:00]")
	assert.Contains(t, out, "| total_trades | 3 |")
	assert.Contains(t, out, "| win_rate | 66.67 |")
	assert.Contains(t, out, "** Daily P/L")
	assert.Less(t, strings.Index(out, "| 2024-01-01 | 100.00 |"), strings.Index(out, "| 2024-01-02 | -40.00 |"))
	assert.NotContains(t, out, "** Weekly P/L")
	assert.Contains(t, out, "- broken: bad input")
}
