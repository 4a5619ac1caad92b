package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/futures-journal/journal"
)

// SnapshotStore is the part of journal.Store the aggregator needs.
type SnapshotStore interface {
	RebuildSnapshot(ctx context.Context, userID string, build journal.SnapshotBuilder) ([]journal.SnapshotRow, error)
	ListSnapshot(ctx context.Context, userID string) ([]journal.SnapshotRow, error)
}

// Snapshot is a user's analytics as stored. Values holds each metric's
// JSON encoding. Failures holds metrics that could not be computed on the
// last recompute; their rows are absent from the store.
type Snapshot struct {
	UserID    string                     `json:"user_id"`
	Values    map[string]json.RawMessage `json:"values"`
	Failures  map[string]string          `json:"failures,omitempty"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

// Float returns a scalar metric. ok is false when the metric is absent,
// null, or not a number.
func (s *Snapshot) Float(metric string) (float64, bool) {
	var v *float64
	if err := json.Unmarshal(s.Values[metric], &v); err != nil || v == nil {
		return 0, false
	}
	return *v, true
}

// Buckets returns a calendar bucket metric such as daily_pnl.
func (s *Snapshot) Buckets(metric string) (map[string]float64, bool) {
	var m map[string]float64
	if err := json.Unmarshal(s.Values[metric], &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

// Metrics returns the stored metric names in sorted order.
func (s *Snapshot) Metrics() []string {
	names := make([]string, 0, len(s.Values))
	for k := range s.Values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Aggregator rebuilds per-user analytics snapshots from the trade table.
type Aggregator struct {
	store   SnapshotStore
	metrics []Metric
	log     zerolog.Logger
}

// NewAggregator uses DefaultMetrics when metrics is empty.
func NewAggregator(store SnapshotStore, log zerolog.Logger, metrics ...Metric) *Aggregator {
	if len(metrics) == 0 {
		metrics = DefaultMetrics()
	}
	return &Aggregator{
		store:   store,
		metrics: metrics,
		log:     log.With().Str("component", "analytics").Logger(),
	}
}

// Recompute replaces the user's snapshot with values computed from all of
// the user's trades. The read and the write happen in one store
// transaction. A metric that fails is logged and reported in Failures;
// the remaining metrics are still stored.
func (a *Aggregator) Recompute(ctx context.Context, userID string) (*Snapshot, error) {
	var failures map[string]string

	rows, err := a.store.RebuildSnapshot(ctx, userID, func(trades []journal.Trade) ([]journal.SnapshotRow, error) {
		var rows []journal.SnapshotRow
		rows, failures = a.Build(trades)
		return rows, nil
	})
	if err != nil {
		return nil, fmt.Errorf("recompute analytics for %s: %w", userID, err)
	}

	for name, reason := range failures {
		a.log.Warn().Str("user_id", userID).Str("metric", name).Str("reason", reason).Msg("metric failed")
	}
	a.log.Debug().Str("user_id", userID).Int("metrics", len(rows)).Msg("snapshot rebuilt")

	snap := fromRows(userID, rows)
	snap.Failures = failures
	return snap, nil
}

// Build computes every metric over trades without touching the store.
func (a *Aggregator) Build(trades []journal.Trade) ([]journal.SnapshotRow, map[string]string) {
	ordered := canonicalOrder(trades)
	failures := make(map[string]string)

	rows := make([]journal.SnapshotRow, 0, len(a.metrics))
	for _, m := range a.metrics {
		v, err := compute(m, ordered)
		if err != nil {
			failures[m.Name] = err.Error()
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			failures[m.Name] = err.Error()
			continue
		}
		rows = append(rows, journal.SnapshotRow{Metric: m.Name, Value: b})
	}
	return rows, failures
}

// compute isolates one metric so a panic only loses that metric.
func compute(m Metric, trades []journal.Trade) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("metric %s panicked: %v", m.Name, r)
		}
	}()
	return m.Compute(trades)
}

// Load reads the stored snapshot without recomputing it.
func (a *Aggregator) Load(ctx context.Context, userID string) (*Snapshot, error) {
	rows, err := a.store.ListSnapshot(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load analytics for %s: %w", userID, err)
	}
	return fromRows(userID, rows), nil
}

func fromRows(userID string, rows []journal.SnapshotRow) *Snapshot {
	s := &Snapshot{
		UserID: userID,
		Values: make(map[string]json.RawMessage, len(rows)),
	}
	for _, r := range rows {
		s.Values[r.Metric] = r.Value
		if r.UpdatedAt.After(s.UpdatedAt) {
			s.UpdatedAt = r.UpdatedAt
		}
	}
	return s
}
