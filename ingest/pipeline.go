package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/futures-journal/analytics"
	"github.com/rustyeddy/futures-journal/journal"
	"github.com/rustyeddy/futures-journal/market"
	"github.com/rustyeddy/futures-journal/pkg/id"
	"github.com/rustyeddy/futures-journal/pnl"
)

// DefaultMaxBatchRows bounds a single ingestion request.
const DefaultMaxBatchRows = 5000

// IdentityStore answers whether a user exists.
type IdentityStore interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

// TradeStore is the part of journal.Store the pipeline writes through.
type TradeStore interface {
	EnsureAccount(ctx context.Context, a journal.Account) (journal.Account, error)
	GetAccount(ctx context.Context, accountID string) (journal.Account, error)
	InsertTrade(ctx context.Context, t journal.Trade) error
	DeleteTrade(ctx context.Context, userID, tradeID string) error
}

// Recomputer rebuilds a user's analytics snapshot.
type Recomputer interface {
	Recompute(ctx context.Context, userID string) (*analytics.Snapshot, error)
}

// Stage is where a row stopped.
type Stage string

const (
	StageParse   Stage = "parse"
	StagePrice   Stage = "price"
	StagePersist Stage = "persist"
)

// Request is one ingestion batch for one user and platform. AccountID is
// optional; when set it must name an account the user owns.
type Request struct {
	UserID    string
	Platform  string
	AccountID string
	Rows      []Row
}

// RowResult mirrors one input row by index.
type RowResult struct {
	RowIndex int    `json:"row_index"`
	Success  bool   `json:"success"`
	TradeID  string `json:"trade_id,omitempty"`
	Stage    Stage  `json:"stage,omitempty"`
	Field    string `json:"field,omitempty"`
	Error    string `json:"error,omitempty"`
	Err      error  `json:"-"`
}

// BatchResult reports a whole batch. Rows is in input order.
type BatchResult struct {
	UserID           string              `json:"user_id"`
	Platform         journal.Platform    `json:"platform"`
	AccountID        string              `json:"account_id"`
	ProcessedCount   int                 `json:"processed_count"`
	ErrorCount       int                 `json:"error_count"`
	Rows             []RowResult         `json:"rows"`
	AggregationError string              `json:"aggregation_error,omitempty"`
	Snapshot         *analytics.Snapshot `json:"-"`
}

// Options configures a Pipeline. Zero values pick defaults.
type Options struct {
	MaxBatchRows int
	Location     *time.Location
	Contracts    pnl.ContractSource
	Identity     IdentityStore
	Logger       zerolog.Logger
}

// Pipeline turns raw rows into persisted trades and refreshes analytics.
type Pipeline struct {
	store      TradeStore
	identity   IdentityStore
	analytics  Recomputer
	normalizer *Normalizer
	contracts  pnl.ContractSource
	maxRows    int
	log        zerolog.Logger
}

// NewPipeline wires a pipeline. When opts.Identity is nil the store is used
// as identity store if it implements one. agg may be nil, in which case no
// analytics are recomputed.
func NewPipeline(store TradeStore, agg Recomputer, opts Options) *Pipeline {
	p := &Pipeline{
		store:      store,
		identity:   opts.Identity,
		analytics:  agg,
		normalizer: NewNormalizer(opts.Location),
		contracts:  opts.Contracts,
		maxRows:    opts.MaxBatchRows,
		log:        opts.Logger.With().Str("component", "ingest").Logger(),
	}
	if p.identity == nil {
		if ids, ok := store.(IdentityStore); ok {
			p.identity = ids
		}
	}
	if p.contracts == nil {
		p.contracts = market.NewTable(market.DefaultCommissions())
	}
	if p.maxRows <= 0 {
		p.maxRows = DefaultMaxBatchRows
	}
	return p
}

// ResolveAccount returns the user's account for platform, creating the
// default one on first use. Concurrent first calls converge on one row.
func (p *Pipeline) ResolveAccount(ctx context.Context, userID string, platform journal.Platform) (journal.Account, error) {
	if err := p.checkUser(ctx, userID); err != nil {
		return journal.Account{}, err
	}

	acct, err := p.store.EnsureAccount(ctx, journal.Account{
		ID:       id.New(),
		UserID:   userID,
		Platform: platform,
		Name:     platform.DisplayName() + " Account",
	})
	if err != nil {
		return journal.Account{}, fmt.Errorf("%w: %w", ErrAccountResolutionFailed, err)
	}
	if acct.UserID != userID {
		return journal.Account{}, fmt.Errorf("%w: account %s is not owned by %s", ErrAccountResolutionFailed, acct.ID, userID)
	}
	return acct, nil
}

func (p *Pipeline) checkUser(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user id", ErrUserNotFound)
	}
	if p.identity == nil {
		return nil
	}
	ok, err := p.identity.UserExists(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: look up user %s: %w", ErrAccountResolutionFailed, userID, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	return nil
}

// explicitAccount validates a caller supplied account id.
func (p *Pipeline) explicitAccount(ctx context.Context, userID, accountID string, platform journal.Platform) (journal.Account, error) {
	if err := p.checkUser(ctx, userID); err != nil {
		return journal.Account{}, err
	}
	acct, err := p.store.GetAccount(ctx, accountID)
	if err != nil {
		return journal.Account{}, fmt.Errorf("%w: %w", ErrAccountResolutionFailed, err)
	}
	if acct.UserID != userID {
		return journal.Account{}, fmt.Errorf("%w: account %s is not owned by %s", ErrAccountResolutionFailed, accountID, userID)
	}
	if acct.Platform != platform {
		return journal.Account{}, fmt.Errorf("%w: account %s is a %s account", ErrAccountResolutionFailed, accountID, acct.Platform)
	}
	return acct, nil
}

// Ingest processes every row independently. A returned error means nothing
// was processed; otherwise per-row failures are reported in the result.
// Analytics are recomputed once when at least one row was stored, and a
// recompute failure never rolls back stored trades.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*BatchResult, error) {
	platform, err := journal.ParsePlatform(req.Platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, req.Platform)
	}
	if len(req.Rows) > p.maxRows {
		return nil, fmt.Errorf("%w: %d rows, limit %d", ErrBatchTooLarge, len(req.Rows), p.maxRows)
	}

	var acct journal.Account
	if req.AccountID != "" {
		acct, err = p.explicitAccount(ctx, req.UserID, req.AccountID, platform)
	} else {
		acct, err = p.ResolveAccount(ctx, req.UserID, platform)
	}
	if err != nil {
		return nil, err
	}

	log := p.log.With().Str("user_id", req.UserID).Str("platform", string(platform)).Logger()
	res := &BatchResult{
		UserID:    req.UserID,
		Platform:  platform,
		AccountID: acct.ID,
		Rows:      make([]RowResult, len(req.Rows)),
	}

	for i, row := range req.Rows {
		rr := p.ingestRow(ctx, acct, platform, i, row)
		res.Rows[i] = rr
		if rr.Success {
			res.ProcessedCount++
			continue
		}
		res.ErrorCount++
		log.Warn().
			Int("row", i).
			Str("stage", string(rr.Stage)).
			Str("field", rr.Field).
			Err(rr.Err).
			Msg("row rejected")
	}

	if res.ProcessedCount > 0 && p.analytics != nil {
		// stored trades must be reflected even if the caller went away
		snap, err := p.analytics.Recompute(context.WithoutCancel(ctx), req.UserID)
		if err != nil {
			res.AggregationError = fmt.Errorf("%w: %w", ErrAggregationFailed, err).Error()
			log.Error().Err(err).Msg("analytics recompute failed")
		} else {
			res.Snapshot = snap
		}
	}

	log.Info().
		Str("account_id", acct.ID).
		Int("processed", res.ProcessedCount).
		Int("errors", res.ErrorCount).
		Msg("batch ingested")
	return res, nil
}

func (p *Pipeline) ingestRow(ctx context.Context, acct journal.Account, platform journal.Platform, i int, row Row) RowResult {
	fail := func(stage Stage, err error) RowResult {
		return RowResult{RowIndex: i, Stage: stage, Field: FieldOf(err), Error: err.Error(), Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(StageParse, err)
	}

	n, err := p.normalizer.Normalize(platform, row)
	if err != nil {
		return fail(StageParse, err)
	}

	priced, err := pnl.Compute(p.contracts, n.PnLInput())
	if err != nil {
		return fail(StagePrice, err)
	}
	priced = priced.Rounded()

	t := journal.Trade{
		ID:         id.New(),
		UserID:     acct.UserID,
		AccountID:  acct.ID,
		Symbol:     n.Symbol,
		Side:       n.Side,
		Quantity:   n.Quantity,
		EntryPrice: n.EntryPrice,
		ExitPrice:  n.ExitPrice,
		EntryTime:  n.EntryTime,
		ExitTime:   n.ExitTime,
		TradeDate:  journal.TradeDate(n.EntryTime, p.normalizer.Location()),
		GrossPnL:   priced.GrossPnL,
		Fees:       priced.Fees,
		NetPnL:     priced.NetPnL,
		Platform:   platform,
		Notes:      n.Notes,
		RawPayload: n.RawPayload,
	}
	if err := p.store.InsertTrade(ctx, t); err != nil {
		return fail(StagePersist, fmt.Errorf("%w: %w", ErrPersistenceFailed, err))
	}
	return RowResult{RowIndex: i, Success: true, TradeID: t.ID}
}

// DeleteResult reports a deletion. The trade is gone even when
// AggregationError is set; only the analytics refresh failed.
type DeleteResult struct {
	TradeID          string              `json:"deleted"`
	AggregationError string              `json:"aggregation_error,omitempty"`
	Snapshot         *analytics.Snapshot `json:"analytics,omitempty"`
}

// DeleteTrade removes one of the user's trades and refreshes their
// analytics. A missing trade wraps journal.ErrNotFound.
func (p *Pipeline) DeleteTrade(ctx context.Context, userID, tradeID string) (*DeleteResult, error) {
	if !id.Valid(tradeID) {
		return nil, fmt.Errorf("trade %q: %w", tradeID, journal.ErrNotFound)
	}
	if err := p.store.DeleteTrade(ctx, userID, tradeID); err != nil {
		if errors.Is(err, journal.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	p.log.Info().Str("user_id", userID).Str("trade_id", tradeID).Msg("trade deleted")

	res := &DeleteResult{TradeID: tradeID}
	if p.analytics == nil {
		return res, nil
	}
	snap, err := p.analytics.Recompute(context.WithoutCancel(ctx), userID)
	if err != nil {
		res.AggregationError = fmt.Errorf("%w: %w", ErrAggregationFailed, err).Error()
		p.log.Warn().Err(err).Str("user_id", userID).Str("trade_id", tradeID).Msg("analytics not refreshed after delete")
		return res, nil
	}
	res.Snapshot = snap
	return res, nil
}
