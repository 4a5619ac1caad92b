// Package app wires the journal services from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/futures-journal/analytics"
	"github.com/rustyeddy/futures-journal/config"
	"github.com/rustyeddy/futures-journal/ingest"
	"github.com/rustyeddy/futures-journal/journal"
	"github.com/rustyeddy/futures-journal/market"
)

// App holds one store and the services built on it.
type App struct {
	Config    *config.Config
	Store     journal.Store
	Contracts *market.Table
	Analytics *analytics.Aggregator
	Pipeline  *ingest.Pipeline
	Log       zerolog.Logger
}

// OpenStore opens the store named by cfg.Store.
func OpenStore(ctx context.Context, cfg config.StoreConfig, log zerolog.Logger) (journal.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := journal.NewSQLite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.Path, err)
		}
		return s, nil
	case "postgres":
		return journal.NewPostgres(ctx, cfg.DSN, log)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Open builds an App from a validated configuration.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}

	store, err := OpenStore(ctx, cfg.Store, log)
	if err != nil {
		return nil, err
	}

	table := market.NewTable(cfg.Commissions.Schedule())
	agg := analytics.NewAggregator(store, log)
	pipeline := ingest.NewPipeline(store, agg, ingest.Options{
		MaxBatchRows: cfg.Ingest.MaxBatchRows,
		Location:     loc,
		Contracts:    table,
		Logger:       log,
	})

	log.Debug().
		Str("driver", cfg.Store.Driver).
		Str("timezone", loc.String()).
		Int("max_batch_rows", cfg.Ingest.MaxBatchRows).
		Msg("journal opened")

	return &App{
		Config:    cfg,
		Store:     store,
		Contracts: table,
		Analytics: agg,
		Pipeline:  pipeline,
		Log:       log,
	}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}
