package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/dentexa/import-cli/internal/history"
	"github.com/dentexa/import-cli/internal/store"
)

// openStore builds the records API client from config.
func openStore() (store.RecordStore, error) {
	if cfg.Store.BaseURL == "" {
		return nil, eris.New("store.base_url is not configured")
	}
	opts := []store.ClientOption{
		store.WithRateLimit(cfg.Store.RateLimit),
	}
	if cfg.Store.TimeoutSecs > 0 {
		opts = append(opts, store.WithTimeout(time.Duration(cfg.Store.TimeoutSecs)*time.Second))
	}
	return store.NewClient(cfg.Store.BaseURL, cfg.Store.APIKey, opts...), nil
}

// openHistory opens the run-audit database named by config and applies
// migrations.
func openHistory(ctx context.Context) (history.Store, error) {
	var (
		st  history.Store
		err error
	)
	switch cfg.History.Driver {
	case "sqlite", "":
		st, err = history.NewSQLite(cfg.History.Path)
	case "postgres":
		st, err = history.NewPostgres(ctx, cfg.History.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown history driver %q", cfg.History.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}
