package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/lazypower/horizon/internal/config"
	"github.com/lazypower/horizon/internal/horizon"
	"github.com/lazypower/horizon/internal/index"
	"github.com/lazypower/horizon/internal/store"
)

// loadConfig reads --config layered over defaults and HORIZON_* variables.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openDB opens the configured database, or the default one.
func openDB(cfg config.Config) (*store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// newScanner builds a scanner backed by db and restores its saved state.
// A corrupt snapshot is reported and replaced by a fresh state.
func newScanner(ctx context.Context, cfg config.Config, db *store.DB) (*horizon.Scanner, error) {
	sc, err := horizon.New(cfg.Engine)
	if err != nil {
		return nil, err
	}
	sc.SetSource(db)
	sc.SetStateStore(db)
	sc.SetReportSink(db)
	sc.SetIndex(index.New(db, index.Options{}))

	switch err := sc.LoadState(ctx); {
	case errors.Is(err, horizon.ErrCorruptState):
		fmt.Fprintf(os.Stderr, "warning: %v; starting from a fresh state\n", err)
	case err != nil:
		return nil, err
	}
	return sc, nil
}
