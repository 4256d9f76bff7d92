package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/config"
	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/store"
)

// initStore opens and migrates the configured store. The SQLite database
// directory is created on demand so a fresh checkout works without setup.
func initStore(ctx context.Context) (store.Store, error) {
	if cfg.Store.Driver == "" || cfg.Store.Driver == "sqlite" {
		if dir := filepath.Dir(cfg.Store.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, eris.Wrapf(err, "create store directory %s", dir)
			}
		}
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// loadSchema reads the dataset schema named in the configuration.
func loadSchema() (*config.Schema, error) {
	return config.LoadSchema(cfg.Interp.SchemaFile)
}

// loadDataset reads every persisted territorial unit.
func loadDataset(ctx context.Context, st store.Store) ([]store.Unit, error) {
	units, err := st.ListUnits(ctx, store.UnitFilter{})
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, eris.New("the store holds no dataset yet, run `pic build` first")
	}
	return units, nil
}
