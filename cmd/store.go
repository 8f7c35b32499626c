package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/venuewatch/venuewatch/internal/store"
)

// initStore opens and migrates the SQLite store from config.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
