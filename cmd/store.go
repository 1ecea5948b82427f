package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pharmareach-cli/internal/store"
)

// openStore builds the configured store backend and runs migrations.
func openStore(ctx context.Context) (store.Store, error) {
	var st store.Store

	switch cfg.Store.Driver {
	case "sqlite", "":
		s, err := store.NewSQLite(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		st = s
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for the postgres driver (PHARMAREACH_STORE_DATABASE_URL)")
		}
		s, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
		if err != nil {
			return nil, err
		}
		st = s
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}
