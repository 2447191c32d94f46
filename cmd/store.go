package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pipedrive-export/internal/config"
	"github.com/sells-group/pipedrive-export/internal/store"
)

const defaultSQLitePath = "pipedrive_export.db"

func initStore(ctx context.Context, c config.StoreConfig) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Driver {
	case "sqlite":
		dsn := c.DatabaseURL
		if dsn == "" {
			dsn = defaultSQLitePath
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// storeEnabled reports whether run history is configured.
func storeEnabled(c config.StoreConfig) bool {
	return c.Driver != "" && c.Driver != "none"
}
