package main

import (
	"context"
	"fmt"

	"github.com/hazyhaar/geotree/pkg/config"
	"github.com/hazyhaar/geotree/pkg/store"
	"github.com/hazyhaar/geotree/pkg/store/memory"
	"github.com/hazyhaar/geotree/pkg/store/postgres"
	"github.com/hazyhaar/geotree/pkg/store/sqlite"
)

// openStore opens the tree backend named by the config.
func openStore(ctx context.Context, c config.StoreConfig) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Driver {
	case config.DriverMemory:
		st = memory.New()
	case config.DriverSQLite:
		st, err = sqlite.Open(c.DSN)
	case config.DriverPostgres:
		st, err = postgres.Open(ctx, c.DSN)
	default:
		return nil, withCode(exitUsage, fmt.Errorf("unknown store driver %q", c.Driver))
	}
	if err != nil {
		return nil, withCode(exitStore, fmt.Errorf("open %s store: %w", c.Driver, err))
	}
	return st, nil
}
