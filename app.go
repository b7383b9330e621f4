package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/danthegoodman1/pqframe/crdb"
	"github.com/danthegoodman1/pqframe/datastore"
	"github.com/danthegoodman1/pqframe/metastore"
	"github.com/danthegoodman1/pqframe/migrations"
	"github.com/danthegoodman1/pqframe/utils"
)

type (
	App struct {
		MetaStore metastore.MetaStore
		DataStore datastore.DataStore
	}
)

// NewApp builds the stores from env. The fragment catalog lives in CRDB when
// CRDB_DSN is set and in memory otherwise.
func NewApp(ctx context.Context) (*App, error) {
	ds, err := datastore.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("error in datastore.FromEnv: %w", err)
	}

	if !crdb.Enabled() {
		logger.Warn().Msg("CRDB_DSN not set, fragment catalog is in memory")
		return &App{MetaStore: metastore.NewMemoryMetaStore(), DataStore: ds}, nil
	}

	if err := crdb.ConnectToDB(ctx, utils.CRDB_DSN); err != nil {
		return nil, fmt.Errorf("error connecting to CRDB: %w", err)
	}
	if err := migrations.CheckMigrations(utils.CRDB_DSN); err != nil {
		return nil, fmt.Errorf("error checking migrations: %w", err)
	}
	return &App{MetaStore: crdb.NewCatalog(crdb.PGPool), DataStore: ds}, nil
}

func (a *App) Shutdown(ctx context.Context) error {
	return errors.Join(a.MetaStore.Shutdown(ctx), a.DataStore.Shutdown(ctx))
}
