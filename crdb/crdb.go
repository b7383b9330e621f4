package crdb

import (
	"context"
	"fmt"
	"time"

	"github.com/danthegoodman1/pqframe/gologger"
	"github.com/danthegoodman1/pqframe/utils"
	"github.com/jackc/pgx/v4/pgxpool"
)

var (
	PGPool                 *pgxpool.Pool
	StandardContextTimeout = 10 * time.Second

	logger = gologger.NewComponentLogger("crdb")
)

// ConnectToDB opens PGPool against dsn.
func ConnectToDB(ctx context.Context, dsn string) error {
	logger.Debug().Msg("connecting to CRDB...")
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("error in pgxpool.ParseConfig: %w: %w", utils.ErrInvalidConfig, err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.HealthCheckPeriod = time.Second * 5
	config.MaxConnLifetime = time.Minute * 30
	config.MaxConnIdleTime = time.Minute * 30

	PGPool, err = pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("error in pgxpool.ConnectConfig: %w", err)
	}
	logger.Debug().Msg("connected to CRDB")
	return nil
}

// Enabled reports whether a fragment catalog is configured.
func Enabled() bool {
	return utils.CRDB_DSN != ""
}
