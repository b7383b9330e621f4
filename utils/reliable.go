package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/UltimateTournament/backoff/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
)

// ReliableRetry runs f with exponential backoff until it succeeds, returns a
// permanent error, or maxElapsed passes.
func ReliableRetry(ctx context.Context, maxElapsed time.Duration, f func(ctx context.Context) error) error {
	logger := zerolog.Ctx(ctx)
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := f(ctx)
		if err == nil {
			return nil
		}
		if IsPermanent(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		logger.Warn().Err(err).Int("attempt", attempt).Msg("retrying after error")
		return err
	}, backoff.WithContext(b, ctx))
}

// ReliableExec acquires a pooled connection and runs f under ReliableRetry.
func ReliableExec(ctx context.Context, pool *pgxpool.Pool, maxElapsed time.Duration, f func(ctx context.Context, conn *pgxpool.Conn) error) error {
	return ReliableRetry(ctx, maxElapsed, func(ctx context.Context) error {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("error in pool.Acquire: %w", err)
		}
		defer conn.Release()
		return f(ctx, conn)
	})
}
