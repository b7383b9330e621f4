package crdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgx"
	"github.com/danthegoodman1/pqframe/footer"
	"github.com/danthegoodman1/pqframe/metastore"
	"github.com/danthegoodman1/pqframe/part"
	"github.com/danthegoodman1/pqframe/utils"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
)

const uniqueViolation = "23505"

var _ metastore.MetaStore = (*Catalog)(nil)

// Catalog records written fragments and their footers so a dataset's
// _metadata can be rebuilt without listing or reading the store.
type Catalog struct {
	pool       *pgxpool.Pool
	maxElapsed time.Duration
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool, maxElapsed: StandardContextTimeout}
}

// InsertFragments stores every fragment in one transaction.
func (c *Catalog) InsertFragments(ctx context.Context, frags []part.Fragment) error {
	if len(frags) == 0 {
		return nil
	}
	logger := zerolog.Ctx(ctx)
	err := utils.ReliableRetry(ctx, c.maxElapsed, func(ctx context.Context) error {
		return crdbpgx.ExecuteTx(ctx, c.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
			for _, f := range frags {
				_, err := tx.Exec(ctx, `
				insert into fragments (id, dataset, partition, path, alive, row_count, row_groups, footer, created_at)
				values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				`, f.ID, f.Dataset, f.Partition, f.Path, f.Alive, f.RowCount, f.RowGroups, []byte(f.Footer), f.CreatedAt)
				if err != nil {
					var pgErr *pgconn.PgError
					if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
						return fmt.Errorf("fragment %s: %w", f.ID, metastore.ErrDuplicateFragment)
					}
					return fmt.Errorf("error inserting fragment %s: %w", f.ID, err)
				}
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	logger.Debug().Int("fragments", len(frags)).Msg("recorded fragments")
	return nil
}

// ListFragments returns the alive fragments of a dataset ordered by partition
// then id, which is write order within a partition.
func (c *Catalog) ListFragments(ctx context.Context, dataset string) ([]part.Fragment, error) {
	var frags []part.Fragment
	err := utils.ReliableExec(ctx, c.pool, c.maxElapsed, func(ctx context.Context, conn *pgxpool.Conn) error {
		frags = frags[:0]
		rows, err := conn.Query(ctx, `
		select id, partition, path, alive, row_count, row_groups, footer, created_at
		from fragments
		where dataset = $1
		and alive = true
		order by partition, id
		`, dataset)
		if err != nil {
			return fmt.Errorf("error in conn.Query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			f := part.Fragment{Dataset: dataset}
			var blob []byte
			if err := rows.Scan(&f.ID, &f.Partition, &f.Path, &f.Alive, &f.RowCount, &f.RowGroups, &blob, &f.CreatedAt); err != nil {
				return fmt.Errorf("error in rows.Scan: %w", err)
			}
			f.Footer = blob
			frags = append(frags, f)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return frags, nil
}

// SetAlive flips the alive flag of the given fragments. Dead fragments are
// left out of later catalog merges.
func (c *Catalog) SetAlive(ctx context.Context, dataset string, ids []string, alive bool) error {
	return utils.ReliableRetry(ctx, c.maxElapsed, func(ctx context.Context) error {
		return crdbpgx.ExecuteTx(ctx, c.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, `
			update fragments
			set alive = $1
			where dataset = $2
			and id = any($3)
			`, alive, dataset, ids)
			if err != nil {
				return fmt.Errorf("error updating fragments: %w", err)
			}
			return nil
		})
	})
}

// MergeFromCatalog merges the stored footers of a dataset's alive fragments.
func (c *Catalog) MergeFromCatalog(ctx context.Context, dataset string) (footer.Blob, []part.Fragment, error) {
	return metastore.MergeFragments(ctx, c, dataset)
}

func (c *Catalog) Shutdown(context.Context) error {
	c.pool.Close()
	return nil
}
