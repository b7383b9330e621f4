package datastore

import (
	"context"
	"fmt"

	"github.com/danthegoodman1/pqframe/gologger"
	"github.com/danthegoodman1/pqframe/utils"
)

var (
	logger = gologger.NewComponentLogger("datastore")
)

type (
	// DataStore holds fragment files and dataset footers under slash
	// separated keys such as "events/y=2022/2JZ....parquet".
	DataStore interface {
		Put(ctx context.Context, key string, data []byte) error
		// Get fails with utils.ErrNotFound for a missing key.
		Get(ctx context.Context, key string) ([]byte, error)
		Exists(ctx context.Context, key string) (bool, error)
		// List returns every key under prefix, sorted.
		List(ctx context.Context, prefix string) ([]string, error)
		// LocalPath is a filesystem path for key when the store is local
		// disk, or "" when keys only live remotely.
		LocalPath(key string) string

		Shutdown(ctx context.Context) error
	}
)

// FromEnv builds the store selected by the STORE env var.
func FromEnv() (DataStore, error) {
	switch utils.STORE {
	case "disk":
		return NewDiskDataStore(utils.DATA_DIR)
	case "s3":
		return NewS3DataStore(S3Config{
			Bucket:   utils.S3_BUCKET_NAME,
			Region:   utils.AWS_DEFAULT_REGION,
			Endpoint: utils.S3_ENDPOINT,
		})
	default:
		return nil, fmt.Errorf("unknown STORE %q: %w", utils.STORE, utils.ErrInvalidConfig)
	}
}
