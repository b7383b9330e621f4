package metastore

import (
	"context"
	"fmt"

	"github.com/danthegoodman1/pqframe/footer"
	"github.com/danthegoodman1/pqframe/gologger"
	"github.com/danthegoodman1/pqframe/part"
	"github.com/danthegoodman1/pqframe/utils"
)

var (
	logger = gologger.NewComponentLogger("metastore")
)

type (
	// MetaStore records written fragments and their footers.
	MetaStore interface {
		// InsertFragments records fragments atomically.
		InsertFragments(ctx context.Context, frags []part.Fragment) error
		// ListFragments returns the alive fragments of a dataset ordered by
		// partition, then id.
		ListFragments(ctx context.Context, dataset string) ([]part.Fragment, error)
		SetAlive(ctx context.Context, dataset string, ids []string, alive bool) error

		Shutdown(ctx context.Context) error
	}
)

// MergeFragments merges the stored footers of a dataset's alive fragments in
// listing order.
func MergeFragments(ctx context.Context, ms MetaStore, dataset string) (footer.Blob, []part.Fragment, error) {
	frags, err := ms.ListFragments(ctx, dataset)
	if err != nil {
		return nil, nil, err
	}
	if len(frags) == 0 {
		return nil, nil, fmt.Errorf("no fragments for dataset %q: %w", dataset, utils.ErrNotFound)
	}
	blobs := make([]footer.Blob, len(frags))
	for i, f := range frags {
		blobs[i] = f.Footer
	}
	merged, err := footer.Merge(blobs)
	if err != nil {
		return nil, nil, fmt.Errorf("error in footer.Merge: %w", err)
	}
	logger.Debug().Str("dataset", dataset).Int("fragments", len(frags)).Msg("merged fragment footers")
	return merged, frags, nil
}
