package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/danthegoodman1/pqframe/datastore"
	"github.com/danthegoodman1/pqframe/footer"
	"github.com/danthegoodman1/pqframe/gologger"
	"github.com/danthegoodman1/pqframe/part"
	"github.com/danthegoodman1/pqframe/pqread"
	"github.com/danthegoodman1/pqframe/pqwrite"
	"github.com/danthegoodman1/pqframe/table"
	"github.com/danthegoodman1/pqframe/utils"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var logger = gologger.NewComponentLogger("dataset")

type (
	WriteRequest struct {
		Dataset string
		// Partitions maps a partition path ("" for none) to its rows.
		Partitions map[string]*table.Table
		Config     pqwrite.Config
		// Parallelism bounds concurrent fragment writes. Zero means 1.
		Parallelism int
		// Append merges the new fragments after the dataset's existing
		// _metadata instead of replacing it.
		Append bool
	}

	Result struct {
		Fragments []part.Fragment
		// Footer is the merged dataset footer stored as _metadata.
		Footer footer.Blob
	}

	ReadOptions struct {
		Columns              []string
		StringsToCategorical bool
		UsePandasMetadata    bool
	}
)

// Write runs both phases of a dataset write. Phase 1 writes one fragment per
// partition concurrently, each returning its footer. Phase 2 merges the
// footers, in partition key order, into <dataset>/_metadata. Fragments left
// behind by a failed write are not referenced by any _metadata.
func Write(ctx context.Context, store datastore.DataStore, req WriteRequest) (*Result, error) {
	if err := checkName(req.Dataset); err != nil {
		return nil, err
	}
	if len(req.Partitions) == 0 {
		return nil, fmt.Errorf("no partitions to write: %w", utils.ErrInvalidConfig)
	}
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}
	logger := zerolog.Ctx(ctx)
	s := time.Now()

	keys := make([]string, 0, len(req.Partitions))
	for k := range req.Partitions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fragments := make([]part.Fragment, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(req.Parallelism, 1))
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			frag, err := writeFragment(gctx, store, part.NewFragment(req.Dataset, key), req.Partitions[key], req.Config)
			if err != nil {
				return fmt.Errorf("error writing partition %q: %w", key, err)
			}
			fragments[i] = frag
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	blobs := make([]footer.Blob, 0, len(fragments)+1)
	if req.Append {
		existing, err := store.Get(ctx, part.MetadataKey(req.Dataset))
		switch {
		case errors.Is(err, utils.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("error reading existing _metadata: %w", err)
		default:
			blobs = append(blobs, existing)
		}
	}
	for _, f := range fragments {
		blobs = append(blobs, f.Footer)
	}

	merged, err := footer.Merge(blobs)
	if err != nil {
		return nil, fmt.Errorf("error in footer.Merge: %w", err)
	}
	if err := store.Put(ctx, part.MetadataKey(req.Dataset), merged); err != nil {
		return nil, fmt.Errorf("error storing _metadata: %w", err)
	}

	logger.Debug().Str("dataset", req.Dataset).Int("fragments", len(fragments)).Dur("took", time.Since(s)).Msg("wrote dataset")
	return &Result{Fragments: fragments, Footer: merged}, nil
}

// writeFragment is phase 1 for one partition.
func writeFragment(ctx context.Context, store datastore.DataStore, frag part.Fragment, tbl *table.Table, cfg pqwrite.Config) (part.Fragment, error) {
	cfg.FooterOutputPath = frag.Path

	var blob footer.Blob
	if local := store.LocalPath(frag.Key()); local != "" {
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			return frag, fmt.Errorf("error in os.MkdirAll: %w", err)
		}
		b, err := pqwrite.WriteTable(ctx, tbl, local, cfg)
		if err != nil {
			return frag, err
		}
		blob = b
	} else {
		var buf bytes.Buffer
		if err := pqwrite.WriteTableTo(ctx, tbl, &buf, cfg); err != nil {
			return frag, err
		}
		tail, err := footer.FromFileTail(buf.Bytes())
		if err != nil {
			return frag, err
		}
		if blob, err = footer.WithFilePath(tail, frag.Path); err != nil {
			return frag, err
		}
		if err := store.Put(ctx, frag.Key(), buf.Bytes()); err != nil {
			return frag, err
		}
	}

	info, err := footer.Describe(blob)
	if err != nil {
		return frag, err
	}
	frag.RowCount = info.NumRows
	frag.RowGroups = info.NumRowGroups
	frag.Footer = blob
	return frag, nil
}

// Merge rebuilds <dataset>/_metadata from fragment files. With no keys every
// fragment under the dataset is used, in key order.
func Merge(ctx context.Context, store datastore.DataStore, dataset string, keys []string) (footer.Blob, error) {
	if err := checkName(dataset); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		all, err := store.List(ctx, dataset+"/")
		if err != nil {
			return nil, err
		}
		for _, k := range all {
			if part.IsFragmentKey(k) {
				keys = append(keys, k)
			}
		}
	}

	blobs := make([]footer.Blob, 0, len(keys))
	for _, key := range keys {
		rel := strings.TrimPrefix(key, dataset+"/")
		if rel == key || strings.Contains(key, "..") {
			return nil, fmt.Errorf("key %q is outside dataset %q: %w", key, dataset, utils.ErrInvalidConfig)
		}
		b, err := store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		tail, err := footer.FromFileTail(b)
		if err != nil {
			return nil, fmt.Errorf("error reading footer of %s: %w", key, err)
		}
		blob, err := footer.WithFilePath(tail, rel)
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, blob)
	}

	merged, err := footer.Merge(blobs)
	if err != nil {
		return nil, fmt.Errorf("error in footer.Merge: %w", err)
	}
	if err := store.Put(ctx, part.MetadataKey(dataset), merged); err != nil {
		return nil, fmt.Errorf("error storing _metadata: %w", err)
	}
	logger.Debug().Str("dataset", dataset).Int("fragments", len(blobs)).Msg("rebuilt _metadata")
	return merged, nil
}

// Read loads every fragment referenced by the dataset's _metadata, in footer
// order, and stacks them into one table.
func Read(ctx context.Context, store datastore.DataStore, dataset string, opts ReadOptions) (*table.Table, error) {
	if err := checkName(dataset); err != nil {
		return nil, err
	}
	blob, err := store.Get(ctx, part.MetadataKey(dataset))
	if err != nil {
		return nil, err
	}
	paths, err := footer.FilePaths(blob)
	if err != nil {
		return nil, err
	}

	var tables []*table.Table
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		if p == "" {
			return nil, fmt.Errorf("row group without file_path in %s/_metadata: %w", dataset, utils.ErrEncoding)
		}

		src, err := SourceFor(ctx, store, path.Join(dataset, p))
		if err != nil {
			return nil, err
		}
		tbl, err := pqread.ReadTable(ctx, pqread.Options{
			Source:               src,
			Columns:              opts.Columns,
			StringsToCategorical: opts.StringsToCategorical,
			UsePandasMetadata:    opts.UsePandasMetadata,
		})
		if err != nil {
			return nil, fmt.Errorf("error reading fragment %s: %w", p, err)
		}
		tables = append(tables, tbl)
	}
	return table.Concat(memory.DefaultAllocator, tables...)
}

// SourceFor opens key for reading: by path on a local store, otherwise by
// downloading it.
func SourceFor(ctx context.Context, store datastore.DataStore, key string) (pqread.Source, error) {
	if key == "" || strings.Contains(key, "..") {
		return pqread.Source{}, fmt.Errorf("bad key %q: %w", key, utils.ErrInvalidConfig)
	}
	if local := store.LocalPath(key); local != "" {
		return pqread.FromPath(local), nil
	}
	b, err := store.Get(ctx, key)
	if err != nil {
		return pqread.Source{}, err
	}
	return pqread.FromBuffer(b), nil
}

// checkName rejects dataset names that would resolve outside the store root.
func checkName(dataset string) error {
	if dataset == "" || strings.Contains(dataset, "..") || path.IsAbs(dataset) || filepath.IsAbs(dataset) || strings.HasPrefix(dataset, "\\") {
		return fmt.Errorf("bad dataset name %q: %w", dataset, utils.ErrInvalidConfig)
	}
	return nil
}
