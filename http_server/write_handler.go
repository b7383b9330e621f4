package http_server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/danthegoodman1/gojsonutils"
	"github.com/danthegoodman1/pqframe/dataset"
	"github.com/danthegoodman1/pqframe/indexcodec"
	"github.com/danthegoodman1/pqframe/parquet_accumulator"
	"github.com/danthegoodman1/pqframe/partitioner"
	"github.com/danthegoodman1/pqframe/pqwrite"
	"github.com/danthegoodman1/pqframe/table"
	"github.com/danthegoodman1/pqframe/utils"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const maxNDJSONLine = 16 << 20

type (
	WriteReqBody struct {
		Dataset string `validate:"required"`
		// Line-delimited JSON (NDJSON)
		RowsString *string
		// Array of JSON
		Rows        []map[string]any
		Partitioner []partitioner.PartitionPlan `validate:"dive"`

		// Compression, Statistics and IndexPolicy fall back to the process
		// defaults when empty.
		Compression  string
		Statistics   string
		IndexPolicy  string
		RowGroupSize int64 `validate:"gte=0"`
		// Append keeps the fragments already referenced by _metadata.
		Append bool
	}

	WriteStats struct {
		NumRows   int64
		NumFiles  int64
		Fragments []FragmentStats
		TimeMS    int64
	}

	FragmentStats struct {
		Key       string
		Partition string
		Rows      int64
		RowGroups int
	}
)

func (s *HTTPServer) WriteHandler(c *CustomContext) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second*60)
	defer cancel()

	logger := zerolog.Ctx(ctx)
	start := time.Now()

	var reqBody WriteReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	cfg, err := reqBody.config()
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	rows, err := reqBody.flatRows()
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if len(rows) == 0 {
		return c.String(http.StatusBadRequest, "no rows found")
	}

	groups, keys, err := partitioner.GroupRows(rows, reqBody.Partitioner)
	if err != nil {
		if errors.Is(err, partitioner.ErrFuncNotFound) || errors.Is(err, partitioner.ErrMissingColumns) ||
			errors.Is(err, partitioner.ErrMissingArgs) || errors.Is(err, partitioner.ErrInvalidColumnType) {
			return c.String(http.StatusBadRequest, err.Error())
		}
		return c.InternalError(err, "error partitioning rows")
	}

	parts := make(map[string]*table.Table, len(keys))
	for _, key := range keys {
		acc := parquet_accumulator.NewRowAccumulator()
		for _, row := range groups[key] {
			if err := acc.WriteRow(row); err != nil {
				return c.OpError(err, "error accumulating row")
			}
		}
		tbl, err := acc.Table(memory.DefaultAllocator)
		if err != nil {
			return c.OpError(err, "error building partition table")
		}
		parts[key] = tbl
		logger.Debug().Str("partition", key).Int("rows", acc.NumRows()).Strs("columns", acc.GetColumnNames()).Msg("accumulated partition")
	}

	res, err := dataset.Write(ctx, s.Store, dataset.WriteRequest{
		Dataset:     reqBody.Dataset,
		Partitions:  parts,
		Config:      cfg,
		Parallelism: int(utils.WRITE_PARALLELISM),
		Append:      reqBody.Append,
	})
	if err != nil {
		return c.OpError(err, "error writing dataset")
	}

	if s.MetaStore != nil {
		if !reqBody.Append {
			// the new _metadata no longer references older fragments
			if err := s.retireFragments(ctx, reqBody.Dataset); err != nil {
				return c.InternalError(err, "error retiring replaced fragments")
			}
		}
		if err := s.MetaStore.InsertFragments(ctx, res.Fragments); err != nil {
			return c.InternalError(err, "error recording fragments")
		}
	}

	stats := WriteStats{NumFiles: int64(len(res.Fragments))}
	for _, f := range res.Fragments {
		stats.NumRows += f.RowCount
		stats.Fragments = append(stats.Fragments, FragmentStats{
			Key:       f.Key(),
			Partition: f.Partition,
			Rows:      f.RowCount,
			RowGroups: f.RowGroups,
		})
	}
	stats.TimeMS = time.Since(start).Milliseconds()

	return c.JSON(http.StatusAccepted, stats)
}

func (s *HTTPServer) retireFragments(ctx context.Context, dataset string) error {
	old, err := s.MetaStore.ListFragments(ctx, dataset)
	if err != nil {
		return fmt.Errorf("error in ListFragments: %w", err)
	}
	if len(old) == 0 {
		return nil
	}
	ids := make([]string, len(old))
	for i, f := range old {
		ids[i] = f.ID
	}
	if err := s.MetaStore.SetAlive(ctx, dataset, ids, false); err != nil {
		return fmt.Errorf("error in SetAlive: %w", err)
	}
	zerolog.Ctx(ctx).Debug().Str("dataset", dataset).Int("fragments", len(ids)).Msg("retired replaced fragments")
	return nil
}

func (r WriteReqBody) config() (pqwrite.Config, error) {
	cfg := pqwrite.DefaultConfig()
	var err error
	if cfg.Compression, err = pqwrite.ParseCompression(orDefault(r.Compression, utils.DEFAULT_COMPRESSION)); err != nil {
		return cfg, err
	}
	if cfg.Statistics, err = pqwrite.ParseStatistics(orDefault(r.Statistics, utils.DEFAULT_STATISTICS)); err != nil {
		return cfg, err
	}
	if r.IndexPolicy != "" {
		if cfg.IndexPolicy, err = indexcodec.ParsePolicy(r.IndexPolicy); err != nil {
			return cfg, err
		}
	}
	cfg.RowGroupSize = r.RowGroupSize
	if cfg.RowGroupSize == 0 {
		cfg.RowGroupSize = utils.ROW_GROUP_SIZE
	}
	return cfg, cfg.Validate()
}

// flatRows decodes and flattens the request rows. RowsString wins over Rows.
func (r WriteReqBody) flatRows() ([]map[string]any, error) {
	var rows []map[string]any
	if r.RowsString != nil {
		scanner := bufio.NewScanner(strings.NewReader(*r.RowsString))
		scanner.Buffer(nil, maxNDJSONLine)
		line := 0
		for scanner.Scan() {
			line++
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			var raw map[string]any
			if err := json.Unmarshal([]byte(text), &raw); err != nil {
				return nil, fmt.Errorf("line %d was not a JSON object: %w", line, err)
			}
			rows = append(rows, raw)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("error in scanner.Scan: %w", err)
		}
	} else {
		rows = r.Rows
	}

	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		flat, err := gojsonutils.Flatten(row, nil)
		if err != nil {
			return nil, fmt.Errorf("error flattening JSON map: %w", err)
		}
		flatMap, ok := flat.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("got %T: %w", flat, parquet_accumulator.ErrNotFlatMap)
		}
		out = append(out, flatMap)
	}
	return out, nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
