package http_server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danthegoodman1/pqframe/dataset"
	"github.com/danthegoodman1/pqframe/footer"
	"github.com/danthegoodman1/pqframe/metastore"
	"github.com/danthegoodman1/pqframe/part"
	"github.com/danthegoodman1/pqframe/utils"
	"github.com/rs/zerolog"
)

type (
	MergeReqBody struct {
		Dataset string `validate:"required"`
		// Keys are the fragment files to merge, in order. Empty means every
		// fragment under the dataset.
		Keys []string
		// FromCatalog merges the footers recorded in the fragment catalog
		// instead of reading fragment files.
		FromCatalog bool
		// How many seconds before the merge will time out.
		//
		// Default `60`.
		MaxRuntimeSec *int64 `validate:"omitempty,gt=0"`
	}

	MergeStats struct {
		NumRows      int64
		NumRowGroups int
		Files        []string
		TimeMS       int64
	}
)

var ErrNoCatalog = errors.New("no fragment catalog configured")

func (s *HTTPServer) MergeHandler(c *CustomContext) error {
	var reqBody MergeReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second*time.Duration(utils.Deref(reqBody.MaxRuntimeSec, 60)))
	defer cancel()

	logger := zerolog.Ctx(ctx)
	logger.Debug().Msg("running merge handler")
	start := time.Now()

	var blob footer.Blob
	if reqBody.FromCatalog {
		if s.MetaStore == nil {
			return c.String(http.StatusBadRequest, ErrNoCatalog.Error())
		}
		merged, frags, err := metastore.MergeFragments(ctx, s.MetaStore, reqBody.Dataset)
		if err != nil {
			return c.OpError(err, "error merging from catalog")
		}
		if err := s.Store.Put(ctx, part.MetadataKey(reqBody.Dataset), merged); err != nil {
			return c.InternalError(err, "error storing _metadata")
		}
		logger.Debug().Int("fragments", len(frags)).Msg("merged catalog footers")
		blob = merged
	} else {
		merged, err := dataset.Merge(ctx, s.Store, reqBody.Dataset, reqBody.Keys)
		if err != nil {
			return c.OpError(err, "error merging fragments")
		}
		blob = merged
	}

	res, err := mergeStats(blob)
	if err != nil {
		return c.InternalError(err, "error describing merged footer")
	}
	res.TimeMS = time.Since(start).Milliseconds()
	logger.Debug().Interface("response", res).Msg("merged footers")

	return c.JSON(http.StatusOK, res)
}

func mergeStats(blob footer.Blob) (MergeStats, error) {
	var res MergeStats
	if len(blob) == 0 {
		return res, nil
	}
	info, err := footer.Describe(blob)
	if err != nil {
		return res, fmt.Errorf("error in footer.Describe: %w", err)
	}
	res.NumRows = info.NumRows
	res.NumRowGroups = info.NumRowGroups
	paths, err := footer.FilePaths(blob)
	if err != nil {
		return res, fmt.Errorf("error in footer.FilePaths: %w", err)
	}
	for _, p := range paths {
		if !utils.ContainsString(res.Files, p) {
			res.Files = append(res.Files, p)
		}
	}
	res.Files = utils.ArrayOrEmpty(res.Files)
	return res, nil
}
