package http_server

import (
	"context"
	"net/http"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/danthegoodman1/pqframe/dataset"
	"github.com/danthegoodman1/pqframe/pqread"
	"github.com/danthegoodman1/pqframe/table"
	"github.com/danthegoodman1/pqframe/utils"
)

type (
	ReadReqBody struct {
		// Exactly one of Dataset and Key is set.
		Dataset *string `validate:"required_without=Key"`
		Key     *string `validate:"required_without=Dataset"`

		Columns              []string
		RowGroup             *int   `validate:"omitempty,gte=0"`
		SkipRows             int64  `validate:"gte=0"`
		NumRows              *int64 `validate:"omitempty,gte=0"`
		StringsToCategorical bool
		// UsePandasMetadata defaults to true.
		UsePandasMetadata *bool
	}

	ReadResponse struct {
		NumRows int64
		Columns []ColumnJSON
		Index   *IndexJSON `json:",omitempty"`
	}

	ColumnJSON struct {
		Name   string
		Type   string
		Values arrow.Array
	}

	IndexJSON struct {
		// range, named or multi
		Kind string
		// Names has one entry per level; null for unnamed levels.
		Names  []*string
		Start  *int64        `json:",omitempty"`
		Stop   *int64        `json:",omitempty"`
		Step   *int64        `json:",omitempty"`
		Levels []arrow.Array `json:",omitempty"`
	}
)

func (s *HTTPServer) ReadHandler(c *CustomContext) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second*60)
	defer cancel()

	var reqBody ReadReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if reqBody.Dataset != nil && reqBody.Key != nil {
		return c.String(http.StatusBadRequest, "set only one of Dataset and Key")
	}
	usePandas := utils.Deref(reqBody.UsePandasMetadata, true)

	var tbl *table.Table
	if reqBody.Dataset != nil {
		if reqBody.RowGroup != nil || reqBody.NumRows != nil || reqBody.SkipRows != 0 {
			return c.String(http.StatusBadRequest, "row selection needs a Key")
		}
		var err error
		tbl, err = dataset.Read(ctx, s.Store, *reqBody.Dataset, dataset.ReadOptions{
			Columns:              reqBody.Columns,
			StringsToCategorical: reqBody.StringsToCategorical,
			UsePandasMetadata:    usePandas,
		})
		if err != nil {
			return c.OpError(err, "error reading dataset")
		}
	} else {
		src, err := dataset.SourceFor(ctx, s.Store, *reqBody.Key)
		if err != nil {
			return c.OpError(err, "error opening file")
		}
		tbl, err = pqread.ReadTable(ctx, pqread.Options{
			Source:               src,
			Columns:              reqBody.Columns,
			RowGroup:             reqBody.RowGroup,
			SkipRows:             reqBody.SkipRows,
			NumRows:              reqBody.NumRows,
			StringsToCategorical: reqBody.StringsToCategorical,
			UsePandasMetadata:    usePandas,
		})
		if err != nil {
			return c.OpError(err, "error reading file")
		}
	}

	return c.JSON(http.StatusOK, toResponse(tbl))
}

func toResponse(tbl *table.Table) ReadResponse {
	res := ReadResponse{NumRows: tbl.NumRows()}
	for _, col := range tbl.Columns {
		res.Columns = append(res.Columns, ColumnJSON{
			Name:   col.Name,
			Type:   col.Data.DataType().String(),
			Values: col.Data,
		})
	}
	switch idx := tbl.Index.(type) {
	case table.RangeIndex:
		res.Index = &IndexJSON{
			Kind:  "range",
			Names: []*string{idx.Name},
			Start: utils.Ptr(idx.Start),
			Stop:  utils.Ptr(idx.Stop),
			Step:  utils.Ptr(idx.Step),
		}
	case table.NamedIndex:
		res.Index = &IndexJSON{
			Kind:   "named",
			Names:  []*string{idx.Name},
			Levels: []arrow.Array{idx.Values},
		}
	case table.MultiIndex:
		res.Index = &IndexJSON{
			Kind:   "multi",
			Names:  idx.Names,
			Levels: idx.Levels,
		}
	}
	return res
}
