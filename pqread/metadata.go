package pqread

import (
	"context"

	"github.com/danthegoodman1/pqframe/indexcodec"
	"github.com/rs/zerolog"
)

// FileInfo is what the footer alone says about a file.
type FileInfo struct {
	NumRows      int64
	NumRowGroups int
	RowGroupRows []int64
	// Columns are the top level stored columns, index columns included.
	Columns []string
	Pandas  *indexcodec.PandasMetadata
}

// ReadMetadata reads only the footer of src.
func ReadMetadata(ctx context.Context, src Source) (*FileInfo, error) {
	rdr, err := src.open()
	if err != nil {
		return nil, err
	}
	defer rdr.Close()

	md := rdr.MetaData()
	info := &FileInfo{
		NumRows:      rdr.NumRows(),
		NumRowGroups: rdr.NumRowGroups(),
		RowGroupRows: make([]int64, rdr.NumRowGroups()),
	}
	for i := range info.RowGroupRows {
		info.RowGroupRows[i] = md.RowGroup(i).NumRows()
	}
	root := md.Schema.Root()
	for i := 0; i < root.NumFields(); i++ {
		info.Columns = append(info.Columns, root.Field(i).Name())
	}
	if info.Pandas, err = pandasMetadata(rdr); err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Debug().Str("source", src.String()).Int64("rows", info.NumRows).Msg("read parquet footer")
	return info, nil
}
