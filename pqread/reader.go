package pqread

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet/file"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
	"github.com/danthegoodman1/pqframe/gologger"
	"github.com/danthegoodman1/pqframe/indexcodec"
	"github.com/danthegoodman1/pqframe/projector"
	"github.com/danthegoodman1/pqframe/table"
	"github.com/danthegoodman1/pqframe/utils"
	"github.com/rs/zerolog"
)

var logger = gologger.NewComponentLogger("pqread")

type (
	Options struct {
		Source Source
		// Columns restricts the data columns read, in this order. Nil reads all.
		Columns []string
		// RowGroup reads a single row group. Ignored in row slice mode.
		RowGroup *int
		// SkipRows and NumRows select a row slice. Either one being set
		// selects row slice mode; NumRows nil means "to the end".
		SkipRows int64
		NumRows  *int64
		// StringsToCategorical dictionary encodes string data columns.
		StringsToCategorical bool
		// UsePandasMetadata rebuilds the index from the stored metadata.
		UsePandasMetadata bool
		// Mem defaults to memory.DefaultAllocator.
		Mem memory.Allocator
	}

	mode int
)

const (
	modeFull mode = iota
	modeRowSlice
	modeRowGroup

	batchSize = 64 * 1024
)

func (m mode) String() string {
	switch m {
	case modeRowSlice:
		return "rowslice"
	case modeRowGroup:
		return "rowgroup"
	default:
		return "full"
	}
}

// DefaultOptions reads everything from src and rebuilds the index.
func DefaultOptions(src Source) Options {
	return Options{Source: src, UsePandasMetadata: true}
}

func (o Options) mode() mode {
	if o.SkipRows != 0 || o.NumRows != nil {
		return modeRowSlice
	}
	if o.RowGroup != nil {
		return modeRowGroup
	}
	return modeFull
}

func (o Options) validate() error {
	if o.SkipRows < 0 {
		return fmt.Errorf("negative skip rows %d: %w", o.SkipRows, utils.ErrInvalidConfig)
	}
	if o.NumRows != nil && *o.NumRows < 0 {
		return fmt.Errorf("negative num rows %d: %w", *o.NumRows, utils.ErrInvalidConfig)
	}
	if o.RowGroup != nil && *o.RowGroup < 0 {
		return fmt.Errorf("negative row group %d: %w", *o.RowGroup, utils.ErrInvalidConfig)
	}
	return nil
}

// ReadTable reads a parquet file into a Table. Exactly one of three modes
// applies: a row slice when SkipRows or NumRows is set, else a single row
// group when RowGroup is set, else the whole file.
func ReadTable(ctx context.Context, opts Options) (*table.Table, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	mem := opts.Mem
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	s := time.Now()

	rdr, err := opts.Source.open()
	if err != nil {
		return nil, err
	}
	defer rdr.Close()

	meta, err := pandasMetadata(rdr)
	if err != nil {
		return nil, err
	}

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{Parallel: true, BatchSize: batchSize}, mem)
	if err != nil {
		return nil, fmt.Errorf("error in pqarrow.NewFileReader: %w", err)
	}

	names := make([]string, len(fr.Manifest.Fields))
	for i, f := range fr.Manifest.Fields {
		names[i] = f.Field.Name
	}

	fields, err := projector.Resolve(names, opts.Columns)
	if err != nil {
		return nil, err
	}
	if opts.UsePandasMetadata && meta != nil && opts.Columns != nil {
		// index columns ride along so the index can be rebuilt
		for _, ic := range projector.Without(meta.IndexColumnNames(), opts.Columns) {
			for i, n := range names {
				if n == ic {
					fields = append(fields, i)
				}
			}
		}
	}

	var leaves []int
	for _, i := range fields {
		leaves = leafIndices(fr.Manifest.Fields[i], leaves)
	}

	md := rdr.MetaData()
	rowGroups, window, lo, hi, err := plan(rdr.NumRowGroups(), func(i int) int64 { return md.RowGroup(i).NumRows() }, opts)
	if err != nil {
		return nil, err
	}

	cols := make([]table.Column, 0, len(fields))
	if len(leaves) > 0 {
		read, err := fr.ReadRowGroups(ctx, leaves, rowGroups)
		if err != nil {
			return nil, fmt.Errorf("error in ReadRowGroups: %w", err)
		}
		defer read.Release()

		byName := make(map[string]int, read.NumCols())
		for i := 0; i < int(read.NumCols()); i++ {
			byName[read.Column(i).Name()] = i
		}
		for _, fi := range fields {
			ci, ok := byName[names[fi]]
			if !ok {
				return nil, fmt.Errorf("column %q missing from read result: %w", names[fi], utils.ErrSchema)
			}
			arr, err := flatten(mem, read.Column(ci), lo, hi)
			if err != nil {
				return nil, err
			}
			cols = append(cols, table.Column{Name: names[fi], Data: arr})
		}
	}

	data, idx := indexcodec.Decode(cols, meta, opts.UsePandasMetadata, window)

	if opts.StringsToCategorical {
		for i, col := range data {
			if col.Data.DataType().ID() != arrow.STRING {
				continue
			}
			dict, err := toCategorical(mem, col.Data)
			if err != nil {
				return nil, err
			}
			data[i].Data = dict
		}
	}

	tbl, err := table.New(data, idx)
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Debug().Str("source", opts.Source.String()).Str("mode", opts.mode().String()).
		Ints("rowGroups", rowGroups).Int64("rows", tbl.NumRows()).Dur("took", time.Since(s)).Msg("read parquet")
	return tbl, nil
}

// plan picks the row groups to read for the mode in opts. lo and hi bound
// the rows kept from the concatenated row groups; window is where those rows
// sit in the file.
func plan(numRowGroups int, rowGroupRows func(int) int64, opts Options) (rowGroups []int, window indexcodec.Window, lo, hi int64, err error) {
	starts := make([]int64, numRowGroups+1)
	for i := 0; i < numRowGroups; i++ {
		starts[i+1] = starts[i] + rowGroupRows(i)
	}
	total := starts[numRowGroups]

	switch opts.mode() {
	case modeRowGroup:
		k := *opts.RowGroup
		if k >= numRowGroups {
			return nil, window, 0, 0, fmt.Errorf("row group %d out of range, file has %d: %w", k, numRowGroups, utils.ErrInvalidConfig)
		}
		n := starts[k+1] - starts[k]
		return []int{k}, indexcodec.Window{Offset: starts[k], Rows: n}, 0, n, nil

	case modeRowSlice:
		start := min(opts.SkipRows, total)
		end := total
		if opts.NumRows != nil {
			end = min(start+*opts.NumRows, total)
		}
		window = indexcodec.Window{Offset: start, Rows: end - start}
		if end == start {
			if numRowGroups == 0 {
				return []int{}, window, 0, 0, nil
			}
			return []int{0}, window, 0, 0, nil
		}
		first := -1
		for i := 0; i < numRowGroups; i++ {
			if starts[i+1] <= start || starts[i] >= end {
				continue
			}
			if first < 0 {
				first = i
			}
			rowGroups = append(rowGroups, i)
		}
		base := starts[first]
		return rowGroups, window, start - base, end - base, nil

	default:
		rowGroups = make([]int, numRowGroups)
		for i := range rowGroups {
			rowGroups[i] = i
		}
		return rowGroups, indexcodec.Window{Offset: 0, Rows: total}, 0, total, nil
	}
}

func leafIndices(f pqarrow.SchemaField, out []int) []int {
	if len(f.Children) == 0 {
		return append(out, f.ColIndex)
	}
	for _, c := range f.Children {
		out = leafIndices(c, out)
	}
	return out
}

// flatten joins the chunks of col into one array and keeps rows [lo, hi).
func flatten(mem memory.Allocator, col *arrow.Column, lo, hi int64) (arrow.Array, error) {
	chunks := col.Data().Chunks()
	var arr arrow.Array
	switch len(chunks) {
	case 0:
		arr = array.MakeArrayOfNull(mem, col.DataType(), 0)
	case 1:
		arr = chunks[0]
		arr.Retain()
	default:
		var err error
		arr, err = array.Concatenate(chunks, mem)
		if err != nil {
			return nil, fmt.Errorf("error in array.Concatenate for %s: %w", col.Name(), err)
		}
	}
	if lo == 0 && hi == int64(arr.Len()) {
		return arr, nil
	}
	defer arr.Release()
	return array.NewSlice(arr, lo, hi), nil
}

func toCategorical(mem memory.Allocator, arr arrow.Array) (arrow.Array, error) {
	strs, ok := arr.(*array.String)
	if !ok {
		return nil, fmt.Errorf("expected a string array, got %s: %w", arr.DataType(), utils.ErrSchema)
	}
	dt := &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int32, ValueType: arrow.BinaryTypes.String}
	bldr := array.NewDictionaryBuilder(mem, dt).(*array.BinaryDictionaryBuilder)
	defer bldr.Release()
	for i := 0; i < strs.Len(); i++ {
		if strs.IsNull(i) {
			bldr.AppendNull()
			continue
		}
		if err := bldr.AppendString(strs.Value(i)); err != nil {
			return nil, fmt.Errorf("error in AppendString: %w", err)
		}
	}
	return bldr.NewArray(), nil
}

func pandasMetadata(rdr *file.Reader) (*indexcodec.PandasMetadata, error) {
	raw := rdr.MetaData().KeyValueMetadata().FindValue(indexcodec.MetadataKey)
	if raw == nil {
		return nil, nil
	}
	meta, err := indexcodec.ParseMetadata([]byte(*raw))
	if err != nil {
		logger.Warn().Err(err).Msg("ignoring unreadable pandas metadata")
		return nil, nil
	}
	return meta, nil
}
