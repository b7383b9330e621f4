package pqread

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/danthegoodman1/pqframe/indexcodec"
	"github.com/danthegoodman1/pqframe/pqwrite"
	"github.com/danthegoodman1/pqframe/table"
	"github.com/danthegoodman1/pqframe/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func mustArray(t *testing.T, dt arrow.DataType, js string) arrow.Array {
	t.Helper()
	arr, _, err := array.FromJSON(memory.DefaultAllocator, dt, strings.NewReader(js))
	require.NoError(t, err)
	return arr
}

// tenRows has x = 0..9 and s = "r0".."r9".
func tenRows(t *testing.T, idx table.Index) *table.Table {
	t.Helper()
	var xs, ss []string
	for i := 0; i < 10; i++ {
		xs = append(xs, string(rune('0'+i)))
		ss = append(ss, `"r`+string(rune('0'+i))+`"`)
	}
	tbl, err := table.New([]table.Column{
		{Name: "x", Data: mustArray(t, arrow.PrimitiveTypes.Int64, "["+strings.Join(xs, ",")+"]")},
		{Name: "s", Data: mustArray(t, arrow.BinaryTypes.String, "["+strings.Join(ss, ",")+"]")},
	}, idx)
	require.NoError(t, err)
	return tbl
}

func write(t *testing.T, tbl *table.Table, cfg pqwrite.Config) string {
	t.Helper()
	dest := filepath.Join(t.TempDir(), "t.parquet")
	_, err := pqwrite.WriteTable(ctx, tbl, dest, cfg)
	require.NoError(t, err)
	return dest
}

func assertColumn(t *testing.T, want arrow.Array, got *table.Table, name string) {
	t.Helper()
	col, ok := got.Column(name)
	require.True(t, ok, "column %s", name)
	assert.True(t, array.Equal(want, col.Data), "column %s: want %s got %s", name, want, col.Data)
}

func TestRoundTripNoIndex(t *testing.T) {
	src := tenRows(t, nil)
	got, err := ReadTable(ctx, DefaultOptions(FromPath(write(t, src, pqwrite.DefaultConfig()))))
	require.NoError(t, err)
	assert.Nil(t, got.Index)
	assert.Equal(t, []string{"x", "s"}, got.ColumnNames())
	assertColumn(t, src.Columns[0].Data, got, "x")
	assertColumn(t, src.Columns[1].Data, got, "s")
}

func TestRoundTripRangeIndex(t *testing.T) {
	path := write(t, tenRows(t, table.RangeIndex{Name: utils.Ptr("idx"), Start: 5, Stop: 15, Step: 1}), pqwrite.DefaultConfig())

	info, err := ReadMetadata(ctx, FromPath(path))
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "s"}, info.Columns, "no idx column in the file")
	require.NotNil(t, info.Pandas)

	got, err := ReadTable(ctx, DefaultOptions(FromPath(path)))
	require.NoError(t, err)
	assert.Equal(t, table.RangeIndex{Name: utils.Ptr("idx"), Start: 5, Stop: 15, Step: 1}, got.Index)
	assert.Equal(t, []string{"x", "s"}, got.ColumnNames())
}

func TestRangeStepStoredAsOne(t *testing.T) {
	path := write(t, tenRows(t, table.RangeIndex{Start: 0, Stop: 20, Step: 2}), pqwrite.Config{IndexPolicy: indexcodec.Include})
	got, err := ReadTable(ctx, DefaultOptions(FromPath(path)))
	require.NoError(t, err)
	assert.Equal(t, table.RangeIndex{Start: 0, Stop: 10, Step: 1}, got.Index)
}

func TestRoundTripNamedIndex(t *testing.T) {
	k := mustArray(t, arrow.BinaryTypes.String, `["a","b","c","d","e","f","g","h","i","j"]`)
	src := tenRows(t, table.NamedIndex{Name: utils.Ptr("k"), Values: k})
	got, err := ReadTable(ctx, DefaultOptions(FromPath(write(t, src, pqwrite.DefaultConfig()))))
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "s"}, got.ColumnNames())
	named, ok := got.Index.(table.NamedIndex)
	require.True(t, ok)
	assert.Equal(t, "k", *named.Name)
	assert.True(t, array.Equal(k, named.Values))
}

func TestRoundTripUnnamedIndexInclude(t *testing.T) {
	k := mustArray(t, arrow.PrimitiveTypes.Int64, "[10,11,12,13,14,15,16,17,18,19]")
	path := write(t, tenRows(t, table.NamedIndex{Values: k}), pqwrite.Config{IndexPolicy: indexcodec.Include})
	got, err := ReadTable(ctx, DefaultOptions(FromPath(path)))
	require.NoError(t, err)
	named, ok := got.Index.(table.NamedIndex)
	require.True(t, ok)
	assert.Nil(t, named.Name)
	assert.True(t, array.Equal(k, named.Values))

	// auto drops it entirely
	path = write(t, tenRows(t, table.NamedIndex{Values: k}), pqwrite.DefaultConfig())
	got, err = ReadTable(ctx, DefaultOptions(FromPath(path)))
	require.NoError(t, err)
	assert.Nil(t, got.Index)
}

func TestRoundTripMultiIndex(t *testing.T) {
	l1 := mustArray(t, arrow.PrimitiveTypes.Int64, "[1,1,1,1,1,2,2,2,2,2]")
	l2 := mustArray(t, arrow.BinaryTypes.String, `["a","b","c","d","e","a","b","c","d","e"]`)
	src := tenRows(t, table.MultiIndex{Names: []*string{utils.Ptr("l1"), utils.Ptr("l2")}, Levels: []arrow.Array{l1, l2}})
	got, err := ReadTable(ctx, DefaultOptions(FromPath(write(t, src, pqwrite.DefaultConfig()))))
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "s"}, got.ColumnNames())
	multi, ok := got.Index.(table.MultiIndex)
	require.True(t, ok)
	require.Len(t, multi.Levels, 2)
	assert.Equal(t, "l1", *multi.Names[0])
	assert.Equal(t, "l2", *multi.Names[1])
	assert.True(t, array.Equal(l1, multi.Levels[0]))
	assert.True(t, array.Equal(l2, multi.Levels[1]))
}

func TestRowSlice(t *testing.T) {
	src := tenRows(t, table.RangeIndex{Name: utils.Ptr("idx"), Start: 5, Stop: 15, Step: 1})
	path := write(t, src, pqwrite.Config{RowGroupSize: 4})

	opts := DefaultOptions(FromPath(path))
	opts.SkipRows = 3
	opts.NumRows = utils.Ptr(int64(2))
	got, err := ReadTable(ctx, opts)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.NumRows())
	assertColumn(t, array.NewSlice(src.Columns[0].Data, 3, 5), got, "x")
	assert.Equal(t, table.RangeIndex{Name: utils.Ptr("idx"), Start: 8, Stop: 10, Step: 1}, got.Index)

	// spans row groups 0..1
	opts.NumRows = utils.Ptr(int64(4))
	got, err = ReadTable(ctx, opts)
	require.NoError(t, err)
	assertColumn(t, array.NewSlice(src.Columns[1].Data, 3, 7), got, "s")

	// runs off the end
	opts.SkipRows = 8
	got, err = ReadTable(ctx, opts)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.NumRows())

	opts.SkipRows = 50
	got, err = ReadTable(ctx, opts)
	require.NoError(t, err)
	assert.EqualValues(t, 0, got.NumRows())
	assert.Equal(t, []string{"x", "s"}, got.ColumnNames())
}

func TestRowGroupIsolation(t *testing.T) {
	src := tenRows(t, table.RangeIndex{Name: utils.Ptr("idx"), Start: 100, Stop: 110, Step: 1})
	path := write(t, src, pqwrite.Config{RowGroupSize: 3})

	info, err := ReadMetadata(ctx, FromPath(path))
	require.NoError(t, err)
	require.Equal(t, []int64{3, 3, 3, 1}, info.RowGroupRows)

	var offset int64
	for k, n := range info.RowGroupRows {
		opts := DefaultOptions(FromPath(path))
		opts.RowGroup = utils.Ptr(k)
		got, err := ReadTable(ctx, opts)
		require.NoError(t, err)
		assert.EqualValues(t, n, got.NumRows(), "row group %d", k)
		assertColumn(t, array.NewSlice(src.Columns[0].Data, offset, offset+n), got, "x")
		assert.Equal(t, table.RangeIndex{Name: utils.Ptr("idx"), Start: 100 + offset, Stop: 100 + offset + n, Step: 1}, got.Index)
		offset += n
	}

	opts := DefaultOptions(FromPath(path))
	opts.RowGroup = utils.Ptr(4)
	_, err = ReadTable(ctx, opts)
	assert.ErrorIs(t, err, utils.ErrInvalidConfig)
}

func TestRowSliceWinsOverRowGroup(t *testing.T) {
	path := write(t, tenRows(t, nil), pqwrite.Config{RowGroupSize: 3})
	opts := DefaultOptions(FromPath(path))
	opts.RowGroup = utils.Ptr(2)
	opts.SkipRows = 1
	got, err := ReadTable(ctx, opts)
	require.NoError(t, err)
	assert.EqualValues(t, 9, got.NumRows())
}

func TestMissingFile(t *testing.T) {
	_, err := ReadTable(ctx, DefaultOptions(FromPath(filepath.Join(t.TempDir(), "nope.parquet"))))
	assert.ErrorIs(t, err, utils.ErrNotFound)
	assert.True(t, errors.Is(err, syscall.ENOENT))
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	_, err = ReadMetadata(ctx, FromPath(filepath.Join(t.TempDir(), "nope.parquet")))
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestColumnFilter(t *testing.T) {
	k := mustArray(t, arrow.PrimitiveTypes.Int32, "[0,1,2,3,4,5,6,7,8,9]")
	path := write(t, tenRows(t, table.NamedIndex{Name: utils.Ptr("k"), Values: k}), pqwrite.DefaultConfig())

	opts := DefaultOptions(FromPath(path))
	opts.Columns = []string{"s", "x"}
	got, err := ReadTable(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"s", "x"}, got.ColumnNames())
	named, ok := got.Index.(table.NamedIndex)
	require.True(t, ok, "index column is read even when not requested")
	assert.True(t, array.Equal(k, named.Values))

	opts.Columns = []string{"x"}
	opts.UsePandasMetadata = false
	got, err = ReadTable(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got.ColumnNames())
	assert.Nil(t, got.Index)

	opts.Columns = []string{"x", "missing"}
	_, err = ReadTable(ctx, opts)
	assert.ErrorIs(t, err, utils.ErrSchema)
}

func TestWithoutPandasMetadata(t *testing.T) {
	k := mustArray(t, arrow.PrimitiveTypes.Int32, "[0,1,2,3,4,5,6,7,8,9]")
	path := write(t, tenRows(t, table.NamedIndex{Name: utils.Ptr("k"), Values: k}), pqwrite.DefaultConfig())
	got, err := ReadTable(ctx, Options{Source: FromPath(path)})
	require.NoError(t, err)
	assert.Nil(t, got.Index)
	assert.Equal(t, []string{"k", "x", "s"}, got.ColumnNames())
}

func TestStringsToCategorical(t *testing.T) {
	path := write(t, tenRows(t, nil), pqwrite.DefaultConfig())
	opts := DefaultOptions(FromPath(path))
	opts.StringsToCategorical = true
	got, err := ReadTable(ctx, opts)
	require.NoError(t, err)
	s, _ := got.Column("s")
	assert.Equal(t, arrow.DICTIONARY, s.Data.DataType().ID())
	dict := s.Data.(*array.Dictionary)
	assert.Equal(t, 10, dict.Dictionary().Len())
	x, _ := got.Column("x")
	assert.Equal(t, arrow.INT64, x.Data.DataType().ID())
}

func TestFromBuffer(t *testing.T) {
	var buf bytes.Buffer
	src := tenRows(t, table.RangeIndex{Name: utils.Ptr("i"), Start: 0, Stop: 10, Step: 1})
	require.NoError(t, pqwrite.WriteTableTo(ctx, src, &buf, pqwrite.DefaultConfig()))
	got, err := ReadTable(ctx, DefaultOptions(FromBuffer(buf.Bytes())))
	require.NoError(t, err)
	assertColumn(t, src.Columns[0].Data, got, "x")
	assert.Equal(t, src.Index, got.Index)

	_, err = ReadTable(ctx, DefaultOptions(FromBuffer([]byte("not parquet"))))
	assert.Error(t, err)
}

func TestTypesRoundTrip(t *testing.T) {
	ts := mustArray(t, &arrow.TimestampType{Unit: arrow.Millisecond, TimeZone: "UTC"}, `["2024-01-01T00:00:00Z", null]`)
	dates := mustArray(t, arrow.FixedWidthTypes.Date32, `["2024-01-01", "2024-02-29"]`)
	flags := mustArray(t, arrow.FixedWidthTypes.Boolean, `[true, null]`)
	lists := mustArray(t, arrow.ListOf(arrow.PrimitiveTypes.Int64), `[[1,2], []]`)
	tbl, err := table.New([]table.Column{
		{Name: "ts", Data: ts},
		{Name: "d", Data: dates},
		{Name: "b", Data: flags},
		{Name: "l", Data: lists},
	}, nil)
	require.NoError(t, err)

	got, err := ReadTable(ctx, DefaultOptions(FromPath(write(t, tbl, pqwrite.Config{Compression: pqwrite.CompressionZstd}))))
	require.NoError(t, err)
	assertColumn(t, ts, got, "ts")
	assertColumn(t, dates, got, "d")
	assertColumn(t, flags, got, "b")
	l, ok := got.Column("l")
	require.True(t, ok)
	assert.Equal(t, arrow.LIST, l.Data.DataType().ID())
	assert.Equal(t, 2, l.Data.Len())
}

func TestNegativeOptions(t *testing.T) {
	opts := DefaultOptions(FromPath("whatever"))
	opts.SkipRows = -1
	_, err := ReadTable(ctx, opts)
	assert.ErrorIs(t, err, utils.ErrInvalidConfig)
}

func TestCategoricalRoundTrip(t *testing.T) {
	strDict := array.NewDictionaryArray(
		&arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int32, ValueType: arrow.BinaryTypes.String},
		mustArray(t, arrow.PrimitiveTypes.Int32, "[0,1,0]"),
		mustArray(t, arrow.BinaryTypes.String, `["a","b"]`))
	tbl, err := table.New([]table.Column{{Name: "ds", Data: strDict}}, nil)
	require.NoError(t, err)

	got, err := ReadTable(ctx, DefaultOptions(FromPath(write(t, tbl, pqwrite.DefaultConfig()))))
	require.NoError(t, err)
	ds, ok := got.Column("ds")
	require.True(t, ok)
	assert.True(t, arrow.TypeEqual(strDict.DataType(), ds.Data.DataType()), "got %s", ds.Data.DataType())

	intDict := array.NewDictionaryArray(
		&arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int32, ValueType: arrow.PrimitiveTypes.Int64},
		mustArray(t, arrow.PrimitiveTypes.Int32, "[0,1,0]"),
		mustArray(t, arrow.PrimitiveTypes.Int64, "[10,20]"))
	tbl, err = table.New([]table.Column{{Name: "d", Data: intDict}}, nil)
	require.NoError(t, err)
	dest := filepath.Join(t.TempDir(), "d.parquet")
	_, err = pqwrite.WriteTable(ctx, tbl, dest, pqwrite.DefaultConfig())
	assert.ErrorIs(t, err, utils.ErrEncoding)
}
