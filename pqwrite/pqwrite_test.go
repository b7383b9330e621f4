package pqwrite

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet/compress"
	"github.com/apache/arrow/go/v17/parquet/file"
	"github.com/danthegoodman1/pqframe/footer"
	"github.com/danthegoodman1/pqframe/indexcodec"
	"github.com/danthegoodman1/pqframe/table"
	"github.com/danthegoodman1/pqframe/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
)

func mustArray(t *testing.T, dt arrow.DataType, js string) arrow.Array {
	t.Helper()
	arr, _, err := array.FromJSON(memory.DefaultAllocator, dt, strings.NewReader(js))
	require.NoError(t, err)
	return arr
}

func sampleTable(t *testing.T, idx table.Index) *table.Table {
	t.Helper()
	tbl, err := table.New([]table.Column{
		{Name: "x", Data: mustArray(t, arrow.PrimitiveTypes.Int64, "[1,2,3,4,5,6]")},
		{Name: "s", Data: mustArray(t, arrow.BinaryTypes.String, `["a","b","c","d","e","f"]`)},
	}, idx)
	require.NoError(t, err)
	return tbl
}

func openFile(t *testing.T, path string) *file.Reader {
	t.Helper()
	rdr, err := file.OpenParquetFile(path, false)
	require.NoError(t, err)
	t.Cleanup(func() { rdr.Close() })
	return rdr
}

func TestInvalidCompressionCreatesNothing(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.parquet")
	blob, err := WriteTable(context.Background(), sampleTable(t, nil), dest, Config{Compression: "xz"})
	assert.ErrorIs(t, err, utils.ErrInvalidConfig)
	assert.Nil(t, blob)
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, Config{}.Validate())
	assert.ErrorIs(t, Config{Statistics: "column"}.Validate(), utils.ErrInvalidConfig)
	assert.ErrorIs(t, Config{RowGroupSize: -1}.Validate(), utils.ErrInvalidConfig)
	assert.ErrorIs(t, Config{IndexPolicy: indexcodec.Policy(9)}.Validate(), utils.ErrInvalidConfig)

	c, err := ParseCompression("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, c)
	_, err = ParseCompression("lzo")
	assert.ErrorIs(t, err, utils.ErrInvalidConfig)

	s, err := ParseStatistics("")
	require.NoError(t, err)
	assert.Equal(t, StatisticsRowGroup, s)
}

func TestWriteTableStoresPandasMetadata(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.parquet")
	blob, err := WriteTable(context.Background(), sampleTable(t, table.RangeIndex{Name: utils.Ptr("idx"), Start: 5, Stop: 11, Step: 1}), dest, DefaultConfig())
	require.NoError(t, err)
	assert.Nil(t, blob)

	rdr := openFile(t, dest)
	assert.EqualValues(t, 6, rdr.NumRows())
	raw := rdr.MetaData().KeyValueMetadata().FindValue(indexcodec.MetadataKey)
	require.NotNil(t, raw)
	meta, err := indexcodec.ParseMetadata([]byte(*raw))
	require.NoError(t, err)
	require.Len(t, meta.IndexColumns, 1)
	assert.True(t, meta.IndexColumns[0].IsRange())
	// range index is not materialized
	assert.Equal(t, 2, rdr.MetaData().Schema.NumColumns())
}

func TestIndexColumnsWrittenFirst(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.parquet")
	idx := table.NamedIndex{Name: utils.Ptr("k"), Values: mustArray(t, arrow.PrimitiveTypes.Int32, "[9,8,7,6,5,4]")}
	_, err := WriteTable(context.Background(), sampleTable(t, idx), dest, DefaultConfig())
	require.NoError(t, err)

	sc := openFile(t, dest).MetaData().Schema
	require.Equal(t, 3, sc.NumColumns())
	assert.Equal(t, "k", sc.Column(0).Name())
	assert.Equal(t, "x", sc.Column(1).Name())
	assert.Equal(t, "s", sc.Column(2).Name())
}

func TestWriteColumnSubset(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.parquet")
	idx := table.NamedIndex{Name: utils.Ptr("k"), Values: mustArray(t, arrow.PrimitiveTypes.Int32, "[9,8,7,6,5,4]")}
	cfg := DefaultConfig()
	cfg.Columns = []string{"s"}
	_, err := WriteTable(context.Background(), sampleTable(t, idx), dest, cfg)
	require.NoError(t, err)

	sc := openFile(t, dest).MetaData().Schema
	require.Equal(t, 2, sc.NumColumns())
	assert.Equal(t, "k", sc.Column(0).Name())
	assert.Equal(t, "s", sc.Column(1).Name())

	missing := filepath.Join(t.TempDir(), "missing.parquet")
	cfg.Columns = []string{"nope"}
	_, err = WriteTable(context.Background(), sampleTable(t, nil), missing, cfg)
	assert.ErrorIs(t, err, utils.ErrSchema)
	_, statErr := os.Stat(missing)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteTableFooterBlob(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "part.parquet")
	blob, err := WriteTable(context.Background(), sampleTable(t, nil), dest, Config{FooterOutputPath: "p=1/part.parquet", RowGroupSize: 4})
	require.NoError(t, err)
	require.NotEmpty(t, blob)

	paths, err := footer.FilePaths(blob)
	require.NoError(t, err)
	assert.Equal(t, []string{"p=1/part.parquet", "p=1/part.parquet"}, paths)

	info, err := footer.Describe(blob)
	require.NoError(t, err)
	assert.EqualValues(t, 6, info.NumRows)
	assert.Equal(t, []int64{4, 2}, info.RowGroupRows)

	// the file itself is still written
	assert.EqualValues(t, 6, openFile(t, dest).NumRows())
}

func TestCompressionAndStatistics(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.parquet")
	_, err := WriteTable(context.Background(), sampleTable(t, nil), dest, Config{Compression: CompressionGzip, Statistics: StatisticsNone})
	require.NoError(t, err)

	cc, err := openFile(t, dest).MetaData().RowGroup(0).ColumnChunk(0)
	require.NoError(t, err)
	assert.Equal(t, compress.Codecs.Gzip, cc.Compression())
	set, err := cc.StatsSet()
	require.NoError(t, err)
	assert.False(t, set)

	dest = filepath.Join(t.TempDir(), "stats.parquet")
	_, err = WriteTable(context.Background(), sampleTable(t, nil), dest, Config{Compression: CompressionSnappy, Statistics: StatisticsPage})
	require.NoError(t, err)
	cc, err = openFile(t, dest).MetaData().RowGroup(0).ColumnChunk(0)
	require.NoError(t, err)
	set, err = cc.StatsSet()
	require.NoError(t, err)
	assert.True(t, set)
}

func TestEncodingErrorLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.parquet")
	bad := array.MakeArrayOfNull(memory.DefaultAllocator, arrow.FixedWidthTypes.MonthInterval, 2)
	tbl, err := table.New([]table.Column{{Name: "iv", Data: bad}}, nil)
	require.NoError(t, err)

	_, err = WriteTable(context.Background(), tbl, dest, DefaultConfig())
	assert.ErrorIs(t, err, utils.ErrEncoding)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestChunkedWriter(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "chunked.parquet")
	cw, err := NewChunkedWriter(dest, Config{FooterOutputPath: "chunked.parquet"})
	require.NoError(t, err)
	require.NoError(t, cw.Write(context.Background(), sampleTable(t, nil)))
	require.NoError(t, cw.Write(context.Background(), sampleTable(t, nil)))

	other, err := table.New([]table.Column{{Name: "y", Data: mustArray(t, arrow.PrimitiveTypes.Int64, "[1]")}}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, cw.Write(context.Background(), other), utils.ErrSchema)

	_, err = os.Stat(dest)
	assert.True(t, os.IsNotExist(err), "nothing at the destination before Close")

	blob, err := cw.Close()
	require.NoError(t, err)
	info, err := footer.Describe(blob)
	require.NoError(t, err)
	assert.EqualValues(t, 12, info.NumRows)
	assert.Equal(t, 2, info.NumRowGroups)

	_, err = cw.Close()
	assert.Error(t, err)
}

func TestChunkedWriterAbort(t *testing.T) {
	dir := t.TempDir()
	cw, err := NewChunkedWriter(filepath.Join(dir, "gone.parquet"), DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, cw.Write(context.Background(), sampleTable(t, nil)))
	cw.Abort()
	cw.Abort()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteTableTo(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTableTo(context.Background(), sampleTable(t, nil), &buf, DefaultConfig()))
	blob, err := footer.FromFileTail(buf.Bytes())
	require.NoError(t, err)
	info, err := footer.Describe(blob)
	require.NoError(t, err)
	assert.EqualValues(t, 6, info.NumRows)
	assert.NotNil(t, info.Pandas)
}

type closeTracker struct {
	bytes.Buffer
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestWriteTableToLeavesWriterOpen(t *testing.T) {
	var sink closeTracker
	require.NoError(t, WriteTableTo(context.Background(), sampleTable(t, nil), &sink, DefaultConfig()))
	assert.False(t, sink.closed)
	_, err := footer.FromFileTail(sink.Bytes())
	require.NoError(t, err)
}

func TestReadableByParquetGo(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "interop.parquet")
	_, err := WriteTable(context.Background(), sampleTable(t, table.NamedIndex{Name: utils.Ptr("k"), Values: mustArray(t, arrow.PrimitiveTypes.Int64, "[1,2,3,4,5,6]")}), dest, Config{Compression: CompressionSnappy})
	require.NoError(t, err)

	fr, err := local.NewLocalFileReader(dest)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, nil, 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	assert.EqualValues(t, 6, pr.GetNumRows())
	found := false
	for _, kv := range pr.Footer.KeyValueMetadata {
		if kv.Key == indexcodec.MetadataKey {
			found = kv.Value != nil && strings.Contains(*kv.Value, `"index_columns":["k"]`)
		}
	}
	assert.True(t, found, "pandas metadata visible to other readers")
}
