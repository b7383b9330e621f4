package pqwrite

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
	"github.com/danthegoodman1/pqframe/footer"
	"github.com/danthegoodman1/pqframe/gologger"
	"github.com/danthegoodman1/pqframe/indexcodec"
	"github.com/danthegoodman1/pqframe/projector"
	"github.com/danthegoodman1/pqframe/table"
	"github.com/danthegoodman1/pqframe/utils"
	"github.com/rs/zerolog"
)

var logger = gologger.NewComponentLogger("pqwrite")

// WriteTable writes tbl to the parquet file dest. The file appears at dest
// only once it is complete. With cfg.FooterOutputPath set it returns the
// file's footer for a later footer.Merge, otherwise nil.
func WriteTable(ctx context.Context, tbl *table.Table, dest string, cfg Config) (footer.Blob, error) {
	cw, err := NewChunkedWriter(dest, cfg)
	if err != nil {
		return nil, err
	}
	if err := cw.Write(ctx, tbl); err != nil {
		cw.Abort()
		return nil, err
	}
	return cw.Close()
}

// WriteTableTo writes tbl as a complete parquet file to w. footer.FromFileTail
// recovers the footer from the written bytes.
func WriteTableTo(ctx context.Context, tbl *table.Table, w io.Writer, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	prepared, err := prepare(tbl, cfg)
	if err != nil {
		return err
	}
	defer prepared.Release()

	fw, err := pqarrow.NewFileWriter(prepared.Schema(), sinkWriter{w}, cfg.writerProperties(), pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		return fmt.Errorf("error in pqarrow.NewFileWriter: %w", err)
	}
	if err := fw.WriteTable(prepared, cfg.rowGroupSize()); err != nil {
		fw.Close()
		return fmt.Errorf("error in FileWriter.WriteTable: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("error in FileWriter.Close: %w", err)
	}
	zerolog.Ctx(ctx).Debug().Int64("rows", prepared.NumRows()).Msg("wrote parquet to stream")
	return nil
}

// ChunkedWriter streams several tables into one parquet file. The first
// table fixes the column set and the stored index metadata; later tables must
// have the same column names and types.
type ChunkedWriter struct {
	dest string
	cfg  Config

	tmp    *os.File
	buf    *bufio.Writer
	fw     *pqarrow.FileWriter
	schema *arrow.Schema
	rows   int64
	closed bool
}

// NewChunkedWriter validates cfg. No file is created until the first Write.
func NewChunkedWriter(dest string, cfg Config) (*ChunkedWriter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dest == "" {
		return nil, fmt.Errorf("empty destination path: %w", utils.ErrInvalidConfig)
	}
	return &ChunkedWriter{dest: dest, cfg: cfg}, nil
}

// Write appends tbl as one or more row groups.
func (cw *ChunkedWriter) Write(ctx context.Context, tbl *table.Table) error {
	if cw.closed {
		return fmt.Errorf("write after close: %w", utils.ErrInvalidConfig)
	}
	prepared, err := prepare(tbl, cw.cfg)
	if err != nil {
		return err
	}
	defer prepared.Release()

	if cw.fw == nil {
		if err := cw.open(prepared.Schema()); err != nil {
			return err
		}
	} else if !sameColumns(cw.schema, prepared.Schema()) {
		return fmt.Errorf("table columns %v do not match the file's %v: %w", prepared.Schema(), cw.schema, utils.ErrSchema)
	}

	s := time.Now()
	if err := cw.fw.WriteTable(prepared, cw.cfg.rowGroupSize()); err != nil {
		return fmt.Errorf("error in FileWriter.WriteTable: %w", err)
	}
	cw.rows += prepared.NumRows()
	zerolog.Ctx(ctx).Debug().Str("dest", cw.dest).Int64("rows", prepared.NumRows()).Dur("took", time.Since(s)).Msg("wrote table chunk")
	return nil
}

func (cw *ChunkedWriter) open(schema *arrow.Schema) error {
	dir, base := filepath.Split(cw.dest)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return fmt.Errorf("error in os.CreateTemp: %w", err)
	}
	cw.tmp = tmp
	cw.buf = bufio.NewWriterSize(tmp, 1<<20)
	fw, err := pqarrow.NewFileWriter(schema, sinkWriter{cw.buf}, cw.cfg.writerProperties(), pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		cw.Abort()
		return fmt.Errorf("error in pqarrow.NewFileWriter: %w", err)
	}
	cw.fw = fw
	cw.schema = schema
	return nil
}

// Close finishes the file and moves it into place. It returns the footer when
// FooterOutputPath is set. On error nothing is left at the destination.
func (cw *ChunkedWriter) Close() (footer.Blob, error) {
	if cw.closed {
		return nil, fmt.Errorf("writer already closed: %w", utils.ErrInvalidConfig)
	}
	if cw.fw == nil {
		cw.closed = true
		return nil, fmt.Errorf("no table was written to %s: %w", cw.dest, utils.ErrInvalidConfig)
	}
	blob, err := cw.finish()
	if err != nil {
		cw.Abort()
		return nil, err
	}
	cw.closed = true
	logger.Debug().Str("dest", cw.dest).Int64("rows", cw.rows).Bool("footer", blob != nil).Msg("finalized parquet file")
	return blob, nil
}

func (cw *ChunkedWriter) finish() (footer.Blob, error) {
	if err := cw.fw.Close(); err != nil {
		return nil, fmt.Errorf("error in FileWriter.Close: %w", err)
	}
	if err := cw.buf.Flush(); err != nil {
		return nil, fmt.Errorf("error flushing %s: %w", cw.tmp.Name(), err)
	}

	var blob footer.Blob
	if cw.cfg.FooterOutputPath != "" {
		tail, err := readFooter(cw.tmp)
		if err != nil {
			return nil, err
		}
		blob, err = footer.WithFilePath(tail, cw.cfg.FooterOutputPath)
		if err != nil {
			return nil, err
		}
	}

	if err := cw.tmp.Sync(); err != nil {
		return nil, fmt.Errorf("error in Sync: %w", err)
	}
	if err := cw.tmp.Close(); err != nil {
		return nil, fmt.Errorf("error closing temp file: %w", err)
	}
	if err := os.Rename(cw.tmp.Name(), cw.dest); err != nil {
		return nil, fmt.Errorf("error in os.Rename: %w", err)
	}
	return blob, nil
}

// Abort drops the temp file. It is safe to call more than once.
func (cw *ChunkedWriter) Abort() {
	cw.closed = true
	if cw.tmp == nil {
		return
	}
	name := cw.tmp.Name()
	cw.tmp.Close()
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Str("tmp", name).Msg("failed to remove temp file")
	}
	cw.tmp = nil
}

// readFooter reads the framed footer off the end of a finished file.
func readFooter(f *os.File) (footer.Blob, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("error in Stat: %w", err)
	}
	size := info.Size()
	if size < 12 {
		return nil, fmt.Errorf("parquet file of %d bytes is too short: %w", size, utils.ErrEncoding)
	}
	var trailer [8]byte
	if _, err := f.ReadAt(trailer[:], size-8); err != nil {
		return nil, fmt.Errorf("error reading footer trailer: %w", err)
	}
	n := int64(binary.LittleEndian.Uint32(trailer[:4]))
	if n+12 > size {
		return nil, fmt.Errorf("footer length %d exceeds file size %d: %w", n, size, utils.ErrEncoding)
	}
	tail := make([]byte, n+8)
	if _, err := f.ReadAt(tail, size-8-n); err != nil {
		return nil, fmt.Errorf("error reading footer: %w", err)
	}
	return footer.FromFileTail(append([]byte("PAR1"), tail...))
}

// prepare encodes the index and lays out the arrow table to write: index
// columns first, then the data columns.
func prepare(tbl *table.Table, cfg Config) (arrow.Table, error) {
	if err := tbl.Validate(); err != nil {
		return nil, err
	}
	data, err := projector.Project(tbl, cfg.Columns)
	if err != nil {
		return nil, err
	}
	enc, err := indexcodec.Encode(&table.Table{Columns: data, Index: tbl.Index}, cfg.IndexPolicy)
	if err != nil {
		return nil, err
	}

	cols := make([]table.Column, 0, len(enc.IndexColumns)+len(data))
	cols = append(cols, enc.IndexColumns...)
	cols = append(cols, data...)

	fields := make([]arrow.Field, len(cols))
	arrs := make([]arrow.Array, len(cols))
	for i, c := range cols {
		fields[i] = arrow.Field{Name: c.Name, Type: c.Data.DataType(), Nullable: true}
		arrs[i] = c.Data
	}
	md := arrow.NewMetadata([]string{indexcodec.MetadataKey}, []string{string(enc.JSON)})
	schema := arrow.NewSchema(fields, &md)

	rec := array.NewRecord(schema, arrs, tbl.NumRows())
	defer rec.Release()
	return array.NewTableFromRecords(schema, []arrow.Record{rec}), nil
}

func sameColumns(a, b *arrow.Schema) bool {
	if a.NumFields() != b.NumFields() {
		return false
	}
	for i := 0; i < a.NumFields(); i++ {
		fa, fb := a.Field(i), b.Field(i)
		if fa.Name != fb.Name || !arrow.TypeEqual(fa.Type, fb.Type) {
			return false
		}
	}
	return true
}

// sinkWriter hides any io.Closer on w so pqarrow's Close leaves the caller's writer open.
type sinkWriter struct {
	io.Writer
}
