package footer

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/apache/arrow/go/v17/parquet/metadata"
	"github.com/danthegoodman1/pqframe/gologger"
	"github.com/danthegoodman1/pqframe/indexcodec"
	"github.com/danthegoodman1/pqframe/utils"
)

var logger = gologger.NewComponentLogger("footer")

// Blob is a serialized parquet footer framed as a standalone file:
// "PAR1" | thrift FileMetaData | uint32 LE length | "PAR1". It is a valid
// _metadata sidecar as is. A zero length Blob means "no row groups".
type Blob []byte

var magic = []byte("PAR1")

const frameLen = 4 + 4 + 4

// Encode frames md as a Blob.
func Encode(md *metadata.FileMetaData) (Blob, error) {
	var buf bytes.Buffer
	buf.Write(magic)
	n, err := md.WriteTo(&buf, nil)
	if err != nil {
		return nil, fmt.Errorf("error in FileMetaData.WriteTo: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(n)); err != nil {
		return nil, fmt.Errorf("error in binary.Write: %w", err)
	}
	buf.Write(magic)
	return Blob(buf.Bytes()), nil
}

// Decode parses a framed Blob. It never modifies b.
func Decode(b Blob) (*metadata.FileMetaData, error) {
	if len(b) < frameLen {
		return nil, fmt.Errorf("footer blob of %d bytes is too short: %w", len(b), utils.ErrEncoding)
	}
	if !bytes.Equal(b[:4], magic) || !bytes.Equal(b[len(b)-4:], magic) {
		return nil, fmt.Errorf("footer blob is missing PAR1 magic: %w", utils.ErrEncoding)
	}
	n := int(binary.LittleEndian.Uint32(b[len(b)-8 : len(b)-4]))
	if n != len(b)-frameLen {
		return nil, fmt.Errorf("footer blob length %d does not match frame (%d): %w", n, len(b)-frameLen, utils.ErrEncoding)
	}
	thrift := make([]byte, n)
	copy(thrift, b[4:4+n])
	md, err := metadata.NewFileMetaData(thrift, nil)
	if err != nil {
		return nil, fmt.Errorf("error in metadata.NewFileMetaData: %s: %w", err.Error(), utils.ErrEncoding)
	}
	return md, nil
}

// FromFileTail extracts the footer of a complete parquet file as a Blob.
func FromFileTail(file []byte) (Blob, error) {
	if len(file) < frameLen {
		return nil, fmt.Errorf("parquet file of %d bytes is too short: %w", len(file), utils.ErrEncoding)
	}
	n := int(binary.LittleEndian.Uint32(file[len(file)-8 : len(file)-4]))
	if n+frameLen > len(file) || !bytes.Equal(file[len(file)-4:], magic) {
		return nil, fmt.Errorf("parquet file footer is malformed: %w", utils.ErrEncoding)
	}
	out := make(Blob, 0, n+frameLen)
	out = append(out, magic...)
	out = append(out, file[len(file)-8-n:]...)
	return out, nil
}

// WithFilePath returns a copy of b whose column chunks all point at path.
func WithFilePath(b Blob, path string) (Blob, error) {
	md, err := Decode(b)
	if err != nil {
		return nil, err
	}
	md.SetFilePath(path)
	return Encode(md)
}

// Merge concatenates the row groups of blobs, in order, into one footer.
// Every non-empty blob must carry the same parquet schema. Key/value metadata
// and writer details come from the first non-empty blob; row counts are
// summed and chunk offsets are left as written. Empty blobs are skipped, and
// merging nothing yields an empty Blob.
func Merge(blobs []Blob) (Blob, error) {
	var merged *metadata.FileMetaData
	parts := 0
	for i, b := range blobs {
		if len(b) == 0 {
			continue
		}
		md, err := Decode(b)
		if err != nil {
			return nil, fmt.Errorf("error decoding footer %d: %w", i, err)
		}
		parts++
		if merged == nil {
			merged = md
			continue
		}
		if !merged.Schema.Equals(md.Schema) {
			return nil, fmt.Errorf("footer %d schema differs from footer 0: %w", i, utils.ErrSchemaMismatch)
		}
		if err := merged.AppendRowGroups(md); err != nil {
			return nil, fmt.Errorf("error in AppendRowGroups for footer %d: %s: %w", i, err.Error(), utils.ErrSchemaMismatch)
		}
	}
	if merged == nil {
		return Blob{}, nil
	}

	out, err := Encode(merged)
	if err != nil {
		return nil, err
	}
	logger.Debug().Int("inputs", len(blobs)).Int("merged", parts).Int("rowGroups", len(merged.RowGroups)).Int64("rows", merged.NumRows).Msg("merged footers")
	return out, nil
}

// FilePaths lists the file_path of each row group's first column chunk, in
// row group order. Row groups written without a path report "".
func FilePaths(b Blob) ([]string, error) {
	if len(b) == 0 {
		return nil, nil
	}
	md, err := Decode(b)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(md.RowGroups))
	for i := range paths {
		rg := md.RowGroup(i)
		if rg.NumColumns() == 0 {
			continue
		}
		cc, err := rg.ColumnChunk(0)
		if err != nil {
			return nil, fmt.Errorf("error in ColumnChunk: %w", err)
		}
		paths[i] = cc.FilePath()
	}
	return paths, nil
}

// Info is a summary of a footer, used for logging and the HTTP surface.
type Info struct {
	NumRows      int64
	NumRowGroups int
	RowGroupRows []int64
	Pandas       *string
}

func Describe(b Blob) (*Info, error) {
	if len(b) == 0 {
		return &Info{}, nil
	}
	md, err := Decode(b)
	if err != nil {
		return nil, err
	}
	info := &Info{NumRows: md.NumRows, NumRowGroups: len(md.RowGroups)}
	for i := 0; i < len(md.RowGroups); i++ {
		info.RowGroupRows = append(info.RowGroupRows, md.RowGroup(i).NumRows())
	}
	info.Pandas = md.KeyValueMetadata().FindValue(indexcodec.MetadataKey)
	return info, nil
}
