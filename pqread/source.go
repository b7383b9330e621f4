package pqread

import (
	"bytes"
	"fmt"
	"os"

	"github.com/apache/arrow/go/v17/parquet/file"
	"github.com/danthegoodman1/pqframe/utils"
)

// Source is a parquet file on disk or already in memory.
type Source struct {
	path string
	buf  []byte
}

func FromPath(path string) Source {
	return Source{path: path}
}

func FromBuffer(b []byte) Source {
	return Source{buf: b}
}

func (s Source) String() string {
	if s.path != "" {
		return s.path
	}
	return fmt.Sprintf("buffer(%d bytes)", len(s.buf))
}

// open checks a path source exists before handing it to the parquet reader,
// so a missing file is reported as ErrNotFound carrying the stat error.
func (s Source) open() (*file.Reader, error) {
	if s.path == "" {
		if s.buf == nil {
			return nil, fmt.Errorf("empty source: %w", utils.ErrInvalidConfig)
		}
		rdr, err := file.NewParquetReader(bytes.NewReader(s.buf))
		if err != nil {
			return nil, fmt.Errorf("error in file.NewParquetReader: %s: %w", err.Error(), utils.ErrEncoding)
		}
		return rdr, nil
	}

	if _, err := os.Stat(s.path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %w", utils.ErrNotFound, err)
		}
		return nil, fmt.Errorf("error in os.Stat: %w", err)
	}
	rdr, err := file.OpenParquetFile(s.path, false)
	if err != nil {
		return nil, fmt.Errorf("error in file.OpenParquetFile: %w", err)
	}
	return rdr, nil
}
