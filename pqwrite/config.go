package pqwrite

import (
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/compress"
	"github.com/danthegoodman1/pqframe/indexcodec"
	"github.com/danthegoodman1/pqframe/utils"
)

type (
	Compression string
	Statistics  string

	Config struct {
		IndexPolicy indexcodec.Policy
		// Compression defaults to CompressionNone.
		Compression Compression
		// Statistics defaults to StatisticsRowGroup.
		Statistics Statistics
		// FooterOutputPath, when set, makes the write return the file's footer
		// with every column chunk's file_path set to this value.
		FooterOutputPath string
		// RowGroupSize caps rows per row group. Zero means DefaultRowGroupSize.
		RowGroupSize int64
		// Columns restricts the data columns written, in this order. Nil
		// writes every data column. Index columns are unaffected.
		Columns []string
	}
)

const (
	CompressionNone   Compression = "none"
	CompressionSnappy Compression = "snappy"
	CompressionGzip   Compression = "gzip"
	CompressionZstd   Compression = "zstd"
	CompressionBrotli Compression = "brotli"

	StatisticsNone     Statistics = "none"
	StatisticsRowGroup Statistics = "rowgroup"
	StatisticsPage     Statistics = "page"

	DefaultRowGroupSize int64 = 1_000_000

	// pageStatsPageSize shrinks data pages so page level min/max stay selective.
	pageStatsPageSize int64 = 64 * 1024
)

var codecs = map[Compression]compress.Compression{
	CompressionNone:   compress.Codecs.Uncompressed,
	CompressionSnappy: compress.Codecs.Snappy,
	CompressionGzip:   compress.Codecs.Gzip,
	CompressionZstd:   compress.Codecs.Zstd,
	CompressionBrotli: compress.Codecs.Brotli,
}

func DefaultConfig() Config {
	return Config{
		IndexPolicy: indexcodec.Auto,
		Compression: CompressionNone,
		Statistics:  StatisticsRowGroup,
	}
}

func ParseCompression(s string) (Compression, error) {
	c := Compression(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return CompressionNone, nil
	}
	if _, ok := codecs[c]; !ok {
		return "", fmt.Errorf("unsupported compression %q: %w", s, utils.ErrInvalidConfig)
	}
	return c, nil
}

func ParseStatistics(s string) (Statistics, error) {
	st := Statistics(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case "":
		return StatisticsRowGroup, nil
	case StatisticsNone, StatisticsRowGroup, StatisticsPage:
		return st, nil
	default:
		return "", fmt.Errorf("unsupported statistics level %q: %w", s, utils.ErrInvalidConfig)
	}
}

// Validate checks every option. It does no I/O.
func (c Config) Validate() error {
	if err := c.IndexPolicy.Validate(); err != nil {
		return err
	}
	if c.Compression != "" {
		if _, ok := codecs[c.Compression]; !ok {
			return fmt.Errorf("unsupported compression %q: %w", c.Compression, utils.ErrInvalidConfig)
		}
	}
	switch c.Statistics {
	case "", StatisticsNone, StatisticsRowGroup, StatisticsPage:
	default:
		return fmt.Errorf("unsupported statistics level %q: %w", c.Statistics, utils.ErrInvalidConfig)
	}
	if c.RowGroupSize < 0 {
		return fmt.Errorf("negative row group size %d: %w", c.RowGroupSize, utils.ErrInvalidConfig)
	}
	return nil
}

func (c Config) rowGroupSize() int64 {
	if c.RowGroupSize == 0 {
		return DefaultRowGroupSize
	}
	return c.RowGroupSize
}

// writerProperties maps a validated Config onto parquet writer properties.
func (c Config) writerProperties() *parquet.WriterProperties {
	codec := compress.Codecs.Uncompressed
	if c.Compression != "" {
		codec = codecs[c.Compression]
	}
	opts := []parquet.WriterProperty{
		parquet.WithCompression(codec),
		parquet.WithMaxRowGroupLength(c.rowGroupSize()),
		parquet.WithCreatedBy(indexcodec.CreatorLibrary + " version " + indexcodec.CreatorVersion),
	}
	switch c.Statistics {
	case StatisticsNone:
		opts = append(opts, parquet.WithStats(false))
	case StatisticsPage:
		opts = append(opts, parquet.WithStats(true), parquet.WithDataPageSize(pageStatsPageSize))
	default:
		opts = append(opts, parquet.WithStats(true))
	}
	return parquet.NewWriterProperties(opts...)
}
