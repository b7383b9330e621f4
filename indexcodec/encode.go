package indexcodec

import (
	"fmt"
	"regexp"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/danthegoodman1/pqframe/table"
	"github.com/danthegoodman1/pqframe/utils"
)

type Encoded struct {
	// IndexColumns are the materialized index columns, in level order. They
	// are written before the data columns.
	IndexColumns []table.Column
	Metadata     *PandasMetadata
	// JSON is Metadata as stored under MetadataKey.
	JSON []byte
}

var generatedName = regexp.MustCompile(`^__index_level_\d+__$`)

// LevelFieldName is the stored column name for an index level.
func LevelFieldName(name *string, level int) string {
	if name != nil {
		return *name
	}
	return fmt.Sprintf("__index_level_%d__", level)
}

// IsGeneratedName reports whether a stored column name was made up for an
// unnamed index level.
func IsGeneratedName(name string) bool {
	return generatedName.MatchString(name)
}

// Encode computes the index columns to materialize and the JSON schema for
// tbl under policy. Nothing is returned on error.
func Encode(tbl *table.Table, policy Policy) (*Encoded, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	meta := &PandasMetadata{
		IndexColumns:  []IndexDescriptor{},
		ColumnIndexes: []ColumnIndex{},
		Columns:       make([]ColumnMetadata, 0, len(tbl.Columns)),
		Creator:       Creator{Library: CreatorLibrary, Version: CreatorVersion},
		PandasVersion: PandasVersion,
	}

	used := make(map[string]struct{}, len(tbl.Columns))
	for _, col := range tbl.Columns {
		cm, err := columnMetadata(utils.Ptr(col.Name), col.Name, col.Data)
		if err != nil {
			return nil, err
		}
		meta.Columns = append(meta.Columns, cm)
		used[col.Name] = struct{}{}
	}

	enc := &Encoded{Metadata: meta}
	var levels []ColumnMetadata

	addLevel := func(name *string, level int, values arrow.Array, describe bool) error {
		field := LevelFieldName(name, level)
		if _, exists := used[field]; exists {
			return fmt.Errorf("index column %q collides with another column: %w", field, utils.ErrSchema)
		}
		used[field] = struct{}{}
		cm, err := columnMetadata(name, field, values)
		if err != nil {
			return err
		}
		enc.IndexColumns = append(enc.IndexColumns, table.Column{Name: field, Data: values})
		levels = append(levels, cm)
		if describe {
			meta.IndexColumns = append(meta.IndexColumns, IndexDescriptor{Column: field})
		}
		return nil
	}

	if policy != Exclude {
		switch idx := tbl.Index.(type) {
		case nil:
		case table.RangeIndex:
			if idx.Name != nil || policy == Include {
				meta.IndexColumns = append(meta.IndexColumns, IndexDescriptor{Range: &RangeDescriptor{
					Kind:  rangeKind,
					Name:  idx.Name,
					Start: idx.Start,
					Stop:  idx.Stop,
					// always 1, whatever the index's step
					Step: 1,
				}})
			}
		case table.NamedIndex:
			if idx.Name != nil || policy == Include {
				if err := addLevel(idx.Name, 0, idx.Values, true); err != nil {
					return nil, err
				}
			}
		case table.MultiIndex:
			anyNamed := false
			for _, n := range idx.Names {
				anyNamed = anyNamed || n != nil
			}
			if anyNamed || policy == Include {
				for i, lvl := range idx.Levels {
					// unnamed levels are kept positionally as plain data columns
					if err := addLevel(idx.Names[i], i, lvl, idx.Names[i] != nil); err != nil {
						return nil, err
					}
				}
			}
		default:
			return nil, fmt.Errorf("unknown index type %T: %w", idx, utils.ErrEncoding)
		}
		meta.ColumnIndexes = append(meta.ColumnIndexes, stringColumnIndex())
	}

	meta.Columns = append(meta.Columns, levels...)

	b, err := meta.Marshal()
	if err != nil {
		return nil, err
	}
	enc.JSON = b
	return enc, nil
}
