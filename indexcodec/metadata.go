package indexcodec

import (
	"bytes"
	"fmt"

	"github.com/danthegoodman1/pqframe/utils"
	"github.com/goccy/go-json"
)

const (
	// MetadataKey is the footer key/value entry that carries the JSON schema.
	MetadataKey = "pandas"

	PandasVersion  = "1.0.0"
	CreatorLibrary = "pqframe"
	CreatorVersion = "0.1.0"
)

type (
	// PandasMetadata is the side-channel schema stored under MetadataKey. The
	// shape is the pandas/pyarrow one, so files stay readable by pandas.
	PandasMetadata struct {
		IndexColumns  []IndexDescriptor `json:"index_columns"`
		ColumnIndexes []ColumnIndex     `json:"column_indexes"`
		// Columns lists data columns in table order, then materialized index
		// columns in index order.
		Columns       []ColumnMetadata `json:"columns"`
		Creator       Creator          `json:"creator"`
		PandasVersion string           `json:"pandas_version"`
	}

	// IndexDescriptor is either the name of a materialized index column or a
	// range description. Exactly one of Column and Range is set.
	IndexDescriptor struct {
		Column string
		Range  *RangeDescriptor
	}

	RangeDescriptor struct {
		Kind  string  `json:"kind"`
		Name  *string `json:"name"`
		Start int64   `json:"start"`
		Stop  int64   `json:"stop"`
		Step  int64   `json:"step"`
	}

	ColumnMetadata struct {
		Name       *string        `json:"name"`
		FieldName  string         `json:"field_name"`
		PandasType string         `json:"pandas_type"`
		NumpyType  string         `json:"numpy_type"`
		Metadata   map[string]any `json:"metadata"`
	}

	// ColumnIndex describes the column labels themselves (always strings here).
	ColumnIndex struct {
		Name       *string        `json:"name"`
		FieldName  *string        `json:"field_name"`
		PandasType string         `json:"pandas_type"`
		NumpyType  string         `json:"numpy_type"`
		Metadata   map[string]any `json:"metadata"`
	}

	Creator struct {
		Library string `json:"library"`
		Version string `json:"version"`
	}
)

const rangeKind = "range"

func (d IndexDescriptor) IsRange() bool {
	return d.Range != nil
}

func (d IndexDescriptor) MarshalJSON() ([]byte, error) {
	if d.Range != nil {
		return json.Marshal(d.Range)
	}
	return json.Marshal(d.Column)
}

func (d *IndexDescriptor) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		d.Range = nil
		return json.Unmarshal(b, &d.Column)
	}
	var r RangeDescriptor
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	if r.Kind != rangeKind {
		return fmt.Errorf("unknown index descriptor kind %q", r.Kind)
	}
	d.Column = ""
	d.Range = &r
	return nil
}

func stringColumnIndex() ColumnIndex {
	return ColumnIndex{
		PandasType: "unicode",
		NumpyType:  "object",
		Metadata:   map[string]any{"encoding": "UTF-8"},
	}
}

// Marshal renders the metadata as stored in the footer.
func (m *PandasMetadata) Marshal() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("error in json.Marshal: %w", err)
	}
	return b, nil
}

// ParseMetadata decodes the JSON stored under MetadataKey.
func ParseMetadata(raw []byte) (*PandasMetadata, error) {
	var m PandasMetadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("error in json.Unmarshal of pandas metadata: %s: %w", err.Error(), utils.ErrEncoding)
	}
	return &m, nil
}

// IndexColumnNames returns the materialized index column names, in
// descriptor order. Range descriptors are skipped.
func (m *PandasMetadata) IndexColumnNames() []string {
	var names []string
	for _, d := range m.IndexColumns {
		if !d.IsRange() {
			names = append(names, d.Column)
		}
	}
	return names
}

// LogicalName returns the user-facing name recorded for a stored column.
func (m *PandasMetadata) LogicalName(fieldName string) (*string, bool) {
	for _, c := range m.Columns {
		if c.FieldName == fieldName {
			return c.Name, true
		}
	}
	return nil, false
}
