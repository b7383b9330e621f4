package table

import (
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/danthegoodman1/pqframe/utils"
)

type (
	// Column is one named, homogeneous sequence of values.
	Column struct {
		Name string
		Data arrow.Array
	}

	// Table is an ordered set of uniquely named columns with an optional row
	// index. Column order is significant on write and on read.
	Table struct {
		Columns []Column
		// Index is nil when the table has no row labels.
		Index Index
	}

	// Index is one of RangeIndex, NamedIndex or MultiIndex. The set is closed:
	// code that handles an Index switches over exactly these types.
	Index interface {
		Len() int64
		isIndex()
	}

	// RangeIndex labels rows with start, start+step, ... < stop. It is never
	// stored as a column.
	RangeIndex struct {
		Name  *string
		Start int64
		Stop  int64
		Step  int64
	}

	// NamedIndex labels rows with the values of one column.
	NamedIndex struct {
		Name   *string
		Values arrow.Array
	}

	// MultiIndex labels rows with several positional levels. A nil entry in
	// Names is a level with no name.
	MultiIndex struct {
		Names  []*string
		Levels []arrow.Array
	}
)

func (RangeIndex) isIndex() {}
func (NamedIndex) isIndex() {}
func (MultiIndex) isIndex() {}

func (r RangeIndex) Len() int64 {
	switch {
	case r.Step > 0 && r.Stop > r.Start:
		return (r.Stop - r.Start + r.Step - 1) / r.Step
	case r.Step < 0 && r.Stop < r.Start:
		return (r.Start - r.Stop - r.Step - 1) / -r.Step
	default:
		return 0
	}
}

// Value returns the label of row i.
func (r RangeIndex) Value(i int64) int64 {
	return r.Start + i*r.Step
}

func (n NamedIndex) Len() int64 {
	if n.Values == nil {
		return 0
	}
	return int64(n.Values.Len())
}

func (m MultiIndex) Len() int64 {
	if len(m.Levels) == 0 {
		return 0
	}
	return int64(m.Levels[0].Len())
}

// New builds a table and checks it with Validate.
func New(cols []Column, idx Index) (*Table, error) {
	t := &Table{Columns: cols, Index: idx}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks that names are unique and non-empty and that every column
// and the index describe the same number of rows.
func (t *Table) Validate() error {
	seen := make(map[string]struct{}, len(t.Columns))
	rows := int64(-1)
	for _, col := range t.Columns {
		if col.Name == "" {
			return fmt.Errorf("column with empty name: %w", utils.ErrSchema)
		}
		if _, exists := seen[col.Name]; exists {
			return fmt.Errorf("duplicate column %q: %w", col.Name, utils.ErrSchema)
		}
		seen[col.Name] = struct{}{}
		if col.Data == nil {
			return fmt.Errorf("column %q has no data: %w", col.Name, utils.ErrSchema)
		}
		n := int64(col.Data.Len())
		if rows >= 0 && n != rows {
			return fmt.Errorf("column %q has %d rows, expected %d: %w", col.Name, n, rows, utils.ErrSchema)
		}
		rows = n
	}

	switch idx := t.Index.(type) {
	case nil:
		return nil
	case RangeIndex:
		if idx.Step == 0 {
			return fmt.Errorf("range index step must not be 0: %w", utils.ErrSchema)
		}
	case NamedIndex:
		if idx.Values == nil {
			return fmt.Errorf("named index has no values: %w", utils.ErrSchema)
		}
	case MultiIndex:
		if len(idx.Levels) == 0 || len(idx.Levels) != len(idx.Names) {
			return fmt.Errorf("multi index has %d levels and %d names: %w", len(idx.Levels), len(idx.Names), utils.ErrSchema)
		}
		for i, lvl := range idx.Levels {
			if lvl == nil || lvl.Len() != idx.Levels[0].Len() {
				return fmt.Errorf("multi index level %d length mismatch: %w", i, utils.ErrSchema)
			}
		}
	default:
		return fmt.Errorf("unknown index type %T: %w", idx, utils.ErrSchema)
	}
	if rows >= 0 && t.Index.Len() != rows {
		return fmt.Errorf("index has %d rows, columns have %d: %w", t.Index.Len(), rows, utils.ErrSchema)
	}
	return nil
}

// NumRows is the row count, taken from the columns or else from the index.
func (t *Table) NumRows() int64 {
	if len(t.Columns) > 0 {
		return int64(t.Columns[0].Data.Len())
	}
	if t.Index != nil {
		return t.Index.Len()
	}
	return 0
}

func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// Column looks a column up by name.
func (t *Table) Column(name string) (Column, bool) {
	for _, col := range t.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// Release drops the table's references to its arrays.
func (t *Table) Release() {
	for _, col := range t.Columns {
		if col.Data != nil {
			col.Data.Release()
		}
	}
	switch idx := t.Index.(type) {
	case NamedIndex:
		if idx.Values != nil {
			idx.Values.Release()
		}
	case MultiIndex:
		for _, lvl := range idx.Levels {
			if lvl != nil {
				lvl.Release()
			}
		}
	}
}
