package parquet_accumulator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/danthegoodman1/gojsonutils"
	"github.com/danthegoodman1/pqframe/table"
	"github.com/danthegoodman1/pqframe/utils"
)

type (
	// RowAccumulator collects flat JSON rows and infers one arrow type per
	// column: strings become utf8, numbers float64 (JSON can't tell ints
	// apart), booleans bool and arrays a list of their element type.
	RowAccumulator struct {
		columns []arrow.Field
		byName  map[string]int
		rows    []map[string]any
	}
)

var ErrNotFlatMap = errors.New("not a flat map")

func NewRowAccumulator() *RowAccumulator {
	return &RowAccumulator{byName: make(map[string]int)}
}

// WriteJSON flattens a decoded JSON object and accumulates it.
func (ra *RowAccumulator) WriteJSON(obj map[string]any) error {
	flat, err := gojsonutils.Flatten(obj, nil)
	if err != nil {
		return fmt.Errorf("error in gojsonutils.Flatten: %w", err)
	}
	flatMap, ok := flat.(map[string]any)
	if !ok {
		return fmt.Errorf("got %T: %w", flat, ErrNotFlatMap)
	}
	return ra.WriteRow(flatMap)
}

// WriteRow accumulates an already flat row. Columns are ordered by first
// appearance, keys within one row alphabetically.
func (ra *RowAccumulator) WriteRow(row map[string]any) error {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		dt, err := inferType(row[key])
		if err != nil {
			return fmt.Errorf("column %q: %w", key, err)
		}
		if dt == nil {
			// null or empty list, nothing to learn yet
			continue
		}
		i, exists := ra.byName[key]
		if !exists {
			ra.byName[key] = len(ra.columns)
			ra.columns = append(ra.columns, arrow.Field{Name: key, Type: dt, Nullable: true})
			continue
		}
		if !arrow.TypeEqual(ra.columns[i].Type, dt) {
			return fmt.Errorf("column %q is %s, row has %s: %w", key, ra.columns[i].Type, dt, utils.ErrSchema)
		}
	}
	ra.rows = append(ra.rows, row)
	return nil
}

func (ra *RowAccumulator) NumRows() int {
	return len(ra.rows)
}

func (ra *RowAccumulator) GetColumnNames() []string {
	cols := make([]string, len(ra.columns))
	for i, f := range ra.columns {
		cols[i] = f.Name
	}
	return cols
}

// GetColumnTypes returns the types of columns in the same order, either
// `string`, `float`, `bool` or `list(x)` (recursive).
func (ra *RowAccumulator) GetColumnTypes() []string {
	types := make([]string, len(ra.columns))
	for i, f := range ra.columns {
		types[i] = typeName(f.Type)
	}
	return types
}

func (ra *RowAccumulator) Schema() *arrow.Schema {
	return arrow.NewSchema(append([]arrow.Field(nil), ra.columns...), nil)
}

// Table builds the accumulated rows into a table without an index. Missing
// values are null.
func (ra *RowAccumulator) Table(mem memory.Allocator) (*table.Table, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	cols := make([]table.Column, len(ra.columns))
	for i, f := range ra.columns {
		bldr := array.NewBuilder(mem, f.Type)
		for r, row := range ra.rows {
			if err := appendValue(bldr, row[f.Name]); err != nil {
				bldr.Release()
				return nil, fmt.Errorf("row %d column %q: %w", r, f.Name, err)
			}
		}
		cols[i] = table.Column{Name: f.Name, Data: bldr.NewArray()}
		bldr.Release()
	}
	return table.New(cols, nil)
}

func inferType(v any) (arrow.DataType, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string, *string:
		if p, ok := val.(*string); ok && p == nil {
			return nil, nil
		}
		return arrow.BinaryTypes.String, nil
	case float64, float32, int, int32, int64:
		return arrow.PrimitiveTypes.Float64, nil
	case bool:
		return arrow.FixedWidthTypes.Boolean, nil
	case []any:
		for _, item := range val {
			elem, err := inferType(item)
			if err != nil {
				return nil, err
			}
			if elem != nil {
				return arrow.ListOf(elem), nil
			}
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported JSON value %T: %w", v, utils.ErrSchema)
	}
}

func appendValue(b array.Builder, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	switch bldr := b.(type) {
	case *array.StringBuilder:
		switch s := v.(type) {
		case string:
			bldr.Append(s)
		case *string:
			if s == nil {
				bldr.AppendNull()
			} else {
				bldr.Append(*s)
			}
		default:
			return fmt.Errorf("expected string, got %T: %w", v, utils.ErrSchema)
		}
	case *array.Float64Builder:
		switch n := v.(type) {
		case float64:
			bldr.Append(n)
		case float32:
			bldr.Append(float64(n))
		case int:
			bldr.Append(float64(n))
		case int32:
			bldr.Append(float64(n))
		case int64:
			bldr.Append(float64(n))
		default:
			return fmt.Errorf("expected number, got %T: %w", v, utils.ErrSchema)
		}
	case *array.BooleanBuilder:
		flag, ok := v.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T: %w", v, utils.ErrSchema)
		}
		bldr.Append(flag)
	case *array.ListBuilder:
		items, ok := v.([]any)
		if !ok {
			return fmt.Errorf("expected array, got %T: %w", v, utils.ErrSchema)
		}
		bldr.Append(true)
		for _, item := range items {
			if err := appendValue(bldr.ValueBuilder(), item); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("no builder for %T: %w", b, utils.ErrSchema)
	}
	return nil
}

func typeName(dt arrow.DataType) string {
	switch dt.ID() {
	case arrow.STRING:
		return "string"
	case arrow.FLOAT64:
		return "float"
	case arrow.BOOL:
		return "bool"
	case arrow.LIST:
		return fmt.Sprintf("list(%s)", typeName(dt.(*arrow.ListType).Elem()))
	default:
		return dt.String()
	}
}
