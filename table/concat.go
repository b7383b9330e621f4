package table

import (
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/danthegoodman1/pqframe/utils"
)

// Concat stacks tables with the same columns. Range indexes that continue
// one another stay a RangeIndex; otherwise their labels are materialized as
// an int64 NamedIndex. All tables must carry the same kind of index.
func Concat(mem memory.Allocator, tables ...*Table) (*Table, error) {
	if len(tables) == 0 {
		return New(nil, nil)
	}
	if len(tables) == 1 {
		return tables[0], nil
	}

	first := tables[0]
	cols := make([]Column, len(first.Columns))
	for i, col := range first.Columns {
		parts := make([]arrow.Array, len(tables))
		for j, t := range tables {
			if len(t.Columns) != len(first.Columns) || t.Columns[i].Name != col.Name {
				return nil, fmt.Errorf("table %d columns %v differ from %v: %w", j, t.ColumnNames(), first.ColumnNames(), utils.ErrSchema)
			}
			parts[j] = t.Columns[i].Data
		}
		data, err := concatArrays(mem, col.Name, parts)
		if err != nil {
			return nil, err
		}
		cols[i] = Column{Name: col.Name, Data: data}
	}

	idx, err := concatIndexes(mem, tables)
	if err != nil {
		return nil, err
	}
	return New(cols, idx)
}

func concatArrays(mem memory.Allocator, name string, parts []arrow.Array) (arrow.Array, error) {
	for _, p := range parts[1:] {
		if !arrow.TypeEqual(p.DataType(), parts[0].DataType()) {
			return nil, fmt.Errorf("column %q is %s and %s: %w", name, parts[0].DataType(), p.DataType(), utils.ErrSchema)
		}
	}
	out, err := array.Concatenate(parts, mem)
	if err != nil {
		return nil, fmt.Errorf("error in array.Concatenate for %q: %w", name, err)
	}
	return out, nil
}

func concatIndexes(mem memory.Allocator, tables []*Table) (Index, error) {
	switch first := tables[0].Index.(type) {
	case nil:
		for j, t := range tables {
			if t.Index != nil {
				return nil, fmt.Errorf("table %d has an index, table 0 does not: %w", j, utils.ErrSchema)
			}
		}
		return nil, nil

	case RangeIndex:
		ranges := make([]RangeIndex, len(tables))
		contiguous := true
		for j, t := range tables {
			r, ok := t.Index.(RangeIndex)
			if !ok {
				return nil, fmt.Errorf("table %d index is %T, not RangeIndex: %w", j, t.Index, utils.ErrSchema)
			}
			ranges[j] = r
			if j > 0 {
				prev := ranges[j-1]
				contiguous = contiguous && r.Step == prev.Step && r.Start == prev.Start+prev.Len()*prev.Step && utils.StrPtrEqual(r.Name, prev.Name)
			}
		}
		if contiguous {
			last := ranges[len(ranges)-1]
			return RangeIndex{Name: first.Name, Start: first.Start, Stop: last.Start + last.Len()*last.Step, Step: first.Step}, nil
		}
		bldr := array.NewInt64Builder(mem)
		defer bldr.Release()
		for _, r := range ranges {
			for i := int64(0); i < r.Len(); i++ {
				bldr.Append(r.Value(i))
			}
		}
		return NamedIndex{Name: first.Name, Values: bldr.NewArray()}, nil

	case NamedIndex:
		parts := make([]arrow.Array, len(tables))
		for j, t := range tables {
			n, ok := t.Index.(NamedIndex)
			if !ok {
				return nil, fmt.Errorf("table %d index is %T, not NamedIndex: %w", j, t.Index, utils.ErrSchema)
			}
			parts[j] = n.Values
		}
		values, err := concatArrays(mem, "index", parts)
		if err != nil {
			return nil, err
		}
		return NamedIndex{Name: first.Name, Values: values}, nil

	case MultiIndex:
		levels := make([]arrow.Array, len(first.Levels))
		for l := range first.Levels {
			parts := make([]arrow.Array, len(tables))
			for j, t := range tables {
				m, ok := t.Index.(MultiIndex)
				if !ok || len(m.Levels) != len(first.Levels) {
					return nil, fmt.Errorf("table %d index does not match table 0's %d levels: %w", j, len(first.Levels), utils.ErrSchema)
				}
				parts[j] = m.Levels[l]
			}
			lvl, err := concatArrays(mem, fmt.Sprintf("index level %d", l), parts)
			if err != nil {
				return nil, err
			}
			levels[l] = lvl
		}
		return MultiIndex{Names: first.Names, Levels: levels}, nil

	default:
		return nil, fmt.Errorf("unknown index type %T: %w", first, utils.ErrSchema)
	}
}
