package projector

import (
	"fmt"

	"github.com/danthegoodman1/pqframe/table"
	"github.com/danthegoodman1/pqframe/utils"
)

// Project returns the data columns of tbl to serialize. With a nil filter
// every data column is returned in table order, otherwise exactly the named
// columns in filter order.
func Project(tbl *table.Table, filter []string) ([]table.Column, error) {
	if filter == nil {
		return append([]table.Column(nil), tbl.Columns...), nil
	}
	idx, err := Resolve(tbl.ColumnNames(), filter)
	if err != nil {
		return nil, err
	}
	cols := make([]table.Column, len(idx))
	for i, j := range idx {
		cols[i] = tbl.Columns[j]
	}
	return cols, nil
}

// Resolve maps filter names onto positions in available, in filter order.
// A nil filter selects everything.
func Resolve(available []string, filter []string) ([]int, error) {
	if filter == nil {
		out := make([]int, len(available))
		for i := range available {
			out[i] = i
		}
		return out, nil
	}
	pos := make(map[string]int, len(available))
	for i, name := range available {
		if _, dup := pos[name]; !dup {
			pos[name] = i
		}
	}
	out := make([]int, 0, len(filter))
	seen := make(map[string]struct{}, len(filter))
	for _, name := range filter {
		i, ok := pos[name]
		if !ok {
			return nil, fmt.Errorf("column not found: %q: %w", name, utils.ErrSchema)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("column %q requested twice: %w", name, utils.ErrSchema)
		}
		seen[name] = struct{}{}
		out = append(out, i)
	}
	return out, nil
}

// Without returns names minus the ones in drop, keeping order.
func Without(names []string, drop []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !utils.ContainsString(drop, n) {
			out = append(out, n)
		}
	}
	return out
}
