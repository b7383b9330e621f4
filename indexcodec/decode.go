package indexcodec

import (
	"github.com/apache/arrow/go/v17/arrow"
	"github.com/danthegoodman1/pqframe/table"
)

// Window locates the rows a read returned within the file: the first row's
// position and the number of rows. Range indexes are clipped to it.
type Window struct {
	Offset int64
	Rows   int64
}

// Decode splits read columns into data columns and the reconstructed index.
// With useMetadata false, or without metadata, every column is data.
//
// The first descriptor designates the index. A range descriptor rebuilds a
// RangeIndex over the window. A column descriptor is honoured only when that
// column was read; it and any further descriptor columns that were read are
// moved out of the data columns by name.
func Decode(cols []table.Column, meta *PandasMetadata, useMetadata bool, window Window) ([]table.Column, table.Index) {
	if !useMetadata || meta == nil || len(meta.IndexColumns) == 0 {
		return cols, nil
	}

	first := meta.IndexColumns[0]
	if first.IsRange() {
		r := first.Range
		step := r.Step
		if step == 0 {
			step = 1
		}
		start := r.Start + window.Offset*step
		return cols, table.RangeIndex{
			Name:  r.Name,
			Start: start,
			Stop:  start + window.Rows*step,
			Step:  step,
		}
	}

	if !hasColumn(cols, first.Column) {
		return cols, nil
	}

	var (
		names  []*string
		levels []arrow.Array
		taken  = make(map[string]struct{})
	)
	for _, d := range meta.IndexColumns {
		if d.IsRange() {
			continue
		}
		for _, col := range cols {
			if col.Name != d.Column {
				continue
			}
			names = append(names, restoredName(meta, d.Column))
			levels = append(levels, col.Data)
			taken[d.Column] = struct{}{}
			break
		}
	}

	data := make([]table.Column, 0, len(cols)-len(taken))
	for _, col := range cols {
		if _, ok := taken[col.Name]; !ok {
			data = append(data, col)
		}
	}

	if len(levels) == 1 {
		return data, table.NamedIndex{Name: names[0], Values: levels[0]}
	}
	return data, table.MultiIndex{Names: names, Levels: levels}
}

// restoredName applies the backward compatible naming rule: a level keeps the
// name recorded for it, and a generated positional name becomes nil.
func restoredName(meta *PandasMetadata, field string) *string {
	logical, ok := meta.LogicalName(field)
	if !ok {
		logical = &field
	}
	if logical == nil {
		return nil
	}
	if *logical == field && IsGeneratedName(field) {
		return nil
	}
	name := *logical
	return &name
}

func hasColumn(cols []table.Column, name string) bool {
	for _, col := range cols {
		if col.Name == name {
			return true
		}
	}
	return false
}
