package data

import (
	"fmt"
)

// Dataset is a rectangular table of string cells addressed by column name.
// Components that normalise a dataset work on a Copy and hand that back.
type Dataset struct {
	Columns []string
	Rows    [][]string
	Source  string

	index map[string]int
}

func NewDataset(columns []string, rows [][]string) *Dataset {
	ds := &Dataset{
		Columns: append([]string(nil), columns...),
		Rows:    rows,
	}
	ds.reindex()
	return ds
}

func (ds *Dataset) reindex() {
	ds.index = make(map[string]int, len(ds.Columns))
	for i, col := range ds.Columns {
		if _, dup := ds.index[col]; !dup {
			ds.index[col] = i
		}
	}
}

func (ds *Dataset) Len() int {
	return len(ds.Rows)
}

func (ds *Dataset) Has(column string) bool {
	_, ok := ds.index[column]
	return ok
}

func (ds *Dataset) ColumnIndex(column string) (int, bool) {
	idx, ok := ds.index[column]
	return idx, ok
}

// Missing returns the subset of columns not present in the dataset, in the
// order they were given.
func (ds *Dataset) Missing(columns []string) []string {
	var missing []string
	for _, col := range columns {
		if !ds.Has(col) {
			missing = append(missing, col)
		}
	}
	return missing
}

func (ds *Dataset) Value(row int, column string) string {
	idx, ok := ds.index[column]
	if !ok || idx >= len(ds.Rows[row]) {
		return ""
	}
	return ds.Rows[row][idx]
}

func (ds *Dataset) Column(column string) ([]string, error) {
	idx, ok := ds.index[column]
	if !ok {
		return nil, fmt.Errorf("column %q not found", column)
	}
	values := make([]string, len(ds.Rows))
	for i, row := range ds.Rows {
		if idx < len(row) {
			values[i] = row[idx]
		}
	}
	return values, nil
}

// SetColumn replaces the values of an existing column or appends a new one.
func (ds *Dataset) SetColumn(column string, values []string) error {
	if len(values) != len(ds.Rows) {
		return fmt.Errorf("column %q has %d values, dataset has %d rows", column, len(values), len(ds.Rows))
	}

	idx, ok := ds.index[column]
	if !ok {
		ds.Columns = append(ds.Columns, column)
		idx = len(ds.Columns) - 1
		ds.index[column] = idx
	}

	for i := range ds.Rows {
		for len(ds.Rows[i]) <= idx {
			ds.Rows[i] = append(ds.Rows[i], "")
		}
		ds.Rows[i][idx] = values[i]
	}
	return nil
}

// Project returns a new dataset containing exactly the given columns in the
// given order.
func (ds *Dataset) Project(columns []string) (*Dataset, error) {
	if missing := ds.Missing(columns); len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %v", missing)
	}

	indices := make([]int, len(columns))
	for i, col := range columns {
		indices[i] = ds.index[col]
	}

	rows := make([][]string, len(ds.Rows))
	for i, row := range ds.Rows {
		projected := make([]string, len(indices))
		for j, idx := range indices {
			if idx < len(row) {
				projected[j] = row[idx]
			}
		}
		rows[i] = projected
	}

	out := NewDataset(columns, rows)
	out.Source = ds.Source
	return out, nil
}

// Drop returns a new dataset without the named columns. Unknown names are ignored.
func (ds *Dataset) Drop(columns ...string) *Dataset {
	drop := make(map[string]bool, len(columns))
	for _, col := range columns {
		drop[col] = true
	}

	var keep []string
	for _, col := range ds.Columns {
		if !drop[col] {
			keep = append(keep, col)
		}
	}

	out, _ := ds.Project(keep)
	return out
}

func (ds *Dataset) Copy() *Dataset {
	rows := make([][]string, len(ds.Rows))
	for i, row := range ds.Rows {
		rows[i] = append([]string(nil), row...)
	}
	out := NewDataset(ds.Columns, rows)
	out.Source = ds.Source
	return out
}

// Append concatenates rows of other (which must have the same columns, in any
// order) after the rows of ds into a new dataset.
func (ds *Dataset) Append(other *Dataset) (*Dataset, error) {
	aligned, err := other.Project(ds.Columns)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, ds.Len()+aligned.Len())
	for _, row := range ds.Rows {
		rows = append(rows, append([]string(nil), row...))
	}
	rows = append(rows, aligned.Rows...)

	return NewDataset(ds.Columns, rows), nil
}
