package preprocessing

import (
	"fmt"
	"sort"

	"churnpredict/internal/data"
)

func dummyName(column, level string) string {
	return column + "_" + level
}

// Encoder one-hot encodes categorical columns. The output layout is the
// numerical columns in the order given, followed by each categorical
// column's dummies in the order given, levels sorted. With DropFirst the
// first level of every categorical column is omitted.
type Encoder struct {
	Numerical    []string
	Categorical  []string
	DropFirst    bool
	Levels       map[string][]string
	FeatureNames []string
}

func NewEncoder(numerical, categorical []string, dropFirst bool) *Encoder {
	return &Encoder{
		Numerical:   numerical,
		Categorical: categorical,
		DropFirst:   dropFirst,
		Levels:      make(map[string][]string),
	}
}

func (e *Encoder) Fit(ds *data.Dataset) error {
	e.Levels = make(map[string][]string)
	e.FeatureNames = append([]string(nil), e.Numerical...)

	for _, col := range e.Categorical {
		values, err := ds.Column(col)
		if err != nil {
			return fmt.Errorf("failed to fit encoder: %w", err)
		}
		levels := distinctSorted(values)
		e.Levels[col] = levels

		if e.DropFirst && len(levels) > 0 {
			levels = levels[1:]
		}
		for _, level := range levels {
			e.FeatureNames = append(e.FeatureNames, dummyName(col, level))
		}
	}

	return nil
}

// Transform encodes ds into the fitted layout. Levels not seen during Fit
// produce all-zero dummies.
func (e *Encoder) Transform(ds *data.Dataset) ([][]float64, error) {
	if e.FeatureNames == nil {
		return nil, fmt.Errorf("encoder must be fitted before transform")
	}

	position := make(map[string]int, len(e.FeatureNames))
	for i, name := range e.FeatureNames {
		position[name] = i
	}

	numIdx := make([]int, len(e.Numerical))
	for i, col := range e.Numerical {
		idx, ok := ds.ColumnIndex(col)
		if !ok {
			return nil, fmt.Errorf("column %q not found", col)
		}
		numIdx[i] = idx
	}
	catIdx := make([]int, len(e.Categorical))
	for i, col := range e.Categorical {
		idx, ok := ds.ColumnIndex(col)
		if !ok {
			return nil, fmt.Errorf("column %q not found", col)
		}
		catIdx[i] = idx
	}

	X := make([][]float64, ds.Len())
	for r, row := range ds.Rows {
		vec := make([]float64, len(e.FeatureNames))
		for i, idx := range numIdx {
			v, err := data.ParseNumber(row[idx])
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", r, e.Numerical[i], err)
			}
			vec[i] = v
		}
		for i, idx := range catIdx {
			if pos, ok := position[dummyName(e.Categorical[i], row[idx])]; ok {
				vec[pos] = 1
			}
		}
		X[r] = vec
	}

	return X, nil
}

func (e *Encoder) FitTransform(ds *data.Dataset) ([][]float64, error) {
	if err := e.Fit(ds); err != nil {
		return nil, err
	}
	return e.Transform(ds)
}

// EncodeAll expands every column not listed in numerical into one dummy per
// observed level and parses the numerical ones. Column order follows ds.
func EncodeAll(ds *data.Dataset, numerical []string) ([]string, [][]float64, error) {
	isNumeric := make(map[string]bool, len(numerical))
	for _, col := range numerical {
		isNumeric[col] = true
	}

	var numCols, catCols []string
	for _, col := range ds.Columns {
		if isNumeric[col] {
			numCols = append(numCols, col)
		} else {
			catCols = append(catCols, col)
		}
	}

	enc := NewEncoder(numCols, catCols, false)
	X, err := enc.FitTransform(ds)
	if err != nil {
		return nil, nil, err
	}
	return enc.FeatureNames, X, nil
}

type Alignment struct {
	Added   []string
	Dropped []string
}

// EncodeToManifest encodes ds directly into the manifest layout, the same
// columns EncodeAll would produce reordered to manifest. Manifest columns with
// no source are left zero. Levels outside the manifest are reported as
// dropped but never given a column.
func EncodeToManifest(ds *data.Dataset, numerical, manifest []string) ([][]float64, Alignment, error) {
	position := make(map[string]int, len(manifest))
	for i, name := range manifest {
		position[name] = i
	}
	isNumeric := make(map[string]bool, len(numerical))
	for _, col := range numerical {
		isNumeric[col] = true
	}

	type source struct {
		column string
		idx    int
		pos    int
	}

	var report Alignment
	var numCols, catCols []source
	produced := make(map[string]bool, len(manifest))
	for idx, col := range ds.Columns {
		if !isNumeric[col] {
			catCols = append(catCols, source{column: col, idx: idx})
			continue
		}
		pos, ok := position[col]
		if !ok {
			report.Dropped = append(report.Dropped, col)
			continue
		}
		produced[col] = true
		numCols = append(numCols, source{column: col, idx: idx, pos: pos})
	}

	dropped := make(map[string]bool)
	X := make([][]float64, ds.Len())
	for r, row := range ds.Rows {
		vec := make([]float64, len(manifest))
		for _, src := range numCols {
			v, err := data.ParseNumber(row[src.idx])
			if err != nil {
				return nil, Alignment{}, fmt.Errorf("row %d column %s: %w", r, src.column, err)
			}
			vec[src.pos] = v
		}
		for _, src := range catCols {
			name := dummyName(src.column, row[src.idx])
			if pos, ok := position[name]; ok {
				vec[pos] = 1
				produced[name] = true
			} else if !dropped[name] {
				dropped[name] = true
				report.Dropped = append(report.Dropped, name)
			}
		}
		X[r] = vec
	}

	for _, name := range manifest {
		if !produced[name] {
			report.Added = append(report.Added, name)
		}
	}
	return X, report, nil
}

func distinctSorted(values []string) []string {
	seen := make(map[string]struct{})
	for _, v := range values {
		seen[v] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
