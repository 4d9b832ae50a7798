package preprocessing

import (
	"fmt"
	"sort"

	"churnpredict/internal/data"
)

// Median returns the middle value of values, averaging the two middle values
// when the count is even. values is not modified.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// MostFrequent returns the most common value, breaking ties by the
// lexicographically smallest value.
func MostFrequent(values []string) string {
	counts := make(map[string]int)
	for _, v := range values {
		counts[v]++
	}

	best, bestCount := "", -1
	for v, c := range counts {
		if c > bestCount || (c == bestCount && v < best) {
			best, bestCount = v, c
		}
	}
	return best
}

// Imputer fills missing cells, categorical columns with their most frequent
// value and numerical columns with their median.
type Imputer struct {
	Categorical []string
	Numerical   []string
	Fill        map[string]string
}

func NewImputer(categorical, numerical []string) *Imputer {
	return &Imputer{
		Categorical: categorical,
		Numerical:   numerical,
		Fill:        make(map[string]string),
	}
}

func (im *Imputer) Fit(ds *data.Dataset) error {
	for _, col := range im.Categorical {
		values, err := ds.Column(col)
		if err != nil {
			return fmt.Errorf("failed to fit imputer: %w", err)
		}
		var present []string
		for _, v := range values {
			if !data.IsMissing(v) {
				present = append(present, v)
			}
		}
		im.Fill[col] = MostFrequent(present)
	}

	for _, col := range im.Numerical {
		values, err := ds.Column(col)
		if err != nil {
			return fmt.Errorf("failed to fit imputer: %w", err)
		}
		var present []float64
		for _, v := range values {
			if f, err := data.ParseNumber(v); err == nil {
				present = append(present, f)
			}
		}
		im.Fill[col] = data.FormatNumber(Median(present))
	}

	return nil
}

// Transform fills gaps in place. Numerical cells that do not parse count as gaps.
func (im *Imputer) Transform(ds *data.Dataset) error {
	for _, col := range im.Categorical {
		idx, ok := ds.ColumnIndex(col)
		if !ok {
			return fmt.Errorf("column %q not found", col)
		}
		for _, row := range ds.Rows {
			if data.IsMissing(row[idx]) {
				row[idx] = im.Fill[col]
			}
		}
	}

	for _, col := range im.Numerical {
		idx, ok := ds.ColumnIndex(col)
		if !ok {
			return fmt.Errorf("column %q not found", col)
		}
		for _, row := range ds.Rows {
			if !data.IsNumber(row[idx]) {
				row[idx] = im.Fill[col]
			}
		}
	}

	return nil
}

func (im *Imputer) FitTransform(ds *data.Dataset) error {
	if err := im.Fit(ds); err != nil {
		return err
	}
	return im.Transform(ds)
}
