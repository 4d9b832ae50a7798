package data

import (
	"fmt"
	"math"
)

type DataValidator struct{}

func NewDataValidator() *DataValidator {
	return &DataValidator{}
}

func (dv *DataValidator) ValidateMatrix(X [][]float64, y []int) error {
	if len(X) == 0 {
		return fmt.Errorf("dataset is empty")
	}

	if len(X) != len(y) {
		return fmt.Errorf("feature matrix and labels have different lengths: %d vs %d", len(X), len(y))
	}

	nFeatures := len(X[0])
	if nFeatures == 0 {
		return fmt.Errorf("features cannot be empty")
	}

	for i, sample := range X {
		if len(sample) != nFeatures {
			return fmt.Errorf("inconsistent feature count at sample %d: expected %d, got %d", i, nFeatures, len(sample))
		}
		for j, value := range sample {
			if math.IsNaN(value) || math.IsInf(value, 0) {
				return fmt.Errorf("non-finite value at sample %d, feature %d", i, j)
			}
		}
	}

	return nil
}

func (dv *DataValidator) ValidateLabels(y []int) error {
	if len(y) == 0 {
		return fmt.Errorf("labels are empty")
	}

	classCount := make(map[int]int)
	for _, label := range y {
		classCount[label]++
	}

	if len(classCount) < 2 {
		return fmt.Errorf("dataset must have at least 2 classes, found %d", len(classCount))
	}

	return nil
}

type ColumnStats struct {
	Name     string
	Missing  int
	Numeric  int
	Distinct int
}

type DatasetStats struct {
	Rows    int
	Columns []ColumnStats
}

// GetDatasetStats profiles a raw dataset: per column, how many cells are
// missing, how many parse as numbers and how many distinct values appear.
func (dv *DataValidator) GetDatasetStats(ds *Dataset) DatasetStats {
	stats := DatasetStats{Rows: ds.Len()}

	for j, col := range ds.Columns {
		cs := ColumnStats{Name: col}
		distinct := make(map[string]struct{})
		for _, row := range ds.Rows {
			cell := ""
			if j < len(row) {
				cell = row[j]
			}
			if IsMissing(cell) {
				cs.Missing++
				continue
			}
			if IsNumber(cell) {
				cs.Numeric++
			}
			distinct[cell] = struct{}{}
		}
		cs.Distinct = len(distinct)
		stats.Columns = append(stats.Columns, cs)
	}

	return stats
}
