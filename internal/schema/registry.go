package schema

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"churnpredict/internal/apperrors"
	"churnpredict/internal/data"
	"churnpredict/internal/preprocessing"
)

type Mode int

const (
	// Strict rejects any missing or malformed cell. Used for retrain uploads.
	Strict Mode = iota
	// Lenient imputes numeric gaps with the column median. Used for prediction input.
	Lenient
)

func (m Mode) String() string {
	if m == Strict {
		return "strict"
	}
	return "lenient"
}

type Outcome struct {
	OK      bool
	Message string
	Dataset *data.Dataset
}

type Registry struct {
	schema *Schema
	logger *zap.Logger
}

func NewRegistry(s *Schema, logger *zap.Logger) *Registry {
	if s == nil {
		s = Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{schema: s, logger: logger}
}

func (r *Registry) Schema() *Schema {
	return r.schema
}

// Validate checks ds against the schema and returns a normalised copy. The
// input dataset is never modified.
func (r *Registry) Validate(ds *data.Dataset, mode Mode) (*data.Dataset, error) {
	out := ds.Copy()
	r.logger.Info("validating dataset",
		zap.String("mode", mode.String()),
		zap.Int("rows", out.Len()),
		zap.Int("columns", len(out.Columns)))

	key := r.schema.Key()
	if !out.Has(key) {
		ids := make([]string, out.Len())
		for i := range ids {
			ids[i] = fmt.Sprintf("CUST_%d", i)
		}
		if err := out.SetColumn(key, ids); err != nil {
			return nil, apperrors.NewValidationError("failed to add %s column", key).WithCause(err)
		}
		r.logger.Info("synthesised key column", zap.String("column", key))
	}

	required := r.schema.Required()
	if mode == Strict {
		required = append(required, r.schema.Target)
	}
	if missing := out.Missing(required); len(missing) > 0 {
		return nil, apperrors.NewValidationError("missing required columns: %v", missing).
			WithDetails(map[string]any{"missing_columns": missing})
	}

	for _, col := range append(append([]string{}, r.schema.Meta...), r.schema.Categorical...) {
		if err := r.normaliseText(out, col); err != nil {
			return nil, err
		}
	}

	for _, col := range r.schema.Numerical {
		var err error
		if mode == Strict {
			err = r.normaliseNumericStrict(out, col)
		} else {
			err = r.normaliseNumericLenient(out, col)
		}
		if err != nil {
			return nil, err
		}
	}

	if mode == Strict {
		if err := r.checkTarget(out); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func (r *Registry) Check(ds *data.Dataset, mode Mode) Outcome {
	out, err := r.Validate(ds, mode)
	if err != nil {
		r.logger.Warn("dataset rejected", zap.Error(err))
		return Outcome{OK: false, Message: err.Error(), Dataset: ds}
	}
	return Outcome{OK: true, Message: "Dataset is valid", Dataset: out}
}

func (r *Registry) CheckFile(path string, mode Mode) Outcome {
	ds, err := data.ReadFile(path)
	if err != nil {
		return Outcome{OK: false, Message: err.Error()}
	}
	return r.Check(ds, mode)
}

func (r *Registry) normaliseText(ds *data.Dataset, col string) error {
	idx, _ := ds.ColumnIndex(col)
	for i, row := range ds.Rows {
		if data.IsMissing(row[idx]) {
			return apperrors.NewValidationError("column %s has missing values", col).
				WithDetails(map[string]any{"column": col, "row": i})
		}
		row[idx] = strings.TrimSpace(row[idx])
	}
	return nil
}

func (r *Registry) normaliseNumericStrict(ds *data.Dataset, col string) error {
	idx, _ := ds.ColumnIndex(col)
	for i, row := range ds.Rows {
		if data.IsMissing(row[idx]) {
			return apperrors.NewValidationError("column %s has missing values", col).
				WithDetails(map[string]any{"column": col, "row": i})
		}
		v, err := data.ParseNumber(row[idx])
		if err != nil {
			return apperrors.NewValidationError("column %s contains non-numeric values", col).
				WithDetails(map[string]any{"column": col, "row": i, "value": row[idx]})
		}
		row[idx] = data.FormatNumber(v)
	}
	return nil
}

func (r *Registry) normaliseNumericLenient(ds *data.Dataset, col string) error {
	idx, _ := ds.ColumnIndex(col)

	parsed := make([]float64, len(ds.Rows))
	ok := make([]bool, len(ds.Rows))
	var present []float64
	for i, row := range ds.Rows {
		v, err := data.ParseNumber(row[idx])
		if err == nil {
			parsed[i], ok[i] = v, true
			present = append(present, v)
		}
	}

	fill := 0.0
	if len(present) > 0 {
		fill = preprocessing.Median(present)
	}
	if gaps := len(ds.Rows) - len(present); gaps > 0 {
		r.logger.Info("imputing numeric column",
			zap.String("column", col),
			zap.Int("missing", gaps),
			zap.Float64("fill", fill))
	}

	for i, row := range ds.Rows {
		if !ok[i] {
			parsed[i] = fill
		}
		row[idx] = data.FormatNumber(parsed[i])
	}
	return nil
}

func (r *Registry) checkTarget(ds *data.Dataset) error {
	idx, _ := ds.ColumnIndex(r.schema.Target)

	target := preprocessing.NewTargetEncoder()
	bad := make(map[string]struct{})
	for i, row := range ds.Rows {
		if data.IsMissing(row[idx]) {
			return apperrors.NewValidationError("column %s has missing values", r.schema.Target).
				WithDetails(map[string]any{"column": r.schema.Target, "row": i})
		}
		if _, ok := target.Class(row[idx]); !ok {
			bad[row[idx]] = struct{}{}
		}
	}
	if len(bad) == 0 {
		return nil
	}

	values := make([]string, 0, len(bad))
	for v := range bad {
		values = append(values, v)
	}
	sort.Strings(values)
	return apperrors.NewValidationError("column %s has unrecognised values: %v", r.schema.Target, values).
		WithDetails(map[string]any{"column": r.schema.Target, "values": values})
}
