package combiner

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"churnpredict/internal/apperrors"
	"churnpredict/internal/data"
	"churnpredict/internal/schema"
)

type Result struct {
	OK          bool
	Message     string
	RecordCount int
	Err         error
}

func failure(err error) Result {
	return Result{OK: false, Message: err.Error(), Err: err}
}

type Combiner struct {
	schema *schema.Schema
	logger *zap.Logger
}

func NewCombiner(s *schema.Schema, logger *zap.Logger) *Combiner {
	if s == nil {
		s = schema.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Combiner{schema: s, logger: logger}
}

// Combine merges the existing dataset with a newly uploaded one and writes
// the result to outPath. Rows are deduplicated on the key column: the last
// occurrence wins and keys keep the position of their first appearance.
func (c *Combiner) Combine(newPath, existingPath, outPath string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			err := apperrors.FromPanic(apperrors.KindDatasetIO, r)
			c.logger.Error("combine panicked", zap.Error(err))
			result = failure(err)
		}
	}()

	if _, err := os.Stat(newPath); err != nil {
		return failure(apperrors.NewDatasetIOError("new dataset file not found: %s", newPath))
	}
	if _, err := os.Stat(existingPath); err != nil {
		return failure(apperrors.NewDatasetIOError("existing dataset file not found: %s", existingPath))
	}

	newDS, err := data.ReadFile(newPath)
	if err != nil {
		return failure(apperrors.NewDatasetIOError("error loading new dataset").WithCause(err))
	}
	existingDS, err := data.ReadFile(existingPath)
	if err != nil {
		return failure(apperrors.NewDatasetIOError("error loading existing dataset").WithCause(err))
	}

	required := c.requiredColumns()
	if missing := newDS.Missing(required); len(missing) > 0 {
		return failure(apperrors.NewValidationError("new dataset is missing required columns: %v", missing))
	}
	if missing := existingDS.Missing(required); len(missing) > 0 {
		return failure(apperrors.NewValidationError("existing dataset is missing required columns: %v", missing))
	}

	combined, err := c.merge(existingDS, newDS, required)
	if err != nil {
		return failure(apperrors.NewDatasetIOError("error combining datasets").WithCause(err))
	}

	if err := data.WriteFile(combined, outPath); err != nil {
		return failure(err)
	}

	c.logger.Info("combined datasets",
		zap.String("existing", existingPath),
		zap.Int("existing_rows", existingDS.Len()),
		zap.String("new", newPath),
		zap.Int("new_rows", newDS.Len()),
		zap.String("output", outPath),
		zap.Int("rows", combined.Len()))

	return Result{
		OK:          true,
		Message:     fmt.Sprintf("Successfully combined datasets with %d records", combined.Len()),
		RecordCount: combined.Len(),
	}
}

func (c *Combiner) requiredColumns() []string {
	key := c.schema.Key()
	required := []string{key}
	for _, col := range c.schema.Features() {
		if col != key {
			required = append(required, col)
		}
	}
	return append(required, c.schema.Target)
}

func (c *Combiner) merge(existing, incoming *data.Dataset, columns []string) (*data.Dataset, error) {
	existingP, err := existing.Project(columns)
	if err != nil {
		return nil, err
	}
	incomingP, err := incoming.Project(columns)
	if err != nil {
		return nil, err
	}
	all, err := existingP.Append(incomingP)
	if err != nil {
		return nil, err
	}

	// key is always column 0 of the projection
	order := make([]string, 0, all.Len())
	latest := make(map[string][]string, all.Len())
	for _, row := range all.Rows {
		key := row[0]
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		latest[key] = row
	}

	rows := make([][]string, len(order))
	for i, key := range order {
		rows[i] = latest[key]
	}
	return data.NewDataset(columns, rows), nil
}
