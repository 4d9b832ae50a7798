package inference

import (
	"strings"

	"go.uber.org/zap"

	"churnpredict/internal/apperrors"
	"churnpredict/internal/data"
	"churnpredict/internal/models"
	"churnpredict/internal/persistence"
	"churnpredict/internal/preprocessing"
	"churnpredict/internal/schema"
)

// Threshold is the churn probability at or above which a row is labelled churn.
const Threshold = 0.5

// droppedSample caps how many dropped column names are logged.
const droppedSample = 10

type Engine struct {
	schema *schema.Schema
	batch  *data.BatchProcessor
	logger *zap.Logger
}

func NewEngine(s *schema.Schema, batchSize int, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		schema: s,
		batch:  data.NewBatchProcessor(batchSize),
		logger: logger,
	}
}

func (e *Engine) BatchSize() int {
	return e.batch.GetBatchSize()
}

// Predict labels every row of ds, which must already be normalised by the
// schema registry. proba holds P(no churn), P(churn) per row.
func (e *Engine) Predict(ds *data.Dataset, lm *persistence.LoadedModel) (labels []int, proba [][]float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.FromPanic(apperrors.KindInference, r)
			e.logger.Error("inference panicked", zap.Error(err))
		}
	}()

	if lm == nil || lm.Model == nil {
		return nil, nil, apperrors.NewInferenceError("no model loaded")
	}
	if missing := persistence.MissingCapabilities(lm.Model); len(missing) > 0 {
		return nil, nil, apperrors.NewInferenceError("model does not support %s", strings.Join(missing, ", "))
	}
	if ds == nil || ds.Len() == 0 {
		return nil, nil, apperrors.NewInferenceError("dataset has no rows")
	}

	X, err := e.Matrix(ds, lm)
	if err != nil {
		e.logger.Error("failed to build feature matrix", zap.Error(err))
		return nil, nil, err
	}

	scorer := lm.Model.(models.ProbabilityPredictor)
	proba = make([][]float64, len(X))
	err = e.batch.ProcessBatches(X, func(start int, batch [][]float64) error {
		out := scorer.PredictProba(batch)
		if len(out) != len(batch) {
			return apperrors.NewInferenceError("model returned %d probability rows for %d samples", len(out), len(batch))
		}
		for i, row := range out {
			if len(row) < 2 {
				return apperrors.NewInferenceError("model returned %d probability columns, expected 2", len(row))
			}
			proba[start+i] = row
		}
		return nil
	})
	if err != nil {
		e.logger.Error("prediction failed", zap.Error(err))
		return nil, nil, err
	}

	labels = make([]int, len(proba))
	for i, row := range proba {
		if row[1] >= Threshold {
			labels[i] = 1
		}
	}

	e.logger.Info("predictions computed",
		zap.Int("rows", len(labels)),
		zap.Int("batch_size", e.batch.GetBatchSize()),
		zap.String("family", lm.Family.String()))
	return labels, proba, nil
}

// Matrix encodes ds into the model's input layout: meta and target columns
// dropped, every text column one-hot encoded, then aligned to the feature
// manifest and scaled for neural models.
func (e *Engine) Matrix(ds *data.Dataset, lm *persistence.LoadedModel) ([][]float64, error) {
	drop := append(append([]string(nil), e.schema.Meta...), e.schema.Target)
	features := ds.Drop(drop...)

	var (
		X   [][]float64
		err error
	)
	if len(lm.Features) > 0 {
		var report preprocessing.Alignment
		X, report, err = preprocessing.EncodeToManifest(features, e.schema.Numerical, lm.Features)
		if err != nil {
			return nil, apperrors.NewInferenceError("error encoding features").WithCause(err)
		}
		if len(report.Added) > 0 || len(report.Dropped) > 0 {
			e.logger.Info("aligned features to manifest",
				zap.Int("added", len(report.Added)),
				zap.Int("dropped", len(report.Dropped)),
				zap.Strings("dropped_sample", head(report.Dropped, droppedSample)))
		}
	} else {
		var names []string
		names, X, err = preprocessing.EncodeAll(features, e.schema.Numerical)
		if err != nil {
			return nil, apperrors.NewInferenceError("error encoding features").WithCause(err)
		}
		e.logger.Warn("no feature manifest, using encoded columns as is", zap.Int("columns", len(names)))
	}

	if lm.Family == models.FamilyNeuralNet && lm.Scaler != nil {
		X, err = lm.Scaler.Transform(X)
		if err != nil {
			return nil, apperrors.NewInferenceError("error scaling features").WithCause(err)
		}
	}

	if sized, ok := lm.Model.(interface{ NumFeatures() int }); ok {
		want := sized.NumFeatures()
		if want > 0 && len(X) > 0 && len(X[0]) != want {
			return nil, apperrors.NewInferenceError("model expects %d features, got %d", want, len(X[0]))
		}
	}

	return X, nil
}

func head(names []string, n int) []string {
	if len(names) > n {
		return names[:n]
	}
	return names
}
