package trainer

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"churnpredict/internal/apperrors"
	"churnpredict/internal/data"
	"churnpredict/internal/evaluation"
	"churnpredict/internal/importance"
	"churnpredict/internal/models"
	"churnpredict/internal/persistence"
	"churnpredict/internal/preprocessing"
	"churnpredict/internal/schema"
)

type Trainer struct {
	Config   models.ModelConfig
	Splitter *evaluation.TrainTestSplitter
	Version  string

	schema *schema.Schema
	logger *zap.Logger
}

// New returns a trainer for the production gradient boosting model.
func New(s *schema.Schema, logger *zap.Logger) *Trainer {
	return NewWithConfig(s, models.DefaultConfig(models.AlgorithmGradientBoosting), logger)
}

func NewWithConfig(s *schema.Schema, config models.ModelConfig, logger *zap.Logger) *Trainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trainer{
		Config:   config,
		Splitter: evaluation.DefaultTrainTestSplitter(),
		schema:   s,
		logger:   logger,
	}
}

// Prepared is a training table encoded into the model layout.
type Prepared struct {
	Dataset  *data.Dataset
	Keys     []string
	X        [][]float64
	Y        []int
	Features []string
}

// HoldOut is the test partition, kept unscaled so callers can replay it
// through a loaded model.
type HoldOut struct {
	Keys []string
	X    [][]float64
	Y    []int
}

type Fitted struct {
	Model        models.Model
	Scaler       *preprocessing.Scaler
	Metrics      *evaluation.ClassificationMetrics
	Predictions  []int
	HoldOut      *HoldOut
	Features     []string
	TrainingTime time.Duration
}

type Result struct {
	OK                bool
	Message           string
	Metrics           evaluation.Summary
	Report            string
	Model             models.Model
	FeatureImportance []importance.Entry
	HoldOut           *HoldOut
	Artifacts         persistence.Artifacts
	Err               error
}

func failure(err error) Result {
	return Result{OK: false, Message: err.Error(), Err: err}
}

// Train fits the configured model on the dataset at datasetPath and writes
// its artifacts. Failures, panics included, are reported in the result.
func (t *Trainer) Train(datasetPath, outModelPath, outFeaturesPath string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			err := apperrors.FromPanic(apperrors.KindTraining, r)
			t.logger.Error("training panicked", zap.String("dataset", datasetPath), zap.Error(err))
			result = failure(err)
		}
	}()

	ds, err := data.ReadFile(datasetPath)
	if err != nil {
		return failure(apperrors.NewTrainingError("error loading dataset").WithCause(err))
	}

	prepared, err := t.Prepare(ds)
	if err != nil {
		return failure(err)
	}

	fitted, err := t.Fit(prepared)
	if err != nil {
		return failure(err)
	}

	bundle := persistence.NewModelBundle(fitted.Model, fitted.Features)
	bundle.Scaler = fitted.Scaler
	bundle.Metadata.Dataset = datasetPath
	bundle.Metadata.Version = t.Version
	bundle.Metadata.Metrics = fitted.Metrics.Summary()
	bundle.Metadata.TrainingTime = fitted.TrainingTime

	artifacts, err := persistence.SaveArtifacts(bundle, outModelPath, outFeaturesPath)
	if err != nil {
		return failure(apperrors.NewTrainingError("error saving model").WithCause(err))
	}

	summary := fitted.Metrics.Summary()
	t.logger.Info("model trained",
		zap.String("algorithm", t.Config.Algorithm),
		zap.String("dataset", datasetPath),
		zap.String("model", artifacts.ModelPath()),
		zap.Int("rows", len(prepared.Y)),
		zap.Int("features", len(fitted.Features)),
		zap.Float64("accuracy", summary.Accuracy),
		zap.Duration("took", fitted.TrainingTime))

	return Result{
		OK:                true,
		Message:           fmt.Sprintf("Model trained successfully with accuracy %.4f", summary.Accuracy),
		Metrics:           summary,
		Report:            fitted.Metrics.FormatMetrics(),
		Model:             fitted.Model,
		FeatureImportance: importance.Ranked(fitted.Model, fitted.Features),
		HoldOut:           fitted.HoldOut,
		Artifacts:         artifacts,
	}
}

// Prepare projects ds onto the schema features, maps the target to {0, 1},
// imputes gaps and one-hot encodes with the first level of each categorical
// column dropped.
func (t *Trainer) Prepare(ds *data.Dataset) (*Prepared, error) {
	features := t.schema.Features()
	target := t.schema.Target

	required := append(append([]string(nil), features...), target)
	if missing := ds.Missing(required); len(missing) > 0 {
		return nil, apperrors.NewTrainingError("dataset is missing required columns: %v", missing).
			WithDetails(map[string]any{"missing": missing})
	}

	columns := required
	key := t.schema.Key()
	hasKey := ds.Has(key) && !contains(features, key)
	if hasKey {
		columns = append([]string{key}, required...)
	}
	table, err := ds.Project(columns)
	if err != nil {
		return nil, apperrors.NewTrainingError("error selecting training columns").WithCause(err)
	}

	labels, err := table.Column(target)
	if err != nil {
		return nil, apperrors.NewTrainingError("error reading target").WithCause(err)
	}
	y, err := preprocessing.NewTargetEncoder().Transform(labels)
	if err != nil {
		return nil, apperrors.NewTrainingError("column %s has unrecognised values", target).WithCause(err)
	}
	if classes := models.ExtractClasses(y); len(classes) < 2 {
		return nil, apperrors.NewTrainingError("column %s has a single class, need both churn and no churn", target)
	}

	var numerical, categorical []string
	for _, col := range t.schema.Numerical {
		if contains(features, col) {
			numerical = append(numerical, col)
		}
	}
	for _, col := range features {
		if !t.schema.IsNumerical(col) {
			categorical = append(categorical, col)
		}
	}

	if err := preprocessing.NewImputer(categorical, numerical).FitTransform(table); err != nil {
		return nil, apperrors.NewTrainingError("error imputing missing values").WithCause(err)
	}

	encoder := preprocessing.NewEncoder(numerical, categorical, true)
	X, err := encoder.FitTransform(table)
	if err != nil {
		return nil, apperrors.NewTrainingError("error encoding features").WithCause(err)
	}

	var keys []string
	if hasKey {
		keys, _ = table.Column(key)
	}

	return &Prepared{
		Dataset:  table,
		Keys:     keys,
		X:        X,
		Y:        y,
		Features: encoder.FeatureNames,
	}, nil
}

// Fit splits p, trains the configured model on the training part and scores
// it on the held-out part.
func (t *Trainer) Fit(p *Prepared) (*Fitted, error) {
	validator := data.NewDataValidator()
	if err := validator.ValidateMatrix(p.X, p.Y); err != nil {
		return nil, apperrors.NewTrainingError("invalid training matrix").WithCause(err)
	}

	trainIdx, testIdx, err := t.Splitter.SplitIndices(len(p.X))
	if err != nil {
		return nil, apperrors.NewTrainingError("error splitting dataset").WithCause(err)
	}
	XTrain, yTrain := evaluation.Subset(p.X, p.Y, trainIdx)
	XTest, yTest := evaluation.Subset(p.X, p.Y, testIdx)
	if err := validator.ValidateLabels(yTrain); err != nil {
		return nil, apperrors.NewTrainingError("training split has a single class").WithCause(err)
	}

	holdOut := &HoldOut{X: XTest, Y: yTest}
	if p.Keys != nil {
		for _, idx := range testIdx {
			holdOut.Keys = append(holdOut.Keys, p.Keys[idx])
		}
	}

	var scaler *preprocessing.Scaler
	if t.Config.NeedsScaling {
		scaler = preprocessing.NewScaler("standard")
		if XTrain, err = scaler.FitTransform(XTrain); err != nil {
			return nil, apperrors.NewTrainingError("error fitting scaler").WithCause(err)
		}
		if XTest, err = scaler.Transform(XTest); err != nil {
			return nil, apperrors.NewTrainingError("error scaling hold-out").WithCause(err)
		}
	}

	model, err := models.CreateModel(t.Config)
	if err != nil {
		return nil, apperrors.NewTrainingError("error creating model").WithCause(err)
	}

	start := time.Now()
	if err := model.Fit(XTrain, yTrain); err != nil {
		return nil, apperrors.NewTrainingError("error fitting %s", t.Config.Algorithm).WithCause(err)
	}
	took := time.Since(start)

	predictions := model.Predict(XTest)
	metrics, err := evaluation.CalculateMetrics(yTest, predictions, []int{0, 1})
	if err != nil {
		return nil, apperrors.NewTrainingError("error scoring model").WithCause(err)
	}

	return &Fitted{
		Model:        model,
		Scaler:       scaler,
		Metrics:      metrics,
		Predictions:  predictions,
		HoldOut:      holdOut,
		Features:     p.Features,
		TrainingTime: took,
	}, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
