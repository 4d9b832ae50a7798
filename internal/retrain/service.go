package retrain

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"churnpredict/internal/apperrors"
	"churnpredict/internal/combiner"
	"churnpredict/internal/data"
	"churnpredict/internal/evaluation"
	"churnpredict/internal/importance"
	"churnpredict/internal/models"
	"churnpredict/internal/persistence"
	"churnpredict/internal/schema"
	"churnpredict/internal/store"
	"churnpredict/internal/trainer"
)

// modelType is the family every retrain produces.
const modelType = models.AlgorithmGradientBoosting

type Paths struct {
	DatasetDir string
	ModelDir   string
}

type Request struct {
	CompanyID  string
	UploadPath string
	// Name labels the uploaded dataset; defaults to the file name.
	Name string
}

type Outcome struct {
	ModelID           int64
	ModelName         string
	Version           string
	ModelPath         string
	UploadDatasetID   int64
	CombinedDatasetID int64
	CombinedPath      string
	RecordCount       int
	Metrics           evaluation.Summary
	PreviousMetrics   evaluation.Summary
	HasPrevious       bool
	FeatureImportance []importance.Entry
	Message           string
}

// Improvement is the accuracy gain over the previous version.
func (o *Outcome) Improvement() float64 {
	return o.Metrics.Accuracy - o.PreviousMetrics.Accuracy
}

type Service struct {
	paths    Paths
	registry *schema.Registry
	combiner *combiner.Combiner
	trainer  *trainer.Trainer
	store    store.Store
	metrics  *persistence.MetricsFile
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(
	paths Paths,
	registry *schema.Registry,
	comb *combiner.Combiner,
	tr *trainer.Trainer,
	st store.Store,
	metrics *persistence.MetricsFile,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		paths:    paths,
		registry: registry,
		combiner: comb,
		trainer:  tr,
		store:    st,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Retrain validates the upload strictly, merges it into the company's latest
// dataset, trains the next gradient boosting version on the result and
// registers everything. Nothing is registered unless training succeeds.
func (s *Service) Retrain(ctx context.Context, req Request) (*Outcome, error) {
	if req.CompanyID == "" {
		return nil, apperrors.NewValidationError("company id is required")
	}
	log := s.logger.With(zap.String("company", req.CompanyID), zap.String("upload", req.UploadPath))
	log.Info("retrain requested")

	ds, err := data.ReadFile(req.UploadPath)
	if err != nil {
		return nil, err
	}
	normalized, err := s.registry.Validate(ds, schema.Strict)
	if err != nil {
		log.Warn("upload rejected", zap.Error(err))
		return nil, err
	}

	stamp := s.now().Format("20060102_150405")
	company := safeSegment(req.CompanyID)

	uploadPath := filepath.Join(s.paths.DatasetDir, "uploads", company,
		fmt.Sprintf("upload_%s_%s.csv", stamp, shortID()))
	if err := data.WriteFile(normalized, uploadPath); err != nil {
		return nil, apperrors.NewDatasetIOError("error saving upload").WithCause(err)
	}

	base, err := s.store.LatestDataset(ctx, req.CompanyID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NewDatasetIOError("no base dataset available for company %s", req.CompanyID)
	}
	if err != nil {
		return nil, err
	}

	combinedPath := filepath.Join(s.paths.DatasetDir, "combined",
		fmt.Sprintf("combined_%s_%s_%s.csv", company, stamp, shortID()))
	combined := s.combiner.Combine(uploadPath, base.FilePath, combinedPath)
	if !combined.OK {
		log.Error("combine failed", zap.String("base", base.FilePath), zap.Error(combined.Err))
		return nil, combined.Err
	}

	version, err := s.store.NextModelVersion(ctx, req.CompanyID, modelType)
	if err != nil {
		return nil, err
	}

	modelPath := filepath.Join(s.paths.ModelDir, company,
		fmt.Sprintf("%s_v%s_%s_%s.model", modelType, version, stamp, shortID()))

	tr := *s.trainer
	tr.Version = version
	trained := tr.Train(combinedPath, modelPath, "")
	if !trained.OK {
		log.Error("training failed", zap.String("message", trained.Message))
		return nil, trained.Err
	}

	previous, hasPrevious, err := s.store.PreviousModelMetrics(ctx, req.CompanyID, modelType)
	if err != nil {
		return nil, err
	}

	name := req.Name
	if name == "" {
		name = filepath.Base(req.UploadPath)
	}
	uploadID, err := s.store.RegisterDataset(ctx, &store.Dataset{
		CompanyID:  req.CompanyID,
		Name:       name,
		FilePath:   uploadPath,
		IsUploaded: true,
		ParentID:   base.ID,
	})
	if err != nil {
		return nil, err
	}
	combinedID, err := s.store.RegisterDataset(ctx, &store.Dataset{
		CompanyID:  req.CompanyID,
		Name:       filepath.Base(combinedPath),
		FilePath:   combinedPath,
		IsCombined: true,
		ParentID:   uploadID,
	})
	if err != nil {
		return nil, err
	}

	modelName := fmt.Sprintf("Gradient Boosting v%s", version)
	modelID, err := s.store.RegisterModel(ctx, &store.Model{
		Name:              modelName,
		Version:           version,
		FilePath:          modelPath,
		ModelType:         modelType,
		CompanyID:         req.CompanyID,
		TrainingDatasetID: combinedID,
	}, trained.Metrics)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		key := strings.TrimSuffix(filepath.Base(modelPath), filepath.Ext(modelPath))
		if err := s.metrics.Update(key, trained.Metrics); err != nil {
			log.Warn("failed to update metrics file", zap.Error(err))
		}
	}

	outcome := &Outcome{
		ModelID:           modelID,
		ModelName:         modelName,
		Version:           version,
		ModelPath:         modelPath,
		UploadDatasetID:   uploadID,
		CombinedDatasetID: combinedID,
		CombinedPath:      combinedPath,
		RecordCount:       combined.RecordCount,
		Metrics:           trained.Metrics,
		PreviousMetrics:   previous,
		HasPrevious:       hasPrevious,
		FeatureImportance: trained.FeatureImportance,
	}
	outcome.Message = fmt.Sprintf("Model %s trained on %d records with accuracy %.4f",
		modelName, combined.RecordCount, trained.Metrics.Accuracy)

	log.Info("retrain complete",
		zap.Int64("model_id", modelID),
		zap.String("version", version),
		zap.Int("records", combined.RecordCount),
		zap.Float64("accuracy", trained.Metrics.Accuracy),
		zap.Float64("improvement", outcome.Improvement()))
	return outcome, nil
}

func shortID() string {
	return uuid.NewString()[:8]
}

func safeSegment(s string) string {
	out := []rune(s)
	for i, r := range out {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			out[i] = '_'
		}
	}
	return string(out)
}
