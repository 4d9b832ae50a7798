package prediction

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"churnpredict/internal/apperrors"
	"churnpredict/internal/data"
	"churnpredict/internal/importance"
	"churnpredict/internal/inference"
	"churnpredict/internal/persistence"
	"churnpredict/internal/schema"
	"churnpredict/internal/store"
)

type Request struct {
	FilePath string
	ModelID  int64
	Name     string
	Role     string
	UserID   int64
}

type Response struct {
	PredictionID      int64              `json:"prediction_id"`
	PredictionName    string             `json:"prediction_name"`
	ModelID           int64              `json:"model_id"`
	ModelName         string             `json:"model_name"`
	TotalRecords      int                `json:"total_records"`
	ChurnDistribution Distribution       `json:"churn_distribution"`
	FeatureImportance []importance.Entry `json:"feature_importance"`
	DownloadURL       string             `json:"download_url"`
	ResultPath        string             `json:"-"`
	CreatedAt         time.Time          `json:"created_at"`
}

type Service struct {
	registry *schema.Registry
	loader   *persistence.Loader
	engine   *inference.Engine
	resolver *importance.Resolver
	writer   *Writer
	store    store.Store
	logger   *zap.Logger
}

func NewService(
	registry *schema.Registry,
	loader *persistence.Loader,
	engine *inference.Engine,
	resolver *importance.Resolver,
	writer *Writer,
	st store.Store,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry: registry,
		loader:   loader,
		engine:   engine,
		resolver: resolver,
		writer:   writer,
		store:    st,
		logger:   logger,
	}
}

// Process runs one prediction request end to end: read, validate, load,
// predict, explain, save and record. The returned error is the first failure.
func (s *Service) Process(ctx context.Context, req Request) (*Response, error) {
	log := s.logger.With(
		zap.String("file", req.FilePath),
		zap.Int64("model_id", req.ModelID),
		zap.String("role", req.Role))
	log.Info("processing prediction request")

	model, err := s.store.GetModel(ctx, req.ModelID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NewModelLoadError("model not found: %d", req.ModelID)
	}
	if err != nil {
		return nil, err
	}

	ds, err := data.ReadFile(req.FilePath)
	if err != nil {
		log.Error("failed to read dataset", zap.Error(err))
		return nil, err
	}

	normalized, err := s.registry.Validate(ds, schema.Lenient)
	if err != nil {
		log.Error("dataset validation failed", zap.Error(err))
		return nil, err
	}

	lm, err := s.loader.Load(model.FilePath)
	if err != nil {
		log.Error("failed to load model", zap.String("path", model.FilePath), zap.Error(err))
		return nil, err
	}

	labels, proba, err := s.engine.Predict(normalized, lm)
	if err != nil {
		return nil, err
	}

	features := s.featureNames(lm, model, normalized)
	entries := s.resolver.Resolve(lm.Model, features)

	resultPath, filename, err := s.writer.WithRole(req.Role).Save(normalized, labels, proba, req.Name)
	if err != nil {
		log.Error("failed to save prediction results", zap.Error(err))
		return nil, err
	}

	summary := Summarize(labels)
	id, err := s.store.RecordPrediction(ctx, &store.Prediction{
		Name:       req.Name,
		Role:       req.Role,
		UserID:     req.UserID,
		ModelID:    req.ModelID,
		UploadPath: filepath.Base(req.FilePath),
		ResultFile: filename,
		Input: store.PredictionInput{
			FileName:     filepath.Base(req.FilePath),
			TotalRecords: summary.TotalRecords,
		},
		Result: store.PredictionResult{
			ChurnCount:        summary.ChurnDistribution.Churn,
			NoChurnCount:      summary.ChurnDistribution.NoChurn,
			ChurnPercentage:   summary.ChurnDistribution.ChurnRate * 100,
			FeatureImportance: entries,
		},
	})
	if err != nil {
		log.Error("failed to record prediction", zap.Error(err))
		return nil, err
	}

	log.Info("prediction complete",
		zap.Int64("prediction_id", id),
		zap.Int("rows", summary.TotalRecords),
		zap.Float64("churn_rate", summary.ChurnDistribution.ChurnRate))

	return &Response{
		PredictionID:      id,
		PredictionName:    req.Name,
		ModelID:           req.ModelID,
		ModelName:         model.Name,
		TotalRecords:      summary.TotalRecords,
		ChurnDistribution: summary.ChurnDistribution,
		FeatureImportance: entries,
		DownloadURL:       fmt.Sprintf("/api/predictions/%d/download", id),
		ResultPath:        resultPath,
		CreatedAt:         time.Now(),
	}, nil
}

// featureNames prefers the manifest the loader found, then the default
// manifest of the model type, then the input's own feature columns.
func (s *Service) featureNames(lm *persistence.LoadedModel, model *store.Model, ds *data.Dataset) []string {
	if len(lm.Features) > 0 {
		return lm.Features
	}
	if s.loader.DefaultDir != "" && model.ModelType != "" {
		path := filepath.Join(s.loader.DefaultDir, store.TypeKey(model.ModelType)+"_features.json")
		if features, err := persistence.LoadFeatures(path); err == nil {
			return features
		}
	}

	sc := s.registry.Schema()
	drop := append(append([]string(nil), sc.Meta...), sc.Target)
	return ds.Drop(drop...).Columns
}
