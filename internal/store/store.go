package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"churnpredict/internal/evaluation"
	"churnpredict/internal/importance"
)

var ErrNotFound = errors.New("record not found")

// Roles of the account that requested a prediction.
const (
	RoleDeveloper = "dev"
	RoleUser      = "user"
)

type Model struct {
	ID                int64
	Name              string
	Version           string
	FilePath          string
	ModelType         string
	CompanyID         string
	IsDefault         bool
	TrainingDatasetID int64
	CreatedAt         time.Time
}

type Dataset struct {
	ID         int64
	CompanyID  string
	Name       string
	FilePath   string
	IsOriginal bool
	IsUploaded bool
	IsCombined bool
	ParentID   int64
	CreatedAt  time.Time
}

type PredictionInput struct {
	FileName     string `json:"file_name"`
	TotalRecords int    `json:"total_records"`
}

type PredictionResult struct {
	ChurnCount        int                `json:"churn_count"`
	NoChurnCount      int                `json:"no_churn_count"`
	ChurnPercentage   float64            `json:"churn_percentage"`
	FeatureImportance []importance.Entry `json:"feature_importance"`
}

type Prediction struct {
	ID         int64
	Name       string
	Role       string
	UserID     int64
	ModelID    int64
	UploadPath string
	ResultFile string
	Input      PredictionInput
	Result     PredictionResult
	CreatedAt  time.Time
}

// Store is the transactional record store behind retraining and prediction.
// Model types are addressed by their snake_case family name.
type Store interface {
	GetModel(ctx context.Context, id int64) (*Model, error)
	// LatestDataset returns the newest combined dataset of the company, else
	// the original training dataset.
	LatestDataset(ctx context.Context, companyID string) (*Dataset, error)
	RegisterDataset(ctx context.Context, d *Dataset) (int64, error)
	// NextModelVersion is one past the highest version, or "2" when the
	// company has none; version 1 is the default model.
	NextModelVersion(ctx context.Context, companyID, modelType string) (string, error)
	// PreviousModelMetrics reports the metrics of the company's latest model
	// of the type, else of the default model. found is false when neither exists.
	PreviousModelMetrics(ctx context.Context, companyID, modelType string) (metrics evaluation.Summary, found bool, err error)
	// RegisterModel stores the model and its metrics atomically.
	RegisterModel(ctx context.Context, m *Model, metrics evaluation.Summary) (int64, error)
	RecordPrediction(ctx context.Context, p *Prediction) (int64, error)
	Close() error
}

// TypeKey normalises a model type name such as "Gradient Boosting" to
// "gradient_boosting".
func TypeKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}
