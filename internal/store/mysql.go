package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"churnpredict/internal/apperrors"
	"churnpredict/internal/config"
	"churnpredict/internal/evaluation"
)

// typeIDQuery resolves a snake_case family name to its modeltypes row.
const typeIDQuery = `(SELECT id FROM modeltypes WHERE REPLACE(LOWER(name), ' ', '_') = ? LIMIT 1)`

type MySQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// DSN builds the driver connection string for cfg.
func DSN(cfg config.DatabaseConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = cfg.Name
	mc.ParseTime = true
	return mc.FormatDSN()
}

func NewMySQLStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", cfg.Name, err)
	}

	return NewMySQLStoreFromDB(db, logger), nil
}

func NewMySQLStoreFromDB(db *sql.DB, logger *zap.Logger) *MySQLStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MySQLStore{db: db, logger: logger}
}

func (s *MySQLStore) GetModel(ctx context.Context, id int64) (*Model, error) {
	var m Model
	var datasetID sql.NullInt64
	var company sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT m.id, m.name, m.version, m.file_path, mt.name, m.company_id, m.is_default,
		       m.training_dataset_id, m.created_at
		FROM models m
		JOIN modeltypes mt ON m.model_type_id = mt.id
		WHERE m.id = ?`, id,
	).Scan(&m.ID, &m.Name, &m.Version, &m.FilePath, &m.ModelType, &company, &m.IsDefault, &datasetID, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperrors.NewStoreError("get model", err)
	}
	m.ModelType = TypeKey(m.ModelType)
	m.CompanyID = company.String
	m.TrainingDatasetID = datasetID.Int64
	return &m, nil
}

func (s *MySQLStore) LatestDataset(ctx context.Context, companyID string) (*Dataset, error) {
	d, err := s.scanDataset(s.db.QueryRowContext(ctx, `
		SELECT id, company_id, name, file_path, is_original, is_uploaded, is_combined, parent_dataset_id, created_at
		FROM datasets
		WHERE company_id = ? AND is_combined = 1
		ORDER BY created_at DESC
		LIMIT 1`, companyID))
	if err == nil || !errors.Is(err, ErrNotFound) {
		return d, err
	}

	s.logger.Debug("no combined dataset, using original", zap.String("company", companyID))
	return s.scanDataset(s.db.QueryRowContext(ctx, `
		SELECT id, company_id, name, file_path, is_original, is_uploaded, is_combined, parent_dataset_id, created_at
		FROM datasets
		WHERE is_original = 1
		LIMIT 1`))
}

func (s *MySQLStore) scanDataset(row *sql.Row) (*Dataset, error) {
	var d Dataset
	var company sql.NullString
	var parent sql.NullInt64
	err := row.Scan(&d.ID, &company, &d.Name, &d.FilePath, &d.IsOriginal, &d.IsUploaded, &d.IsCombined, &parent, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperrors.NewStoreError("latest dataset", err)
	}
	d.CompanyID = company.String
	d.ParentID = parent.Int64
	return &d, nil
}

func (s *MySQLStore) RegisterDataset(ctx context.Context, d *Dataset) (int64, error) {
	var parent sql.NullInt64
	if d.ParentID > 0 {
		parent = sql.NullInt64{Int64: d.ParentID, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO datasets (
			company_id, name, file_path, is_original, is_uploaded, is_combined,
			parent_dataset_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		d.CompanyID, d.Name, d.FilePath, d.IsOriginal, d.IsUploaded, d.IsCombined, parent)
	if err != nil {
		return 0, apperrors.NewStoreError("register dataset", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperrors.NewStoreError("register dataset", err)
	}
	return id, nil
}

func (s *MySQLStore) NextModelVersion(ctx context.Context, companyID, modelType string) (string, error) {
	var highest sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(CAST(version AS UNSIGNED))
		FROM models
		WHERE company_id = ? AND model_type_id = `+typeIDQuery,
		companyID, TypeKey(modelType),
	).Scan(&highest)
	if err != nil {
		return "", apperrors.NewStoreError("next model version", err)
	}
	if !highest.Valid || highest.Int64 == 0 {
		return "2", nil
	}
	return strconv.FormatInt(highest.Int64+1, 10), nil
}

func (s *MySQLStore) PreviousModelMetrics(ctx context.Context, companyID, modelType string) (evaluation.Summary, bool, error) {
	var modelID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM models
		WHERE company_id = ? AND model_type_id = `+typeIDQuery+`
		ORDER BY CAST(version AS UNSIGNED) DESC
		LIMIT 1`,
		companyID, TypeKey(modelType),
	).Scan(&modelID)

	if errors.Is(err, sql.ErrNoRows) {
		err = s.db.QueryRowContext(ctx, `
			SELECT id FROM models
			WHERE is_default = 1 AND model_type_id = `+typeIDQuery+`
			LIMIT 1`,
			TypeKey(modelType),
		).Scan(&modelID)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return evaluation.Summary{}, false, nil
	}
	if err != nil {
		return evaluation.Summary{}, false, apperrors.NewStoreError("previous model metrics", err)
	}

	var m evaluation.Summary
	err = s.db.QueryRowContext(ctx, "SELECT accuracy, `precision`, recall, f1_score FROM modelmetrics WHERE model_id = ?", modelID).
		Scan(&m.Accuracy, &m.Precision, &m.Recall, &m.F1Score)
	if errors.Is(err, sql.ErrNoRows) {
		return evaluation.Summary{}, false, nil
	}
	if err != nil {
		return evaluation.Summary{}, false, apperrors.NewStoreError("previous model metrics", err)
	}
	return m, true, nil
}

func (s *MySQLStore) RegisterModel(ctx context.Context, m *Model, metrics evaluation.Summary) (int64, error) {
	extra, err := json.Marshal(map[string]any{"metrics": metrics})
	if err != nil {
		return 0, fmt.Errorf("failed to encode metrics: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperrors.NewStoreError("register model", err)
	}

	var dataset sql.NullInt64
	if m.TrainingDatasetID > 0 {
		dataset = sql.NullInt64{Int64: m.TrainingDatasetID, Valid: true}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO models (
			model_type_id, name, version, file_path, is_default, company_id,
			training_dataset_id, created_at, updated_at
		) VALUES (`+typeIDQuery+`, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		TypeKey(m.ModelType), m.Name, m.Version, m.FilePath, m.IsDefault, m.CompanyID, dataset)
	if err != nil {
		tx.Rollback()
		return 0, apperrors.NewStoreError("register model", err)
	}

	modelID, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return 0, apperrors.NewStoreError("register model", err)
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO modelmetrics (model_id, accuracy, `precision`, recall, f1_score, additional_metrics, created_at) VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)",
		modelID, metrics.Accuracy, metrics.Precision, metrics.Recall, metrics.F1Score, string(extra))
	if err != nil {
		tx.Rollback()
		return 0, apperrors.NewStoreError("register model metrics", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, apperrors.NewStoreError("register model", err)
	}
	return modelID, nil
}

func (s *MySQLStore) RecordPrediction(ctx context.Context, p *Prediction) (int64, error) {
	input, err := json.Marshal(p.Input)
	if err != nil {
		return 0, fmt.Errorf("failed to encode prediction input: %w", err)
	}
	result, err := json.Marshal(p.Result)
	if err != nil {
		return 0, fmt.Errorf("failed to encode prediction result: %w", err)
	}

	owner := "user_id"
	if p.Role == RoleDeveloper {
		owner = "developer_id"
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO predictions (
			prediction_name, `+owner+`, model_id, upload_dataset_path, result_dataset_path,
			input_data, result, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, NOW())`,
		p.Name, p.UserID, p.ModelID, p.UploadPath, p.ResultFile, string(input), string(result))
	if err != nil {
		return 0, apperrors.NewStoreError("record prediction", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperrors.NewStoreError("record prediction", err)
	}
	return id, nil
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

// Open returns the MySQL store when a database is configured and the
// in-memory store otherwise.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	if !cfg.Database.Enabled() {
		return NewMemoryStore(), nil
	}
	s, err := NewMySQLStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}
