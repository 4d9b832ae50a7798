// Package app wires the pipeline components from a loaded configuration.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"churnpredict/internal/bootstrap"
	"churnpredict/internal/combiner"
	"churnpredict/internal/config"
	"churnpredict/internal/importance"
	"churnpredict/internal/inference"
	"churnpredict/internal/jobs"
	"churnpredict/internal/models"
	"churnpredict/internal/persistence"
	"churnpredict/internal/prediction"
	"churnpredict/internal/retrain"
	"churnpredict/internal/schema"
	"churnpredict/internal/store"
	"churnpredict/internal/trainer"
)

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	Schema   *schema.Schema
	Registry *schema.Registry
	Store    store.Store

	Loader   *persistence.Loader
	Engine   *inference.Engine
	Resolver *importance.Resolver
	Writer   *prediction.Writer
	Combiner *combiner.Combiner
	Trainer  *trainer.Trainer
	Metrics  *persistence.MetricsFile

	Prediction *prediction.Service
	Retrain    *retrain.Service
	Jobs       *jobs.Manager
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s, err := schema.LoadOrDefault(cfg.SchemaManifest)
	if err != nil {
		logger.Warn("schema manifest unavailable, using default schema",
			zap.String("path", cfg.SchemaManifest), zap.Error(err))
	}

	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	c := &Container{
		Config:   cfg,
		Logger:   logger,
		Schema:   s,
		Registry: schema.NewRegistry(s, logger),
		Store:    st,
		Loader:   persistence.NewLoader(cfg.DefaultModelDir, cfg.FallbackModelPath, logger),
		Engine:   inference.NewEngine(s, cfg.BatchSize, logger),
		Resolver: importance.NewResolver(logger),
		Writer:   prediction.NewWriter(cfg.ResultDir, logger),
		Combiner: combiner.NewCombiner(s, logger),
		Trainer:  trainer.New(s, logger),
		Metrics:  persistence.NewMetricsFile(cfg.MetricsFile),
		Jobs:     jobs.NewManager(logger),
	}

	c.Prediction = prediction.NewService(c.Registry, c.Loader, c.Engine, c.Resolver, c.Writer, c.Store, logger)
	c.Retrain = retrain.NewService(
		retrain.Paths{DatasetDir: cfg.DatasetDir, ModelDir: cfg.ModelDir},
		c.Registry, c.Combiner, c.Trainer, c.Store, c.Metrics, logger)

	logger.Info("application initialised",
		zap.String("environment", cfg.Environment),
		zap.Bool("database", cfg.Database.Enabled()),
		zap.Int("features", len(s.Numerical)+len(s.Categorical)))
	return c, nil
}

// Bootstrap returns a runner that writes the default models into the
// configured default model directory.
func (c *Container) Bootstrap(exp *bootstrap.Config) *bootstrap.Runner {
	return bootstrap.NewRunner(exp, c.Schema, c.Config.DefaultModelDir, c.Logger)
}

// SeedDefaults registers the default models found on disk and, when given,
// the original training dataset. It only applies to the in-memory store, which
// starts empty; a database already holds these rows. It returns the number of
// models registered.
func (c *Container) SeedDefaults(ctx context.Context, originalDataset string) (int, error) {
	if _, ok := c.Store.(*store.MemoryStore); !ok {
		return 0, nil
	}

	var datasetID int64
	if originalDataset != "" {
		if _, err := os.Stat(originalDataset); err != nil {
			return 0, fmt.Errorf("original dataset not found: %w", err)
		}
		id, err := c.Store.RegisterDataset(ctx, &store.Dataset{
			Name:       filepath.Base(originalDataset),
			FilePath:   originalDataset,
			IsOriginal: true,
		})
		if err != nil {
			return 0, err
		}
		datasetID = id
	}

	metrics, err := c.Metrics.Read()
	if err != nil {
		c.Logger.Warn("failed to read metrics file", zap.Error(err))
	}

	registered := 0
	for _, family := range models.Algorithms() {
		path := filepath.Join(c.Config.DefaultModelDir, family+".model")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		_, err := c.Store.RegisterModel(ctx, &store.Model{
			Name:              DisplayName(family),
			Version:           "1",
			FilePath:          path,
			ModelType:         family,
			IsDefault:         true,
			TrainingDatasetID: datasetID,
		}, metrics[family])
		if err != nil {
			return registered, err
		}
		registered++
	}

	c.Logger.Info("default records seeded", zap.Int("models", registered), zap.Int64("dataset_id", datasetID))
	return registered, nil
}

func (c *Container) Close() error {
	return c.Store.Close()
}

// DisplayName turns a family key such as "gradient_boosting" into
// "Gradient Boosting".
func DisplayName(family string) string {
	words := strings.Split(family, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
