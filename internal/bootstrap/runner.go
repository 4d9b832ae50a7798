package bootstrap

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"churnpredict/internal/data"
	"churnpredict/internal/evaluation"
	"churnpredict/internal/models"
	"churnpredict/internal/persistence"
	"churnpredict/internal/preprocessing"
	"churnpredict/internal/schema"
	"churnpredict/internal/trainer"
)

const (
	ManifestFile = "column_info.json"
	MetricsFile  = "metrics.json"
	ResultsFile  = "experiment_results.csv"
)

type Config struct {
	Experiment struct {
		TestSize        float64 `yaml:"test_size"`
		Seed            int64   `yaml:"seed"`
		CrossValidation struct {
			Folds int `yaml:"folds"`
		} `yaml:"cross_validation"`
		Families []string `yaml:"families"`
		// Overrides are decoded over the default hyperparameters of a family.
		Overrides map[string]yaml.Node `yaml:"overrides"`
	} `yaml:"experiment"`
}

func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Experiment.TestSize = 0.2
	cfg.Experiment.Seed = 42
	cfg.Experiment.Families = models.Algorithms()
	return cfg
}

// LoadConfig reads the experiment file at path over the defaults. A missing
// file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read experiment config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse experiment config %s: %w", path, err)
	}
	return cfg, nil
}

// ModelConfig returns the hyperparameters used for a family.
func (c *Config) ModelConfig(family string) (models.ModelConfig, error) {
	mc := models.DefaultConfig(family)
	if node, ok := c.Experiment.Overrides[family]; ok {
		if err := node.Decode(&mc); err != nil {
			return mc, fmt.Errorf("invalid overrides for %s: %w", family, err)
		}
		mc.Algorithm = family
	}
	return mc, nil
}

type FamilyResult struct {
	Algorithm      string
	Parameters     string
	ModelPath      string
	Metrics        evaluation.Summary
	CVMean         float64
	CVStd          float64
	TrainingTimeMs int64
}

// Runner trains the default model of every configured family and writes
// them, with their manifests and metrics, to OutDir.
type Runner struct {
	Config *Config
	OutDir string
	// Progress, when set, is called after each family finishes.
	Progress func(done, total int, family string)

	schema *schema.Schema
	logger *zap.Logger
}

func NewRunner(cfg *Config, s *schema.Schema, outDir string, logger *zap.Logger) *Runner {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{Config: cfg, OutDir: outDir, schema: s, logger: logger}
}

func (r *Runner) Run(ctx context.Context, datasetPath string) ([]FamilyResult, error) {
	ds, err := data.ReadFile(datasetPath)
	if err != nil {
		return nil, err
	}

	prepared, err := trainer.New(r.schema, r.logger).Prepare(ds)
	if err != nil {
		return nil, err
	}
	r.logger.Info("bootstrap data prepared",
		zap.String("dataset", datasetPath),
		zap.Int("rows", len(prepared.Y)),
		zap.Int("features", len(prepared.Features)))

	metricsFile := persistence.NewMetricsFile(filepath.Join(r.OutDir, MetricsFile))
	families := r.Config.Experiment.Families

	var results []FamilyResult
	for i, family := range families {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result, err := r.runFamily(family, prepared, datasetPath)
		if err != nil {
			return results, fmt.Errorf("failed to train %s: %w", family, err)
		}
		if err := metricsFile.Update(family, result.Metrics); err != nil {
			return results, err
		}
		results = append(results, result)

		if r.Progress != nil {
			r.Progress(i+1, len(families), family)
		}
	}

	if err := r.schema.SaveManifest(filepath.Join(r.OutDir, ManifestFile)); err != nil {
		return results, err
	}
	if err := r.ExportResults(results, filepath.Join(r.OutDir, ResultsFile)); err != nil {
		return results, err
	}
	return results, nil
}

func (r *Runner) runFamily(family string, prepared *trainer.Prepared, datasetPath string) (FamilyResult, error) {
	mc, err := r.Config.ModelConfig(family)
	if err != nil {
		return FamilyResult{}, err
	}

	tr := trainer.NewWithConfig(r.schema, mc, r.logger)
	tr.Splitter = evaluation.NewTrainTestSplitter(r.Config.Experiment.TestSize, r.Config.Experiment.Seed, true)
	tr.Version = "1"

	fitted, err := tr.Fit(prepared)
	if err != nil {
		return FamilyResult{}, err
	}

	bundle := persistence.NewModelBundle(fitted.Model, fitted.Features)
	bundle.Scaler = fitted.Scaler
	bundle.Metadata.Version = "1"
	bundle.Metadata.Dataset = datasetPath
	bundle.Metadata.Metrics = fitted.Metrics.Summary()
	bundle.Metadata.TrainingTime = fitted.TrainingTime

	modelPath := filepath.Join(r.OutDir, family+".model")
	if _, err := persistence.SaveArtifacts(bundle, modelPath, ""); err != nil {
		return FamilyResult{}, err
	}

	result := FamilyResult{
		Algorithm:      family,
		Parameters:     fmt.Sprintf("%v", fitted.Model.GetParams()),
		ModelPath:      modelPath,
		Metrics:        fitted.Metrics.Summary(),
		TrainingTimeMs: fitted.TrainingTime.Milliseconds(),
	}

	if folds := r.Config.Experiment.CrossValidation.Folds; folds > 1 {
		X := prepared.X
		if mc.NeedsScaling {
			if X, err = preprocessing.NewScaler("standard").FitTransform(X); err != nil {
				return result, err
			}
		}
		cv := evaluation.NewCrossValidator(folds)
		cv.RandomSeed = r.Config.Experiment.Seed
		scores, err := cv.CrossValidate(X, prepared.Y, func() (models.Model, error) {
			return models.CreateModel(mc)
		})
		if err != nil {
			r.logger.Warn("cross validation failed", zap.String("family", family), zap.Error(err))
		} else {
			result.CVMean = scores.Mean
			result.CVStd = scores.Std
		}
	}

	r.logger.Info("default model trained",
		zap.String("family", family),
		zap.Float64("accuracy", result.Metrics.Accuracy),
		zap.Float64("f1", result.Metrics.F1Score),
		zap.Int64("ms", result.TrainingTimeMs))
	return result, nil
}

func (r *Runner) ExportResults(results []FamilyResult, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	writer.Write([]string{
		"Algorithm", "Parameters", "ModelPath", "Accuracy", "Precision",
		"Recall", "F1Score", "CVMean", "CVStd", "TrainingTimeMs",
	})

	for _, result := range results {
		writer.Write([]string{
			result.Algorithm,
			result.Parameters,
			result.ModelPath,
			fmt.Sprintf("%.4f", result.Metrics.Accuracy),
			fmt.Sprintf("%.4f", result.Metrics.Precision),
			fmt.Sprintf("%.4f", result.Metrics.Recall),
			fmt.Sprintf("%.4f", result.Metrics.F1Score),
			fmt.Sprintf("%.4f", result.CVMean),
			fmt.Sprintf("%.4f", result.CVStd),
			fmt.Sprintf("%d", result.TrainingTimeMs),
		})
	}

	writer.Flush()
	return writer.Error()
}
