package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// Enabled reports whether a MySQL record store is configured.
func (d DatabaseConfig) Enabled() bool {
	return d.Host != "" && d.Name != ""
}

type Config struct {
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`

	// SchemaManifest is the column_info.json describing the fixed feature schema.
	SchemaManifest string `yaml:"schema_manifest"`

	ModelDir          string `yaml:"model_dir"`
	DefaultModelDir   string `yaml:"default_model_dir"`
	FallbackModelPath string `yaml:"fallback_model_path"`
	MetricsFile       string `yaml:"metrics_file"`

	DatasetDir string `yaml:"dataset_dir"`
	ResultDir  string `yaml:"result_dir"`

	BatchSize int    `yaml:"batch_size"`
	CompanyID string `yaml:"company_id"`

	Database DatabaseConfig `yaml:"database"`
}

func Default() *Config {
	defaultModels := filepath.Join("models", "default_models")
	return &Config{
		Environment:       "development",
		LogLevel:          "info",
		SchemaManifest:    filepath.Join(defaultModels, "column_info.json"),
		ModelDir:          "models",
		DefaultModelDir:   defaultModels,
		FallbackModelPath: filepath.Join(defaultModels, "decision_tree_snappy.model"),
		MetricsFile:       filepath.Join(defaultModels, "metrics.json"),
		DatasetDir:        "datasets",
		ResultDir:         "datasets",
		BatchSize:         1000,
		CompanyID:         "default",
		Database: DatabaseConfig{
			Port: 3306,
			User: "root",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at path,
// a .env file in the working directory and finally CHURN_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	// a missing .env is normal outside development
	_ = godotenv.Load()

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Environment = getEnv("CHURN_ENVIRONMENT", c.Environment)
	c.LogLevel = getEnv("CHURN_LOG_LEVEL", c.LogLevel)
	c.SchemaManifest = getEnv("CHURN_SCHEMA_MANIFEST", c.SchemaManifest)
	c.ModelDir = getEnv("CHURN_MODEL_DIR", c.ModelDir)
	c.DefaultModelDir = getEnv("CHURN_DEFAULT_MODEL_DIR", c.DefaultModelDir)
	c.FallbackModelPath = getEnv("CHURN_FALLBACK_MODEL", c.FallbackModelPath)
	c.MetricsFile = getEnv("CHURN_METRICS_FILE", c.MetricsFile)
	c.DatasetDir = getEnv("CHURN_DATASET_DIR", c.DatasetDir)
	c.ResultDir = getEnv("CHURN_RESULT_DIR", c.ResultDir)
	c.BatchSize = getEnvInt("CHURN_BATCH_SIZE", c.BatchSize)
	c.CompanyID = getEnv("CHURN_COMPANY_ID", c.CompanyID)

	c.Database.Host = getEnv("CHURN_DB_HOST", c.Database.Host)
	c.Database.Port = getEnvInt("CHURN_DB_PORT", c.Database.Port)
	c.Database.User = getEnv("CHURN_DB_USER", c.Database.User)
	c.Database.Password = getEnv("CHURN_DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("CHURN_DB_NAME", c.Database.Name)
}

func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.ModelDir == "" {
		return fmt.Errorf("model_dir is required")
	}
	if c.DatasetDir == "" {
		return fmt.Errorf("dataset_dir is required")
	}
	if c.IsProduction() && !c.Database.Enabled() {
		return fmt.Errorf("database host and name are required in production")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// NewLogger returns a production logger in production and a development
// logger everywhere else, both at the configured level.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	return zcfg.Build()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
