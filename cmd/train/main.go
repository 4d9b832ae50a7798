package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"churnpredict/internal/app"
	"churnpredict/internal/bootstrap"
	"churnpredict/internal/config"
	"churnpredict/internal/models"
	"churnpredict/internal/retrain"
	"churnpredict/internal/trainer"
)

func main() {
	dataFile := flag.String("data", "", "Path to the training or upload dataset")
	algorithm := flag.String("algorithm", models.AlgorithmGradientBoosting, "Model family for a single training run")
	configFile := flag.String("config", "config/config.yaml", "Path to configuration file")
	experimentFile := flag.String("experiment-config", "config/experiment.yaml", "Path to the bootstrap experiment file")
	output := flag.String("output", "", "Model file for a single training run (default <model_dir>/<algorithm>_<timestamp>.model)")
	features := flag.String("features", "", "Feature manifest path (default next to the model)")
	bootstrapMode := flag.Bool("bootstrap", false, "Train every default model into the default model directory")
	retrainMode := flag.Bool("retrain", false, "Retrain the company's model on an uploaded dataset")
	company := flag.String("company", "", "Company id for -retrain (default from config)")
	original := flag.String("original", "", "Original dataset to seed the in-memory store with before -retrain")
	nTrees := flag.Int("n-trees", 0, "Override the number of trees")
	maxDepth := flag.Int("max-depth", 0, "Override the maximum tree depth")

	flag.Parse()

	if *dataFile == "" {
		fmt.Println("Usage:")
		fmt.Println("  Single model:   train -data datasets/telco.csv -algorithm gradient_boosting")
		fmt.Println("  Default models: train -bootstrap -data datasets/telco.csv")
		fmt.Println("  Retrain:        train -retrain -company CCP1234567 -data upload.csv")
		fmt.Println("\nOptions:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()
	container, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise application", zap.Error(err))
	}
	defer container.Close()

	switch {
	case *bootstrapMode:
		err = runBootstrap(ctx, container, *experimentFile, *dataFile)
	case *retrainMode:
		if *company == "" {
			*company = cfg.CompanyID
		}
		err = runRetrain(ctx, container, *company, *dataFile, *original)
	default:
		err = runSingleTraining(container, *algorithm, *dataFile, *output, *features, *nTrees, *maxDepth)
	}
	if err != nil {
		logger.Error("training failed", zap.Error(err))
		container.Close()
		os.Exit(1)
	}
}

func runBootstrap(ctx context.Context, c *app.Container, experimentFile, dataFile string) error {
	exp, err := bootstrap.LoadConfig(experimentFile)
	if err != nil {
		return err
	}

	runner := c.Bootstrap(exp)
	runner.Progress = func(done, total int, family string) {
		fmt.Printf("[%d/%d] %s\n", done, total, family)
	}
	results, err := runner.Run(ctx, dataFile)
	if err != nil {
		return err
	}

	fmt.Printf("\nDefault models written to %s\n", c.Config.DefaultModelDir)
	best := results[0]
	for _, r := range results {
		fmt.Printf("  %-20s accuracy %.4f  f1 %.4f\n", r.Algorithm, r.Metrics.Accuracy, r.Metrics.F1Score)
		if r.Metrics.F1Score > best.Metrics.F1Score {
			best = r
		}
	}
	fmt.Printf("Best F1: %.4f (%s)\n", best.Metrics.F1Score, best.Algorithm)
	return nil
}

func runRetrain(ctx context.Context, c *app.Container, company, dataFile, original string) error {
	if _, err := c.SeedDefaults(ctx, original); err != nil {
		return err
	}

	outcome, err := c.Retrain.Retrain(ctx, retrain.Request{CompanyID: company, UploadPath: dataFile})
	if err != nil {
		return err
	}

	fmt.Println(outcome.Message)
	fmt.Printf("Model file: %s\n", outcome.ModelPath)
	if outcome.HasPrevious {
		fmt.Printf("Accuracy change vs previous: %+.4f\n", outcome.Improvement())
	}
	return nil
}

func runSingleTraining(c *app.Container, algorithm, dataFile, output, features string, nTrees, maxDepth int) error {
	mc := models.DefaultConfig(algorithm)
	if nTrees > 0 {
		mc.NTrees = nTrees
	}
	if maxDepth > 0 {
		mc.MaxDepth = maxDepth
	}
	if output == "" {
		timestamp := time.Now().Format("20060102_150405")
		output = filepath.Join(c.Config.ModelDir, fmt.Sprintf("%s_%s.model", algorithm, timestamp))
	}

	fmt.Printf("Training %s model on %s...\n", algorithm, dataFile)
	result := trainer.NewWithConfig(c.Schema, mc, c.Logger).Train(dataFile, output, features)
	if !result.OK {
		return result.Err
	}

	fmt.Println(result.Message)
	fmt.Print(result.Report)
	for i, e := range result.FeatureImportance {
		if i == 5 {
			break
		}
		fmt.Printf("  %-32s %.4f\n", e.Feature, e.Importance)
	}
	fmt.Printf("Model saved to %s\n", result.Artifacts.ModelPath())
	return nil
}
