package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"churnpredict/internal/app"
	"churnpredict/internal/config"
	"churnpredict/internal/data"
	"churnpredict/internal/prediction"
	"churnpredict/internal/schema"
	"churnpredict/internal/store"
)

func main() {
	dataFile := flag.String("data", "", "Customer dataset to score")
	modelFile := flag.String("model", "", "Model file to load directly")
	modelID := flag.Int64("model-id", 0, "Registered model id (uses the record store)")
	name := flag.String("name", "", "Prediction name (default from the data file)")
	role := flag.String("role", store.RoleUser, "Requesting role: user or dev")
	userID := flag.Int64("user-id", 0, "Requesting account id")
	configFile := flag.String("config", "config/config.yaml", "Path to configuration file")
	asJSON := flag.Bool("json", false, "Print the response as JSON")
	flag.Parse()

	if *dataFile == "" || (*modelFile == "" && *modelID == 0) {
		fmt.Println("Usage:")
		fmt.Println("  predict -data customers.csv -model models/default_models/gradient_boosting.model")
		fmt.Println("  predict -data customers.csv -model-id 1")
		fmt.Println("\nOptions:")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *name == "" {
		*name = strings.TrimSuffix(filepath.Base(*dataFile), filepath.Ext(*dataFile))
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

	var resp *prediction.Response
	if *modelID != 0 {
		if _, err := container.SeedDefaults(ctx, ""); err != nil {
			logger.Warn("failed to seed default models", zap.Error(err))
		}
		resp, err = container.Prediction.Process(ctx, prediction.Request{
			FilePath: *dataFile,
			ModelID:  *modelID,
			Name:     *name,
			Role:     *role,
			UserID:   *userID,
		})
	} else {
		resp, err = predictFile(container, *modelFile, *dataFile, *name, *role)
	}
	if err != nil {
		logger.Error("prediction failed", zap.Error(err))
		container.Close()
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			logger.Error("failed to encode response", zap.Error(err))
		}
		return
	}

	d := resp.ChurnDistribution
	fmt.Printf("Scored %d customers: %d churn, %d stay (%.2f%%)\n",
		resp.TotalRecords, d.Churn, d.NoChurn, d.ChurnRate*100)
	for _, e := range resp.FeatureImportance {
		fmt.Printf("  %-32s %.4f\n", e.Feature, e.Importance)
	}
	fmt.Printf("Results: %s\n", resp.ResultPath)
}

// predictFile scores with a model file without a record store round trip.
func predictFile(c *app.Container, modelFile, dataFile, name, role string) (*prediction.Response, error) {
	ds, err := data.ReadFile(dataFile)
	if err != nil {
		return nil, err
	}
	normalized, err := c.Registry.Validate(ds, schema.Lenient)
	if err != nil {
		return nil, err
	}
	lm, err := c.Loader.Load(modelFile)
	if err != nil {
		return nil, err
	}
	labels, proba, err := c.Engine.Predict(normalized, lm)
	if err != nil {
		return nil, err
	}
	path, _, err := c.Writer.WithRole(role).Save(normalized, labels, proba, name)
	if err != nil {
		return nil, err
	}

	summary := prediction.Summarize(labels)
	return &prediction.Response{
		PredictionName:    name,
		ModelName:         lm.Name(),
		TotalRecords:      summary.TotalRecords,
		ChurnDistribution: summary.ChurnDistribution,
		FeatureImportance: c.Resolver.Resolve(lm.Model, lm.Features),
		ResultPath:        path,
	}, nil
}
