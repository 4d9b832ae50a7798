package commander

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"churnpredict/internal/app"
	"churnpredict/internal/config"
)

func newTestCommander(t *testing.T) (*Commander, *bytes.Buffer, string) {
	t.Helper()
	color.NoColor = true

	root := t.TempDir()
	cfg := config.Default()
	cfg.ModelDir = filepath.Join(root, "models")
	cfg.DefaultModelDir = filepath.Join(root, "models", "default_models")
	cfg.FallbackModelPath = filepath.Join(cfg.DefaultModelDir, "decision_tree_snappy.model")
	cfg.MetricsFile = filepath.Join(cfg.DefaultModelDir, "metrics.json")
	cfg.SchemaManifest = filepath.Join(cfg.DefaultModelDir, "column_info.json")
	cfg.DatasetDir = filepath.Join(root, "datasets")
	cfg.ResultDir = filepath.Join(root, "datasets")

	container, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	var out bytes.Buffer
	return NewCommander(container, &out), &out, root
}

func run(c *Commander, out *bytes.Buffer, line string) string {
	out.Reset()
	parts := strings.Fields(line)
	c.ExecuteCommand(parts[0], parts[1:])
	return out.String()
}

func TestStartStopsOnQuit(t *testing.T) {
	c, out, _ := newTestCommander(t)
	c.Start(strings.NewReader("help\nbogus\nquit\nhelp\n"))

	text := out.String()
	assert.Contains(t, text, "Available Commands")
	assert.Contains(t, text, "Unknown command: bogus")
	assert.Contains(t, text, "Bye")
	assert.Equal(t, 1, strings.Count(text, "Available Commands"))
}

func TestDataCommands(t *testing.T) {
	c, out, root := newTestCommander(t)
	path := filepath.Join(root, "customers.csv")

	assert.Contains(t, run(c, out, "sample 80 "+path+" 3"), "Wrote 80 synthetic customers")
	assert.Contains(t, run(c, out, "validate "+path), "(80 rows)")
	assert.Contains(t, run(c, out, "load "+path), "Loaded 80 rows")

	info := run(c, out, "info")
	assert.Contains(t, info, "Rows: 80")
	assert.Contains(t, info, "TotalCharges")
	assert.Contains(t, info, "Target distribution")

	assert.Contains(t, run(c, out, "scan "+path+" --batch-size=25"), "Scanned 80 rows in 4 batches")
	assert.Contains(t, run(c, out, "validate "+filepath.Join(root, "missing.csv")), "✗")
	assert.Contains(t, run(c, out, "sample many "+path), "positive integer")
}

func TestTrainPredictAndDescribe(t *testing.T) {
	c, out, root := newTestCommander(t)
	path := filepath.Join(root, "train.csv")
	run(c, out, "sample 150 "+path+" 9")

	modelPath := filepath.Join(root, "models", "gb.model")
	text := run(c, out, "train "+path+" gradient_boosting --trees=20 --out="+modelPath)
	require.Contains(t, text, "Model trained successfully")
	assert.Contains(t, text, "Top features:")
	assert.Contains(t, text, "Model loaded: gradient_boosting")

	current := run(c, out, "current")
	assert.Contains(t, current, "tree_ensemble")
	assert.Contains(t, current, modelPath)

	assert.Contains(t, run(c, out, "describe "+modelPath), "Model: gradient_boosting")
	assert.Contains(t, run(c, out, "importance"), "1. ")

	text = run(c, out, "predict "+path+" march batch")
	assert.Contains(t, text, "Total:    150")
	assert.Contains(t, text, "Predictions saved to")

	assert.Contains(t, run(c, out, "list"), "gb.model")
}

func TestCommandsWithoutState(t *testing.T) {
	c, out, _ := newTestCommander(t)

	assert.Contains(t, run(c, out, "current"), "No model currently loaded")
	assert.Contains(t, run(c, out, "predict x.csv"), "No model loaded")
	assert.Contains(t, run(c, out, "info"), "No data loaded")
	assert.Contains(t, run(c, out, "list"), "No saved models found")
	assert.Contains(t, run(c, out, "job-status"), "No jobs found")
	assert.Contains(t, run(c, out, "job-logs nope"), "Job not found")
	assert.Contains(t, run(c, out, "predict-id seven x.csv"), "must be an integer")
	assert.Contains(t, run(c, out, "predict-id 7 x.csv"), "model not found: 7")
	assert.Contains(t, run(c, out, "company acme"), "Company: acme")
	assert.Contains(t, run(c, out, "train x.csv knn"), "unknown algorithm")
}

func TestBootstrapInBackground(t *testing.T) {
	c, out, root := newTestCommander(t)
	path := filepath.Join(root, "original.csv")
	run(c, out, "sample 120 "+path+" 5")

	exp := filepath.Join(root, "experiment.yaml")
	require.NoError(t, writeFile(exp, `
experiment:
  test_size: 0.2
  seed: 1
  families: [decision_tree]
`))

	text := run(c, out, "bootstrap-bg "+path+" "+exp)
	require.Contains(t, text, "Job submitted: bootstrap_")
	jobID := strings.TrimSpace(strings.TrimPrefix(text, "Job submitted: "))

	text = run(c, out, "job-wait "+jobID)
	assert.Contains(t, text, "completed")
	assert.Contains(t, text, "decision_tree")

	assert.Contains(t, run(c, out, "job-logs "+jobID), "Trained decision_tree (1/1)")
	assert.Contains(t, run(c, out, "seed "+path), "Registered 1 default models")
	assert.Contains(t, run(c, out, "predict-id 1 "+path), "Prediction 1 with Decision Tree")
}

func writeFile(path, body string) error {
	return os.WriteFile(path, []byte(body), 0644)
}
