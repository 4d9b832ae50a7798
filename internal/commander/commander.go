package commander

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"

	"churnpredict/internal/app"
	"churnpredict/internal/data"
	"churnpredict/internal/importance"
	"churnpredict/internal/models"
	"churnpredict/internal/persistence"
	"churnpredict/internal/prediction"
	"churnpredict/internal/schema"
	"churnpredict/internal/store"
	"churnpredict/internal/trainer"
)

type Commander struct {
	app *app.Container
	out io.Writer

	current    *persistence.LoadedModel
	loadedData *data.Dataset
	companyID  string

	green  func(a ...any) string
	red    func(a ...any) string
	yellow func(a ...any) string
	cyan   func(a ...any) string
	blue   func(a ...any) string
}

func NewCommander(container *app.Container, out io.Writer) *Commander {
	if out == nil {
		out = os.Stdout
	}
	return &Commander{
		app:       container,
		out:       out,
		companyID: container.Config.CompanyID,
		green:     color.New(color.FgGreen).SprintFunc(),
		red:       color.New(color.FgRed).SprintFunc(),
		yellow:    color.New(color.FgYellow).SprintFunc(),
		cyan:      color.New(color.FgCyan).SprintFunc(),
		blue:      color.New(color.FgBlue).SprintFunc(),
	}
}

func (c *Commander) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func (c *Commander) println(args ...any) {
	fmt.Fprintln(c.out, args...)
}

func (c *Commander) fail(err error) {
	c.printf("%s %v\n", c.red("✗"), err)
}

// Start reads commands from in until it is exhausted or the user quits.
func (c *Commander) Start(in io.Reader) {
	c.printWelcome()
	scanner := bufio.NewScanner(in)

	for {
		c.printf("%s", c.yellow("\nchurn> "))
		if !scanner.Scan() {
			if scanner.Err() != nil {
				c.printf("\n%s Scanner error: %v\n", c.red("✗"), scanner.Err())
			}
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		command := strings.ToLower(parts[0])
		if command == "quit" || command == "exit" || command == "q" {
			c.println("Bye")
			return
		}
		c.ExecuteCommand(command, parts[1:])
	}
}

func (c *Commander) ExecuteCommand(command string, args []string) {
	switch command {
	case "help", "h":
		c.showHelp()
	case "load":
		if len(args) > 0 {
			c.loadData(args[0])
		} else {
			c.println(c.red("Usage: load <file>"))
		}
	case "info":
		c.showDataInfo()
	case "scan":
		if len(args) > 0 {
			c.scanFile(args)
		} else {
			c.println(c.red("Usage: scan <file> [--batch-size=5000]"))
		}
	case "validate":
		if len(args) > 0 {
			c.validate(args[0], args[1:])
		} else {
			c.println(c.red("Usage: validate <file> [strict|lenient]"))
		}
	case "combine":
		if len(args) >= 3 {
			c.combine(args[0], args[1], args[2])
		} else {
			c.println(c.red("Usage: combine <new-file> <existing-file> <output-file>"))
		}
	case "sample":
		if len(args) >= 2 {
			c.sample(args)
		} else {
			c.println(c.red("Usage: sample <rows> <output-file> [seed]"))
		}
	case "train":
		if len(args) > 0 {
			c.trainModel(args[0], args[1:])
		} else {
			c.showTrainHelp()
		}
	case "loadmodel":
		if len(args) > 0 {
			c.loadModel(args[0])
		} else {
			c.println(c.red("Usage: loadmodel <file>"))
		}
	case "current":
		c.showCurrentModel()
	case "describe":
		if len(args) > 0 {
			c.describe(args[0])
		} else {
			c.println(c.red("Usage: describe <model-file>"))
		}
	case "list":
		c.listModels()
	case "importance":
		c.showImportance()
	case "predict":
		if len(args) > 0 {
			c.batchPredict(args[0], strings.Join(args[1:], " "))
		} else {
			c.println(c.red("Usage: predict <file> [name]"))
		}
	case "predict-id":
		if len(args) >= 2 {
			c.predictWithRecord(args[0], args[1], strings.Join(args[2:], " "))
		} else {
			c.println(c.red("Usage: predict-id <model-id> <file> [name]"))
		}
	case "company":
		if len(args) > 0 {
			c.companyID = args[0]
		}
		c.printf("Company: %s\n", c.cyan(c.companyID))
	case "retrain":
		if len(args) > 0 {
			c.retrain(args[0])
		} else {
			c.println(c.red("Usage: retrain <upload-file>"))
		}
	case "retrain-bg":
		if len(args) > 0 {
			c.retrainBackground(args[0])
		} else {
			c.println(c.red("Usage: retrain-bg <upload-file>"))
		}
	case "bootstrap":
		if len(args) > 0 {
			c.runBootstrap(args[0], args[1:])
		} else {
			c.println(c.red("Usage: bootstrap <dataset> [experiment.yaml]"))
		}
	case "bootstrap-bg":
		if len(args) > 0 {
			c.runBootstrapBackground(args[0], args[1:])
		} else {
			c.println(c.red("Usage: bootstrap-bg <dataset> [experiment.yaml]"))
		}
	case "seed":
		c.seedDefaults(args)
	case "job-status":
		if len(args) > 0 {
			c.showJobStatus(args[0])
		} else {
			c.listAllJobs()
		}
	case "job-cancel":
		if len(args) > 0 {
			c.cancelJob(args[0])
		} else {
			c.println(c.red("Usage: job-cancel <job-id>"))
		}
	case "job-logs":
		if len(args) > 0 {
			c.showJobLogs(args[0])
		} else {
			c.println(c.red("Usage: job-logs <job-id>"))
		}
	case "job-wait":
		if len(args) > 0 {
			c.waitJob(args[0])
		} else {
			c.println(c.red("Usage: job-wait <job-id>"))
		}
	case "clear":
		c.clearScreen()
	default:
		c.printf("%s Unknown command: %s\n", c.red("✗"), command)
		c.println("Type 'help' for available commands")
	}
}

func (c *Commander) printWelcome() {
	c.println(c.cyan("╔══════════════════════════════════════════╗"))
	c.println(c.cyan("║        Churn Prediction Commander        ║"))
	c.println(c.cyan("║      Retrain, predict and inspect        ║"))
	c.println(c.cyan("╚══════════════════════════════════════════╝"))
	c.println()
	c.println("Type 'help' for available commands")
}

func (c *Commander) showHelp() {
	c.println(c.blue("\nAvailable Commands:"))

	c.println("\n" + c.cyan("Data:"))
	c.println("  load <file>                 - Load a dataset (.csv, .tsv, .txt)")
	c.println("  info                        - Profile the loaded dataset")
	c.println("  scan <file>                 - Count rows and churn in batches")
	c.println("  validate <file> [mode]      - Check a file against the schema (strict|lenient)")
	c.println("  combine <new> <old> <out>   - Merge two datasets, new rows win")
	c.println("  sample <rows> <out> [seed]  - Write a synthetic dataset")

	c.println("\n" + c.cyan("Models:"))
	c.println("  train <file> [algorithm]    - Train a model (" + strings.Join(models.Algorithms(), ", ") + ")")
	c.println("  loadmodel <file>            - Load a saved model")
	c.println("  current                     - Show the loaded model")
	c.println("  describe <file>             - Print the metadata stored with a model")
	c.println("  list                        - List models and their metrics")
	c.println("  importance                  - Top features of the loaded model")

	c.println("\n" + c.cyan("Predictions:"))
	c.println("  predict <file> [name]       - Predict with the loaded model")
	c.println("  predict-id <id> <file>      - Predict with a registered model and record it")

	c.println("\n" + c.cyan("Retraining:"))
	c.println("  company [id]                - Show or set the company id")
	c.println("  retrain <file>              - Retrain on an upload for the company")
	c.println("  retrain-bg <file>           - Retrain in the background")
	c.println("  bootstrap <file> [config]   - Train the default models")
	c.println("  bootstrap-bg <file> [cfg]   - Train the default models in the background")
	c.println("  seed [original-dataset]     - Register default models in the record store")

	c.println("\n" + c.cyan("Jobs:"))
	c.println("  job-status [job-id]         - Show job status or list all jobs")
	c.println("  job-cancel <job-id>         - Cancel a running job")
	c.println("  job-logs <job-id>           - View job logs")
	c.println("  job-wait <job-id>           - Block until a job finishes")

	c.println("\n" + c.cyan("System:"))
	c.println("  help                        - Show this help message")
	c.println("  clear                       - Clear screen")
	c.println("  quit                        - Exit program")
}

func (c *Commander) loadData(filename string) {
	startTime := time.Now()
	c.printf("Loading data from %s...\n", filename)

	ds, err := data.ReadFile(filename)
	if err != nil {
		c.fail(err)
		return
	}
	c.loadedData = ds

	c.printf("%s Loaded %d rows with %d columns in %v\n",
		c.green("✓"), ds.Len(), len(ds.Columns), time.Since(startTime).Round(time.Millisecond))

	if missing := ds.Missing(c.app.Schema.Required()); len(missing) > 0 {
		c.printf("%s Missing schema columns: %s\n", c.yellow("!"), strings.Join(missing, ", "))
	}
}

func (c *Commander) showDataInfo() {
	if c.loadedData == nil {
		c.println(c.red("No data loaded. Use 'load <file>' first"))
		return
	}

	stats := data.NewDataValidator().GetDatasetStats(c.loadedData)
	c.println(c.blue("\nDataset: ") + c.loadedData.Source)
	c.printf("Rows: %d\n", stats.Rows)
	c.println(strings.Repeat("─", 60))
	c.printf("%-24s %-10s %-10s %-10s\n", "Column", "Missing", "Numeric", "Distinct")
	c.println(strings.Repeat("─", 60))
	for _, col := range stats.Columns {
		missing := strconv.Itoa(col.Missing)
		if col.Missing > 0 {
			missing = c.yellow(missing)
		}
		c.printf("%-24s %-10s %-10d %-10d\n", col.Name, missing, col.Numeric, col.Distinct)
	}

	if values, err := c.loadedData.Column(c.app.Schema.Target); err == nil {
		counts := make(map[string]int)
		for _, v := range values {
			counts[v]++
		}
		c.println(c.cyan("\nTarget distribution:"))
		for _, label := range sortedKeys(counts) {
			c.printf("  %-6s %d (%s%%)\n", label, counts[label], percent(counts[label], len(values)))
		}
	}
}

// scanFile walks a large file in batches without holding it in memory.
func (c *Commander) scanFile(args []string) {
	filename := args[0]
	batchSize := 5000
	for _, arg := range args[1:] {
		if value, ok := strings.CutPrefix(arg, "--batch-size="); ok {
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				batchSize = n
			}
		}
	}

	rows, churned, batches := 0, 0, 0
	target := c.app.Schema.Target
	err := data.ProcessLargeFile(filename, batchSize, func(batch *data.Dataset) error {
		batches++
		rows += batch.Len()
		if values, err := batch.Column(target); err == nil {
			for _, v := range values {
				if strings.EqualFold(strings.TrimSpace(v), "yes") || strings.TrimSpace(v) == "1" {
					churned++
				}
			}
		}
		return nil
	})
	if err != nil {
		c.fail(err)
		return
	}

	c.printf("%s Scanned %d rows in %d batches\n", c.green("✓"), rows, batches)
	if rows > 0 {
		c.printf("Churned: %d (%s%%)\n", churned, percent(churned, rows))
	}
}

func (c *Commander) validate(filename string, args []string) {
	mode := schema.Strict
	if len(args) > 0 && strings.EqualFold(args[0], "lenient") {
		mode = schema.Lenient
	}

	outcome := c.app.Registry.CheckFile(filename, mode)
	if !outcome.OK {
		c.printf("%s %s\n", c.red("✗"), outcome.Message)
		return
	}
	c.printf("%s %s (%d rows)\n", c.green("✓"), outcome.Message, outcome.Dataset.Len())
}

func (c *Commander) combine(newPath, existingPath, outPath string) {
	result := c.app.Combiner.Combine(newPath, existingPath, outPath)
	if !result.OK {
		c.printf("%s %s\n", c.red("✗"), result.Message)
		return
	}
	c.printf("%s %s\n", c.green("✓"), result.Message)
	c.printf("Records: %d -> %s\n", result.RecordCount, outPath)
}

func (c *Commander) sample(args []string) {
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		c.println(c.red("Row count must be a positive integer"))
		return
	}
	seed := time.Now().UnixNano()
	if len(args) > 2 {
		if s, err := strconv.ParseInt(args[2], 10, 64); err == nil {
			seed = s
		}
	}

	if err := data.WriteFile(c.app.Schema.Sample(n, seed), args[1]); err != nil {
		c.fail(err)
		return
	}
	c.printf("%s Wrote %d synthetic customers to %s\n", c.green("✓"), n, args[1])
}

func (c *Commander) showTrainHelp() {
	c.println(c.red("Usage: train <file> [algorithm] [--out=path] [--trees=n] [--depth=n] [--iter=n]"))
	c.println("Algorithms: " + strings.Join(models.Algorithms(), ", "))
	c.println("Default algorithm: " + models.AlgorithmGradientBoosting)
}

func (c *Commander) trainModel(filename string, params []string) {
	algorithm := models.AlgorithmGradientBoosting
	outPath := ""
	var overrides []string

	for _, p := range params {
		switch {
		case strings.HasPrefix(p, "--"):
			overrides = append(overrides, p)
		default:
			algorithm = p
		}
	}
	config := models.DefaultConfig(algorithm)
	if _, err := models.CreateModel(config); err != nil {
		c.fail(err)
		return
	}

	for _, p := range overrides {
		key, value, _ := strings.Cut(strings.TrimPrefix(p, "--"), "=")
		n, _ := strconv.Atoi(value)
		switch key {
		case "out":
			outPath = value
		case "trees":
			config.NTrees = n
		case "depth":
			config.MaxDepth = n
		case "iter":
			config.MaxIter = n
		default:
			c.printf("%s Ignoring unknown option %s\n", c.yellow("!"), p)
		}
	}

	if outPath == "" {
		timestamp := time.Now().Format("20060102_150405")
		outPath = filepath.Join(c.app.Config.ModelDir, fmt.Sprintf("%s_%s.model", algorithm, timestamp))
	}

	c.printf("Training %s on %s...\n", algorithm, filename)
	stop := c.spinner("Training")
	tr := trainer.NewWithConfig(c.app.Schema, config, c.app.Logger)
	result := tr.Train(filename, outPath, "")
	stop()

	if !result.OK {
		c.printf("%s %s\n", c.red("✗"), result.Message)
		return
	}

	c.printf("%s %s\n", c.green("✓"), result.Message)
	c.printMetrics(result.Metrics.Accuracy, result.Metrics.Precision, result.Metrics.Recall, result.Metrics.F1Score)
	c.printImportance(topEntries(result.FeatureImportance))
	c.printf("Saved to %s\n", result.Artifacts.ModelPath())

	c.loadModel(result.Artifacts.ModelPath())
}

// spinner animates until the returned stop function is called. It stays
// silent unless output is a terminal.
func (c *Commander) spinner(label string) func() {
	if color.NoColor {
		return func() {}
	}
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			select {
			case <-done:
				c.printf("\r")
				return
			case <-ticker.C:
				c.printf("\r%s %s... ", frames[i%len(frames)], label)
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

func (c *Commander) loadModel(filename string) {
	lm, err := c.app.Loader.Load(filename)
	if err != nil {
		c.fail(err)
		c.println("Ensure the file exists or run 'list' to see available models")
		return
	}
	c.current = lm

	c.printf("%s Model loaded: %s (%s)\n", c.green("✓"), lm.Name(), lm.Family)
	if lm.Strategy != "bundle" {
		c.printf("Loaded via %s from %s\n", c.yellow(lm.Strategy), lm.Path)
	}
	c.printf("Features: %d\n", len(lm.Features))
}

func (c *Commander) showCurrentModel() {
	if c.current == nil {
		c.println(c.red("No model currently loaded"))
		c.println("Use 'train <file>' to train a new model")
		c.println("Or 'loadmodel <file>' to load an existing model")
		return
	}

	lm := c.current
	c.println(c.blue("\nCurrent Model:"))
	c.println(strings.Repeat("─", 50))
	c.printf("Name:     %s\n", lm.Name())
	c.printf("Family:   %s\n", lm.Family)
	c.printf("File:     %s\n", lm.Path)
	c.printf("Strategy: %s\n", lm.Strategy)
	c.printf("Features: %d\n", len(lm.Features))
	c.printf("Scaler:   %v\n", lm.Scaler != nil)
	if m := lm.Metadata; m != nil {
		if m.Version != "" {
			c.printf("Version:  %s\n", m.Version)
		}
		c.printMetrics(m.Metrics.Accuracy, m.Metrics.Precision, m.Metrics.Recall, m.Metrics.F1Score)
	}
}

func (c *Commander) describe(filename string) {
	load := persistence.LoadModelBundle
	if persistence.IsSnappyVariant(filename) {
		load = persistence.LoadCompressedModelBundle
	}
	bundle, err := load(filename)
	if err != nil {
		c.fail(err)
		return
	}
	bundle.Describe(c.out)
}

func (c *Commander) listModels() {
	var files []string
	for _, dir := range []string{c.app.Config.DefaultModelDir, c.app.Config.ModelDir} {
		matches, _ := filepath.Glob(filepath.Join(dir, "*.model"))
		files = append(files, matches...)
		nested, _ := filepath.Glob(filepath.Join(dir, "*", "*.model"))
		for _, m := range nested {
			if filepath.Dir(m) != c.app.Config.DefaultModelDir {
				files = append(files, m)
			}
		}
	}

	var primary []string
	seen := make(map[string]bool)
	for _, f := range files {
		if !persistence.IsSnappyVariant(f) && !seen[f] {
			seen[f] = true
			primary = append(primary, f)
		}
	}
	if len(primary) == 0 {
		c.println("No saved models found")
		c.println("Run 'bootstrap <dataset>' or 'train <file>' to create one")
		return
	}

	metrics, err := c.app.Metrics.Read()
	if err != nil {
		c.fail(err)
	}

	c.println(c.blue("\nSaved Models:"))
	c.println(strings.Repeat("─", 90))
	c.printf("%-48s %-10s %-10s %-10s %s\n", "File", "Size", "Accuracy", "F1", "Status")
	c.println(strings.Repeat("─", 90))

	for _, file := range primary {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}

		key := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		accuracy, f1 := "-", "-"
		if m, ok := metrics[key]; ok {
			accuracy, f1 = fmt.Sprintf("%.4f", m.Accuracy), fmt.Sprintf("%.4f", m.F1Score)
		}

		status := ""
		if c.current != nil && c.current.Path == file {
			status = c.cyan("[ACTIVE]")
		}

		c.printf("%-48s %-10s %-10s %-10s %s\n",
			relative(file),
			fmt.Sprintf("%.1f KB", float64(info.Size())/1024),
			accuracy, f1, status)
	}
}

func (c *Commander) showImportance() {
	if c.current == nil {
		c.println(c.red("No model loaded. Train or load a model first"))
		return
	}

	features := c.current.Features
	if ranked := importance.Ranked(c.current.Model, features); ranked != nil {
		c.printImportance(topEntries(ranked))
		return
	}
	c.printImportance(c.app.Resolver.Resolve(c.current.Model, features))
}

// batchPredict scores a file with the loaded model and writes the result
// file, without touching the record store.
func (c *Commander) batchPredict(filename, name string) {
	if c.current == nil {
		c.println(c.red("No model loaded. Train or load a model first"))
		return
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}

	ds, err := data.ReadFile(filename)
	if err != nil {
		c.fail(err)
		return
	}
	normalized, err := c.app.Registry.Validate(ds, schema.Lenient)
	if err != nil {
		c.fail(err)
		return
	}

	c.printf("Making predictions for %d customers...\n", normalized.Len())
	labels, proba, err := c.app.Engine.Predict(normalized, c.current)
	if err != nil {
		c.fail(err)
		return
	}

	path, _, err := c.app.Writer.Save(normalized, labels, proba, name)
	if err != nil {
		c.fail(err)
		return
	}

	summary := prediction.Summarize(labels)
	c.printSummary(summary)
	c.printImportance(c.app.Resolver.Resolve(c.current.Model, c.current.Features))
	c.printf("%s Predictions saved to %s\n", c.green("✓"), path)
}

func (c *Commander) predictWithRecord(idArg, filename, name string) {
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		c.println(c.red("Model id must be an integer"))
		return
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}

	resp, err := c.app.Prediction.Process(context.Background(), prediction.Request{
		FilePath: filename,
		ModelID:  id,
		Name:     name,
		Role:     store.RoleDeveloper,
	})
	if err != nil {
		c.fail(err)
		return
	}

	c.printf("%s Prediction %d with %s\n", c.green("✓"), resp.PredictionID, resp.ModelName)
	c.printSummary(prediction.Summary{TotalRecords: resp.TotalRecords, ChurnDistribution: resp.ChurnDistribution})
	c.printImportance(resp.FeatureImportance)
	c.printf("Download: %s\n", resp.DownloadURL)
	c.printf("File:     %s\n", resp.ResultPath)
}

func (c *Commander) printMetrics(accuracy, precision, recall, f1 float64) {
	c.printf("Accuracy:  %s\n", c.green(fmt.Sprintf("%.4f", accuracy)))
	c.printf("Precision: %.4f\n", precision)
	c.printf("Recall:    %.4f\n", recall)
	c.printf("F1 Score:  %.4f\n", f1)
}

func (c *Commander) printSummary(summary prediction.Summary) {
	d := summary.ChurnDistribution
	c.printf("Total:    %d\n", summary.TotalRecords)
	c.printf("Churn:    %s (%s%%)\n", c.red(strconv.Itoa(d.Churn)), percent(d.Churn, summary.TotalRecords))
	c.printf("No churn: %s\n", c.green(strconv.Itoa(d.NoChurn)))
}

func (c *Commander) printImportance(entries []importance.Entry) {
	if len(entries) == 0 {
		return
	}
	c.println(c.cyan("Top features:"))
	for i, e := range entries {
		bar := strings.Repeat("█", int(e.Importance*40+0.5))
		c.printf("  %d. %-32s %.4f %s\n", i+1, e.Feature, e.Importance, c.blue(bar))
	}
}

func (c *Commander) clearScreen() {
	c.printf("\033[H\033[2J")
	c.printWelcome()
}

func topEntries(entries []importance.Entry) []importance.Entry {
	if len(entries) > importance.TopN {
		return entries[:importance.TopN]
	}
	return entries
}

// percent formats part/total as a percentage with two decimals.
func percent(part, total int) string {
	if total == 0 {
		return "0.00"
	}
	return decimal.NewFromInt(int64(part)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		StringFixed(2)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func relative(path string) string {
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	if rel, err := filepath.Rel(wd, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
