package commander

import (
	"context"
	"fmt"
	"strings"
	"time"

	"churnpredict/internal/bootstrap"
	"churnpredict/internal/jobs"
	"churnpredict/internal/retrain"
)

const defaultExperimentConfig = "config/experiment.yaml"

func (c *Commander) retrain(uploadPath string) {
	c.printf("Retraining for company %s with %s...\n", c.cyan(c.companyID), uploadPath)
	stop := c.spinner("Retraining")
	outcome, err := c.app.Retrain.Retrain(context.Background(), retrain.Request{
		CompanyID:  c.companyID,
		UploadPath: uploadPath,
	})
	stop()
	if err != nil {
		c.fail(err)
		return
	}
	c.printOutcome(outcome)
}

func (c *Commander) printOutcome(outcome *retrain.Outcome) {
	c.printf("%s %s\n", c.green("✓"), outcome.Message)
	c.printf("Model id:  %d\n", outcome.ModelID)
	c.printf("File:      %s\n", outcome.ModelPath)
	c.printf("Dataset:   %s (%d records)\n", outcome.CombinedPath, outcome.RecordCount)
	c.printMetrics(outcome.Metrics.Accuracy, outcome.Metrics.Precision, outcome.Metrics.Recall, outcome.Metrics.F1Score)

	if outcome.HasPrevious {
		delta := outcome.Improvement()
		change := c.green(fmt.Sprintf("%+.4f", delta))
		if delta < 0 {
			change = c.red(fmt.Sprintf("%+.4f", delta))
		}
		c.printf("Previous accuracy: %.4f (%s)\n", outcome.PreviousMetrics.Accuracy, change)
	}
	c.printImportance(topEntries(outcome.FeatureImportance))
}

func (c *Commander) retrainBackground(uploadPath string) {
	company := c.companyID
	job := c.app.Jobs.Submit(context.Background(), jobs.TypeRetrain,
		fmt.Sprintf("Retrain %s with %s", company, uploadPath),
		func(ctx context.Context, job *jobs.Job) (any, error) {
			job.AddLog("Validating and combining upload...")
			job.SetProgress(0.1)
			outcome, err := c.app.Retrain.Retrain(ctx, retrain.Request{CompanyID: company, UploadPath: uploadPath})
			if err != nil {
				return nil, err
			}
			job.AddLog(outcome.Message)
			return outcome, nil
		})
	c.printf("Job submitted: %s\n", c.cyan(job.ID))
}

func (c *Commander) experimentConfig(args []string) (*bootstrap.Config, error) {
	path := defaultExperimentConfig
	if len(args) > 0 {
		path = args[0]
	}
	return bootstrap.LoadConfig(path)
}

func (c *Commander) runBootstrap(datasetPath string, args []string) {
	exp, err := c.experimentConfig(args)
	if err != nil {
		c.fail(err)
		return
	}

	runner := c.app.Bootstrap(exp)
	runner.Progress = func(done, total int, family string) {
		c.printf("%s [%d/%d] %s\n", c.green("✓"), done, total, family)
	}

	c.printf("Training %d default models from %s...\n", len(exp.Experiment.Families), datasetPath)
	results, err := runner.Run(context.Background(), datasetPath)
	if err != nil {
		c.fail(err)
		return
	}
	c.printBootstrapResults(results)
}

func (c *Commander) printBootstrapResults(results []bootstrap.FamilyResult) {
	c.println(c.blue("\nDefault Models:"))
	c.println(strings.Repeat("─", 80))
	c.printf("%-22s %-10s %-10s %-10s %-16s %s\n", "Family", "Accuracy", "F1", "Recall", "CV", "Time")
	c.println(strings.Repeat("─", 80))

	best := -1
	for i, r := range results {
		if best < 0 || r.Metrics.F1Score > results[best].Metrics.F1Score {
			best = i
		}
	}
	for i, r := range results {
		name := r.Algorithm
		if i == best {
			name = c.green(name)
		}
		cv := "-"
		if r.CVMean > 0 {
			cv = fmt.Sprintf("%.4f±%.4f", r.CVMean, r.CVStd)
		}
		c.printf("%-22s %-10.4f %-10.4f %-10.4f %-16s %dms\n",
			name, r.Metrics.Accuracy, r.Metrics.F1Score, r.Metrics.Recall, cv, r.TrainingTimeMs)
	}
	c.printf("\nModels written to %s\n", c.app.Config.DefaultModelDir)
}

func (c *Commander) runBootstrapBackground(datasetPath string, args []string) {
	exp, err := c.experimentConfig(args)
	if err != nil {
		c.fail(err)
		return
	}

	job := c.app.Jobs.Submit(context.Background(), jobs.TypeBootstrap,
		fmt.Sprintf("Train default models from %s", datasetPath),
		func(ctx context.Context, job *jobs.Job) (any, error) {
			runner := c.app.Bootstrap(exp)
			runner.Progress = func(done, total int, family string) {
				job.SetProgress(float64(done) / float64(total))
				job.AddLog(fmt.Sprintf("Trained %s (%d/%d)", family, done, total))
			}
			return runner.Run(ctx, datasetPath)
		})
	c.printf("Job submitted: %s\n", c.cyan(job.ID))
}

func (c *Commander) seedDefaults(args []string) {
	original := ""
	if len(args) > 0 {
		original = args[0]
	}
	n, err := c.app.SeedDefaults(context.Background(), original)
	if err != nil {
		c.fail(err)
		return
	}
	c.printf("%s Registered %d default models\n", c.green("✓"), n)
}

func (c *Commander) listAllJobs() {
	all := c.app.Jobs.ListJobs()
	if len(all) == 0 {
		c.println("No jobs found")
		return
	}

	c.println(c.cyan("Background Jobs:"))
	c.println(strings.Repeat("-", 80))
	c.printf("%-20s %-10s %-10s %-10s %s\n", "Job ID", "Type", "Status", "Progress", "Description")
	c.println(strings.Repeat("-", 80))

	for _, job := range all {
		statusColor := c.yellow
		switch job.GetStatus() {
		case jobs.JobCompleted:
			statusColor = c.green
		case jobs.JobFailed:
			statusColor = c.red
		case jobs.JobRunning:
			statusColor = c.cyan
		}

		progress := fmt.Sprintf("%.0f%%", job.GetProgress()*100)
		c.printf("%-20s %-10s %-10s %-10s %s\n",
			job.ID, job.Type, statusColor(string(job.GetStatus())), progress, job.Description)
	}
}

func (c *Commander) showJobStatus(jobID string) {
	job, exists := c.app.Jobs.GetJob(jobID)
	if !exists {
		c.printf("%s Job not found: %s\n", c.red("✗"), jobID)
		return
	}

	c.printf("\n%s\n", c.cyan("Job Details:"))
	c.printf("ID:          %s\n", job.ID)
	c.printf("Type:        %s\n", job.Type)
	c.printf("Status:      %s\n", job.GetStatus())
	c.printf("Progress:    %.0f%%\n", job.GetProgress()*100)
	c.printf("Start Time:  %s\n", job.StartTime.Format("15:04:05"))
	c.printf("Duration:    %s\n", job.Elapsed().Round(time.Millisecond))
	if err := job.GetError(); err != nil {
		c.printf("Error:       %s\n", c.red(err.Error()))
	}

	switch result := job.GetResult().(type) {
	case *retrain.Outcome:
		c.printOutcome(result)
	case []bootstrap.FamilyResult:
		c.printBootstrapResults(result)
	}
}

func (c *Commander) cancelJob(jobID string) {
	if err := c.app.Jobs.CancelJob(jobID); err != nil {
		c.fail(err)
		return
	}
	c.printf("%s Job cancelled: %s\n", c.green("✓"), jobID)
}

func (c *Commander) showJobLogs(jobID string) {
	job, exists := c.app.Jobs.GetJob(jobID)
	if !exists {
		c.printf("%s Job not found: %s\n", c.red("✗"), jobID)
		return
	}

	logs := job.GetLogs()
	if len(logs) == 0 {
		c.println("No logs available")
		return
	}

	c.printf("\n%s\n", c.cyan(fmt.Sprintf("Logs for job %s:", jobID)))
	for _, line := range logs {
		c.println(line)
	}
}

func (c *Commander) waitJob(jobID string) {
	job, err := c.app.Jobs.Wait(context.Background(), jobID)
	if err != nil {
		c.fail(err)
		return
	}
	c.showJobStatus(job.ID)
}
