package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"churnpredict/internal/apperrors"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

const (
	TypeRetrain   = "retrain"
	TypeBootstrap = "bootstrap"
	TypePredict   = "predict"
)

// Func is the body of a background job. It should return promptly once ctx
// is cancelled.
type Func func(ctx context.Context, job *Job) (any, error)

type Job struct {
	ID          string
	Type        string
	Status      JobStatus
	Progress    float64
	StartTime   time.Time
	EndTime     *time.Time
	Error       error
	Result      any
	Description string
	Logs        []string
	cancelFunc  func()
	done        chan struct{}
	mu          sync.RWMutex
}

type Manager struct {
	jobs   map[string]*Job
	mu     sync.RWMutex
	logger *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		jobs:   make(map[string]*Job),
		logger: logger,
	}
}

func (m *Manager) CreateJob(jobType, description string) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobID := fmt.Sprintf("%s_%s", jobType, uuid.NewString()[:8])
	job := &Job{
		ID:          jobID,
		Type:        jobType,
		Status:      JobPending,
		StartTime:   time.Now(),
		Description: description,
		Logs:        []string{},
		done:        make(chan struct{}),
	}

	m.jobs[jobID] = job
	return job
}

// Submit creates a job and runs fn on its own goroutine. A panic inside fn
// fails the job instead of the process.
func (m *Manager) Submit(parent context.Context, jobType, description string, fn Func) *Job {
	job := m.CreateJob(jobType, description)
	ctx, cancel := context.WithCancel(parent)
	job.SetCancelFunc(cancel)
	job.SetStatus(JobRunning)
	job.AddLog("started: " + description)
	m.logger.Info("job started", zap.String("job", job.ID), zap.String("type", jobType))

	go func() {
		defer close(job.done)
		defer cancel()

		result, err := run(ctx, job, fn)
		switch {
		case job.GetStatus() == JobCancelled:
			job.AddLog("cancelled")
			m.logger.Info("job cancelled", zap.String("job", job.ID))
		case err != nil:
			job.SetError(err)
			job.AddLog("failed: " + err.Error())
			m.logger.Error("job failed", zap.String("job", job.ID), zap.Error(err))
		default:
			job.SetResult(result)
			job.SetProgress(1)
			job.SetStatus(JobCompleted)
			job.AddLog("completed")
			m.logger.Info("job completed", zap.String("job", job.ID))
		}
	}()

	return job
}

func run(ctx context.Context, job *Job, fn Func) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.FromPanic(apperrors.KindTraining, r)
		}
	}()
	return fn(ctx, job)
}

func (m *Manager) GetJob(jobID string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, exists := m.jobs[jobID]
	return job, exists
}

// ListJobs returns every job, oldest first.
func (m *Manager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartTime.Before(jobs[j].StartTime)
	})
	return jobs
}

func (m *Manager) CancelJob(jobID string) error {
	job, exists := m.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job %s not found", jobID)
	}

	job.mu.Lock()
	defer job.mu.Unlock()

	if job.Status != JobRunning {
		return fmt.Errorf("job %s is not running", jobID)
	}

	if job.cancelFunc != nil {
		job.cancelFunc()
		job.Status = JobCancelled
		now := time.Now()
		job.EndTime = &now
	}

	return nil
}

// Wait blocks until the job finishes or ctx is done.
func (m *Manager) Wait(ctx context.Context, jobID string) (*Job, error) {
	job, exists := m.GetJob(jobID)
	if !exists {
		return nil, fmt.Errorf("job %s not found", jobID)
	}
	if job.done == nil {
		return job, nil
	}

	select {
	case <-job.done:
		return job, nil
	case <-ctx.Done():
		return job, ctx.Err()
	}
}

func (j *Job) SetStatus(status JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	if status == JobCompleted || status == JobFailed || status == JobCancelled {
		now := time.Now()
		j.EndTime = &now
	}
}

func (j *Job) SetProgress(progress float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress = progress
}

func (j *Job) AddLog(message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	timestamp := time.Now().Format("15:04:05")
	j.Logs = append(j.Logs, fmt.Sprintf("[%s] %s", timestamp, message))
}

func (j *Job) SetError(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Error = err
	j.Status = JobFailed
	now := time.Now()
	j.EndTime = &now
}

func (j *Job) SetResult(result any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Result = result
}

func (j *Job) SetCancelFunc(cancelFunc func()) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancelFunc = cancelFunc
}

func (j *Job) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

func (j *Job) GetProgress() float64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Progress
}

func (j *Job) GetError() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Error
}

func (j *Job) GetResult() any {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Result
}

func (j *Job) GetLogs() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	logs := make([]string, len(j.Logs))
	copy(logs, j.Logs)
	return logs
}

// Elapsed is the running time so far, or the total once finished.
func (j *Job) Elapsed() time.Duration {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.EndTime != nil {
		return j.EndTime.Sub(j.StartTime)
	}
	return time.Since(j.StartTime)
}
