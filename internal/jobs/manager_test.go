package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churnpredict/internal/apperrors"
)

func waitFor(t *testing.T, m *Manager, id string) *Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := m.Wait(ctx, id)
	require.NoError(t, err)
	return job
}

func TestSubmitCompletes(t *testing.T) {
	m := NewManager(nil)
	job := m.Submit(context.Background(), TypeRetrain, "retrain acme", func(ctx context.Context, j *Job) (any, error) {
		j.SetProgress(0.5)
		j.AddLog("halfway")
		return 42, nil
	})
	assert.True(t, strings.HasPrefix(job.ID, "retrain_"))

	job = waitFor(t, m, job.ID)
	assert.Equal(t, JobCompleted, job.GetStatus())
	assert.Equal(t, 42, job.GetResult())
	assert.Equal(t, 1.0, job.GetProgress())
	assert.NotNil(t, job.EndTime)

	logs := job.GetLogs()
	require.Len(t, logs, 3)
	assert.Contains(t, logs[1], "halfway")
}

func TestSubmitRecordsFailureAndPanic(t *testing.T) {
	m := NewManager(nil)
	failed := m.Submit(context.Background(), TypeBootstrap, "", func(ctx context.Context, j *Job) (any, error) {
		return nil, errors.New("boom")
	})
	panicked := m.Submit(context.Background(), TypeBootstrap, "", func(ctx context.Context, j *Job) (any, error) {
		panic("index out of range")
	})

	job := waitFor(t, m, failed.ID)
	assert.Equal(t, JobFailed, job.GetStatus())
	assert.EqualError(t, job.GetError(), "boom")

	job = waitFor(t, m, panicked.ID)
	assert.Equal(t, JobFailed, job.GetStatus())
	assert.True(t, apperrors.IsKind(job.GetError(), apperrors.KindTraining))
}

func TestCancelJob(t *testing.T) {
	m := NewManager(nil)
	started := make(chan struct{})
	job := m.Submit(context.Background(), TypeRetrain, "", func(ctx context.Context, j *Job) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	<-started
	require.NoError(t, m.CancelJob(job.ID))
	job = waitFor(t, m, job.ID)
	assert.Equal(t, JobCancelled, job.GetStatus())
	assert.Nil(t, job.GetError())

	assert.Error(t, m.CancelJob(job.ID))
	assert.Error(t, m.CancelJob("missing"))
}

func TestListJobsOldestFirst(t *testing.T) {
	m := NewManager(nil)
	first := m.CreateJob(TypePredict, "first")
	time.Sleep(2 * time.Millisecond)
	second := m.CreateJob(TypePredict, "second")

	jobs := m.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, first.ID, jobs[0].ID)
	assert.Equal(t, second.ID, jobs[1].ID)

	_, err := m.Wait(context.Background(), "missing")
	assert.Error(t, err)
}
