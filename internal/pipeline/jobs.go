package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an asynchronous run.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// ErrJobNotFound is returned for unknown or expired job IDs.
var ErrJobNotFound = errors.New("job not found")

// Job is one asynchronous pipeline run.
type Job struct {
	ID        string
	Status    JobStatus
	Request   RunRequest
	Result    *Result
	Err       string
	StartedAt time.Time
	EndedAt   time.Time
}

// JobManager runs pipelines in the background and keeps finished jobs for
// a retention window.
type JobManager struct {
	pipeline  *Pipeline
	retention time.Duration
	logger    *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*Job

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewJobManager creates a manager over the given pipeline.
func NewJobManager(p *Pipeline, retention time.Duration, logger *slog.Logger) *JobManager {
	if logger == nil {
		logger = slog.Default()
	}
	if retention <= 0 {
		retention = time.Hour
	}
	m := &JobManager{
		pipeline:  p,
		retention: retention,
		logger:    logger,
		jobs:      make(map[string]*Job),
		stop:      make(chan struct{}),
	}
	m.wg.Add(1)
	go m.sweep()
	return m
}

// Submit starts a run in the background and returns its job ID.
func (m *JobManager) Submit(ctx context.Context, req RunRequest) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}

	job := &Job{
		ID:        uuid.New().String(),
		Status:    JobPending,
		Request:   req,
		StartedAt: time.Now().UTC(),
	}
	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(job)

	m.logger.InfoContext(ctx, "job_submitted",
		slog.String("job_id", job.ID),
		slog.Int("issuers", len(req.IssuerIDs)))
	return job.ID, nil
}

// Get returns a snapshot of the job's current state.
func (m *JobManager) Get(id string) (Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return *job, nil
}

// Close stops background work and waits for running jobs.
func (m *JobManager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
}

func (m *JobManager) run(job *Job) {
	defer m.wg.Done()

	m.mu.Lock()
	job.Status = JobRunning
	m.mu.Unlock()

	// Detached from the submit request's context; the run outlives it.
	result, err := m.pipeline.Run(context.Background(), job.Request)

	m.mu.Lock()
	job.EndedAt = time.Now().UTC()
	// A failed run can still carry partial results; keep them visible.
	job.Result = result
	if err != nil {
		job.Status = JobFailed
		job.Err = err.Error()
	} else {
		job.Status = JobCompleted
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("job_failed", slog.String("job_id", job.ID), slog.String("error", err.Error()))
		return
	}
	m.logger.Info("job_completed", slog.String("job_id", job.ID))
}

// sweep drops finished jobs past the retention window.
func (m *JobManager) sweep() {
	defer m.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.mu.Lock()
			for id, job := range m.jobs {
				done := job.Status == JobCompleted || job.Status == JobFailed
				if done && now.Sub(job.EndedAt) > m.retention {
					delete(m.jobs, id)
				}
			}
			m.mu.Unlock()
		}
	}
}
