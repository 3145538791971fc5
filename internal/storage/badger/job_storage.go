package badger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements the JobStorage interface for Badger. The store mutex
// serializes counter increments with the one-shot terminal transition, so a
// late increment can never race a FinishJob into overwriting a terminal state.
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

// CreateJob persists a new job
func (s *JobStorage) CreateJob(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	if err := s.db.Store().Insert(job.ID, job); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetJob returns a job by ID, or ErrJobNotFound
func (s *JobStorage) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// ListJobs returns jobs sorted newest first
func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	query := badgerhold.Where("ID").Ne("")

	if opts != nil {
		if opts.Status != "" {
			query = query.And("Status").Eq(opts.Status)
		}
		query = query.SortBy("CreatedAt").Reverse()
		if opts.Skip > 0 {
			query = query.Skip(opts.Skip)
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
	} else {
		query = query.SortBy("CreatedAt").Reverse()
	}

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// GetJobsByStatus returns all jobs currently in the given status
func (s *JobStorage) GetJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(status)); err != nil {
		return nil, fmt.Errorf("failed to get jobs by status: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// CountByStatus returns job counts grouped by status
func (s *JobStorage) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("ID").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	counts := make(map[models.JobStatus]int)
	for i := range jobs {
		counts[jobs[i].Status]++
	}
	return counts, nil
}

// mutate applies fn to the stored job under the store mutex
func (s *JobStorage) mutate(id string, fn func(*models.Job)) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var job models.Job
	if err := s.db.Store().Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	fn(&job)
	job.UpdatedAt = time.Now().UTC()

	if err := s.db.Store().Update(id, &job); err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}
	return &job, nil
}

// IncrementCompleted atomically bumps completed_count. Counters keep moving
// even after a terminal transition so late in-flight results stay observable;
// the status itself never changes here.
func (s *JobStorage) IncrementCompleted(ctx context.Context, id string) (*models.Job, error) {
	return s.mutate(id, func(j *models.Job) {
		j.CompletedCount++
	})
}

// IncrementFailed atomically bumps failed_count
func (s *JobStorage) IncrementFailed(ctx context.Context, id string) (*models.Job, error) {
	return s.mutate(id, func(j *models.Job) {
		j.FailedCount++
	})
}

// MarkInProgress transitions PENDING -> IN_PROGRESS; any other current status
// is left untouched
func (s *JobStorage) MarkInProgress(ctx context.Context, id string) (*models.Job, error) {
	return s.mutate(id, func(j *models.Job) {
		if j.Status == models.JobStatusPending {
			j.Status = models.JobStatusInProgress
		}
	})
}

// FinishJob performs the one-shot terminal transition
func (s *JobStorage) FinishJob(ctx context.Context, id string, status models.JobStatus) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("finish status %s is not terminal", status)
	}

	finished := false
	_, err := s.mutate(id, func(j *models.Job) {
		if j.Status.Terminal() {
			return
		}
		now := time.Now().UTC()
		j.Status = status
		j.CompletedAt = &now
		finished = true
	})
	if err != nil {
		return false, err
	}
	return finished, nil
}

// CancelJob transitions to CANCELLED only from PENDING or IN_PROGRESS
func (s *JobStorage) CancelJob(ctx context.Context, id string) (bool, error) {
	cancelled := false
	_, err := s.mutate(id, func(j *models.Job) {
		if j.Status != models.JobStatusPending && j.Status != models.JobStatusInProgress {
			return
		}
		now := time.Now().UTC()
		j.Status = models.JobStatusCancelled
		j.CompletedAt = &now
		cancelled = true
	})
	if err != nil {
		return false, err
	}
	return cancelled, nil
}
