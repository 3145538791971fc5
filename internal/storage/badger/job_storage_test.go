package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

func newTestJob(total, cached int) *models.Job {
	return &models.Job{
		ID:             common.NewJobID(),
		Status:         models.JobStatusPending,
		TotalArticles:  total,
		NewArticles:    total - cached,
		CachedArticles: cached,
		CompletedCount: cached,
	}
}

func TestCreateAndGetJob(t *testing.T) {
	store := NewJobStorage(newTestDB(t), common.GetLogger())
	ctx := context.Background()

	job := newTestJob(3, 1)
	require.NoError(t, store.CreateJob(ctx, job))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Equal(t, 3, got.TotalArticles)
	assert.Equal(t, 1, got.CompletedCount)

	_, err = store.GetJob(ctx, "job_missing00000")
	assert.ErrorIs(t, err, interfaces.ErrJobNotFound)
}

func TestIncrementCounters_Job(t *testing.T) {
	store := NewJobStorage(newTestDB(t), common.GetLogger())
	ctx := context.Background()

	job := newTestJob(5, 0)
	require.NoError(t, store.CreateJob(ctx, job))

	updated, err := store.IncrementCompleted(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.CompletedCount)

	updated, err = store.IncrementFailed(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.FailedCount)
	assert.Equal(t, 3, updated.Pending())
}

func TestFinishJobIsOneShot(t *testing.T) {
	store := NewJobStorage(newTestDB(t), common.GetLogger())
	ctx := context.Background()

	job := newTestJob(1, 0)
	require.NoError(t, store.CreateJob(ctx, job))

	finished, err := store.FinishJob(ctx, job.ID, models.JobStatusCompleted)
	require.NoError(t, err)
	assert.True(t, finished)

	// A second terminal transition must be refused
	finished, err = store.FinishJob(ctx, job.ID, models.JobStatusFailed)
	require.NoError(t, err)
	assert.False(t, finished)

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestFinishJobRejectsNonTerminalStatus(t *testing.T) {
	store := NewJobStorage(newTestDB(t), common.GetLogger())
	ctx := context.Background()

	job := newTestJob(1, 0)
	require.NoError(t, store.CreateJob(ctx, job))

	_, err := store.FinishJob(ctx, job.ID, models.JobStatusInProgress)
	assert.Error(t, err)
}

func TestCancelJobGuards(t *testing.T) {
	store := NewJobStorage(newTestDB(t), common.GetLogger())
	ctx := context.Background()

	job := newTestJob(2, 0)
	require.NoError(t, store.CreateJob(ctx, job))

	cancelled, err := store.CancelJob(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	// Cancelling twice is refused, and a completion check afterwards
	// must not flip the status away from CANCELLED
	cancelled, err = store.CancelJob(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, cancelled)

	finished, err := store.FinishJob(ctx, job.ID, models.JobStatusCompleted)
	require.NoError(t, err)
	assert.False(t, finished)

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)
}

func TestCancelledJobStillAbsorbsCounters(t *testing.T) {
	store := NewJobStorage(newTestDB(t), common.GetLogger())
	ctx := context.Background()

	job := newTestJob(2, 0)
	require.NoError(t, store.CreateJob(ctx, job))

	_, err := store.CancelJob(ctx, job.ID)
	require.NoError(t, err)

	updated, err := store.IncrementFailed(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.FailedCount)
	assert.Equal(t, models.JobStatusCancelled, updated.Status)
}

func TestMarkInProgressOnlyFromPending(t *testing.T) {
	store := NewJobStorage(newTestDB(t), common.GetLogger())
	ctx := context.Background()

	job := newTestJob(1, 0)
	require.NoError(t, store.CreateJob(ctx, job))

	updated, err := store.MarkInProgress(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusInProgress, updated.Status)

	_, err = store.FinishJob(ctx, job.ID, models.JobStatusCompleted)
	require.NoError(t, err)

	updated, err = store.MarkInProgress(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, updated.Status, "terminal status must not regress")
}

func TestListJobsFilterAndLimit(t *testing.T) {
	store := NewJobStorage(newTestDB(t), common.GetLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.CreateJob(ctx, newTestJob(1, 0)))
	}
	done := newTestJob(1, 0)
	require.NoError(t, store.CreateJob(ctx, done))
	_, err := store.FinishJob(ctx, done.ID, models.JobStatusCompleted)
	require.NoError(t, err)

	pending, err := store.ListJobs(ctx, &interfaces.JobListOptions{Status: models.JobStatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	limited, err := store.ListJobs(ctx, &interfaces.JobListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[models.JobStatusPending])
	assert.Equal(t, 1, counts[models.JobStatusCompleted])
}
