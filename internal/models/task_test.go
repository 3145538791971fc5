package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLaneForPriority(t *testing.T) {
	tests := []struct {
		priority int
		expected Lane
	}{
		{1, LaneHigh},
		{3, LaneHigh},
		{4, LaneMedium},
		{7, LaneMedium},
		{8, LaneLow},
		{10, LaneLow},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, LaneForPriority(tt.priority), "priority %d", tt.priority)
	}
}

func TestTaskEnvelopeValidate(t *testing.T) {
	valid := TaskEnvelope{
		TaskID:    "task_abc123def456",
		JobID:     "job_abc123def456",
		ArticleID: "art_abc123def456",
		URL:       "https://example.com/article",
	}
	assert.NoError(t, valid.Validate())

	missing := valid
	missing.JobID = ""
	assert.Error(t, missing.Validate())

	missing = valid
	missing.URL = ""
	assert.Error(t, missing.Validate())
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobStatusPending.Terminal())
	assert.False(t, JobStatusInProgress.Terminal())
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
	assert.True(t, JobStatusCancelled.Terminal())
}

func TestJobPendingNeverNegative(t *testing.T) {
	job := Job{TotalArticles: 2, CompletedCount: 2, FailedCount: 1}
	assert.Equal(t, 0, job.Pending())
}
