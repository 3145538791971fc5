package models

import "time"

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// Terminal reports whether the status is final. A job in a terminal state
// never transitions again; counters may still absorb late increments from
// in-flight tasks without flipping the status.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Job tracks one submitted batch. CompletedCount starts at CachedArticles
// since cache hits are complete at admission time.
type Job struct {
	ID             string     `json:"job_id" badgerhold:"key"`
	Status         JobStatus  `json:"status"`
	TotalArticles  int        `json:"total_articles"`
	NewArticles    int        `json:"new_articles"`
	CachedArticles int        `json:"cached_articles"`
	CompletedCount int        `json:"completed_count"`
	FailedCount    int        `json:"failed_count"`
	ArticleIDs     []string   `json:"article_ids"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Pending returns the number of articles not yet processed, never negative
func (j *Job) Pending() int {
	pending := j.TotalArticles - j.CompletedCount - j.FailedCount
	if pending < 0 {
		return 0
	}
	return pending
}

// Processed returns the number of articles that reached a terminal outcome
func (j *Job) Processed() int {
	return j.CompletedCount + j.FailedCount
}
