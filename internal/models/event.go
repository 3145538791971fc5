package models

// JobUpdateEventType is the type field carried on every progress frame
const JobUpdateEventType = "job_update"

// JobUpdateEvent is the progress payload fanned out to WebSocket observers.
// ArticleID is empty for job-level updates (admission, cancellation).
type JobUpdateEvent struct {
	Type      string    `json:"type"`
	JobID     string    `json:"job_id"`
	ArticleID string    `json:"article_id,omitempty"`
	Status    JobStatus `json:"status"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	Total     int       `json:"total"`
}

// NewJobUpdate builds a progress event from the job's committed counters
func NewJobUpdate(job *Job, articleID string) JobUpdateEvent {
	return JobUpdateEvent{
		Type:      JobUpdateEventType,
		JobID:     job.ID,
		ArticleID: articleID,
		Status:    job.Status,
		Completed: job.CompletedCount,
		Failed:    job.FailedCount,
		Total:     job.TotalArticles,
	}
}
