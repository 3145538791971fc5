package models

import "fmt"

// Lane identifies one of the three priority queues
type Lane string

const (
	LaneHigh   Lane = "high"
	LaneMedium Lane = "medium"
	LaneLow    Lane = "low"
)

// Lanes returns all lanes in strict drain order
func Lanes() []Lane {
	return []Lane{LaneHigh, LaneMedium, LaneLow}
}

// LaneForPriority maps a request priority (1-10) to a lane:
// 1-3 high, 4-7 medium, 8-10 low
func LaneForPriority(priority int) Lane {
	switch {
	case priority <= 3:
		return LaneHigh
	case priority <= 7:
		return LaneMedium
	default:
		return LaneLow
	}
}

// TaskEnvelope is the JSON message pushed through the priority lanes.
// RetryCount is carried in the envelope so a redelivered task knows how many
// attempts preceded it regardless of which worker picks it up.
type TaskEnvelope struct {
	TaskID     string `json:"task_id"`
	JobID      string `json:"job_id"`
	ArticleID  string `json:"article_id"`
	URL        string `json:"url"`
	Source     string `json:"source"`
	Category   string `json:"category"`
	Priority   int    `json:"priority"`
	RetryCount int    `json:"retry_count"`
}

// Validate checks the envelope carries everything a worker needs
func (t *TaskEnvelope) Validate() error {
	if t.TaskID == "" {
		return fmt.Errorf("task envelope missing task_id")
	}
	if t.JobID == "" {
		return fmt.Errorf("task envelope missing job_id")
	}
	if t.ArticleID == "" {
		return fmt.Errorf("task envelope missing article_id")
	}
	if t.URL == "" {
		return fmt.Errorf("task envelope missing url")
	}
	return nil
}
