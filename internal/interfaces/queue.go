package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/colligo/internal/models"
)

// ErrNoTask is returned when every lane is empty
var ErrNoTask = errors.New("no tasks in queue")

// TaskBroker is the persistent three-lane priority queue feeding the workers
type TaskBroker interface {
	// Push appends a task to the back of a lane
	Push(ctx context.Context, lane models.Lane, task *models.TaskEnvelope) error

	// Pop removes the oldest task from one lane, or ErrNoTask
	Pop(ctx context.Context, lane models.Lane) (*models.TaskEnvelope, error)

	// PopHighestPriority drains lanes in strict high -> medium -> low order,
	// returning the oldest task of the highest non-empty lane, or ErrNoTask
	PopHighestPriority(ctx context.Context) (*models.TaskEnvelope, error)

	// RemoveJobTasks deletes all queued tasks belonging to a job and
	// returns how many were removed
	RemoveJobTasks(ctx context.Context, jobID string) (int, error)

	// Lengths returns the current depth of each lane
	Lengths(ctx context.Context) (map[models.Lane]int, error)

	// Close releases broker resources
	Close() error
}
