package common

import (
	"strings"

	"github.com/google/uuid"
)

// NewJobID generates a unique job ID with the "job_" prefix
func NewJobID() string {
	return "job_" + shortID()
}

// NewArticleID generates a unique article ID with the "art_" prefix
func NewArticleID() string {
	return "art_" + shortID()
}

// NewTaskID generates a unique task ID with the "task_" prefix
func NewTaskID() string {
	return "task_" + shortID()
}

// shortID returns the first 12 hex characters of a random UUID
func shortID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}
