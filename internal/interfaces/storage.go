package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/colligo/internal/models"
)

var (
	// ErrJobNotFound is returned when a job ID does not exist
	ErrJobNotFound = errors.New("job not found")

	// ErrArticleNotFound is returned when an article ID does not exist
	ErrArticleNotFound = errors.New("article not found")
)

// ArticleStorage manages the deduplicated article cache
type ArticleStorage interface {
	// CreateArticle inserts a new article keyed by its normalized URL.
	// If the URL already exists the existing record is returned and the
	// second return value is false.
	CreateArticle(ctx context.Context, article *models.Article) (*models.Article, bool, error)

	// GetArticle returns an article by ID
	GetArticle(ctx context.Context, id string) (*models.Article, error)

	// GetArticleByURL returns an article by its normalized URL
	GetArticleByURL(ctx context.Context, normalizedURL string) (*models.Article, error)

	// GetArticlesByURLs bulk-fetches articles keyed by normalized URL
	GetArticlesByURLs(ctx context.Context, normalizedURLs []string) (map[string]*models.Article, error)

	// GetArticlesByIDs fetches articles preserving input order; missing IDs are skipped
	GetArticlesByIDs(ctx context.Context, ids []string) ([]*models.Article, error)

	// UpdateStatus transitions the article to the given status
	UpdateStatus(ctx context.Context, id string, status models.ArticleStatus) error

	// SaveContent stores scraped content and marks the article SCRAPED
	SaveContent(ctx context.Context, id, title, content string) error

	// MarkFailed marks the article FAILED with an error message
	MarkFailed(ctx context.Context, id, errorMessage string) error

	// ResetForRetry returns the article to PENDING and clears its error
	ResetForRetry(ctx context.Context, id string) error

	// IncrementReferenceCount bumps the share count when a new job reuses a cached article
	IncrementReferenceCount(ctx context.Context, id string) error

	// IncrementRetryCount bumps the retry counter and returns the new value
	IncrementRetryCount(ctx context.Context, id string) (int, error)

	// GetStuckScraping returns articles left in SCRAPING longer than the threshold
	GetStuckScraping(ctx context.Context, olderThan time.Duration) ([]*models.Article, error)
}

// JobListOptions filters and paginates job listings
type JobListOptions struct {
	Status models.JobStatus
	Limit  int
	Skip   int
}

// JobStorage manages job records and their progress counters. Counter
// increments and terminal transitions are atomic with respect to each other.
type JobStorage interface {
	// CreateJob persists a new job
	CreateJob(ctx context.Context, job *models.Job) error

	// GetJob returns a job by ID, or ErrJobNotFound
	GetJob(ctx context.Context, id string) (*models.Job, error)

	// ListJobs returns jobs sorted newest first
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.Job, error)

	// GetJobsByStatus returns all jobs currently in the given status
	GetJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error)

	// CountByStatus returns job counts grouped by status
	CountByStatus(ctx context.Context) (map[models.JobStatus]int, error)

	// IncrementCompleted atomically bumps completed_count and returns the updated job
	IncrementCompleted(ctx context.Context, id string) (*models.Job, error)

	// IncrementFailed atomically bumps failed_count and returns the updated job
	IncrementFailed(ctx context.Context, id string) (*models.Job, error)

	// MarkInProgress transitions PENDING -> IN_PROGRESS; any other current
	// status is left untouched. Returns the current job either way.
	MarkInProgress(ctx context.Context, id string) (*models.Job, error)

	// FinishJob performs the one-shot terminal transition. Returns false if
	// the job already reached a terminal state, in which case nothing changes.
	FinishJob(ctx context.Context, id string, status models.JobStatus) (bool, error)

	// CancelJob transitions to CANCELLED only from PENDING or IN_PROGRESS.
	// Returns false when the job is already terminal.
	CancelJob(ctx context.Context, id string) (bool, error)
}

// StorageManager provides access to all storage backends
type StorageManager interface {
	ArticleStorage() ArticleStorage
	JobStorage() JobStorage
	Close() error
}
