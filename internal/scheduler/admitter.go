package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// ErrInvalidRequest marks submit validation failures; handlers map it to 422
var ErrInvalidRequest = errors.New("invalid submit request")

const maxBatchSize = 100

// SubmitArticle is one URL in a submitted batch
type SubmitArticle struct {
	URL      string `json:"url" validate:"required,max=2048"`
	Source   string `json:"source" validate:"required,max=256"`
	Category string `json:"category" validate:"required,max=256"`
	Priority int    `json:"priority" validate:"omitempty,min=1,max=10"`
}

// SubmitRequest is the submit payload. Duplicate raw URLs reject the whole
// batch; two distinct raw URLs that normalize to the same key are allowed
// and share one article.
type SubmitRequest struct {
	Articles []SubmitArticle `json:"articles" validate:"required,min=1,max=100,dive"`
}

// SubmitResponse is returned to the caller after admission
type SubmitResponse struct {
	JobID          string           `json:"job_id"`
	Status         models.JobStatus `json:"status"`
	TotalArticles  int              `json:"total_articles"`
	NewArticles    int              `json:"new_articles"`
	CachedArticles int              `json:"cached_articles"`
	Message        string           `json:"message"`
}

// Admitter partitions a submitted batch into cached hits and new work,
// creates the job, and emits tasks into the priority lanes
type Admitter struct {
	articles interfaces.ArticleStorage
	jobs     interfaces.JobStorage
	broker   interfaces.TaskBroker
	events   interfaces.EventService
	logger   arbor.ILogger
	validate *validator.Validate
}

// NewAdmitter creates a new Admitter
func NewAdmitter(articles interfaces.ArticleStorage, jobs interfaces.JobStorage, broker interfaces.TaskBroker, events interfaces.EventService, logger arbor.ILogger) *Admitter {
	return &Admitter{
		articles: articles,
		jobs:     jobs,
		broker:   broker,
		events:   events,
		logger:   logger,
		validate: validator.New(),
	}
}

// validateRequest applies struct tags plus the checks tags cannot express
func (a *Admitter) validateRequest(req *SubmitRequest) error {
	if req == nil {
		return fmt.Errorf("%w: empty body", ErrInvalidRequest)
	}

	// Default priority before tag validation so an omitted field passes min=1
	for i := range req.Articles {
		if req.Articles[i].Priority == 0 {
			req.Articles[i].Priority = 1
		}
	}

	if err := a.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if len(req.Articles) > maxBatchSize {
		return fmt.Errorf("%w: batch exceeds %d articles", ErrInvalidRequest, maxBatchSize)
	}

	seen := make(map[string]bool, len(req.Articles))
	for _, item := range req.Articles {
		if err := common.ValidateURL(item.URL); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		if seen[item.URL] {
			return fmt.Errorf("%w: duplicate URL in batch: %s", ErrInvalidRequest, item.URL)
		}
		seen[item.URL] = true
	}

	return nil
}

// Submit admits a batch: deduplicates against the article cache, creates the
// job with completed_count pre-seeded from cache hits, and pushes one task
// per non-cached item into its priority lane. All-cached batches complete
// immediately without touching the queue.
func (a *Admitter) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	if err := a.validateRequest(req); err != nil {
		return nil, err
	}

	normalized := make([]string, len(req.Articles))
	for i, item := range req.Articles {
		normalized[i] = common.NormalizeURL(item.URL)
	}

	existing, err := a.articles.GetArticlesByURLs(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to look up existing articles: %w", err)
	}

	jobID := common.NewJobID()

	var (
		articleIDs []string
		tasks      []*models.TaskEnvelope
		cached     int
	)

	for i, item := range req.Articles {
		norm := normalized[i]
		article := existing[norm]

		if article == nil {
			created, wasNew, cerr := a.articles.CreateArticle(ctx, &models.Article{
				URL:      norm,
				Source:   item.Source,
				Category: item.Category,
				Priority: item.Priority,
				Status:   models.ArticleStatusPending,
			})
			if cerr != nil {
				return nil, fmt.Errorf("failed to create article: %w", cerr)
			}
			article = created
			existing[norm] = created
			if !wasNew {
				a.logger.Debug().
					Str("url_hash", common.URLHash(norm)).
					Str("article_id", article.ID).
					Msg("Concurrent submit created article first")
			}
		}

		articleIDs = append(articleIDs, article.ID)

		if article.HasContent() {
			if err := a.articles.IncrementReferenceCount(ctx, article.ID); err != nil {
				a.logger.Warn().Err(err).Str("article_id", article.ID).Msg("Failed to bump reference count")
			}
			cached++
			continue
		}

		// Known URL with no usable content gets requeued under this job
		if article.Status != models.ArticleStatusPending {
			if err := a.articles.ResetForRetry(ctx, article.ID); err != nil {
				a.logger.Warn().Err(err).Str("article_id", article.ID).Msg("Failed to reset article for requeue")
			}
		}

		tasks = append(tasks, &models.TaskEnvelope{
			TaskID:    common.NewTaskID(),
			JobID:     jobID,
			ArticleID: article.ID,
			URL:       norm,
			Source:    item.Source,
			Category:  item.Category,
			Priority:  item.Priority,
		})
	}

	job := &models.Job{
		ID:             jobID,
		Status:         models.JobStatusPending,
		TotalArticles:  len(req.Articles),
		NewArticles:    len(tasks),
		CachedArticles: cached,
		CompletedCount: cached,
		ArticleIDs:     articleIDs,
	}
	if err := a.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	a.logger.Info().
		Str("job_id", jobID).
		Int("total", job.TotalArticles).
		Int("cached", cached).
		Int("new", len(tasks)).
		Msg("Job admitted")

	if len(tasks) == 0 {
		if _, err := a.jobs.FinishJob(ctx, jobID, models.JobStatusCompleted); err != nil {
			return nil, fmt.Errorf("failed to complete all-cached job: %w", err)
		}
		job, err = a.jobs.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		a.publishProgress(job)

		return &SubmitResponse{
			JobID:          jobID,
			Status:         job.Status,
			TotalArticles:  job.TotalArticles,
			NewArticles:    0,
			CachedArticles: cached,
			Message:        "Job completed - all articles from cache",
		}, nil
	}

	for _, task := range tasks {
		if err := a.broker.Push(ctx, models.LaneForPriority(task.Priority), task); err != nil {
			// Pushed tasks keep flowing; the caller learns admission failed
			return nil, fmt.Errorf("failed to enqueue task for job %s: %w", jobID, err)
		}
	}

	job, err = a.jobs.MarkInProgress(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark job in progress: %w", err)
	}

	// Observers see the first frame only after the IN_PROGRESS transition
	a.publishProgress(job)

	return &SubmitResponse{
		JobID:          jobID,
		Status:         job.Status,
		TotalArticles:  job.TotalArticles,
		NewArticles:    job.NewArticles,
		CachedArticles: job.CachedArticles,
		Message:        "Job submitted successfully",
	}, nil
}

func (a *Admitter) publishProgress(job *models.Job) {
	err := a.events.Publish(context.Background(), interfaces.Event{
		Type:    interfaces.EventJobUpdates,
		Payload: models.NewJobUpdate(job, ""),
	})
	if err != nil {
		a.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to publish job update")
	}
}
