package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// WorkerConfig controls pool size and retry policy
type WorkerConfig struct {
	Workers        int
	PollInterval   time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	MaxRetryDelay  time.Duration
}

// WorkerPool drains the priority lanes with N concurrent workers. Each
// worker pulls the highest-priority task, scrapes it, and commits the
// outcome before publishing a progress event. Transient failures re-enter
// the high lane after an in-worker backoff sleep; the sleep is deliberate
// back-pressure, not an oversight.
type WorkerPool struct {
	articles interfaces.ArticleStorage
	jobs     interfaces.JobStorage
	broker   interfaces.TaskBroker
	events   interfaces.EventService
	scraper  interfaces.Scraper
	logger   arbor.ILogger
	config   WorkerConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(articles interfaces.ArticleStorage, jobs interfaces.JobStorage, broker interfaces.TaskBroker, events interfaces.EventService, scraper interfaces.Scraper, config WorkerConfig, logger arbor.ILogger) *WorkerPool {
	if config.Workers <= 0 {
		config.Workers = 5
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = 2 * time.Second
	}
	if config.MaxRetryDelay <= 0 {
		config.MaxRetryDelay = 60 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		articles: articles,
		jobs:     jobs,
		broker:   broker,
		events:   events,
		scraper:  scraper,
		logger:   logger,
		config:   config,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker goroutines
func (wp *WorkerPool) Start() {
	wp.logger.Info().
		Int("workers", wp.config.Workers).
		Dur("poll_interval", wp.config.PollInterval).
		Int("max_retries", wp.config.MaxRetries).
		Msg("Starting worker pool")

	for i := 0; i < wp.config.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop cancels all workers and waits for in-flight tasks to finish
func (wp *WorkerPool) Stop() {
	wp.logger.Info().Msg("Stopping worker pool")
	wp.cancel()
	wp.wg.Wait()
}

func (wp *WorkerPool) worker(workerID int) {
	defer wp.wg.Done()

	// Stagger worker starts to reduce transaction contention on the queue
	stagger := (wp.config.PollInterval / time.Duration(wp.config.Workers)) * time.Duration(workerID)
	if stagger > 0 && !wp.sleep(stagger) {
		return
	}

	wp.logger.Debug().Int("worker_id", workerID).Msg("Worker started")

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().Int("worker_id", workerID).Msg("Worker stopped")
			return
		default:
		}

		task, err := wp.broker.PopHighestPriority(wp.ctx)
		if err != nil {
			if !errors.Is(err, interfaces.ErrNoTask) {
				wp.logger.Warn().Err(err).Int("worker_id", workerID).Msg("Failed to pop task")
			}
			if !wp.sleep(wp.config.PollInterval) {
				return
			}
			continue
		}

		wp.processTask(wp.ctx, workerID, task)
	}
}

// processTask executes one task end to end
func (wp *WorkerPool) processTask(ctx context.Context, workerID int, task *models.TaskEnvelope) {
	job, err := wp.jobs.GetJob(ctx, task.JobID)
	if err != nil {
		wp.logger.Warn().
			Str("task_id", task.TaskID).
			Str("job_id", task.JobID).
			Int("worker_id", workerID).
			Msg("Discarding task for missing job")
		return
	}
	if job.Status == models.JobStatusCancelled {
		wp.logger.Debug().
			Str("task_id", task.TaskID).
			Str("job_id", task.JobID).
			Msg("Discarding task for cancelled job")
		return
	}

	if err := wp.articles.UpdateStatus(ctx, task.ArticleID, models.ArticleStatusScraping); err != nil {
		wp.logger.Warn().Err(err).Str("article_id", task.ArticleID).Msg("Failed to mark article scraping")
	}

	wp.logger.Debug().
		Str("task_id", task.TaskID).
		Str("url_hash", common.URLHash(task.URL)).
		Int("worker_id", workerID).
		Int("retry_count", task.RetryCount).
		Msg("Scraping article")

	result := wp.scraper.Scrape(ctx, task.URL)
	if result.Success {
		wp.handleSuccess(ctx, task, result)
	} else {
		wp.handleFailure(ctx, task, result.Error)
	}
}

func (wp *WorkerPool) handleSuccess(ctx context.Context, task *models.TaskEnvelope, result *interfaces.ScrapeResult) {
	// Re-check before committing: a job cancelled mid-scrape discards the result
	job, err := wp.jobs.GetJob(ctx, task.JobID)
	if err != nil {
		wp.logger.Warn().Err(err).Str("job_id", task.JobID).Msg("Job vanished mid-scrape, dropping result")
		return
	}
	if job.Status == models.JobStatusCancelled {
		wp.logger.Debug().
			Str("task_id", task.TaskID).
			Str("job_id", task.JobID).
			Msg("Job cancelled mid-scrape, dropping result")
		if err := wp.articles.ResetForRetry(ctx, task.ArticleID); err != nil {
			wp.logger.Warn().Err(err).Str("article_id", task.ArticleID).Msg("Failed to release article after cancel")
		}
		return
	}

	if err := wp.articles.SaveContent(ctx, task.ArticleID, result.Title, result.Content); err != nil {
		wp.logger.Error().Err(err).Str("article_id", task.ArticleID).Msg("Failed to save scraped content")
		wp.handleFailure(ctx, task, "Storage error: "+err.Error())
		return
	}

	job, err = wp.jobs.IncrementCompleted(ctx, task.JobID)
	if err != nil {
		wp.logger.Error().Err(err).Str("job_id", task.JobID).Msg("Failed to increment completed count")
		return
	}

	job = wp.finalize(ctx, job)
	wp.publishProgress(job, task.ArticleID)
}

func (wp *WorkerPool) handleFailure(ctx context.Context, task *models.TaskEnvelope, errorMessage string) {
	if task.RetryCount < wp.config.MaxRetries {
		delay := common.Backoff(task.RetryCount, wp.config.RetryBaseDelay, wp.config.MaxRetryDelay)

		wp.logger.Warn().
			Str("task_id", task.TaskID).
			Str("url_hash", common.URLHash(task.URL)).
			Str("error", errorMessage).
			Int("retry_count", task.RetryCount+1).
			Dur("delay", delay).
			Msg("Scrape failed, retrying")

		wp.sleep(delay)

		if _, err := wp.articles.IncrementRetryCount(ctx, task.ArticleID); err != nil {
			wp.logger.Warn().Err(err).Str("article_id", task.ArticleID).Msg("Failed to increment retry count")
		}
		if err := wp.articles.ResetForRetry(ctx, task.ArticleID); err != nil {
			wp.logger.Warn().Err(err).Str("article_id", task.ArticleID).Msg("Failed to reset article for retry")
		}

		// Retries always re-enter the high lane so redelivery is prompt
		task.RetryCount++
		if err := wp.broker.Push(ctx, models.LaneHigh, task); err != nil {
			wp.logger.Error().Err(err).Str("task_id", task.TaskID).Msg("Failed to requeue task, marking failed")
			wp.failTerminally(ctx, task, errorMessage)
		}
		return
	}

	wp.failTerminally(ctx, task, errorMessage)
}

// failTerminally records the exhausted task as a permanent failure
func (wp *WorkerPool) failTerminally(ctx context.Context, task *models.TaskEnvelope, errorMessage string) {
	wp.logger.Error().
		Str("task_id", task.TaskID).
		Str("url_hash", common.URLHash(task.URL)).
		Str("error", errorMessage).
		Int("retry_count", task.RetryCount).
		Msg("Scrape failed permanently")

	if err := wp.articles.MarkFailed(ctx, task.ArticleID, errorMessage); err != nil {
		wp.logger.Warn().Err(err).Str("article_id", task.ArticleID).Msg("Failed to mark article failed")
	}

	job, err := wp.jobs.IncrementFailed(ctx, task.JobID)
	if err != nil {
		wp.logger.Error().Err(err).Str("job_id", task.JobID).Msg("Failed to increment failed count")
		return
	}

	job = wp.finalize(ctx, job)
	wp.publishProgress(job, task.ArticleID)
}

// finalize runs the completion check after a counter moved. When every
// article is processed the job finishes: FAILED only if nothing succeeded,
// COMPLETED otherwise. The one-shot FinishJob keeps a CANCELLED job
// cancelled no matter how late the counters arrive.
func (wp *WorkerPool) finalize(ctx context.Context, job *models.Job) *models.Job {
	if job.Processed() >= job.TotalArticles {
		status := models.JobStatusCompleted
		if job.CompletedCount == 0 && job.FailedCount > 0 {
			status = models.JobStatusFailed
		}

		finished, err := wp.jobs.FinishJob(ctx, job.ID, status)
		if err != nil {
			wp.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to finish job")
			return job
		}
		if finished {
			wp.logger.Info().
				Str("job_id", job.ID).
				Str("status", string(status)).
				Int("completed", job.CompletedCount).
				Int("failed", job.FailedCount).
				Msg("Job finished")
		}

		refreshed, err := wp.jobs.GetJob(ctx, job.ID)
		if err != nil {
			return job
		}
		return refreshed
	}

	if job.Status == models.JobStatusPending {
		refreshed, err := wp.jobs.MarkInProgress(ctx, job.ID)
		if err != nil {
			return job
		}
		return refreshed
	}

	return job
}

func (wp *WorkerPool) publishProgress(job *models.Job, articleID string) {
	err := wp.events.Publish(context.Background(), interfaces.Event{
		Type:    interfaces.EventJobUpdates,
		Payload: models.NewJobUpdate(job, articleID),
	})
	if err != nil {
		wp.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to publish job update")
	}
}

// sleep waits for d or until shutdown; returns false when cancelled
func (wp *WorkerPool) sleep(d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-wp.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
