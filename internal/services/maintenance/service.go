package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Service periodically requeues articles stuck in SCRAPING, which happens
// when a worker dies between claiming a task and committing its outcome.
// A stuck article is only requeued while some live job still wants it;
// otherwise it is released back to PENDING for the next submit to pick up.
type Service struct {
	articles       interfaces.ArticleStorage
	jobs           interfaces.JobStorage
	broker         interfaces.TaskBroker
	logger         arbor.ILogger
	cron           *cron.Cron
	stuckThreshold time.Duration
}

// NewService creates a maintenance service
func NewService(articles interfaces.ArticleStorage, jobs interfaces.JobStorage, broker interfaces.TaskBroker, stuckThreshold time.Duration, logger arbor.ILogger) *Service {
	return &Service{
		articles:       articles,
		jobs:           jobs,
		broker:         broker,
		logger:         logger,
		cron:           cron.New(),
		stuckThreshold: stuckThreshold,
	}
}

// Start schedules the janitor on the given cron expression
func (s *Service) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.RequeueStuckArticles(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("Maintenance run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", schedule).
		Dur("stuck_threshold", s.stuckThreshold).
		Msg("Maintenance service started")
	return nil
}

// Stop halts the cron scheduler and waits for a running sweep to finish
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Maintenance service stopped")
}

// RequeueStuckArticles runs one janitor sweep
func (s *Service) RequeueStuckArticles(ctx context.Context) error {
	stuck, err := s.articles.GetStuckScraping(ctx, s.stuckThreshold)
	if err != nil {
		return fmt.Errorf("failed to list stuck articles: %w", err)
	}
	if len(stuck) == 0 {
		return nil
	}

	s.logger.Warn().Int("count", len(stuck)).Msg("Found stuck articles")

	active, err := s.jobs.GetJobsByStatus(ctx, models.JobStatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to list in-progress jobs: %w", err)
	}

	owners := make(map[string]string)
	for _, job := range active {
		for _, articleID := range job.ArticleIDs {
			if _, ok := owners[articleID]; !ok {
				owners[articleID] = job.ID
			}
		}
	}

	for _, article := range stuck {
		if err := s.articles.ResetForRetry(ctx, article.ID); err != nil {
			s.logger.Warn().Err(err).Str("article_id", article.ID).Msg("Failed to reset stuck article")
			continue
		}

		jobID, wanted := owners[article.ID]
		if !wanted {
			s.logger.Debug().
				Str("article_id", article.ID).
				Msg("Released stuck article with no active job")
			continue
		}

		task := &models.TaskEnvelope{
			TaskID:     common.NewTaskID(),
			JobID:      jobID,
			ArticleID:  article.ID,
			URL:        article.URL,
			Source:     article.Source,
			Category:   article.Category,
			Priority:   article.Priority,
			RetryCount: article.RetryCount,
		}
		if err := s.broker.Push(ctx, models.LaneHigh, task); err != nil {
			s.logger.Error().Err(err).Str("article_id", article.ID).Msg("Failed to requeue stuck article")
			continue
		}

		s.logger.Info().
			Str("article_id", article.ID).
			Str("job_id", jobID).
			Msg("Requeued stuck article")
	}

	return nil
}
