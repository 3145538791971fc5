package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/scheduler"
)

// JobHandler serves job submission, inspection, and cancellation
type JobHandler struct {
	admitter *scheduler.Admitter
	articles interfaces.ArticleStorage
	jobs     interfaces.JobStorage
	broker   interfaces.TaskBroker
	events   interfaces.EventService
	logger   arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(admitter *scheduler.Admitter, articles interfaces.ArticleStorage, jobs interfaces.JobStorage, broker interfaces.TaskBroker, events interfaces.EventService, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		admitter: admitter,
		articles: articles,
		jobs:     jobs,
		broker:   broker,
		events:   events,
		logger:   logger,
	}
}

// SubmitHandler handles POST /jobs/submit
func (h *JobHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req scheduler.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}

	resp, err := h.admitter.Submit(r.Context(), &req)
	if err != nil {
		if errors.Is(err, scheduler.ErrInvalidRequest) {
			WriteError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.Error().Err(err).Msg("Job submission failed")
		WriteError(w, http.StatusInternalServerError, "Failed to submit job")
		return
	}

	WriteJSON(w, http.StatusCreated, resp)
}

// jobStatusResponse is the status view of a job
type jobStatusResponse struct {
	JobID          string            `json:"job_id"`
	Status         models.JobStatus  `json:"status"`
	TotalArticles  int               `json:"total_articles"`
	NewArticles    int               `json:"new_articles"`
	CachedArticles int               `json:"cached_articles"`
	Completed      int               `json:"completed"`
	Failed         int               `json:"failed"`
	Pending        int               `json:"pending"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
}

// StatusHandler handles GET /jobs/{id}/status
func (h *JobHandler) StatusHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found: "+jobID)
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to load job")
		return
	}

	WriteJSON(w, http.StatusOK, jobStatusResponse{
		JobID:          job.ID,
		Status:         job.Status,
		TotalArticles:  job.TotalArticles,
		NewArticles:    job.NewArticles,
		CachedArticles: job.CachedArticles,
		Completed:      job.CompletedCount,
		Failed:         job.FailedCount,
		Pending:        job.Pending(),
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
		CompletedAt:    job.CompletedAt,
	})
}

// articleResult is one successfully scraped article in the results view
type articleResult struct {
	ArticleID string     `json:"article_id"`
	URL       string     `json:"url"`
	Source    string     `json:"source"`
	Category  string     `json:"category"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	ScrapedAt *time.Time `json:"scraped_at,omitempty"`
	Cached    bool       `json:"cached"`
}

// failedArticle is one permanently failed article in the results view
type failedArticle struct {
	URL         string    `json:"url"`
	Error       string    `json:"error"`
	AttemptedAt time.Time `json:"attempted_at"`
}

// ResultsHandler handles GET /jobs/{id}/results
func (h *JobHandler) ResultsHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found: "+jobID)
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to load job")
		return
	}

	articles, err := h.articles.GetArticlesByIDs(r.Context(), job.ArticleIDs)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to load articles")
		return
	}

	results := []articleResult{}
	failedArticles := []failedArticle{}
	for _, article := range articles {
		switch {
		case article.HasContent():
			// Content that predates the job came from the cache
			cached := article.ScrapedAt != nil && article.ScrapedAt.Before(job.CreatedAt)
			results = append(results, articleResult{
				ArticleID: article.ID,
				URL:       article.URL,
				Source:    article.Source,
				Category:  article.Category,
				Title:     article.Title,
				Content:   article.Content,
				ScrapedAt: article.ScrapedAt,
				Cached:    cached,
			})
		case article.Status == models.ArticleStatusFailed:
			failedArticles = append(failedArticles, failedArticle{
				URL:         article.URL,
				Error:       article.ErrorMessage,
				AttemptedAt: article.UpdatedAt,
			})
		}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":          job.ID,
		"status":          job.Status,
		"total_articles":  job.TotalArticles,
		"successful":      len(results),
		"failed":          len(failedArticles),
		"results":         results,
		"failed_articles": failedArticles,
	})
}

// CancelHandler handles DELETE /jobs/{id}
func (h *JobHandler) CancelHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found: "+jobID)
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to load job")
		return
	}

	cancelled, err := h.jobs.CancelJob(r.Context(), jobID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to cancel job")
		return
	}
	if !cancelled {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Cannot cancel job in status %s", job.Status))
		return
	}

	removed, err := h.broker.RemoveJobTasks(r.Context(), jobID)
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to purge queued tasks for cancelled job")
	}

	job, err = h.jobs.GetJob(r.Context(), jobID)
	if err == nil {
		h.publishUpdate(job)
	}

	h.logger.Info().
		Str("job_id", jobID).
		Int("removed_tasks", removed).
		Msg("Job cancelled")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":        jobID,
		"status":        models.JobStatusCancelled,
		"removed_tasks": removed,
		"message":       fmt.Sprintf("Job cancelled. Removed %d pending tasks.", removed),
	})
}

// ListHandler handles GET /jobs
func (h *JobHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	opts := &interfaces.JobListOptions{
		Limit: QueryInt(r, "limit", 50),
		Skip:  QueryInt(r, "skip", 0),
	}
	if statusFilter := r.URL.Query().Get("status_filter"); statusFilter != "" {
		opts.Status = models.JobStatus(strings.ToUpper(statusFilter))
	}

	jobs, err := h.jobs.ListJobs(r.Context(), opts)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	summaries := make([]jobStatusResponse, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, jobStatusResponse{
			JobID:          job.ID,
			Status:         job.Status,
			TotalArticles:  job.TotalArticles,
			NewArticles:    job.NewArticles,
			CachedArticles: job.CachedArticles,
			Completed:      job.CompletedCount,
			Failed:         job.FailedCount,
			Pending:        job.Pending(),
			CreatedAt:      job.CreatedAt,
			UpdatedAt:      job.UpdatedAt,
			CompletedAt:    job.CompletedAt,
		})
	}

	WriteJSON(w, http.StatusOK, summaries)
}

// StatsHandler handles GET /jobs/stats
func (h *JobHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	lengths, err := h.broker.Lengths(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to read queue depths")
		return
	}

	counts, err := h.jobs.CountByStatus(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to count jobs")
		return
	}

	jobCounts := make(map[string]int, len(counts))
	for status, count := range counts {
		jobCounts[string(status)] = count
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"queues": map[string]int{
			"high":   lengths[models.LaneHigh],
			"medium": lengths[models.LaneMedium],
			"low":    lengths[models.LaneLow],
		},
		"jobs": jobCounts,
	})
}

func (h *JobHandler) publishUpdate(job *models.Job) {
	err := h.events.Publish(context.Background(), interfaces.Event{
		Type:    interfaces.EventJobUpdates,
		Payload: models.NewJobUpdate(job, ""),
	})
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to publish job update")
	}
}
