package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/colligo/internal/models"
)

func submitItem(url string, priority int) SubmitArticle {
	return SubmitArticle{
		URL:      url,
		Source:   "example",
		Category: "tech",
		Priority: priority,
	}
}

func TestSubmitAllCachedCompletesImmediately(t *testing.T) {
	env := newTestEnv(t)
	admitter := env.newAdmitter()
	ctx := context.Background()

	// Seed the cache with scraped content
	article, _, err := env.articles.CreateArticle(ctx, &models.Article{
		URL: "https://example.com/cached", Source: "example", Category: "tech", Priority: 1,
	})
	require.NoError(t, err)
	require.NoError(t, env.articles.SaveContent(ctx, article.ID, "Cached Title", "Cached body"))

	resp, err := admitter.Submit(ctx, &SubmitRequest{
		Articles: []SubmitArticle{submitItem("https://example.com/cached", 1)},
	})
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, resp.Status)
	assert.Equal(t, 1, resp.TotalArticles)
	assert.Equal(t, 1, resp.CachedArticles)
	assert.Equal(t, 0, resp.NewArticles)
	assert.Equal(t, "Job completed - all articles from cache", resp.Message)

	job, err := env.jobs.GetJob(ctx, resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, job.CompletedCount)
	require.NotNil(t, job.CompletedAt)

	// Cache hit bumps the share count
	got, err := env.articles.GetArticle(ctx, article.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ReferenceCount)

	// Nothing reaches the queue
	lengths, err := env.broker.Lengths(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, lengths[models.LaneHigh]+lengths[models.LaneMedium]+lengths[models.LaneLow])

	// Exactly one progress frame: the terminal COMPLETED snapshot
	require.Eventually(t, func() bool { return env.updates.count() == 1 }, time.Second, 5*time.Millisecond)
	frame := env.updates.last()
	assert.Equal(t, "job_update", frame.Type)
	assert.Equal(t, resp.JobID, frame.JobID)
	assert.Equal(t, models.JobStatusCompleted, frame.Status)
	assert.Equal(t, 1, frame.Completed)
	assert.Equal(t, 1, frame.Total)
}

func TestSubmitMixedBatch(t *testing.T) {
	env := newTestEnv(t)
	admitter := env.newAdmitter()
	ctx := context.Background()

	cached, _, err := env.articles.CreateArticle(ctx, &models.Article{
		URL: "https://example.com/hit", Source: "example", Category: "tech", Priority: 1,
	})
	require.NoError(t, err)
	require.NoError(t, env.articles.SaveContent(ctx, cached.ID, "Hit", "Hit body"))

	resp, err := admitter.Submit(ctx, &SubmitRequest{
		Articles: []SubmitArticle{
			submitItem("https://example.com/hit", 1),
			submitItem("https://example.com/fresh-a", 2),
			submitItem("https://example.com/fresh-b", 6),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusInProgress, resp.Status)
	assert.Equal(t, 3, resp.TotalArticles)
	assert.Equal(t, 1, resp.CachedArticles)
	assert.Equal(t, 2, resp.NewArticles)
	assert.Equal(t, "Job submitted successfully", resp.Message)

	job, err := env.jobs.GetJob(ctx, resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, 1, job.CompletedCount, "completed starts at cache hits")
	assert.Len(t, job.ArticleIDs, 3)

	// Tasks land in their priority lanes
	lengths, err := env.broker.Lengths(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, lengths[models.LaneHigh])
	assert.Equal(t, 1, lengths[models.LaneMedium])
}

func TestSubmitNormalizationCollision(t *testing.T) {
	env := newTestEnv(t)
	admitter := env.newAdmitter()
	ctx := context.Background()

	// Two raw URLs, one normalized key: a single shared article, two tasks
	resp, err := admitter.Submit(ctx, &SubmitRequest{
		Articles: []SubmitArticle{
			submitItem("https://example.com/article", 1),
			submitItem("HTTPS://EXAMPLE.COM/article/", 1),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.TotalArticles)
	assert.Equal(t, 2, resp.NewArticles)

	job, err := env.jobs.GetJob(ctx, resp.JobID)
	require.NoError(t, err)
	require.Len(t, job.ArticleIDs, 2)
	assert.Equal(t, job.ArticleIDs[0], job.ArticleIDs[1], "both slots share one article")

	first, err := env.broker.Pop(ctx, models.LaneHigh)
	require.NoError(t, err)
	second, err := env.broker.Pop(ctx, models.LaneHigh)
	require.NoError(t, err)
	assert.Equal(t, first.ArticleID, second.ArticleID)
	assert.NotEqual(t, first.TaskID, second.TaskID)
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t)
	admitter := env.newAdmitter()
	ctx := context.Background()

	tests := []struct {
		name string
		req  *SubmitRequest
	}{
		{
			name: "empty batch",
			req:  &SubmitRequest{},
		},
		{
			name: "duplicate raw URL",
			req: &SubmitRequest{Articles: []SubmitArticle{
				submitItem("https://example.com/a", 1),
				submitItem("https://example.com/a", 2),
			}},
		},
		{
			name: "non-http scheme",
			req:  &SubmitRequest{Articles: []SubmitArticle{submitItem("ftp://example.com/a", 1)}},
		},
		{
			name: "priority out of range",
			req:  &SubmitRequest{Articles: []SubmitArticle{submitItem("https://example.com/a", 11)}},
		},
		{
			name: "missing source",
			req: &SubmitRequest{Articles: []SubmitArticle{{
				URL: "https://example.com/a", Category: "tech", Priority: 1,
			}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := admitter.Submit(ctx, tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestSubmitBatchTooLarge(t *testing.T) {
	env := newTestEnv(t)
	admitter := env.newAdmitter()
	ctx := context.Background()

	articles := make([]SubmitArticle, 101)
	for i := range articles {
		articles[i] = submitItem("https://example.com/a"+string(rune('a'+i%26))+"/"+string(rune('0'+i/26)), 1)
	}
	// Keep URLs unique
	for i := range articles {
		articles[i].URL = articles[i].URL + "?n=" + string(rune('a'+i%26)) + string(rune('a'+(i/26)%26))
	}

	_, err := admitter.Submit(ctx, &SubmitRequest{Articles: articles})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSubmitDefaultsPriority(t *testing.T) {
	env := newTestEnv(t)
	admitter := env.newAdmitter()
	ctx := context.Background()

	resp, err := admitter.Submit(ctx, &SubmitRequest{
		Articles: []SubmitArticle{{URL: "https://example.com/nopri", Source: "example", Category: "tech"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.NewArticles)

	// Priority 0 defaults to 1, which routes to the high lane
	lengths, err := env.broker.Lengths(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, lengths[models.LaneHigh])
}

func TestSubmitRequeuesFailedArticle(t *testing.T) {
	env := newTestEnv(t)
	admitter := env.newAdmitter()
	ctx := context.Background()

	failed, _, err := env.articles.CreateArticle(ctx, &models.Article{
		URL: "https://example.com/failed-before", Source: "example", Category: "tech", Priority: 1,
	})
	require.NoError(t, err)
	require.NoError(t, env.articles.MarkFailed(ctx, failed.ID, "Timeout after 30s"))

	resp, err := admitter.Submit(ctx, &SubmitRequest{
		Articles: []SubmitArticle{submitItem("https://example.com/failed-before", 1)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.NewArticles, "previously failed article is rescraped, not served from cache")

	got, err := env.articles.GetArticle(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ArticleStatusPending, got.Status)
	assert.Empty(t, got.ErrorMessage)
}
