package badger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ArticleStorage implements the ArticleStorage interface for Badger.
// BadgerHold has no atomic field updates, so every read-modify-write runs
// under the store mutex; the process is the deployment unit, which makes
// that sufficient for the increment and status-transition guarantees.
type ArticleStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewArticleStorage creates a new ArticleStorage instance
func NewArticleStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ArticleStorage {
	return &ArticleStorage{
		db:     db,
		logger: logger,
	}
}

// CreateArticle inserts a new article keyed by its normalized URL. A URL that
// already exists collapses into a read of the existing record: the caller
// gets the winner back with created=false instead of a constraint error.
func (s *ArticleStorage) CreateArticle(ctx context.Context, article *models.Article) (*models.Article, bool, error) {
	if article.URL == "" {
		return nil, false, fmt.Errorf("article URL is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var existing models.Article
	err := s.db.Store().FindOne(&existing, badgerhold.Where("URL").Eq(article.URL))
	if err == nil {
		return &existing, false, nil
	}
	if err != badgerhold.ErrNotFound {
		return nil, false, fmt.Errorf("failed to check existing article: %w", err)
	}

	if article.ID == "" {
		article.ID = common.NewArticleID()
	}
	if article.Status == "" {
		article.Status = models.ArticleStatusPending
	}
	if article.ReferenceCount == 0 {
		article.ReferenceCount = 1
	}
	now := time.Now().UTC()
	article.CreatedAt = now
	article.UpdatedAt = now

	if err := s.db.Store().Insert(article.ID, article); err != nil {
		// A concurrent writer can still win between the check and the insert
		if err == badgerhold.ErrUniqueExists {
			if ferr := s.db.Store().FindOne(&existing, badgerhold.Where("URL").Eq(article.URL)); ferr == nil {
				return &existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("failed to create article: %w", err)
	}

	return article, true, nil
}

// GetArticle returns an article by ID
func (s *ArticleStorage) GetArticle(ctx context.Context, id string) (*models.Article, error) {
	var article models.Article
	if err := s.db.Store().Get(id, &article); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrArticleNotFound
		}
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return &article, nil
}

// GetArticleByURL returns an article by its normalized URL
func (s *ArticleStorage) GetArticleByURL(ctx context.Context, normalizedURL string) (*models.Article, error) {
	var article models.Article
	if err := s.db.Store().FindOne(&article, badgerhold.Where("URL").Eq(normalizedURL)); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrArticleNotFound
		}
		return nil, fmt.Errorf("failed to get article by URL: %w", err)
	}
	return &article, nil
}

// GetArticlesByURLs bulk-fetches articles keyed by normalized URL
func (s *ArticleStorage) GetArticlesByURLs(ctx context.Context, normalizedURLs []string) (map[string]*models.Article, error) {
	result := make(map[string]*models.Article, len(normalizedURLs))
	if len(normalizedURLs) == 0 {
		return result, nil
	}

	values := make([]interface{}, len(normalizedURLs))
	for i, u := range normalizedURLs {
		values[i] = u
	}

	var articles []models.Article
	if err := s.db.Store().Find(&articles, badgerhold.Where("URL").In(values...)); err != nil {
		return nil, fmt.Errorf("failed to get articles by URLs: %w", err)
	}

	for i := range articles {
		result[articles[i].URL] = &articles[i]
	}
	return result, nil
}

// GetArticlesByIDs fetches articles preserving input order; missing IDs are skipped
func (s *ArticleStorage) GetArticlesByIDs(ctx context.Context, ids []string) ([]*models.Article, error) {
	articles := make([]*models.Article, 0, len(ids))
	seen := make(map[string]bool, len(ids))

	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		var article models.Article
		if err := s.db.Store().Get(id, &article); err != nil {
			if err == badgerhold.ErrNotFound {
				continue
			}
			return nil, fmt.Errorf("failed to get article %s: %w", id, err)
		}
		articles = append(articles, &article)
	}
	return articles, nil
}

// mutate applies fn to the stored article under the store mutex
func (s *ArticleStorage) mutate(id string, fn func(*models.Article)) (*models.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var article models.Article
	if err := s.db.Store().Get(id, &article); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrArticleNotFound
		}
		return nil, fmt.Errorf("failed to get article: %w", err)
	}

	fn(&article)
	article.UpdatedAt = time.Now().UTC()

	if err := s.db.Store().Update(id, &article); err != nil {
		return nil, fmt.Errorf("failed to update article: %w", err)
	}
	return &article, nil
}

// UpdateStatus transitions the article to the given status
func (s *ArticleStorage) UpdateStatus(ctx context.Context, id string, status models.ArticleStatus) error {
	_, err := s.mutate(id, func(a *models.Article) {
		a.Status = status
	})
	return err
}

// SaveContent stores scraped content and marks the article SCRAPED
func (s *ArticleStorage) SaveContent(ctx context.Context, id, title, content string) error {
	_, err := s.mutate(id, func(a *models.Article) {
		now := time.Now().UTC()
		a.Title = title
		a.Content = content
		a.Status = models.ArticleStatusScraped
		a.ScrapedAt = &now
		a.ErrorMessage = ""
	})
	return err
}

// MarkFailed marks the article FAILED with an error message
func (s *ArticleStorage) MarkFailed(ctx context.Context, id, errorMessage string) error {
	_, err := s.mutate(id, func(a *models.Article) {
		a.Status = models.ArticleStatusFailed
		a.ErrorMessage = errorMessage
	})
	return err
}

// ResetForRetry returns the article to PENDING and clears its error
func (s *ArticleStorage) ResetForRetry(ctx context.Context, id string) error {
	_, err := s.mutate(id, func(a *models.Article) {
		a.Status = models.ArticleStatusPending
		a.ErrorMessage = ""
	})
	return err
}

// IncrementReferenceCount bumps the share count when a new job reuses a cached article
func (s *ArticleStorage) IncrementReferenceCount(ctx context.Context, id string) error {
	_, err := s.mutate(id, func(a *models.Article) {
		a.ReferenceCount++
	})
	return err
}

// IncrementRetryCount bumps the retry counter and returns the new value
func (s *ArticleStorage) IncrementRetryCount(ctx context.Context, id string) (int, error) {
	article, err := s.mutate(id, func(a *models.Article) {
		a.RetryCount++
	})
	if err != nil {
		return 0, err
	}
	return article.RetryCount, nil
}

// GetStuckScraping returns articles left in SCRAPING longer than the threshold
func (s *ArticleStorage) GetStuckScraping(ctx context.Context, olderThan time.Duration) ([]*models.Article, error) {
	var scraping []models.Article
	if err := s.db.Store().Find(&scraping, badgerhold.Where("Status").Eq(models.ArticleStatusScraping)); err != nil {
		return nil, fmt.Errorf("failed to query scraping articles: %w", err)
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	stuck := make([]*models.Article, 0)
	for i := range scraping {
		if scraping[i].UpdatedAt.Before(cutoff) {
			stuck = append(stuck, &scraping[i])
		}
	}
	return stuck, nil
}
