package models

import "time"

// ArticleStatus represents the lifecycle state of an article
type ArticleStatus string

const (
	ArticleStatusPending  ArticleStatus = "PENDING"
	ArticleStatusScraping ArticleStatus = "SCRAPING"
	ArticleStatusScraped  ArticleStatus = "SCRAPED"
	ArticleStatusFailed   ArticleStatus = "FAILED"
)

// Article is one deduplicated URL and its scraped content. The URL field
// holds the normalized form and is unique across the store; multiple jobs
// referencing the same URL share one Article via ReferenceCount.
type Article struct {
	ID             string        `json:"article_id" badgerhold:"key"`
	URL            string        `json:"url" badgerhold:"unique"`
	Source         string        `json:"source"`
	Category       string        `json:"category"`
	Priority       int           `json:"priority"`
	Status         ArticleStatus `json:"status"`
	Title          string        `json:"title,omitempty"`
	Content        string        `json:"content,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	ScrapedAt      *time.Time    `json:"scraped_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	ReferenceCount int           `json:"reference_count"`
	RetryCount     int           `json:"retry_count"`
}

// HasContent reports whether the article carries usable scraped content
func (a *Article) HasContent() bool {
	return a.Status == ArticleStatusScraped && a.Content != ""
}
