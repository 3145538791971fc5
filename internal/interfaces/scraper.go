package interfaces

import "context"

// ScrapeResult is the classified outcome of one fetch. Scrape never returns
// a Go error; every failure mode is folded into Success=false with a
// human-readable Error string that feeds the retry/fail path.
type ScrapeResult struct {
	Success bool
	Title   string
	Content string
	Error   string
}

// Scraper fetches a URL and extracts article title and body text
type Scraper interface {
	Scrape(ctx context.Context, url string) *ScrapeResult
}
