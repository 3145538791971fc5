package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"golang.org/x/time/rate"
)

const (
	// Selectors tried in order when no <article> element qualifies
	minArticleTextLength = 100
	minParagraphCount    = 3
	minParagraphLength   = 50
	bodyFallbackLength   = 10000
)

var contentSelectors = []string{
	"main",
	".article-content",
	".post-content",
	".entry-content",
	"#article-body",
	".article-body",
	".story-body",
	".content",
}

// HTTPScraper fetches article pages and extracts title and body text.
// All outbound requests share one rate limiter so a large batch cannot
// hammer a single host. Scrape never returns a Go error; fetch and parse
// failures are reported through ScrapeResult.Error so the worker can
// apply its retry policy uniformly.
type HTTPScraper struct {
	client           *http.Client
	limiter          *rate.Limiter
	userAgent        string
	maxContentLength int
	logger           arbor.ILogger
}

// New creates an HTTPScraper from config
func New(config *common.ScraperConfig, logger arbor.ILogger) *HTTPScraper {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}

	return &HTTPScraper{
		client: &http.Client{
			Timeout: config.TimeoutDuration(),
		},
		limiter:          limiter,
		userAgent:        config.UserAgent,
		maxContentLength: config.MaxContentLength,
		logger:           logger,
	}
}

// Scrape fetches url and extracts its title and content
func (s *HTTPScraper) Scrape(ctx context.Context, url string) *interfaces.ScrapeResult {
	if err := s.limiter.Wait(ctx); err != nil {
		return &interfaces.ScrapeResult{Error: "Network error: " + err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &interfaces.ScrapeResult{Error: "Network error: " + err.Error()}
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		var urlErr interface{ Timeout() bool }
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return &interfaces.ScrapeResult{Error: fmt.Sprintf("Timeout after %ds", int(s.client.Timeout.Seconds()))}
		}
		return &interfaces.ScrapeResult{Error: "Network error: " + err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &interfaces.ScrapeResult{Error: "404 Not Found"}
	case resp.StatusCode == http.StatusForbidden:
		return &interfaces.ScrapeResult{Error: "403 Forbidden - Access denied"}
	case resp.StatusCode >= 400:
		return &interfaces.ScrapeResult{Error: fmt.Sprintf("HTTP Error %d", resp.StatusCode)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return &interfaces.ScrapeResult{Error: "Network error: failed to parse HTML: " + err.Error()}
	}

	title := extractTitle(doc)
	content := s.extractContent(doc)

	// A fetch that yields no content is a scrape failure; the caller's
	// retry policy applies
	if content == "" {
		return &interfaces.ScrapeResult{Error: "Failed to extract article content"}
	}

	s.logger.Debug().
		Str("url_hash", common.URLHash(url)).
		Int("title_len", len(title)).
		Int("content_len", len(content)).
		Msg("Scraped article")

	return &interfaces.ScrapeResult{
		Success: true,
		Title:   title,
		Content: content,
	}
}

// extractTitle prefers og:title, then <title>, then the first <h1>
func extractTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		if title := strings.TrimSpace(og); title != "" {
			return title
		}
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// extractContent walks a series of strategies from most to least specific
func (s *HTTPScraper) extractContent(doc *goquery.Document) string {
	doc.Find("script, style, nav, header, footer, aside, form, iframe, noscript").Remove()

	if text := collapseWhitespace(doc.Find("article").First().Text()); len(text) > minArticleTextLength {
		return s.cap(text)
	}

	for _, selector := range contentSelectors {
		if text := collapseWhitespace(doc.Find(selector).First().Text()); len(text) > minArticleTextLength {
			return s.cap(text)
		}
	}

	// Densest div by paragraph count
	var best string
	var bestCount int
	doc.Find("div").Each(func(_ int, div *goquery.Selection) {
		count := div.ChildrenFiltered("p").Length()
		if count >= minParagraphCount && count > bestCount {
			bestCount = count
			best = collapseWhitespace(div.Text())
		}
	})
	if best != "" {
		return s.cap(best)
	}

	// Any substantial paragraphs anywhere on the page
	var parts []string
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := collapseWhitespace(p.Text())
		if len(text) > minParagraphLength {
			parts = append(parts, text)
		}
	})
	if len(parts) > 0 {
		return s.cap(strings.Join(parts, "\n\n"))
	}

	body := collapseWhitespace(doc.Find("body").Text())
	if len(body) > bodyFallbackLength {
		body = body[:bodyFallbackLength]
	}
	return s.cap(body)
}

func (s *HTTPScraper) cap(text string) string {
	if s.maxContentLength > 0 && len(text) > s.maxContentLength {
		return text[:s.maxContentLength]
	}
	return text
}

// collapseWhitespace trims and collapses runs of whitespace to single spaces,
// preserving paragraph breaks as newlines
func collapseWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	for _, line := range lines {
		if collapsed := strings.Join(strings.Fields(line), " "); collapsed != "" {
			out = append(out, collapsed)
		}
	}
	return strings.Join(out, "\n")
}
