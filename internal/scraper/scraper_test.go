package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/colligo/internal/common"
)

func newTestScraper(timeout string) *HTTPScraper {
	return New(&common.ScraperConfig{
		Timeout:           timeout,
		UserAgent:         "colligo-test",
		RequestsPerSecond: 0,
		MaxContentLength:  50000,
	}, common.GetLogger())
}

func serve(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestScrapeExtractsArticleElement(t *testing.T) {
	body := `<html><head>
		<meta property="og:title" content="OG Headline">
		<title>Page Title</title>
	</head><body>
		<nav>Home | About | Contact</nav>
		<article>` + strings.Repeat("Article body sentence. ", 20) + `</article>
		<footer>Copyright</footer>
	</body></html>`

	server := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "colligo-test", r.Header.Get("User-Agent"))
		w.Write([]byte(body))
	})

	result := newTestScraper("5s").Scrape(context.Background(), server.URL)
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "OG Headline", result.Title)
	assert.Contains(t, result.Content, "Article body sentence.")
	assert.NotContains(t, result.Content, "Home | About")
	assert.NotContains(t, result.Content, "Copyright")
}

func TestScrapeTitleFallbackChain(t *testing.T) {
	tests := []struct {
		name string
		head string
		body string
		want string
	}{
		{
			name: "title tag when no og:title",
			head: "<title>Plain Title</title>",
			body: "<h1>Heading</h1>",
			want: "Plain Title",
		},
		{
			name: "h1 when nothing else",
			head: "",
			body: "<h1>Only Heading</h1>",
			want: "Only Heading",
		},
		{
			name: "empty og:title skipped",
			head: `<meta property="og:title" content=""><title>Real Title</title>`,
			body: "",
			want: "Real Title",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := serve(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("<html><head>" + tt.head + "</head><body>" + tt.body + "</body></html>"))
			})
			result := newTestScraper("5s").Scrape(context.Background(), server.URL)
			require.True(t, result.Success)
			assert.Equal(t, tt.want, result.Title)
		})
	}
}

func TestScrapeContentSelectorFallback(t *testing.T) {
	body := `<html><body>
		<div class="post-content">` + strings.Repeat("Selector content here. ", 15) + `</div>
	</body></html>`

	server := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})

	result := newTestScraper("5s").Scrape(context.Background(), server.URL)
	require.True(t, result.Success)
	assert.Contains(t, result.Content, "Selector content here.")
}

func TestScrapeParagraphFallback(t *testing.T) {
	long := strings.Repeat("A reasonably long paragraph of text. ", 3)
	body := `<html><body>
		<p>short</p>
		<p>` + long + `</p>
	</body></html>`

	server := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})

	result := newTestScraper("5s").Scrape(context.Background(), server.URL)
	require.True(t, result.Success)
	assert.Contains(t, result.Content, "A reasonably long paragraph")
	assert.NotContains(t, result.Content, "short")
}

func TestScrapeEmptyPageReportsFailure(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", "<html><body></body></html>"},
		{"chrome only", "<html><body><nav>Home</nav><footer>Legal</footer></body></html>"},
		{"scripts only", "<html><body><script>var a = 1;</script></body></html>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := serve(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			result := newTestScraper("5s").Scrape(context.Background(), server.URL)
			assert.False(t, result.Success, "no extractable content must not count as a successful scrape")
			assert.Equal(t, "Failed to extract article content", result.Error)
			assert.Empty(t, result.Content)
		})
	}
}

func TestScrapeHTTPErrors(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusNotFound, "404 Not Found"},
		{http.StatusForbidden, "403 Forbidden - Access denied"},
		{http.StatusInternalServerError, "HTTP Error 500"},
		{http.StatusBadGateway, "HTTP Error 502"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			server := serve(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			result := newTestScraper("5s").Scrape(context.Background(), server.URL)
			assert.False(t, result.Success)
			assert.Equal(t, tt.want, result.Error)
		})
	}
}

func TestScrapeTimeout(t *testing.T) {
	server := serve(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte("<html><body>late</body></html>"))
	})

	result := newTestScraper("50ms").Scrape(context.Background(), server.URL)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "Timeout after")
}

func TestScrapeNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	result := newTestScraper("5s").Scrape(context.Background(), server.URL)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "Network error:")
}

func TestScrapeContentCap(t *testing.T) {
	scraper := New(&common.ScraperConfig{
		Timeout:          "5s",
		UserAgent:        "colligo-test",
		MaxContentLength: 200,
	}, common.GetLogger())

	body := "<html><body><article>" + strings.Repeat("x", 1000) + "</article></body></html>"
	server := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})

	result := scraper.Scrape(context.Background(), server.URL)
	require.True(t, result.Success)
	assert.Len(t, result.Content, 200)
}
