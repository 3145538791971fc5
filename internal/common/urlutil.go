package common

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// NormalizeURL canonicalizes a URL for deduplication: the scheme, host, and
// path are lowercased, the trailing slash is stripped from the path, and the
// query string is preserved verbatim. The result is idempotent, so two request
// URLs differing only in case or a trailing slash map to the same article.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.ToLower(strings.TrimRight(strings.TrimSpace(raw), "/"))
	}

	normalized := strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + strings.ToLower(strings.TrimRight(u.Path, "/"))
	if u.RawQuery != "" {
		normalized += "?" + u.RawQuery
	}
	return normalized
}

// ValidateURL checks that a URL is absolute with an http or https scheme
func ValidateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", raw)
	}
	return nil
}

// URLHash returns a short stable hash of a normalized URL, useful for log
// correlation without dumping full URLs into every line
func URLHash(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:16]
}

// Backoff computes the exponential retry delay base*2^attempt capped at max
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if attempt < 0 {
		attempt = 0
	}
	// 2^63 overflows time.Duration long before attempt reaches 62
	if attempt > 32 {
		return max
	}
	delay := base << uint(attempt)
	if delay <= 0 || delay > max {
		return max
	}
	return delay
}
