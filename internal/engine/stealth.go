package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"

	stealth "github.com/anatolykoptev/go-stealth"
)

// BrowserClient is the Chrome-fingerprinted client used for public YouTube pages.
type BrowserClient = stealth.BrowserClient

// maxPublicBody caps public page reads; handle pages run to ~1 MB.
const maxPublicBody = 4 << 20

// FetchPublic GETs a credential-free page (channel handle page, syndication feed).
// Prefers the configured BrowserClient and falls back to Cfg.HTTPClient.
// Transient statuses are retried with the stealth backoff policy.
func FetchPublic(ctx context.Context, targetURL, accept string) ([]byte, error) {
	if cfg.BrowserClient != nil {
		headers := stealth.ChromeHeaders()
		if accept != "" {
			headers["accept"] = accept
		}
		return stealth.RetryDo(ctx, stealth.DefaultRetryConfig, func() ([]byte, error) {
			data, _, status, err := cfg.BrowserClient.Do(http.MethodGet, targetURL, headers, nil)
			if err != nil {
				return nil, err
			}
			if status != http.StatusOK {
				return nil, &StatusError{URL: targetURL, StatusCode: status}
			}
			return data, nil
		})
	}

	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := stealth.RetryHTTP(ctx, stealth.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", stealth.RandomUserAgent())
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		return client.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", targetURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: targetURL, StatusCode: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPublicBody))
}

// StatusError is a non-200 answer from a public page.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", e.URL, e.StatusCode)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool { return stealth.IsRetryableStatus(e.StatusCode) }
