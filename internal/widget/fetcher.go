package widget

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/anatolykoptev/go_catalog/internal/engine"
)

const maxResponseBody = 2 << 20

// HTTPFetcher calls the catalog endpoints of a running server.
type HTTPFetcher struct {
	BaseURL string // scheme and host of the catalog server
	Client  *http.Client
}

// NewHTTPFetcher returns a fetcher for the server at baseURL.
func NewHTTPFetcher(baseURL string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{BaseURL: strings.TrimRight(baseURL, "/"), Client: client}
}

// Catalog GETs /api/youtube with v.
func (f *HTTPFetcher) Catalog(ctx context.Context, v url.Values) (*engine.Response, error) {
	var out engine.Response
	if err := f.get(ctx, "/api/youtube", v, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Feed GETs /api/videos-rss for channel.
func (f *HTTPFetcher) Feed(ctx context.Context, channel string, limit int) (*engine.FeedResponse, error) {
	v := url.Values{}
	v.Set("channelId", channel)
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	var out engine.FeedResponse
	if err := f.get(ctx, "/api/videos-rss", v, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (f *HTTPFetcher) get(ctx context.Context, path string, v url.Values, out any) error {
	target := f.BaseURL + path + "?" + v.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// decodeError rebuilds the tagged error from an error body so the
// coordinator can branch on kind exactly as the server did.
func decodeError(status int, body []byte) error {
	var eb engine.ErrorBody
	if err := json.Unmarshal(body, &eb); err != nil || eb.Kind == "" {
		eb.Kind = kindForStatus(status)
	}
	detail := eb.Details
	if detail == "" {
		detail = eb.Error
	}
	return &engine.Error{Kind: eb.Kind, HTTPStatus: status, Detail: detail}
}

func kindForStatus(status int) engine.ErrorKind {
	switch status {
	case http.StatusBadRequest:
		return engine.KindInvalidRequest
	case http.StatusNotFound:
		return engine.KindChannelNotFound
	case http.StatusServiceUnavailable:
		return engine.KindQuotaExceeded
	}
	return engine.KindUpstream
}
