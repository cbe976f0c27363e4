package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/anatolykoptev/go_catalog/internal/engine"
)

const (
	ytPageBase   = "https://www.youtube.com"
	ytPageAccept = "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"
)

var (
	ytChannelIDJSONRe = regexp.MustCompile(`"(?:channelId|externalId)"\s*:\s*"(UC[a-zA-Z0-9_-]{20,})"`)
	ytChannelPathRe   = regexp.MustCompile(`/channel/(UC[a-zA-Z0-9_-]{20,})`)
)

// HandlePage resolves @handles by scraping the public channel page.
// Costs no Data API quota.
type HandlePage struct {
	BaseURL string // empty = youtube.com
}

// NewHandlePage returns a HandlePage pointed at youtube.com.
func NewHandlePage() *HandlePage { return &HandlePage{} }

// ResolveHandle returns the channel id behind handle.
func (h *HandlePage) ResolveHandle(ctx context.Context, handle string) (string, error) {
	name := engine.HandleName(handle)
	if name == "" {
		return "", engine.ErrInvalidRequest("empty channel handle")
	}
	base := h.BaseURL
	if base == "" {
		base = ytPageBase
	}
	data, err := engine.FetchPublic(ctx, base+"/@"+url.PathEscape(name), ytPageAccept)
	if err != nil {
		return "", fmt.Errorf("youtube handle page @%s: %w", name, err)
	}
	id := ParseChannelPage(data)
	if id == "" {
		return "", engine.ErrChannelNotFound(handle)
	}
	return id, nil
}

// ParseChannelPage extracts the channel id from a channel page: the canonical
// link first, then embedded JSON, then any /channel/ path. Returns "" when absent.
func ParseChannelPage(data []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err == nil {
		var found string
		doc.Find(`link[rel="canonical"], meta[itemprop="identifier"], meta[itemprop="channelId"]`).
			EachWithBreak(func(_ int, s *goquery.Selection) bool {
				if href, ok := s.Attr("href"); ok {
					if m := ytChannelPathRe.FindStringSubmatch(href); m != nil {
						found = m[1]
						return false
					}
				}
				if content, ok := s.Attr("content"); ok && engine.IsChannelID(strings.TrimSpace(content)) {
					found = strings.TrimSpace(content)
					return false
				}
				return true
			})
		if found != "" {
			return found
		}
	}
	if m := ytChannelIDJSONRe.FindSubmatch(data); m != nil {
		return string(m[1])
	}
	if m := ytChannelPathRe.FindSubmatch(data); m != nil {
		return string(m[1])
	}
	return ""
}
