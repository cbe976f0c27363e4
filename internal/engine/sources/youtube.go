package sources

// YouTube upstream adapters are split across three files by responsibility:
//   youtube_data.go: Data API v3 client (quota-metered, keyed); classifies upstream errors
//   youtube_feed.go: credential-free syndication feed, the degraded-mode video source
//   youtube_page.go: credential-free handle page scrape, resolves @handle → channel id
