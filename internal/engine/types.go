package engine

import "encoding/json"

// --- Catalog records ---

// Video is an immutable snapshot of an upstream video.
type Video struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
	PublishedAt string `json:"publishedAt,omitempty"` // RFC 3339, as reported upstream
	Embeddable  *bool  `json:"embeddable,omitempty"`  // set by channel embeddability scans only
}

type Playlist struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ItemCount int64  `json:"itemCount"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// LiveStatus is the single live broadcast of a channel at query time.
type LiveStatus struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

type EmbedStatus struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Embeddable    bool   `json:"embeddable"`
	PrivacyStatus string `json:"privacyStatus,omitempty"`
}

// ItemPage is one upstream page of a cursor-addressed listing.
// NextCursor is empty when the listing has no further pages.
type ItemPage struct {
	Videos     []Video
	NextCursor string
	PrevCursor string
	Total      int64 // upstream's own estimate, 0 if unknown
}

// --- Request vocabulary ---

type Action string

const (
	ActionPlaylists      Action = "playlists"
	ActionPlaylistVideos Action = "playlistVideos"
	ActionUploads        Action = "uploads"
	ActionSearch         Action = "search"
	ActionLive           Action = "live"
	ActionEmbeddable     Action = "embeddable"
)

// Paginated reports whether the action serves video pages.
func (a Action) Paginated() bool {
	return a == ActionUploads || a == ActionPlaylistVideos || a == ActionSearch
}

type Order string

const (
	OrderNewest Order = "date_desc"
	OrderOldest Order = "date_asc"
)

// Response sources.
const (
	SourceAPI  = "api"
	SourceFeed = "feed"
)

// WatchURL returns the public watch page of a video.
func WatchURL(id string) string { return "https://www.youtube.com/watch?v=" + id }

// --- Response ---

// Response is the JSON payload of the catalog endpoint. Numbered pages fill
// Page/PageCount/NextPage; sequential pages fill PageToken/PrevPageToken.
type Response struct {
	Action        Action       `json:"action"`
	ChannelID     string       `json:"channelId,omitempty"`
	Source        string       `json:"source,omitempty"`
	Order         Order        `json:"order,omitempty"`
	Videos        []Video      `json:"videos,omitempty"`
	Page          int          `json:"page,omitempty"`
	PageCount     int          `json:"pageCount,omitempty"`
	NextPage      *int         `json:"nextPage,omitempty"`
	PageToken     string       `json:"pageToken,omitempty"`
	PrevPageToken string       `json:"prevPageToken,omitempty"`
	Playlists     []Playlist   `json:"playlists,omitempty"`
	Live          *LiveStatus  `json:"live,omitempty"`
	Embeddable    *EmbedStatus `json:"embeddable,omitempty"`
	Total         *int         `json:"total,omitempty"` // channel embeddability scans
}

// Paginated reports whether a client may request further pages.
func (r *Response) Paginated() bool {
	return r.Source != SourceFeed && (r.NextPage != nil || r.PageToken != "")
}

// MarshalJSON keeps "live": null on live responses so widgets can tell
// "no broadcast" apart from "not asked", and "videos": [] on empty pages.
func (r Response) MarshalJSON() ([]byte, error) {
	type plain Response
	switch {
	case r.Action == ActionLive:
		return json.Marshal(struct {
			plain
			Live *LiveStatus `json:"live"`
		}{plain(r), r.Live})
	case r.Action.Paginated(), r.Action == ActionEmbeddable && r.Total != nil:
		videos := r.Videos
		if videos == nil {
			videos = []Video{}
		}
		return json.Marshal(struct {
			plain
			Videos []Video `json:"videos"`
		}{plain(r), videos})
	}
	return json.Marshal(plain(r))
}

// FeedResponse is the payload of the credential-free feed endpoint.
type FeedResponse struct {
	ChannelID string  `json:"channelId"`
	Videos    []Video `json:"videos"`
}

// ErrorBody is the JSON payload of a failed request.
type ErrorBody struct {
	Error   string    `json:"error"`
	Kind    ErrorKind `json:"kind,omitempty"`
	Details string    `json:"details,omitempty"`
	ID      string    `json:"id,omitempty"`
	Found   *bool     `json:"found,omitempty"`
}
