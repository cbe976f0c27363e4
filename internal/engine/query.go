package engine

import (
	"net/url"
	"strconv"
	"strings"
)

// Query is a validated catalog request.
type Query struct {
	Action     Action
	Channel    string // raw reference: UC... id or @handle
	Order      Order
	Page       int    // numbered addressing, 0 when PageToken is used
	PageToken  string // sequential addressing
	PageSize   int
	PlaylistID string
	Search     string
	VideoID    string // embeddable: one video; empty scans Channel
}

// Defaults fill absent request parameters.
type Defaults struct {
	Channel     string
	PageSize    int
	PageSizeMax int
}

// Sequential reports whether the query addresses pages by upstream cursor.
func (q Query) Sequential() bool { return q.PageToken != "" || q.Action == ActionSearch }

// ParseQuery validates raw request parameters. "limit" is accepted as an alias of "pageSize".
func ParseQuery(v url.Values, d Defaults) (Query, error) {
	if d.PageSizeMax <= 0 {
		d.PageSizeMax = DefaultPageSizeMax
	}
	if d.PageSize <= 0 {
		d.PageSize = min(DefaultPageSize, d.PageSizeMax)
	}
	if d.Channel == "" {
		d.Channel = DefaultChannelRef
	}

	q := Query{
		Action:     Action(strings.TrimSpace(v.Get("action"))),
		Channel:    strings.TrimSpace(v.Get("channelId")),
		Order:      Order(strings.TrimSpace(v.Get("order"))),
		PageToken:  strings.TrimSpace(v.Get("pageToken")),
		PlaylistID: strings.TrimSpace(v.Get("playlistId")),
		Search:     strings.TrimSpace(v.Get("q")),
		VideoID:    strings.TrimSpace(v.Get("videoId")),
	}
	if q.Action == "" {
		q.Action = ActionUploads
	}
	explicitChannel := q.Channel != ""
	if q.Channel == "" {
		q.Channel = d.Channel
	}
	if q.Order == "" {
		q.Order = OrderNewest
	}

	switch q.Action {
	case ActionPlaylists, ActionUploads, ActionLive:
	case ActionPlaylistVideos:
		if q.PlaylistID == "" {
			return Query{}, ErrInvalidRequest("playlistId is required for action=playlistVideos")
		}
	case ActionSearch:
		if q.Search == "" {
			return Query{}, ErrInvalidRequest("q is required for action=search")
		}
	case ActionEmbeddable:
		// Without videoId the whole channel is scanned; the default channel is never implied.
		if q.VideoID == "" && !explicitChannel {
			return Query{}, ErrInvalidRequest("videoId or channelId is required for action=embeddable")
		}
	default:
		return Query{}, ErrInvalidRequest("unknown action: " + string(q.Action))
	}

	switch q.Order {
	case OrderNewest:
	case OrderOldest:
		if q.Action == ActionSearch {
			return Query{}, ErrInvalidRequest("order=date_asc is not supported for search")
		}
	default:
		return Query{}, ErrInvalidRequest("unknown order: " + string(q.Order))
	}

	size, err := intParam(v, "pageSize", "limit")
	if err != nil {
		return Query{}, err
	}
	switch {
	case size <= 0:
		q.PageSize = d.PageSize
	case size > d.PageSizeMax:
		q.PageSize = d.PageSizeMax
	default:
		q.PageSize = size
	}

	page, err := intParam(v, "page")
	if err != nil {
		return Query{}, err
	}
	if page < 0 {
		return Query{}, ErrInvalidRequest("page must be positive")
	}
	if q.Action == ActionSearch && page > 1 {
		return Query{}, ErrInvalidRequest("search pages are addressed by pageToken only")
	}
	if q.Action.Paginated() && q.PageToken == "" && q.Action != ActionSearch {
		q.Page = max(page, 1)
	}
	if q.PageToken != "" && q.Order == OrderOldest {
		return Query{}, ErrInvalidRequest("order=date_asc pages are addressed by page number only")
	}
	return q, nil
}

func intParam(v url.Values, names ...string) (int, error) {
	for _, name := range names {
		raw := strings.TrimSpace(v.Get(name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, ErrInvalidRequest(name + " must be an integer")
		}
		return n, nil
	}
	return 0, nil
}

// Values encodes the parameters relevant to the query's result. Only
// parameters that affect the payload are present, so equal results share keys.
func (q Query) Values() url.Values {
	v := url.Values{}
	v.Set("action", string(q.Action))
	v.Set("channelId", q.Channel)
	switch q.Action {
	case ActionUploads, ActionPlaylistVideos, ActionSearch:
		v.Set("order", string(q.Order))
		v.Set("pageSize", strconv.Itoa(q.PageSize))
		if q.PageToken != "" {
			v.Set("pageToken", q.PageToken)
		} else if q.Page > 0 {
			v.Set("page", strconv.Itoa(q.Page))
		}
	}
	if q.Action == ActionPlaylistVideos {
		v.Set("playlistId", q.PlaylistID)
	}
	if q.Action == ActionSearch {
		v.Set("q", q.Search)
	}
	if q.Action == ActionEmbeddable && q.VideoID != "" {
		v.Set("videoId", q.VideoID)
		v.Del("channelId")
	}
	return v
}

// CacheKey is the canonical, order-independent key of the query.
// url.Values.Encode sorts by parameter name.
func (q Query) CacheKey() string {
	return CacheKey("catalog", q.Values().Encode())
}
