// Package catalogserver exposes the catalog service as HTTP routes and MCP tools.
package catalogserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/anatolykoptev/go_catalog/internal/engine"
	"github.com/anatolykoptev/go_catalog/internal/engine/catalog"
)

// Handler serves the widget endpoints. CORS, health, metrics and /mcp are
// provided by the mcpserver middleware around the mux it is mounted on.
type Handler struct {
	svc      *catalog.Service
	defaults func() engine.Defaults
}

// NewHandler returns a Handler parsing requests with defaults.
func NewHandler(svc *catalog.Service, defaults func() engine.Defaults) *Handler {
	if defaults == nil {
		defaults = engine.QueryDefaults
	}
	return &Handler{svc: svc, defaults: defaults}
}

// Routes mounts the catalog and feed endpoints. It matches mcpserver.Config.Routes.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.Handle("/api/youtube", readOnly(http.HandlerFunc(h.serveCatalog)))
	mux.Handle("/api/videos-rss", readOnly(http.HandlerFunc(h.serveFeed)))
}

// readOnly rejects writes with the JSON error body. Preflights carrying an
// allowed Origin never reach it.
func readOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			next.ServeHTTP(w, r)
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Header().Set("Allow", "GET, HEAD, OPTIONS")
			writeError(w, engine.ErrInvalidRequest("method not allowed"), http.StatusMethodNotAllowed)
		}
	})
}

func (h *Handler) serveCatalog(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q, err := engine.ParseQuery(r.URL.Query(), h.defaults())
	if err != nil {
		writeError(w, err, 0)
		return
	}
	resp, hit, err := h.svc.Handle(r.Context(), q)
	if err != nil {
		logFailure("catalog", err)
		writeError(w, err, 0)
		return
	}
	setCacheHeader(w, hit)
	writeJSON(w, http.StatusOK, resp)
	slog.Debug("catalog request",
		slog.String("action", string(q.Action)),
		slog.String("channel", q.Channel),
		slog.Bool("hit", hit),
		slog.Duration("elapsed", time.Since(start)))
}

func (h *Handler) serveFeed(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	ref := v.Get("channelId")
	if ref == "" {
		ref = h.defaults().Channel
	}
	limit, _ := strconv.Atoi(v.Get("limit"))
	resp, hit, err := h.svc.Feed(r.Context(), ref, limit)
	if err != nil {
		logFailure("feed", err)
		writeError(w, err, 0)
		return
	}
	setCacheHeader(w, hit)
	writeJSON(w, http.StatusOK, resp)
}

func logFailure(endpoint string, err error) {
	kind := engine.KindOf(err)
	attrs := []any{slog.String("endpoint", endpoint), slog.String("kind", string(kind)), slog.Any("error", err)}
	switch kind {
	case engine.KindInvalidRequest, engine.KindChannelNotFound, engine.KindPlaylistNotFound, engine.KindVideoNotFound:
		slog.Debug("request rejected", attrs...)
	default:
		slog.Warn("request failed", attrs...)
	}
}

func setCacheHeader(w http.ResponseWriter, hit bool) {
	if hit {
		w.Header().Set("x-cache", "HIT")
	} else {
		w.Header().Set("x-cache", "MISS")
	}
}

// writeError answers with the error's JSON body. status 0 derives it from the kind.
func writeError(w http.ResponseWriter, err error, status int) {
	if status == 0 {
		status = engine.StatusOf(err)
	}
	body := engine.ErrorBody{Error: http.StatusText(status), Kind: engine.KindOf(err)}
	var e *engine.Error
	if errors.As(err, &e) {
		body.Details = e.Detail
		if e.Ref != "" {
			found := false
			body.ID, body.Found = e.Ref, &found
		}
	} else {
		body.Details = err.Error()
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", slog.Any("error", err))
	}
}
