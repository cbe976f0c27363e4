package engine

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind tags a catalog failure so callers branch on kind, not on message text.
type ErrorKind string

const (
	KindChannelNotFound  ErrorKind = "channel_not_found"
	KindPlaylistNotFound ErrorKind = "playlist_not_found"
	KindVideoNotFound    ErrorKind = "video_not_found"
	KindInvalidRequest   ErrorKind = "invalid_request"
	KindQuotaExceeded    ErrorKind = "quota_exceeded"
	KindUpstream         ErrorKind = "upstream_error"
)

// Error is the tagged error variant surfaced by every catalog layer.
type Error struct {
	Kind       ErrorKind
	HTTPStatus int
	Detail     string
	Ref        string // id the lookup missed, echoed in the error body
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, status int, detail string, err error) *Error {
	return &Error{Kind: kind, HTTPStatus: status, Detail: detail, Err: err}
}

// ErrChannelNotFound reports a channel reference that could not be resolved.
func ErrChannelNotFound(ref string) *Error {
	return newError(KindChannelNotFound, http.StatusNotFound, "channel not found: "+ref, nil)
}

// ErrPlaylistNotFound reports an unknown playlist id.
func ErrPlaylistNotFound(id string, err error) *Error {
	return newError(KindPlaylistNotFound, http.StatusNotFound, "playlist not found: "+id, err)
}

// ErrVideoNotFound reports a video id upstream does not know.
func ErrVideoNotFound(id string) *Error {
	e := newError(KindVideoNotFound, http.StatusNotFound, "video not found: "+id, nil)
	e.Ref = id
	return e
}

// ErrInvalidRequest reports a missing or malformed request parameter.
func ErrInvalidRequest(detail string) *Error {
	return newError(KindInvalidRequest, http.StatusBadRequest, detail, nil)
}

// ErrQuotaExceeded wraps an upstream quota rejection. Surfaced as degraded service.
func ErrQuotaExceeded(err error) *Error {
	return newError(KindQuotaExceeded, http.StatusServiceUnavailable, "upstream quota exhausted", err)
}

// ErrUpstream wraps any other upstream failure.
func ErrUpstream(detail string, err error) *Error {
	return newError(KindUpstream, http.StatusInternalServerError, detail, err)
}

// KindOf returns the kind of err, or KindUpstream for untagged errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstream
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// StatusOf maps err to an HTTP status code.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) && e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}
