package digest

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable, machine-readable class of a pipeline error.
type Kind string

const (
	KindInvalidIdentifier Kind = "InvalidIdentifierError"
	KindEmptyTranscript   Kind = "EmptyTranscriptError"
	KindTranscriptFetch   Kind = "TranscriptFetchError"
	KindTooLong           Kind = "TranscriptTooLongError"
	KindRateLimit         Kind = "UpstreamRateLimitError"
	KindTimeout           Kind = "UpstreamTimeoutError"
	KindInternal          Kind = "InternalError"
)

// Error is the error type surfaced by the pipeline.
type Error struct {
	Kind   Kind
	Detail string
	Err    error

	// Set for KindTooLong only.
	Length int
	Limit  int
}

// Sentinels for errors.Is; any *Error of the same kind matches.
var (
	ErrInvalidIdentifier = &Error{Kind: KindInvalidIdentifier}
	ErrEmptyTranscript   = &Error{Kind: KindEmptyTranscript}
	ErrTranscriptFetch   = &Error{Kind: KindTranscriptFetch}
	ErrTooLong           = &Error{Kind: KindTooLong}
	ErrRateLimit         = &Error{Kind: KindRateLimit}
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrInternal          = &Error{Kind: KindInternal}
)

func (e *Error) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// HTTPStatus maps the error kind to the status returned to HTTP callers.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidIdentifier:
		return http.StatusBadRequest
	case KindEmptyTranscript, KindTranscriptFetch:
		return http.StatusNotFound
	case KindTooLong:
		return http.StatusRequestEntityTooLarge
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// NewError returns an *Error of the given kind.
func NewError(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

func tooLongError(length, limit int) *Error {
	return &Error{
		Kind:   KindTooLong,
		Detail: fmt.Sprintf("transcript is %d characters, limit is %d", length, limit),
		Length: length,
		Limit:  limit,
	}
}

// AsError returns err as an *Error, wrapping anything else as KindInternal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return &Error{Kind: KindInternal, Detail: "internal error", Err: err}
}
