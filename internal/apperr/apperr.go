package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a domain rule violation.
type Kind string

const (
	KindNotFound              Kind = "not_found"
	KindAlreadyExists         Kind = "already_exists"
	KindAlreadyRegistered     Kind = "already_registered"
	KindAlreadyFollowing      Kind = "already_following"
	KindNotFollowing          Kind = "not_following"
	KindInvalidCredential     Kind = "invalid_credential"
	KindInvalidCode           Kind = "invalid_code"
	KindAttemptsExhausted     Kind = "attempts_exhausted"
	KindResendExhausted       Kind = "resend_exhausted"
	KindUnauthorized          Kind = "unauthorized"
	KindSelfFollowForbidden   Kind = "self_follow_forbidden"
	KindSelfUnfollowForbidden Kind = "self_unfollow_forbidden"
	KindSelfViewForbidden     Kind = "self_view_forbidden"
	KindMissingField          Kind = "missing_field"
	KindMissingContent        Kind = "missing_content"
	KindUnsupportedContent    Kind = "unsupported_content"
	KindInvalidContact        Kind = "invalid_contact"
	KindInvalidField          Kind = "invalid_field"
	KindExpired               Kind = "expired"
)

// Error is a recoverable domain failure. It carries a human readable
// message and an optional payload for the caller (e.g. remaining attempts).
type Error struct {
	Kind    Kind
	Message string
	Data    map[string]any
}

// Sentinels for errors.Is. Matching is by Kind only.
var (
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrAlreadyExists         = &Error{Kind: KindAlreadyExists}
	ErrAlreadyRegistered     = &Error{Kind: KindAlreadyRegistered}
	ErrAlreadyFollowing      = &Error{Kind: KindAlreadyFollowing}
	ErrNotFollowing          = &Error{Kind: KindNotFollowing}
	ErrInvalidCredential     = &Error{Kind: KindInvalidCredential}
	ErrInvalidCode           = &Error{Kind: KindInvalidCode}
	ErrAttemptsExhausted     = &Error{Kind: KindAttemptsExhausted}
	ErrResendExhausted       = &Error{Kind: KindResendExhausted}
	ErrUnauthorized          = &Error{Kind: KindUnauthorized}
	ErrSelfFollowForbidden   = &Error{Kind: KindSelfFollowForbidden}
	ErrSelfUnfollowForbidden = &Error{Kind: KindSelfUnfollowForbidden}
	ErrSelfViewForbidden     = &Error{Kind: KindSelfViewForbidden}
	ErrMissingField          = &Error{Kind: KindMissingField}
	ErrMissingContent        = &Error{Kind: KindMissingContent}
	ErrUnsupportedContent    = &Error{Kind: KindUnsupportedContent}
	ErrInvalidContact        = &Error{Kind: KindInvalidContact}
	ErrInvalidField          = &Error{Kind: KindInvalidField}
	ErrExpired               = &Error{Kind: KindExpired}
)

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// With returns a copy of e with key set in its data payload.
func (e *Error) With(key string, value any) *Error {
	data := make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		data[k] = v
	}
	data[key] = value
	return &Error{Kind: e.Kind, Message: e.Message, Data: data}
}

// As extracts the domain error from err, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of a domain error, or "" for internal errors.
func KindOf(err error) Kind {
	e, ok := As(err)
	if !ok {
		return ""
	}
	return e.Kind
}

// HTTPStatus maps an error to the status code the API layer responds with.
// Anything that is not a domain error is an internal failure.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyExists, KindAlreadyRegistered, KindAlreadyFollowing, KindNotFollowing:
		return http.StatusConflict
	case KindInvalidCredential, KindUnauthorized:
		return http.StatusUnauthorized
	case KindSelfFollowForbidden, KindSelfUnfollowForbidden, KindSelfViewForbidden:
		return http.StatusForbidden
	case KindAttemptsExhausted, KindResendExhausted:
		return http.StatusTooManyRequests
	case KindExpired:
		return http.StatusGone
	case KindUnsupportedContent:
		return http.StatusUnsupportedMediaType
	case KindInvalidCode, KindMissingField, KindMissingContent, KindInvalidContact, KindInvalidField:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
