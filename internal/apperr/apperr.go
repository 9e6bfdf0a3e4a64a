// Package apperr defines the error taxonomy shared by the chat core.
// Business-rule failures are typed, non-retriable values; infrastructure
// failures wrap the underlying cause.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindInfrastructure Kind = iota
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindConflict
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "infrastructure"
	}
}

// HTTPStatus maps a Kind to the status code returned by the REST layer.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

// Error is a typed chat error. Code is stable and doubles as the
// localization key.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so wrapped copies of a
// sentinel still satisfy errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New creates a sentinel error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap returns a copy of sentinel that carries cause.
func Wrap(sentinel *Error, cause error) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: sentinel.Message, Err: cause}
}

// Infra wraps a storage/broker failure.
func Infra(op string, cause error) *Error {
	return &Error{Kind: KindInfrastructure, Code: CodeInfrastructure, Message: op, Err: cause}
}

// KindOf reports the Kind of err. Untyped errors are infrastructure errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

// CodeOf reports the stable code of err.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInfrastructure
}

const CodeInfrastructure = "INFRASTRUCTURE"

var (
	ErrRoomNotFound      = New(KindNotFound, "CHAT_ROOM_NOT_FOUND", "chat room not found")
	ErrMemberNotFound    = New(KindNotFound, "MEMBER_NOT_FOUND", "member not found")
	ErrMemberDeleted     = New(KindNotFound, "MEMBER_DELETED", "member has been deleted")
	ErrNotRoomMember     = New(KindForbidden, "MEMBER_NOT_IN_CHAT_ROOM", "member is not in the chat room")
	ErrNotGroupRoom      = New(KindForbidden, "NOT_GROUP_CHAT", "chat room is not a group chat")
	ErrForbiddenDest     = New(KindForbidden, "FORBIDDEN_DESTINATION", "cannot subscribe to this destination")
	ErrSelfChat          = New(KindConflict, "SELF_CHAT_NOT_ALLOWED", "cannot open a chat room with yourself")
	ErrAlreadyMember     = New(KindConflict, "ALREADY_IN_CHAT_ROOM", "member is already in the chat room")
	ErrPrivateRoomRace   = New(KindConflict, "PRIVATE_CHAT_ROOM_CONFLICT", "private chat room was created concurrently")
	ErrDuplicateSeq      = New(KindConflict, "DUPLICATE_SEQUENCE", "sequence already bound to a message")
	ErrInvalidMessage    = New(KindInvalidInput, "INVALID_MESSAGE", "message content or file reference is required")
	ErrInvalidGroupSize  = New(KindInvalidInput, "INVALID_GROUP_SIZE", "too many members for a group chat")
	ErrInvalidDest       = New(KindInvalidInput, "INVALID_DESTINATION", "unsupported destination")
	ErrInvalidFrame      = New(KindInvalidInput, "INVALID_FRAME", "malformed frame")
	ErrRateLimited       = New(KindInvalidInput, "RATE_LIMITED", "too many requests")
	ErrTokenMissing      = New(KindUnauthorized, "TOKEN_MISSING", "authorization header is missing")
	ErrTokenExpired      = New(KindUnauthorized, "TOKEN_EXPIRED", "token has expired")
	ErrTokenMalformed    = New(KindUnauthorized, "TOKEN_MALFORMED", "token is malformed")
	ErrTokenUnsupported  = New(KindUnauthorized, "TOKEN_UNSUPPORTED", "token is not supported")
	ErrNotAuthenticated  = New(KindUnauthorized, "NOT_AUTHENTICATED", "connection is not authenticated")
)
