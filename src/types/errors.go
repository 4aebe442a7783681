package types

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KIND_PERMISSION_DENIED   ErrorKind = "permissionDenied"
	KIND_NOT_FOUND           ErrorKind = "notFound"
	KIND_UNAUTHENTICATED     ErrorKind = "unauthenticated"
	KIND_NETWORK_UNAVAILABLE ErrorKind = "networkUnavailable"
	KIND_EXPIRED             ErrorKind = "expired"
	KIND_VALIDATION_FAILED   ErrorKind = "validationFailed"
	KIND_CONFLICT            ErrorKind = "conflict"
	KIND_SEND_FAILED         ErrorKind = "sendFailed"
	KIND_INTERNAL            ErrorKind = "internal"
)

// AppError carries an explicit kind so callers never inspect message text.
type AppError struct {
	Kind ErrorKind
	Op   string
	Msg  string
	Err  error
}

func (e *AppError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any *AppError of the same kind, so errors.Is(err, ErrNotFound) works for wrapped errors.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrPermissionDenied   = &AppError{Kind: KIND_PERMISSION_DENIED}
	ErrNotFound           = &AppError{Kind: KIND_NOT_FOUND}
	ErrUnauthenticated    = &AppError{Kind: KIND_UNAUTHENTICATED}
	ErrNetworkUnavailable = &AppError{Kind: KIND_NETWORK_UNAVAILABLE}
	ErrExpired            = &AppError{Kind: KIND_EXPIRED}
	ErrValidationFailed   = &AppError{Kind: KIND_VALIDATION_FAILED}
	ErrConflict           = &AppError{Kind: KIND_CONFLICT}
	ErrSendFailed         = &AppError{Kind: KIND_SEND_FAILED}
)

func NewError(kind ErrorKind, op, format string, args ...any) *AppError {
	return &AppError{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func WrapError(kind ErrorKind, op string, err error) *AppError {
	return &AppError{Kind: kind, Op: op, Err: err}
}

func PermissionDenied(op string, p Permission) *AppError {
	return &AppError{Kind: KIND_PERMISSION_DENIED, Op: op, Msg: fmt.Sprintf("missing permission %s", p)}
}

func NotFound(op, what, id string) *AppError {
	return &AppError{Kind: KIND_NOT_FOUND, Op: op, Msg: fmt.Sprintf("%s %s not found", what, id)}
}

func ValidationFailed(op, format string, args ...any) *AppError {
	return NewError(KIND_VALIDATION_FAILED, op, format, args...)
}

// KindOf returns the kind of the first AppError in the chain, or KIND_INTERNAL.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ae *AppError
	if errors.As(err, &ae) {
		if ae.Kind == KIND_SEND_FAILED {
			var inner *AppError
			if errors.As(ae.Err, &inner) && inner.Kind == KIND_NETWORK_UNAVAILABLE {
				return KIND_NETWORK_UNAVAILABLE
			}
		}
		return ae.Kind
	}
	return KIND_INTERNAL
}

// Retryable reports whether the caller may retry the same operation unchanged.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KIND_NETWORK_UNAVAILABLE, KIND_SEND_FAILED:
		return true
	}
	return false
}

var kindStatus = map[ErrorKind]int{
	KIND_PERMISSION_DENIED:   http.StatusForbidden,
	KIND_NOT_FOUND:           http.StatusNotFound,
	KIND_UNAUTHENTICATED:     http.StatusUnauthorized,
	KIND_NETWORK_UNAVAILABLE: http.StatusServiceUnavailable,
	KIND_EXPIRED:             http.StatusGone,
	KIND_VALIDATION_FAILED:   http.StatusBadRequest,
	KIND_CONFLICT:            http.StatusConflict,
	KIND_SEND_FAILED:         http.StatusBadGateway,
	KIND_INTERNAL:            http.StatusInternalServerError,
}

func HTTPStatus(err error) int {
	if s, ok := kindStatus[KindOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

var kindMessages = map[ErrorKind]string{
	KIND_PERMISSION_DENIED:   "You don't have permission to do that in this crew.",
	KIND_NOT_FOUND:           "We couldn't find what you were looking for.",
	KIND_UNAUTHENTICATED:     "Please sign in to continue.",
	KIND_NETWORK_UNAVAILABLE: "Connection problem. Check your network and try again.",
	KIND_EXPIRED:             "This job share has expired.",
	KIND_CONFLICT:            "That was already answered and can't be changed.",
	KIND_SEND_FAILED:         "Message not sent. Tap to try again.",
	KIND_INTERNAL:            "Something went wrong. Please try again later.",
}

// UserMessage returns toast text for err. Validation errors surface their own message.
func UserMessage(err error) string {
	kind := KindOf(err)
	if kind == KIND_VALIDATION_FAILED {
		var ae *AppError
		if errors.As(err, &ae) && ae.Msg != "" {
			return ae.Msg
		}
		return "Please check the highlighted fields."
	}
	if m, ok := kindMessages[kind]; ok {
		return m
	}
	return kindMessages[KIND_INTERNAL]
}

// SeverityOf picks the toast severity for an error kind.
func SeverityOf(err error) Severity {
	switch KindOf(err) {
	case KIND_VALIDATION_FAILED, KIND_EXPIRED, KIND_CONFLICT:
		return SEVERITY_WARNING
	case "":
		return SEVERITY_SUCCESS
	}
	return SEVERITY_ERROR
}
