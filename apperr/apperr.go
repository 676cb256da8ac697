// Package apperr defines the error taxonomy shared by the REST and gRPC layers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"google.golang.org/grpc/codes"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindInvalidCredentials
	KindUnauthenticated
	KindNotFound
)

// AppError carries a Kind plus an optional per-field breakdown of what went wrong.
type AppError struct {
	Kind    Kind
	Message string
	Fields  map[string][]string
	Err     error
}

var (
	ErrNotFound           = &AppError{Kind: KindNotFound, Message: "Not found."}
	ErrInvalidCredentials = &AppError{Kind: KindInvalidCredentials, Message: "Unable to authenticate with provided credentials."}
	ErrUnauthenticated    = &AppError{Kind: KindUnauthenticated, Message: "Authentication credentials were not provided or are invalid."}
)

func (e *AppError) Error() string {
	if len(e.Fields) == 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Err)
		}
		return e.Message
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], ", "))
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

func (e *AppError) Unwrap() error { return e.Err }

// Is matches sentinels by kind so wrapped copies still compare equal.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Kind == e.Kind
}

// Validation builds a validation error from a field map.
func Validation(fields map[string][]string) *AppError {
	return &AppError{Kind: KindValidation, Message: "Invalid input.", Fields: fields}
}

// Field is a shortcut for a single-field validation error.
func Field(field, msg string) *AppError {
	return Validation(map[string][]string{field: {msg}})
}

func Conflict(field, msg string) *AppError {
	return &AppError{Kind: KindConflict, Message: msg, Fields: map[string][]string{field: {msg}}}
}

// NotFoundf returns an ErrNotFound-compatible error wrapping cause.
func NotFoundf(cause error, format string, args ...any) *AppError {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...), Err: cause}
}

func KindOf(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindConflict, KindInvalidCredentials:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func GRPCCode(err error) codes.Code {
	switch KindOf(err) {
	case KindValidation, KindConflict:
		return codes.InvalidArgument
	case KindInvalidCredentials, KindUnauthenticated:
		return codes.Unauthenticated
	case KindNotFound:
		return codes.NotFound
	default:
		return codes.Internal
	}
}

// Body is the JSON error envelope written by the REST layer.
type Body struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// ToBody renders err for a client. Internal errors never leak their cause.
func ToBody(err error) Body {
	var ae *AppError
	if !errors.As(err, &ae) || ae.Kind == KindInternal {
		return Body{Message: "An internal error occurred"}
	}
	return Body{Message: ae.Message, Errors: ae.Fields}
}
