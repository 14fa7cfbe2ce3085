// internal/errors/mapper.go
package errors

import (
	"context"
	"errors"
	"net/http"

	"gorm.io/gorm"
)

// Map converts repo/infra errors into service errors.
// Errors that are already classified pass through untouched.
func Map(err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	switch {
	case errors.As(err, &e):
		return err

	case errors.Is(err, gorm.ErrRecordNotFound):
		return &Error{Kind: KindNotFound, Msg: "record not found", Err: err}

	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &Error{Kind: KindConflict, Msg: "already exists", Err: err}

	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &Error{Kind: KindStorage, Msg: "request aborted", Err: err}

	default:
		return &Error{Kind: KindStorage, Msg: "storage failure", Err: err}
	}
}

// HTTPStatus picks the response status for an error.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindTransientDependency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is what callers are allowed to see. Storage failures never
// leak driver text.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	switch e.Kind {
	case KindStorage:
		return "internal error"
	case KindTransientDependency:
		return "dependency unavailable"
	}
	if e.Msg != "" {
		return e.Msg
	}
	return e.Error()
}
