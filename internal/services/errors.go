package services

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Failure kinds returned by the services; controllers map them to HTTP statuses
var (
	ErrNotFound       = errors.New("not found")
	ErrPathNotAllowed = errors.New("path not allowed")
	ErrTooLarge       = errors.New("too large")
	ErrUpstreamStatus = errors.New("unexpected upstream status")
	ErrURLExpired     = errors.New("presigned url expired")
	ErrBadRequest     = errors.New("bad request")
)

// Failure carries a user-facing detail alongside its kind and optional cause.
// Error() is the detail, followed by the cause when there is one.
type Failure struct {
	Kind   error
	Detail string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return f.Detail + ": " + f.Err.Error()
	}
	return f.Detail
}

func (f *Failure) Is(target error) bool {
	return f.Kind != nil && target == f.Kind
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func fail(kind error, cause error, format string, args ...interface{}) error {
	return &Failure{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: cause}
}

// StatusFor returns the HTTP status a service error should be reported with
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrURLExpired), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrPathNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrUpstreamStatus):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
