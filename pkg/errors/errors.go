package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotInitialized means no vocabulary snapshot or collection is
	// available to answer queries.
	ErrNotInitialized = errors.New("not initialized")
	// ErrStoreUnavailable wraps connection and transport failures of the
	// vector store.
	ErrStoreUnavailable = errors.New("vector store unavailable")
	// ErrDimensionMismatch means a vector's length differs from the
	// vocabulary size it is checked against.
	ErrDimensionMismatch  = errors.New("dimension mismatch")
	ErrBatchInsertFailure = errors.New("batch insert failed")
	ErrIngestionAborted   = errors.New("ingestion aborted")
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrInternal           = errors.New("internal error")
	ErrTimeout            = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Unavailable wraps err as a retryable store failure.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// Mismatch reports a vector of length got checked against dimension want.
func Mismatch(got, want int) error {
	return Newf(ErrDimensionMismatch, http.StatusConflict, "vector length %d, vocabulary size %d", got, want)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrDimensionMismatch):
		return http.StatusConflict
	case errors.Is(err, ErrNotInitialized), errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
