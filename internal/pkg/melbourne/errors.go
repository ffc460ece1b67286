package melbourne

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRetryExhausted is returned when all retry attempts for a page are used up.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)

// ErrorClass separates failures the caller may retry from ones it must not.
type ErrorClass string

const (
	// ErrorClassTransient covers network failures, 5xx and 429 responses.
	ErrorClassTransient ErrorClass = "transient"
	// ErrorClassFatal covers the remaining 4xx responses: the request shape
	// itself is wrong and a retry would fail identically.
	ErrorClassFatal ErrorClass = "fatal"
)

// FetchError is a classified upstream failure. StatusCode is zero for
// network-level errors.
type FetchError struct {
	StatusCode int
	Class      ErrorClass
	Dataset    string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s fetch failed (%s): %v", e.Dataset, e.Class, e.Err)
	}
	return fmt.Sprintf("%s fetch failed (%s, status %d): %v", e.Dataset, e.Class, e.StatusCode, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Retryable() bool {
	return e.Class == ErrorClassTransient
}

// IsFatal reports whether err carries a non-retryable fetch failure.
func IsFatal(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Class == ErrorClassFatal
}

func classifyStatus(status int) ErrorClass {
	if status == http.StatusTooManyRequests || status >= 500 {
		return ErrorClassTransient
	}
	return ErrorClassFatal
}
