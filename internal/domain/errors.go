package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrViewClosed is returned when a load completes after its view was disposed.
var ErrViewClosed = errors.New("dashboard view is closed")

// FetchError is a network failure, a non-2xx response or an undecodable body.
type FetchError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("purchases API returned status %d: %s", e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("purchases API returned status %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch purchases: %v", e.Err)
	default:
		return "fetch purchases failed"
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// TransformError marks a payload whose shape cannot be projected.
type TransformError struct {
	Field  string
	Reason string
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("malformed purchase payload: %s %s", e.Field, e.Reason)
}

// IsFetchError reports whether err is or wraps a *FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// IsTransformError reports whether err is or wraps a *TransformError.
func IsTransformError(err error) bool {
	var te *TransformError
	return errors.As(err, &te)
}
