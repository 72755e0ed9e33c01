package types

import (
	"errors"
	"fmt"
)

var (
	ErrNoIdentifier    = errors.New("source url carries no apiId parameter")
	ErrUnexpectedShape = errors.New("unexpected response shape")
	ErrHTTPStatus      = errors.New("unexpected http status")
	ErrInvalidConfig   = errors.New("invalid configuration")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error in field %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// HTTPError is returned for non-2xx responses. URL must already be redacted.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e HTTPError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d", e.URL, e.StatusCode)
}

func (e HTTPError) Unwrap() error {
	return ErrHTTPStatus
}
