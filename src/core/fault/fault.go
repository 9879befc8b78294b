// Package fault defines the error kinds shared across the service layers.
// Callers classify failures by errors.Is against these sentinels; the HTTP
// layer maps them to status codes.
package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or out-of-range input. Never retried.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a lookup for a tool, document or task that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTransient marks a failure of an external call that may succeed on
	// retry (timeout, transport error, 5xx from a backend).
	ErrTransient = errors.New("transient external error")

	// ErrConfiguration marks a missing or invalid service configuration.
	// Services short-circuit with this error until the configuration is fixed.
	ErrConfiguration = errors.New("configuration error")

	// ErrRateLimited marks a request rejected by the rate limiter.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrUnavailable marks an external dependency that stayed unreachable
	// after the retry budget was spent.
	ErrUnavailable = errors.New("service unavailable")
)

// Validationf wraps a formatted message with ErrValidation.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrValidation}, args...)...)
}

// NotFoundf wraps a formatted message with ErrNotFound.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrNotFound}, args...)...)
}

// Transientf wraps a formatted message with ErrTransient.
func Transientf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrTransient}, args...)...)
}

// Configurationf wraps a formatted message with ErrConfiguration.
func Configurationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrConfiguration}, args...)...)
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
