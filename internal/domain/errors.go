package domain

import (
	"errors"
	"fmt"
)

// Failure kinds reported by FailureKind.
const (
	KindNetwork  = "network"
	KindUpstream = "upstream"
	KindUnknown  = "unknown"
)

// NetworkError means the request could not be completed at all
type NetworkError struct {
	Op  string // Operation that failed (e.g., "markets", "history")
	Err error  // Underlying error
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err}
}

// UpstreamError means the upstream answered, but not with usable data.
// StatusCode is the HTTP status; it is 200 when only the body was unusable.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: upstream status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: upstream status %d", e.Op, e.StatusCode)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError creates an error for a non-success response
func NewUpstreamError(op string, statusCode int, body string) *UpstreamError {
	return &UpstreamError{Op: op, StatusCode: statusCode, Body: body}
}

// FailureKind classifies a fetch error for logging and metrics.
// Consumers of the providers never see the distinction.
func FailureKind(err error) string {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return KindNetwork
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return KindUpstream
	}
	return KindUnknown
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrInvalidWindow is returned for a history window outside 1/7/30/90 days.
	ErrInvalidWindow = errors.New("invalid window")

	// ErrEmptyResponse is returned when the upstream sent no usable payload
	ErrEmptyResponse = errors.New("empty response")

	// ErrInvalidAsset is returned when an asset id is empty or malformed
	ErrInvalidAsset = errors.New("invalid asset")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
