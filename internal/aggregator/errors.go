package aggregator

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth matches every *AuthError.
	ErrAuth = errors.New("aggregator authentication failed")
	// ErrRequest matches every *RequestError.
	ErrRequest = errors.New("aggregator request failed")
)

// AuthError is returned when the client-credentials exchange fails.
type AuthError struct {
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("aggregator authentication failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("aggregator authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool { return target == ErrAuth }

// RequestError is returned for transport failures and non-2xx responses.
// StatusCode is zero when no response was received.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	// Code and Message come from the aggregator's error body when present.
	Code    string
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	switch {
	case e.StatusCode == 0:
		return fmt.Sprintf("aggregator %s %s failed: %v", e.Method, e.Path, e.Err)
	case e.Message != "":
		return fmt.Sprintf("aggregator %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("aggregator %s %s returned %d", e.Method, e.Path, e.StatusCode)
	}
}

func (e *RequestError) Unwrap() error { return e.Err }

func (e *RequestError) Is(target error) bool { return target == ErrRequest }
