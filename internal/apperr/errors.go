// Package apperr defines the error kinds shared by the mailbox, classifier
// and board adapters, and the helpers the pipeline uses to tell them apart.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// AuthenticationError means no usable mailbox credential is available.
// It is fatal for the current pass.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	if e.Err == nil {
		return "authentication failed"
	}
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// TransportError wraps a network or service failure while talking to the mailbox
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ExtractionError means the classifier produced output that could not be used.
// It is fatal for the message only.
type ExtractionError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction failed: %s", e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// RateLimitedError is returned by an adapter that was rejected for rate
type RateLimitedError struct {
	Service string
	Err     error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s rate limited: %v", e.Service, e.Err)
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

// BoardAPIError carries a non-success response from the board service
type BoardAPIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *BoardAPIError) Error() string {
	return fmt.Sprintf("board %s failed with status %d: %s", e.Op, e.StatusCode, strings.TrimSpace(e.Body))
}

// IsAuthentication reports whether err is an AuthenticationError
func IsAuthentication(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}

// IsExtraction reports whether err is an ExtractionError
func IsExtraction(err error) bool {
	var extErr *ExtractionError
	return errors.As(err, &extErr)
}

// IsRateLimited reports whether err should trigger the single delayed retry.
// Structured kinds are checked first; the substring match on "rate" only
// applies to errors that carry no kind at all.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}

	var rlErr *RateLimitedError
	if errors.As(err, &rlErr) {
		return true
	}

	var boardErr *BoardAPIError
	if errors.As(err, &boardErr) {
		return boardErr.StatusCode == http.StatusTooManyRequests
	}

	if IsAuthentication(err) || IsExtraction(err) {
		return false
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return false
	}

	return strings.Contains(strings.ToLower(err.Error()), "rate")
}
