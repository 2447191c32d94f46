package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransientError wraps an error that is safe to retry (e.g., 429, 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// Class buckets a request failure for logging and metrics.
type Class string

const (
	ClassNone      Class = ""
	ClassNetwork   Class = "network"
	ClassServer    Class = "server"
	ClassRateLimit Class = "rate_limit"
	ClassClient    Class = "client"
	ClassMalformed Class = "malformed"
	ClassCancelled Class = "cancelled"
)

// Classify returns the failure class of err. Errors that are not transient
// and carry no status code are reported as malformed.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	if errors.Is(err, context.Canceled) {
		return ClassCancelled
	}
	var te *TransientError
	if errors.As(err, &te) {
		switch {
		case te.StatusCode == 429:
			return ClassRateLimit
		case te.StatusCode >= 500:
			return ClassServer
		default:
			return ClassNetwork
		}
	}
	if IsTransient(err) {
		return ClassNetwork
	}
	var se interface{ HTTPStatus() int }
	if errors.As(err, &se) && se.HTTPStatus() >= 400 {
		return ClassClient
	}
	return ClassMalformed
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient error patterns (network
// timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	// A per-request deadline is transient; a cancelled run is not.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"connection refused",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429:
		return true
	default:
		return statusCode >= 500 && statusCode <= 599
	}
}
