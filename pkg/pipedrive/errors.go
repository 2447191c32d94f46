package pipedrive

import (
	"errors"
	"fmt"

	"github.com/sells-group/pipedrive-export/internal/resilience"
)

// ErrMalformedResponse reports a 2xx response whose body could not be
// understood: invalid JSON, an unexpected shape or success=false.
var ErrMalformedResponse = errors.New("pipedrive: malformed response")

// MalformedError carries the endpoint and detail of a malformed response.
type MalformedError struct {
	Endpoint string
	Detail   string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("pipedrive: %s: malformed response: %s", e.Endpoint, e.Detail)
}

// Is matches ErrMalformedResponse.
func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformedResponse
}

func malformed(endpoint, detail string) error {
	return &MalformedError{Endpoint: endpoint, Detail: detail}
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pipedrive: %s: unexpected status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// HTTPStatus returns the response status code.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// Retryable reports whether the status is worth retrying: request
// timeout, rate limiting or a server error.
func (e *StatusError) Retryable() bool {
	return resilience.IsTransientHTTPStatus(e.StatusCode)
}

// TransportError is a failure to complete the HTTP exchange: connection,
// DNS, TLS, timeout or a truncated body.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("pipedrive: %s: transport: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transport failure or a retryable
// HTTP status.
func IsRetryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return false
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
