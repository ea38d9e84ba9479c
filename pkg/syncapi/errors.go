package syncapi

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrTransient marks connection/timeout/5xx failures: the HTTP client
// retries them internally, and the sync engine diverts the batch to the
// offline queue once internal retries are exhausted.
var ErrTransient = errors.New("transient error")

// ErrAuth marks a 401/403 response. It is never retried in-band: it
// surfaces to the orchestrator, which parks the engine in waiting-auth
// and drives re-authentication.
var ErrAuth = errors.New("authentication error")

// ErrPermanent marks any other 4xx response. The request is aborted, the
// caller records it in SyncStats.Errors, and it is never queued.
var ErrPermanent = errors.New("permanent error")

// APIError carries the HTTP status and response body alongside one of the
// three sentinel kinds above, reachable with errors.Is.
type APIError struct {
	Kind       error
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%v: http %d: %s", e.Kind, e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error { return e.Kind }

// classify maps an HTTP status code to the error taxonomy:
// connect_refused|timeout|5xx -> transient, 401/403 -> auth, other 4xx -> permanent.
func classify(statusCode int, body string) error {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &APIError{Kind: ErrAuth, StatusCode: statusCode, Body: body}
	case statusCode >= 500:
		return &APIError{Kind: ErrTransient, StatusCode: statusCode, Body: body}
	case statusCode >= 400:
		return &APIError{Kind: ErrPermanent, StatusCode: statusCode, Body: body}
	default:
		return nil
	}
}

// IsRetryable implements retry.IsRetryable for the remote HTTP client:
// network-level errors and ErrTransient are retried; ErrAuth and
// ErrPermanent are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTransient)
}
