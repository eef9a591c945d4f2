package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// APIError is a non-2xx response from the backend. Code carries the
// backend's machine-readable error code when one was returned (Postgres
// SQLSTATE codes pass through, e.g. "23505" for a unique violation).
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend: status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend: status %d: %s", e.Status, e.Message)
}

// ProcedureError is a procedure that ran but reported failure through its
// {"success": false, "error": ...} envelope. The message is written by the
// procedure for end users, so it is safe to render.
type ProcedureError struct {
	Procedure string
	Message   string
}

func (e *ProcedureError) Error() string {
	return fmt.Sprintf("backend: procedure %s failed: %s", e.Procedure, e.Message)
}

// UserMessage returns the procedure's user-facing failure message.
func (e *ProcedureError) UserMessage() string {
	return e.Message
}

// EnvelopeFailure inspects a procedure's JSON payload for the
// {"success": false, "error": ...} failure envelope and returns the
// corresponding *ProcedureError. Payloads without a success flag (plain
// scalars, arrays) pass through as nil. Both adapters run every procedure
// result through this check so a failed procedure looks the same no matter
// which data plane produced it.
func EnvelopeFailure(procedure string, payload []byte) error {
	var envelope struct {
		Success *bool  `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil
	}
	if envelope.Success != nil && !*envelope.Success {
		msg := envelope.Error
		if msg == "" {
			msg = "procedure reported failure"
		}
		return &ProcedureError{Procedure: procedure, Message: msg}
	}
	return nil
}

// RateLimitError is a 429 response. RetryAfter honors the Retry-After
// header when present.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("backend: rate limited, retry after %s: %s", e.RetryAfter, e.Message)
}

// IsRetryable classifies errors for the transport retry loop. Procedure
// failures are business outcomes and never retried; client errors (4xx
// other than 408/429) indicate a request that will keep failing.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var rle *RateLimitError
	if errors.As(err, &rle) {
		return true
	}

	var pe *ProcedureError
	if errors.As(err, &pe) {
		return false
	}

	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status == http.StatusRequestTimeout ||
			ae.Status == http.StatusTooManyRequests ||
			ae.Status >= http.StatusInternalServerError
	}

	// Transport-level failures (connection refused, DNS, timeouts) surface
	// as *url.Error from the HTTP client.
	var ue *url.Error
	return errors.As(err, &ue)
}

// IsDuplicateKey reports whether err is a unique-constraint violation.
// Idempotent inserts (read receipts) swallow these.
func IsDuplicateKey(err error) bool {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status == http.StatusConflict || ae.Code == "23505"
	}
	return false
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status == http.StatusNotFound
	}
	return false
}

// IsUnauthorized reports whether err is a 401 or 403 from the backend.
func IsUnauthorized(err error) bool {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status == http.StatusUnauthorized || ae.Status == http.StatusForbidden
	}
	return false
}
