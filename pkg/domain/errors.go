// Package domain contains the view models, derivations, and errors shared
// across all stores. This package has zero external dependencies.
package domain

import (
	"errors"
	"fmt"
)

// Base errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a store-level error with context.
type DomainError struct {
	Domain  string // e.g., "sessions", "pets", "leaderboard"
	Op      string // Operation that failed, e.g., "Fetch", "FeedPet"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message for the UI
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Session / auth errors
var (
	ErrNotSignedIn    = NewDomainError("session", "Current", ErrUnauthorized, "you are not signed in")
	ErrSessionExpired = NewDomainError("session", "Refresh", ErrUnauthorized, "your session has expired, please sign in again")
)

// Profile errors
var (
	ErrProfileNotFound = NewDomainError("profile", "Fetch", ErrNotFound, "profile not found")
)

// Practice session errors
var (
	ErrSessionNotFound = NewDomainError("sessions", "Detail", ErrNotFound, "practice session not found")
)

// Children errors
var (
	ErrChildLinkNotFound = NewDomainError("children", "ChildByID", ErrNotFound, "child is not linked to this account")
	ErrNotParent         = NewDomainError("children", "Fetch", ErrForbidden, "only parent accounts have linked children")
)

// Dashboard errors
var (
	ErrNotAdmin = NewDomainError("dashboard", "Overview", ErrForbidden, "admin access required")
)

// Pet errors
var (
	ErrPetNotOwned       = NewDomainError("pets", "Feed", ErrNotFound, "you do not own this pet")
	ErrPetMaxTier        = NewDomainError("pets", "Evolve", ErrValueOutOfRange, "this pet is already at its highest tier")
	ErrCombineCount      = NewDomainError("pets", "Combine", ErrInvalidInput, "combining requires exactly 4 pets")
	ErrInsufficientCoins = NewDomainError("pets", "Exchange", ErrValueOutOfRange, "not enough coins")
	ErrInsufficientFood  = NewDomainError("pets", "Feed", ErrValueOutOfRange, "not enough food")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsUnauthorized checks if the error is an authorization error.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}

// IsExternalService checks if the error came from the backend or transport.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// ErrorMessage extracts a human-readable message from err, falling back to
// the supplied default. Store actions surface errors to the UI through this
// helper so transport internals never leak into rendered text. Returns "" for
// a nil error.
func ErrorMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var de *DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	var um interface{ UserMessage() string }
	if errors.As(err, &um) && um.UserMessage() != "" {
		return um.UserMessage()
	}
	return fallback
}
