package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error kinds. Every error returned by the core wraps exactly one of these.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrConflict           = errors.New("conflict")
	ErrInvalidState       = errors.New("invalid state")
	ErrCapacityExceeded   = errors.New("capacity exceeded")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// Member errors
var (
	ErrMemberNotFound     = fmt.Errorf("%w: member", ErrNotFound)
	ErrEmailAlreadyExists = fmt.Errorf("%w: email already used", ErrConflict)
	ErrMemberOwnsEvents   = fmt.Errorf("%w: member still owns events", ErrConflict)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", ErrUnauthorized)
	ErrAccountDisabled    = fmt.Errorf("%w: account is disabled", ErrForbidden)
	ErrWrongPassword      = fmt.Errorf("%w: current password is incorrect", ErrInvalidInput)
	ErrInvalidResetToken  = fmt.Errorf("%w: reset token is invalid or expired", ErrInvalidInput)
)

// Dues errors
var (
	ErrDuesNotFound    = fmt.Errorf("%w: dues", ErrNotFound)
	ErrInvalidPeriod   = fmt.Errorf("%w: period must be MM/YYYY", ErrInvalidInput)
	ErrDuplicatePeriod = fmt.Errorf("%w: period already paid for this member", ErrConflict)
)

// Event errors
var (
	ErrEventNotFound         = fmt.Errorf("%w: event", ErrNotFound)
	ErrEventNotPublished     = fmt.Errorf("%w: event is not published", ErrInvalidState)
	ErrEventFull             = fmt.Errorf("%w: no seats left", ErrCapacityExceeded)
	ErrRegistrationNotFound  = fmt.Errorf("%w: registration", ErrNotFound)
	ErrAlreadyRegistered     = fmt.Errorf("%w: member already registered", ErrConflict)
	ErrRegistrationCancelled = fmt.Errorf("%w: registration already cancelled", ErrInvalidState)
)

// ValidationError captures field level validation issues.
type ValidationError struct {
	Fields map[string]string
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	if v == nil || len(v.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Unwrap makes errors.Is(err, ErrInvalidInput) hold for validation failures
func (v *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// Add records a field error
func (v *ValidationError) Add(field, message string) {
	if v.Fields == nil {
		v.Fields = make(map[string]string)
	}
	v.Fields[field] = message
}

// OrNil returns nil when no field error was recorded
func (v *ValidationError) OrNil() error {
	if v == nil || len(v.Fields) == 0 {
		return nil
	}
	return v
}

// ErrorKind maps an error to a stable machine-readable label.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrServiceUnavailable):
		return "service_unavailable"
	}
	return "internal"
}
