// Package apperr defines the error taxonomy shared by the identity, session and monitoring
// packages, and maps it to gRPC status codes for the interceptor layer.
package apperr

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrValidation is malformed input, rejected before any state change.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthenticated covers bad credentials and invalid, expired or replayed tokens.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is a known caller without the required permission.
	ErrForbidden = errors.New("permission denied")
	// ErrConflict is a duplicate resource or a state that was already reached.
	ErrConflict = errors.New("conflict")
	// ErrNotFound is an unknown identity, session or threat id.
	ErrNotFound = errors.New("not found")
	// ErrLocked is an account locked after too many failed logins.
	ErrLocked = errors.New("account locked")
	// ErrRateLimited is a caller that exceeded its request budget.
	ErrRateLimited = errors.New("rate limited")
)

// ValidationError carries per-field or per-rule detail for a validation failure.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return ErrValidation.Error()
	}
	return ErrValidation.Error() + ": " + strings.Join(e.Details, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Validation returns a ValidationError with the given details.
func Validation(details ...string) error {
	return &ValidationError{Details: details}
}

// PermissionError names the permissions the caller lacked. The caller is already known,
// so unlike authentication failures the detail is safe to return.
type PermissionError struct {
	Required   []string
	RequireAll bool
}

func (e *PermissionError) Error() string {
	mode := "any of"
	if e.RequireAll {
		mode = "all of"
	}
	return fmt.Sprintf("%s: requires %s [%s]", ErrForbidden.Error(), mode, strings.Join(e.Required, ", "))
}

func (e *PermissionError) Unwrap() error { return ErrForbidden }

// GRPCStatus maps err to a gRPC status error. Unknown errors become Internal without
// leaking their message.
func GRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, ErrUnauthenticated.Error())
	case errors.Is(err, ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrLocked), errors.Is(err, ErrRateLimited):
		return status.Error(codes.ResourceExhausted, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
