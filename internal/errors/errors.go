package errors

import (
	"errors"
)

// Sentinel errors for different categories
var (
	// ErrUnauthorized - no valid session (return to login in interactive, fail the command in batch)
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound - resource not found
	ErrNotFound = errors.New("not found")

	// ErrConflict - conflicting operation already in progress (409)
	ErrConflict = errors.New("conflict")

	// ErrTooFrequent - request throttled by the server (429)
	ErrTooFrequent = errors.New("too frequent")

	// ErrInvalidInput - invalid input (show validation error, never submit)
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotModified - conditional GET matched the current entity tag (304)
	ErrNotModified = errors.New("not modified")

	// ErrTransient - transient error (network failure, 5xx; safe to retry)
	ErrTransient = errors.New("transient error")

	// ErrInternal - internal error
	ErrInternal = errors.New("internal error")
)

// Server envelope codes the client acts upon.
const (
	CodeAuthFailed         = "AUTH_FAILED"
	CodeAlreadyInitialized = "ALREADY_INITIALIZED"
)
