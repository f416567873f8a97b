package domain

import "errors"

var (
	// ErrValidation marks input the console rejects before any upstream call.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a record the upstream no longer knows about.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized marks a rejected or expired session credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnreachable marks a request that produced no HTTP response at all.
	ErrUnreachable = errors.New("upstream unreachable")
	// ErrConflict marks an operation the upstream refused because of current record state.
	ErrConflict = errors.New("conflict")
)
