// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
// Clients see it as StaleState and must refetch before retrying.
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates malformed input or out-of-range values.
var ErrValidation = errors.New("validation failed")

// ErrUnauthorized indicates the actor may not perform the attempted operation.
var ErrUnauthorized = errors.New("unauthorized")

// ErrIllegalTransition indicates there is no edge from the current status to the requested one.
var ErrIllegalTransition = errors.New("illegal transition")

// ErrPreconditionFailed indicates the edge exists but a business rule blocks it.
var ErrPreconditionFailed = errors.New("precondition failed")

// ErrAlreadySigned indicates the party has already signed the lease.
var ErrAlreadySigned = errors.New("already signed")
