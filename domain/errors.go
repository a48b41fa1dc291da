package domain

import "errors"

var (
	// ErrNotFound is returned when a task or a target task does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidOperation covers self-referential moves and same-column
	// moves without a target task.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrCrossColumnViolation is returned when a reorder spans two columns.
	ErrCrossColumnViolation = errors.New("cross-column violation")
	// ErrConcurrencyConflict indicates that a column changed between the read
	// and the write of a mutation.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)
