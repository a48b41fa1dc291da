package domain

import "context"

// TaskStore holds the canonical task records. Implementations return
// ErrNotFound (possibly wrapped) for unknown ids.
type TaskStore interface {
	GetTask(ctx context.Context, id int64) (Task, error)
	// ListTasksByStatus returns the column members in insertion order; callers
	// sort by position themselves.
	ListTasksByStatus(ctx context.Context, status string) ([]Task, error)
	// CreateTask stores t. A zero ID is assigned by the store, a non-zero ID is
	// kept and fails with ErrInvalidOperation when already taken.
	CreateTask(ctx context.Context, t Task) (Task, error)
	SetTaskStatusAndPosition(ctx context.Context, id int64, status string, position int) (Task, error)
	SetTaskPosition(ctx context.Context, id int64, position int) (Task, error)
	DeleteTask(ctx context.Context, id int64) (bool, error)
}
