package domain

import (
	"context"
	"sync/atomic"
	"time"
)

// ChangeType names a committed board mutation.
type ChangeType string

const (
	TaskCreated    ChangeType = "task-created"
	TaskDeleted    ChangeType = "task-deleted"
	TaskMoved      ChangeType = "task-moved"
	TaskReordered  ChangeType = "task-reordered"
	ColumnRestored ChangeType = "column-restored"
	HistoryChanged ChangeType = "history-changed"
)

// Change is published synchronously after every committed mutation so views
// refresh without polling the store.
//
// Columns carries the renumbered columns when the mutation produced them and
// Origin identifies the publishing instance so relays can drop echoes.
type Change struct {
	Type     ChangeType        `json:"type"`
	TaskID   int64             `json:"taskId,omitempty"`
	Statuses []string          `json:"statuses,omitempty"`
	Columns  map[string][]Task `json:"columns,omitempty"`
	History  *HistoryStatus    `json:"history,omitempty"`
	Origin   string            `json:"origin,omitempty"`
	Time     int64             `json:"time"`
}

// HistoryStatus is the undo/redo availability after a history transition.
type HistoryStatus struct {
	CanUndo bool `json:"canUndo"`
	CanRedo bool `json:"canRedo"`
}

// Notifier receives committed changes.
type Notifier interface {
	Publish(ctx context.Context, c Change) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, c Change) error

func (f NotifierFunc) Publish(ctx context.Context, c Change) error { return f(ctx, c) }

// Notifiers fans a change out to every member and returns the first error.
type Notifiers []Notifier

func (ns Notifiers) Publish(ctx context.Context, c Change) error {
	var first error
	for _, n := range ns {
		if n == nil {
			continue
		}
		if err := n.Publish(ctx, c); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var lastTimestamp int64

// nextTimestamp returns a strictly increasing unix-nano timestamp.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}
