package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"kanban-board/domain"
)

// Deduper prevents processing of duplicate mutation requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, scope, key string) (bool, error)
	// Remove deletes a previously added key, used when the mutation fails.
	Remove(ctx context.Context, scope, key string) error
}

// Subscriber hands out streams of committed board changes.
type Subscriber interface {
	Subscribe() (<-chan domain.Change, func())
}

// Deps carries everything the handlers need.
type Deps struct {
	Board   *domain.Board
	History *domain.History
	Changes Subscriber
	// Deduper is optional; without it Idempotency-Key headers are ignored.
	Deduper Deduper
	BoardID string
	// ExactMoveUndo makes undoing a move restore the source column exactly.
	ExactMoveUndo bool
	Logger        *log.Logger
	// KeepAlive is the SSE comment interval; zero disables it.
	KeepAlive time.Duration
}

type createTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Type        string     `json:"type"`
	DueDate     *time.Time `json:"dueDate"`
}

type moveTaskRequest struct {
	Status       string `json:"status"`
	TargetTaskID *int64 `json:"targetTaskId"`
	PlaceBefore  *bool  `json:"placeBefore"`
	ToTop        bool   `json:"toTop"`
}

type reorderTaskRequest struct {
	TargetTaskID *int64 `json:"targetTaskId"`
	PlaceBefore  bool   `json:"placeBefore"`
}

type columnsResponse struct {
	Columns []domain.ColumnView  `json:"columns"`
	History domain.HistoryStatus `json:"history"`
}

type taskResponse struct {
	Task    domain.Task          `json:"task"`
	History domain.HistoryStatus `json:"history"`
}

type columnResponse struct {
	Status  string               `json:"status"`
	Tasks   []domain.Task        `json:"tasks"`
	History domain.HistoryStatus `json:"history"`
}

type errorResponse struct {
	Error string `json:"error"`
}
