package domain

import (
	"sort"
	"time"
)

// Default board columns. Any other status string is a valid column too.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in-progress"
	StatusDone       = "done"
)

// DefaultStatuses lists the fixed columns every board starts with.
var DefaultStatuses = []string{StatusTodo, StatusInProgress, StatusDone}

// Task represents a single board item.
type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Type        string     `json:"type,omitempty"`
	Position    int        `json:"position"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// SortColumn orders tasks by position. Ties, which only exist before a column
// has been renumbered, are broken by id so the order stays deterministic.
func SortColumn(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Position != tasks[j].Position {
			return tasks[i].Position < tasks[j].Position
		}
		return tasks[i].ID < tasks[j].ID
	})
}

func indexOf(tasks []Task, id int64) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}
