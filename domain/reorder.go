package domain

import (
	"context"
	"fmt"
	"sort"
)

// ColumnPlan is the renumbered layout of one column together with the store
// writes needed to reach it.
type ColumnPlan struct {
	Status string
	// Order is the final column, positions already set to 0..N-1.
	Order []Task
	// Writes holds one entry per member of Order whose stored status or
	// position differs from the planned one.
	Writes []Write
}

// Write is a single store update of a ColumnPlan.
type Write struct {
	ID       int64
	Position int
	// Moved is set when the task enters the column and its status changes.
	Moved bool
}

// PlanInsert splices moving into column according to p and renumbers the
// result. moving may come from another column; if it is already a member of
// column it is taken out first.
func PlanInsert(status string, column []Task, moving Task, p Placement) (ColumnPlan, error) {
	column = sortedCopy(column)
	raw, err := AllocatePosition(column, moving.ID, p)
	if err != nil {
		return ColumnPlan{}, err
	}
	rest := without(column, moving.ID)

	var at int
	switch p.Kind {
	case PlaceRelative:
		at = indexOf(rest, p.TargetID)
		if at < 0 {
			return ColumnPlan{}, fmt.Errorf("target task %d: %w", p.TargetID, ErrNotFound)
		}
		if !p.Before {
			at++
		}
	case PlaceAt:
		at = sort.Search(len(rest), func(i int) bool { return rest[i].Position >= raw })
	default:
		// Top and Bottom land wherever their raw value sorts.
		at = sort.Search(len(rest), func(i int) bool { return rest[i].Position > raw })
	}
	return renumber(status, splice(rest, moving, at)), nil
}

// PlanReorder moves movingID next to targetID inside a single column. Both
// tasks must be members of column.
func PlanReorder(status string, column []Task, movingID, targetID int64, before bool) (ColumnPlan, error) {
	if movingID == targetID {
		return ColumnPlan{}, fmt.Errorf("task %d cannot be reordered relative to itself: %w", movingID, ErrInvalidOperation)
	}
	idx := indexOf(column, movingID)
	if idx < 0 {
		return ColumnPlan{}, fmt.Errorf("task %d is not in column %q: %w", movingID, status, ErrNotFound)
	}
	return PlanInsert(status, column, column[idx], RelativeTo(targetID, before))
}

// PlanNormalize renumbers column in its current order.
func PlanNormalize(status string, column []Task) ColumnPlan {
	return renumber(status, sortedCopy(column))
}

// Apply issues the planned writes. Writes are per task and idempotent, so a
// failure part way leaves some tasks renumbered and the caller retries the
// whole column.
func (p ColumnPlan) Apply(ctx context.Context, st TaskStore) ([]Task, error) {
	for _, w := range p.Writes {
		var err error
		if w.Moved {
			_, err = st.SetTaskStatusAndPosition(ctx, w.ID, p.Status, w.Position)
		} else {
			_, err = st.SetTaskPosition(ctx, w.ID, w.Position)
		}
		if err != nil {
			return nil, fmt.Errorf("renumber task %d in %q: %w", w.ID, p.Status, err)
		}
	}
	out := make([]Task, len(p.Order))
	copy(out, p.Order)
	return out, nil
}

// skipping drops the write for id, e.g. a task the caller stores itself.
func (p ColumnPlan) skipping(id int64) ColumnPlan {
	out := p
	out.Writes = nil
	for _, w := range p.Writes {
		if w.ID != id {
			out.Writes = append(out.Writes, w)
		}
	}
	return out
}

func renumber(status string, ordered []Task) ColumnPlan {
	plan := ColumnPlan{Status: status, Order: make([]Task, len(ordered))}
	for i, t := range ordered {
		moved := t.Status != status
		if moved || t.Position != i {
			plan.Writes = append(plan.Writes, Write{ID: t.ID, Position: i, Moved: moved})
		}
		t.Position = i
		t.Status = status
		plan.Order[i] = t
	}
	return plan
}

func sortedCopy(column []Task) []Task {
	out := make([]Task, len(column))
	copy(out, column)
	SortColumn(out)
	return out
}

func without(tasks []Task, id int64) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}

func splice(tasks []Task, t Task, at int) []Task {
	out := make([]Task, 0, len(tasks)+1)
	out = append(out, tasks[:at]...)
	out = append(out, t)
	return append(out, tasks[at:]...)
}
