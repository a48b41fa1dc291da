package domain

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func orderIDs(tasks []Task) []int64 {
	out := make([]int64, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestPlanReorderBeforeAndAfter(t *testing.T) {
	column := []Task{task(1, StatusTodo, 0), task(2, StatusTodo, 1), task(3, StatusTodo, 2), task(4, StatusTodo, 3)}

	tests := []struct {
		name       string
		moving     int64
		target     int64
		before     bool
		want       []int64
		wantWrites int
	}{
		{name: "last before first", moving: 3, target: 1, before: true, want: []int64{3, 1, 2, 4}, wantWrites: 3},
		{name: "first after last", moving: 1, target: 4, before: false, want: []int64{2, 3, 4, 1}, wantWrites: 4},
		{name: "down before neighbour is a no-op", moving: 1, target: 2, before: true, want: []int64{1, 2, 3, 4}, wantWrites: 0},
		{name: "swap middle", moving: 2, target: 3, before: false, want: []int64{1, 3, 2, 4}, wantWrites: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := PlanReorder(StatusTodo, column, tt.moving, tt.target, tt.before)
			if err != nil {
				t.Fatalf("plan: %v", err)
			}
			if got := orderIDs(plan.Order); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("order = %v, want %v", got, tt.want)
			}
			for i, task := range plan.Order {
				if task.Position != i {
					t.Fatalf("position of %d = %d, want %d", task.ID, task.Position, i)
				}
			}
			if len(plan.Writes) != tt.wantWrites {
				t.Fatalf("writes = %d, want %d (%+v)", len(plan.Writes), tt.wantWrites, plan.Writes)
			}
		})
	}
}

func TestPlanReorderErrors(t *testing.T) {
	column := []Task{task(1, StatusTodo, 0), task(2, StatusTodo, 1)}
	if _, err := PlanReorder(StatusTodo, column, 1, 1, true); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("expected invalid operation, got %v", err)
	}
	if _, err := PlanReorder(StatusTodo, column, 9, 1, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for missing mover, got %v", err)
	}
	if _, err := PlanReorder(StatusTodo, column, 1, 9, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for missing target, got %v", err)
	}
}

func TestPlanInsertFromOtherColumn(t *testing.T) {
	column := []Task{task(1, StatusDone, 4), task(2, StatusDone, 9)}
	moving := task(7, StatusTodo, 0)

	tests := []struct {
		name string
		p    Placement
		want []int64
	}{
		{name: "top", p: Top(), want: []int64{7, 1, 2}},
		{name: "bottom", p: Bottom(), want: []int64{1, 2, 7}},
		{name: "before second", p: RelativeTo(2, true), want: []int64{1, 7, 2}},
		{name: "after first", p: RelativeTo(1, false), want: []int64{1, 7, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := PlanInsert(StatusDone, column, moving, tt.p)
			if err != nil {
				t.Fatalf("plan: %v", err)
			}
			if got := orderIDs(plan.Order); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("order = %v, want %v", got, tt.want)
			}
			moved := 0
			for _, w := range plan.Writes {
				if w.Moved {
					moved++
					if w.ID != 7 {
						t.Fatalf("unexpected status write for %d", w.ID)
					}
				}
			}
			if moved != 1 {
				t.Fatalf("expected exactly one status write, got %d", moved)
			}
		})
	}
}

func TestPlanNormalizeCompactsGaps(t *testing.T) {
	column := []Task{task(3, StatusTodo, 10), task(1, StatusTodo, 0), task(2, StatusTodo, 0)}
	plan := PlanNormalize(StatusTodo, column)
	if got := orderIDs(plan.Order); !reflect.DeepEqual(got, []int64{1, 2, 3}) {
		t.Fatalf("order = %v", got)
	}
	if len(plan.Writes) != 2 {
		t.Fatalf("expected 2 writes, got %+v", plan.Writes)
	}
}

func TestColumnPlanApplyStopsOnFailure(t *testing.T) {
	st := newFakeStore(task(1, StatusTodo, 0), task(2, StatusTodo, 1), task(3, StatusTodo, 2))
	st.failWrite = 2
	column, _ := st.ListTasksByStatus(context.Background(), StatusTodo)
	plan, err := PlanReorder(StatusTodo, column, 3, 1, true)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if _, err := plan.Apply(context.Background(), st); err == nil {
		t.Fatal("expected apply to fail")
	}
	if st.writeCount() != 2 {
		t.Fatalf("expected apply to stop after the failing write, got %d writes", st.writeCount())
	}
}
