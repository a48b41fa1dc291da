package domain

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type fakeStore struct {
	mu     sync.Mutex
	tasks  map[int64]Task
	order  []int64
	nextID int64
	writes int
	// failWrite makes the n-th position write (1-based) fail.
	failWrite int
}

func newFakeStore(tasks ...Task) *fakeStore {
	f := &fakeStore{tasks: map[int64]Task{}}
	for _, t := range tasks {
		f.tasks[t.ID] = t
		f.order = append(f.order, t.ID)
		if t.ID > f.nextID {
			f.nextID = t.ID
		}
	}
	return f
}

func (f *fakeStore) GetTask(ctx context.Context, id int64) (Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) ListTasksByStatus(ctx context.Context, status string) ([]Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []Task{}
	for _, id := range f.order {
		if t, ok := f.tasks[id]; ok && t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateTask(ctx context.Context, t Task) (Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID == 0 {
		f.nextID++
		t.ID = f.nextID
	} else if _, exists := f.tasks[t.ID]; exists {
		return Task{}, fmt.Errorf("task %d exists: %w", t.ID, ErrInvalidOperation)
	} else if t.ID > f.nextID {
		f.nextID = t.ID
	}
	f.tasks[t.ID] = t
	f.order = append(f.order, t.ID)
	f.writes++
	return t, nil
}

func (f *fakeStore) SetTaskStatusAndPosition(ctx context.Context, id int64, status string, position int) (Task, error) {
	return f.update(id, func(t *Task) {
		t.Status = status
		t.Position = position
	})
}

func (f *fakeStore) SetTaskPosition(ctx context.Context, id int64, position int) (Task, error) {
	return f.update(id, func(t *Task) { t.Position = position })
}

func (f *fakeStore) update(id int64, fn func(*Task)) (Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	f.writes++
	if f.failWrite > 0 && f.writes == f.failWrite {
		return Task{}, fmt.Errorf("injected write failure")
	}
	fn(&t)
	f.tasks[id] = t
	return t, nil
}

func (f *fakeStore) DeleteTask(ctx context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[id]; !ok {
		return false, nil
	}
	delete(f.tasks, id)
	for i, v := range f.order {
		if v == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	f.writes++
	return true, nil
}

func (f *fakeStore) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// ids returns the ids of status sorted by position.
func (f *fakeStore) ids(status string) []int64 {
	tasks, _ := f.ListTasksByStatus(context.Background(), status)
	SortColumn(tasks)
	out := make([]int64, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func (f *fakeStore) positions(status string) []int {
	tasks, _ := f.ListTasksByStatus(context.Background(), status)
	out := make([]int, len(tasks))
	for i, t := range tasks {
		out[i] = t.Position
	}
	sort.Ints(out)
	return out
}

func task(id int64, status string, pos int) Task {
	return Task{ID: id, Title: fmt.Sprintf("task-%d", id), Status: status, Position: pos, CreatedAt: time.Unix(id, 0).UTC()}
}

// todoBoard seeds todo with A=1, B=2, C=3 at positions 0..2.
func todoBoard() (*fakeStore, *Board) {
	st := newFakeStore(task(1, StatusTodo, 0), task(2, StatusTodo, 1), task(3, StatusTodo, 2))
	return st, NewBoard(st)
}

func isDense(positions []int) bool {
	for i, p := range positions {
		if p != i {
			return false
		}
	}
	return true
}

func isUnique(sorted []int) bool {
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return false
		}
	}
	return true
}
