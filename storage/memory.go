package storage

import (
	"context"
	"fmt"
	"sync"

	"kanban-board/domain"
)

// MemoryStore keeps tasks in process memory. Tasks are listed in insertion
// order so ties on position stay deterministic.
type MemoryStore struct {
	mu     sync.RWMutex
	tasks  map[int64]domain.Task
	order  []int64
	nextID int64
}

// NewMemoryStore creates a store seeded with tasks.
func NewMemoryStore(seed ...domain.Task) *MemoryStore {
	m := &MemoryStore{tasks: map[int64]domain.Task{}}
	for _, t := range seed {
		m.put(t)
	}
	return m
}

func (m *MemoryStore) put(t domain.Task) {
	if _, ok := m.tasks[t.ID]; !ok {
		m.order = append(m.order, t.ID)
	}
	m.tasks[t.ID] = t
	if t.ID > m.nextID {
		m.nextID = t.ID
	}
}

func (m *MemoryStore) GetTask(_ context.Context, id int64) (domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, fmt.Errorf("task %d: %w", id, domain.ErrNotFound)
	}
	return t, nil
}

func (m *MemoryStore) ListTasksByStatus(_ context.Context, status string) ([]domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tasks := []domain.Task{}
	for _, id := range m.order {
		if t, ok := m.tasks[id]; ok && t.Status == status {
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// CreateTask stores t. A zero id is assigned the next free id; a non-zero id
// must not be taken.
func (m *MemoryStore) CreateTask(_ context.Context, t domain.Task) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == 0 {
		t.ID = m.nextID + 1
	} else if _, ok := m.tasks[t.ID]; ok {
		return domain.Task{}, fmt.Errorf("task %d already exists: %w", t.ID, domain.ErrInvalidOperation)
	}
	m.put(t)
	return t, nil
}

func (m *MemoryStore) SetTaskStatusAndPosition(_ context.Context, id int64, status string, position int) (domain.Task, error) {
	return m.update(id, func(t *domain.Task) {
		t.Status = status
		t.Position = position
	})
}

func (m *MemoryStore) SetTaskPosition(_ context.Context, id int64, position int) (domain.Task, error) {
	return m.update(id, func(t *domain.Task) { t.Position = position })
}

func (m *MemoryStore) update(id int64, fn func(*domain.Task)) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, fmt.Errorf("task %d: %w", id, domain.ErrNotFound)
	}
	fn(&t)
	m.tasks[id] = t
	return t, nil
}

func (m *MemoryStore) DeleteTask(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return false, nil
	}
	delete(m.tasks, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true, nil
}
