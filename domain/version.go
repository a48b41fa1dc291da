package domain

import (
	"context"
	"fmt"
	"sync"
)

// VersionTracker hands out a monotonically increasing version per column.
// A mutation reads the versions of the columns it touches before planning
// and bumps them before writing, so two writers racing on one column cannot
// both commit a renumbering computed from the same read.
type VersionTracker interface {
	Version(ctx context.Context, status string) (int64, error)
	// Bump advances the column to expected+1. It fails with
	// ErrConcurrencyConflict when the column is no longer at expected.
	Bump(ctx context.Context, status string, expected int64) (int64, error)
}

// MemoryVersions is a process-local VersionTracker.
type MemoryVersions struct {
	mu       sync.Mutex
	versions map[string]int64
}

func NewMemoryVersions() *MemoryVersions {
	return &MemoryVersions{versions: map[string]int64{}}
}

func (m *MemoryVersions) Version(_ context.Context, status string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[status], nil
}

func (m *MemoryVersions) Bump(_ context.Context, status string, expected int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur := m.versions[status]; cur != expected {
		return cur, fmt.Errorf("column %q at version %d, expected %d: %w", status, cur, expected, ErrConcurrencyConflict)
	}
	m.versions[status] = expected + 1
	return expected + 1, nil
}
