package storage

import (
	"context"
	"errors"
	"testing"

	"kanban-board/domain"
)

func TestRedisVersionsCompareAndBump(t *testing.T) {
	_, client := newTestRedis(t)
	v := NewRedisVersions(client, "b1")
	ctx := context.Background()

	cur, err := v.Version(ctx, domain.StatusTodo)
	if err != nil || cur != 0 {
		t.Fatalf("initial version = %d, %v", cur, err)
	}
	next, err := v.Bump(ctx, domain.StatusTodo, 0)
	if err != nil || next != 1 {
		t.Fatalf("bump = %d, %v", next, err)
	}
	if _, err := v.Bump(ctx, domain.StatusTodo, 0); !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if cur, _ := v.Version(ctx, domain.StatusTodo); cur != 1 {
		t.Fatalf("version after failed bump = %d", cur)
	}
}

func TestRedisVersionsSharedBetweenBoards(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewMemoryStore(
		domain.Task{ID: 1, Status: domain.StatusTodo, Position: 0},
		domain.Task{ID: 2, Status: domain.StatusTodo, Position: 1},
	)
	first := domain.NewBoard(store, domain.WithVersionTracker(NewRedisVersions(client, "b1")))
	second := domain.NewBoard(store, domain.WithVersionTracker(NewRedisVersions(client, "b1")))
	ctx := context.Background()

	if _, err := first.ReorderTask(ctx, 2, 1, true); err != nil {
		t.Fatalf("first reorder: %v", err)
	}
	if _, err := second.ReorderTask(ctx, 1, 2, true); err != nil {
		t.Fatalf("second reorder: %v", err)
	}
	v, err := NewRedisVersions(client, "b1").Version(ctx, domain.StatusTodo)
	if err != nil || v != 2 {
		t.Fatalf("shared version = %d, %v", v, err)
	}
}
