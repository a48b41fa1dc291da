package domain

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryVersionsCompareAndBump(t *testing.T) {
	v := NewMemoryVersions()
	ctx := context.Background()

	cur, err := v.Version(ctx, StatusTodo)
	if err != nil || cur != 0 {
		t.Fatalf("initial version = %d, %v", cur, err)
	}
	next, err := v.Bump(ctx, StatusTodo, 0)
	if err != nil || next != 1 {
		t.Fatalf("bump = %d, %v", next, err)
	}
	if _, err := v.Bump(ctx, StatusTodo, 0); !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("expected conflict on stale version, got %v", err)
	}
	if other, _ := v.Version(ctx, StatusDone); other != 0 {
		t.Fatalf("columns must be versioned independently, got %d", other)
	}
}
