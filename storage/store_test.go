package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"

	"kanban-board/domain"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func storeBackends(t *testing.T) map[string]func(t *testing.T) domain.TaskStore {
	return map[string]func(t *testing.T) domain.TaskStore{
		"memory": func(t *testing.T) domain.TaskStore { return NewMemoryStore() },
		"sqlite": func(t *testing.T) domain.TaskStore {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "board.db"))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"cached-memory": func(t *testing.T) domain.TaskStore {
			_, client := newTestRedis(t)
			logger, _ := test.NewNullLogger()
			return NewCache(NewMemoryStore(), client, "b1", time.Minute, logger)
		},
	}
}

func TestTaskStoreContract(t *testing.T) {
	for name, open := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			ctx := context.Background()
			created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
			due := created.Add(48 * time.Hour)

			a, err := st.CreateTask(ctx, domain.Task{Title: "a", Status: domain.StatusTodo, Position: 0, CreatedAt: created, DueDate: &due})
			if err != nil {
				t.Fatalf("create a: %v", err)
			}
			b, err := st.CreateTask(ctx, domain.Task{Title: "b", Status: domain.StatusTodo, Position: 1, CreatedAt: created})
			if err != nil {
				t.Fatalf("create b: %v", err)
			}
			if a.ID == 0 || b.ID == 0 || a.ID == b.ID {
				t.Fatalf("expected distinct ids, got %d and %d", a.ID, b.ID)
			}

			got, err := st.GetTask(ctx, a.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Title != "a" || got.DueDate == nil || !got.DueDate.Equal(due) || !got.CreatedAt.Equal(created) {
				t.Fatalf("unexpected task: %+v", got)
			}

			todo, err := st.ListTasksByStatus(ctx, domain.StatusTodo)
			if err != nil || len(todo) != 2 {
				t.Fatalf("list todo = %v, %v", todo, err)
			}

			moved, err := st.SetTaskStatusAndPosition(ctx, a.ID, domain.StatusDone, 0)
			if err != nil {
				t.Fatalf("set status: %v", err)
			}
			if moved.Status != domain.StatusDone || moved.Position != 0 {
				t.Fatalf("unexpected moved task: %+v", moved)
			}
			if todo, _ := st.ListTasksByStatus(ctx, domain.StatusTodo); len(todo) != 1 {
				t.Fatalf("todo after move = %v", todo)
			}
			if done, _ := st.ListTasksByStatus(ctx, domain.StatusDone); len(done) != 1 || done[0].ID != a.ID {
				t.Fatalf("done after move = %v", done)
			}

			if got, err := st.SetTaskPosition(ctx, b.ID, 5); err != nil || got.Position != 5 {
				t.Fatalf("set position = %+v, %v", got, err)
			}
			if _, err := st.SetTaskPosition(ctx, 999, 1); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("expected not found, got %v", err)
			}
			if _, err := st.GetTask(ctx, 999); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("expected not found, got %v", err)
			}

			if _, err := st.CreateTask(ctx, domain.Task{ID: b.ID, Title: "dup", Status: domain.StatusTodo, CreatedAt: created}); !errors.Is(err, domain.ErrInvalidOperation) {
				t.Fatalf("expected invalid operation for taken id, got %v", err)
			}

			ok, err := st.DeleteTask(ctx, b.ID)
			if err != nil || !ok {
				t.Fatalf("delete = %v, %v", ok, err)
			}
			if ok, err := st.DeleteTask(ctx, b.ID); err != nil || ok {
				t.Fatalf("second delete = %v, %v", ok, err)
			}

			restored, err := st.CreateTask(ctx, domain.Task{ID: b.ID, Title: "b", Status: domain.StatusTodo, Position: 1, CreatedAt: created})
			if err != nil || restored.ID != b.ID {
				t.Fatalf("restore with explicit id = %+v, %v", restored, err)
			}
		})
	}
}

func TestBoardOverStores(t *testing.T) {
	for name, open := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			board := domain.NewBoard(open(t))
			ctx := context.Background()
			var ids []int64
			for _, title := range []string{"a", "b", "c"} {
				task, err := board.CreateTask(ctx, domain.Task{Title: title})
				if err != nil {
					t.Fatalf("create %s: %v", title, err)
				}
				ids = append(ids, task.ID)
			}
			column, err := board.ReorderTask(ctx, ids[2], ids[0], true)
			if err != nil {
				t.Fatalf("reorder: %v", err)
			}
			for i, want := range []int64{ids[2], ids[0], ids[1]} {
				if column[i].ID != want || column[i].Position != i {
					t.Fatalf("column[%d] = %+v, want id %d at %d", i, column[i], want, i)
				}
			}
			reread, err := board.Column(ctx, domain.StatusTodo)
			if err != nil {
				t.Fatalf("column: %v", err)
			}
			for i := range reread {
				if reread[i].ID != column[i].ID || reread[i].Position != i {
					t.Fatalf("reread column differs: %+v", reread)
				}
			}
		})
	}
}
