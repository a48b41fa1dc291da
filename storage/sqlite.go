package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"kanban-board/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	type        TEXT NOT NULL DEFAULT '',
	position    INTEGER NOT NULL,
	due_date    DATETIME,
	created_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_status_position ON tasks (status, position);
`

const taskColumns = `id, title, description, status, type, position, due_date, created_at`

// SQLiteStore persists tasks in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists. The caller is responsible for calling Close.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, fmt.Errorf("task %d: %w", id, domain.ErrNotFound)
	}
	return t, err
}

func (s *SQLiteStore) ListTasksByStatus(ctx context.Context, status string) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY id`, status)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CreateTask inserts t. A zero id lets SQLite assign one; an id that is
// already taken fails with domain.ErrInvalidOperation.
func (s *SQLiteStore) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	if t.ID != 0 {
		if _, err := s.GetTask(ctx, t.ID); err == nil {
			return domain.Task{}, fmt.Errorf("task %d already exists: %w", t.ID, domain.ErrInvalidOperation)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return domain.Task{}, err
		}
	}
	var id any
	if t.ID != 0 {
		id = t.ID
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, status, type, position, due_date, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		id, t.Title, t.Description, t.Status, t.Type, t.Position, nullTime(t.DueDate), t.CreatedAt.UTC(),
	)
	if err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if t.ID == 0 {
		if t.ID, err = res.LastInsertId(); err != nil {
			return domain.Task{}, err
		}
	}
	return t, nil
}

func (s *SQLiteStore) SetTaskStatusAndPosition(ctx context.Context, id int64, status string, position int) (domain.Task, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ?, position = ? WHERE id = ?`, status, position, id)
	if err != nil {
		return domain.Task{}, fmt.Errorf("update task %d: %w", id, err)
	}
	if err := requireRow(res, id); err != nil {
		return domain.Task{}, err
	}
	return s.GetTask(ctx, id)
}

func (s *SQLiteStore) SetTaskPosition(ctx context.Context, id int64, position int) (domain.Task, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET position = ? WHERE id = ?`, position, id)
	if err != nil {
		return domain.Task{}, fmt.Errorf("update task %d: %w", id, err)
	}
	if err := requireRow(res, id); err != nil {
		return domain.Task{}, err
	}
	return s.GetTask(ctx, id)
}

func (s *SQLiteStore) DeleteTask(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete task %d: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func requireRow(res sql.Result, id int64) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("task %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (domain.Task, error) {
	var (
		t   domain.Task
		due sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Type, &t.Position, &due, &t.CreatedAt); err != nil {
		return domain.Task{}, err
	}
	if due.Valid {
		d := due.Time.UTC()
		t.DueDate = &d
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
