package domain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Board runs the move and reorder operations against a TaskStore. Mutations
// are serialized: one runs at a time and only touches the columns it names.
type Board struct {
	store    TaskStore
	versions VersionTracker
	notifier Notifier
	logger   *log.Logger
	statuses []string
	retries  int
	origin   string
	now      func() time.Time

	mu sync.Mutex
}

// ColumnView is one column of the board in display order.
type ColumnView struct {
	Status string `json:"status"`
	Tasks  []Task `json:"tasks"`
}

// ColumnSnapshot records the exact layout of a column at one point in time.
type ColumnSnapshot struct {
	Status string
	Tasks  []Task
}

// Option configures a Board.
type Option func(*Board)

// WithVersionTracker replaces the process-local column versions, e.g. with a
// tracker shared by several instances.
func WithVersionTracker(v VersionTracker) Option {
	return func(b *Board) {
		if v != nil {
			b.versions = v
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(b *Board) { b.notifier = n }
}

func WithLogger(l *log.Logger) Option {
	return func(b *Board) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithColumns appends extra statuses after the default columns.
func WithColumns(extra ...string) Option {
	return func(b *Board) {
		for _, s := range extra {
			if s != "" && !contains(b.statuses, s) {
				b.statuses = append(b.statuses, s)
			}
		}
	}
}

// WithRetries sets how often a mutation is re-planned after a concurrency
// conflict.
func WithRetries(n int) Option {
	return func(b *Board) {
		if n >= 0 {
			b.retries = n
		}
	}
}

// WithOrigin tags published changes with an instance id.
func WithOrigin(id string) Option {
	return func(b *Board) { b.origin = id }
}

// NewBoard creates a Board over store.
func NewBoard(store TaskStore, opts ...Option) *Board {
	if store == nil {
		panic("domain.NewBoard: store is nil")
	}
	b := &Board{
		store:    store,
		versions: NewMemoryVersions(),
		logger:   log.StandardLogger(),
		statuses: append([]string(nil), DefaultStatuses...),
		retries:  3,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Statuses returns the configured columns in display order.
func (b *Board) Statuses() []string {
	return append([]string(nil), b.statuses...)
}

// Task returns a single task.
func (b *Board) Task(ctx context.Context, id int64) (Task, error) {
	t, err := b.store.GetTask(ctx, id)
	if err != nil {
		return Task{}, fmt.Errorf("task %d: %w", id, err)
	}
	return t, nil
}

// Column returns the tasks of status sorted by position.
func (b *Board) Column(ctx context.Context, status string) ([]Task, error) {
	tasks, err := b.store.ListTasksByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list column %q: %w", status, err)
	}
	SortColumn(tasks)
	return tasks, nil
}

// Columns returns every configured column.
func (b *Board) Columns(ctx context.Context) ([]ColumnView, error) {
	views := make([]ColumnView, 0, len(b.statuses))
	for _, s := range b.statuses {
		tasks, err := b.Column(ctx, s)
		if err != nil {
			return nil, err
		}
		views = append(views, ColumnView{Status: s, Tasks: tasks})
	}
	return views, nil
}

// Snapshot captures the current layout of a column.
func (b *Board) Snapshot(ctx context.Context, status string) (ColumnSnapshot, error) {
	tasks, err := b.Column(ctx, status)
	if err != nil {
		return ColumnSnapshot{}, err
	}
	return ColumnSnapshot{Status: status, Tasks: tasks}, nil
}

// CreateTask appends draft to the bottom of its column, todo when no status
// is given.
func (b *Board) CreateTask(ctx context.Context, draft Task) (Task, error) {
	var created Task
	err := b.mutate(ctx, "create", func() (Change, error) {
		status := draft.Status
		if status == "" {
			status = StatusTodo
		}
		vs, err := b.readVersions(ctx, status)
		if err != nil {
			return Change{}, err
		}
		column, err := b.Column(ctx, status)
		if err != nil {
			return Change{}, err
		}
		pos, err := AllocatePosition(column, draft.ID, Bottom())
		if err != nil {
			return Change{}, err
		}
		if err := b.bumpVersions(ctx, vs); err != nil {
			return Change{}, err
		}
		t := draft
		t.Status = status
		t.Position = pos
		if t.CreatedAt.IsZero() {
			t.CreatedAt = b.now().UTC()
		}
		created, err = b.store.CreateTask(ctx, t)
		if err != nil {
			return Change{}, fmt.Errorf("create task: %w", err)
		}
		b.logger.WithFields(log.Fields{"task": created.ID, "status": status, "position": pos}).Debug("task created")
		return Change{Type: TaskCreated, TaskID: created.ID, Statuses: []string{status}}, nil
	})
	return created, err
}

// RestoreTask puts a deleted record back under its id. The task returns to
// the slot its old position sorts to in the column as it is now, and the
// column is renumbered around it.
func (b *Board) RestoreTask(ctx context.Context, t Task) (Task, error) {
	var restored Task
	err := b.mutate(ctx, "restore", func() (Change, error) {
		vs, err := b.readVersions(ctx, t.Status)
		if err != nil {
			return Change{}, err
		}
		column, err := b.Column(ctx, t.Status)
		if err != nil {
			return Change{}, err
		}
		if indexOf(column, t.ID) >= 0 {
			return Change{}, fmt.Errorf("task %d already exists: %w", t.ID, ErrInvalidOperation)
		}
		plan, err := PlanInsert(t.Status, column, t, At(t.Position))
		if err != nil {
			return Change{}, err
		}
		if err := b.bumpVersions(ctx, vs); err != nil {
			return Change{}, err
		}
		rec := t
		rec.Position = plan.Order[indexOf(plan.Order, t.ID)].Position
		restored, err = b.store.CreateTask(ctx, rec)
		if err != nil {
			return Change{}, fmt.Errorf("restore task %d: %w", t.ID, err)
		}
		order, err := plan.skipping(t.ID).Apply(ctx, b.store)
		if err != nil {
			return Change{}, err
		}
		b.logger.WithFields(log.Fields{"task": t.ID, "status": t.Status, "position": rec.Position}).Debug("task restored")
		return Change{
			Type:     TaskCreated,
			TaskID:   restored.ID,
			Statuses: []string{t.Status},
			Columns:  map[string][]Task{t.Status: order},
		}, nil
	})
	return restored, err
}

// DeleteTask removes a task and returns the deleted record. The column is
// not compacted.
func (b *Board) DeleteTask(ctx context.Context, id int64) (Task, error) {
	var deleted Task
	err := b.mutate(ctx, "delete", func() (Change, error) {
		t, err := b.Task(ctx, id)
		if err != nil {
			return Change{}, err
		}
		vs, err := b.readVersions(ctx, t.Status)
		if err != nil {
			return Change{}, err
		}
		if err := b.confirmStatus(ctx, t); err != nil {
			return Change{}, err
		}
		if err := b.bumpVersions(ctx, vs); err != nil {
			return Change{}, err
		}
		ok, err := b.store.DeleteTask(ctx, id)
		if err != nil {
			return Change{}, fmt.Errorf("delete task %d: %w", id, err)
		}
		if !ok {
			return Change{}, fmt.Errorf("task %d: %w", id, ErrNotFound)
		}
		deleted = t
		return Change{Type: TaskDeleted, TaskID: id, Statuses: []string{t.Status}}, nil
	})
	return deleted, err
}

// placementFunc resolves the placement of a move once the moving task has
// been read.
type placementFunc func(ctx context.Context, moving Task) (Placement, error)

func fixedPlacement(p Placement) placementFunc {
	return func(context.Context, Task) (Placement, error) { return p, nil }
}

func (b *Board) optionsPlacement(opts MoveOptions) placementFunc {
	return func(ctx context.Context, moving Task) (Placement, error) {
		var target *Task
		if opts.TargetTaskID != nil && opts.PlaceBefore == nil && !opts.ToTop {
			t, err := b.Task(ctx, *opts.TargetTaskID)
			if err != nil {
				return Placement{}, err
			}
			target = &t
		}
		return PlacementFromOptions(opts, moving, target), nil
	}
}

// moveResult is what a move leaves behind for its undo.
type moveResult struct {
	source string
	// snapshot is the source column as read under the move's version check.
	snapshot *ColumnSnapshot
}

// MoveTask moves a task into targetStatus at placement p. A move within the
// task's own column degrades to a reorder and needs a relative placement.
// Only the target column is renumbered; the source column keeps its gap.
func (b *Board) MoveTask(ctx context.Context, id int64, targetStatus string, p Placement) error {
	_, err := b.move(ctx, id, targetStatus, fixedPlacement(p), false)
	return err
}

// MoveTaskWithOptions resolves a UI drop payload and moves the task.
func (b *Board) MoveTaskWithOptions(ctx context.Context, id int64, targetStatus string, opts MoveOptions) error {
	_, err := b.move(ctx, id, targetStatus, b.optionsPlacement(opts), false)
	return err
}

// move runs a move and, with capture set, snapshots the source column inside
// the same mutation. Same-column moves always snapshot.
func (b *Board) move(ctx context.Context, id int64, targetStatus string, resolve placementFunc, capture bool) (moveResult, error) {
	var res moveResult
	err := b.mutate(ctx, "move", func() (Change, error) {
		var (
			ch  Change
			err error
		)
		res, ch, err = b.moveOnce(ctx, id, targetStatus, resolve, capture)
		return ch, err
	})
	return res, err
}

func (b *Board) moveOnce(ctx context.Context, id int64, targetStatus string, resolve placementFunc, capture bool) (moveResult, Change, error) {
	task, err := b.Task(ctx, id)
	if err != nil {
		return moveResult{}, Change{}, err
	}
	p, err := resolve(ctx, task)
	if err != nil {
		return moveResult{}, Change{}, err
	}
	if task.Status == targetStatus {
		if p.Kind != PlaceRelative {
			return moveResult{}, Change{}, fmt.Errorf("task %d is already in %q: %w", id, targetStatus, ErrInvalidOperation)
		}
		before, _, ch, err := b.reorderOnce(ctx, task, p.TargetID, p.Before)
		if err != nil {
			return moveResult{}, Change{}, err
		}
		return moveResult{source: task.Status, snapshot: &ColumnSnapshot{Status: task.Status, Tasks: before}}, ch, nil
	}

	vs, err := b.readVersions(ctx, task.Status, targetStatus)
	if err != nil {
		return moveResult{}, Change{}, err
	}
	if err := b.confirmStatus(ctx, task); err != nil {
		return moveResult{}, Change{}, err
	}
	res := moveResult{source: task.Status}
	if capture {
		snap, err := b.Snapshot(ctx, task.Status)
		if err != nil {
			return moveResult{}, Change{}, err
		}
		res.snapshot = &snap
	}
	column, err := b.Column(ctx, targetStatus)
	if err != nil {
		return moveResult{}, Change{}, err
	}
	plan, err := PlanInsert(targetStatus, column, task, p)
	if err != nil {
		return moveResult{}, Change{}, err
	}
	if err := b.bumpVersions(ctx, vs); err != nil {
		return moveResult{}, Change{}, err
	}
	order, err := plan.Apply(ctx, b.store)
	if err != nil {
		return moveResult{}, Change{}, err
	}
	b.logger.WithFields(log.Fields{
		"task":      id,
		"from":      task.Status,
		"to":        targetStatus,
		"placement": p.String(),
		"writes":    len(plan.Writes),
	}).Debug("task moved")
	return res, Change{
		Type:     TaskMoved,
		TaskID:   id,
		Statuses: []string{task.Status, targetStatus},
		Columns:  map[string][]Task{targetStatus: order},
	}, nil
}

// ReorderTask places a task directly before or after another task of the
// same column and returns the updated column.
func (b *Board) ReorderTask(ctx context.Context, id, targetID int64, before bool) ([]Task, error) {
	_, column, err := b.reorder(ctx, id, targetID, before)
	return column, err
}

// reorder runs ReorderTask and also returns the column as it was read before
// the reorder.
func (b *Board) reorder(ctx context.Context, id, targetID int64, before bool) (ColumnSnapshot, []Task, error) {
	if id == targetID {
		return ColumnSnapshot{}, nil, fmt.Errorf("task %d cannot be reordered relative to itself: %w", id, ErrInvalidOperation)
	}
	var (
		snap   ColumnSnapshot
		column []Task
	)
	err := b.mutate(ctx, "reorder", func() (Change, error) {
		task, err := b.Task(ctx, id)
		if err != nil {
			return Change{}, err
		}
		prev, order, ch, err := b.reorderOnce(ctx, task, targetID, before)
		if err != nil {
			return Change{}, err
		}
		snap = ColumnSnapshot{Status: task.Status, Tasks: prev}
		column = order
		return ch, nil
	})
	return snap, column, err
}

// reorderOnce returns the column before and after the reorder.
func (b *Board) reorderOnce(ctx context.Context, task Task, targetID int64, before bool) ([]Task, []Task, Change, error) {
	if task.ID == targetID {
		return nil, nil, Change{}, fmt.Errorf("task %d cannot be reordered relative to itself: %w", task.ID, ErrInvalidOperation)
	}
	target, err := b.Task(ctx, targetID)
	if err != nil {
		return nil, nil, Change{}, err
	}
	if target.Status != task.Status {
		return nil, nil, Change{}, fmt.Errorf("task %d is in %q, target %d in %q: %w", task.ID, task.Status, targetID, target.Status, ErrCrossColumnViolation)
	}
	status := task.Status
	vs, err := b.readVersions(ctx, status)
	if err != nil {
		return nil, nil, Change{}, err
	}
	if err := b.confirmStatus(ctx, task, target); err != nil {
		return nil, nil, Change{}, err
	}
	column, err := b.Column(ctx, status)
	if err != nil {
		return nil, nil, Change{}, err
	}
	plan, err := PlanReorder(status, column, task.ID, targetID, before)
	if err != nil {
		return nil, nil, Change{}, err
	}
	if err := b.bumpVersions(ctx, vs); err != nil {
		return nil, nil, Change{}, err
	}
	order, err := plan.Apply(ctx, b.store)
	if err != nil {
		return nil, nil, Change{}, err
	}
	b.logger.WithFields(log.Fields{
		"task":   task.ID,
		"target": targetID,
		"before": before,
		"status": status,
		"writes": len(plan.Writes),
	}).Debug("task reordered")
	return column, order, Change{
		Type:     TaskReordered,
		TaskID:   task.ID,
		Statuses: []string{status},
		Columns:  map[string][]Task{status: order},
	}, nil
}

// RestoreColumn writes the snapshot's statuses and positions back verbatim.
// Every snapshot member must still exist; otherwise nothing is written.
// Tasks that joined the column after the snapshot keep their relative order
// and are placed after the highest snapshot position.
func (b *Board) RestoreColumn(ctx context.Context, snap ColumnSnapshot) error {
	return b.mutate(ctx, "restore-column", func() (Change, error) {
		current := make([]Task, len(snap.Tasks))
		statuses := []string{snap.Status}
		members := make(map[int64]bool, len(snap.Tasks))
		top := -1
		for i, t := range snap.Tasks {
			cur, err := b.Task(ctx, t.ID)
			if err != nil {
				return Change{}, err
			}
			current[i] = cur
			members[t.ID] = true
			if t.Position > top {
				top = t.Position
			}
			if !contains(statuses, cur.Status) {
				statuses = append(statuses, cur.Status)
			}
		}
		vs, err := b.readVersions(ctx, statuses...)
		if err != nil {
			return Change{}, err
		}
		if err := b.confirmStatus(ctx, current...); err != nil {
			return Change{}, err
		}
		column, err := b.Column(ctx, snap.Status)
		if err != nil {
			return Change{}, err
		}
		if err := b.bumpVersions(ctx, vs); err != nil {
			return Change{}, err
		}
		writes := 0
		for i, t := range snap.Tasks {
			cur := current[i]
			switch {
			case cur.Status != snap.Status:
				_, err = b.store.SetTaskStatusAndPosition(ctx, t.ID, snap.Status, t.Position)
			case cur.Position != t.Position:
				_, err = b.store.SetTaskPosition(ctx, t.ID, t.Position)
			default:
				continue
			}
			if err != nil {
				return Change{}, fmt.Errorf("restore task %d in %q: %w", t.ID, snap.Status, err)
			}
			writes++
		}
		next := top + 1
		for _, t := range column {
			if members[t.ID] {
				continue
			}
			if t.Position != next {
				if _, err := b.store.SetTaskPosition(ctx, t.ID, next); err != nil {
					return Change{}, fmt.Errorf("shift task %d in %q: %w", t.ID, snap.Status, err)
				}
				writes++
			}
			next++
		}
		b.logger.WithFields(log.Fields{"status": snap.Status, "writes": writes}).Debug("column restored")
		return Change{Type: ColumnRestored, Statuses: statuses}, nil
	})
}

func (b *Board) mutate(ctx context.Context, op string, fn func() (Change, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for attempt := 0; ; attempt++ {
		ch, err := fn()
		if err == nil {
			b.publish(ctx, ch)
			return nil
		}
		if !errors.Is(err, ErrConcurrencyConflict) || attempt >= b.retries {
			return err
		}
		b.logger.WithError(err).WithFields(log.Fields{"op": op, "attempt": attempt + 1}).Warn("column changed during mutation, retrying")
	}
}

func (b *Board) publish(ctx context.Context, ch Change) {
	if b.notifier == nil {
		return
	}
	ch.Origin = b.origin
	ch.Time = nextTimestamp()
	if err := b.notifier.Publish(ctx, ch); err != nil {
		b.logger.WithError(err).WithField("type", ch.Type).Error("unable to publish board change")
	}
}

type columnVersion struct {
	status  string
	version int64
}

func (b *Board) readVersions(ctx context.Context, statuses ...string) ([]columnVersion, error) {
	vs := make([]columnVersion, 0, len(statuses))
	seen := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		if seen[s] {
			continue
		}
		seen[s] = true
		v, err := b.versions.Version(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("read version of %q: %w", s, err)
		}
		vs = append(vs, columnVersion{status: s, version: v})
	}
	return vs, nil
}

func (b *Board) bumpVersions(ctx context.Context, vs []columnVersion) error {
	for _, v := range vs {
		if _, err := b.versions.Bump(ctx, v.status, v.version); err != nil {
			return err
		}
	}
	return nil
}

// confirmStatus re-reads tasks after their column versions were read. A
// task that changed column in between would escape the version check.
func (b *Board) confirmStatus(ctx context.Context, tasks ...Task) error {
	for _, t := range tasks {
		cur, err := b.Task(ctx, t.ID)
		if err != nil {
			return err
		}
		if cur.Status != t.Status {
			return fmt.Errorf("task %d moved from %q to %q: %w", t.ID, t.Status, cur.Status, ErrConcurrencyConflict)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
