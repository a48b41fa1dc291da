package domain

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// History is the undo/redo log. Executed commands sit on past, undone ones
// on future; executing a new command discards future. Only one transition
// runs at a time.
type History struct {
	run sync.Mutex

	mu     sync.RWMutex
	past   []entry
	future []entry

	limit    int
	notifier Notifier
	logger   *log.Logger
}

type entry struct {
	id         string
	cmd        Command
	executedAt time.Time
}

// Entry describes a command held by the history.
type Entry struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	ExecutedAt  time.Time `json:"executedAt"`
}

// HistoryState is a read-only view of both stacks, oldest first.
type HistoryState struct {
	Past    []Entry `json:"past"`
	Future  []Entry `json:"future"`
	CanUndo bool    `json:"canUndo"`
	CanRedo bool    `json:"canRedo"`
}

// HistoryOption configures a History.
type HistoryOption func(*History)

// WithLimit caps the number of undoable commands; the oldest ones are
// dropped first. Zero means unbounded.
func WithLimit(n int) HistoryOption {
	return func(h *History) {
		if n >= 0 {
			h.limit = n
		}
	}
}

func WithHistoryNotifier(n Notifier) HistoryOption {
	return func(h *History) { h.notifier = n }
}

func WithHistoryLogger(l *log.Logger) HistoryOption {
	return func(h *History) {
		if l != nil {
			h.logger = l
		}
	}
}

func NewHistory(opts ...HistoryOption) *History {
	h := &History{logger: log.StandardLogger()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ExecuteCommand runs cmd and records it. A failed command leaves both
// stacks untouched.
func (h *History) ExecuteCommand(ctx context.Context, cmd Command) error {
	h.run.Lock()
	defer h.run.Unlock()

	if err := cmd.Execute(ctx); err != nil {
		h.logger.WithError(err).WithField("command", cmd.Description()).Debug("command failed")
		return err
	}
	h.mu.Lock()
	h.past = append(h.past, entry{id: uuid.NewString(), cmd: cmd, executedAt: time.Now().UTC()})
	h.trimLocked()
	h.future = nil
	h.mu.Unlock()

	h.logger.WithField("command", cmd.Description()).Debug("command executed")
	h.publish(ctx)
	return nil
}

// Undo reverts the most recent command. It is a no-op when there is nothing
// to undo. A command whose undo fails is dropped rather than returned to
// past, since the board state it referred to has already changed.
func (h *History) Undo(ctx context.Context) error {
	h.run.Lock()
	defer h.run.Unlock()

	h.mu.Lock()
	if len(h.past) == 0 {
		h.mu.Unlock()
		return nil
	}
	e := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	h.mu.Unlock()

	if err := e.cmd.Undo(ctx); err != nil {
		h.logger.WithError(err).WithField("command", e.cmd.Description()).Error("undo failed, command dropped from history")
		h.publish(ctx)
		return err
	}
	h.mu.Lock()
	h.future = append(h.future, e)
	h.mu.Unlock()

	h.logger.WithField("command", e.cmd.Description()).Debug("command undone")
	h.publish(ctx)
	return nil
}

// Redo re-executes the most recently undone command. It is a no-op when
// there is nothing to redo. Like undo, a failed redo drops the command.
func (h *History) Redo(ctx context.Context) error {
	h.run.Lock()
	defer h.run.Unlock()

	h.mu.Lock()
	if len(h.future) == 0 {
		h.mu.Unlock()
		return nil
	}
	e := h.future[len(h.future)-1]
	h.future = h.future[:len(h.future)-1]
	h.mu.Unlock()

	if err := e.cmd.Execute(ctx); err != nil {
		h.logger.WithError(err).WithField("command", e.cmd.Description()).Error("redo failed, command dropped from history")
		h.publish(ctx)
		return err
	}
	h.mu.Lock()
	e.executedAt = time.Now().UTC()
	h.past = append(h.past, e)
	h.trimLocked()
	h.mu.Unlock()

	h.logger.WithField("command", e.cmd.Description()).Debug("command redone")
	h.publish(ctx)
	return nil
}

func (h *History) CanUndo() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.past) > 0
}

func (h *History) CanRedo() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.future) > 0
}

// State returns both stacks.
func (h *History) State() HistoryState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HistoryState{
		Past:    describe(h.past),
		Future:  describe(h.future),
		CanUndo: len(h.past) > 0,
		CanRedo: len(h.future) > 0,
	}
}

func (h *History) trimLocked() {
	if h.limit > 0 && len(h.past) > h.limit {
		drop := len(h.past) - h.limit
		h.past = append([]entry(nil), h.past[drop:]...)
	}
}

func (h *History) publish(ctx context.Context) {
	if h.notifier == nil {
		return
	}
	ch := Change{
		Type:    HistoryChanged,
		History: &HistoryStatus{CanUndo: h.CanUndo(), CanRedo: h.CanRedo()},
		Time:    nextTimestamp(),
	}
	if err := h.notifier.Publish(ctx, ch); err != nil {
		h.logger.WithError(err).Error("unable to publish history change")
	}
}

func describe(entries []entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = Entry{ID: e.id, Description: e.cmd.Description(), ExecutedAt: e.executedAt}
	}
	return out
}
