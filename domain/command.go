package domain

import (
	"context"
	"fmt"
)

// Command is a reversible board action.
type Command interface {
	Description() string
	Execute(ctx context.Context) error
	Undo(ctx context.Context) error
}

// FuncCommand builds a Command from closures.
type FuncCommand struct {
	Desc      string
	ExecuteFn func(ctx context.Context) error
	UndoFn    func(ctx context.Context) error
}

func (c FuncCommand) Description() string { return c.Desc }

func (c FuncCommand) Execute(ctx context.Context) error { return c.ExecuteFn(ctx) }

func (c FuncCommand) Undo(ctx context.Context) error { return c.UndoFn(ctx) }

// MoveCommand moves a task to another column. By default its undo moves the
// task back to the top of the column it came from; with exact undo the
// source column layout captured at execute time is written back verbatim.
type MoveCommand struct {
	board        *Board
	taskID       int64
	targetStatus string
	placement    Placement
	options      *MoveOptions
	exact        bool

	sourceStatus string
	snapshot     *ColumnSnapshot
}

// MoveCommandOption configures a MoveCommand.
type MoveCommandOption func(*MoveCommand)

// WithExactUndo makes undo restore the source column exactly.
func WithExactUndo(exact bool) MoveCommandOption {
	return func(c *MoveCommand) { c.exact = exact }
}

// NewMoveCommand moves taskID to targetStatus at placement p.
func NewMoveCommand(b *Board, taskID int64, targetStatus string, p Placement, opts ...MoveCommandOption) *MoveCommand {
	c := &MoveCommand{board: b, taskID: taskID, targetStatus: targetStatus, placement: p}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewMoveCommandWithOptions moves taskID according to a UI drop payload.
func NewMoveCommandWithOptions(b *Board, taskID int64, targetStatus string, mo MoveOptions, opts ...MoveCommandOption) *MoveCommand {
	c := NewMoveCommand(b, taskID, targetStatus, Bottom(), opts...)
	c.options = &mo
	return c
}

func (c *MoveCommand) Description() string {
	return fmt.Sprintf("move task %d to %s", c.taskID, c.targetStatus)
}

// SourceStatus is the column the task left on the last execute.
func (c *MoveCommand) SourceStatus() string { return c.sourceStatus }

func (c *MoveCommand) Execute(ctx context.Context) error {
	resolve := fixedPlacement(c.placement)
	if c.options != nil {
		resolve = c.board.optionsPlacement(*c.options)
	}
	res, err := c.board.move(ctx, c.taskID, c.targetStatus, resolve, c.exact)
	if err != nil {
		return err
	}
	c.sourceStatus = res.source
	c.snapshot = res.snapshot
	return nil
}

func (c *MoveCommand) Undo(ctx context.Context) error {
	if c.snapshot != nil {
		return c.board.RestoreColumn(ctx, *c.snapshot)
	}
	return c.board.MoveTask(ctx, c.taskID, c.sourceStatus, Top())
}

// ReorderCommand places a task before or after another task of its column
// and undoes it by writing the column layout read by the reorder back
// verbatim.
type ReorderCommand struct {
	board    *Board
	taskID   int64
	targetID int64
	before   bool

	snapshot ColumnSnapshot
	column   []Task
}

// NewReorderTaskCommand places taskID before or after targetID. The column is
// resolved from the task when the command executes.
func NewReorderTaskCommand(b *Board, taskID, targetID int64, before bool) *ReorderCommand {
	return &ReorderCommand{board: b, taskID: taskID, targetID: targetID, before: before}
}

func (c *ReorderCommand) Description() string {
	side := "after"
	if c.before {
		side = "before"
	}
	return fmt.Sprintf("reorder task %d %s %d", c.taskID, side, c.targetID)
}

// Column is the column returned by the last successful execute.
func (c *ReorderCommand) Column() []Task { return c.column }

func (c *ReorderCommand) Execute(ctx context.Context) error {
	snap, column, err := c.board.reorder(ctx, c.taskID, c.targetID, c.before)
	if err != nil {
		return err
	}
	c.snapshot = snap
	c.column = column
	return nil
}

func (c *ReorderCommand) Undo(ctx context.Context) error {
	return c.board.RestoreColumn(ctx, c.snapshot)
}

// CreateCommand adds a task at the bottom of its column. Redo recreates the
// task under the id it received on the first execute.
type CreateCommand struct {
	board   *Board
	draft   Task
	created Task
}

func NewCreateCommand(b *Board, draft Task) *CreateCommand {
	return &CreateCommand{board: b, draft: draft}
}

func (c *CreateCommand) Description() string {
	return fmt.Sprintf("create task %q", c.draft.Title)
}

// Created is the task stored by the last execute.
func (c *CreateCommand) Created() Task { return c.created }

func (c *CreateCommand) Execute(ctx context.Context) error {
	draft := c.draft
	if c.created.ID != 0 {
		draft.ID = c.created.ID
		draft.CreatedAt = c.created.CreatedAt
	}
	t, err := c.board.CreateTask(ctx, draft)
	if err != nil {
		return err
	}
	c.created = t
	return nil
}

func (c *CreateCommand) Undo(ctx context.Context) error {
	_, err := c.board.DeleteTask(ctx, c.created.ID)
	return err
}

// DeleteCommand removes a task; undo puts the record back unchanged.
type DeleteCommand struct {
	board   *Board
	taskID  int64
	deleted Task
}

func NewDeleteCommand(b *Board, taskID int64) *DeleteCommand {
	return &DeleteCommand{board: b, taskID: taskID}
}

func (c *DeleteCommand) Description() string {
	return fmt.Sprintf("delete task %d", c.taskID)
}

// Deleted is the record removed by the last execute.
func (c *DeleteCommand) Deleted() Task { return c.deleted }

func (c *DeleteCommand) Execute(ctx context.Context) error {
	t, err := c.board.DeleteTask(ctx, c.taskID)
	if err != nil {
		return err
	}
	c.deleted = t
	return nil
}

func (c *DeleteCommand) Undo(ctx context.Context) error {
	_, err := c.board.RestoreTask(ctx, c.deleted)
	return err
}
