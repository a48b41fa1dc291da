package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanban-board/domain"
)

const headerIdempotencyKey = "Idempotency-Key"

var (
	errDuplicateRequest = errors.New("duplicate request")
	errInvalidBody      = errors.New("invalid body")
)

// Register wires up all board routes on the provided Echo instance. Every
// mutation runs through the history so it can be undone.
func Register(e *echo.Echo, d Deps) {
	if d.Board == nil || d.History == nil {
		panic("api.Register: board and history are required")
	}
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	if d.BoardID == "" {
		d.BoardID = "default"
	}

	e.GET("/healthz", healthz(d))

	g := e.Group("/api")
	g.GET("/columns", listColumns(d))
	g.GET("/columns/:status", getColumn(d))
	g.POST("/tasks", createTask(d))
	g.DELETE("/tasks/:id", deleteTask(d))
	g.POST("/tasks/:id/move", moveTask(d))
	g.POST("/tasks/:id/reorder", reorderTask(d))
	g.GET("/history", getHistory(d))
	g.POST("/history/undo", undo(d))
	g.POST("/history/redo", redo(d))
	if d.Changes != nil {
		g.GET("/stream", streamChanges(d))
	}
}

func healthz(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if _, err := d.Board.Column(ctx, d.Board.Statuses()[0]); err != nil {
			metricsFrom(c).SetError("store", err)
			return c.NoContent(http.StatusServiceUnavailable)
		}
		return c.NoContent(http.StatusOK)
	}
}

func listColumns(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		metricsFrom(c).SetOp("list-columns", 0)
		cols, err := d.Board.Columns(c.Request().Context())
		if err != nil {
			return respondError(c, d, "board", err)
		}
		return c.JSON(http.StatusOK, columnsResponse{Columns: cols, History: historyStatus(d.History)})
	}
}

func getColumn(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		status := c.Param("status")
		metricsFrom(c).SetOp("get-column", 0)
		tasks, err := d.Board.Column(c.Request().Context(), status)
		if err != nil {
			return respondError(c, d, "board", err)
		}
		return c.JSON(http.StatusOK, columnResponse{Status: status, Tasks: tasks, History: historyStatus(d.History)})
	}
}

func createTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		metricsFrom(c).SetOp("create", 0)
		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return respondError(c, d, "decode", err)
		}
		req.Title = strings.TrimSpace(req.Title)
		if req.Title == "" {
			return respondError(c, d, "validate", errors.New("title is required"))
		}
		cmd := domain.NewCreateCommand(d.Board, domain.Task{
			Title:       req.Title,
			Description: req.Description,
			Status:      strings.TrimSpace(req.Status),
			Type:        req.Type,
			DueDate:     req.DueDate,
		})
		if err := execute(c, d, record(d.History, cmd)); err != nil {
			return respondError(c, d, "board", err)
		}
		return c.JSON(http.StatusCreated, taskResponse{Task: cmd.Created(), History: historyStatus(d.History)})
	}
}

func deleteTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := taskIDParam(c)
		if err != nil {
			return respondError(c, d, "validate", err)
		}
		metricsFrom(c).SetOp("delete", id)
		cmd := domain.NewDeleteCommand(d.Board, id)
		if err := execute(c, d, record(d.History, cmd)); err != nil {
			return respondError(c, d, "board", err)
		}
		return c.JSON(http.StatusOK, taskResponse{Task: cmd.Deleted(), History: historyStatus(d.History)})
	}
}

func moveTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := taskIDParam(c)
		if err != nil {
			return respondError(c, d, "validate", err)
		}
		metricsFrom(c).SetOp("move", id)
		var req moveTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return respondError(c, d, "decode", err)
		}
		req.Status = strings.TrimSpace(req.Status)
		if req.Status == "" {
			return respondError(c, d, "validate", errors.New("status is required"))
		}
		opts := domain.MoveOptions{TargetTaskID: req.TargetTaskID, PlaceBefore: req.PlaceBefore, ToTop: req.ToTop}
		cmd := domain.NewMoveCommandWithOptions(d.Board, id, req.Status, opts, domain.WithExactUndo(d.ExactMoveUndo))
		if err := execute(c, d, record(d.History, cmd)); err != nil {
			return respondError(c, d, "board", err)
		}
		tasks, err := d.Board.Column(c.Request().Context(), req.Status)
		if err != nil {
			return respondError(c, d, "board", err)
		}
		return c.JSON(http.StatusOK, columnResponse{Status: req.Status, Tasks: tasks, History: historyStatus(d.History)})
	}
}

func reorderTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := taskIDParam(c)
		if err != nil {
			return respondError(c, d, "validate", err)
		}
		metricsFrom(c).SetOp("reorder", id)
		var req reorderTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return respondError(c, d, "decode", err)
		}
		if req.TargetTaskID == nil {
			return respondError(c, d, "validate", errors.New("targetTaskId is required"))
		}
		cmd := domain.NewReorderTaskCommand(d.Board, id, *req.TargetTaskID, req.PlaceBefore)
		if err := execute(c, d, record(d.History, cmd)); err != nil {
			return respondError(c, d, "board", err)
		}
		column := cmd.Column()
		return c.JSON(http.StatusOK, columnResponse{Status: column[0].Status, Tasks: column, History: historyStatus(d.History)})
	}
}

func getHistory(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		metricsFrom(c).SetOp("history", 0)
		return c.JSON(http.StatusOK, d.History.State())
	}
}

func undo(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		metricsFrom(c).SetOp("undo", 0)
		if err := execute(c, d, d.History.Undo); err != nil {
			return respondError(c, d, "board", err)
		}
		return c.JSON(http.StatusOK, d.History.State())
	}
}

func redo(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		metricsFrom(c).SetOp("redo", 0)
		if err := execute(c, d, d.History.Redo); err != nil {
			return respondError(c, d, "board", err)
		}
		return c.JSON(http.StatusOK, d.History.State())
	}
}

func record(h *domain.History, cmd domain.Command) func(context.Context) error {
	return func(ctx context.Context) error { return h.ExecuteCommand(ctx, cmd) }
}

// execute runs a mutation once per Idempotency-Key. The key is released
// again when the mutation fails so the client may retry.
func execute(c echo.Context, d Deps, run func(context.Context) error) error {
	m := metricsFrom(c)
	ctx := c.Request().Context()

	key := strings.TrimSpace(c.Request().Header.Get(headerIdempotencyKey))
	recorded := false
	if key != "" && d.Deduper != nil {
		m.SetIdempotent(true)
		added, err := d.Deduper.Add(ctx, d.BoardID, key)
		switch {
		case err != nil:
			d.Logger.WithError(err).WithField("key", key).Warn("idempotency check failed, processing request")
		case !added:
			return errDuplicateRequest
		default:
			recorded = true
		}
	}

	start := time.Now()
	err := run(ctx)
	m.ObserveBoard(time.Since(start))

	if err != nil && recorded {
		if rerr := d.Deduper.Remove(context.WithoutCancel(ctx), d.BoardID, key); rerr != nil {
			d.Logger.Errorf("dedupe rollback failed, err: %v, key: %s, board: %s", rerr, key, d.BoardID)
		}
	}
	return err
}

func decodeBody(c echo.Context, v any) error {
	dec := sonic.ConfigStd.NewDecoder(c.Request().Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errInvalidBody
	}
	return nil
}

func taskIDParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid task id")
	}
	return id, nil
}

func historyStatus(h *domain.History) domain.HistoryStatus {
	return domain.HistoryStatus{CanUndo: h.CanUndo(), CanRedo: h.CanRedo()}
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidOperation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrCrossColumnViolation),
		errors.Is(err, domain.ErrConcurrencyConflict),
		errors.Is(err, errDuplicateRequest):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c echo.Context, d Deps, stage string, err error) error {
	status := http.StatusBadRequest
	if stage == "board" {
		status = statusForError(err)
	}
	metricsFrom(c).SetError(stage, err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		d.Logger.WithError(err).WithField("path", c.Path()).Error("board request failed")
		msg = "internal error"
	}
	return c.JSON(status, errorResponse{Error: msg})
}
