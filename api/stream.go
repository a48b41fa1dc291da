package api

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

// streamChanges sends the current board as a snapshot event followed by one
// change event per committed mutation.
func streamChanges(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		metricsFrom(c).SetOp("stream", 0)
		res := c.Response()
		flusher, ok := res.Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		ctx := c.Request().Context()

		changes, unsubscribe := d.Changes.Subscribe()
		defer unsubscribe()

		cols, err := d.Board.Columns(ctx)
		if err != nil {
			return respondError(c, d, "board", err)
		}

		res.Header().Set(echo.HeaderContentType, "text/event-stream")
		res.Header().Set(echo.HeaderCacheControl, "no-cache")
		res.Header().Set(echo.HeaderConnection, "keep-alive")
		res.Header().Set("X-Accel-Buffering", "no")
		res.WriteHeader(http.StatusOK)

		if err := writeEvent(res, "snapshot", columnsResponse{Columns: cols, History: historyStatus(d.History)}); err != nil {
			return err
		}
		flusher.Flush()

		var keepAlive <-chan time.Time
		if d.KeepAlive > 0 {
			ticker := time.NewTicker(d.KeepAlive)
			defer ticker.Stop()
			keepAlive = ticker.C
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case ch, ok := <-changes:
				if !ok {
					return nil
				}
				if err := writeEvent(res, "change", ch); err != nil {
					d.Logger.WithError(err).Debug("stream write failed")
					return nil
				}
				flusher.Flush()
			case <-keepAlive:
				if _, err := io.WriteString(res, ": keep-alive\n\n"); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w io.Writer, name string, v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
