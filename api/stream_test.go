package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"kanban-board/domain"
)

type sseEvent struct {
	name string
	data string
}

func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.name != "" {
				return ev
			}
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestStreamSendsSnapshotThenChanges(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.e)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/stream", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", ct)
	}
	r := bufio.NewReader(resp.Body)

	snap := readEvent(t, r)
	if snap.name != "snapshot" {
		t.Fatalf("expected snapshot first, got %q", snap.name)
	}
	var cols columnsResponse
	if err := sonic.UnmarshalString(snap.data, &cols); err != nil || len(cols.Columns) != 3 {
		t.Fatalf("unexpected snapshot %q: %v", snap.data, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.changes.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if rec := s.do(http.MethodPost, "/api/tasks/3/reorder", `{"targetTaskId":1,"placeBefore":true}`); rec.Code != http.StatusOK {
		t.Fatalf("reorder: expected status 200 got %d", rec.Code)
	}

	var changes []domain.Change
	for len(changes) < 2 {
		ev := readEvent(t, r)
		if ev.name != "change" {
			t.Fatalf("unexpected event %q", ev.name)
		}
		var c domain.Change
		if err := sonic.UnmarshalString(ev.data, &c); err != nil {
			t.Fatalf("decode change: %v", err)
		}
		changes = append(changes, c)
	}
	if changes[0].Type != domain.TaskReordered || changes[0].TaskID != 3 || len(changes[0].Columns[domain.StatusTodo]) != 3 {
		t.Fatalf("unexpected board change: %#v", changes[0])
	}
	if changes[1].Type != domain.HistoryChanged || changes[1].History == nil || !changes[1].History.CanUndo {
		t.Fatalf("unexpected history change: %#v", changes[1])
	}
}
