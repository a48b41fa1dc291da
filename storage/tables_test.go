package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"kanban-board/domain"
)

func TestTaskEntityCarriesEdmTypes(t *testing.T) {
	due := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	ent := toEntity("board-1", domain.Task{
		ID:        42,
		Title:     "ship",
		Status:    domain.StatusInProgress,
		Position:  3,
		DueDate:   &due,
		CreatedAt: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	})
	if ent.PartitionKey != "board-1" || ent.RowKey != "0000000000000000042" {
		t.Fatalf("unexpected keys: %s/%s", ent.PartitionKey, ent.RowKey)
	}
	payload, err := sonic.MarshalString(ent)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, want := range []string{`"TaskId":"42"`, `"TaskId@odata.type":"Edm.Int64"`, `"DueDate@odata.type":"Edm.DateTime"`, `"CreatedAt@odata.type":"Edm.DateTime"`} {
		if !strings.Contains(payload, want) {
			t.Fatalf("payload %s missing %s", payload, want)
		}
	}

	var back taskEntity
	if err := sonic.UnmarshalString(payload, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got := back.task()
	if got.ID != 42 || got.Status != domain.StatusInProgress || got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Fatalf("unexpected task: %+v", got)
	}
}

func TestTaskEntityOmitsMissingDueDate(t *testing.T) {
	payload, err := sonic.MarshalString(toEntity("b", domain.Task{ID: 1, Status: domain.StatusTodo}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(payload, "DueDate") {
		t.Fatalf("payload must not carry a due date: %s", payload)
	}
}

func TestQuoteEscapesFilterValues(t *testing.T) {
	if got := quote("it's"); got != "it''s" {
		t.Fatalf("quote = %q", got)
	}
}
