package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"kanban-board/domain"
)

const (
	edmInt64    = "Edm.Int64"
	edmDateTime = "Edm.DateTime"

	counterRowKey   = "~counter"
	maxCounterTries = 10
)

// TableStore keeps the tasks of one board in a single Azure table
// partition. Row keys are zero-padded ids so a partition scan returns tasks
// in creation order.
type TableStore struct {
	table   *aztables.Client
	boardID string
}

// NewTableStore creates a TableStore from the given connection string.
func NewTableStore(connStr, tasksTable, boardID string) (*TableStore, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return NewTableStoreFromClient(svc.NewClient(tasksTable), boardID), nil
}

// NewTableStoreFromClient wraps an existing table client.
func NewTableStoreFromClient(table *aztables.Client, boardID string) *TableStore {
	if boardID == "" {
		boardID = "default"
	}
	return &TableStore{table: table, boardID: boardID}
}

type taskEntity struct {
	PartitionKey  string     `json:"PartitionKey"`
	RowKey        string     `json:"RowKey"`
	TaskID        int64      `json:"TaskId,string"`
	TaskIDType    string     `json:"TaskId@odata.type"`
	Title         string     `json:"Title"`
	Description   string     `json:"Description"`
	Status        string     `json:"Status"`
	Type          string     `json:"Type"`
	Position      int        `json:"Position"`
	DueDate       *time.Time `json:"DueDate,omitempty"`
	DueDateType   string     `json:"DueDate@odata.type,omitempty"`
	CreatedAt     time.Time  `json:"CreatedAt"`
	CreatedAtType string     `json:"CreatedAt@odata.type"`
}

type taskPlacementUpdate struct {
	PartitionKey string  `json:"PartitionKey"`
	RowKey       string  `json:"RowKey"`
	Status       *string `json:"Status,omitempty"`
	Position     int     `json:"Position"`
}

type counterEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Next         int64  `json:"Next,string"`
	NextType     string `json:"Next@odata.type"`
}

func rowKey(id int64) string {
	return fmt.Sprintf("%019d", id)
}

func toEntity(boardID string, t domain.Task) taskEntity {
	ent := taskEntity{
		PartitionKey:  boardID,
		RowKey:        rowKey(t.ID),
		TaskID:        t.ID,
		TaskIDType:    edmInt64,
		Title:         t.Title,
		Description:   t.Description,
		Status:        t.Status,
		Type:          t.Type,
		Position:      t.Position,
		CreatedAt:     t.CreatedAt.UTC(),
		CreatedAtType: edmDateTime,
	}
	if t.DueDate != nil {
		d := t.DueDate.UTC()
		ent.DueDate = &d
		ent.DueDateType = edmDateTime
	}
	return ent
}

func (e taskEntity) task() domain.Task {
	t := domain.Task{
		ID:          e.TaskID,
		Title:       e.Title,
		Description: e.Description,
		Status:      e.Status,
		Type:        e.Type,
		Position:    e.Position,
		CreatedAt:   e.CreatedAt.UTC(),
	}
	if e.DueDate != nil {
		d := e.DueDate.UTC()
		t.DueDate = &d
	}
	return t
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

func (s *TableStore) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	resp, err := s.table.GetEntity(ctx, s.boardID, rowKey(id), nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return domain.Task{}, fmt.Errorf("task %d: %w", id, domain.ErrNotFound)
		}
		return domain.Task{}, err
	}
	var ent taskEntity
	if err := sonic.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Task{}, err
	}
	return ent.task(), nil
}

func (s *TableStore) ListTasksByStatus(ctx context.Context, status string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + quote(s.boardID) + "' and Status eq '" + quote(status) + "'"
	pager := s.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent taskEntity
			if err := sonic.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			tasks = append(tasks, ent.task())
		}
	}
	return tasks, nil
}

// CreateTask adds t to the partition. A zero id is taken from the board's
// counter entity; a non-zero id must be free.
func (s *TableStore) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	if t.ID == 0 {
		id, err := s.nextID(ctx)
		if err != nil {
			return domain.Task{}, fmt.Errorf("allocate task id: %w", err)
		}
		t.ID = id
	}
	payload, err := sonic.Marshal(toEntity(s.boardID, t))
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.table.AddEntity(ctx, payload, nil); err != nil {
		if isStatus(err, http.StatusConflict) {
			return domain.Task{}, fmt.Errorf("task %d already exists: %w", t.ID, domain.ErrInvalidOperation)
		}
		return domain.Task{}, err
	}
	return t, nil
}

func (s *TableStore) SetTaskStatusAndPosition(ctx context.Context, id int64, status string, position int) (domain.Task, error) {
	return s.updatePlacement(ctx, id, &status, position)
}

func (s *TableStore) SetTaskPosition(ctx context.Context, id int64, position int) (domain.Task, error) {
	return s.updatePlacement(ctx, id, nil, position)
}

func (s *TableStore) updatePlacement(ctx context.Context, id int64, status *string, position int) (domain.Task, error) {
	payload, err := sonic.Marshal(taskPlacementUpdate{
		PartitionKey: s.boardID,
		RowKey:       rowKey(id),
		Status:       status,
		Position:     position,
	})
	if err != nil {
		return domain.Task{}, err
	}
	et := azcore.ETagAny
	_, err = s.table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return domain.Task{}, fmt.Errorf("task %d: %w", id, domain.ErrNotFound)
		}
		return domain.Task{}, err
	}
	return s.GetTask(ctx, id)
}

func (s *TableStore) DeleteTask(ctx context.Context, id int64) (bool, error) {
	if _, err := s.table.DeleteEntity(ctx, s.boardID, rowKey(id), nil); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// nextID increments the partition's counter entity using ETag concurrency.
func (s *TableStore) nextID(ctx context.Context) (int64, error) {
	for i := 0; i < maxCounterTries; i++ {
		resp, err := s.table.GetEntity(ctx, s.boardID, counterRowKey, nil)
		if err != nil {
			if !isStatus(err, http.StatusNotFound) {
				return 0, err
			}
			payload, err := sonic.Marshal(counterEntity{PartitionKey: s.boardID, RowKey: counterRowKey, Next: 1, NextType: edmInt64})
			if err != nil {
				return 0, err
			}
			if _, err := s.table.AddEntity(ctx, payload, nil); err != nil {
				if isStatus(err, http.StatusConflict) {
					continue
				}
				return 0, err
			}
			return 1, nil
		}
		var ctr counterEntity
		if err := sonic.Unmarshal(resp.Value, &ctr); err != nil {
			return 0, err
		}
		ctr.Next++
		ctr.NextType = edmInt64
		payload, err := sonic.Marshal(ctr)
		if err != nil {
			return 0, err
		}
		et := resp.ETag
		if _, err := s.table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace}); err != nil {
			if isStatus(err, http.StatusPreconditionFailed) {
				continue
			}
			return 0, err
		}
		return ctr.Next, nil
	}
	return 0, fmt.Errorf("task id counter for board %s: %w", s.boardID, domain.ErrConcurrencyConflict)
}

func quote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

