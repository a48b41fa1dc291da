package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"kanban-board/domain"
)

// ErrFeedUnavailable is returned when a change cannot be handed to a feed
// worker in time or the feed is closed.
var ErrFeedUnavailable = errors.New("change feed unavailable")

type queueSender interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// FeedConfig sizes the change feed worker pool.
type FeedConfig struct {
	Workers        int
	Buffer         int
	EnqueueTimeout time.Duration
	HandoffTimeout time.Duration
}

func (c FeedConfig) withDefaults() FeedConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Buffer <= 0 {
		c.Buffer = 1024
	}
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = 60 * time.Second
	}
	if c.HandoffTimeout < 0 {
		c.HandoffTimeout = 0
	}
	return c
}

// ChangeFeed forwards committed board changes to an Azure queue for
// downstream consumers. Publish only hands the change to a worker; the
// enqueue itself happens in the background.
type ChangeFeed struct {
	queue  queueSender
	cfg    FeedConfig
	logger *log.Logger

	mu     sync.RWMutex
	jobs   chan domain.Change
	wg     sync.WaitGroup
	closed bool
}

// NewChangeFeed connects to queueName and starts the worker pool.
func NewChangeFeed(connStr, queueName string, cfg FeedConfig, logger *log.Logger) (*ChangeFeed, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, err
	}
	return newChangeFeed(q, cfg, logger), nil
}

func newChangeFeed(q queueSender, cfg FeedConfig, logger *log.Logger) *ChangeFeed {
	if logger == nil {
		panic("Logger is not initialized")
	}
	cfg = cfg.withDefaults()
	f := &ChangeFeed{queue: q, cfg: cfg, logger: logger, jobs: make(chan domain.Change, cfg.Buffer)}
	for i := 0; i < cfg.Workers; i++ {
		f.wg.Add(1)
		go f.worker(i)
	}
	logger.Infof("change feed started, workers: %d, buffer: %d, timeout: %v, handoff: %v", cfg.Workers, cfg.Buffer, cfg.EnqueueTimeout, cfg.HandoffTimeout)
	return f
}

// Publish implements domain.Notifier.
func (f *ChangeFeed) Publish(_ context.Context, c domain.Change) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ErrFeedUnavailable
	}
	select {
	case f.jobs <- c:
		return nil
	default:
	}
	if f.cfg.HandoffTimeout <= 0 {
		return ErrFeedUnavailable
	}
	timer := time.NewTimer(f.cfg.HandoffTimeout)
	defer timer.Stop()
	select {
	case f.jobs <- c:
		return nil
	case <-timer.C:
		return ErrFeedUnavailable
	}
}

// Close stops accepting changes and waits for queued ones to be sent.
func (f *ChangeFeed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	close(f.jobs)
	f.mu.Unlock()
	f.wg.Wait()
}

func (f *ChangeFeed) worker(id int) {
	defer f.wg.Done()
	for c := range f.jobs {
		payload, err := sonic.MarshalString(c)
		if err != nil {
			f.logger.Errorf("change encode failed, err: %v, type: %s", err, c.Type)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), f.cfg.EnqueueTimeout)
		_, err = f.queue.EnqueueMessage(ctx, payload, nil)
		cancel()
		if err != nil {
			f.logger.Errorf("change enqueue failed, err: %v, type: %s, task: %d, worker: %d", err, c.Type, c.TaskID, id)
		}
	}
}
