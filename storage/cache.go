package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kanban-board/domain"
)

// fillScript stores a column listing only while the column's generation is
// still the one read before the backing store was queried.
var fillScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// Cache wraps a TaskStore with a Redis read-through cache for column
// listings. Every write bumps the generation of the columns it may have
// changed and evicts them, so a listing read before the write can no longer
// be cached after it.
type Cache struct {
	base      domain.TaskStore
	redis     *redis.Client
	ttl       time.Duration
	prefix    string
	genPrefix string
	logger    *log.Logger
}

// NewCache creates a caching wrapper around base. Columns are cached under
// keys scoped by boardID.
func NewCache(base domain.TaskStore, client *redis.Client, boardID string, ttl time.Duration, logger *log.Logger) *Cache {
	if base == nil {
		panic("storage.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	if boardID == "" {
		boardID = "default"
	}
	return &Cache{
		base:      base,
		redis:     client,
		ttl:       ttl,
		prefix:    "col:" + boardID + ":",
		genPrefix: "colgen:" + boardID + ":",
		logger:    logger,
	}
}

func (c *Cache) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	return c.base.GetTask(ctx, id)
}

func (c *Cache) ListTasksByStatus(ctx context.Context, status string) ([]domain.Task, error) {
	if tasks, ok := c.load(ctx, status); ok {
		return tasks, nil
	}
	gen, genOK := c.generation(ctx, status)
	tasks, err := c.base.ListTasksByStatus(ctx, status)
	if err != nil {
		return nil, err
	}
	if genOK {
		c.store(ctx, status, gen, tasks)
	}
	return tasks, nil
}

func (c *Cache) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	created, err := c.base.CreateTask(ctx, t)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, created.Status)
	return created, nil
}

func (c *Cache) SetTaskStatusAndPosition(ctx context.Context, id int64, status string, position int) (domain.Task, error) {
	prev, err := c.base.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	t, err := c.base.SetTaskStatusAndPosition(ctx, id, status, position)
	c.evict(ctx, prev.Status, status)
	return t, err
}

func (c *Cache) SetTaskPosition(ctx context.Context, id int64, position int) (domain.Task, error) {
	t, err := c.base.SetTaskPosition(ctx, id, position)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, t.Status)
	return t, nil
}

func (c *Cache) DeleteTask(ctx context.Context, id int64) (bool, error) {
	prev, err := c.base.GetTask(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	ok, err := c.base.DeleteTask(ctx, id)
	c.evict(ctx, prev.Status)
	return ok, err
}

func (c *Cache) load(ctx context.Context, status string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	key := c.key(status)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing store without failing.
			c.logger.WithError(err).WithField("key", key).Warn("column cache read failed")
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := sonic.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) generation(ctx context.Context, status string) (string, bool) {
	if c.redis == nil || c.ttl == 0 {
		return "", false
	}
	gen, err := c.redis.Get(ctx, c.genKey(status)).Result()
	switch {
	case err == redis.Nil:
		return "0", true
	case err != nil:
		c.logger.WithError(err).WithField("status", status).Warn("column generation read failed")
		return "", false
	}
	return gen, true
}

func (c *Cache) store(ctx context.Context, status, gen string, tasks []domain.Task) {
	data, err := sonic.Marshal(tasks)
	if err != nil {
		return
	}
	keys := []string{c.key(status), c.genKey(status)}
	if err := fillScript.Run(ctx, c.redis, keys, gen, data, c.ttl.Milliseconds()).Err(); err != nil {
		c.logger.WithError(err).WithField("status", status).Warn("column cache fill failed")
	}
}

func (c *Cache) evict(ctx context.Context, statuses ...string) {
	if c.redis == nil {
		return
	}
	keys := make([]string, 0, len(statuses))
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, s := range statuses {
			pipe.Incr(ctx, c.genKey(s))
			keys = append(keys, c.key(s))
		}
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		c.logger.WithError(err).WithField("keys", keys).Error("column cache eviction failed")
	}
}

func (c *Cache) key(status string) string {
	return c.prefix + status
}

func (c *Cache) genKey(status string) string {
	return c.genPrefix + status
}
