package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"kanban-board/domain"
)

var bumpScript = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
if cur ~= tonumber(ARGV[2]) then
	return {0, cur}
end
return {1, redis.call('HINCRBY', KEYS[1], ARGV[1], 1)}
`)

// RedisVersions is a VersionTracker shared by every instance serving the
// same board. Versions live in one hash keyed by status.
type RedisVersions struct {
	redis *redis.Client
	key   string
}

func NewRedisVersions(client *redis.Client, boardID string) *RedisVersions {
	if boardID == "" {
		boardID = "default"
	}
	return &RedisVersions{redis: client, key: "colver:" + boardID}
}

func (v *RedisVersions) Version(ctx context.Context, status string) (int64, error) {
	n, err := v.redis.HGet(ctx, v.key, status).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (v *RedisVersions) Bump(ctx context.Context, status string, expected int64) (int64, error) {
	res, err := bumpScript.Run(ctx, v.redis, []string{v.key}, status, expected).Int64Slice()
	if err != nil {
		return 0, err
	}
	if len(res) != 2 {
		return 0, fmt.Errorf("unexpected bump reply %v", res)
	}
	if res[0] == 0 {
		return res[1], fmt.Errorf("column %q at version %d, expected %d: %w", status, res[1], expected, domain.ErrConcurrencyConflict)
	}
	return res[1], nil
}
