package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"transcode-service/internal/entity"
)

type hashClient interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisMirror copies every snapshot into a "job:<id>" hash so other
// processes can read progress without calling the API.
type RedisMirror struct {
	rdb hashClient
	ttl time.Duration
}

func NewRedisMirror(rdb hashClient, ttl time.Duration) *RedisMirror {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisMirror{rdb: rdb, ttl: ttl}
}

func mirrorKey(jobID string) string {
	return "job:" + jobID
}

func (m *RedisMirror) Notify(ctx context.Context, job entity.Job) error {
	key := mirrorKey(job.ID)
	fields := []interface{}{
		"status", string(job.Status),
		"progress", strconv.Itoa(job.Progress),
		"preset", string(job.Preset),
		"filename", job.Filename,
		"updated_at", time.Now().UTC().Format(time.RFC3339),
	}
	if job.Error != "" {
		fields = append(fields, "error", job.Error)
	}
	if err := m.rdb.HSet(ctx, key, fields...).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", key, err)
	}
	if job.Status.Terminal() {
		if err := m.rdb.Expire(ctx, key, m.ttl).Err(); err != nil {
			return fmt.Errorf("redis expire %s: %w", key, err)
		}
	}
	return nil
}
