package redisdir

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const syncQueueKey = "manager:sync_queue"

// SyncQueue is the manager:sync_queue list: computer UUIDs waiting for a
// synchronization slot once the admission controller reports non-saturated.
type SyncQueue struct {
	rdb redis.UniversalClient
}

func NewSyncQueue(rdb redis.UniversalClient) *SyncQueue {
	return &SyncQueue{rdb: rdb}
}

// Enqueue appends a computer UUID to the tail of the queue, unless it is
// already present (avoids unbounded duplicate entries from a retrying
// client whose earlier request is still queued).
func (q *SyncQueue) Enqueue(ctx context.Context, computerUUID string) error {
	pos, err := q.rdb.LPos(ctx, syncQueueKey, computerUUID, redis.LPosArgs{}).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("redisdir: checking sync queue membership: %w", err)
	}
	if err == nil && pos >= 0 {
		return nil
	}
	if err := q.rdb.RPush(ctx, syncQueueKey, computerUUID).Err(); err != nil {
		return fmt.Errorf("redisdir: enqueuing %s: %w", computerUUID, err)
	}
	return nil
}

// Drain pops up to n entries from the head of the queue, oldest first.
func (q *SyncQueue) Drain(ctx context.Context, n int64) ([]string, error) {
	vals, err := q.rdb.LPopCount(ctx, syncQueueKey, int(n)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redisdir: draining sync queue: %w", err)
	}
	return vals, nil
}

// Len reports the current queue depth.
func (q *SyncQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, syncQueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redisdir: reading sync queue length: %w", err)
	}
	return n, nil
}
