package saturation

import (
	"context"
	"fmt"
	"time"

	"github.com/migasfree/migasfree-swarm/internal/redisdir"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Admitted          bool
	RetryAfterSeconds int
}

// Controller gates synchronization requests against the current saturation
// snapshot, queuing rejected computers for the drainer to retry once the
// stack is no longer saturated.
type Controller struct {
	store             *redisdir.MetricsStore
	queue             *redisdir.SyncQueue
	syncQueueInterval time.Duration
}

// retryAfterMultiplier is pinned to 5x the queue drain interval, resolving
// spec.md's open question the same way: a computer that gets queued should
// not retry sooner than a handful of drain cycles from now.
const retryAfterMultiplier = 5

func NewController(store *redisdir.MetricsStore, queue *redisdir.SyncQueue, syncQueueInterval time.Duration) *Controller {
	return &Controller{store: store, queue: queue, syncQueueInterval: syncQueueInterval}
}

// Admit increments the attempt counter on every call, then checks the latest
// saturation snapshot. If the stack is saturated, computerUUID is enqueued
// for a later retry; otherwise the computer is admitted immediately.
func (c *Controller) Admit(ctx context.Context, computerUUID string) (Decision, error) {
	if err := c.store.IncrAttempts(ctx); err != nil {
		return Decision{}, fmt.Errorf("saturation: incrementing attempts: %w", err)
	}

	snap, err := c.store.ReadActual(ctx)
	if err == redisdir.ErrNotFound {
		// No sample has run yet; fail open rather than blocking every
		// synchronization on the sampler's first tick.
		return Decision{Admitted: true}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("saturation: reading snapshot: %w", err)
	}

	if !snap.Saturated {
		return Decision{Admitted: true}, nil
	}

	if err := c.queue.Enqueue(ctx, computerUUID); err != nil {
		return Decision{}, fmt.Errorf("saturation: enqueuing %s: %w", computerUUID, err)
	}

	retryAfter := int(c.syncQueueInterval.Seconds()) * retryAfterMultiplier
	return Decision{Admitted: false, RetryAfterSeconds: retryAfter}, nil
}

// CurrentSnapshot returns the latest saturation reading, for the manager's
// /v1/private/metrics/json endpoint.
func (c *Controller) CurrentSnapshot(ctx context.Context) (redisdir.Snapshot, error) {
	snap, err := c.store.ReadActual(ctx)
	if err == redisdir.ErrNotFound {
		return redisdir.Snapshot{}, nil
	}
	return snap, err
}
