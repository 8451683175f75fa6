package redisdir

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	actualKey  = "manager:metric:actual"
	historyKey = "manager:metric:history"
)

// Snapshot is the saturation sampler's current reading, stored as a JSON
// string under the manager:metric:actual key (a plain string value, not a
// hash) and appended to the manager:metric:history zset (scored by Unix
// timestamp) on every tick.
type Snapshot struct {
	DBLatencyMS float64   `json:"db_latency_ms"`
	CoreCPUPct  float64   `json:"core_cpu_pct"`
	DBCPUPct    float64   `json:"db_cpu_pct"`
	Saturated   bool      `json:"saturated"`
	SampledAt   time.Time `json:"sampled_at"`
}

// MetricsStore wraps the manager:metric:actual key, the
// manager:metric:history zset, and the per-window admission-attempt counter.
type MetricsStore struct {
	rdb redis.UniversalClient
}

func NewMetricsStore(rdb redis.UniversalClient) *MetricsStore {
	return &MetricsStore{rdb: rdb}
}

// WriteActual overwrites the current snapshot and appends it to history,
// trimming entries older than maxAge.
func (s *MetricsStore) WriteActual(ctx context.Context, snap Snapshot, maxAge time.Duration) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redisdir: marshaling snapshot: %w", err)
	}

	now := float64(snap.SampledAt.Unix())
	cutoff := fmt.Sprintf("%d", snap.SampledAt.Add(-maxAge).Unix())

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, actualKey, payload, 0)
	pipe.ZAdd(ctx, historyKey, redis.Z{Score: now, Member: payload})
	pipe.ZRemRangeByScore(ctx, historyKey, "-inf", cutoff)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisdir: writing snapshot: %w", err)
	}
	return nil
}

// ReadActual returns the last written snapshot, or ErrNotFound if the
// sampler has never run (or Redis was flushed).
func (s *MetricsStore) ReadActual(ctx context.Context) (Snapshot, error) {
	raw, err := s.rdb.Get(ctx, actualKey).Bytes()
	if err == redis.Nil {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("redisdir: reading actual snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("redisdir: decoding actual snapshot: %w", err)
	}
	return snap, nil
}

// History returns every snapshot recorded within the given window, oldest
// first.
func (s *MetricsStore) History(ctx context.Context, since time.Time) ([]Snapshot, error) {
	members, err := s.rdb.ZRangeByScore(ctx, historyKey, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", since.Unix()),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redisdir: reading history: %w", err)
	}
	out := make([]Snapshot, 0, len(members))
	for _, m := range members {
		var snap Snapshot
		if err := json.Unmarshal([]byte(m), &snap); err != nil {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// admissionAttemptsKey carries the admission-attempt counter, incremented by
// the admission gate on every check whatever its outcome. Only
// ReadAndResetAttempts reads and resets it; neither the sampler nor the
// drainer calls that on its tick.
const admissionAttemptsKey = "manager:metric:admission_attempts"

// IncrAttempts records one synchronization admission attempt, admitted or
// not.
func (s *MetricsStore) IncrAttempts(ctx context.Context) error {
	if err := s.rdb.Incr(ctx, admissionAttemptsKey).Err(); err != nil {
		return fmt.Errorf("redisdir: incrementing admission attempts: %w", err)
	}
	return nil
}

// ReadAndResetAttempts returns the attempt count accumulated since the last
// call and resets it to zero. GETSET reads and resets in one atomic
// command, so no increment is lost between the read and the reset.
func (s *MetricsStore) ReadAndResetAttempts(ctx context.Context) (int64, error) {
	val, err := s.rdb.GetSet(ctx, admissionAttemptsKey, 0).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redisdir: reading admission attempts: %w", err)
	}
	var n int64
	_, scanErr := fmt.Sscanf(val, "%d", &n)
	if scanErr != nil {
		return 0, nil
	}
	return n, nil
}
