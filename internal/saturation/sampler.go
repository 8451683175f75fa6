// Package saturation implements the saturation sampler and synchronization
// admission controller (C7): it periodically measures Postgres latency and
// core/database CPU usage, derives a saturation verdict, and gates
// synchronization requests against that verdict with a FIFO retry queue.
package saturation

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/migasfree/migasfree-swarm/internal/pgquery"
	"github.com/migasfree/migasfree-swarm/internal/portainer"
	"github.com/migasfree/migasfree-swarm/internal/redisdir"
)

// Thresholds configures when the sampler considers the stack saturated.
type Thresholds struct {
	CPUPercent   float64
	DBLatencyMax time.Duration
}

// ContainerTarget names the container the sampler takes CPU stats from for
// a given role ("core" or "db").
type ContainerTarget struct {
	EndpointID  int
	ContainerID string
}

// Sampler runs the measurement tick: DB latency via SELECT 1, core CPU via
// two Portainer stats samples one second apart, DB CPU the same way, and a
// saturation verdict from these against Thresholds. Pgpool-II statistics
// are not queried as part of the tick.
type Sampler struct {
	pg         *pgquery.Client
	proxy      *portainer.Client
	store      *redisdir.MetricsStore
	core       ContainerTarget
	db         ContainerTarget
	thresholds Thresholds
	usePgpool  bool
	logger     *zap.Logger
	scheduler  gocron.Scheduler
	historyMaxAge time.Duration
}

func NewSampler(pg *pgquery.Client, proxy *portainer.Client, store *redisdir.MetricsStore, core, db ContainerTarget, thresholds Thresholds, usePgpool bool, logger *zap.Logger) (*Sampler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("saturation: creating sampler scheduler: %w", err)
	}
	return &Sampler{
		pg: pg, proxy: proxy, store: store, core: core, db: db,
		thresholds: thresholds, usePgpool: usePgpool, logger: logger,
		scheduler: sched, historyMaxAge: time.Hour,
	}, nil
}

func (s *Sampler) Start(interval time.Duration) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.tick),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("saturation: registering sampler job: %w", err)
	}
	s.scheduler.Start()
	return nil
}

func (s *Sampler) Stop() error {
	return s.scheduler.Shutdown()
}

func (s *Sampler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	snap, err := s.Sample(ctx)
	if err != nil {
		s.logger.Warn("saturation sample failed", zap.Error(err))
		return
	}
	if err := s.store.WriteActual(ctx, snap, s.historyMaxAge); err != nil {
		s.logger.Warn("writing saturation snapshot failed", zap.Error(err))
	}
}

// Sample runs one full measurement cycle and returns the resulting
// snapshot without persisting it, so it can be unit tested independently
// of Redis.
func (s *Sampler) Sample(ctx context.Context) (redisdir.Snapshot, error) {
	dbLatency, err := s.pg.Ping(ctx)
	if err != nil {
		return redisdir.Snapshot{}, fmt.Errorf("saturation: db latency probe: %w", err)
	}

	coreCPU, err := s.sampleCPU(ctx, s.core)
	if err != nil {
		return redisdir.Snapshot{}, fmt.Errorf("saturation: core cpu sample: %w", err)
	}

	dbCPU, err := s.sampleCPU(ctx, s.db)
	if err != nil {
		return redisdir.Snapshot{}, fmt.Errorf("saturation: db cpu sample: %w", err)
	}

	saturated := coreCPU >= s.thresholds.CPUPercent ||
		dbCPU >= s.thresholds.CPUPercent ||
		dbLatency >= s.thresholds.DBLatencyMax

	return redisdir.Snapshot{
		DBLatencyMS: float64(dbLatency.Microseconds()) / 1000.0,
		CoreCPUPct:  coreCPU,
		DBCPUPct:    dbCPU,
		Saturated:   saturated,
		SampledAt:   time.Now().UTC(),
	}, nil
}

// sampleCPU takes two stats samples one second apart and computes the CPU
// percentage the same way `docker stats` itself does.
func (s *Sampler) sampleCPU(ctx context.Context, target ContainerTarget) (float64, error) {
	pre, err := s.proxy.ContainerStats(ctx, target.EndpointID, target.ContainerID)
	if err != nil {
		return 0, err
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(time.Second):
	}

	cur, err := s.proxy.ContainerStats(ctx, target.EndpointID, target.ContainerID)
	if err != nil {
		return 0, err
	}
	cur.PreCPUStats = pre.CPUStats
	return portainer.CPUPercent(cur), nil
}

// PgpoolStats queries SHOW pool_nodes / SHOW pool_backend_stats when the
// manager sits in front of Pgpool-II, supplementing the plain latency probe
// with per-backend health.
func (s *Sampler) PgpoolStats(ctx context.Context) ([]pgquery.Row, error) {
	if !s.usePgpool {
		return nil, nil
	}
	nodes, err := s.pg.Query(ctx, "SHOW pool_nodes")
	if err != nil {
		return nil, fmt.Errorf("saturation: pgpool nodes: %w", err)
	}
	stats, err := s.pg.Query(ctx, "SHOW pool_backend_stats")
	if err != nil {
		return nil, fmt.Errorf("saturation: pgpool backend stats: %w", err)
	}
	return append(nodes, stats...), nil
}
