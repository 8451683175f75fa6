package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/migasfree/migasfree-swarm/internal/redisdir"
)

// HeartbeatLoop publishes this relay's current load to Redis on a fixed
// interval, using gocron/v2's DurationJob the same way the scheduler
// elsewhere in this codebase registers its fixed-interval jobs, just
// triggered by a duration instead of a cron expression.
type HeartbeatLoop struct {
	hub            *Hub
	directory      *redisdir.RelayDirectory
	publicURL      string
	internalURL    string
	hostname       string
	maxConnections int
	interval       time.Duration
	logger         *zap.Logger
	scheduler      gocron.Scheduler
}

func NewHeartbeatLoop(hub *Hub, directory *redisdir.RelayDirectory, publicURL, internalURL, hostname string, maxConnections int, interval time.Duration, logger *zap.Logger) (*HeartbeatLoop, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("relay: creating heartbeat scheduler: %w", err)
	}
	return &HeartbeatLoop{
		hub: hub, directory: directory,
		publicURL: publicURL, internalURL: internalURL, hostname: hostname, maxConnections: maxConnections,
		interval: interval, logger: logger, scheduler: sched,
	}, nil
}

func (hl *HeartbeatLoop) Start() error {
	_, err := hl.scheduler.NewJob(
		gocron.DurationJob(hl.interval),
		gocron.NewTask(hl.tick),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("relay: registering heartbeat job: %w", err)
	}
	hl.scheduler.Start()
	return nil
}

func (hl *HeartbeatLoop) Stop() error {
	return hl.scheduler.Shutdown()
}

func (hl *HeartbeatLoop) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := redisdir.RelayRecord{
		RelayID:        hl.hub.relayID,
		PublicURL:      hl.publicURL,
		InternalURL:    hl.internalURL,
		Hostname:       hl.hostname,
		AgentCount:     hl.hub.registry.AgentCount(),
		TunnelCount:    hl.hub.registry.TunnelCount(),
		MaxConnections: hl.maxConnections,
	}
	if err := hl.directory.Heartbeat(ctx, rec); err != nil {
		hl.logger.Warn("relay heartbeat failed", zap.Error(err))
	}
	if hl.hub.agents != nil {
		for _, id := range hl.hub.registry.AgentIDs() {
			if err := hl.hub.agents.Touch(ctx, id); err != nil {
				hl.logger.Debug("refreshing agent directory TTL failed", zap.String("agent_id", id), zap.Error(err))
			}
		}
	}
}
