package saturation

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/migasfree/migasfree-swarm/internal/redisdir"
)

// drainBatchSize bounds how many queued computers are released per tick, so
// a long backlog drains gradually rather than admitting everything the
// instant saturation clears.
const drainBatchSize = 10

// ReadyNotifier is called once per computer released from the queue. The
// manager's implementation (loopbackNotifier in cmd/manager) only logs the
// release; nothing is sent to the computer.
type ReadyNotifier interface {
	NotifyReady(ctx context.Context, computerUUID string) error
}

// Drainer periodically checks whether the stack is no longer saturated and,
// if so, releases a bounded batch of queued computers.
type Drainer struct {
	store     *redisdir.MetricsStore
	queue     *redisdir.SyncQueue
	notifier  ReadyNotifier
	logger    *zap.Logger
	scheduler gocron.Scheduler
}

func NewDrainer(store *redisdir.MetricsStore, queue *redisdir.SyncQueue, notifier ReadyNotifier, logger *zap.Logger) (*Drainer, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("saturation: creating drainer scheduler: %w", err)
	}
	return &Drainer{store: store, queue: queue, notifier: notifier, logger: logger, scheduler: sched}, nil
}

func (d *Drainer) Start(interval time.Duration) error {
	_, err := d.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(d.tick),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("saturation: registering drainer job: %w", err)
	}
	d.scheduler.Start()
	return nil
}

func (d *Drainer) Stop() error {
	return d.scheduler.Shutdown()
}

func (d *Drainer) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snap, err := d.store.ReadActual(ctx)
	if err != nil && err != redisdir.ErrNotFound {
		d.logger.Warn("drainer: reading snapshot failed", zap.Error(err))
		return
	}
	if snap.Saturated {
		return
	}

	computers, err := d.queue.Drain(ctx, drainBatchSize)
	if err != nil {
		d.logger.Warn("drainer: draining queue failed", zap.Error(err))
		return
	}
	for _, uuid := range computers {
		if err := d.notifier.NotifyReady(ctx, uuid); err != nil {
			d.logger.Warn("drainer: notifying computer failed", zap.String("computer_uuid", uuid), zap.Error(err))
		}
	}
}
