// Package swarmmonitor maintains an in-memory view of Swarm service and
// task health (C8), read through the Portainer proxy rather than a direct
// Docker socket, and streams status changes to browser clients over SSE.
package swarmmonitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/migasfree/migasfree-swarm/internal/portainer"
)

// ServiceStatus is the reconciler's per-service cache entry.
type ServiceStatus struct {
	ServiceID    string
	Name         string
	RunningTasks int
	DesiredTasks int
	UpdatedAt    time.Time
}

// Reconciler polls the Portainer proxy on a fixed interval and keeps a
// mutex-protected snapshot of every service's health, generalizing the
// single-map-behind-one-lock registry pattern used for connection tracking
// elsewhere in this codebase to a polled external-state cache.
type Reconciler struct {
	proxy      *portainer.Client
	endpointID int
	logger     *zap.Logger

	mu       sync.RWMutex
	services map[string]ServiceStatus
	isManager bool

	subscribers   map[chan ServiceStatus]struct{}
	subscribersMu sync.Mutex
}

func NewReconciler(proxy *portainer.Client, endpointID int, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		proxy:       proxy,
		endpointID:  endpointID,
		logger:      logger,
		services:    make(map[string]ServiceStatus),
		subscribers: make(map[chan ServiceStatus]struct{}),
	}
}

// DetectManagerNode queries whether the local Portainer endpoint is backed
// by a Swarm manager node. When it is not, the reconciler's cache stays
// empty for this process's lifetime and Run never needs to be started —
// matching the "others degrade to an empty cache" rule for non-manager
// nodes in a multi-node deployment.
func (rc *Reconciler) DetectManagerNode(ctx context.Context) (bool, error) {
	nodes, err := rc.proxy.ListNodes(ctx, rc.endpointID)
	if err != nil {
		return false, fmt.Errorf("swarmmonitor: listing nodes: %w", err)
	}
	for _, n := range nodes {
		if n.ManagerStatus != nil && n.ManagerStatus.Leader {
			rc.mu.Lock()
			rc.isManager = true
			rc.mu.Unlock()
			return true, nil
		}
	}
	return false, nil
}

// Run polls on a fixed interval until ctx is cancelled.
func (rc *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rc.poll(ctx); err != nil {
				rc.logger.Warn("swarm reconcile failed", zap.Error(err))
			}
		}
	}
}

func (rc *Reconciler) poll(ctx context.Context) error {
	services, err := rc.proxy.ListServices(ctx, rc.endpointID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	rc.mu.Lock()
	for _, svc := range services {
		status := ServiceStatus{
			ServiceID:    svc.ID,
			Name:         svc.Spec.Name,
			RunningTasks: svc.ServiceStatus.RunningTasks,
			DesiredTasks: svc.ServiceStatus.DesiredTasks,
			UpdatedAt:    now,
		}
		rc.services[svc.ID] = status
		rc.publish(status)
	}
	rc.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current cache.
func (rc *Reconciler) Snapshot() []ServiceStatus {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make([]ServiceStatus, 0, len(rc.services))
	for _, s := range rc.services {
		out = append(out, s)
	}
	return out
}

func (rc *Reconciler) publish(status ServiceStatus) {
	rc.subscribersMu.Lock()
	defer rc.subscribersMu.Unlock()
	for ch := range rc.subscribers {
		select {
		case ch <- status:
		default:
			// slow subscriber drops the update rather than blocking the
			// reconciler's poll loop.
		}
	}
}

// Subscribe registers a channel to receive status updates; call the
// returned function to unsubscribe.
func (rc *Reconciler) Subscribe() (chan ServiceStatus, func()) {
	ch := make(chan ServiceStatus, 32)
	rc.subscribersMu.Lock()
	rc.subscribers[ch] = struct{}{}
	rc.subscribersMu.Unlock()

	unsubscribe := func() {
		rc.subscribersMu.Lock()
		delete(rc.subscribers, ch)
		rc.subscribersMu.Unlock()
		close(ch)
	}
	return ch, unsubscribe
}
