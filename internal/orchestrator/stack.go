package orchestrator

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/swarm"
)

// ServiceRef names a single Swarm service by its stack-qualified name
// (e.g. "migasfree_manager").
type ServiceRef struct {
	Name string
}

// ListStackServices returns every service belonging to stackName, matched
// via the com.docker.stack.namespace label Swarm attaches to stack
// deployments.
func (b *Bootstrapper) ListStackServices(ctx context.Context, stackName string) ([]swarm.Service, error) {
	services, err := b.docker.ServiceList(ctx, types.ServiceListOptions{})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: listing services: %w", err)
	}

	var matched []swarm.Service
	for _, svc := range services {
		if svc.Spec.Labels["com.docker.stack.namespace"] == stackName {
			matched = append(matched, svc)
		}
	}
	return matched, nil
}

// Scale updates a service's replica count. Used by the `consoles` subcommand
// to scale the interactive console service up or down on demand.
func (b *Bootstrapper) Scale(ctx context.Context, serviceID string, replicas uint64) error {
	svc, _, err := b.docker.ServiceInspectWithRaw(ctx, serviceID, types.ServiceInspectOptions{})
	if err != nil {
		return fmt.Errorf("orchestrator: inspecting service %s: %w", serviceID, err)
	}

	spec := svc.Spec
	if spec.Mode.Replicated == nil {
		return fmt.Errorf("orchestrator: service %s is not in replicated mode", serviceID)
	}
	spec.Mode.Replicated.Replicas = &replicas

	_, err = b.docker.ServiceUpdate(ctx, serviceID, svc.Version, spec, types.ServiceUpdateOptions{})
	if err != nil {
		return fmt.Errorf("orchestrator: scaling service %s: %w", serviceID, err)
	}
	return nil
}

// RemoveStack removes every service belonging to stackName, used by the
// `undeploy` subcommand.
func (b *Bootstrapper) RemoveStack(ctx context.Context, stackName string) error {
	services, err := b.ListStackServices(ctx, stackName)
	if err != nil {
		return err
	}
	for _, svc := range services {
		if err := b.docker.ServiceRemove(ctx, svc.ID); err != nil {
			return fmt.Errorf("orchestrator: removing service %s: %w", svc.Spec.Name, err)
		}
	}
	return nil
}
