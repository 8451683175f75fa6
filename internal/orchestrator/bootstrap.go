// Package orchestrator implements the deployment glue (C9): rendering the
// stack manifest, bootstrapping the overlay network and secrets, and
// scaling the stack's own services. Unlike C7/C8 this talks to the local
// Docker daemon directly, since creating this process's own Swarm resources
// is this process's own write-path responsibility, not something read
// through Portainer's read-mostly proxy.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
)

// Bootstrapper creates the resources a fresh stack deployment needs before
// its services can start: the overlay network services attach to, and the
// secrets superadmin credentials are mounted from.
type Bootstrapper struct {
	docker *client.Client
}

func NewBootstrapper(docker *client.Client) *Bootstrapper {
	return &Bootstrapper{docker: docker}
}

// EnsureNetwork creates the named overlay network if it does not already
// exist, matching the idempotent bootstrap discipline a redeployable stack
// needs.
func (b *Bootstrapper) EnsureNetwork(ctx context.Context, name string) error {
	networks, err := b.docker.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return fmt.Errorf("orchestrator: listing networks: %w", err)
	}
	for _, n := range networks {
		if n.Name == name {
			return nil
		}
	}

	_, err = b.docker.NetworkCreate(ctx, name, network.CreateOptions{
		Driver:     "overlay",
		Attachable: true,
	})
	if err != nil {
		return fmt.Errorf("orchestrator: creating network %s: %w", name, err)
	}
	return nil
}
