package orchestrator

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/swarm"
)

// EnsureSecret creates a Swarm secret with the given name and value if no
// secret by that name already exists. Secrets are immutable in Swarm, so an
// existing secret is left untouched rather than recreated.
func (b *Bootstrapper) EnsureSecret(ctx context.Context, name string, value []byte) error {
	existing, err := b.docker.SecretList(ctx, swarm.SecretListOptions{})
	if err != nil {
		return fmt.Errorf("orchestrator: listing secrets: %w", err)
	}
	for _, s := range existing {
		if s.Spec.Name == name {
			return nil
		}
	}

	_, err = b.docker.SecretCreate(ctx, swarm.SecretSpec{
		Annotations: swarm.Annotations{Name: name},
		Data:        value,
	})
	if err != nil {
		return fmt.Errorf("orchestrator: creating secret %s: %w", name, err)
	}
	return nil
}
