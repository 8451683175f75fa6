package orchestrator

import (
	"fmt"

	dockerclient "github.com/docker/docker/client"
)

// NewDockerClient connects to the local Docker daemon, negotiating the API
// version the same way the agent's read-only volume-discovery client does.
func NewDockerClient() (*dockerclient.Client, error) {
	dc, err := dockerclient.NewClientWithOpts(dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("orchestrator: connecting to docker daemon: %w", err)
	}
	return dc, nil
}
