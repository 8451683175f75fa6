// Package portainer is a read-mostly HTTP client for Portainer's API proxy,
// used to inspect Docker/Swarm state without this system holding a direct
// socket into the Docker daemon.
package portainer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to a single Portainer instance via its X-API-Key header
// authentication.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) ListEndpoints(ctx context.Context) ([]Endpoint, error) {
	var endpoints []Endpoint
	if err := c.get(ctx, "/api/endpoints", &endpoints); err != nil {
		return nil, fmt.Errorf("portainer: list endpoints: %w", err)
	}
	return endpoints, nil
}

// ListContainers returns every container (running or not) on endpointID,
// with no label filtering.
func (c *Client) ListContainers(ctx context.Context, endpointID int) ([]ContainerSummary, error) {
	var containers []ContainerSummary
	path := fmt.Sprintf("/api/endpoints/%d/docker/containers/json?all=1", endpointID)
	if err := c.get(ctx, path, &containers); err != nil {
		return nil, fmt.Errorf("portainer: list containers (endpoint %d): %w", endpointID, err)
	}
	return containers, nil
}

// ContainerStats fetches a single non-streaming stats sample for a
// container. The saturation sampler calls this twice, one second apart, to
// compute a CPU percentage via CPUPercent.
func (c *Client) ContainerStats(ctx context.Context, endpointID int, containerID string) (ContainerStats, error) {
	var stats ContainerStats
	path := fmt.Sprintf("/api/endpoints/%d/docker/containers/%s/stats?stream=false", endpointID, containerID)
	if err := c.get(ctx, path, &stats); err != nil {
		return ContainerStats{}, fmt.Errorf("portainer: container stats (%s): %w", containerID, err)
	}
	return stats, nil
}

// ListServices returns every Swarm service visible on endpointID.
func (c *Client) ListServices(ctx context.Context, endpointID int) ([]ServiceSummary, error) {
	var services []ServiceSummary
	path := fmt.Sprintf("/api/endpoints/%d/docker/services", endpointID)
	if err := c.get(ctx, path, &services); err != nil {
		return nil, fmt.Errorf("portainer: list services: %w", err)
	}
	return services, nil
}

// ListTasks returns every Swarm task for a given service.
func (c *Client) ListTasks(ctx context.Context, endpointID int, serviceID string) ([]TaskSummary, error) {
	var tasks []TaskSummary
	path := fmt.Sprintf("/api/endpoints/%d/docker/tasks?filters=%s",
		endpointID, encodeFilter("service", serviceID))
	if err := c.get(ctx, path, &tasks); err != nil {
		return nil, fmt.Errorf("portainer: list tasks (service %s): %w", serviceID, err)
	}
	return tasks, nil
}

// ListNodes returns every node in the Swarm visible from endpointID.
func (c *Client) ListNodes(ctx context.Context, endpointID int) ([]NodeSummary, error) {
	var nodes []NodeSummary
	path := fmt.Sprintf("/api/endpoints/%d/docker/nodes", endpointID)
	if err := c.get(ctx, path, &nodes); err != nil {
		return nil, fmt.Errorf("portainer: list nodes: %w", err)
	}
	return nodes, nil
}

func encodeFilter(key, value string) string {
	raw := fmt.Sprintf(`{%q:[%q]}`, key, value)
	return strings.ReplaceAll(raw, " ", "")
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", c.token)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("portainer API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
