// Package config loads process configuration from environment variables
// using struct tags, following the same pattern across all three binaries.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ManagerConfig configures the cmd/manager binary (C4, C7).
type ManagerConfig struct {
	ListenAddr string `env:"MANAGER_LISTEN_ADDR" envDefault:":8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	FQDN      string `env:"FQDN,required"`
	StackName string `env:"STACK,required"`

	RedisURL    string `env:"REDIS_URL" envDefault:"redis://redis:6379/0"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"postgres"`

	CoreBaseURL string `env:"CORE_BASE_URL,required"`

	PortainerBaseURL string `env:"PORTAINER_BASE_URL,required"`
	PortainerToken   string `env:"PORTAINER_TOKEN,required"`
	PortainerEndpointID int `env:"PORTAINER_ENDPOINT_ID" envDefault:"1"`

	CADir string `env:"CA_DIR" envDefault:"/var/lib/migasfree/ca"`

	MetricsRecordingInterval      int `env:"METRICS_RECORDING_INTERVAL" envDefault:"5"`
	SyncQueueProcessInterval      int `env:"SYNC_QUEUE_PROCESS_INTERVAL" envDefault:"30"`
	SaturationCPUThresholdPercent int `env:"SATURATION_CPU_THRESHOLD" envDefault:"85"`
	SaturationDBLatencyMS         int `env:"SATURATION_DB_LATENCY_MS" envDefault:"250"`

	MetricsAddr string `env:"MANAGER_METRICS_ADDR" envDefault:":9090"`
}

// RelayConfig configures the cmd/relay binary (C5).
type RelayConfig struct {
	ListenAddr string `env:"RELAY_LISTEN_ADDR" envDefault:":8443"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	RedisURL string `env:"REDIS_URL" envDefault:"redis://redis:6379/0"`

	RelayID            string `env:"RELAY_ID"`
	HeartbeatInterval  int    `env:"RELAY_HEARTBEAT_INTERVAL_SECONDS" envDefault:"5"`
	HeartbeatTTL       int    `env:"RELAY_HEARTBEAT_TTL_SECONDS" envDefault:"10"`

	// PublicURL is the wss:// address clients are told to dial (usually
	// behind a load balancer); InternalAddr is the overlay-network address
	// the manager dials directly, bypassing public ingress.
	PublicURL    string `env:"RELAY_PUBLIC_URL,required"`
	InternalAddr string `env:"RELAY_INTERNAL_ADDR,required"`
	Hostname     string `env:"RELAY_HOSTNAME"`

	// MaxConnections bounds concurrent agents this relay will admit and is
	// used to raise the process's open-file soft limit at startup.
	MaxConnections int `env:"TUNNEL_CONNECTIONS" envDefault:"1000"`

	MetricsAddr string `env:"RELAY_METRICS_ADDR" envDefault:":9091"`
}

// OrchestratorConfig configures the cmd/orchestrator binary (C9).
type OrchestratorConfig struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	StackName        string   `env:"MIGASFREE_STACK_NAME" envDefault:"migasfree"`
	OverlayNetwork   string   `env:"MIGASFREE_OVERLAY_NETWORK" envDefault:"migasfree_net"`
	PortainerBaseURL string   `env:"PORTAINER_BASE_URL,required"`
	PortainerToken   string   `env:"PORTAINER_TOKEN,required"`
	ConsoleHosts     []string `env:"MIGASFREE_CONSOLE_HOSTS" envSeparator:","`
}

// Load parses environment variables into cfg, which must be a pointer to
// one of the Config structs above.
func Load[T any]() (*T, error) {
	cfg := new(T)
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}
	return cfg, nil
}
