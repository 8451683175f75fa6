// Command relay runs the tunnel relay (C5): the websocket server endpoint
// agents dial into and the manager dials into on their behalf.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/migasfree/migasfree-swarm/internal/config"
	"github.com/migasfree/migasfree-swarm/internal/logging"
	"github.com/migasfree/migasfree-swarm/internal/redisdir"
	"github.com/migasfree/migasfree-swarm/internal/relay"
	"github.com/migasfree/migasfree-swarm/internal/telemetry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Runs the migasfree-swarm tunnel relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load[config.RelayConfig]()
			if err != nil {
				return err
			}
			if cfg.RelayID == "" {
				cfg.RelayID = uuid.NewString()
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return run(ctx, cfg)
		},
	}
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the relay version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("migasfree-swarm relay (development build)")
		},
	}
}

// raiseFileLimit raises the process's open-file soft limit to cover
// maxConnections agent sockets plus headroom for tunnel/client legs and the
// listener itself, falling back silently if the hard limit won't allow it
// (the admission check in Hub still enforces maxConnections regardless).
func raiseFileLimit(logger *zap.Logger, maxConnections int) {
	want := uint64(maxConnections)*2 + 256

	var rlimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rlimit); err != nil {
		logger.Warn("reading file descriptor limit failed", zap.Error(err))
		return
	}
	if rlimit.Cur >= want {
		return
	}

	target := want
	if rlimit.Max < target {
		target = rlimit.Max
	}
	rlimit.Cur = target
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rlimit); err != nil {
		logger.Warn("raising file descriptor limit failed", zap.Uint64("wanted", want), zap.Error(err))
		return
	}
	logger.Info("raised file descriptor limit", zap.Uint64("soft_limit", target))
}

func run(ctx context.Context, cfg *config.RelayConfig) error {
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger = logger.Named("relay").With(zap.String("relay_id", cfg.RelayID))

	raiseFileLimit(logger, cfg.MaxConnections)

	rdb, err := redisdir.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("relay: connecting to redis: %w", err)
	}
	defer rdb.Close()

	relayDir := redisdir.NewRelayDirectory(rdb)
	agentDir := redisdir.NewAgentDirectory(rdb)

	hub := relay.NewHub(cfg.RelayID, agentDir, cfg.MaxConnections, logger)

	heartbeat, err := relay.NewHeartbeatLoop(
		hub, relayDir, cfg.PublicURL, cfg.InternalAddr, cfg.Hostname, cfg.MaxConnections,
		time.Duration(cfg.HeartbeatInterval)*time.Second, logger,
	)
	if err != nil {
		return err
	}
	if err := heartbeat.Start(); err != nil {
		return err
	}
	defer heartbeat.Stop()

	metrics := telemetry.New(prometheus.DefaultRegisterer, "relay")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", hub.HealthHandler)
	mux.HandleFunc("/agent/ws", hub.ServeAgentWS)
	mux.HandleFunc("/client/ws", hub.ServeClientWS)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("relay listening", zap.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("relay http server: %w", err)
		}
	}()
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("relay metrics server: %w", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(time.Duration(cfg.HeartbeatInterval) * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			metrics.ConnectedAgents.Set(float64(hub.Registry().AgentCount()))
			metrics.OpenTunnels.Set(float64(hub.Registry().TunnelCount()))
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	logger.Info("relay shut down cleanly")
	return nil
}
