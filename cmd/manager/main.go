// Command manager runs the migasfree-swarm manager (C4, C7): the REST and
// websocket front end, and the saturation sampler / sync admission
// controller / queue drainer background loops.
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/migasfree/migasfree-swarm/internal/ca"
	"github.com/migasfree/migasfree-swarm/internal/config"
	"github.com/migasfree/migasfree-swarm/internal/coreauth"
	"github.com/migasfree/migasfree-swarm/internal/logging"
	"github.com/migasfree/migasfree-swarm/internal/manager"
	"github.com/migasfree/migasfree-swarm/internal/pgquery"
	"github.com/migasfree/migasfree-swarm/internal/portainer"
	"github.com/migasfree/migasfree-swarm/internal/redisdir"
	"github.com/migasfree/migasfree-swarm/internal/saturation"
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
		Use:   "manager",
		Short: "Runs the migasfree-swarm manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load[config.ManagerConfig]()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return run(ctx, cfg)
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the manager version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("migasfree-swarm manager (development build)")
		},
	})
	return cmd
}

// loopbackNotifier logs each computer released from the sync queue. It
// writes nothing to Redis and does not contact the computer.
type loopbackNotifier struct {
	logger *zap.Logger
}

func (n *loopbackNotifier) NotifyReady(ctx context.Context, computerUUID string) error {
	n.logger.Info("synchronization admitted from queue", zap.String("computer_uuid", computerUUID))
	return nil
}

func run(ctx context.Context, cfg *config.ManagerConfig) error {
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger = logger.Named("manager")

	rdb, err := redisdir.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("manager: connecting to redis: %w", err)
	}
	defer rdb.Close()

	pg, err := pgquery.New(ctx, pgquery.DefaultConfig(cfg.PostgresDSN))
	if err != nil {
		return fmt.Errorf("manager: connecting to postgres: %w", err)
	}
	defer pg.Close()

	agents := redisdir.NewAgentDirectory(rdb)
	relays := redisdir.NewRelayDirectory(rdb)
	metricsStore := redisdir.NewMetricsStore(rdb)
	syncQueue := redisdir.NewSyncQueue(rdb)

	caService := ca.New(cfg.CADir, cfg.CADir+"/scripts", cfg.StackName)
	verifier := coreauth.NewCoreVerifier(cfg.CoreBaseURL)
	portainerClient := portainer.NewClient(cfg.PortainerBaseURL, cfg.PortainerToken)

	sampler, err := saturation.NewSampler(
		pg, portainerClient, metricsStore,
		saturation.ContainerTarget{EndpointID: cfg.PortainerEndpointID, ContainerID: "core"},
		saturation.ContainerTarget{EndpointID: cfg.PortainerEndpointID, ContainerID: "database"},
		saturation.Thresholds{CPUPercent: float64(cfg.SaturationCPUThresholdPercent), DBLatencyMax: time.Duration(cfg.SaturationDBLatencyMS) * time.Millisecond},
		cfg.PostgresHost == "pgpool",
		logger.Named("saturation"),
	)
	if err != nil {
		return err
	}
	if err := sampler.Start(time.Duration(cfg.MetricsRecordingInterval) * time.Second); err != nil {
		return err
	}
	defer sampler.Stop()

	syncInterval := time.Duration(cfg.SyncQueueProcessInterval) * time.Second
	admission := saturation.NewController(metricsStore, syncQueue, syncInterval)

	drainer, err := saturation.NewDrainer(metricsStore, syncQueue, &loopbackNotifier{logger: logger}, logger.Named("drainer"))
	if err != nil {
		return err
	}
	if err := drainer.Start(syncInterval); err != nil {
		return err
	}
	defer drainer.Stop()

	relayDialer := manager.NewRelayClientDialer(agents, relays)

	router := manager.NewRouter(manager.RouterConfig{
		Logger:      logger,
		Verifier:    verifier,
		CA:          caService,
		Agents:      agents,
		Relays:      relays,
		Admission:   admission,
		RelayDialer: relayDialer,
		FQDN:        cfg.FQDN,
	})

	metrics := telemetry.New(prometheus.DefaultRegisterer, "manager")

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: router}
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("manager listening", zap.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("manager http server: %w", err)
		}
	}()
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("manager metrics server: %w", err)
		}
	}()
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.MetricsRecordingInterval) * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			snap, err := admission.CurrentSnapshot(ctx)
			if err != nil {
				continue
			}
			if snap.Saturated {
				metrics.Saturated.Set(1)
			} else {
				metrics.Saturated.Set(0)
			}
			if depth, err := syncQueue.Len(ctx); err == nil {
				metrics.SyncQueueDepth.Set(float64(depth))
			}
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

	logger.Info("manager shut down cleanly")
	return nil
}
