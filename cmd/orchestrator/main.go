// Command orchestrator deploys and manages the migasfree-swarm stack (C9):
// network/secret bootstrap, stack deployment, and console scaling.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/migasfree/migasfree-swarm/internal/config"
	"github.com/migasfree/migasfree-swarm/internal/logging"
	"github.com/migasfree/migasfree-swarm/internal/orchestrator"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "orchestrator",
		Short: "Deploys and manages the migasfree-swarm stack",
	}
	root.AddCommand(newDeployCmd(), newUndeployCmd(), newConfigStackCmd(), newConsolesCmd())
	return root
}

func loadEverything() (*config.OrchestratorConfig, *zap.Logger, *orchestrator.Bootstrapper, error) {
	cfg, err := config.Load[config.OrchestratorConfig]()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, err
	}
	logger = logger.Named("orchestrator")

	docker, err := orchestrator.NewDockerClient()
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, orchestrator.NewBootstrapper(docker), nil
}

func newDeployCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deploy",
		Short: "Ensure the overlay network exists and render the stack manifest (creates no secrets)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, boot, err := loadEverything()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := boot.EnsureNetwork(ctx, cfg.OverlayNetwork); err != nil {
				return err
			}

			manifest, err := orchestrator.RenderManifest(orchestrator.StackContext{
				StackName:      cfg.StackName,
				OverlayNetwork: cfg.OverlayNetwork,
				ManagerImage:   fmt.Sprintf("%s/manager:latest", cfg.StackName),
				RelayImage:     fmt.Sprintf("%s/relay:latest", cfg.StackName),
				RelayReplicas:  1,
				ConsoleHosts:   cfg.ConsoleHosts,
			})
			if err != nil {
				return err
			}

			logger.Info("rendered stack manifest", zap.Int("bytes", len(manifest)))
			fmt.Println(string(manifest))
			return nil
		},
	}
}

func newUndeployCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undeploy",
		Short: "Remove every service belonging to the stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, boot, err := loadEverything()
			if err != nil {
				return err
			}
			return boot.RemoveStack(cmd.Context(), cfg.StackName)
		},
	}
}

func newConfigStackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-stack",
		Short: "Print the rendered stack manifest without deploying it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := loadEverything()
			if err != nil {
				return err
			}
			manifest, err := orchestrator.RenderManifest(orchestrator.StackContext{
				StackName:      cfg.StackName,
				OverlayNetwork: cfg.OverlayNetwork,
				ManagerImage:   fmt.Sprintf("%s/manager:latest", cfg.StackName),
				RelayImage:     fmt.Sprintf("%s/relay:latest", cfg.StackName),
				RelayReplicas:  1,
				ConsoleHosts:   cfg.ConsoleHosts,
			})
			if err != nil {
				return err
			}
			fmt.Println(string(manifest))
			return nil
		},
	}
}

func newConsolesCmd() *cobra.Command {
	var replicas int
	cmd := &cobra.Command{
		Use:   "consoles [service-id]",
		Short: "Scale a console service up or down",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, boot, err := loadEverything()
			if err != nil {
				return err
			}
			if replicas < 0 {
				return fmt.Errorf("replicas must be >= 0")
			}
			return boot.Scale(cmd.Context(), args[0], uint64(replicas))
		},
	}
	cmd.Flags().IntVar(&replicas, "replicas", 1, "desired replica count")
	return cmd
}
