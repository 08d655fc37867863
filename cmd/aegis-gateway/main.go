// aegis-gateway serves the A2A task gateway in front of the inner agent.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"aegis/internal/config"
	"aegis/internal/gateway"
	"aegis/internal/logging"
)

var (
	flagConfig string
	flagHost   string
	flagPort   int
)

func main() {
	root := &cobra.Command{
		Use:   "aegis-gateway",
		Short: "A2A task gateway for the hardened agent",
		Long: "aegis-gateway exposes the inner agent over the A2A protocol:\n" +
			"JSON-RPC task submission, SSE streaming backed by SALUTE telemetry,\n" +
			"and the agent card discovery endpoints.",
		RunE:          run,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Flags().StringVarP(&flagConfig, "config", "c", "", "path to config file (YAML or JSON)")
	root.Flags().StringVar(&flagHost, "host", "", "listen host (overrides config)")
	root.Flags().IntVar(&flagPort, "port", 0, "listen port (overrides config)")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "aegis-gateway: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := logging.NewComponentLogger("Gateway")

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagHost != "" {
		cfg.Gateway.Host = flagHost
	}
	if flagPort != 0 {
		cfg.Gateway.Port = flagPort
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := gateway.New(cfg.Gateway, logger)
	logger.Info("starting gateway on %s:%d (agent at %s)",
		cfg.Gateway.Host, cfg.Gateway.Port, cfg.Gateway.AgentConnection.BaseURL)
	return server.Run(ctx)
}
