package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xela07ax/nexusflow/internal/infra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "nexusflow",
	Short: "NexusFlow trade-agent marketplace",
	Long: `NexusFlow models a marketplace of autonomous trade agents (buyers, suppliers,
logistics carriers). Agents are discovered by capability in the Agent Directory;
the Orchestration Engine drives one transaction at a time:

  Idle -> Intent -> Discovery -> Negotiation -> Settlement -> Idle`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./config.yaml or ./configs/config.yaml)")
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(directoryCmd())
	rootCmd.AddCommand(authCmd())
}

// loadRuntime читает конфиг и собирает zap по секции logger.
func loadRuntime() (*infra.Config, *zap.Logger, error) {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
