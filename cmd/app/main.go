package main

import (
	"fmt"
	"os"

	"OBScan/pkg/config"

	"github.com/spf13/cobra"
)

var configPath string

// rootCmd runs the full service when no subcommand is given.
var rootCmd = &cobra.Command{
	Use:   "obscan",
	Short: "Order block scanner for Binance USDT-M futures",
	Long: `obscan ranks the most traded Binance futures, detects smart-money order
blocks on their candles and serves the results over HTTP.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
