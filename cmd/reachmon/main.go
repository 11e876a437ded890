// Package main is the entry point for the reachmon binary.
//
// Usage:
//
//	reachmon serve -c reachmon.yaml        # Run the monitor and HTTP API
//	reachmon validate -c reachmon.yaml     # Check config and environment
//	reachmon probe 192.0.2.1 --port 22     # One-off reachability check
//	reachmon scan 192.0.2.1 --ports 1-1024 # Find open TCP ports
//	reachmon dns db.internal               # Explain a resolution failure
//	reachmon add 192.0.2.1 --port 443      # Register with a running API
//	reachmon version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hamed0406/reachmon/internal/config"
)

// Set at build time via -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "reachmon",
	Short: "Host reachability monitor",
	Long: `reachmon probes hosts at fixed intervals, with a TCP connect when a
port is given and an ICMP echo otherwise, and tracks each target as
up or down using consecutive failure and recovery thresholds.

Status changes are persisted, streamed over websocket and optionally
sent to Slack.

Quick start:
  1. Create a config file (reachmon.yaml)
  2. Run: reachmon serve -c reachmon.yaml
  3. GET http://127.0.0.1:8080/api/states

Example config:
  interval: 30s
  timeout: 2s
  targets:
    - name: edge router
      host: 198.51.100.7
    - host: db.internal
      port: 5432`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "reachmon %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the environment, overlays the optional --config file and
// validates the result.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.FromEnv()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
