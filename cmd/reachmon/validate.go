package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hamed0406/reachmon/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config and environment",
	Long: `Validate the configuration without starting anything.

The environment is read, the optional config file is parsed with
environment variables expanded, and every setting and target is checked.
Deployment warnings (missing API keys, open CORS) go to stderr.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  reachmon validate -c reachmon.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringP("config", "c", "", "path to config file")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Addr:        %s\n", cfg.Addr)
	fmt.Fprintf(out, "  Store:       %s\n", storeKind(cfg))
	fmt.Fprintf(out, "  Interval:    %s\n", cfg.Monitor.Interval)
	fmt.Fprintf(out, "  Timeout:     %s\n", cfg.Monitor.Timeout)
	fmt.Fprintf(out, "  Thresholds:  %d down / %d up\n", cfg.Monitor.FailureThreshold, cfg.Monitor.RecoveryThreshold)
	fmt.Fprintf(out, "  Concurrency: %d\n", cfg.Monitor.MaxConcurrent)
	fmt.Fprintf(out, "  Targets:     %d\n", len(cfg.Targets))

	for _, w := range warnings(cfg) {
		fmt.Fprintln(cmd.ErrOrStderr(), "⚠", w)
	}
	return nil
}

func storeKind(cfg config.Config) string {
	switch {
	case cfg.DatabaseURL != "":
		return "postgres"
	case cfg.SQLitePath != "":
		return "sqlite (" + cfg.SQLitePath + ")"
	default:
		return "memory"
	}
}

// warnings lists settings that are valid but probably not intended.
func warnings(cfg config.Config) []string {
	var w []string
	if len(cfg.AdminAPIKeys) == 0 {
		w = append(w, "ADMIN_API_KEYS is empty (admin routes are open to anyone).")
	}
	if len(cfg.PublicAPIKeys) == 0 && len(cfg.AdminAPIKeys) > 0 {
		w = append(w, "PUBLIC_API_KEYS is empty (only admin keys can read).")
	}
	if cfg.DatabaseURL == "" && cfg.SQLitePath == "" {
		w = append(w, "DATABASE_URL and SQLITE_PATH empty; targets and history are lost on restart.")
	}
	if len(cfg.AllowedOrigins) == 0 {
		w = append(w, "ALLOWED_ORIGINS empty; any origin may call the API and open streams.")
	}
	if cfg.SlackWebhookURL == "" {
		w = append(w, "SLACK_WEBHOOK_URL empty; status changes are logged but not alerted.")
	}
	return w
}
