package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hamed0406/reachmon/internal/domain"
	"github.com/hamed0406/reachmon/internal/probe"
)

var scanCmd = &cobra.Command{
	Use:   "scan <host>",
	Short: "Scan a host for open TCP ports",
	Long: `Try a TCP connect to each port and list the open ones.

Ports are a comma-separated list of numbers and ranges.

Example:
  reachmon scan 198.51.100.7 --ports 22,80,443
  reachmon scan db.internal --ports 5000-6000 --workers 200`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().String("ports", "1-1024", "ports to scan")
	scanCmd.Flags().Duration("timeout", probe.DefaultScanTimeout, "per-port connect timeout")
	scanCmd.Flags().Int("workers", probe.DefaultScanWorkers, "concurrent connects")
}

func runScan(cmd *cobra.Command, args []string) error {
	host := args[0]
	if !domain.ValidHost(host) {
		return fmt.Errorf("invalid host %q", host)
	}
	spec, _ := cmd.Flags().GetString("ports")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	workers, _ := cmd.Flags().GetInt("workers")

	ports, err := probe.ParsePorts(spec)
	if err != nil {
		return err
	}

	exec := probe.NewExecutor(probe.Options{})
	rep, err := exec.Scan(context.Background(), host, ports, timeout, workers)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d of %d ports open (%s)\n", rep.Host, len(rep.Open), len(rep.Ports), rep.Duration.Round(time.Millisecond))
	if len(rep.Open) > 0 {
		open := make([]string, len(rep.Open))
		for i, p := range rep.Open {
			open[i] = fmt.Sprint(p)
		}
		fmt.Fprintf(out, "  open: %s\n", strings.Join(open, ", "))
	}
	return nil
}
