package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hamed0406/reachmon/internal/domain"
	"github.com/hamed0406/reachmon/internal/probe"
)

var probeCmd = &cobra.Command{
	Use:   "probe <host>",
	Short: "Check one host once",
	Long: `Run a single reachability probe and print the result.

With --port the check is a TCP connect; without it an ICMP echo is sent.
The command exits non-zero when the host is not reachable.

Example:
  reachmon probe 198.51.100.7
  reachmon probe db.internal --port 5432 --timeout 500ms`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntP("port", "p", 0, "TCP port (0 sends an ICMP echo)")
	probeCmd.Flags().Duration("timeout", 2*time.Second, "probe timeout")
	probeCmd.Flags().Bool("privileged", false, "use raw ICMP sockets")
}

func runProbe(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	privileged, _ := cmd.Flags().GetBool("privileged")

	t := domain.Target{
		ID:                "cli",
		Host:              args[0],
		Port:              port,
		Interval:          timeout,
		Timeout:           timeout,
		FailureThreshold:  1,
		RecoveryThreshold: 1,
	}
	if err := t.Validate(); err != nil {
		return err
	}

	exec := probe.NewExecutor(probe.Options{PrivilegedICMP: privileged})
	res := exec.Probe(context.Background(), t)

	out := cmd.OutOrStdout()
	if res.Success {
		fmt.Fprintf(out, "✔ %s reachable via %s in %.2fms\n", t.Address(), res.Method, res.LatencyMS())
		return nil
	}
	fmt.Fprintf(out, "✖ %s %s via %s: %s\n", t.Address(), res.Reason, res.Method, res.Detail)
	return fmt.Errorf("%s: %s", t.Address(), res.Reason)
}
