package main

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hamed0406/reachmon/internal/probe"
)

var dnsCmd = &cobra.Command{
	Use:   "dns <host>",
	Short: "Explain how a host resolves",
	Long: `Look up address, CNAME and NS records for a host.

Useful when a target reports resolution_failure: the class tells a
missing name (nxdomain) apart from a zone without addresses and from
a resolver that is failing.

Example:
  reachmon dns db.internal`,
	Args: cobra.ExactArgs(1),
	RunE: runDNS,
}

func init() {
	rootCmd.AddCommand(dnsCmd)
	dnsCmd.Flags().Duration("timeout", probe.DefaultDNSTimeout, "lookup timeout")
}

func runDNS(cmd *cobra.Command, args []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	rep := probe.Diagnose(context.Background(), net.DefaultResolver, args[0], timeout)
	if rep.Class == probe.DNSInvalidName {
		return fmt.Errorf("invalid host %q", args[0])
	}
	printDNS(cmd, rep)
	return nil
}

func printDNS(cmd *cobra.Command, rep probe.DNSReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s\n", rep.Host, rep.Class)
	if len(rep.Addresses) > 0 {
		fmt.Fprintf(out, "  addresses:   %s\n", strings.Join(rep.Addresses, ", "))
	}
	if rep.CNAME != "" {
		fmt.Fprintf(out, "  cname:       %s\n", rep.CNAME)
	}
	if len(rep.Nameservers) > 0 {
		fmt.Fprintf(out, "  nameservers: %s\n", strings.Join(rep.Nameservers, ", "))
	}
	if rep.ResolverError != "" {
		fmt.Fprintf(out, "  error:       %s\n", rep.ResolverError)
	}
}

