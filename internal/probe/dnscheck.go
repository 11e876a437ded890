package probe

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/hamed0406/reachmon/internal/domain"
)

// DNSClass summarizes what a name resolves to.
type DNSClass string

const (
	DNSResolves      DNSClass = "resolves"
	DNSNoAddress     DNSClass = "no_address" // zone exists, no A/AAAA
	DNSNXDomain      DNSClass = "nxdomain"
	DNSResolverError DNSClass = "resolver_error" // SERVFAIL or timeout
	DNSInvalidName   DNSClass = "invalid_name"
	DNSLiteral       DNSClass = "ip_literal"
)

// DNSResolver is the subset of *net.Resolver used by Diagnose.
type DNSResolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
}

// DNSReport explains how a target host resolves. It is the follow-up for
// a resolution_failure probe result.
type DNSReport struct {
	Host          string   `json:"host"`
	Class         DNSClass `json:"class"`
	Addresses     []string `json:"addresses,omitempty"`
	CNAME         string   `json:"cname,omitempty"`
	Nameservers   []string `json:"nameservers,omitempty"`
	ResolverError string   `json:"resolver_error,omitempty"`
}

const DefaultDNSTimeout = 3 * time.Second

// Diagnose looks up the address, CNAME and NS records of host. A name with
// nameservers but no addresses is no_address rather than nxdomain.
func Diagnose(ctx context.Context, r DNSResolver, host string, timeout time.Duration) DNSReport {
	rep := DNSReport{Host: strings.TrimSpace(host)}
	if !domain.ValidHost(rep.Host) {
		rep.Class = DNSInvalidName
		return rep
	}
	if ip := net.ParseIP(rep.Host); ip != nil {
		rep.Class = DNSLiteral
		rep.Addresses = []string{ip.String()}
		return rep
	}
	if timeout <= 0 {
		timeout = DefaultDNSTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addrs, err := r.LookupIPAddr(ctx, rep.Host)
	switch {
	case err == nil && len(addrs) > 0:
		rep.Class = DNSResolves
		for _, a := range addrs {
			rep.Addresses = append(rep.Addresses, a.String())
		}
	case err != nil:
		rep.ResolverError = err.Error()
		var de *net.DNSError
		if errors.As(err, &de) && de.IsNotFound {
			rep.Class = DNSNXDomain
		} else {
			rep.Class = DNSResolverError
		}
	}

	if cname, err := r.LookupCNAME(ctx, rep.Host); err == nil && !strings.EqualFold(cname, rep.Host+".") {
		rep.CNAME = strings.TrimSuffix(cname, ".")
	}

	if ns, err := r.LookupNS(ctx, rep.Host); err == nil && len(ns) > 0 {
		for _, n := range ns {
			rep.Nameservers = append(rep.Nameservers, strings.TrimSuffix(n.Host, "."))
		}
		if rep.Class == DNSNXDomain || rep.Class == "" {
			rep.Class = DNSNoAddress
		}
	}

	if rep.Class == "" {
		rep.Class = DNSNXDomain
	}
	return rep
}
