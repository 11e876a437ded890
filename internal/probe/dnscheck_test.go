package probe

import (
	"context"
	"errors"
	"net"
	"testing"
)

type fakeDNS struct {
	addrs  []net.IPAddr
	err    error
	cname  string
	ns     []*net.NS
	lookup int
}

func (f *fakeDNS) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	f.lookup++
	return f.addrs, f.err
}

func (f *fakeDNS) LookupCNAME(ctx context.Context, host string) (string, error) {
	if f.cname == "" {
		return "", errors.New("no cname")
	}
	return f.cname, nil
}

func (f *fakeDNS) LookupNS(ctx context.Context, name string) ([]*net.NS, error) {
	if len(f.ns) == 0 {
		return nil, errors.New("no ns")
	}
	return f.ns, nil
}

func TestDiagnose(t *testing.T) {
	notFound := &net.DNSError{Err: "no such host", Name: "x", IsNotFound: true}

	tests := []struct {
		name  string
		host  string
		dns   *fakeDNS
		class DNSClass
		check func(t *testing.T, r DNSReport)
	}{
		{
			name:  "resolves with cname",
			host:  "www.example.internal",
			dns:   &fakeDNS{addrs: []net.IPAddr{{IP: net.ParseIP("192.0.2.5")}}, cname: "lb.example.internal."},
			class: DNSResolves,
			check: func(t *testing.T, r DNSReport) {
				if len(r.Addresses) != 1 || r.Addresses[0] != "192.0.2.5" {
					t.Errorf("addresses = %v", r.Addresses)
				}
				if r.CNAME != "lb.example.internal" {
					t.Errorf("cname = %q", r.CNAME)
				}
			},
		},
		{
			name:  "nxdomain",
			host:  "missing.example.internal",
			dns:   &fakeDNS{err: notFound},
			class: DNSNXDomain,
			check: func(t *testing.T, r DNSReport) {
				if r.ResolverError == "" {
					t.Errorf("expected resolver error text")
				}
			},
		},
		{
			name:  "zone without address",
			host:  "example.internal",
			dns:   &fakeDNS{err: notFound, ns: []*net.NS{{Host: "ns1.example.internal."}}},
			class: DNSNoAddress,
			check: func(t *testing.T, r DNSReport) {
				if len(r.Nameservers) != 1 || r.Nameservers[0] != "ns1.example.internal" {
					t.Errorf("nameservers = %v", r.Nameservers)
				}
			},
		},
		{
			name:  "servfail",
			host:  "broken.example.internal",
			dns:   &fakeDNS{err: &net.DNSError{Err: "server misbehaving", Name: "x", IsTemporary: true}},
			class: DNSResolverError,
		},
		{
			name:  "invalid name",
			host:  "https://example.com",
			dns:   &fakeDNS{},
			class: DNSInvalidName,
		},
		{
			name:  "ip literal skips lookup",
			host:  "198.51.100.7",
			dns:   &fakeDNS{},
			class: DNSLiteral,
			check: func(t *testing.T, r DNSReport) {
				if len(r.Addresses) != 1 {
					t.Errorf("addresses = %v", r.Addresses)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Diagnose(context.Background(), tt.dns, tt.host, 0)
			if r.Class != tt.class {
				t.Fatalf("class = %q, want %q", r.Class, tt.class)
			}
			if tt.check != nil {
				tt.check(t, r)
			}
			if tt.class == DNSLiteral || tt.class == DNSInvalidName {
				if tt.dns.lookup != 0 {
					t.Errorf("unexpected lookup")
				}
			}
		})
	}
}
