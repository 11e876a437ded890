package probe

import (
	"context"
	"net"
	"time"

	"github.com/hamed0406/reachmon/internal/domain"
)

// Prober performs a single reachability check against one target.
// Failures are reported in the result, never as a Go error.
type Prober interface {
	Probe(ctx context.Context, t domain.Target) domain.ProbeResult
}

// Resolver is the subset of *net.Resolver the executor needs.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Connector opens (and immediately closes) a TCP connection.
type Connector interface {
	Connect(ctx context.Context, ip net.IPAddr, port int) (time.Duration, error)
}

// Pinger sends one echo request and waits for the matching reply.
type Pinger interface {
	Ping(ctx context.Context, ip net.IPAddr) (time.Duration, error)
}

// Executor dispatches a target to the TCP connector when it has a port and
// to the echo pinger otherwise. It never retries and never blocks past the
// target's timeout.
type Executor struct {
	Resolver  Resolver
	Connector Connector
	Pinger    Pinger
	now       func() time.Time
}

type Options struct {
	// PrivilegedICMP uses raw ICMP sockets instead of unprivileged
	// UDP-ICMP datagram sockets.
	PrivilegedICMP bool
}

func NewExecutor(opts Options) *Executor {
	return &Executor{
		Resolver:  net.DefaultResolver,
		Connector: NewTCPProber(),
		Pinger:    NewEchoProber(opts.PrivilegedICMP),
		now:       time.Now,
	}
}

func (e *Executor) Probe(ctx context.Context, t domain.Target) domain.ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	at := e.clock().UTC()
	ip, err := e.resolve(ctx, t.Host)
	if err != nil {
		reason, detail := classify(ctx, err)
		return domain.Failed(t, at, reason, detail)
	}

	var latency time.Duration
	if t.HasPort() {
		latency, err = e.Connector.Connect(ctx, ip, t.Port)
	} else {
		latency, err = e.Pinger.Ping(ctx, ip)
	}
	if err != nil {
		reason, detail := classify(ctx, err)
		return domain.Failed(t, at, reason, detail)
	}
	return domain.Succeeded(t, at, latency)
}

func (e *Executor) clock() time.Time {
	if e.now == nil {
		return time.Now()
	}
	return e.now()
}

// resolve returns the address to probe, preferring IPv4. IP literals skip
// the lookup entirely.
func (e *Executor) resolve(ctx context.Context, host string) (net.IPAddr, error) {
	if ip := net.ParseIP(host); ip != nil {
		return net.IPAddr{IP: ip}, nil
	}
	addrs, err := e.Resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return net.IPAddr{}, err
	}
	if len(addrs) == 0 {
		return net.IPAddr{}, &net.DNSError{Err: "no addresses", Name: host, IsNotFound: true}
	}
	for _, a := range addrs {
		if a.IP.To4() != nil {
			return a, nil
		}
	}
	return addrs[0], nil
}
