package probe

import (
	"context"
	"net"
	"strconv"
	"time"
)

// TCPProber checks a port by completing a TCP handshake.
type TCPProber struct {
	dialer net.Dialer
}

func NewTCPProber() *TCPProber {
	return &TCPProber{}
}

func (p *TCPProber) Connect(ctx context.Context, ip net.IPAddr, port int) (time.Duration, error) {
	addr := net.JoinHostPort(ip.String(), strconv.Itoa(port))
	start := time.Now()
	conn, err := p.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, err
	}
	latency := time.Since(start)
	_ = conn.Close()
	return latency, nil
}
