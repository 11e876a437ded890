package probe

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	protocolICMP     = 1
	protocolIPv6ICMP = 58
)

// EchoProber sends a single ICMP echo request per probe.
//
// By default it uses unprivileged datagram sockets ("udp4"/"udp6"), which on
// Linux require the process group to be inside net.ipv4.ping_group_range.
// Privileged mode opens raw sockets and needs CAP_NET_RAW.
type EchoProber struct {
	privileged bool
	id         int
	seq        atomic.Uint32
}

func NewEchoProber(privileged bool) *EchoProber {
	return &EchoProber{privileged: privileged, id: os.Getpid() & 0xffff}
}

func (p *EchoProber) Ping(ctx context.Context, ip net.IPAddr) (time.Duration, error) {
	v6 := ip.IP.To4() == nil
	network, laddr := p.network(v6)

	conn, err := icmp.ListenPacket(network, laddr)
	if err != nil {
		return 0, fmt.Errorf("icmp listen %s: %w", network, err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	seq := int(p.seq.Add(1) & 0xffff)
	token := make([]byte, 16)
	_, _ = rand.Read(token)

	var typ icmp.Type = ipv4.ICMPTypeEcho
	if v6 {
		typ = ipv6.ICMPTypeEchoRequest
	}
	msg := icmp.Message{Type: typ, Body: &icmp.Echo{ID: p.id, Seq: seq, Data: token}}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return 0, fmt.Errorf("icmp marshal: %w", err)
	}

	var dst net.Addr = &ip
	if !p.privileged {
		dst = &net.UDPAddr{IP: ip.IP, Zone: ip.Zone}
	}

	start := time.Now()
	if _, err := conn.WriteTo(wb, dst); err != nil {
		return 0, err
	}

	proto := protocolICMP
	if v6 {
		proto = protocolIPv6ICMP
	}
	rb := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(rb)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			return 0, err
		}
		rm, err := icmp.ParseMessage(proto, rb[:n])
		if err != nil {
			continue
		}
		switch rm.Type {
		case ipv4.ICMPTypeEchoReply, ipv6.ICMPTypeEchoReply:
			echo, ok := rm.Body.(*icmp.Echo)
			if !ok || echo.Seq != seq || !bytes.Equal(echo.Data, token) {
				continue
			}
			// unprivileged sockets get their echo ID rewritten by the kernel
			if p.privileged && echo.ID != p.id {
				continue
			}
			return time.Since(start), nil
		case ipv4.ICMPTypeDestinationUnreachable, ipv6.ICMPTypeDestinationUnreachable:
			du, ok := rm.Body.(*icmp.DstUnreach)
			if !ok || !quotesEcho(du.Data, v6, seq) {
				continue
			}
			return 0, fmt.Errorf("%w: code %d from %s", ErrDestinationUnreachable, rm.Code, peer)
		}
	}
}

func (p *EchoProber) network(v6 bool) (string, string) {
	switch {
	case v6 && p.privileged:
		return "ip6:ipv6-icmp", "::"
	case v6:
		return "udp6", "::"
	case p.privileged:
		return "ip4:icmp", "0.0.0.0"
	default:
		return "udp4", "0.0.0.0"
	}
}

// quotesEcho reports whether the original datagram quoted inside an ICMP
// error carries our echo request with the given sequence number.
func quotesEcho(data []byte, v6 bool, seq int) bool {
	hdr := 40
	if !v6 {
		if len(data) < 1 {
			return false
		}
		hdr = int(data[0]&0x0f) * 4
	}
	// type, code, checksum, id, seq
	if len(data) < hdr+8 {
		return false
	}
	return int(binary.BigEndian.Uint16(data[hdr+6:hdr+8])) == seq
}
