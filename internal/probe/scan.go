package probe

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
)

const (
	DefaultScanTimeout = 500 * time.Millisecond
	DefaultScanWorkers = 50
	MaxScanWorkers     = 256
)

type PortStatus struct {
	Port int  `json:"port"`
	Open bool `json:"open"`
}

// ScanReport is the outcome of an ad-hoc port scan. Ports lists every
// scanned port in ascending order; Open only the open ones.
type ScanReport struct {
	Host      string        `json:"host"`
	Ports     []PortStatus  `json:"ports"`
	Open      []int         `json:"open"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}

// Scan connects to each port of host with a bounded pool of workers,
// at most MaxScanWorkers at once.
// The host is resolved once; a resolution failure fails the whole scan.
func (e *Executor) Scan(ctx context.Context, host string, ports []int, timeout time.Duration, workers int) (ScanReport, error) {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	if workers < 1 {
		workers = DefaultScanWorkers
	}
	workers = min(workers, MaxScanWorkers)

	started := e.clock().UTC()
	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	ip, err := e.resolve(rctx, host)
	cancel()
	if err != nil {
		return ScanReport{}, fmt.Errorf("resolve %s: %w", host, err)
	}

	statuses := make([]PortStatus, len(ports))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, port := range ports {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i, port int) {
			defer func() { <-sem }()
			defer wg.Done()

			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			_, err := e.Connector.Connect(cctx, ip, port)
			statuses[i] = PortStatus{Port: port, Open: err == nil}
		}(i, port)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return ScanReport{}, err
	}

	sort.Slice(statuses, func(a, b int) bool { return statuses[a].Port < statuses[b].Port })
	open := make([]int, 0)
	for _, s := range statuses {
		if s.Open {
			open = append(open, s.Port)
		}
	}
	return ScanReport{
		Host:      host,
		Ports:     statuses,
		Open:      open,
		StartedAt: started,
		Duration:  e.clock().UTC().Sub(started),
	}, nil
}

// ParsePorts parses "22,80,8000-8010" into a sorted, de-duplicated port
// list. Invalid parts are skipped and reported together in the error; the
// valid ports are still returned.
func ParsePorts(spec string) ([]int, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, fmt.Errorf("port list is empty")
	}

	set := make(map[int]struct{})
	var errs error
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err1 := strconv.Atoi(strings.TrimSpace(lo))
			end, err2 := strconv.Atoi(strings.TrimSpace(hi))
			if err1 != nil || err2 != nil {
				errs = multierr.Append(errs, fmt.Errorf("invalid port format: %q", part))
				continue
			}
			if !(0 < start && start <= end && end <= 65535) {
				errs = multierr.Append(errs, fmt.Errorf("invalid port range: %q", part))
				continue
			}
			for p := start; p <= end; p++ {
				set[p] = struct{}{}
			}
			continue
		}
		p, err := strconv.Atoi(part)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("invalid port format: %q", part))
			continue
		}
		if p < 1 || p > 65535 {
			errs = multierr.Append(errs, fmt.Errorf("invalid port number: %d", p))
			continue
		}
		set[p] = struct{}{}
	}

	out := make([]int, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Ints(out)
	return out, errs
}
