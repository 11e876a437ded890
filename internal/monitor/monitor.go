// Package monitor ties the registry, scheduler and tracker together behind
// the API callers use: register targets, read their status, run the loop.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/reachmon/internal/domain"
	"github.com/hamed0406/reachmon/internal/probe"
	"github.com/hamed0406/reachmon/internal/registry"
	"github.com/hamed0406/reachmon/internal/repo"
	"github.com/hamed0406/reachmon/internal/scheduler"
	"github.com/hamed0406/reachmon/internal/sink"
	"github.com/hamed0406/reachmon/internal/tracker"
)

var ErrDuplicateTarget = errors.New("target already registered for this address")

type Options struct {
	MaxConcurrent int
	ShutdownGrace time.Duration
	// FirstProbeDelay postpones the first probe of a new registration.
	FirstProbeDelay time.Duration
	// Store persists registrations; nil keeps them in memory only.
	Store repo.TargetStore
}

type Monitor struct {
	logger    *zap.Logger
	registry  *registry.Registry
	tracker   *tracker.Tracker
	scheduler *scheduler.Scheduler
	store     repo.TargetStore
	delay     time.Duration
	now       func() time.Time

	// serializes registry, tracker and scheduler updates
	mu sync.Mutex
}

func New(logger *zap.Logger, p probe.Prober, s sink.Sink, opts Options) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Monitor{
		logger:   logger,
		registry: registry.New(),
		tracker:  tracker.New(logger, s),
		store:    opts.Store,
		delay:    opts.FirstProbeDelay,
		now:      time.Now,
	}
	m.scheduler = scheduler.New(logger, p, m.observe, scheduler.Options{
		MaxConcurrent: opts.MaxConcurrent,
		ShutdownGrace: opts.ShutdownGrace,
	})
	return m
}

func (m *Monitor) observe(ctx context.Context, r domain.ProbeResult, gen uint64) {
	m.tracker.Observe(ctx, r, gen)
}

// Register adds t, or replaces the registration with the same ID. The new
// registration starts from Unknown and is probed after FirstProbeDelay.
func (m *Monitor) Register(ctx context.Context, t domain.Target) (domain.TargetID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.register(ctx, t, true)
}

// RegisterUnique is Register but refuses a new target whose host and port
// are already monitored.
func (m *Monitor) RegisterUnique(ctx context.Context, t domain.Target) (domain.TargetID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.registry.FindByAddress(t.Host, t.Port); ok && existing.ID != t.ID {
		return existing.ID, fmt.Errorf("%w: %s", ErrDuplicateTarget, t.Address())
	}
	return m.register(ctx, t, true)
}

func (m *Monitor) register(ctx context.Context, t domain.Target, persist bool) (domain.TargetID, error) {
	reg, err := m.registry.Register(t)
	if err != nil {
		return "", err
	}
	m.tracker.Reset(reg.Target, reg.Gen)
	m.scheduler.Add(reg.Target, reg.Gen, m.now().Add(m.delay))

	m.logger.Info("target_registered",
		zap.String("target_id", string(reg.Target.ID)),
		zap.String("address", reg.Target.Address()),
		zap.String("method", string(reg.Target.Method())),
		zap.Duration("interval", reg.Target.Interval),
		zap.Uint64("gen", reg.Gen),
	)

	if persist && m.store != nil {
		if err := m.store.Save(ctx, reg.Target); err != nil {
			m.logger.Warn("target_persist_error", zap.String("target_id", string(reg.Target.ID)), zap.Error(err))
		}
	}
	return reg.Target.ID, nil
}

// Unregister stops monitoring id. A probe already in flight finishes but
// its result is discarded. Unknown IDs are a no-op.
func (m *Monitor) Unregister(ctx context.Context, id domain.TargetID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := m.registry.Unregister(id)
	m.tracker.Remove(id)
	m.scheduler.Remove(id)
	if !removed {
		return false
	}
	m.logger.Info("target_unregistered", zap.String("target_id", string(id)))

	if m.store != nil {
		if err := m.store.Delete(ctx, id); err != nil {
			m.logger.Warn("target_persist_error", zap.String("target_id", string(id)), zap.Error(err))
		}
	}
	return true
}

// Restore registers every target held by the store. Targets that no longer
// validate are skipped and reported.
func (m *Monitor) Restore(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	targets, err := m.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("load targets: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var errs error
	n := 0
	for _, t := range targets {
		if _, err := m.register(ctx, t, false); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("target %s: %w", t.ID, err))
			continue
		}
		n++
	}
	return n, errs
}

func (m *Monitor) Get(id domain.TargetID) (domain.Target, bool) {
	reg, ok := m.registry.Get(id)
	return reg.Target, ok
}

// List returns all targets in registration order.
func (m *Monitor) List() []domain.Target { return m.registry.List() }

func (m *Monitor) State(id domain.TargetID) (domain.TargetState, bool) {
	return m.tracker.State(id)
}

func (m *Monitor) States() []domain.TargetState { return m.tracker.States() }

func (m *Monitor) Stats() scheduler.Stats { return m.scheduler.Stats() }

// Run probes registered targets until ctx is cancelled and in-flight
// probes have finished or been abandoned.
func (m *Monitor) Run(ctx context.Context) error {
	err := m.scheduler.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
