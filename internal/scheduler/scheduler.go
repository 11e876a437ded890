// Package scheduler drives periodic probing of registered targets. Each
// target keeps its own cadence in a min-heap of due times and probes run on
// a bounded set of slots, so a slow target never holds up the others.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/reachmon/internal/domain"
	"github.com/hamed0406/reachmon/internal/probe"
)

const (
	DefaultMaxConcurrent = 50
	DefaultShutdownGrace = 5 * time.Second
)

var ErrAlreadyRunning = errors.New("scheduler already running")

// ResultHandler receives every completed probe together with the
// registration generation it was issued for.
type ResultHandler func(ctx context.Context, r domain.ProbeResult, gen uint64)

type Options struct {
	MaxConcurrent int
	ShutdownGrace time.Duration
}

type Stats struct {
	Dispatched uint64
	Skipped    uint64
	Abandoned  uint64
	InFlight   int64
}

type opKind int

const (
	opAdd opKind = iota
	opRemove
)

type op struct {
	kind   opKind
	target domain.Target
	gen    uint64
	due    time.Time
}

type completion struct {
	id  domain.TargetID
	gen uint64
}

type Scheduler struct {
	logger        *zap.Logger
	prober        probe.Prober
	onResult      ResultHandler
	maxConcurrent int
	grace         time.Duration
	now           func() time.Time

	mu      sync.Mutex
	pending []op
	wake    chan struct{}
	running atomic.Bool

	// owned by the Run loop
	queue    dueQueue
	items    map[domain.TargetID]*item
	inflight map[domain.TargetID]bool
	done     chan completion

	dispatched atomic.Uint64
	skipped    atomic.Uint64
	abandoned  atomic.Uint64
	inFlight   atomic.Int64
}

func New(logger *zap.Logger, p probe.Prober, onResult ResultHandler, opts Options) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.ShutdownGrace < 0 {
		opts.ShutdownGrace = 0
	}
	if onResult == nil {
		onResult = func(context.Context, domain.ProbeResult, uint64) {}
	}
	return &Scheduler{
		logger:        logger,
		prober:        p,
		onResult:      onResult,
		maxConcurrent: opts.MaxConcurrent,
		grace:         opts.ShutdownGrace,
		now:           time.Now,
		wake:          make(chan struct{}, 1),
		items:         make(map[domain.TargetID]*item),
		inflight:      make(map[domain.TargetID]bool),
		done:          make(chan completion, opts.MaxConcurrent),
	}
}

// Add schedules t (registration generation gen) with its first probe due
// at firstDue. Adding an already scheduled target replaces its schedule.
func (s *Scheduler) Add(t domain.Target, gen uint64, firstDue time.Time) {
	s.enqueue(op{kind: opAdd, target: t, gen: gen, due: firstDue})
}

// Remove cancels the pending schedule of id. An in-flight probe is not
// aborted; its result is left for the handler to drop.
func (s *Scheduler) Remove(id domain.TargetID) {
	s.enqueue(op{kind: opRemove, target: domain.Target{ID: id}})
}

func (s *Scheduler) Stats() Stats {
	return Stats{
		Dispatched: s.dispatched.Load(),
		Skipped:    s.skipped.Load(),
		Abandoned:  s.abandoned.Load(),
		InFlight:   s.inFlight.Load(),
	}
}

func (s *Scheduler) enqueue(o op) {
	s.mu.Lock()
	s.pending = append(s.pending, o)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) applyPending() {
	s.mu.Lock()
	ops := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, o := range ops {
		switch o.kind {
		case opAdd:
			if it, ok := s.items[o.target.ID]; ok {
				it.target, it.gen, it.due = o.target, o.gen, o.due
				heap.Fix(&s.queue, it.index)
				continue
			}
			it := &item{target: o.target, gen: o.gen, due: o.due}
			heap.Push(&s.queue, it)
			s.items[o.target.ID] = it
		case opRemove:
			if it, ok := s.items[o.target.ID]; ok {
				heap.Remove(&s.queue, it.index)
				delete(s.items, o.target.ID)
			}
		}
	}
}

// Run is the scheduler loop. It blocks until ctx is cancelled, then stops
// issuing probes and gives in-flight probes the shutdown grace period to
// finish before cancelling them. Results of cancelled probes are dropped.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	resultCtx := context.WithoutCancel(ctx)
	probeCtx, cancelProbes := context.WithCancel(resultCtx)
	defer cancelProbes()

	sem := make(chan struct{}, s.maxConcurrent)
	var wg sync.WaitGroup

	timer := time.NewTimer(time.Hour)
	stopTimer(timer)

	s.logger.Info("scheduler_started", zap.Int("max_concurrent", s.maxConcurrent))

	for {
		if ctx.Err() != nil {
			stopTimer(timer)
			s.shutdown(&wg, cancelProbes)
			return nil
		}
		s.applyPending()
		s.dispatchDue(ctx, probeCtx, resultCtx, sem, &wg)

		var timerC <-chan time.Time
		if s.queue.Len() > 0 && len(sem) < cap(sem) {
			wait := s.queue[0].due.Sub(s.now())
			if wait < 0 {
				wait = 0
			}
			timer.Reset(wait)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			s.shutdown(&wg, cancelProbes)
			return nil
		case <-s.wake:
		case c := <-s.done:
			delete(s.inflight, c.id)
		case <-timerC:
		}
		stopTimer(timer)
	}
}

// dispatchDue issues probes for every due item while probe slots are free.
// A due target whose previous probe is still running is skipped for this
// interval. It stops as soon as runCtx is cancelled.
func (s *Scheduler) dispatchDue(runCtx, probeCtx, resultCtx context.Context, sem chan struct{}, wg *sync.WaitGroup) {
	now := s.now()
	for s.queue.Len() > 0 && runCtx.Err() == nil {
		it := s.queue[0]
		if it.due.After(now) {
			return
		}

		if s.inflight[it.target.ID] {
			s.skipped.Add(1)
			s.logger.Warn("scheduler_probe_skipped",
				zap.String("target_id", string(it.target.ID)),
				zap.String("address", it.target.Address()),
				zap.String("why", "previous_probe_in_flight"),
			)
			s.reschedule(it, now)
			continue
		}

		select {
		case sem <- struct{}{}:
		default:
			// all slots busy; wait for a completion
			return
		}

		s.inflight[it.target.ID] = true
		s.dispatched.Add(1)
		s.inFlight.Add(1)
		wg.Add(1)
		go s.runProbe(probeCtx, resultCtx, it.target, it.gen, sem, wg)

		s.reschedule(it, now)
	}
}

func (s *Scheduler) runProbe(probeCtx, resultCtx context.Context, t domain.Target, gen uint64, sem chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	defer func() { <-sem }()
	defer s.inFlight.Add(-1)

	res := s.prober.Probe(probeCtx, t)

	if probeCtx.Err() != nil {
		s.abandoned.Add(1)
		s.logger.Info("scheduler_probe_abandoned",
			zap.String("target_id", string(t.ID)),
			zap.String("address", t.Address()),
		)
	} else {
		s.logger.Debug("scheduler_probed",
			zap.String("target_id", string(t.ID)),
			zap.String("address", t.Address()),
			zap.Bool("success", res.Success),
			zap.Float64("latency_ms", res.LatencyMS()),
			zap.String("reason", string(res.Reason)),
		)
		s.onResult(resultCtx, res, gen)
	}

	// May block while the loop is busy; Run and shutdown both drain done.
	s.done <- completion{id: t.ID, gen: gen}
}

// reschedule moves it to its next due time: one interval after the previous
// due time, skipping whole intervals that already passed.
func (s *Scheduler) reschedule(it *item, now time.Time) {
	interval := it.target.Interval
	next := it.due.Add(interval)
	if !next.After(now) {
		missed := now.Sub(next)/interval + 1
		next = next.Add(missed * interval)
	}
	it.due = next
	heap.Fix(&s.queue, it.index)
}

func (s *Scheduler) shutdown(wg *sync.WaitGroup, cancelProbes context.CancelFunc) {
	s.logger.Info("scheduler_stopping",
		zap.Int64("in_flight", s.inFlight.Load()),
		zap.Duration("grace", s.grace),
	)

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	// Keep draining done while waiting: a probe blocked on its completion
	// send would otherwise hold wg forever.
	grace := time.NewTimer(s.grace)
	defer grace.Stop()
	for waiting := true; waiting; {
		select {
		case <-finished:
			waiting = false
		case c := <-s.done:
			delete(s.inflight, c.id)
		case <-grace.C:
			if s.grace > 0 {
				s.logger.Warn("scheduler_grace_expired", zap.Int64("in_flight", s.inFlight.Load()))
			}
			cancelProbes()
		}
	}
	cancelProbes()

	// drain completions so a later Run starts clean
	for {
		select {
		case c := <-s.done:
			delete(s.inflight, c.id)
		default:
			s.logger.Info("scheduler_stopped")
			return
		}
	}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
