package sink

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hamed0406/reachmon/internal/domain"
)

const DefaultQueueSize = 1024

var (
	ErrQueueFull = errors.New("sink queue full")
	ErrClosed    = errors.New("sink closed")
)

type job struct {
	ctx        context.Context
	result     *domain.ProbeResult
	transition *domain.TransitionEvent
}

// Async hands records to next from a single worker goroutine so slow
// sinks never hold up the caller. When the queue is full the record is
// dropped and ErrQueueFull returned. Order is preserved.
type Async struct {
	next   Sink
	logger *zap.Logger
	queue  chan job

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	dropped atomic.Uint64
}

func NewAsync(logger *zap.Logger, next Sink, size int) *Async {
	if logger == nil {
		logger = zap.NewNop()
	}
	if size < 1 {
		size = DefaultQueueSize
	}
	a := &Async{
		next:   next,
		logger: logger,
		queue:  make(chan job, size),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) RecordResult(ctx context.Context, r domain.ProbeResult) error {
	return a.enqueue(job{ctx: ctx, result: &r})
}

func (a *Async) RecordTransition(ctx context.Context, e domain.TransitionEvent) error {
	return a.enqueue(job{ctx: ctx, transition: &e})
}

// enqueue detaches the record from the caller's cancellation so records
// queued before shutdown still reach next while Close drains.
func (a *Async) enqueue(j job) error {
	j.ctx = context.WithoutCancel(j.ctx)
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- j:
		return nil
	default:
		a.dropped.Add(1)
		return ErrQueueFull
	}
}

// Dropped reports how many records were discarded because the queue was full.
func (a *Async) Dropped() uint64 { return a.dropped.Load() }

// Close stops accepting records and waits until the queue is drained
// or ctx is done.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) run() {
	defer close(a.done)
	for j := range a.queue {
		var err error
		if j.result != nil {
			err = a.next.RecordResult(j.ctx, *j.result)
		} else {
			err = a.next.RecordTransition(j.ctx, *j.transition)
		}
		if err != nil {
			a.logger.Warn("sink_record_error", zap.Error(err))
		}
	}
}
