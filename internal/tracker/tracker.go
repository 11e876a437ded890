// Package tracker keeps the debounced up/down status of every registered
// target and forwards results and status changes to the event sink.
package tracker

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/hamed0406/reachmon/internal/domain"
	"github.com/hamed0406/reachmon/internal/sink"
)

type entry struct {
	mu      sync.Mutex
	gen     uint64
	removed bool
	target  domain.Target
	state   domain.TargetState
}

// Tracker owns one state record per registered target. The map is guarded
// by an RWMutex; each record has its own mutex so results for unrelated
// targets are processed in parallel.
type Tracker struct {
	logger *zap.Logger
	sink   sink.Sink

	mu      sync.RWMutex
	entries map[domain.TargetID]*entry
}

func New(logger *zap.Logger, s sink.Sink) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if s == nil {
		s = sink.Discard{}
	}
	return &Tracker{
		logger:  logger,
		sink:    s,
		entries: make(map[domain.TargetID]*entry),
	}
}

// Reset starts tracking t from Unknown for registration generation gen,
// discarding any state of a previous registration.
func (t *Tracker) Reset(target domain.Target, gen uint64) {
	e := &entry{
		gen:    gen,
		target: target,
		state:  domain.TargetState{TargetID: target.ID, Status: domain.StatusUnknown},
	}

	t.mu.Lock()
	old := t.entries[target.ID]
	t.entries[target.ID] = e
	t.mu.Unlock()

	if old != nil {
		old.mu.Lock()
		old.removed = true
		old.mu.Unlock()
	}
}

// Remove discards the state of id. Results that arrive later are dropped.
func (t *Tracker) Remove(id domain.TargetID) {
	t.mu.Lock()
	e := t.entries[id]
	delete(t.entries, id)
	t.mu.Unlock()

	if e != nil {
		e.mu.Lock()
		e.removed = true
		e.mu.Unlock()
	}
}

// Observe applies one probe result. It returns false when the result was
// dropped because its target is gone or was re-registered since the probe
// was issued.
func (t *Tracker) Observe(ctx context.Context, r domain.ProbeResult, gen uint64) bool {
	t.mu.RLock()
	e := t.entries[r.TargetID]
	t.mu.RUnlock()

	if e == nil {
		t.logger.Debug("tracker_result_dropped",
			zap.String("target_id", string(r.TargetID)),
			zap.String("why", "not_registered"),
		)
		return false
	}

	e.mu.Lock()
	if e.removed || e.gen != gen {
		e.mu.Unlock()
		t.logger.Debug("tracker_result_dropped",
			zap.String("target_id", string(r.TargetID)),
			zap.String("why", "stale_registration"),
			zap.Uint64("gen", gen),
		)
		return false
	}
	ev, changed := apply(&e.state, e.target, r)
	e.mu.Unlock()

	if err := t.sink.RecordResult(ctx, r); err != nil {
		t.logger.Warn("sink_record_error",
			zap.String("kind", "result"),
			zap.String("target_id", string(r.TargetID)),
			zap.Error(err),
		)
	}
	if !changed {
		return true
	}

	t.logger.Info("tracker_transition",
		zap.String("target_id", string(ev.TargetID)),
		zap.String("address", e.target.Address()),
		zap.String("from", string(ev.From)),
		zap.String("to", string(ev.To)),
		zap.String("reason", string(r.Reason)),
	)
	if err := t.sink.RecordTransition(ctx, ev); err != nil {
		t.logger.Warn("sink_record_error",
			zap.String("kind", "transition"),
			zap.String("target_id", string(r.TargetID)),
			zap.Error(err),
		)
	}
	return true
}

// apply advances the state machine by one result. A status only changes
// once the streak for the new outcome reaches its threshold; the opposite
// counter resets on every result.
func apply(st *domain.TargetState, target domain.Target, r domain.ProbeResult) (domain.TransitionEvent, bool) {
	res := r
	st.LastResult = &res

	next := st.Status
	if r.Success {
		st.ConsecutiveSuccesses++
		st.ConsecutiveFailures = 0
		if st.Status != domain.StatusUp && st.ConsecutiveSuccesses >= target.RecoveryThreshold {
			next = domain.StatusUp
		}
	} else {
		st.ConsecutiveFailures++
		st.ConsecutiveSuccesses = 0
		if st.Status != domain.StatusDown && st.ConsecutiveFailures >= target.FailureThreshold {
			next = domain.StatusDown
		}
	}
	if next == st.Status {
		return domain.TransitionEvent{}, false
	}

	ev := domain.TransitionEvent{
		TargetID: target.ID,
		Host:     target.Host,
		Port:     target.Port,
		From:     st.Status,
		To:       next,
		At:       r.CheckedAt,
		Trigger:  r,
	}
	st.Status = next
	st.LastTransitionAt = r.CheckedAt
	return ev, true
}

func (t *Tracker) State(id domain.TargetID) (domain.TargetState, bool) {
	t.mu.RLock()
	e := t.entries[id]
	t.mu.RUnlock()
	if e == nil {
		return domain.TargetState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.state), true
}

// States returns a snapshot of every tracked target, ordered by target ID.
func (t *Tracker) States() []domain.TargetState {
	t.mu.RLock()
	entries := make([]*entry, 0, len(t.entries))
	for _, e := range t.entries {
		entries = append(entries, e)
	}
	t.mu.RUnlock()

	out := make([]domain.TargetState, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, snapshot(e.state))
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out
}

func snapshot(st domain.TargetState) domain.TargetState {
	if st.LastResult != nil {
		r := *st.LastResult
		st.LastResult = &r
	}
	return st
}
