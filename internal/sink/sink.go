// Package sink defines the event sink contract through which probe results
// and status transitions leave the monitoring core, plus the concrete
// sinks the reachmon binary wires up (storage, alerting, metrics, logs).
package sink

import (
	"context"

	"go.uber.org/multierr"

	"github.com/hamed0406/reachmon/internal/domain"
)

// Sink consumes probe results and transition events. Calls are
// fire-and-forget from the core's point of view: returned errors are logged
// by the caller and never retried.
type Sink interface {
	RecordResult(ctx context.Context, r domain.ProbeResult) error
	RecordTransition(ctx context.Context, e domain.TransitionEvent) error
}

// Multi fans out to every sink, collecting all errors.
type Multi []Sink

func (m Multi) RecordResult(ctx context.Context, r domain.ProbeResult) error {
	var err error
	for _, s := range m {
		if s == nil {
			continue
		}
		err = multierr.Append(err, s.RecordResult(ctx, r))
	}
	return err
}

func (m Multi) RecordTransition(ctx context.Context, e domain.TransitionEvent) error {
	var err error
	for _, s := range m {
		if s == nil {
			continue
		}
		err = multierr.Append(err, s.RecordTransition(ctx, e))
	}
	return err
}

// Discard drops everything.
type Discard struct{}

func (Discard) RecordResult(context.Context, domain.ProbeResult) error         { return nil }
func (Discard) RecordTransition(context.Context, domain.TransitionEvent) error { return nil }
