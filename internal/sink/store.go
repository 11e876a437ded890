package sink

import (
	"context"

	"github.com/hamed0406/reachmon/internal/domain"
	"github.com/hamed0406/reachmon/internal/repo"
)

// Store persists results and transitions. Either store may be nil.
type Store struct {
	Results     repo.ResultStore
	Transitions repo.TransitionStore
}

func (s Store) RecordResult(ctx context.Context, r domain.ProbeResult) error {
	if s.Results == nil {
		return nil
	}
	return s.Results.Append(ctx, r)
}

func (s Store) RecordTransition(ctx context.Context, e domain.TransitionEvent) error {
	if s.Transitions == nil {
		return nil
	}
	return s.Transitions.AppendTransition(ctx, e)
}
