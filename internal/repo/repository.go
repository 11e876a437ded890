package repo

import (
	"context"
	"errors"

	"github.com/hamed0406/reachmon/internal/domain"
	"github.com/hamed0406/reachmon/internal/probe"
)

// ErrNotFound is returned by lookups that find no row.
var ErrNotFound = errors.New("not found")

// DefaultLimit bounds history queries when the caller passes limit <= 0.
const DefaultLimit = 100

// Ports (interfaces) implemented by the memory, postgres and sqlite adapters.

// TargetStore persists registrations so they survive a restart.
type TargetStore interface {
	Save(ctx context.Context, t domain.Target) error
	Delete(ctx context.Context, id domain.TargetID) error
	List(ctx context.Context) ([]domain.Target, error)
}

type ResultStore interface {
	Append(ctx context.Context, r domain.ProbeResult) error
	// Latest returns the newest result of every target that has one.
	Latest(ctx context.Context) ([]domain.ProbeResult, error)
	// History returns up to limit results of one target, newest first.
	History(ctx context.Context, id domain.TargetID, limit int) ([]domain.ProbeResult, error)
}

type TransitionStore interface {
	AppendTransition(ctx context.Context, e domain.TransitionEvent) error
	Transitions(ctx context.Context, id domain.TargetID, limit int) ([]domain.TransitionEvent, error)
}

// ScanStore keeps ad-hoc port scan outcomes, one row per scanned port.
type ScanStore interface {
	AppendScan(ctx context.Context, rep probe.ScanReport) error
	Scans(ctx context.Context, host string, limit int) ([]ScanRow, error)
}

// Store is everything a backend provides.
type Store interface {
	TargetStore
	ResultStore
	TransitionStore
	ScanStore
	AlertStore
	Close() error
}

// Limit applies DefaultLimit to non-positive limits.
func Limit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
