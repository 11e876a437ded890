package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hamed0406/reachmon/internal/domain"
	"github.com/hamed0406/reachmon/internal/probe"
	"github.com/hamed0406/reachmon/internal/repo"
)

var _ repo.Store = (*Store)(nil)

// Store keeps everything in process memory. Histories are capped per target
// so a long-running process does not grow without bound.
type Store struct {
	mu          sync.RWMutex
	maxHistory  int
	targets     map[domain.TargetID]domain.Target
	results     map[domain.TargetID][]domain.ProbeResult
	transitions map[domain.TargetID][]domain.TransitionEvent
	scans       []repo.ScanRow
	alerts      map[domain.TargetID]repo.AlertRecord
}

const defaultMaxHistory = 1000

func New() *Store {
	return &Store{
		maxHistory:  defaultMaxHistory,
		targets:     make(map[domain.TargetID]domain.Target),
		results:     make(map[domain.TargetID][]domain.ProbeResult),
		transitions: make(map[domain.TargetID][]domain.TransitionEvent),
		alerts:      make(map[domain.TargetID]repo.AlertRecord),
	}
}

func (m *Store) Close() error { return nil }

// ---- TargetStore ----

func (m *Store) Save(ctx context.Context, t domain.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets[t.ID] = t
	return nil
}

func (m *Store) Delete(ctx context.Context, id domain.TargetID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.targets, id)
	return nil
}

func (m *Store) List(ctx context.Context) ([]domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Target, 0, len(m.targets))
	for _, t := range m.targets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ---- ResultStore ----

func (m *Store) Append(ctx context.Context, r domain.ProbeResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[r.TargetID] = capped(append(m.results[r.TargetID], r), m.maxHistory)
	return nil
}

func (m *Store) Latest(ctx context.Context) ([]domain.ProbeResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.ProbeResult, 0, len(m.results))
	for _, rs := range m.results {
		if len(rs) == 0 {
			continue
		}
		latest := rs[0]
		for _, r := range rs[1:] {
			if r.CheckedAt.After(latest.CheckedAt) {
				latest = r
			}
		}
		out = append(out, latest)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out, nil
}

func (m *Store) History(ctx context.Context, id domain.TargetID, limit int) ([]domain.ProbeResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(m.results[id], repo.Limit(limit)), nil
}

// ---- TransitionStore ----

func (m *Store) AppendTransition(ctx context.Context, e domain.TransitionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[e.TargetID] = capped(append(m.transitions[e.TargetID], e), m.maxHistory)
	return nil
}

func (m *Store) Transitions(ctx context.Context, id domain.TargetID, limit int) ([]domain.TransitionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(m.transitions[id], repo.Limit(limit)), nil
}

// ---- ScanStore ----

func (m *Store) AppendScan(ctx context.Context, rep probe.ScanReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range rep.Ports {
		m.scans = append(m.scans, repo.ScanRow{Host: rep.Host, Port: p.Port, Open: p.Open, ScannedAt: rep.StartedAt})
	}
	m.scans = capped(m.scans, m.maxHistory*10)
	return nil
}

func (m *Store) Scans(ctx context.Context, host string, limit int) ([]repo.ScanRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rows []repo.ScanRow
	for _, r := range m.scans {
		if host == "" || r.Host == host {
			rows = append(rows, r)
		}
	}
	return newestFirst(rows, repo.Limit(limit)), nil
}

// ---- AlertStore ----

func (m *Store) GetAlert(ctx context.Context, id domain.TargetID) (*repo.AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.alerts[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Store) SetAlert(ctx context.Context, id domain.TargetID, status domain.Status, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := repo.AlertRecord{TargetID: id, LastStatus: status}
	if !sentAt.IsZero() {
		ts := sentAt
		rec.LastSentAt = &ts
	}
	m.alerts[id] = rec
	return nil
}

func capped[T any](s []T, max int) []T {
	if max > 0 && len(s) > max {
		return append(s[:0:0], s[len(s)-max:]...)
	}
	return s
}

// newestFirst copies up to limit trailing elements in reverse order.
func newestFirst[T any](s []T, limit int) []T {
	n := len(s)
	if n > limit {
		n = limit
	}
	out := make([]T, 0, n)
	for i := len(s) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s[i])
	}
	return out
}
