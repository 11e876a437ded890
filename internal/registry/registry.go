// Package registry holds the set of monitored targets.
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/reachmon/internal/domain"
)

// Registration is a target together with its registration generation.
// The generation changes on every (re-)registration so results produced
// for an older registration can be recognised and dropped.
type Registration struct {
	Target domain.Target
	Gen    uint64
}

type Registry struct {
	mu      sync.RWMutex
	entries map[domain.TargetID]Registration
	order   []domain.TargetID
	nextGen uint64
	now     func() time.Time
}

func New() *Registry {
	return &Registry{
		entries: make(map[domain.TargetID]Registration),
		now:     time.Now,
	}
}

// Register validates t and stores it. An empty ID gets a fresh UUID; an ID
// that is already present replaces that registration in place.
func (r *Registry) Register(t domain.Target) (Registration, error) {
	if err := t.Validate(); err != nil {
		return Registration{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if t.ID == "" {
		t.ID = domain.TargetID(uuid.NewString())
	}
	prev, exists := r.entries[t.ID]
	if t.CreatedAt.IsZero() {
		if exists {
			t.CreatedAt = prev.Target.CreatedAt
		} else {
			t.CreatedAt = r.now().UTC()
		}
	}

	r.nextGen++
	reg := Registration{Target: t, Gen: r.nextGen}
	r.entries[t.ID] = reg
	if !exists {
		r.order = append(r.order, t.ID)
	}
	return reg, nil
}

// Unregister removes id. It reports whether anything was removed.
func (r *Registry) Unregister(id domain.TargetID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *Registry) Get(id domain.TargetID) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[id]
	return reg, ok
}

// Current reports whether gen is still the live registration of id.
func (r *Registry) Current(id domain.TargetID, gen uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[id]
	return ok && reg.Gen == gen
}

// List returns the registered targets in insertion order.
func (r *Registry) List() []domain.Target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Target, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].Target)
	}
	return out
}

// FindByAddress returns the target probing the same host and port, if any.
func (r *Registry) FindByAddress(host string, port int) (domain.Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		t := r.entries[id].Target
		if t.Host == host && t.Port == port {
			return t, true
		}
	}
	return domain.Target{}, false
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
