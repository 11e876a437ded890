package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hamed0406/reachmon/internal/domain"
)

func target(host string) domain.Target {
	return domain.Target{
		Host:              host,
		Interval:          time.Minute,
		Timeout:           time.Second,
		FailureThreshold:  3,
		RecoveryThreshold: 2,
	}
}

func TestRegistry_RegisterAssignsIDAndKeepsOrder(t *testing.T) {
	r := New()
	var ids []domain.TargetID
	for _, h := range []string{"a.example", "b.example", "c.example"} {
		reg, err := r.Register(target(h))
		if err != nil {
			t.Fatalf("Register(%s): %v", h, err)
		}
		if reg.Target.ID == "" || reg.Target.CreatedAt.IsZero() {
			t.Fatalf("expected ID and CreatedAt to be set: %+v", reg.Target)
		}
		ids = append(ids, reg.Target.ID)
	}

	all := r.List()
	if len(all) != 3 {
		t.Fatalf("want 3 targets, got %d", len(all))
	}
	for i, tgt := range all {
		if tgt.ID != ids[i] {
			t.Fatalf("position %d: want %s got %s", i, ids[i], tgt.ID)
		}
	}
}

func TestRegistry_RejectsInvalidConfig(t *testing.T) {
	r := New()
	bad := target("")
	if _, err := r.Register(bad); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("want ErrInvalidConfig, got %v", err)
	}
	bad = target("example.com")
	bad.Port = 70000
	if _, err := r.Register(bad); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("want ErrInvalidConfig for port, got %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("invalid targets must not be stored")
	}
}

func TestRegistry_ReregisterBumpsGenerationInPlace(t *testing.T) {
	r := New()
	first, _ := r.Register(target("a.example"))
	_, _ = r.Register(target("b.example"))

	again := target("a.example")
	again.ID = first.Target.ID
	again.Interval = 2 * time.Minute
	second, err := r.Register(again)
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if second.Gen == first.Gen {
		t.Fatalf("generation must change on re-registration")
	}
	if r.Current(first.Target.ID, first.Gen) {
		t.Fatalf("old generation must no longer be current")
	}
	if !second.Target.CreatedAt.Equal(first.Target.CreatedAt) {
		t.Fatalf("CreatedAt should be kept across re-registration")
	}
	all := r.List()
	if len(all) != 2 || all[0].ID != first.Target.ID || all[0].Interval != 2*time.Minute {
		t.Fatalf("unexpected list after re-register: %+v", all)
	}
}

func TestRegistry_UnregisterIdempotent(t *testing.T) {
	r := New()
	reg, _ := r.Register(target("a.example"))
	if !r.Unregister(reg.Target.ID) {
		t.Fatalf("first unregister should remove")
	}
	if r.Unregister(reg.Target.ID) {
		t.Fatalf("second unregister should be a no-op")
	}
	if _, ok := r.Get(reg.Target.ID); ok {
		t.Fatalf("target still present")
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			reg, err := r.Register(target(fmt.Sprintf("h%d.example", i)))
			if err == nil && i%2 == 0 {
				r.Unregister(reg.Target.ID)
			}
		}(i)
		go func() {
			defer wg.Done()
			_ = r.List()
		}()
	}
	wg.Wait()
	if r.Len() != 25 {
		t.Fatalf("want 25 targets left, got %d", r.Len())
	}
}
