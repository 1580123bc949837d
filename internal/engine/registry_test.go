package engine

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Get("missing"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Expected ErrUnknownSession, got %v", err)
	}

	a := newTestSession(t, commentPort(), 5, "u1")
	b := newTestSession(t, commentPort(), 5, "u2")
	r.Add(a)
	r.Add(b)

	got, err := r.Get(a.ID())
	if err != nil || got != a {
		t.Errorf("Expected to retrieve session %s, got %v (%v)", a.ID(), got, err)
	}
	if r.Len() != 2 {
		t.Errorf("Expected 2 sessions, got %d", r.Len())
	}

	want := []string{a.ID(), b.ID()}
	if want[0] > want[1] {
		want[0], want[1] = want[1], want[0]
	}
	if ids := r.IDs(); !reflect.DeepEqual(ids, want) {
		t.Errorf("Expected sorted ids %v, got %v", want, ids)
	}

	r.Remove(a.ID())
	if _, err := r.Get(a.ID()); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Expected removal to take effect, got %v", err)
	}
}

func TestRegistry_PruneTerminated(t *testing.T) {
	r := NewRegistry()

	live := newTestSession(t, commentPort(), 5, "u1")
	done := newTestSession(t, commentPort(), 5, "u2")
	done.Terminate(StopRoundBudget)
	r.Add(live)
	r.Add(done)

	// The freshly terminated session is inside the ttl.
	if n := r.PruneTerminated(time.Minute); n != 0 {
		t.Errorf("Expected nothing pruned inside ttl, got %d", n)
	}

	if n := r.PruneTerminated(0); n != 1 {
		t.Errorf("Expected 1 session pruned, got %d", n)
	}
	if _, err := r.Get(done.ID()); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Expected terminated session gone, got %v", err)
	}
	if _, err := r.Get(live.ID()); err != nil {
		t.Errorf("Expected live session kept, got %v", err)
	}
}
