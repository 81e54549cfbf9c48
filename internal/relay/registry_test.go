package relay

import (
	"fmt"
	"sync"
	"testing"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	h := NewHandle("alice")
	if err := r.Register(h); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	handles := r.Lookup("alice")
	if len(handles) != 1 || handles[0] != h {
		t.Fatalf("expected lookup to return the registered handle, got %v", handles)
	}
	if r.Count() != 1 {
		t.Errorf("expected count 1, got %d", r.Count())
	}
}

func TestRegistry_DeregisterPrunesEmptyKey(t *testing.T) {
	r := NewRegistry()

	h := NewHandle("alice")
	if err := r.Register(h); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	r.Deregister(h)

	if got := r.Lookup("alice"); len(got) != 0 {
		t.Fatalf("expected empty lookup after deregister, got %v", got)
	}
	r.mu.RLock()
	_, keyPresent := r.handles["alice"]
	r.mu.RUnlock()
	if keyPresent {
		t.Fatal("empty key should have been pruned from the registry")
	}
	if r.Count() != 0 {
		t.Errorf("expected count 0, got %d", r.Count())
	}
}

func TestRegistry_DeregisterIsIdempotent(t *testing.T) {
	r := NewRegistry()

	h := NewHandle("alice")
	if err := r.Register(h); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	r.Deregister(h)
	r.Deregister(h)

	if r.Count() != 0 {
		t.Errorf("double deregister should not decrement below zero, count=%d", r.Count())
	}
}

func TestRegistry_LookupReturnsSnapshot(t *testing.T) {
	r := NewRegistry()

	h := NewHandle("alice")
	if err := r.Register(h); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	snapshot := r.Lookup("alice")
	r.Deregister(h)

	// The snapshot taken before the deregistration must be unaffected.
	if len(snapshot) != 1 || snapshot[0] != h {
		t.Fatal("snapshot should not observe registry mutations after Lookup")
	}
}

func TestRegistry_CountAcrossKeys(t *testing.T) {
	r := NewRegistry()

	for i := 0; i < 3; i++ {
		if err := r.Register(NewHandle("alice")); err != nil {
			t.Fatalf("register failed: %v", err)
		}
	}
	if err := r.Register(NewHandle(BroadcastKey)); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if r.Count() != 4 {
		t.Errorf("expected count 4, got %d", r.Count())
	}
}

func TestRegistry_RegisterAfterCloseFails(t *testing.T) {
	r := NewRegistry()
	r.Close()

	if err := r.Register(NewHandle("alice")); err != ErrRegistryClosed {
		t.Fatalf("expected ErrRegistryClosed, got %v", err)
	}
}

func TestRegistry_CloseSignalsHandles(t *testing.T) {
	r := NewRegistry()

	h := NewHandle("alice")
	if err := r.Register(h); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	r.Close()

	select {
	case <-h.Done():
	default:
		t.Fatal("close should have signalled the registered handle")
	}
	select {
	case <-r.Done():
	default:
		t.Fatal("registry done channel should be closed")
	}
	if r.Count() != 0 {
		t.Errorf("expected count 0 after close, got %d", r.Count())
	}

	// Second close is a no-op.
	r.Close()
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("user-%d", n%4)
			for j := 0; j < 100; j++ {
				h := NewHandle(key)
				if err := r.Register(h); err != nil {
					t.Errorf("register failed: %v", err)
					return
				}
				r.Lookup(key)
				r.Count()
				r.Deregister(h)
			}
		}(i)
	}
	wg.Wait()

	if r.Count() != 0 {
		t.Errorf("expected empty registry after concurrent churn, count=%d", r.Count())
	}
}
