package registry

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

type fakeHandle struct {
	id     uuid.UUID
	mu     sync.Mutex
	events []interface{}
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{id: uuid.New()}
}

func (h *fakeHandle) ID() uuid.UUID { return h.id }

func (h *fakeHandle) Deliver(event interface{}) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return true
}

func TestRegisterUnregister(t *testing.T) {
	r := New()
	h := newFakeHandle()

	r.Register(1, h)
	if !r.IsOnline(1) {
		t.Error("Expected user 1 to be online after register")
	}
	if got := len(r.HandlesFor(1)); got != 1 {
		t.Errorf("Expected 1 handle, got %d", got)
	}

	r.Unregister(1, h)
	if r.IsOnline(1) {
		t.Error("Expected user 1 to be offline after unregister")
	}
	if got := len(r.HandlesFor(1)); got != 0 {
		t.Errorf("Expected 0 handles, got %d", got)
	}
}

func TestRegisterIdempotent(t *testing.T) {
	r := New()
	h := newFakeHandle()

	r.Register(1, h)
	r.Register(1, h)

	if got := len(r.HandlesFor(1)); got != 1 {
		t.Errorf("Expected 1 handle after double register, got %d", got)
	}
}

func TestMultiDevice(t *testing.T) {
	r := New()
	h1 := newFakeHandle()
	h2 := newFakeHandle()

	r.Register(1, h1)
	r.Register(1, h2)

	if got := len(r.HandlesFor(1)); got != 2 {
		t.Fatalf("Expected 2 handles, got %d", got)
	}

	r.Unregister(1, h1)
	if !r.IsOnline(1) {
		t.Error("Expected user to stay online while one handle remains")
	}

	r.Unregister(1, h2)
	if r.IsOnline(1) {
		t.Error("Expected user to be offline after last handle unregisters")
	}
}

func TestUnregisterUnknownHandle(t *testing.T) {
	r := New()
	// Must not panic or corrupt state
	r.Unregister(7, newFakeHandle())
	if r.IsOnline(7) {
		t.Error("Expected user 7 to be offline")
	}
}

func TestOnlineUserIDs(t *testing.T) {
	r := New()
	r.Register(1, newFakeHandle())
	r.Register(2, newFakeHandle())

	ids := r.OnlineUserIDs()
	if len(ids) != 2 {
		t.Fatalf("Expected 2 online users, got %d", len(ids))
	}
	seen := map[int]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen[1] || !seen[2] {
		t.Errorf("Expected users 1 and 2 online, got %v", ids)
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()
			h := newFakeHandle()
			r.Register(userID%4, h)
			r.IsOnline(userID % 4)
			r.HandlesFor(userID % 4)
			r.Unregister(userID%4, h)
		}(i)
	}
	wg.Wait()

	for u := 0; u < 4; u++ {
		if r.IsOnline(u) {
			t.Errorf("Expected user %d to be offline after all unregisters", u)
		}
	}
}
