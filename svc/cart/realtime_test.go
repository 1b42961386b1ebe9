package cart

import "testing"

func TestHubConnectionCount(t *testing.T) {
	h := NewHub()
	if h.ConnectionCount() != 0 {
		t.Fatalf("ConnectionCount = %d, want 0", h.ConnectionCount())
	}

	a := &wsClient{id: "a", sessionID: "s1", done: make(chan struct{})}
	b := &wsClient{id: "b", sessionID: "s1", done: make(chan struct{})}
	c := &wsClient{id: "c", sessionID: "s2", done: make(chan struct{})}
	h.register(a)
	h.register(b)
	h.register(c)

	if h.ConnectionCount() != 3 {
		t.Errorf("ConnectionCount = %d, want 3", h.ConnectionCount())
	}

	h.unregister(b)
	if h.ConnectionCount() != 2 {
		t.Errorf("ConnectionCount = %d, want 2", h.ConnectionCount())
	}

	// Unregistering twice must not double-count.
	h.unregister(b)
	if h.ConnectionCount() != 2 {
		t.Errorf("ConnectionCount after duplicate unregister = %d, want 2", h.ConnectionCount())
	}

	h.unregister(a)
	h.unregister(c)
	if h.ConnectionCount() != 0 {
		t.Errorf("ConnectionCount = %d, want 0 after all unregistered", h.ConnectionCount())
	}
}
