package registry

import (
	"sync"

	"relaychat/internal/protocol"
)

type (
	// Handle is a live, writable transport channel bound to one
	// identity. The concrete type on the server side wraps a websocket
	// connection with a write lock.
	Handle interface {
		WriteFrame(f *protocol.Frame) error
	}

	// Registry maps each identity to its single live connection handle.
	// It is the authority on whether an identity is currently reachable.
	//
	// The server runs one reader goroutine per connection, so every
	// mutation races with lookups from other connections; a single
	// mutex serializes them.
	Registry struct {
		mu      sync.Mutex
		handles map[string]Handle
	}
)

func New() *Registry {
	return &Registry{
		handles: make(map[string]Handle),
	}
}

// Register binds identity to handle, replacing any existing binding.
// The prior handle is not closed here; its owning session tears it down.
func (r *Registry) Register(identity string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[identity] = h
}

// Unregister removes the binding if present. Calling it for an unknown
// identity is a no-op so that out-of-order close notifications are safe.
func (r *Registry) Unregister(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, identity)
}

// Lookup returns the current handle for identity, if any. The result
// reflects the most recent Register/Unregister call; an online-vs-offline
// routing decision is made on it.
func (r *Registry) Lookup(identity string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[identity]
	return h, ok
}

// ListOnline returns the identities currently registered, for presence
// fan-out.
func (r *Registry) ListOnline() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.handles))
	for identity := range r.handles {
		out = append(out, identity)
	}
	return out
}
