package registry

import (
	"sort"
	"testing"

	"github.com/go-playground/assert/v2"

	"relaychat/internal/protocol"
)

type fakeHandle struct {
	name string
}

func (f *fakeHandle) WriteFrame(*protocol.Frame) error { return nil }

func TestRegisterReplaces(t *testing.T) {
	r := New()
	first := &fakeHandle{name: "first"}
	second := &fakeHandle{name: "second"}

	r.Register("alice", first)
	h, ok := r.Lookup("alice")
	assert.Equal(t, true, ok)
	assert.Equal(t, first, h)

	// a new connection for the same identity replaces, never merges
	r.Register("alice", second)
	h, ok = r.Lookup("alice")
	assert.Equal(t, true, ok)
	assert.Equal(t, second, h)
	assert.Equal(t, 1, len(r.ListOnline()))
}

func TestUnregisterIdempotent(t *testing.T) {
	r := New()
	r.Register("bob", &fakeHandle{})

	r.Unregister("bob")
	_, ok := r.Lookup("bob")
	assert.Equal(t, false, ok)

	// second unregister and unknown identity are both no-ops
	r.Unregister("bob")
	r.Unregister("never-registered")
}

func TestLookupAbsent(t *testing.T) {
	r := New()
	h, ok := r.Lookup("nobody")
	assert.Equal(t, false, ok)
	if h != nil {
		t.Fatalf("expected nil handle, got %v", h)
	}
}

func TestListOnline(t *testing.T) {
	r := New()
	assert.Equal(t, 0, len(r.ListOnline()))

	r.Register("alice", &fakeHandle{})
	r.Register("bob", &fakeHandle{})
	r.Register("carol", &fakeHandle{})
	r.Unregister("bob")

	online := r.ListOnline()
	sort.Strings(online)
	assert.Equal(t, []string{"alice", "carol"}, online)
}
