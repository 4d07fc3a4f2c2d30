package outbox

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-playground/assert/v2"

	"relaychat/internal/model"
)

func msg(id, to, body string) *model.Message {
	return &model.Message{
		ServerMsgID: id,
		From:        "alice",
		To:          to,
		Body:        body,
		Timestamp:   1700000000000,
	}
}

func TestAddDuplicateIsError(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	if err := s.Add(ctx, msg("m1", "bob", "hi")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Add(ctx, msg("m1", "bob", "hi again")); err == nil {
		t.Fatal("expected duplicate id to be rejected")
	}
}

func TestRemoveReturnsEntryOnce(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	if err := s.Add(ctx, msg("m1", "bob", "hi")); err != nil {
		t.Fatalf("add: %v", err)
	}

	m, err := s.Remove(ctx, "m1")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	assert.Equal(t, "bob", m.To)
	assert.Equal(t, "hi", m.Body)

	// a second remove for the same id reports absence, not an error
	m, err = s.Remove(ctx, "m1")
	if err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if m != nil {
		t.Fatalf("expected absence, got %+v", m)
	}
}

func TestRemoveUnknownID(t *testing.T) {
	s := NewMemory()

	m, err := s.Remove(context.Background(), "never-added")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if m != nil {
		t.Fatalf("expected absence, got %+v", m)
	}
}

func TestRemovePrunesOrder(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := s.Add(ctx, msg(fmt.Sprintf("m%d", i), "bob", "hi")); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	for i := 0; i < 10; i++ {
		if _, err := s.Remove(ctx, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("remove: %v", err)
		}
	}

	// removed ids do not linger in the insertion-order index
	s.mu.Lock()
	remaining := len(s.order)
	s.mu.Unlock()
	assert.Equal(t, 0, remaining)

	// insertion order is still correct for entries added afterwards
	if err := s.Add(ctx, msg("m10", "bob", "later")); err != nil {
		t.Fatalf("add: %v", err)
	}
	got, err := s.DrainFor(ctx, "bob")
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	assert.Equal(t, 1, len(got))
	assert.Equal(t, "later", got[0].Body)
}

func TestDrainForInsertionOrder(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	for _, m := range []*model.Message{
		msg("m1", "bob", "first"),
		msg("m2", "carol", "not for bob"),
		msg("m3", "bob", "second"),
		msg("m4", "bob", "third"),
	} {
		if err := s.Add(ctx, m); err != nil {
			t.Fatalf("add %s: %v", m.ServerMsgID, err)
		}
	}

	got, err := s.DrainFor(ctx, "bob")
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	assert.Equal(t, 3, len(got))
	assert.Equal(t, "first", got[0].Body)
	assert.Equal(t, "second", got[1].Body)
	assert.Equal(t, "third", got[2].Body)
}

func TestDrainDoesNotRemove(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	if err := s.Add(ctx, msg("m1", "bob", "hi")); err != nil {
		t.Fatalf("add: %v", err)
	}

	// draining twice yields the same entry both times; only an
	// acknowledgment removes it
	for i := 0; i < 2; i++ {
		got, err := s.DrainFor(ctx, "bob")
		if err != nil {
			t.Fatalf("drain %d: %v", i, err)
		}
		assert.Equal(t, 1, len(got))
	}

	if _, err := s.Remove(ctx, "m1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got, err := s.DrainFor(ctx, "bob")
	if err != nil {
		t.Fatalf("drain after remove: %v", err)
	}
	assert.Equal(t, 0, len(got))
}
