package state

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// runStoreContract checks the behaviour every backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("unseen thread is empty", func(t *testing.T) {
		store := newStore(t)
		got, err := store.Load(ctx, "never-used")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got == nil || len(got) != 0 {
			t.Fatalf("Load() = %#v, want empty non-nil slice", got)
		}
	})

	t.Run("append order is load order", func(t *testing.T) {
		store := newStore(t)
		if err := store.Append(ctx, "t1", NewMessage(RoleUser, "m1")); err != nil {
			t.Fatalf("Append(m1) error = %v", err)
		}
		if err := store.Append(ctx, "t1", NewMessage(RoleAssistant, "m2")); err != nil {
			t.Fatalf("Append(m2) error = %v", err)
		}
		if err := store.Append(ctx, "t1",
			NewMessage(RoleUser, "m3"),
			NewMessage(RoleTool, "m4"),
			NewMessage(RoleAssistant, "m5"),
		); err != nil {
			t.Fatalf("Append(m3..m5) error = %v", err)
		}

		got, err := store.Load(ctx, "t1")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(got) != 5 {
			t.Fatalf("Load() returned %d messages, want 5", len(got))
		}
		wantRoles := []Role{RoleUser, RoleAssistant, RoleUser, RoleTool, RoleAssistant}
		for i, m := range got {
			if m.Content != fmt.Sprintf("m%d", i+1) {
				t.Fatalf("message %d content = %q", i, m.Content)
			}
			if m.Role != wantRoles[i] {
				t.Fatalf("message %d role = %q, want %q", i, m.Role, wantRoles[i])
			}
			if m.Seq != int64(i+1) {
				t.Fatalf("message %d seq = %d, want %d", i, m.Seq, i+1)
			}
		}
	})

	t.Run("threads are isolated", func(t *testing.T) {
		store := newStore(t)
		if err := store.Append(ctx, "a", NewMessage(RoleUser, "for a")); err != nil {
			t.Fatalf("Append(a) error = %v", err)
		}
		if err := store.Append(ctx, "b", NewMessage(RoleUser, "for b")); err != nil {
			t.Fatalf("Append(b) error = %v", err)
		}
		got, err := store.Load(ctx, "b")
		if err != nil {
			t.Fatalf("Load(b) error = %v", err)
		}
		if len(got) != 1 || got[0].Content != "for b" {
			t.Fatalf("Load(b) = %#v", got)
		}
	})

	t.Run("bookkeeping-like ids are ordinary threads", func(t *testing.T) {
		store := newStore(t)
		ids := []string{"index", "threads", "META", "t1"}
		for _, id := range ids {
			if err := store.Append(ctx, id, NewMessage(RoleUser, "q "+id), NewMessage(RoleAssistant, "a "+id)); err != nil {
				t.Fatalf("Append(%s) error = %v", id, err)
			}
		}
		for _, id := range ids {
			got, err := store.Load(ctx, id)
			if err != nil {
				t.Fatalf("Load(%s) error = %v", id, err)
			}
			if len(got) != 2 || got[0].Content != "q "+id {
				t.Fatalf("Load(%s) = %#v", id, got)
			}
		}
	})

	t.Run("blank thread id rejected", func(t *testing.T) {
		store := newStore(t)
		if err := store.Append(ctx, "  ", NewMessage(RoleUser, "x")); !errors.Is(err, ErrInvalidThread) {
			t.Fatalf("Append() error = %v, want ErrInvalidThread", err)
		}
		if _, err := store.Load(ctx, ""); !errors.Is(err, ErrInvalidThread) {
			t.Fatalf("Load() error = %v, want ErrInvalidThread", err)
		}
	})

	t.Run("invalid role rejected without partial write", func(t *testing.T) {
		store := newStore(t)
		err := store.Append(ctx, "t2", NewMessage(RoleUser, "ok"), Message{Role: "system", Content: "bad"})
		if !errors.Is(err, ErrInvalidMessage) {
			t.Fatalf("Append() error = %v, want ErrInvalidMessage", err)
		}
		got, err := store.Load(ctx, "t2")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("Load() = %#v, want nothing persisted", got)
		}
	})
}

func TestMemoryStoreContract(t *testing.T) {
	t.Parallel()

	runStoreContract(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestTail(t *testing.T) {
	t.Parallel()

	msgs := []Message{{Seq: 1}, {Seq: 2}, {Seq: 3}}
	if got := Tail(msgs, 2); len(got) != 2 || got[0].Seq != 2 {
		t.Fatalf("Tail(2) = %#v", got)
	}
	if got := Tail(msgs, 0); len(got) != 3 {
		t.Fatalf("Tail(0) = %#v", got)
	}
	if got := Tail(msgs, 10); len(got) != 3 {
		t.Fatalf("Tail(10) = %#v", got)
	}
}

func TestOpenWithoutCheckpointingUsesMemory(t *testing.T) {
	t.Parallel()

	store, err := Open(context.Background(), Config{Backend: BackendPostgres, Checkpointing: false})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("Open() = %T, want *MemoryStore", store)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), Config{Backend: "etcd", Checkpointing: true}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
