package recycler

import (
	"context"
	"testing"
	"time"

	"github.com/fioncat/csync/pkg/events"
	"github.com/fioncat/csync/pkg/models"
	"github.com/fioncat/csync/pkg/revision"
	"github.com/fioncat/csync/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(&store.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// createBlob inserts a text blob whose recycle_time is now+ttl.
func createBlob(t *testing.T, s *store.Store, owner, content string, now time.Time, ttl time.Duration) *models.Blob {
	t.Helper()

	var blob *models.Blob
	err := s.Transaction(context.Background(), func(tx *store.Tx) error {
		var err error
		blob, err = tx.CreateBlob(store.CreateBlobParams{
			Data:     []byte(content),
			BlobType: models.BlobTypeText,
			Sha256:   content + "-digest",
			Owner:    owner,
		}, now, ttl)
		return err
	})
	if err != nil {
		t.Fatalf("create blob: %v", err)
	}
	return blob
}

func assertBlobExists(t *testing.T, s *store.Store, id int64, want bool) {
	t.Helper()

	err := s.Transaction(context.Background(), func(tx *store.Tx) error {
		ok, err := tx.HasBlob(id)
		if err != nil {
			return err
		}
		if ok != want {
			t.Errorf("blob %d exists = %v, want %v", id, ok, want)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("check blob %d: %v", id, err)
	}
}

func TestSweepDeletesExpired(t *testing.T) {
	s := newTestStore(t)
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	register := revision.NewRegister()

	sub, err := bus.Subscribe("alice")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	past := time.Now().Add(-2 * time.Hour)
	expired := createBlob(t, s, "alice", "old", past, time.Hour)
	fresh := createBlob(t, s, "alice", "new", time.Now(), time.Hour)

	// Pinned blobs carry recycle_time 0 and survive every sweep.
	pinned := createBlob(t, s, "alice", "keep", past, time.Hour)
	pin := true
	err = s.Transaction(context.Background(), func(tx *store.Tx) error {
		_, err := tx.UpdateBlob(store.BlobPatch{ID: pinned.ID, Pin: &pin}, past, time.Hour)
		return err
	})
	if err != nil {
		t.Fatalf("pin blob: %v", err)
	}

	r := New(s, bus, register, time.Minute)
	if err := r.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	rev, _ := register.Snapshot()
	if rev != 1 {
		t.Errorf("revision = %d, want 1", rev)
	}

	select {
	case event := <-sub.C():
		if event.Type != models.EventDelete {
			t.Errorf("event type = %q, want %q", event.Type, models.EventDelete)
		}
		if len(event.Items) != 1 || event.Items[0].ID != expired.ID {
			t.Errorf("event items = %+v, want id [%d]", event.Items, expired.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no delete event after sweep")
	}

	assertBlobExists(t, s, expired.ID, false)
	assertBlobExists(t, s, fresh.ID, true)
	assertBlobExists(t, s, pinned.ID, true)
}

func TestSweepNothingExpired(t *testing.T) {
	s := newTestStore(t)
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	register := revision.NewRegister()

	blob := createBlob(t, s, "alice", "fresh", time.Now(), time.Hour)

	r := New(s, bus, register, time.Minute)
	if err := r.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	rev, _ := register.Snapshot()
	if rev != 0 {
		t.Errorf("revision = %d, want 0 (no mutation)", rev)
	}
	assertBlobExists(t, s, blob.ID, true)
}

func TestStartSweepsPeriodically(t *testing.T) {
	s := newTestStore(t)
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	register := revision.NewRegister()

	sub, err := bus.Subscribe("alice")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	expired := createBlob(t, s, "alice", "old", time.Now().Add(-2*time.Hour), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	r := New(s, bus, register, 20*time.Millisecond)
	r.Start(ctx)

	select {
	case event := <-sub.C():
		if len(event.Items) != 1 || event.Items[0].ID != expired.ID {
			t.Errorf("event items = %+v, want id [%d]", event.Items, expired.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("recycler never swept")
	}

	cancel()
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("recycler did not stop")
	}
}
