package docstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func setupTestStore(t *testing.T, opts ...Option) *SQLStore {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now), WithPollInterval(0)}, opts...)
	store := New(filepath.Join(t.TempDir(), "test.db"), opts...)
	if err := store.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

type note struct {
	Title  string   `json:"title"`
	UserID string   `json:"user_id"`
	Tags   []string `json:"tags,omitempty"`
	Done   bool     `json:"done"`
}

func receive(t *testing.T, sub *Subscription) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return Snapshot{}
}

func TestSQLStore_CRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	id, err := store.Add(ctx, "notes", note{Title: "first", UserID: "u1"})
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if id == "" {
		t.Fatal("Add() returned an empty id")
	}

	doc, err := store.Get(ctx, "notes", id)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	var got note
	if err := doc.Decode(&got); err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if got.Title != "first" || got.UserID != "u1" {
		t.Errorf("Get() = %+v", got)
	}

	if err := store.Update(ctx, "notes", id, map[string]any{"done": true}); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	doc, _ = store.Get(ctx, "notes", id)
	got = note{}
	doc.Decode(&got)
	if !got.Done || got.Title != "first" {
		t.Errorf("Update() should merge fields, got %+v", got)
	}
	if !doc.UpdatedAt.After(doc.CreatedAt) {
		t.Errorf("UpdatedAt %v should be after CreatedAt %v", doc.UpdatedAt, doc.CreatedAt)
	}

	if err := store.Set(ctx, "notes", id, map[string]any{"title": "renamed"}, true); err != nil {
		t.Fatalf("Set(merge) failed: %v", err)
	}
	doc, _ = store.Get(ctx, "notes", id)
	got = note{}
	doc.Decode(&got)
	if got.Title != "renamed" || !got.Done {
		t.Errorf("Set(merge) = %+v, want renamed and done", got)
	}

	if err := store.Set(ctx, "notes", id, note{Title: "replaced", UserID: "u1"}, false); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	doc, _ = store.Get(ctx, "notes", id)
	got = note{}
	doc.Decode(&got)
	if got.Done {
		t.Error("Set() without merge should replace the body")
	}

	if err := store.Delete(ctx, "notes", id); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := store.Get(ctx, "notes", id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestSQLStore_CreateConflict(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, "settings", "u1", map[string]any{"user_id": "u1"}); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	err := store.Create(ctx, "settings", "u1", map[string]any{"user_id": "u1"})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("second Create() error = %v, want ErrAlreadyExists", err)
	}
	if err := store.Update(ctx, "settings", "missing", map[string]any{"x": 1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() on missing doc error = %v, want ErrNotFound", err)
	}
}

func TestSQLStore_QueryFiltersAndOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	docs := []note{
		{Title: "a", UserID: "u1", Tags: []string{"Monday", "Tuesday"}},
		{Title: "b", UserID: "u2", Tags: []string{"Monday"}},
		{Title: "c", UserID: "u1", Tags: []string{"Friday"}},
	}
	for _, d := range docs {
		if _, err := store.Add(ctx, "notes", d); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
	}
	// Legacy document storing a scalar where an array is expected.
	if err := store.Create(ctx, "notes", "legacy", map[string]any{"title": "d", "user_id": "u1", "tags": "Monday"}); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	tests := []struct {
		name    string
		filters []Filter
		want    []string
	}{
		{name: "all", want: []string{"a", "b", "c", "d"}},
		{name: "owner", filters: []Filter{Where("user_id", "u1")}, want: []string{"a", "c", "d"}},
		{name: "owner and day", filters: []Filter{Where("user_id", "u1"), ArrayContains("tags", "Monday")}, want: []string{"a", "d"}},
		{name: "no match", filters: []Filter{Where("user_id", "u3")}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Query(ctx, "notes", tt.filters...)
			if err != nil {
				t.Fatalf("Query() failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Query() returned %d docs, want %d", len(got), len(tt.want))
			}
			for i, doc := range got {
				var n note
				doc.Decode(&n)
				if n.Title != tt.want[i] {
					t.Errorf("Query()[%d] = %q, want %q", i, n.Title, tt.want[i])
				}
			}
		})
	}
}

func TestSQLStore_BatchPreconditionRollsBack(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	mine, _ := store.Add(ctx, "notes", note{Title: "mine", UserID: "u1"})
	theirs, _ := store.Add(ctx, "notes", note{Title: "theirs", UserID: "u2"})

	err := store.Batch(ctx, []Write{
		UpdateWrite("notes", mine, map[string]any{"done": true}, OwnedBy("u1")),
		UpdateWrite("notes", theirs, map[string]any{"done": true}, OwnedBy("u1")),
	})
	if !errors.Is(err, ErrPrecondition) {
		t.Fatalf("Batch() error = %v, want ErrPrecondition", err)
	}

	for _, id := range []string{mine, theirs} {
		doc, err := store.Get(ctx, "notes", id)
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		var n note
		doc.Decode(&n)
		if n.Done {
			t.Errorf("document %s was written despite the failed batch", id)
		}
	}

	if err := store.Delete(ctx, "notes", theirs, OwnedBy("u1")); !errors.Is(err, ErrPrecondition) {
		t.Errorf("Delete() of another user's doc error = %v, want ErrPrecondition", err)
	}
	if _, err := store.Get(ctx, "notes", theirs); err != nil {
		t.Errorf("document should survive a rejected delete: %v", err)
	}
}

func TestSubscribe_InitialAndAfterCommit(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	store.Add(ctx, "notes", note{Title: "existing", UserID: "u1"})

	sub, err := store.Subscribe(ctx, "notes", Where("user_id", "u1"))
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	defer sub.Unsubscribe()

	first := receive(t, sub)
	if len(first.Docs) != 1 {
		t.Fatalf("initial snapshot has %d docs, want 1", len(first.Docs))
	}

	store.Add(ctx, "notes", note{Title: "new", UserID: "u1"})
	second := receive(t, sub)
	if len(second.Docs) != 2 {
		t.Errorf("snapshot after commit has %d docs, want 2", len(second.Docs))
	}
	if second.Seq <= first.Seq {
		t.Errorf("Seq did not increase: %d then %d", first.Seq, second.Seq)
	}

	// Writes to other collections do not wake the subscription.
	store.Add(ctx, "other", note{Title: "x", UserID: "u1"})
	select {
	case snap := <-sub.C:
		t.Errorf("unexpected snapshot %d after unrelated write", snap.Seq)
	default:
	}
}

func TestSubscribe_KeepsLatestSnapshot(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	sub, err := store.Subscribe(ctx, "notes")
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	defer sub.Unsubscribe()

	for i := 0; i < 3; i++ {
		store.Add(ctx, "notes", note{Title: "n", UserID: "u1"})
	}

	snap := receive(t, sub)
	if len(snap.Docs) != 3 {
		t.Errorf("pending snapshot has %d docs, want the latest state with 3", len(snap.Docs))
	}
	select {
	case extra := <-sub.C:
		t.Errorf("stale snapshot %d was not dropped", extra.Seq)
	default:
	}
}

func TestSubscribe_UnsubscribeClosesChannel(t *testing.T) {
	store := setupTestStore(t)

	sub, err := store.Subscribe(context.Background(), "notes")
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	sub.Unsubscribe()
	sub.Unsubscribe()

	for range sub.C {
	}
	store.Add(context.Background(), "notes", note{Title: "after", UserID: "u1"})
}

func TestSubscribe_ContextCancel(t *testing.T) {
	store := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := store.Subscribe(ctx, "notes")
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	cancel()

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after context cancel")
	}
}

func TestSQLStore_PollsExternalCommits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")

	writer := New(path, WithPollInterval(0))
	if err := writer.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	defer writer.Close()

	reader := New(path, WithPollInterval(10*time.Millisecond))
	if err := reader.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	defer reader.Close()

	sub, err := reader.Subscribe(context.Background(), "notes")
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	defer sub.Unsubscribe()
	receive(t, sub)

	if _, err := writer.Add(context.Background(), "notes", note{Title: "remote", UserID: "u1"}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	snap := receive(t, sub)
	if len(snap.Docs) != 1 {
		t.Errorf("snapshot after external commit has %d docs, want 1", len(snap.Docs))
	}
}

func TestSQLStore_LoadRequiresInit(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "missing.db"))
	if err := store.Load(); err == nil {
		t.Error("Load() should fail before Init()")
	}
}

func TestSQLStore_ClosedStore(t *testing.T) {
	store := setupTestStore(t)
	sub, err := store.Subscribe(context.Background(), "notes")
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Close() should end open subscriptions")
	}
}
