package items

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/julianstephens/routineo/internal/constants"
	"github.com/julianstephens/routineo/internal/docstore"
	apperrors "github.com/julianstephens/routineo/internal/errors"
	"github.com/julianstephens/routineo/internal/models"
)

// 2025-03-10 is a Monday.
var monday = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

func setupTestStore(t *testing.T) *docstore.SQLStore {
	t.Helper()
	store := docstore.New(filepath.Join(t.TempDir(), "test.db"), docstore.WithPollInterval(0))
	if err := store.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newRepo(store docstore.Store, userID string) *Repository {
	return New(store, models.User{ID: userID}, WithClock(func() time.Time { return monday }), WithLocation(time.UTC))
}

func draft(name string, parts models.PartSet, days models.DaySet) models.ItemDraft {
	return models.ItemDraft{Name: name, PartOfDay: parts, DayOfWeek: days}
}

func mustCreate(t *testing.T, r *Repository, d models.ItemDraft) models.RoutineItem {
	t.Helper()
	item, err := r.Create(context.Background(), d)
	if err != nil {
		t.Fatalf("Create(%s) failed: %v", d.Name, err)
	}
	return item
}

func orderOf(t *testing.T, r *Repository, id string) int {
	t.Helper()
	item, err := r.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if item.Order == nil {
		t.Fatalf("item %s has no order", id)
	}
	return *item.Order
}

func TestRepository_CreateDefaultsOrder(t *testing.T) {
	store := setupTestStore(t)
	r := newRepo(store, "u1")
	morningMon := models.PartSet{models.Morning}
	mon := models.DaySet{time.Monday}

	a := mustCreate(t, r, draft("A", morningMon, mon))
	b := mustCreate(t, r, draft("  B  ", morningMon, mon))
	c := mustCreate(t, r, draft("C", models.PartSet{models.Evening}, mon))

	if *a.Order != 0 || *b.Order != 1 || *c.Order != 0 {
		t.Errorf("orders = %d, %d, %d; want 0, 1, 0", *a.Order, *b.Order, *c.Order)
	}
	if b.Name != "B" {
		t.Errorf("Name = %q, want trimmed", b.Name)
	}
	if a.IsChecked {
		t.Error("new items must be unchecked")
	}
	if a.CreatedAt == nil || !a.CreatedAt.Equal(monday) {
		t.Errorf("CreatedAt = %v, want %v", a.CreatedAt, monday)
	}

	if _, err := r.Create(context.Background(), draft("", morningMon, mon)); !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("Create() with empty name error = %v, want validation", err)
	}
}

func TestRepository_ListModes(t *testing.T) {
	store := setupTestStore(t)
	r := newRepo(store, "u1")
	other := newRepo(store, "u2")

	mustCreate(t, r, draft("Mon", models.PartSet{models.Morning}, models.DaySet{time.Monday}))
	mustCreate(t, r, draft("Tue", models.PartSet{models.Morning}, models.DaySet{time.Tuesday}))
	mustCreate(t, other, draft("Theirs", models.PartSet{models.Morning}, models.DaySet{time.Monday}))

	today, err := r.List(context.Background(), ModeToday)
	if err != nil {
		t.Fatalf("List(today) failed: %v", err)
	}
	if len(today) != 1 || today[0].Name != "Mon" {
		t.Errorf("List(today) = %v, want only Mon", today)
	}

	all, err := r.List(context.Background(), ModeAll)
	if err != nil {
		t.Fatalf("List(all) failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("List(all) returned %d items, want 2 (other users excluded)", len(all))
	}
}

func TestRepository_LegacyShapeIsMatched(t *testing.T) {
	store := setupTestStore(t)
	r := newRepo(store, "u1")

	err := store.Create(context.Background(), constants.CollectionItems, "legacy", map[string]any{
		"name": "Old", "part_of_day": "evening", "day_of_week": "Monday", "is_checked": true, "user_id": "u1",
	})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	active, err := r.ListActiveOn(context.Background(), time.Monday)
	if err != nil {
		t.Fatalf("ListActiveOn() failed: %v", err)
	}
	if len(active) != 1 || !active[0].PartOfDay.Contains(models.Evening) {
		t.Fatalf("ListActiveOn() = %v, want the legacy item", active)
	}

	n, err := NormalizeAll(context.Background(), store)
	if err != nil || n != 1 {
		t.Fatalf("NormalizeAll() = %d, %v; want 1", n, err)
	}
	doc, _ := store.Get(context.Background(), constants.CollectionItems, "legacy")
	body, _ := doc.Fields()
	if _, ok := body["day_of_week"].([]any); !ok {
		t.Errorf("day_of_week = %#v, want an array after normalizing", body["day_of_week"])
	}
	if n, _ := NormalizeAll(context.Background(), store); n != 0 {
		t.Errorf("second NormalizeAll() rewrote %d items, want 0", n)
	}
}

func TestRepository_EditAndToggle(t *testing.T) {
	store := setupTestStore(t)
	r := newRepo(store, "u1")
	item := mustCreate(t, r, draft("Walk", models.PartSet{models.Morning}, models.DaySet{time.Monday}))

	name := "Long walk"
	if err := r.Edit(context.Background(), item.ID, models.ItemPatch{Name: &name, PartOfDay: models.PartSet{models.Evening}}); err != nil {
		t.Fatalf("Edit() failed: %v", err)
	}
	if err := r.SetChecked(context.Background(), item.ID, true); err != nil {
		t.Fatalf("SetChecked() failed: %v", err)
	}

	got, err := r.Get(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Name != name || !got.PartOfDay.Contains(models.Evening) || got.PartOfDay.Contains(models.Morning) {
		t.Errorf("Get() after Edit = %+v", got)
	}
	if !got.IsChecked || *got.Order != 0 {
		t.Errorf("Edit() should not touch order or checked state: %+v", got)
	}
}

func TestRepository_CrossUserMutationsRejected(t *testing.T) {
	store := setupTestStore(t)
	mine := newRepo(store, "u1")
	theirs := newRepo(store, "u2")
	item := mustCreate(t, theirs, draft("Private", models.PartSet{models.Morning}, models.DaySet{time.Monday}))
	ctx := context.Background()

	checks := map[string]error{
		"toggle": mine.SetChecked(ctx, item.ID, true),
		"delete": mine.Delete(ctx, item.ID),
		"clear":  func() error { _, err := mine.ClearChecked(ctx, []models.RoutineItem{item}); return err }(),
	}
	for name, err := range checks {
		if !apperrors.Is(err, apperrors.ErrForbidden) {
			t.Errorf("%s error = %v, want forbidden", name, err)
		}
	}
	if _, err := mine.Get(ctx, item.ID); !apperrors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("Get() of another user's item error = %v, want forbidden", err)
	}
	if _, err := theirs.Get(ctx, item.ID); err != nil {
		t.Errorf("owner can no longer read the item: %v", err)
	}
}

func TestRepository_Reorder(t *testing.T) {
	store := setupTestStore(t)
	r := newRepo(store, "u1")
	morningMon := models.PartSet{models.Morning}
	mon := models.DaySet{time.Monday}
	bucket := models.Bucket{Day: time.Monday, Part: models.Morning}

	a := mustCreate(t, r, draft("A", morningMon, mon))
	b := mustCreate(t, r, draft("B", morningMon, mon))
	c := mustCreate(t, r, draft("C", morningMon, mon))
	// Shares A's Monday/morning slot but is also on Tuesday, where it has its own order.
	shared := mustCreate(t, r, models.ItemDraft{Name: "D", PartOfDay: morningMon, DayOfWeek: models.DaySet{time.Monday, time.Tuesday}, Order: intPtr(7)})
	elsewhere := mustCreate(t, r, models.ItemDraft{Name: "E", PartOfDay: models.PartSet{models.Evening}, DayOfWeek: mon, Order: intPtr(5)})

	if err := r.Reorder(context.Background(), bucket, []string{shared.ID, c.ID, a.ID, b.ID}); err != nil {
		t.Fatalf("Reorder() failed: %v", err)
	}
	want := map[string]int{shared.ID: 0, c.ID: 1, a.ID: 2, b.ID: 3}
	for id, order := range want {
		if got := orderOf(t, r, id); got != order {
			t.Errorf("order of %s = %d, want %d", id, got, order)
		}
	}
	if got := orderOf(t, r, elsewhere.ID); got != 5 {
		t.Errorf("item in another bucket changed order to %d", got)
	}
}

func TestRepository_ReorderRejects(t *testing.T) {
	store := setupTestStore(t)
	r := newRepo(store, "u1")
	other := newRepo(store, "u2")
	morningMon := models.PartSet{models.Morning}
	mon := models.DaySet{time.Monday}
	bucket := models.Bucket{Day: time.Monday, Part: models.Morning}

	a := mustCreate(t, r, draft("A", morningMon, mon))
	b := mustCreate(t, r, draft("B", morningMon, mon))
	foreign := mustCreate(t, other, draft("X", morningMon, mon))

	tests := []struct {
		name   string
		bucket models.Bucket
		ids    []string
		want   error
	}{
		{name: "missing item", bucket: bucket, ids: []string{b.ID}, want: apperrors.ErrValidation},
		{name: "duplicate id", bucket: bucket, ids: []string{a.ID, a.ID}, want: apperrors.ErrValidation},
		{name: "foreign item", bucket: bucket, ids: []string{b.ID, a.ID, foreign.ID}, want: apperrors.ErrForbidden},
		{name: "unknown bucket", bucket: models.Bucket{Day: time.Monday, Part: "noon"}, ids: []string{a.ID, b.ID}, want: apperrors.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Reorder(context.Background(), tt.bucket, tt.ids)
			if !apperrors.Is(err, tt.want) {
				t.Fatalf("Reorder() error = %v, want %v", err, tt.want)
			}
			if orderOf(t, r, a.ID) != 0 || orderOf(t, r, b.ID) != 1 {
				t.Error("a rejected reorder must not write any order")
			}
		})
	}
}

func TestRepository_ClearChecked(t *testing.T) {
	store := setupTestStore(t)
	r := newRepo(store, "u1")
	a := mustCreate(t, r, draft("A", models.PartSet{models.Morning}, models.DaySet{time.Monday}))
	b := mustCreate(t, r, draft("B", models.PartSet{models.Morning}, models.DaySet{time.Monday}))
	r.SetChecked(context.Background(), a.ID, true)
	r.SetChecked(context.Background(), b.ID, true)

	n, err := r.ClearChecked(context.Background(), []models.RoutineItem{a, b})
	if err != nil || n != 2 {
		t.Fatalf("ClearChecked() = %d, %v", n, err)
	}
	for _, id := range []string{a.ID, b.ID} {
		item, _ := r.Get(context.Background(), id)
		if item.IsChecked {
			t.Errorf("item %s still checked", id)
		}
	}
}

func intPtr(i int) *int { return &i }
