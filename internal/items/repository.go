// Package items is the user-scoped repository for routine items.
package items

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/julianstephens/routineo/internal/constants"
	"github.com/julianstephens/routineo/internal/docstore"
	apperrors "github.com/julianstephens/routineo/internal/errors"
	"github.com/julianstephens/routineo/internal/logger"
	"github.com/julianstephens/routineo/internal/models"
	"github.com/julianstephens/routineo/internal/validation"
)

// Mode selects which of the user's items a query returns.
type Mode int

const (
	ModeToday Mode = iota // items whose day_of_week contains today
	ModeAll
)

func (m Mode) String() string {
	if m == ModeAll {
		return "all"
	}
	return "today"
}

type Option func(*Repository)

func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

func WithLocation(loc *time.Location) Option {
	return func(r *Repository) { r.loc = loc }
}

// Repository reads and writes one user's items. Every mutation carries an
// ownership precondition, so the store rejects writes to another user's
// documents atomically.
type Repository struct {
	store docstore.Store
	user  models.User
	now   func() time.Time
	loc   *time.Location
}

func New(store docstore.Store, user models.User, opts ...Option) *Repository {
	r := &Repository{store: store, user: user, now: time.Now, loc: time.Local}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) User() models.User { return r.user }

// Today returns the current weekday in the repository's location.
func (r *Repository) Today() time.Weekday {
	return r.now().In(r.loc).Weekday()
}

func (r *Repository) filters(mode Mode) []docstore.Filter {
	filters := []docstore.Filter{docstore.Where(constants.FieldUserID, r.user.ID)}
	if mode == ModeToday {
		filters = append(filters, docstore.ArrayContains(constants.FieldDayOfWeek, r.Today().String()))
	}
	return filters
}

// Decode converts store documents to items in store order.
func Decode(docs []docstore.Document) ([]models.RoutineItem, error) {
	out := make([]models.RoutineItem, 0, len(docs))
	for _, doc := range docs {
		item, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// DecodeValid converts the documents that decode and returns the ids of
// those that do not.
func DecodeValid(docs []docstore.Document) ([]models.RoutineItem, []string) {
	out := make([]models.RoutineItem, 0, len(docs))
	var skipped []string
	for _, doc := range docs {
		item, err := decode(doc)
		if err != nil {
			skipped = append(skipped, doc.ID)
			continue
		}
		out = append(out, item)
	}
	return out, skipped
}

func decode(doc docstore.Document) (models.RoutineItem, error) {
	var item models.RoutineItem
	if err := doc.Decode(&item); err != nil {
		return models.RoutineItem{}, err
	}
	item.ID = doc.ID
	if item.CreatedAt == nil {
		created := doc.CreatedAt
		item.CreatedAt = &created
	}
	return item, nil
}

func (r *Repository) List(ctx context.Context, mode Mode) ([]models.RoutineItem, error) {
	docs, err := r.store.Query(ctx, constants.CollectionItems, r.filters(mode)...)
	if err != nil {
		return nil, apperrors.StoreRead("items.list", err)
	}
	items, err := Decode(docs)
	if err != nil {
		return nil, apperrors.StoreRead("items.list", err)
	}
	return items, nil
}

// ListActiveOn returns the user's items scheduled on day.
func (r *Repository) ListActiveOn(ctx context.Context, day time.Weekday) ([]models.RoutineItem, error) {
	docs, err := r.store.Query(ctx, constants.CollectionItems,
		docstore.Where(constants.FieldUserID, r.user.ID),
		docstore.ArrayContains(constants.FieldDayOfWeek, day.String()))
	if err != nil {
		return nil, apperrors.StoreRead("items.list_active", err)
	}
	items, err := Decode(docs)
	if err != nil {
		return nil, apperrors.StoreRead("items.list_active", err)
	}
	return items, nil
}

// Subscribe opens a live query over the user's items for mode.
func (r *Repository) Subscribe(ctx context.Context, mode Mode) (*docstore.Subscription, error) {
	sub, err := r.store.Subscribe(ctx, constants.CollectionItems, r.filters(mode)...)
	if err != nil {
		return nil, apperrors.StoreRead("items.subscribe", err)
	}
	return sub, nil
}

func (r *Repository) Get(ctx context.Context, id string) (models.RoutineItem, error) {
	doc, err := r.store.Get(ctx, constants.CollectionItems, id)
	if err != nil {
		return models.RoutineItem{}, apperrors.StoreRead("items.get", err)
	}
	item, err := decode(doc)
	if err != nil {
		return models.RoutineItem{}, apperrors.StoreRead("items.get", err)
	}
	if item.UserID != r.user.ID {
		return models.RoutineItem{}, apperrors.WithReason(apperrors.KindStoreRead, "items.get",
			apperrors.ReasonForbidden, fmt.Errorf("item %s belongs to another user", id))
	}
	return item, nil
}

// Create validates draft and inserts an unchecked item. A nil order places
// the item at the end of its first bucket.
func (r *Repository) Create(ctx context.Context, draft models.ItemDraft) (models.RoutineItem, error) {
	if err := validation.ValidateDraft(draft); err != nil {
		return models.RoutineItem{}, err
	}

	item := models.RoutineItem{
		Name:      strings.TrimSpace(draft.Name),
		PartOfDay: models.NewPartSet(draft.PartOfDay...),
		DayOfWeek: models.NewDaySet(draft.DayOfWeek...),
		Order:     draft.Order,
		UserID:    r.user.ID,
	}
	if item.Order == nil {
		n, err := r.bucketLen(ctx, item.Buckets()[0])
		if err != nil {
			return models.RoutineItem{}, err
		}
		item.Order = &n
	}
	created := r.now().UTC()
	item.CreatedAt = &created

	id, err := r.store.Add(ctx, constants.CollectionItems, item)
	if err != nil {
		return models.RoutineItem{}, apperrors.StoreWrite("items.create", err)
	}
	item.ID = id
	logger.Debug("Created item", "id", id, "bucket", item.Buckets()[0])
	return item, nil
}

func (r *Repository) bucketLen(ctx context.Context, b models.Bucket) (int, error) {
	items, err := r.ListActiveOn(ctx, b.Day)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, it := range items {
		if it.InBucket(b) {
			n++
		}
	}
	return n, nil
}

// Edit changes name, part_of_day, or day_of_week. Other fields are untouched.
func (r *Repository) Edit(ctx context.Context, id string, patch models.ItemPatch) error {
	if err := validation.ValidatePatch(patch); err != nil {
		return err
	}
	fields := map[string]any{}
	if patch.Name != nil {
		fields[constants.FieldName] = strings.TrimSpace(*patch.Name)
	}
	if patch.PartOfDay != nil {
		fields[constants.FieldPartOfDay] = models.NewPartSet(patch.PartOfDay...)
	}
	if patch.DayOfWeek != nil {
		fields[constants.FieldDayOfWeek] = models.NewDaySet(patch.DayOfWeek...)
	}
	if err := r.store.Update(ctx, constants.CollectionItems, id, fields, docstore.OwnedBy(r.user.ID)); err != nil {
		return apperrors.StoreWrite("items.edit", err)
	}
	return nil
}

// SetChecked writes the completion flag of one item.
func (r *Repository) SetChecked(ctx context.Context, id string, checked bool) error {
	err := r.store.Update(ctx, constants.CollectionItems, id,
		map[string]any{constants.FieldIsChecked: checked}, docstore.OwnedBy(r.user.ID))
	if err != nil {
		return apperrors.StoreWrite("items.toggle", err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, constants.CollectionItems, id, docstore.OwnedBy(r.user.ID)); err != nil {
		return apperrors.StoreWrite("items.delete", err)
	}
	return nil
}

// Reorder assigns order 0..n-1 to the bucket's items in the sequence of ids.
// ids must be exactly the user's items in that bucket. Nothing is written
// unless every check passes.
func (r *Repository) Reorder(ctx context.Context, bucket models.Bucket, ids []string) error {
	const op = "items.reorder"
	if !bucket.Part.Valid() || bucket.Day < time.Sunday || bucket.Day > time.Saturday {
		return apperrors.Validationf(op, "unknown bucket %v", bucket)
	}

	current, err := r.ListActiveOn(ctx, bucket.Day)
	if err != nil {
		return err
	}
	members := make(map[string]bool)
	for _, it := range current {
		if it.InBucket(bucket) {
			members[it.ID] = true
		}
	}

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return apperrors.Validationf(op, "item %s listed twice", id)
		}
		seen[id] = true
		if !members[id] {
			if err := r.checkForeign(ctx, op, id); err != nil {
				return err
			}
			return apperrors.Validationf(op, "item %s is not in %v", id, bucket)
		}
	}
	if len(ids) != len(members) {
		return apperrors.Validationf(op, "%v has %d items, got %d ids", bucket, len(members), len(ids))
	}

	writes := make([]docstore.Write, 0, len(ids))
	for i, id := range ids {
		writes = append(writes, docstore.UpdateWrite(constants.CollectionItems, id,
			map[string]any{constants.FieldOrder: i}, docstore.OwnedBy(r.user.ID)))
	}
	if err := r.store.Batch(ctx, writes); err != nil {
		return apperrors.StoreWrite(op, err)
	}
	return nil
}

// checkForeign reports a forbidden error if id exists but belongs to
// someone else.
func (r *Repository) checkForeign(ctx context.Context, op, id string) error {
	doc, err := r.store.Get(ctx, constants.CollectionItems, id)
	if err != nil {
		return nil
	}
	var owner struct {
		UserID string `json:"user_id"`
	}
	if json.Unmarshal(doc.Data, &owner) == nil && owner.UserID != r.user.ID {
		return apperrors.WithReason(apperrors.KindStoreWrite, op, apperrors.ReasonForbidden,
			fmt.Errorf("item %s belongs to another user", id))
	}
	return nil
}

// ClearChecked sets is_checked=false on every given item in one atomic
// batch and returns how many were written.
func (r *Repository) ClearChecked(ctx context.Context, items []models.RoutineItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	writes := make([]docstore.Write, 0, len(items))
	for _, it := range items {
		writes = append(writes, docstore.UpdateWrite(constants.CollectionItems, it.ID,
			map[string]any{constants.FieldIsChecked: false}, docstore.OwnedBy(r.user.ID)))
	}
	if err := r.store.Batch(ctx, writes); err != nil {
		return 0, apperrors.StoreWrite("items.clear_checked", err)
	}
	return len(writes), nil
}

// NormalizeAll rewrites every stored item whose part_of_day or day_of_week
// is not already a canonical array (a bare string, duplicates, lowercase or
// abbreviated day names). It returns the number rewritten.
func NormalizeAll(ctx context.Context, store docstore.Store) (int, error) {
	const op = "items.normalize"
	writes, err := legacyWrites(ctx, store)
	if err != nil {
		return 0, apperrors.StoreRead(op, err)
	}
	if len(writes) == 0 {
		return 0, nil
	}
	if err := store.Batch(ctx, writes); err != nil {
		return 0, apperrors.StoreWrite(op, err)
	}
	logger.Info("Normalized legacy items", "count", len(writes))
	return len(writes), nil
}

// CountLegacy returns how many items NormalizeAll would rewrite.
func CountLegacy(ctx context.Context, store docstore.Store) (int, error) {
	writes, err := legacyWrites(ctx, store)
	if err != nil {
		return 0, apperrors.StoreRead("items.count_legacy", err)
	}
	return len(writes), nil
}

func legacyWrites(ctx context.Context, store docstore.Store) ([]docstore.Write, error) {
	docs, err := store.Query(ctx, constants.CollectionItems)
	if err != nil {
		return nil, err
	}

	var writes []docstore.Write
	for _, doc := range docs {
		body, err := doc.Fields()
		if err != nil {
			logger.Warn("Skipping unreadable item", "id", doc.ID, "error", err)
			continue
		}
		item, err := decode(doc)
		if err != nil {
			logger.Warn("Skipping invalid item", "id", doc.ID, "error", err)
			continue
		}
		if canonical(body[constants.FieldPartOfDay], item.PartOfDay) &&
			canonical(body[constants.FieldDayOfWeek], item.DayOfWeek) {
			continue
		}
		writes = append(writes, docstore.UpdateWrite(constants.CollectionItems, doc.ID, map[string]any{
			constants.FieldPartOfDay: item.PartOfDay,
			constants.FieldDayOfWeek: item.DayOfWeek,
		}))
	}
	return writes, nil
}

// canonical reports whether a stored value already has the encoding of set.
func canonical(stored any, set json.Marshaler) bool {
	a, err := json.Marshal(stored)
	if err != nil {
		return false
	}
	b, err := set.MarshalJSON()
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}
