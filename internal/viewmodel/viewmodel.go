// Package viewmodel keeps an ordered, grouped projection of a user's items
// in sync with a live query and turns user intents into repository calls.
package viewmodel

import (
	"context"
	"sync"

	"github.com/julianstephens/routineo/internal/docstore"
	apperrors "github.com/julianstephens/routineo/internal/errors"
	"github.com/julianstephens/routineo/internal/items"
	"github.com/julianstephens/routineo/internal/logger"
	"github.com/julianstephens/routineo/internal/models"
)

// Repository is the item access the view model drives.
type Repository interface {
	User() models.User
	Subscribe(ctx context.Context, mode items.Mode) (*docstore.Subscription, error)
	SetChecked(ctx context.Context, id string, checked bool) error
	Reorder(ctx context.Context, bucket models.Bucket, ids []string) error
	Create(ctx context.Context, draft models.ItemDraft) (models.RoutineItem, error)
	Edit(ctx context.Context, id string, patch models.ItemPatch) error
	Delete(ctx context.Context, id string) error
}

// ViewModel owns exactly one live subscription at a time. Every snapshot
// replaces the projections wholesale.
type ViewModel struct {
	repo    Repository
	parent  context.Context
	changes chan struct{}

	lifecycle sync.Mutex // serializes SetMode, Refresh and Close
	cancel    context.CancelFunc
	sub       *docstore.Subscription
	pumpDone  chan struct{}

	mu     sync.RWMutex
	mode   items.Mode
	flat   []models.RoutineItem
	groups map[models.Bucket][]models.RoutineItem
	seq    uint64
	err    error
	closed bool
}

// New subscribes to the user's items in mode and returns once the initial
// snapshot has been projected.
func New(ctx context.Context, repo Repository, mode items.Mode) (*ViewModel, error) {
	vm := &ViewModel{
		repo:    repo,
		parent:  ctx,
		changes: make(chan struct{}, 1),
		groups:  map[models.Bucket][]models.RoutineItem{},
	}
	if err := vm.open(mode); err != nil {
		return nil, err
	}
	return vm, nil
}

// open starts a subscription for mode. Callers hold vm.lifecycle or are New.
func (vm *ViewModel) open(mode items.Mode) error {
	ctx, cancel := context.WithCancel(vm.parent)
	sub, err := vm.repo.Subscribe(ctx, mode)
	if err != nil {
		cancel()
		return err
	}

	first, ok := <-sub.C
	if !ok {
		cancel()
		return apperrors.StoreRead("items.subscribe", docstore.ErrClosed)
	}

	vm.mu.Lock()
	vm.mode = mode
	vm.mu.Unlock()
	vm.apply(first)

	vm.cancel = cancel
	vm.sub = sub
	vm.pumpDone = make(chan struct{})
	go vm.pump(sub, vm.pumpDone)

	logger.Debug("View model subscribed", "user", vm.repo.User().ID, "mode", mode)
	return nil
}

// teardown ends the current subscription and waits for its pump to exit so
// no snapshot of the old query lands after it returns.
func (vm *ViewModel) teardown() {
	if vm.sub == nil {
		return
	}
	vm.sub.Unsubscribe()
	vm.cancel()
	<-vm.pumpDone
	vm.sub = nil
}

func (vm *ViewModel) pump(sub *docstore.Subscription, done chan struct{}) {
	defer close(done)
	for snap := range sub.C {
		vm.apply(snap)
	}
}

func (vm *ViewModel) apply(snap docstore.Snapshot) {
	if snap.Err != nil {
		vm.mu.Lock()
		vm.err = apperrors.StoreRead("items.snapshot", snap.Err)
		vm.mu.Unlock()
		logger.Warn("Item snapshot failed", "error", snap.Err)
		vm.signal()
		return
	}

	list, skipped := items.DecodeValid(snap.Docs)
	if len(skipped) > 0 {
		logger.Warn("Skipping unreadable items in snapshot", "ids", skipped)
	}

	vm.mu.Lock()
	vm.flat = Sort(list)
	vm.groups = Group(list)
	vm.seq = snap.Seq
	vm.err = nil
	vm.mu.Unlock()
	vm.signal()
}

func (vm *ViewModel) signal() {
	select {
	case vm.changes <- struct{}{}:
	default:
	}
}

// Changes is notified after every re-derivation. Notifications coalesce.
func (vm *ViewModel) Changes() <-chan struct{} { return vm.changes }

// Err returns the last snapshot error, cleared by the next good snapshot.
func (vm *ViewModel) Err() error {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.err
}

func (vm *ViewModel) Mode() items.Mode {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.mode
}

// Seq is the sequence number of the projected snapshot.
func (vm *ViewModel) Seq() uint64 {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.seq
}

// Items returns the flat list sorted by order.
func (vm *ViewModel) Items() []models.RoutineItem {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]models.RoutineItem(nil), vm.flat...)
}

// Buckets returns the non-empty buckets in display order.
func (vm *ViewModel) Buckets() []models.Bucket {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return SortedBuckets(vm.groups)
}

// Bucket returns the sorted items of b.
func (vm *ViewModel) Bucket(b models.Bucket) []models.RoutineItem {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]models.RoutineItem(nil), vm.groups[b]...)
}

// Find returns the projected item with id.
func (vm *ViewModel) Find(id string) (models.RoutineItem, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, it := range vm.flat {
		if it.ID == id {
			return it, true
		}
	}
	return models.RoutineItem{}, false
}

// SetMode replaces the subscription with one for mode.
func (vm *ViewModel) SetMode(mode items.Mode) error {
	vm.lifecycle.Lock()
	defer vm.lifecycle.Unlock()
	if vm.isClosed() {
		return docstore.ErrClosed
	}
	if vm.sub != nil && vm.Mode() == mode {
		return nil
	}
	vm.teardown()
	return vm.open(mode)
}

// Refresh reopens the subscription for the current mode. The today query is
// bound to the weekday at subscription time, so callers refresh it when the
// local date changes.
func (vm *ViewModel) Refresh() error {
	vm.lifecycle.Lock()
	defer vm.lifecycle.Unlock()
	if vm.isClosed() {
		return docstore.ErrClosed
	}
	mode := vm.Mode()
	vm.teardown()
	return vm.open(mode)
}

// Close ends the subscription. The view model must not be used afterwards.
func (vm *ViewModel) Close() {
	vm.lifecycle.Lock()
	defer vm.lifecycle.Unlock()
	vm.mu.Lock()
	if vm.closed {
		vm.mu.Unlock()
		return
	}
	vm.closed = true
	vm.mu.Unlock()
	vm.teardown()
}

func (vm *ViewModel) isClosed() bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.closed
}

// Toggle writes the checked flag. The projection changes only when the
// resulting snapshot arrives.
func (vm *ViewModel) Toggle(ctx context.Context, id string, checked bool) error {
	return vm.repo.SetChecked(ctx, id, checked)
}

// Reorder writes order 0..n-1 for bucket in the sequence of ids. ids must be
// a permutation of the bucket as currently projected.
func (vm *ViewModel) Reorder(ctx context.Context, bucket models.Bucket, ids []string) error {
	const op = "items.reorder"
	vm.mu.RLock()
	members, known := vm.groups[bucket]
	vm.mu.RUnlock()
	if !known {
		return apperrors.Validationf(op, "unknown bucket %v", bucket)
	}
	if len(ids) != len(members) {
		return apperrors.Validationf(op, "%v has %d items, got %d ids", bucket, len(members), len(ids))
	}
	want := make(map[string]bool, len(members))
	for _, it := range members {
		want[it.ID] = true
	}
	for _, id := range ids {
		if !want[id] {
			return apperrors.Validationf(op, "%s is not a unique member of %v", id, bucket)
		}
		delete(want, id)
	}
	return vm.repo.Reorder(ctx, bucket, ids)
}

// MoveItem shifts one item within its bucket by delta positions.
func (vm *ViewModel) MoveItem(ctx context.Context, bucket models.Bucket, id string, delta int) error {
	members := vm.Bucket(bucket)
	ids := make([]string, len(members))
	for i, it := range members {
		ids[i] = it.ID
	}
	next, ok := Move(ids, id, delta)
	if !ok {
		return nil
	}
	return vm.Reorder(ctx, bucket, next)
}

// Create inserts an item. Without an explicit order it lands at the end of
// its first bucket as currently stored.
func (vm *ViewModel) Create(ctx context.Context, draft models.ItemDraft) (models.RoutineItem, error) {
	return vm.repo.Create(ctx, draft)
}

func (vm *ViewModel) Edit(ctx context.Context, id string, patch models.ItemPatch) error {
	return vm.repo.Edit(ctx, id, patch)
}

func (vm *ViewModel) Delete(ctx context.Context, id string) error {
	return vm.repo.Delete(ctx, id)
}
