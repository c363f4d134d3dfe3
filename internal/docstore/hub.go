package docstore

import (
	"context"
	"sync"
)

// queryFunc runs a live query's filters against the current store state.
type queryFunc func(ctx context.Context, collection string, filters ...Filter) ([]Document, error)

// Subscription is a live query. Snapshots arrive on C; only the most recent
// undelivered snapshot is kept, so a slow reader always sees the newest state.
// C is closed after Unsubscribe.
type Subscription struct {
	C <-chan Snapshot

	sub *subscriber
	hub *hub
}

// Unsubscribe stops delivery and closes C. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.hub.remove(s.sub)
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.sub.done
}

type subscriber struct {
	id         uint64
	collection string
	filters    []Filter

	mu     sync.Mutex // serializes refresh against close
	seq    uint64
	out    chan Snapshot
	done   chan struct{}
	closed bool
}

// deliver replaces any pending snapshot with snap. Callers hold s.mu.
func (s *subscriber) deliver(snap Snapshot) {
	if s.closed {
		return
	}
	s.seq++
	snap.Seq = s.seq
	for {
		select {
		case s.out <- snap:
			return
		default:
		}
		select {
		case <-s.out:
		default:
		}
	}
}

func (s *subscriber) refresh(query queryFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	docs, err := query(context.Background(), s.collection, s.filters...)
	s.deliver(Snapshot{Docs: docs, Err: err})
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	close(s.out)
}

// hub fans commits out to the subscribers of the touched collections.
type hub struct {
	query queryFunc

	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool
}

func newHub(query queryFunc) *hub {
	return &hub{query: query, subs: make(map[uint64]*subscriber)}
}

func (h *hub) subscribe(ctx context.Context, collection string, filters []Filter) (*Subscription, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	h.nextID++
	sub := &subscriber{
		id:         h.nextID,
		collection: collection,
		filters:    append([]Filter(nil), filters...),
		out:        make(chan Snapshot, 1),
		done:       make(chan struct{}),
	}
	h.subs[sub.id] = sub
	h.mu.Unlock()

	// The initial snapshot is delivered before Subscribe returns so a failing
	// query is reported to the caller instead of on the channel.
	sub.mu.Lock()
	docs, err := h.query(ctx, collection, filters...)
	if err != nil {
		sub.mu.Unlock()
		h.remove(sub)
		return nil, err
	}
	sub.deliver(Snapshot{Docs: docs})
	sub.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			h.remove(sub)
		case <-sub.done:
		}
	}()

	return &Subscription{C: sub.out, sub: sub, hub: h}, nil
}

func (h *hub) remove(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub.id)
	h.mu.Unlock()
	sub.close()
}

// notify re-runs every live query on the given collections.
func (h *hub) notify(collections ...string) {
	want := make(map[string]bool, len(collections))
	for _, c := range collections {
		want[c] = true
	}

	h.mu.Lock()
	var targets []*subscriber
	for _, sub := range h.subs {
		if want[sub.collection] {
			targets = append(targets, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range targets {
		sub.refresh(h.query)
	}
}

// active reports whether any subscriptions are open.
func (h *hub) active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs) > 0
}

func (h *hub) close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[uint64]*subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}
