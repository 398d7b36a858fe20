package live

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Registry fans out snapshots to the subscribers of each key.
//
// Delivery is best effort and at most once: publishing never waits on a
// subscriber, and a subscriber that falls behind loses intermediate
// snapshots (never the newest one). Subscriptions whose receiver went
// away are only unlinked by Reap, so Publish never restructures the table.
type Registry[K comparable, V Versioned] struct {
	mu     sync.Mutex
	data   map[K]*topic[V]
	closed bool

	buffer int
	log    *zap.Logger

	subscribed atomic.Uint64
	published  atomic.Uint64
	delivered  atomic.Uint64
	dropped    atomic.Uint64
	reaped     atomic.Uint64
}

func New[K comparable, V Versioned](opts ...Option) *Registry[K, V] {
	o := options{buffer: DefaultBuffer, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry[K, V]{
		data:   make(map[K]*topic[V]),
		buffer: o.buffer,
		log:    o.logger,
	}
}

// topicLocked returns the table entry for key, creating it. r.mu held.
func (r *Registry[K, V]) topicLocked(key K) *topic[V] {
	t, ok := r.data[key]
	if !ok {
		t = &topic[V]{}
		r.data[key] = t
	}
	return t
}

// Subscribe registers a new subscription whose first value is initial, or
// the newest value published for key if that one is more recent.
func (r *Registry[K, V]) Subscribe(key K, initial V) (*Subscription[V], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}

	t := r.topicLocked(key)
	t.remember(initial)
	sub := newSubscription[V](key, r.buffer)
	sub.offer(t.newest(initial))
	t.subs = append(t.subs, sub)

	r.subscribed.Add(1)
	r.log.Debug("subscribed", zap.Any("key", key), zap.Int("subscribers", len(t.subs)))
	return sub, nil
}

// SubscribeFunc registers first and loads the current value afterwards,
// outside the lock. Anything published in between reaches the new
// subscriber, and a loaded value that is not newer is skipped, so there is
// no window in which an update can be missed.
func (r *Registry[K, V]) SubscribeFunc(ctx context.Context, key K, load func(context.Context) (V, error)) (*Subscription[V], error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	t := r.topicLocked(key)
	sub := newSubscription[V](key, r.buffer)
	t.subs = append(t.subs, sub)
	r.mu.Unlock()

	v, err := load(ctx)
	if err != nil {
		sub.Close()
		r.unlink(key, sub)
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if sub.removed {
		return nil, ErrClosed
	}
	t = r.topicLocked(key)
	t.remember(v)
	sub.offer(t.newest(v))

	r.subscribed.Add(1)
	r.log.Debug("subscribed", zap.Any("key", key), zap.Int("subscribers", len(t.subs)))
	return sub, nil
}

// unlink removes one subscription right away. Only used when a
// subscription never made it back to its caller.
func (r *Registry[K, V]) unlink(key K, sub *Subscription[V]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.data[key]
	if !ok {
		return
	}
	for i, s := range t.subs {
		if s == sub {
			t.subs = append(t.subs[:i], t.subs[i+1:]...)
			break
		}
	}
	sub.drop()
	if len(t.subs) == 0 {
		delete(r.data, key)
	}
}

// Publish hands v to every subscription of key and returns how many
// accepted it. It never blocks on a subscriber. Publishing to a key
// nobody watches is a no-op.
func (r *Registry[K, V]) Publish(key K, v V) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0
	}
	t, ok := r.data[key]
	if !ok {
		return 0
	}
	r.published.Add(1)
	t.remember(v)

	n := 0
	for _, s := range t.subs {
		switch s.offer(v) {
		case outcomeDelivered:
			n++
		case outcomeDroppedOldest:
			n++
			r.dropped.Add(1)
		case outcomeStale:
			r.dropped.Add(1)
		}
	}
	r.delivered.Add(uint64(n))
	return n
}

// Reap unlinks subscriptions whose receiver is gone or whose last send
// failed, closes their channels and forgets keys left without
// subscribers. It returns the number of subscriptions removed.
func (r *Registry[K, V]) Reap() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, t := range r.data {
		kept := t.subs[:0]
		for _, s := range t.subs {
			if s.stale || s.receiverGone() {
				s.drop()
				removed++
				continue
			}
			kept = append(kept, s)
		}
		clear(t.subs[len(kept):])
		t.subs = kept
		if len(kept) == 0 {
			delete(r.data, key)
		}
	}
	if removed > 0 {
		r.reaped.Add(uint64(removed))
		r.log.Debug("reaped subscriptions", zap.Int("removed", removed), zap.Int("keys", len(r.data)))
	}
	return removed
}

// Count returns the number of subscriptions in the table for key,
// including ones that are stale but not yet reaped.
func (r *Registry[K, V]) Count(key K) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.data[key]; ok {
		return len(t.subs)
	}
	return 0
}

// Len returns the number of keys with at least one subscription.
func (r *Registry[K, V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

func (r *Registry[K, V]) View() []KeyView[K] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]KeyView[K], 0, len(r.data))
	for key, t := range r.data {
		kv := KeyView[K]{Key: key, Subscribers: len(t.subs)}
		for _, s := range t.subs {
			if s.stale || s.receiverGone() {
				kv.Stale++
			}
		}
		if t.hasLatest {
			kv.Revision = t.latest.Revision()
		}
		out = append(out, kv)
	}
	return out
}

func (r *Registry[K, V]) Stats() Stats {
	r.mu.Lock()
	keys := len(r.data)
	active := 0
	for _, t := range r.data {
		active += len(t.subs)
	}
	r.mu.Unlock()
	return Stats{
		Keys:       keys,
		Active:     active,
		Subscribed: r.subscribed.Load(),
		Published:  r.published.Load(),
		Delivered:  r.delivered.Load(),
		Dropped:    r.dropped.Load(),
		Reaped:     r.reaped.Load(),
	}
}

// Close drops every subscription, closing their channels, and rejects
// further subscribes. Publish becomes a no-op.
func (r *Registry[K, V]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	n := 0
	for _, t := range r.data {
		for _, s := range t.subs {
			s.drop()
			n++
		}
	}
	r.data = make(map[K]*topic[V])
	r.log.Debug("registry closed", zap.Int("dropped_subscriptions", n))
}
