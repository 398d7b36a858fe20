package live

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Versioned values carry a revision that only grows as their subject
// changes. The registry never delivers a revision to a subscriber that is
// not newer than the last one it queued for it.
type Versioned interface {
	Revision() int64
}

var ErrClosed = errors.New("live: registry closed")

const DefaultBuffer = 8

type options struct {
	buffer int
	logger *zap.Logger
}

type Option func(*options)

// WithBuffer bounds each subscription's queue. Values below 1 are ignored.
func WithBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buffer = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Subscription is one viewer's interest in one key. The registry holds
// the send side; the viewer reads C until it is closed and calls Close
// when it goes away.
type Subscription[V Versioned] struct {
	key  any
	ch   chan V
	done chan struct{}
	once sync.Once

	// guarded by the owning registry's mutex
	seeded  bool
	lastRev int64
	stale   bool
	removed bool
}

func newSubscription[V Versioned](key any, buffer int) *Subscription[V] {
	return &Subscription[V]{
		key:  key,
		ch:   make(chan V, buffer),
		done: make(chan struct{}),
	}
}

// C yields snapshots in publish order. It is closed once the registry
// drops the subscription (after Close and a reap, or on shutdown).
func (s *Subscription[V]) C() <-chan V { return s.ch }

// Done is closed by Close.
func (s *Subscription[V]) Done() <-chan struct{} { return s.done }

func (s *Subscription[V]) Key() any { return s.key }

// Close signals that the receiver is gone. Safe to call more than once.
func (s *Subscription[V]) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscription[V]) receiverGone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeDelivered
	outcomeDroppedOldest
	outcomeStale
)

// offer enqueues v without blocking. A full queue loses its oldest value
// so the newest state always gets through. Callers hold the registry lock,
// which makes the registry the only writer and keeps the drain-then-send
// pair from racing another publisher.
func (s *Subscription[V]) offer(v V) outcome {
	if s.removed || s.stale {
		return outcomeSkipped
	}
	if s.receiverGone() {
		s.stale = true
		return outcomeStale
	}
	if s.seeded && v.Revision() <= s.lastRev {
		return outcomeSkipped
	}

	res := outcomeDelivered
	select {
	case s.ch <- v:
	default:
		select {
		case <-s.ch:
			res = outcomeDroppedOldest
		default:
		}
		select {
		case s.ch <- v:
		default:
			s.stale = true
			return outcomeStale
		}
	}
	s.seeded = true
	s.lastRev = v.Revision()
	return res
}

// drop closes the delivery channel. Registry lock held.
func (s *Subscription[V]) drop() {
	if s.removed {
		return
	}
	s.removed = true
	close(s.ch)
}

// topic is the per-key entry of the registry table.
type topic[V Versioned] struct {
	subs      []*Subscription[V]
	latest    V
	hasLatest bool
}

func (t *topic[V]) remember(v V) {
	if !t.hasLatest || v.Revision() > t.latest.Revision() {
		t.latest = v
		t.hasLatest = true
	}
}

// newest returns v or the topic's latest value, whichever is newer.
func (t *topic[V]) newest(v V) V {
	if t.hasLatest && t.latest.Revision() > v.Revision() {
		return t.latest
	}
	return v
}

// KeyView is the debug view of one registry key.
type KeyView[K comparable] struct {
	Key         K     `json:"key"`
	Subscribers int   `json:"subscribers"`
	Stale       int   `json:"stale"`
	Revision    int64 `json:"revision"`
}

// Stats are cumulative counters plus the current table size.
type Stats struct {
	Keys       int
	Active     int
	Subscribed uint64
	Published  uint64
	Delivered  uint64
	Dropped    uint64
	Reaped     uint64
}
