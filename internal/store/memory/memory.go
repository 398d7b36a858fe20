// Package memory keeps orders in process memory. It backs development runs
// and tests; data is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zoravur/orderfeed/internal/order"
)

type Store struct {
	mu      sync.Mutex
	now     func() time.Time
	orders  map[order.ID]*order.Order
	entries map[order.ID]map[order.ID]order.Entry // order id -> entry id -> entry
	nextOrd order.ID
	nextEnt order.ID
}

type Option func(*Store)

// WithClock overrides time.Now for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		now:     time.Now,
		orders:  make(map[order.ID]*order.Order),
		entries: make(map[order.ID]map[order.ID]order.Entry),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) aggregateLocked(id order.ID) order.Aggregate {
	o := s.orders[id]
	agg := order.Aggregate{Order: *o, Entries: make([]order.Entry, 0, len(s.entries[id]))}
	for _, e := range s.entries[id] {
		agg.Entries = append(agg.Entries, e)
	}
	return agg
}

func (s *Store) FindOrderWithEntries(ctx context.Context, id order.ID) (order.Aggregate, error) {
	if err := ctx.Err(); err != nil {
		return order.Aggregate{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[id]; !ok {
		return order.Aggregate{}, &order.NotFoundError{Kind: "order", ID: id}
	}
	return s.aggregateLocked(id), nil
}

// ListOrders returns every order, newest first.
func (s *Store) ListOrders(ctx context.Context) ([]order.Aggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]order.Aggregate, 0, len(s.orders))
	for id := range s.orders {
		out = append(out, s.aggregateLocked(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order.ID > out[j].Order.ID })
	return out, nil
}

func (s *Store) CreateOrder(ctx context.Context, menuURL string) (order.Aggregate, error) {
	if err := ctx.Err(); err != nil {
		return order.Aggregate{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextOrd++
	s.orders[s.nextOrd] = &order.Order{
		ID:        s.nextOrd,
		MenuURL:   menuURL,
		State:     order.StateOpen,
		CreatedAt: s.now().UTC(),
		Revision:  1,
	}
	s.entries[s.nextOrd] = make(map[order.ID]order.Entry)
	return s.aggregateLocked(s.nextOrd), nil
}

// mutate runs fn on a locked order and bumps its revision when fn succeeds.
func (s *Store) mutate(ctx context.Context, id order.ID, fn func(o *order.Order) error) (order.Aggregate, error) {
	if err := ctx.Err(); err != nil {
		return order.Aggregate{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return order.Aggregate{}, &order.NotFoundError{Kind: "order", ID: id}
	}
	if err := fn(o); err != nil {
		return order.Aggregate{}, err
	}
	o.Revision++
	return s.aggregateLocked(id), nil
}

func (s *Store) InsertEntry(ctx context.Context, orderID order.ID, e order.NewEntry) (order.Aggregate, error) {
	return s.mutate(ctx, orderID, func(o *order.Order) error {
		if err := o.CheckEditable(); err != nil {
			return err
		}
		s.nextEnt++
		s.entries[orderID][s.nextEnt] = order.Entry{
			ID:      s.nextEnt,
			OrderID: orderID,
			Buyer:   e.Buyer,
			Food:    e.Food,
			Price:   e.Price,
		}
		return nil
	})
}

func (s *Store) DeleteEntry(ctx context.Context, orderID, entryID order.ID) (order.Aggregate, error) {
	return s.mutate(ctx, orderID, func(o *order.Order) error {
		if err := o.CheckEditable(); err != nil {
			return err
		}
		if _, ok := s.entries[orderID][entryID]; !ok {
			return &order.NotFoundError{Kind: "entry", ID: entryID}
		}
		delete(s.entries[orderID], entryID)
		return nil
	})
}

func (s *Store) SetEntryPaid(ctx context.Context, orderID, entryID order.ID, paid bool) (order.Aggregate, error) {
	return s.mutate(ctx, orderID, func(o *order.Order) error {
		e, ok := s.entries[orderID][entryID]
		if !ok {
			return &order.NotFoundError{Kind: "entry", ID: entryID}
		}
		e.Paid = paid
		s.entries[orderID][entryID] = e
		return nil
	})
}

func (s *Store) SetOrderState(ctx context.Context, orderID order.ID, next order.State) (order.Aggregate, error) {
	return s.mutate(ctx, orderID, func(o *order.Order) error {
		if err := o.CheckTransition(next); err != nil {
			return err
		}
		o.State = next
		return nil
	})
}

func (s *Store) Close() error { return nil }
