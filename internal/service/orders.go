// Package service implements the order operations. Every mutation commits,
// builds the committed snapshot and publishes it to live viewers before
// returning that same snapshot to its caller.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zoravur/orderfeed/internal/live"
	"github.com/zoravur/orderfeed/internal/logutil"
	"github.com/zoravur/orderfeed/internal/order"
)

// Store is the persistence the service depends on. Mutations return the
// order as committed, read inside the committing transaction, and bump the
// order revision.
type Store interface {
	FindOrderWithEntries(ctx context.Context, id order.ID) (order.Aggregate, error)
	ListOrders(ctx context.Context) ([]order.Aggregate, error)
	CreateOrder(ctx context.Context, menuURL string) (order.Aggregate, error)
	InsertEntry(ctx context.Context, orderID order.ID, e order.NewEntry) (order.Aggregate, error)
	DeleteEntry(ctx context.Context, orderID, entryID order.ID) (order.Aggregate, error)
	SetEntryPaid(ctx context.Context, orderID, entryID order.ID, paid bool) (order.Aggregate, error)
	SetOrderState(ctx context.Context, orderID order.ID, next order.State) (order.Aggregate, error)
}

// Registry is the live update registry keyed by order id.
type Registry = live.Registry[order.ID, order.Snapshot]

// Stream is one viewer's subscription to an order.
type Stream = live.Subscription[order.Snapshot]

func NewRegistry(opts ...live.Option) *Registry {
	return live.New[order.ID, order.Snapshot](opts...)
}

type Orders struct {
	store Store
	reg   *Registry
}

func NewOrders(store Store, reg *Registry) *Orders {
	return &Orders{store: store, reg: reg}
}

func (s *Orders) ListOrders(ctx context.Context) ([]order.Snapshot, error) {
	aggs, err := s.store.ListOrders(ctx)
	if err != nil {
		return nil, storageErr(err)
	}
	out := make([]order.Snapshot, 0, len(aggs))
	for _, a := range aggs {
		out = append(out, a.Snapshot())
	}
	return out, nil
}

func (s *Orders) GetOrder(ctx context.Context, id order.ID) (order.Snapshot, error) {
	agg, err := s.store.FindOrderWithEntries(ctx, id)
	if err != nil {
		return order.Snapshot{}, storageErr(err)
	}
	return agg.Snapshot(), nil
}

func (s *Orders) CreateOrder(ctx context.Context, menuURL string) (order.Snapshot, error) {
	if err := order.ValidateMenuURL(menuURL); err != nil {
		return order.Snapshot{}, err
	}
	return s.commit(ctx, "create order", func() (order.Aggregate, error) {
		return s.store.CreateOrder(ctx, menuURL)
	})
}

func (s *Orders) AddEntry(ctx context.Context, id order.ID, e order.NewEntry) (order.Snapshot, error) {
	e = e.Normalize()
	if err := e.Validate(); err != nil {
		return order.Snapshot{}, err
	}
	return s.commit(ctx, "add entry", func() (order.Aggregate, error) {
		return s.store.InsertEntry(ctx, id, e)
	})
}

func (s *Orders) RemoveEntry(ctx context.Context, id, entryID order.ID) (order.Snapshot, error) {
	return s.commit(ctx, "remove entry", func() (order.Aggregate, error) {
		return s.store.DeleteEntry(ctx, id, entryID)
	})
}

func (s *Orders) SetEntryPaid(ctx context.Context, id, entryID order.ID, paid bool) (order.Snapshot, error) {
	return s.commit(ctx, "set entry paid", func() (order.Aggregate, error) {
		return s.store.SetEntryPaid(ctx, id, entryID, paid)
	})
}

func (s *Orders) UpdateState(ctx context.Context, id order.ID, next order.State) (order.Snapshot, error) {
	if !next.Valid() {
		return order.Snapshot{}, &order.ValidationError{Field: "state", Reason: fmt.Sprintf("unknown state %d", int32(next))}
	}
	return s.commit(ctx, "update state", func() (order.Aggregate, error) {
		return s.store.SetOrderState(ctx, id, next)
	})
}

// commit runs a store mutation and fans the committed snapshot out.
func (s *Orders) commit(ctx context.Context, op string, mutate func() (order.Aggregate, error)) (order.Snapshot, error) {
	agg, err := mutate()
	if err != nil {
		return order.Snapshot{}, storageErr(err)
	}
	snap := agg.Snapshot()
	n := s.reg.Publish(snap.ID, snap)
	logutil.L(ctx).Debug(op,
		zap.Int64("order_id", snap.ID),
		logutil.Values(zap.Int64("revision", snap.Rev), zap.Int("viewers", n)),
	)
	return snap, nil
}

// Refresh re-reads an order and publishes it, for changes made to storage
// behind the service's back. A read failure skips the publish; viewers
// keep their last snapshot.
func (s *Orders) Refresh(ctx context.Context, id order.ID) (int, error) {
	agg, err := s.store.FindOrderWithEntries(ctx, id)
	if err != nil {
		logutil.L(ctx).Warn("refresh skipped", zap.Int64("order_id", id), zap.Error(err))
		return 0, storageErr(err)
	}
	snap := agg.Snapshot()
	return s.reg.Publish(id, snap), nil
}

// OpenStream subscribes to an order. The first value on the stream is the
// current snapshot; later ones follow every committed change. The caller
// must Close the stream when its connection ends.
func (s *Orders) OpenStream(ctx context.Context, id order.ID) (*Stream, error) {
	sub, err := s.reg.SubscribeFunc(ctx, id, func(ctx context.Context) (order.Snapshot, error) {
		agg, err := s.store.FindOrderWithEntries(ctx, id)
		if err != nil {
			return order.Snapshot{}, err
		}
		return agg.Snapshot(), nil
	})
	if errors.Is(err, live.ErrClosed) {
		return nil, ErrShuttingDown
	}
	if err != nil {
		return nil, storageErr(err)
	}
	logutil.L(ctx).Debug("stream opened", zap.Int64("order_id", id), zap.Int("viewers", s.reg.Count(id)))
	return sub, nil
}

var (
	// ErrInternal marks storage failures that are not the caller's fault.
	ErrInternal     = errors.New("internal error")
	ErrShuttingDown = errors.New("server shutting down")
)

type internalError struct{ err error }

func (e *internalError) Error() string        { return e.err.Error() }
func (e *internalError) Unwrap() error        { return e.err }
func (e *internalError) Is(target error) bool { return target == ErrInternal }

// storageErr passes not-found and validation errors through and marks
// everything else internal.
func storageErr(err error) error {
	if err == nil || errors.Is(err, order.ErrNotFound) || errors.Is(err, order.ErrInvalidArgument) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &internalError{err: err}
}
