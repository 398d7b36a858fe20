// Package storetest holds behaviour checks shared by every order store.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoravur/orderfeed/internal/order"
)

// Store is the persistence surface under test.
type Store interface {
	FindOrderWithEntries(ctx context.Context, id order.ID) (order.Aggregate, error)
	ListOrders(ctx context.Context) ([]order.Aggregate, error)
	CreateOrder(ctx context.Context, menuURL string) (order.Aggregate, error)
	InsertEntry(ctx context.Context, orderID order.ID, e order.NewEntry) (order.Aggregate, error)
	DeleteEntry(ctx context.Context, orderID, entryID order.ID) (order.Aggregate, error)
	SetEntryPaid(ctx context.Context, orderID, entryID order.ID, paid bool) (order.Aggregate, error)
	SetOrderState(ctx context.Context, orderID order.ID, next order.State) (order.Aggregate, error)
}

// Run exercises a fresh, empty store returned by newStore for each subtest.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndFind", func(t *testing.T) { testCreateAndFind(t, newStore(t)) })
	t.Run("EntriesBumpRevision", func(t *testing.T) { testEntries(t, newStore(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newStore(t)) })
	t.Run("StateRules", func(t *testing.T) { testStateRules(t, newStore(t)) })
	t.Run("ListNewestFirst", func(t *testing.T) { testList(t, newStore(t)) })
}

func ctx(t *testing.T) context.Context {
	c, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return c
}

func testCreateAndFind(t *testing.T, s Store) {
	c := ctx(t)
	created, err := s.CreateOrder(c, "https://example.com/menu")
	require.NoError(t, err)
	assert.NotZero(t, created.Order.ID)
	assert.Equal(t, order.StateOpen, created.Order.State)
	assert.Equal(t, int64(1), created.Order.Revision)
	assert.False(t, created.Order.CreatedAt.IsZero())
	assert.Empty(t, created.Entries)

	found, err := s.FindOrderWithEntries(c, created.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Order.ID, found.Order.ID)
	assert.Equal(t, "https://example.com/menu", found.Order.MenuURL)
	assert.Equal(t, created.Order.Revision, found.Order.Revision)
}

func testEntries(t *testing.T, s Store) {
	c := ctx(t)
	created, err := s.CreateOrder(c, "https://example.com/menu")
	require.NoError(t, err)
	id := created.Order.ID

	a, err := s.InsertEntry(c, id, order.NewEntry{Buyer: "John", Food: "pizza", Price: 1000000})
	require.NoError(t, err)
	require.Len(t, a.Entries, 1)
	assert.Equal(t, int64(2), a.Order.Revision)
	first := a.Entries[0]
	assert.Equal(t, "John", first.Buyer)
	assert.Equal(t, order.Millicents(1000000), first.Price)
	assert.False(t, first.Paid)

	b, err := s.InsertEntry(c, id, order.NewEntry{Buyer: "Jane", Food: "pasta", Price: 900000})
	require.NoError(t, err)
	require.Len(t, b.Entries, 2)
	assert.Equal(t, int64(3), b.Order.Revision)

	paid, err := s.SetEntryPaid(c, id, first.ID, true)
	require.NoError(t, err)
	assert.Equal(t, int64(4), paid.Order.Revision)
	e, ok := paid.Snapshot().Entry(first.ID)
	require.True(t, ok)
	assert.True(t, e.Paid)

	removed, err := s.DeleteEntry(c, id, first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), removed.Order.Revision)
	require.Len(t, removed.Entries, 1)
	assert.Equal(t, "Jane", removed.Entries[0].Buyer)
}

func testNotFound(t *testing.T, s Store) {
	c := ctx(t)
	_, err := s.FindOrderWithEntries(c, 987654)
	assert.ErrorIs(t, err, order.ErrNotFound)
	_, err = s.InsertEntry(c, 987654, order.NewEntry{Buyer: "John", Food: "pizza"})
	assert.ErrorIs(t, err, order.ErrNotFound)
	_, err = s.SetOrderState(c, 987654, order.StateClosed)
	assert.ErrorIs(t, err, order.ErrNotFound)

	created, err := s.CreateOrder(c, "https://example.com/menu")
	require.NoError(t, err)
	_, err = s.DeleteEntry(c, created.Order.ID, 987654)
	assert.ErrorIs(t, err, order.ErrNotFound)
	_, err = s.SetEntryPaid(c, created.Order.ID, 987654, true)
	assert.ErrorIs(t, err, order.ErrNotFound)

	// A failed mutation leaves the revision alone.
	found, err := s.FindOrderWithEntries(c, created.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), found.Order.Revision)
}

func testStateRules(t *testing.T, s Store) {
	c := ctx(t)
	created, err := s.CreateOrder(c, "https://example.com/menu")
	require.NoError(t, err)
	id := created.Order.ID

	_, err = s.SetOrderState(c, id, order.StateDelivered)
	assert.ErrorIs(t, err, order.ErrInvalidArgument)

	closed, err := s.SetOrderState(c, id, order.StateClosed)
	require.NoError(t, err)
	assert.Equal(t, order.StateClosed, closed.Order.State)

	_, err = s.InsertEntry(c, id, order.NewEntry{Buyer: "John", Food: "pizza"})
	assert.ErrorIs(t, err, order.ErrInvalidArgument)

	delivered, err := s.SetOrderState(c, id, order.StateDelivered)
	require.NoError(t, err)
	assert.Equal(t, order.StateDelivered, delivered.Order.State)
	assert.Equal(t, int64(3), delivered.Order.Revision)
}

func testList(t *testing.T, s Store) {
	c := ctx(t)
	a, err := s.CreateOrder(c, "https://a.example.com")
	require.NoError(t, err)
	b, err := s.CreateOrder(c, "https://b.example.com")
	require.NoError(t, err)
	_, err = s.InsertEntry(c, a.Order.ID, order.NewEntry{Buyer: "John", Food: "pizza", Price: 1})
	require.NoError(t, err)

	list, err := s.ListOrders(c)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.Order.ID, list[0].Order.ID)
	assert.Equal(t, a.Order.ID, list[1].Order.ID)
	assert.Len(t, list[1].Entries, 1)
	assert.Empty(t, list[0].Entries)
}
