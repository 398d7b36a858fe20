package rpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/zoravur/orderfeed/internal/metrics"
	"github.com/zoravur/orderfeed/internal/order"
	"github.com/zoravur/orderfeed/internal/service"
	"github.com/zoravur/orderfeed/internal/store/memory"
)

type fixture struct {
	client *Client
	reg    *service.Registry
	m      *metrics.ServerMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := service.NewRegistry()
	m := metrics.NewServerMetrics(prometheus.NewRegistry(), "grpc")
	srv := NewGRPCServer(service.NewOrders(memory.New(), reg), zaptest.NewLogger(t), m)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()

	client, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		reg.Close()
		srv.Stop()
	})
	return &fixture{client: client, reg: reg, m: m}
}

func ctxT(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestUnaryCalls(t *testing.T) {
	f := newFixture(t)
	ctx := ctxT(t)

	created, err := f.client.CreateOrder(ctx, "https://sushi.example")
	require.NoError(t, err)
	assert.Equal(t, order.StateOpen, created.State)

	snap, err := f.client.AddOrderEntry(ctx, created.ID, order.NewEntry{Buyer: "Ada", Food: "Maki", Price: 750000})
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	entryID := snap.Entries[0].ID

	snap, err = f.client.SetOrderEntryPaid(ctx, created.ID, entryID, true)
	require.NoError(t, err)
	assert.True(t, snap.Entries[0].Paid)

	snap, err = f.client.UpdateOrderState(ctx, created.ID, order.StateClosed)
	require.NoError(t, err)
	assert.Equal(t, order.StateClosed, snap.State)

	snap, err = f.client.UpdateOrderState(ctx, created.ID, order.StateOpen)
	require.NoError(t, err)
	snap, err = f.client.RemoveOrderEntry(ctx, created.ID, entryID)
	require.NoError(t, err)
	assert.Empty(t, snap.Entries)

	got, err := f.client.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.Rev, got.Rev)

	list, err := f.client.GetOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.m.Requests.WithLabelValues(fullMethod("CreateOrder"), codes.OK.String())))
}

func TestErrorCodes(t *testing.T) {
	f := newFixture(t)
	ctx := ctxT(t)

	_, err := f.client.GetOrder(ctx, 12)
	assert.ErrorIs(t, err, order.ErrNotFound)

	_, err = f.client.GetOrder(ctx, 0)
	assert.ErrorIs(t, err, order.ErrInvalidArgument)

	_, err = f.client.CreateOrder(ctx, "")
	assert.ErrorIs(t, err, order.ErrInvalidArgument)

	o, err := f.client.CreateOrder(ctx, "a.example")
	require.NoError(t, err)
	_, err = f.client.AddOrderEntry(ctx, o.ID, order.NewEntry{Buyer: "Ann", Food: "Pho", Price: -5})
	assert.ErrorIs(t, err, order.ErrInvalidArgument)
	_, err = f.client.UpdateOrderState(ctx, o.ID, order.StateDelivered)
	assert.ErrorIs(t, err, order.ErrInvalidArgument)
}

func TestStreamOrderUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := ctxT(t)

	o, err := f.client.CreateOrder(ctx, "a.example")
	require.NoError(t, err)

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, err := f.client.StreamOrderUpdates(streamCtx, o.ID)
	require.NoError(t, err)

	first, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, o.Rev, first.Rev)

	added, err := f.client.AddOrderEntry(ctx, o.ID, order.NewEntry{Buyer: "Bob", Food: "Udon", Price: 1200000})
	require.NoError(t, err)
	next, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, added.Rev, next.Rev)
	assert.Equal(t, added.Total, next.Total)

	cancel()
	require.Eventually(t, func() bool {
		f.reg.Reap()
		return f.reg.Count(o.ID) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStreamUnknownOrder(t *testing.T) {
	f := newFixture(t)
	stream, err := f.client.StreamOrderUpdates(ctxT(t), 77)
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestStreamEndsOnShutdown(t *testing.T) {
	f := newFixture(t)
	ctx := ctxT(t)
	o, err := f.client.CreateOrder(ctx, "a.example")
	require.NoError(t, err)

	stream, err := f.client.StreamOrderUpdates(ctx, o.ID)
	require.NoError(t, err)
	_, err = stream.Recv()
	require.NoError(t, err)

	f.reg.Close()
	_, err = stream.Recv()
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestToStatus(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, codes.NotFound, status.Code(toStatus(ctx, &order.NotFoundError{Kind: "order", ID: 1})))
	assert.Equal(t, codes.InvalidArgument, status.Code(toStatus(ctx, &order.ValidationError{Field: "f"})))
	assert.Equal(t, codes.Unavailable, status.Code(toStatus(ctx, service.ErrShuttingDown)))
	assert.Equal(t, codes.Canceled, status.Code(toStatus(ctx, context.Canceled)))

	st := status.Convert(toStatus(ctx, errors.New("pq: connection refused")))
	assert.Equal(t, codes.Internal, st.Code())
	assert.Equal(t, "internal error", st.Message())
}
