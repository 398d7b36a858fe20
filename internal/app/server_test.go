package app

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/zoravur/orderfeed/internal/config"
	"github.com/zoravur/orderfeed/internal/order"
	"github.com/zoravur/orderfeed/internal/rpc"
)

func memoryConfig() config.Config {
	cfg := config.Default()
	cfg.Store = config.StoreMemory
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func TestServerServesAndShutsDown(t *testing.T) {
	srv, err := NewServer(context.Background(), memoryConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	resp, err := http.Post("http://"+srv.HTTPAddr()+"/api/orders", "application/json", strings.NewReader(`{"menu_url":"a.example"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	client, err := rpc.Dial(srv.GRPCAddr())
	require.NoError(t, err)
	defer client.Close()

	callCtx, callCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer callCancel()
	stream, err := client.StreamOrderUpdates(callCtx, 1)
	require.NoError(t, err)
	first, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, order.StateOpen, first.State)

	// an HTTP mutation reaches the gRPC viewer
	req, err := http.NewRequest(http.MethodPut, "http://"+srv.HTTPAddr()+"/api/orders/1/state", strings.NewReader(`{"state":"closed"}`))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	next, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, order.StateClosed, next.State)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_, err = stream.Recv()
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestNewServerRejectsBadConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.Store = config.StorePostgres
	cfg.DatabaseURL = ""
	_, err := NewServer(context.Background(), cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestGRPCDisabled(t *testing.T) {
	cfg := memoryConfig()
	cfg.GRPCAddr = ""
	srv, err := NewServer(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(srv.closeAll)
	assert.Empty(t, srv.GRPCAddr())
	assert.NotEmpty(t, srv.HTTPAddr())
}

func TestSeed(t *testing.T) {
	cfg := memoryConfig()
	cfg.GRPCAddr = ""
	srv, err := NewServer(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(srv.closeAll)

	ctx := context.Background()
	require.NoError(t, Seed(ctx, srv.Orders, 42, 3))
	list, err := srv.Orders.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for _, o := range list {
		assert.NotEmpty(t, o.Entries)
		assert.Equal(t, order.StateOpen, o.State)
	}
}
