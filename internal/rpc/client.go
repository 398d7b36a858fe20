package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/zoravur/orderfeed/internal/order"
)

// Client is a typed client for orderfeed.v1.OrderService. Errors match
// order.ErrNotFound and order.ErrInvalidArgument where the server said so.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects without transport security unless opts say otherwise.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) snapshot(ctx context.Context, method string, in any) (order.Snapshot, error) {
	var out order.Snapshot
	if err := c.conn.Invoke(ctx, fullMethod(method), in, &out); err != nil {
		return order.Snapshot{}, fromStatus(err)
	}
	return out, nil
}

func (c *Client) GetOrders(ctx context.Context) ([]order.Snapshot, error) {
	var out GetOrdersResponse
	if err := c.conn.Invoke(ctx, fullMethod("GetOrders"), &GetOrdersRequest{}, &out); err != nil {
		return nil, fromStatus(err)
	}
	return out.Orders, nil
}

func (c *Client) GetOrder(ctx context.Context, id order.ID) (order.Snapshot, error) {
	return c.snapshot(ctx, "GetOrder", &GetOrderRequest{OrderID: id})
}

func (c *Client) CreateOrder(ctx context.Context, menuURL string) (order.Snapshot, error) {
	return c.snapshot(ctx, "CreateOrder", &CreateOrderRequest{MenuURL: menuURL})
}

func (c *Client) AddOrderEntry(ctx context.Context, id order.ID, e order.NewEntry) (order.Snapshot, error) {
	return c.snapshot(ctx, "AddOrderEntry", &AddOrderEntryRequest{
		OrderID:         id,
		Buyer:           e.Buyer,
		Food:            e.Food,
		PriceMillicents: e.Price.Raw(),
	})
}

func (c *Client) RemoveOrderEntry(ctx context.Context, id, entryID order.ID) (order.Snapshot, error) {
	return c.snapshot(ctx, "RemoveOrderEntry", &RemoveOrderEntryRequest{OrderID: id, EntryID: entryID})
}

func (c *Client) SetOrderEntryPaid(ctx context.Context, id, entryID order.ID, paid bool) (order.Snapshot, error) {
	return c.snapshot(ctx, "SetOrderEntryPaid", &SetOrderEntryPaidRequest{OrderID: id, EntryID: entryID, Paid: paid})
}

func (c *Client) UpdateOrderState(ctx context.Context, id order.ID, next order.State) (order.Snapshot, error) {
	return c.snapshot(ctx, "UpdateOrderState", &UpdateOrderStateRequest{OrderID: id, State: next})
}

// UpdateStream yields snapshots of one order.
type UpdateStream struct {
	stream grpc.ServerStreamingClient[order.Snapshot]
}

// Recv blocks for the next snapshot. It returns io.EOF when the server
// ends the stream cleanly.
func (s *UpdateStream) Recv() (order.Snapshot, error) {
	snap, err := s.stream.Recv()
	if err != nil {
		return order.Snapshot{}, fromStatus(err)
	}
	return *snap, nil
}

// StreamOrderUpdates opens the update stream of an order. Cancel ctx to
// end it.
func (c *Client) StreamOrderUpdates(ctx context.Context, id order.ID) (*UpdateStream, error) {
	cs, err := c.conn.NewStream(ctx, &orderServiceDesc.Streams[0], fullMethod("StreamOrderUpdates"))
	if err != nil {
		return nil, fromStatus(err)
	}
	x := &grpc.GenericClientStream[StreamOrderUpdatesRequest, order.Snapshot]{ClientStream: cs}
	if err := x.ClientStream.SendMsg(&StreamOrderUpdatesRequest{OrderID: id}); err != nil {
		return nil, fromStatus(err)
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, fromStatus(err)
	}
	return &UpdateStream{stream: x}, nil
}
