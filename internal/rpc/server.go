package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/zoravur/orderfeed/internal/order"
	"github.com/zoravur/orderfeed/internal/service"
)

// Server adapts service.Orders to gRPC.
type Server struct {
	orders *service.Orders
}

func NewServer(orders *service.Orders) *Server {
	return &Server{orders: orders}
}

func checkID(field string, id order.ID) error {
	if id <= 0 {
		return status.Errorf(codes.InvalidArgument, "%s must be positive", field)
	}
	return nil
}

func reply(ctx context.Context, snap order.Snapshot, err error) (*order.Snapshot, error) {
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &snap, nil
}

func (s *Server) GetOrders(ctx context.Context, _ *GetOrdersRequest) (*GetOrdersResponse, error) {
	list, err := s.orders.ListOrders(ctx)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &GetOrdersResponse{Orders: list}, nil
}

func (s *Server) GetOrder(ctx context.Context, req *GetOrderRequest) (*order.Snapshot, error) {
	if err := checkID("order_id", req.OrderID); err != nil {
		return nil, err
	}
	snap, err := s.orders.GetOrder(ctx, req.OrderID)
	return reply(ctx, snap, err)
}

func (s *Server) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*order.Snapshot, error) {
	snap, err := s.orders.CreateOrder(ctx, req.MenuURL)
	return reply(ctx, snap, err)
}

func (s *Server) AddOrderEntry(ctx context.Context, req *AddOrderEntryRequest) (*order.Snapshot, error) {
	if err := checkID("order_id", req.OrderID); err != nil {
		return nil, err
	}
	price, err := order.FromRaw(req.PriceMillicents)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	snap, err := s.orders.AddEntry(ctx, req.OrderID, order.NewEntry{
		Buyer: req.Buyer,
		Food:  req.Food,
		Price: price,
	})
	return reply(ctx, snap, err)
}

func (s *Server) RemoveOrderEntry(ctx context.Context, req *RemoveOrderEntryRequest) (*order.Snapshot, error) {
	if err := checkID("order_id", req.OrderID); err != nil {
		return nil, err
	}
	snap, err := s.orders.RemoveEntry(ctx, req.OrderID, req.EntryID)
	return reply(ctx, snap, err)
}

func (s *Server) SetOrderEntryPaid(ctx context.Context, req *SetOrderEntryPaidRequest) (*order.Snapshot, error) {
	if err := checkID("order_id", req.OrderID); err != nil {
		return nil, err
	}
	snap, err := s.orders.SetEntryPaid(ctx, req.OrderID, req.EntryID, req.Paid)
	return reply(ctx, snap, err)
}

func (s *Server) UpdateOrderState(ctx context.Context, req *UpdateOrderStateRequest) (*order.Snapshot, error) {
	if err := checkID("order_id", req.OrderID); err != nil {
		return nil, err
	}
	snap, err := s.orders.UpdateState(ctx, req.OrderID, req.State)
	return reply(ctx, snap, err)
}

// StreamOrderUpdates sends the current snapshot and then one per change
// until the client goes away or the server shuts down.
func (s *Server) StreamOrderUpdates(req *StreamOrderUpdatesRequest, stream grpc.ServerStreamingServer[order.Snapshot]) error {
	if err := checkID("order_id", req.OrderID); err != nil {
		return err
	}
	ctx := stream.Context()
	sub, err := s.orders.OpenStream(ctx, req.OrderID)
	if err != nil {
		return toStatus(ctx, err)
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-sub.C():
			if !ok {
				return status.Error(codes.Unavailable, service.ErrShuttingDown.Error())
			}
			if err := stream.Send(&snap); err != nil {
				return err
			}
		}
	}
}
