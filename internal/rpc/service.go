package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/zoravur/orderfeed/internal/order"
)

const serviceName = "orderfeed.v1.OrderService"

type GetOrdersRequest struct{}

type GetOrdersResponse struct {
	Orders []order.Snapshot `json:"orders"`
}

type GetOrderRequest struct {
	OrderID order.ID `json:"order_id"`
}

type CreateOrderRequest struct {
	MenuURL string `json:"menu_url"`
}

type AddOrderEntryRequest struct {
	OrderID         order.ID `json:"order_id"`
	Buyer           string   `json:"buyer"`
	Food            string   `json:"food"`
	PriceMillicents int64    `json:"price_millicents"`
}

type RemoveOrderEntryRequest struct {
	OrderID order.ID `json:"order_id"`
	EntryID order.ID `json:"entry_id"`
}

type SetOrderEntryPaidRequest struct {
	OrderID order.ID `json:"order_id"`
	EntryID order.ID `json:"entry_id"`
	Paid    bool     `json:"paid"`
}

type UpdateOrderStateRequest struct {
	OrderID order.ID    `json:"order_id"`
	State   order.State `json:"state"`
}

type StreamOrderUpdatesRequest struct {
	OrderID order.ID `json:"order_id"`
}

// OrderServiceServer is the server API of orderfeed.v1.OrderService.
type OrderServiceServer interface {
	GetOrders(context.Context, *GetOrdersRequest) (*GetOrdersResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*order.Snapshot, error)
	CreateOrder(context.Context, *CreateOrderRequest) (*order.Snapshot, error)
	AddOrderEntry(context.Context, *AddOrderEntryRequest) (*order.Snapshot, error)
	RemoveOrderEntry(context.Context, *RemoveOrderEntryRequest) (*order.Snapshot, error)
	SetOrderEntryPaid(context.Context, *SetOrderEntryPaidRequest) (*order.Snapshot, error)
	UpdateOrderState(context.Context, *UpdateOrderStateRequest) (*order.Snapshot, error)
	StreamOrderUpdates(*StreamOrderUpdatesRequest, grpc.ServerStreamingServer[order.Snapshot]) error
}

func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&orderServiceDesc, srv)
}

func fullMethod(name string) string { return "/" + serviceName + "/" + name }

func unary[Req, Resp any](name string, call func(OrderServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(OrderServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

func streamOrderUpdatesHandler(srv any, stream grpc.ServerStream) error {
	in := new(StreamOrderUpdatesRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(OrderServiceServer).StreamOrderUpdates(in, &grpc.GenericServerStream[StreamOrderUpdatesRequest, order.Snapshot]{ServerStream: stream})
}

var orderServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetOrders", OrderServiceServer.GetOrders),
		unary("GetOrder", OrderServiceServer.GetOrder),
		unary("CreateOrder", OrderServiceServer.CreateOrder),
		unary("AddOrderEntry", OrderServiceServer.AddOrderEntry),
		unary("RemoveOrderEntry", OrderServiceServer.RemoveOrderEntry),
		unary("SetOrderEntryPaid", OrderServiceServer.SetOrderEntryPaid),
		unary("UpdateOrderState", OrderServiceServer.UpdateOrderState),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamOrderUpdates",
			Handler:       streamOrderUpdatesHandler,
			ServerStreams: true,
		},
	},
	Metadata: "orderfeed/v1/orders",
}
