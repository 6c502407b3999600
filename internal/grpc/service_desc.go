package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"deliverySync/internal/events"
	"deliverySync/models"
)

const ServiceName = "deliverysync.v1.Coordinator"

// Full method names.
const (
	MethodAssignDelivery       = "/" + ServiceName + "/AssignDelivery"
	MethodAutoAssignDelivery   = "/" + ServiceName + "/AutoAssignDelivery"
	MethodUpdateDeliveryStatus = "/" + ServiceName + "/UpdateDeliveryStatus"
	MethodUpdateOrderStatus    = "/" + ServiceName + "/UpdateOrderStatus"
	MethodListDeliveries       = "/" + ServiceName + "/ListDeliveries"
	MethodWatch                = "/" + ServiceName + "/Watch"
)

// CoordinatorServer is the server API for the Coordinator service.
type CoordinatorServer interface {
	AssignDelivery(context.Context, *AssignDeliveryRequest) (*models.Delivery, error)
	AutoAssignDelivery(context.Context, *AutoAssignDeliveryRequest) (*models.Delivery, error)
	UpdateDeliveryStatus(context.Context, *UpdateDeliveryStatusRequest) (*UpdateDeliveryStatusResponse, error)
	UpdateOrderStatus(context.Context, *UpdateOrderStatusRequest) (*models.Order, error)
	ListDeliveries(context.Context, *ListDeliveriesRequest) (*ListDeliveriesResponse, error)
	Watch(*WatchRequest, Coordinator_WatchServer) error
}

// Coordinator_WatchServer is the server side of the Watch stream.
type Coordinator_WatchServer interface {
	Send(*events.Event) error
	grpc.ServerStream
}

type coordinatorWatchServer struct{ grpc.ServerStream }

func (x *coordinatorWatchServer) Send(e *events.Event) error { return x.ServerStream.SendMsg(e) }

// RegisterCoordinatorServer registers srv on s.
func RegisterCoordinatorServer(s grpc.ServiceRegistrar, srv CoordinatorServer) {
	s.RegisterService(&Coordinator_ServiceDesc, srv)
}

// methodHandler has the shape of grpc.MethodDesc.Handler. It is an alias so the
// unnamed func type stays assignable to grpc's own handler type.
type methodHandler = func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error)

func unary[Req any, Resp any](method string, call func(CoordinatorServer, context.Context, *Req) (Resp, error)) methodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "decode request: %v", err)
		}
		if interceptor == nil {
			return call(srv.(CoordinatorServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(CoordinatorServer), ctx, req.(*Req))
		})
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(CoordinatorServer).Watch(in, &coordinatorWatchServer{stream})
}

// Coordinator_ServiceDesc is written by hand; the messages are plain Go types
// carried by the json codec.
var Coordinator_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CoordinatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AssignDelivery", Handler: unary(MethodAssignDelivery, CoordinatorServer.AssignDelivery)},
		{MethodName: "AutoAssignDelivery", Handler: unary(MethodAutoAssignDelivery, CoordinatorServer.AutoAssignDelivery)},
		{MethodName: "UpdateDeliveryStatus", Handler: unary(MethodUpdateDeliveryStatus, CoordinatorServer.UpdateDeliveryStatus)},
		{MethodName: "UpdateOrderStatus", Handler: unary(MethodUpdateOrderStatus, CoordinatorServer.UpdateOrderStatus)},
		{MethodName: "ListDeliveries", Handler: unary(MethodListDeliveries, CoordinatorServer.ListDeliveries)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "deliverysync/v1/coordinator",
}

// CoordinatorClient is the client API for the Coordinator service.
type CoordinatorClient struct {
	cc grpc.ClientConnInterface
}

// NewCoordinatorClient wraps cc. Calls are sent with the json content-subtype.
func NewCoordinatorClient(cc grpc.ClientConnInterface) *CoordinatorClient {
	return &CoordinatorClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CoordinatorClient) AssignDelivery(ctx context.Context, in *AssignDeliveryRequest, opts ...grpc.CallOption) (*models.Delivery, error) {
	return invoke[models.Delivery](ctx, c.cc, MethodAssignDelivery, in, opts)
}

func (c *CoordinatorClient) AutoAssignDelivery(ctx context.Context, in *AutoAssignDeliveryRequest, opts ...grpc.CallOption) (*models.Delivery, error) {
	return invoke[models.Delivery](ctx, c.cc, MethodAutoAssignDelivery, in, opts)
}

func (c *CoordinatorClient) UpdateDeliveryStatus(ctx context.Context, in *UpdateDeliveryStatusRequest, opts ...grpc.CallOption) (*UpdateDeliveryStatusResponse, error) {
	return invoke[UpdateDeliveryStatusResponse](ctx, c.cc, MethodUpdateDeliveryStatus, in, opts)
}

func (c *CoordinatorClient) UpdateOrderStatus(ctx context.Context, in *UpdateOrderStatusRequest, opts ...grpc.CallOption) (*models.Order, error) {
	return invoke[models.Order](ctx, c.cc, MethodUpdateOrderStatus, in, opts)
}

func (c *CoordinatorClient) ListDeliveries(ctx context.Context, in *ListDeliveriesRequest, opts ...grpc.CallOption) (*ListDeliveriesResponse, error) {
	return invoke[ListDeliveriesResponse](ctx, c.cc, MethodListDeliveries, in, opts)
}

// WatchStream is the client side of Watch.
type WatchStream struct{ grpc.ClientStream }

// Recv blocks for the next event.
func (x *WatchStream) Recv() (*events.Event, error) {
	e := new(events.Event)
	if err := x.ClientStream.RecvMsg(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (c *CoordinatorClient) Watch(ctx context.Context, in *WatchRequest, opts ...grpc.CallOption) (*WatchStream, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &Coordinator_ServiceDesc.Streams[0], MethodWatch, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &WatchStream{stream}, nil
}
