// Package apiv1 defines the usageguard.v1.UsageAccess gRPC service.
//
// Messages are google.protobuf.Struct values so that clients in any
// language can call the service without generated stubs. Field names are
// listed next to each method.
package apiv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "usageguard.v1.UsageAccess"

// Full method names.
const (
	// Resolve: {pid, uid, package} -> {request_id, level, rule, failed[]}
	ResolveMethod = "/" + ServiceName + "/Resolve"
	// Check: {target_uid, caller_uid, level} -> {allowed}
	CheckMethod = "/" + ServiceName + "/Check"
	// Filter: {pid, uid, package, target_uids[]} -> {request_id, level, rule, allowed_uids[]}
	FilterMethod = "/" + ServiceName + "/Filter"
)

// UsageAccessServer is the server API for the UsageAccess service.
type UsageAccessServer interface {
	Resolve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Check(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Filter(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterUsageAccessServer registers srv on s.
func RegisterUsageAccessServer(s grpc.ServiceRegistrar, srv UsageAccessServer) {
	s.RegisterService(&serviceDesc, srv)
}

type handlerFunc func(UsageAccessServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call handlerFunc) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(UsageAccessServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(UsageAccessServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*UsageAccessServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Resolve",
			Handler:    unaryHandler(ResolveMethod, UsageAccessServer.Resolve),
		},
		{
			MethodName: "Check",
			Handler:    unaryHandler(CheckMethod, UsageAccessServer.Check),
		},
		{
			MethodName: "Filter",
			Handler:    unaryHandler(FilterMethod, UsageAccessServer.Filter),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "usageguard/v1/usage_access.proto",
}

// UsageAccessClient is the client API for the UsageAccess service.
type UsageAccessClient interface {
	Resolve(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Check(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Filter(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type usageAccessClient struct {
	cc grpc.ClientConnInterface
}

// NewUsageAccessClient returns a client bound to cc.
func NewUsageAccessClient(cc grpc.ClientConnInterface) UsageAccessClient {
	return &usageAccessClient{cc: cc}
}

func (c *usageAccessClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *usageAccessClient) Resolve(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ResolveMethod, in, opts)
}

func (c *usageAccessClient) Check(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, CheckMethod, in, opts)
}

func (c *usageAccessClient) Filter(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, FilterMethod, in, opts)
}
