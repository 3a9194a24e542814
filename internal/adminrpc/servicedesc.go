package adminrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name clients dial.
const ServiceName = "engshopsync.admin.v1.AdminService"

// ServiceDesc is hand-written rather than generated from a .proto
// file: the service carries only four RPCs, each taking and
// returning a google.protobuf.Struct, so there is nothing a code
// generator would add beyond what grpc.ServiceDesc already expresses
// directly.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdminServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ApplyChangeRequest", Handler: applyChangeRequestHandler},
		{MethodName: "RejectChangeRequest", Handler: rejectChangeRequestHandler},
		{MethodName: "GetSchema", Handler: getSchemaHandler},
		{MethodName: "ReassignOwner", Handler: reassignOwnerHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/adminrpc/servicedesc.go",
}

// AdminServiceServer is the interface *Service implements; registering
// against this interface (rather than *Service directly) keeps the
// ServiceDesc decoupled from the concrete service implementation.
type AdminServiceServer interface {
	ApplyChangeRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RejectChangeRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSchema(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReassignOwner(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func RegisterAdminServiceServer(s grpc.ServiceRegistrar, srv AdminServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func applyChangeRequestHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).ApplyChangeRequest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/ApplyChangeRequest"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServiceServer).ApplyChangeRequest(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func rejectChangeRequestHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).RejectChangeRequest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/RejectChangeRequest"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServiceServer).RejectChangeRequest(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getSchemaHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).GetSchema(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetSchema"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServiceServer).GetSchema(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func reassignOwnerHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).ReassignOwner(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/ReassignOwner"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServiceServer).ReassignOwner(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
