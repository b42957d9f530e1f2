// Package service exposes the bucks ledger over gRPC. Messages are
// google.protobuf.Struct values so no generated stubs are needed.
package service

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "bucks.v1.BuckService"

// Method names.
const (
	MethodCreateBuck  = "CreateBuck"
	MethodFight       = "Fight"
	MethodOwnerOf     = "OwnerOf"
	MethodBalanceOf   = "BalanceOf"
	MethodGetBuck     = "GetBuck"
	MethodMetadataURI = "MetadataURI"
	MethodListEvents  = "ListEvents"
	MethodWatchEvents = "WatchEvents"
)

// FullMethod returns the wire path of method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// BuckServiceServer is the server API of bucks.v1.BuckService.
type BuckServiceServer interface {
	CreateBuck(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Fight(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OwnerOf(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BalanceOf(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBuck(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MetadataURI(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListEvents(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchEvents(*structpb.Struct, EventStream) error
}

// EventStream is the server side of a WatchEvents call.
type EventStream interface {
	Send(*structpb.Struct) error
	Context() context.Context
}

type eventStream struct {
	grpc.ServerStream
}

func (s *eventStream) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

type unaryCall func(BuckServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(BuckServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(BuckServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchEventsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(BuckServiceServer).WatchEvents(in, &eventStream{stream})
}

// ServiceDesc describes bucks.v1.BuckService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BuckServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MethodCreateBuck, BuckServiceServer.CreateBuck),
		unaryMethod(MethodFight, BuckServiceServer.Fight),
		unaryMethod(MethodOwnerOf, BuckServiceServer.OwnerOf),
		unaryMethod(MethodBalanceOf, BuckServiceServer.BalanceOf),
		unaryMethod(MethodGetBuck, BuckServiceServer.GetBuck),
		unaryMethod(MethodMetadataURI, BuckServiceServer.MetadataURI),
		unaryMethod(MethodListEvents, BuckServiceServer.ListEvents),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    MethodWatchEvents,
			Handler:       watchEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "bucks/v1/bucks.proto",
}

// RegisterBuckServiceServer registers srv on s.
func RegisterBuckServiceServer(s grpc.ServiceRegistrar, srv BuckServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
