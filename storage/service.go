package storage

import (
	"context"

	"google.golang.org/grpc"
)

// ShardServer is the service contract one shard exposes.
type ShardServer interface {
	GetNeighbors(ctx context.Context, req *GetNeighborsRequest) (*ShardQueryResponse, error)
	GetVertexProps(ctx context.Context, req *GetVertexPropsRequest) (*ShardQueryResponse, error)
	GetEdgeProps(ctx context.Context, req *GetEdgePropsRequest) (*ShardEdgePropResponse, error)
}

const (
	serviceName          = "hopdb.storage.Shard"
	methodGetNeighbors   = "/" + serviceName + "/GetNeighbors"
	methodGetVertexProps = "/" + serviceName + "/GetVertexProps"
	methodGetEdgeProps   = "/" + serviceName + "/GetEdgeProps"
)

// shardServiceDesc wires the service by hand; there are no generated
// stubs because the transport codec is msgpack, not protobuf.
var shardServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ShardServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetNeighbors", Handler: getNeighborsHandler},
		{MethodName: "GetVertexProps", Handler: getVertexPropsHandler},
		{MethodName: "GetEdgeProps", Handler: getEdgePropsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hopdb/storage",
}

// RegisterShardServer registers a shard implementation with a grpc server.
func RegisterShardServer(s *grpc.Server, srv ShardServer) {
	s.RegisterService(&shardServiceDesc, srv)
}

func getNeighborsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetNeighborsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ShardServer).GetNeighbors(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetNeighbors}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ShardServer).GetNeighbors(ctx, req.(*GetNeighborsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getVertexPropsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetVertexPropsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ShardServer).GetVertexProps(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetVertexProps}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ShardServer).GetVertexProps(ctx, req.(*GetVertexPropsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getEdgePropsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetEdgePropsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ShardServer).GetEdgeProps(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetEdgeProps}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ShardServer).GetEdgeProps(ctx, req.(*GetEdgePropsRequest))
	}
	return interceptor(ctx, in, info, handler)
}
