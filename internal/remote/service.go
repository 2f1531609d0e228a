// Package remote runs block decodes in another process over gRPC. A Server
// wraps a local worker pool; an Executor is a worker.Executor that forwards
// jobs to a Server, so a pool's workers can be remote execution contexts.
package remote

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "slidetiles.decode.v1.BlockDecoder"

const (
	decodeMethod = "/" + ServiceName + "/Decode"
	statusMethod = "/" + ServiceName + "/Status"
)

// DecodeServer is the server side of the BlockDecoder service.
type DecodeServer interface {
	Decode(context.Context, *DecodeRequest) (*DecodeResponse, error)
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DecodeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Decode", Handler: decodeHandler},
		{MethodName: "Status", Handler: statusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "slidetiles/decode/v1/decode.proto",
}

// RegisterDecodeServer registers srv on s.
func RegisterDecodeServer(s grpc.ServiceRegistrar, srv DecodeServer) {
	s.RegisterService(&serviceDesc, srv)
}

func decodeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(DecodeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DecodeServer).Decode(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: decodeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DecodeServer).Decode(ctx, req.(*DecodeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func statusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(StatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DecodeServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: statusMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DecodeServer).Status(ctx, req.(*StatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Client is the client side of the BlockDecoder service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient returns a client over cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Decode(ctx context.Context, in *DecodeRequest, opts ...grpc.CallOption) (*DecodeResponse, error) {
	out := new(DecodeResponse)
	opts = append([]grpc.CallOption{grpc.ForceCodec(wireCodec{})}, opts...)
	if err := c.cc.Invoke(ctx, decodeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	opts = append([]grpc.CallOption{grpc.ForceCodec(wireCodec{})}, opts...)
	if err := c.cc.Invoke(ctx, statusMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
