package broker

import (
	"context"

	"google.golang.org/grpc"
)

const (
	serviceName              = "broker.BrokerService"
	sendTransactionFullMethod = "/" + serviceName + "/SendTransaction"
	getUpdatesFullMethod      = "/" + serviceName + "/GetUpdates"
)

// Server is the interface a broker process implements to satisfy
// BrokerService.
type Server interface {
	SendTransaction(ctx context.Context, req *TransactionRequest) (*TransactionResponse, error)
	GetUpdates(req *UpdatesRequest, stream GetUpdatesServer) error
}

// GetUpdatesServer is the streaming half of GetUpdates, matching the shape
// protoc-gen-go-grpc emits for a server-streaming RPC.
type GetUpdatesServer interface {
	Send(*Query) error
	grpc.ServerStream
}

type getUpdatesServer struct {
	grpc.ServerStream
}

func (s *getUpdatesServer) Send(q *Query) error {
	return s.ServerStream.SendMsg(q)
}

func _SendTransaction_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(TransactionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).SendTransaction(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: sendTransactionFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).SendTransaction(ctx, req.(*TransactionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _GetUpdates_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(UpdatesRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(Server).GetUpdates(m, &getUpdatesServer{stream})
}

// ServiceDesc wires Server into a *grpc.Server, in the same shape
// protoc-gen-go-grpc would generate from broker.proto.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SendTransaction",
			Handler:    _SendTransaction_Handler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "GetUpdates",
			Handler:       _GetUpdates_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "broker.proto",
}

// RegisterServer registers srv with s.
func RegisterServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client is the peer/controller-facing BrokerService client.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) SendTransaction(ctx context.Context, req *TransactionRequest) (*TransactionResponse, error) {
	out := new(TransactionResponse)
	if err := c.cc.Invoke(ctx, sendTransactionFullMethod, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetUpdatesClient streams Query records as they arrive.
type GetUpdatesClient interface {
	Recv() (*Query, error)
	grpc.ClientStream
}

type getUpdatesClient struct {
	grpc.ClientStream
}

func (c *getUpdatesClient) Recv() (*Query, error) {
	m := new(Query)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *Client) GetUpdates(ctx context.Context, req *UpdatesRequest) (GetUpdatesClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], getUpdatesFullMethod)
	if err != nil {
		return nil, err
	}
	x := &getUpdatesClient{stream}
	if err := x.ClientStream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
