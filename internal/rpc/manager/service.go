package manager

import (
	"context"

	"google.golang.org/grpc"
)

const (
	serviceName            = "manager.ManagerService"
	healthCheckFullMethod   = "/" + serviceName + "/HealthCheck"
	registerBrokerFullMethod = "/" + serviceName + "/RegisterBroker"
)

// Client is the broker-side client for ManagerService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection to the controller.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) HealthCheck(ctx context.Context, req *HeartBeat) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, healthCheckFullMethod, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RegisterBroker(ctx context.Context, req *BrokerDetails) (*RegisterStatus, error) {
	out := new(RegisterStatus)
	if err := c.cc.Invoke(ctx, registerBrokerFullMethod, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Server is the interface a controller implements. Only a test double of
// this lives in this repo; the real controller is out of scope.
type Server interface {
	HealthCheck(ctx context.Context, req *HeartBeat) (*Ack, error)
	RegisterBroker(ctx context.Context, req *BrokerDetails) (*RegisterStatus, error)
}

func _HealthCheck_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(HeartBeat)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).HealthCheck(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: healthCheckFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).HealthCheck(ctx, req.(*HeartBeat))
	}
	return interceptor(ctx, in, info, handler)
}

func _RegisterBroker_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(BrokerDetails)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).RegisterBroker(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: registerBrokerFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).RegisterBroker(ctx, req.(*BrokerDetails))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc wires Server into a *grpc.Server, for test doubles that stand
// in for the controller.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "HealthCheck", Handler: _HealthCheck_Handler},
		{MethodName: "RegisterBroker", Handler: _RegisterBroker_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "manager.proto",
}

// RegisterServer registers srv with s.
func RegisterServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}
