package wire

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "statesync.State"

const (
	SubscribeStateUpdatesMethod = "/statesync.State/SubscribeStateUpdates"
	UpdateStateMethod           = "/statesync.State/UpdateState"
	UpdateLocksMethod           = "/statesync.State/UpdateLocks"
)

// StateClient is the client API for the State service.
type StateClient interface {
	// SubscribeStateUpdates streams changes to the shared state, starting with a full snapshot.
	SubscribeStateUpdates(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (State_SubscribeStateUpdatesClient, error)
	// UpdateState streams batches of writes to the server.
	UpdateState(ctx context.Context, opts ...grpc.CallOption) (State_UpdateStateClient, error)
	// UpdateLocks acquires or releases a resource lock.
	UpdateLocks(ctx context.Context, in *LockRequest, opts ...grpc.CallOption) (*LockResponse, error)
}

type stateClient struct {
	cc grpc.ClientConnInterface
}

// NewStateClient creates a StateClient over cc.
func NewStateClient(cc grpc.ClientConnInterface) StateClient {
	return &stateClient{cc}
}

func (c *stateClient) SubscribeStateUpdates(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (State_SubscribeStateUpdatesClient, error) {
	stream, err := c.cc.NewStream(ctx, &State_ServiceDesc.Streams[0], SubscribeStateUpdatesMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &stateSubscribeStateUpdatesClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// State_SubscribeStateUpdatesClient receives state updates.
type State_SubscribeStateUpdatesClient interface {
	Recv() (*StateUpdate, error)
	grpc.ClientStream
}

type stateSubscribeStateUpdatesClient struct {
	grpc.ClientStream
}

func (x *stateSubscribeStateUpdatesClient) Recv() (*StateUpdate, error) {
	m := new(StateUpdate)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *stateClient) UpdateState(ctx context.Context, opts ...grpc.CallOption) (State_UpdateStateClient, error) {
	stream, err := c.cc.NewStream(ctx, &State_ServiceDesc.Streams[1], UpdateStateMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &stateUpdateStateClient{stream}, nil
}

// State_UpdateStateClient sends write batches.
type State_UpdateStateClient interface {
	Send(*UpdateStateRequest) error
	CloseAndRecv() (*UpdateStateResponse, error)
	grpc.ClientStream
}

type stateUpdateStateClient struct {
	grpc.ClientStream
}

func (x *stateUpdateStateClient) Send(m *UpdateStateRequest) error {
	return x.ClientStream.SendMsg(m)
}

func (x *stateUpdateStateClient) CloseAndRecv() (*UpdateStateResponse, error) {
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	m := new(UpdateStateResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *stateClient) UpdateLocks(ctx context.Context, in *LockRequest, opts ...grpc.CallOption) (*LockResponse, error) {
	out := new(LockResponse)
	if err := c.cc.Invoke(ctx, UpdateLocksMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// StateServer is the server API for the State service.
type StateServer interface {
	SubscribeStateUpdates(*SubscribeRequest, State_SubscribeStateUpdatesServer) error
	UpdateState(State_UpdateStateServer) error
	UpdateLocks(context.Context, *LockRequest) (*LockResponse, error)
}

// RegisterStateServer registers srv with s.
func RegisterStateServer(s grpc.ServiceRegistrar, srv StateServer) {
	s.RegisterService(&State_ServiceDesc, srv)
}

// State_SubscribeStateUpdatesServer sends state updates to a subscriber.
type State_SubscribeStateUpdatesServer interface {
	Send(*StateUpdate) error
	grpc.ServerStream
}

type stateSubscribeStateUpdatesServer struct {
	grpc.ServerStream
}

func (x *stateSubscribeStateUpdatesServer) Send(m *StateUpdate) error {
	return x.ServerStream.SendMsg(m)
}

// State_UpdateStateServer receives write batches from a client.
type State_UpdateStateServer interface {
	SendAndClose(*UpdateStateResponse) error
	Recv() (*UpdateStateRequest, error)
	grpc.ServerStream
}

type stateUpdateStateServer struct {
	grpc.ServerStream
}

func (x *stateUpdateStateServer) SendAndClose(m *UpdateStateResponse) error {
	return x.ServerStream.SendMsg(m)
}

func (x *stateUpdateStateServer) Recv() (*UpdateStateRequest, error) {
	m := new(UpdateStateRequest)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func subscribeStateUpdatesHandler(srv any, stream grpc.ServerStream) error {
	m := new(SubscribeRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(StateServer).SubscribeStateUpdates(m, &stateSubscribeStateUpdatesServer{stream})
}

func updateStateHandler(srv any, stream grpc.ServerStream) error {
	return srv.(StateServer).UpdateState(&stateUpdateStateServer{stream})
}

func updateLocksHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(LockRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StateServer).UpdateLocks(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: UpdateLocksMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StateServer).UpdateLocks(ctx, req.(*LockRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// State_ServiceDesc describes the State service for grpc.Server.
var State_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StateServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "UpdateLocks",
			Handler:    updateLocksHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "SubscribeStateUpdates",
			Handler:       subscribeStateUpdatesHandler,
			ServerStreams: true,
		},
		{
			StreamName:    "UpdateState",
			Handler:       updateStateHandler,
			ClientStreams: true,
		},
	},
	Metadata: "statesync/state",
}
