package rpcfeed

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "rpcfeed.TransactionFeed"

// TransactionFeedServer is implemented by Server. Scan answers a single
// Replay/ReplayFrom/ReplayStreamRange request with a stream of
// transactions; Subscribe answers with a stream that never ends on its own
// (it runs until the client cancels its context).
type TransactionFeedServer interface {
	Scan(*wrapperspb.BytesValue, TransactionFeed_ScanServer) error
	Subscribe(*wrapperspb.BytesValue, TransactionFeed_SubscribeServer) error
}

type TransactionFeed_ScanServer interface {
	grpc.ServerStream
	Send(*wrapperspb.BytesValue) error
}

type TransactionFeed_SubscribeServer interface {
	grpc.ServerStream
	Send(*wrapperspb.BytesValue) error
}

type transactionFeedScanServer struct{ grpc.ServerStream }

func (x *transactionFeedScanServer) Send(m *wrapperspb.BytesValue) error { return x.SendMsg(m) }

type transactionFeedSubscribeServer struct{ grpc.ServerStream }

func (x *transactionFeedSubscribeServer) Send(m *wrapperspb.BytesValue) error { return x.SendMsg(m) }

func registerTransactionFeedServer(s *grpc.Server, srv TransactionFeedServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*TransactionFeedServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Scan",
			Handler:       scanHandler,
			ServerStreams: true,
		},
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "rpcfeed.proto",
}

func scanHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(wrapperspb.BytesValue)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(TransactionFeedServer).Scan(req, &transactionFeedScanServer{stream})
}

func subscribeHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(wrapperspb.BytesValue)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(TransactionFeedServer).Subscribe(req, &transactionFeedSubscribeServer{stream})
}

// TransactionFeedClient is the hand-written equivalent of a generated
// client stub for serviceDesc.
type TransactionFeedClient interface {
	Scan(ctx context.Context, req *wrapperspb.BytesValue, opts ...grpc.CallOption) (TransactionFeed_ScanClient, error)
	Subscribe(ctx context.Context, req *wrapperspb.BytesValue, opts ...grpc.CallOption) (TransactionFeed_SubscribeClient, error)
}

type TransactionFeed_ScanClient interface {
	grpc.ClientStream
	Recv() (*wrapperspb.BytesValue, error)
}

type TransactionFeed_SubscribeClient interface {
	grpc.ClientStream
	Recv() (*wrapperspb.BytesValue, error)
}

type transactionFeedScanClient struct{ grpc.ClientStream }

func (x *transactionFeedScanClient) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := x.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type transactionFeedSubscribeClient struct{ grpc.ClientStream }

func (x *transactionFeedSubscribeClient) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := x.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type transactionFeedClient struct {
	cc *grpc.ClientConn
}

// newTransactionFeedClient builds the hand-written client stub over cc.
func newTransactionFeedClient(cc *grpc.ClientConn) TransactionFeedClient {
	return &transactionFeedClient{cc: cc}
}

func (c *transactionFeedClient) Scan(ctx context.Context, req *wrapperspb.BytesValue, opts ...grpc.CallOption) (TransactionFeed_ScanClient, error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], "/"+serviceName+"/Scan", opts...)
	if err != nil {
		return nil, err
	}
	x := &transactionFeedScanClient{stream}
	if err := x.SendMsg(req); err != nil {
		return nil, err
	}
	if err := x.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *transactionFeedClient) Subscribe(ctx context.Context, req *wrapperspb.BytesValue, opts ...grpc.CallOption) (TransactionFeed_SubscribeClient, error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[1], "/"+serviceName+"/Subscribe", opts...)
	if err != nil {
		return nil, err
	}
	x := &transactionFeedSubscribeClient{stream}
	if err := x.SendMsg(req); err != nil {
		return nil, err
	}
	if err := x.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
