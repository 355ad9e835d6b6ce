package rpcfeed

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/cschjolb/scuff/internal/eventsource"
	grpcstream "github.com/cschjolb/scuff/internal/grpc"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client adapts a remote Server into a local eventsource.Source, so the
// rest of the pipeline (internal/eventstream) never has to know whether
// its journal and live feed are in-process or across a gRPC connection.
type Client struct {
	stub       TransactionFeedClient
	compressor grpcstream.Compressor
}

// NewClient builds a Client over an already-dialled connection. The
// compressor must match whatever the Server was built with; a nil value
// defaults to snappy, matching NewServer's default.
func NewClient(cc *grpc.ClientConn, compressor grpcstream.Compressor) *Client {
	if compressor == nil {
		compressor = grpcstream.NewSnappyCompressor()
	}
	return &Client{stub: newTransactionFeedClient(cc), compressor: compressor}
}

func (c *Client) scan(ctx context.Context, req scanRequest, handler func(eventsource.Transaction) error) error {
	msg, err := encodeMessage(c.compressor, req)
	if err != nil {
		return err
	}
	stream, err := c.stub.Scan(ctx, msg)
	if err != nil {
		return err
	}
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		var w wireTransaction
		if err := decodeMessage(c.compressor, resp, &w); err != nil {
			return err
		}
		t, err := fromWireTransaction(w)
		if err != nil {
			return err
		}
		if err := handler(t); err != nil {
			return err
		}
	}
}

// Replay implements eventsource.Source.
func (c *Client) Replay(ctx context.Context, categories []eventsource.CAT, handler func(eventsource.Transaction) error) error {
	return c.scan(ctx, scanRequest{Mode: scanAll, Categories: categories}, handler)
}

// ReplayFrom implements eventsource.Source.
func (c *Client) ReplayFrom(ctx context.Context, since int64, categories []eventsource.CAT, handler func(eventsource.Transaction) error) error {
	return c.scan(ctx, scanRequest{Mode: scanFrom, Since: since, Categories: categories}, handler)
}

// ReplayStreamRange implements eventsource.Source.
func (c *Client) ReplayStreamRange(ctx context.Context, id eventsource.ID, lo, hi int32, handler func(eventsource.Transaction) error) error {
	return c.scan(ctx, scanRequest{Mode: scanRange, StreamID: id, Lo: lo, Hi: hi}, handler)
}

// clientSubscription implements eventsource.Subscription by cancelling the
// derived context the Subscribe goroutine reads its stream under.
type clientSubscription struct {
	cancel context.CancelFunc
	once   sync.Once
}

func (s *clientSubscription) Cancel() {
	s.once.Do(s.cancel)
}

// Subscribe implements eventsource.Source. The server streams every live
// transaction; filter is applied locally before sink is invoked, since an
// arbitrary predicate cannot be serialized onto the wire.
func (c *Client) Subscribe(ctx context.Context, filter func(eventsource.CAT) bool, sink func(eventsource.Transaction)) (eventsource.Subscription, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	msg, err := encodeMessage(c.compressor, subscribeRequest{})
	if err != nil {
		cancel()
		return nil, err
	}
	stream, err := c.stub.Subscribe(streamCtx, msg)
	if err != nil {
		cancel()
		return nil, err
	}

	go func() {
		for {
			resp, err := stream.Recv()
			if err != nil {
				return
			}
			var w wireTransaction
			if err := decodeMessage(c.compressor, resp, &w); err != nil {
				continue
			}
			t, err := fromWireTransaction(w)
			if err != nil {
				continue
			}
			if filter == nil || filter(t.Category) {
				sink(t)
			}
		}
	}()

	return &clientSubscription{cancel: cancel}, nil
}

var _ eventsource.Source = (*Client)(nil)
