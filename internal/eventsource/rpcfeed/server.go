package rpcfeed

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/cschjolb/scuff/internal/eventsource"
	grpcstream "github.com/cschjolb/scuff/internal/grpc"
	httpapi "github.com/cschjolb/scuff/internal/http"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// categoryKey builds a stable rate-limit key from a scan request's category
// set so a full-history scan of one busy category doesn't exhaust the
// throttle budget a scan of a different category would otherwise have. An
// unfiltered scan (every category) gets its own shared key.
func categoryKey(categories []eventsource.CAT) string {
	if len(categories) == 0 {
		return "*"
	}
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// Server exposes a local eventsource.Source to remote callers over gRPC,
// grounded on the teacher's StreamStateDiffs/PublishIntents handlers:
// compress each outgoing payload with a Compressor, frame it, and forward
// it down the stream until the client disconnects.
type Server struct {
	source     eventsource.Source
	compressor grpcstream.Compressor
	// scanAllLimiter throttles scanAll requests, since a full replay scan is
	// the most expensive Scan mode a client can trigger.
	scanAllLimiter *httpapi.SlidingWindowLimiter
}

// NewServer builds a Server fronting source. A nil compressor defaults to
// snappy, the same block codec the hot journal path uses, since rpcfeed
// carries the same live/replay traffic across the wire.
func NewServer(source eventsource.Source, compressor grpcstream.Compressor) *Server {
	if compressor == nil {
		compressor = grpcstream.NewSnappyCompressor()
	}
	return &Server{source: source, compressor: compressor}
}

// WithScanAllLimiter bounds how often a full replay scan (scanAll) may be
// requested, guarding against a reconnect storm re-scanning the entire
// journal.
func (srv *Server) WithScanAllLimiter(limiter *httpapi.SlidingWindowLimiter) *Server {
	srv.scanAllLimiter = limiter
	return srv
}

// Register attaches the service to s.
func (srv *Server) Register(s *grpc.Server) {
	registerTransactionFeedServer(s, srv)
}

// Scan implements TransactionFeedServer.
func (srv *Server) Scan(req *wrapperspb.BytesValue, stream TransactionFeed_ScanServer) error {
	var r scanRequest
	if err := decodeMessage(srv.compressor, req, &r); err != nil {
		return status.Errorf(codes.InvalidArgument, "rpcfeed: decode scan request: %v", err)
	}

	send := func(t eventsource.Transaction) error {
		msg, err := encodeMessage(srv.compressor, toWireTransaction(t))
		if err != nil {
			return status.Errorf(codes.Internal, "rpcfeed: encode transaction: %v", err)
		}
		return stream.Send(msg)
	}

	ctx := stream.Context()
	switch r.Mode {
	case scanAll:
		if srv.scanAllLimiter != nil && !srv.scanAllLimiter.AllowKey(categoryKey(r.Categories)) {
			return status.Error(codes.ResourceExhausted, "rpcfeed: full replay scan rate limit exceeded")
		}
		return srv.source.Replay(ctx, r.Categories, send)
	case scanFrom:
		return srv.source.ReplayFrom(ctx, r.Since, r.Categories, send)
	case scanRange:
		return srv.source.ReplayStreamRange(ctx, r.StreamID, r.Lo, r.Hi, send)
	default:
		return status.Errorf(codes.InvalidArgument, "rpcfeed: unknown scan mode %q", r.Mode)
	}
}

// Subscribe implements TransactionFeedServer. It streams every live
// transaction regardless of the client's advisory category list — the
// client applies its own filter — and runs until the client's context is
// cancelled or the underlying Source subscription ends.
func (srv *Server) Subscribe(req *wrapperspb.BytesValue, stream TransactionFeed_SubscribeServer) error {
	var r subscribeRequest
	if err := decodeMessage(srv.compressor, req, &r); err != nil {
		return status.Errorf(codes.InvalidArgument, "rpcfeed: decode subscribe request: %v", err)
	}

	ctx := stream.Context()
	errCh := make(chan error, 1)

	sub, err := srv.source.Subscribe(ctx, nil, func(t eventsource.Transaction) {
		msg, err := encodeMessage(srv.compressor, toWireTransaction(t))
		if err != nil {
			select {
			case errCh <- err:
			default:
			}
			return
		}
		if err := stream.Send(msg); err != nil {
			select {
			case errCh <- err:
			default:
			}
		}
	})
	if err != nil {
		return status.Errorf(codes.Internal, "rpcfeed: subscribe: %v", err)
	}
	defer sub.Cancel()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return status.Error(codes.Canceled, "stream cancelled")
		}
		return status.Error(codes.DeadlineExceeded, "stream deadline exceeded")
	case err := <-errCh:
		if errors.Is(err, io.EOF) {
			return nil
		}
		return status.Errorf(codes.Internal, "rpcfeed: send: %v", err)
	}
}
