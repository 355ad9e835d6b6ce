// Command eventstreamd wires the ordered delivery pipeline into a running
// service: an in-memory, journaled Source; an EventStream driving one
// in-process DurableConsumer through replay and live cutover; and two
// remote transports (wsfeed, rpcfeed) fronting the same Source for
// external subscribers.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cschjolb/scuff/internal/auth"
	"github.com/cschjolb/scuff/internal/config"
	"github.com/cschjolb/scuff/internal/eventsource"
	"github.com/cschjolb/scuff/internal/eventsource/memory"
	"github.com/cschjolb/scuff/internal/eventsource/rpcfeed"
	"github.com/cschjolb/scuff/internal/eventsource/wsfeed"
	"github.com/cschjolb/scuff/internal/eventstream"
	httpapi "github.com/cschjolb/scuff/internal/http"
	"github.com/cschjolb/scuff/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "eventstreamd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	var journal *memory.Journal
	if cfg.ArchiveDir != "" {
		journal, err = memory.OpenJournal(cfg.ArchiveDir)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
	}
	store := memory.New(journal)

	stream := eventstream.New(store, eventstream.Config{
		ReplayBuffer:             cfg.Stream.ReplayBuffer,
		GapReplayDelay:           cfg.Stream.GapReplayDelay,
		MaxClockSkew:             cfg.Stream.MaxClockSkew,
		MaxReplayConsumptionWait: cfg.Stream.MaxReplayConsumptionWait,
		PerTransactionTimeout:    cfg.Stream.PerTransactionTimeout,
		Workers:                  cfg.Stream.Workers,
		ExecutorQueueDepth:       cfg.Stream.ExecutorQueueDepth,
		SequencerBufferLimit:     cfg.Stream.SequencerBufferLimit,
	}, log)
	defer stream.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	consumer := newLoggingConsumer(log)
	go func() {
		if _, err := stream.Resume(ctx, consumer); err != nil && ctx.Err() == nil {
			log.Error("resume exited", logging.Error(err))
		}
	}()

	var verifier *auth.HMACTokenVerifier
	if cfg.AuthSecret != "" {
		verifier, err = auth.NewHMACTokenVerifier(cfg.AuthSecret, cfg.AuthTokenLeeway)
		if err != nil {
			return fmt.Errorf("init auth: %w", err)
		}
	}

	wsOpts := []wsfeed.Option{
		wsfeed.WithPingInterval(cfg.PingInterval),
		wsfeed.WithMaxPayloadBytes(cfg.MaxPayloadBytes),
	}
	if cfg.MaxClients > 0 {
		wsOpts = append(wsOpts, wsfeed.WithMaxClients(int64(cfg.MaxClients)))
	}
	if verifier != nil {
		wsOpts = append(wsOpts, wsfeed.WithAuthenticator(verifier))
	}
	wsSrv := wsfeed.NewServer(store, log, wsOpts...)

	httpSrv := &http.Server{Addr: cfg.WSAddr, Handler: wsSrv}

	rpcSrv := rpcfeed.NewServer(store, nil).WithScanAllLimiter(
		httpapi.NewSlidingWindowLimiter(cfg.ReplayRequestWindow, cfg.ReplayRequestBurst, time.Now),
	)

	grpcServer, err := newGRPCServer(cfg)
	if err != nil {
		return fmt.Errorf("init grpc server: %w", err)
	}
	rpcSrv.Register(grpcServer)

	rpcLis, err := net.Listen("tcp", cfg.RPCAddr)
	if err != nil {
		return fmt.Errorf("listen rpc: %w", err)
	}

	if cfg.ArchiveDir != "" && cfg.ArchiveInterval > 0 {
		go runArchiveLoop(ctx, store, cfg, log)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("wsfeed listening", logging.String("addr", cfg.WSAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("wsfeed: %w", err)
		}
	}()
	go func() {
		log.Info("rpcfeed listening", logging.String("addr", cfg.RPCAddr))
		if err := grpcServer.Serve(rpcLis); err != nil {
			errCh <- fmt.Errorf("rpcfeed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		cancel()
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
	return nil
}

func newGRPCServer(cfg *config.Config) (*grpc.Server, error) {
	if cfg.TLSCertPath == "" {
		return grpc.NewServer(), nil
	}
	creds, err := credentials.NewServerTLSFromFile(cfg.TLSCertPath, cfg.TLSKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load TLS keypair: %w", err)
	}
	return grpc.NewServer(grpc.Creds(creds)), nil
}

// runArchiveLoop periodically folds the journal's current contents into a
// zstd-compressed cold snapshot, the same split the teacher keeps between a
// hot append log and a cold archived bundle.
func runArchiveLoop(ctx context.Context, store *memory.Store, cfg *config.Config, log *logging.Logger) {
	ticker := time.NewTicker(cfg.ArchiveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var txns []eventsource.Transaction
			if err := store.Replay(ctx, nil, func(t eventsource.Transaction) error {
				txns = append(txns, t)
				return nil
			}); err != nil {
				log.Warn("archive snapshot scan failed", logging.Error(err))
				continue
			}
			name := fmt.Sprintf("snapshot-%d", time.Now().UnixMilli())
			path, err := memory.Archive(cfg.ArchiveDir, name, txns)
			if err != nil {
				log.Warn("archive snapshot failed", logging.Error(err))
				continue
			}
			log.Info("wrote archive snapshot", logging.String("path", path), logging.Int("transactions", len(txns)))
		}
	}
}
