package rpcfeed

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/cschjolb/scuff/internal/eventsource"
	"github.com/cschjolb/scuff/internal/eventsource/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

func dialTestServer(t *testing.T, source eventsource.Source) (*Client, func()) {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)

	gs := grpc.NewServer()
	NewServer(source, nil).Register(gs)
	go func() { _ = gs.Serve(lis) }()

	cc, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	client := NewClient(cc, nil)
	cleanup := func() {
		cc.Close()
		gs.Stop()
	}
	return client, cleanup
}

func mkTxn(id eventsource.ID, cat eventsource.CAT, revision int32, at time.Time) eventsource.Transaction {
	return eventsource.Transaction{
		Timestamp: at,
		Category:  cat,
		StreamID:  id,
		Revision:  revision,
		Events:    []eventsource.Event{{Type: "created", Payload: []byte(`{"ok":true}`)}},
	}
}

func TestClientReplayRoundTrip(t *testing.T) {
	store := memory.New(nil)
	base := time.Now()
	want := []eventsource.Transaction{
		mkTxn("s1", "orders", 0, base),
		mkTxn("s1", "orders", 1, base.Add(time.Millisecond)),
	}
	for _, tx := range want {
		if err := store.Append(tx); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	client, cleanup := dialTestServer(t, store)
	defer cleanup()

	var got []eventsource.Transaction
	err := client.Replay(context.Background(), nil, func(t eventsource.Transaction) error {
		got = append(got, t)
		return nil
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(got) != 2 || got[0].Revision != 0 || got[1].Revision != 1 {
		t.Fatalf("unexpected replay result: %+v", got)
	}
	if string(got[0].Events[0].Payload) != `{"ok":true}` {
		t.Fatalf("expected event payload round-tripped, got %q", got[0].Events[0].Payload)
	}
}

func TestClientReplayStreamRange(t *testing.T) {
	store := memory.New(nil)
	base := time.Now()
	for i := int32(0); i < 4; i++ {
		if err := store.Append(mkTxn("s1", "orders", i, base)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	client, cleanup := dialTestServer(t, store)
	defer cleanup()

	var got []int32
	err := client.ReplayStreamRange(context.Background(), "s1", 1, 3, func(t eventsource.Transaction) error {
		got = append(got, t.Revision)
		return nil
	})
	if err != nil {
		t.Fatalf("replay range: %v", err)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("expected revisions [1 2], got %v", got)
	}
}

func TestClientSubscribeDeliversLiveTransactions(t *testing.T) {
	store := memory.New(nil)
	client, cleanup := dialTestServer(t, store)
	defer cleanup()

	received := make(chan eventsource.Transaction, 4)
	sub, err := client.Subscribe(context.Background(), func(c eventsource.CAT) bool { return c == "orders" }, func(t eventsource.Transaction) {
		received <- t
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Cancel()

	// Give the server-side Subscribe handler time to register before
	// publishing, since subscription activation is asynchronous over gRPC.
	time.Sleep(50 * time.Millisecond)

	if err := store.Append(mkTxn("s1", "orders", 0, time.Now())); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(mkTxn("s1", "shipping", 1, time.Now())); err != nil {
		t.Fatalf("append: %v", err)
	}

	select {
	case tx := <-received:
		if tx.Category != "orders" {
			t.Fatalf("expected only the orders category delivered, got %v", tx.Category)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a live transaction")
	}

	select {
	case tx := <-received:
		t.Fatalf("expected the shipping category filtered out client-side, got %v", tx)
	case <-time.After(100 * time.Millisecond):
	}
}
