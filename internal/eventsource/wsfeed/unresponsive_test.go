package wsfeed

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cschjolb/scuff/internal/eventsource/memory"
	"github.com/cschjolb/scuff/internal/wsclient"
)

// TestServerClosesUnresponsivePeer drives a client that ignores ping
// control frames (wsclient.DialIgnoringPongs) and asserts the server tears
// the connection down once its read deadline, extended only by pongs,
// lapses.
func TestServerClosesUnresponsivePeer(t *testing.T) {
	store := memory.New(nil)
	srv := NewServer(store, nil, WithPingInterval(20*time.Millisecond))
	ts := httptest.NewServer(srv)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := wsclient.DialIgnoringPongs(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected the server to close an unresponsive connection")
	}
}
