// Package wsfeed streams live transactions to websocket clients, grounded
// on the teacher's Broker read/write pump (main.go): a buffered per-client
// send channel, a write pump driving ping keepalive and write deadlines,
// and a read pump whose only job is to detect disconnects and extend the
// read deadline on pong. Unlike the teacher's bidirectional hub, a wsfeed
// connection is read-only from the client's perspective: it streams
// whatever its eventsource.Source subscription produces, JSON-encoded one
// transaction per text frame.
package wsfeed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cschjolb/scuff/internal/auth"
	"github.com/cschjolb/scuff/internal/eventsource"
	httpapi "github.com/cschjolb/scuff/internal/http"
	"github.com/cschjolb/scuff/internal/logging"
	"github.com/gorilla/websocket"
)

const (
	defaultPingInterval    = 15 * time.Second
	defaultWriteWait       = 10 * time.Second
	defaultSendBuffer      = 64
	defaultMaxPayloadBytes = 1 << 20
)

// Server upgrades incoming HTTP requests to websocket connections and
// streams every live transaction from source whose category passes the
// connection's requested filter.
type Server struct {
	source          eventsource.Source
	upgrader        websocket.Upgrader
	verifier        *auth.HMACTokenVerifier
	limiter         *httpapi.SlidingWindowLimiter
	pingInterval    time.Duration
	writeWait       time.Duration
	sendBuffer      int
	maxPayloadBytes int64
	maxClients      int64
	clients         int64
	log             *logging.Logger
}

// Option customises a Server.
type Option func(*Server)

// WithAuthenticator requires every connection to present a valid HMAC
// token, the same auth_token query parameter / X-Auth-Token header
// convention the teacher's hmacWebsocketAuthenticator used. A nil verifier
// (the default) accepts every connection.
func WithAuthenticator(verifier *auth.HMACTokenVerifier) Option {
	return func(s *Server) { s.verifier = verifier }
}

// WithPingInterval overrides the keepalive ping cadence.
func WithPingInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

// WithSendBuffer overrides the per-connection outbound buffer depth. A
// connection whose buffer fills drops the transaction rather than
// blocking the live dispatch chain; the client's own sequencer will
// observe the resulting gap and recover via scheduled range replay.
func WithSendBuffer(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.sendBuffer = n
		}
	}
}

// WithMaxPayloadBytes bounds the size of frames the server will read from a
// client, closing the connection if exceeded. A non-positive value disables
// the limit.
func WithMaxPayloadBytes(n int64) Option {
	return func(s *Server) { s.maxPayloadBytes = n }
}

// WithMaxClients bounds the number of concurrent connections the server
// accepts, rejecting further upgrade attempts with 503 once reached. A
// non-positive value leaves the server unbounded.
func WithMaxClients(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxClients = n
		}
	}
}

// WithRateLimiter throttles upgrade attempts, guarding against a client
// hammering the endpoint with reconnects.
func WithRateLimiter(limiter *httpapi.SlidingWindowLimiter) Option {
	return func(s *Server) { s.limiter = limiter }
}

// NewServer builds a Server fronting source.
func NewServer(source eventsource.Source, log *logging.Logger, opts ...Option) *Server {
	if log == nil {
		log = logging.NewTestLogger()
	}
	s := &Server{
		source:          source,
		upgrader:        websocket.Upgrader{},
		pingInterval:    defaultPingInterval,
		writeWait:       defaultWriteWait,
		sendBuffer:      defaultSendBuffer,
		maxPayloadBytes: defaultMaxPayloadBytes,
		log:             log.With(logging.String("component", "wsfeed")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP upgrades the request and streams live transactions matching
// the comma-separated "categories" query parameter (empty means every
// category) until the connection closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	categoriesRaw := r.URL.Query().Get("categories")
	if s.limiter != nil && !s.limiter.AllowKey(categoriesRaw) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}
	if s.maxClients > 0 && atomic.LoadInt64(&s.clients) >= s.maxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	claims, err := s.authenticate(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	var clientID string
	if claims != nil {
		clientID = claims.Subject
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	if s.maxPayloadBytes > 0 {
		conn.SetReadLimit(s.maxPayloadBytes)
	}

	atomic.AddInt64(&s.clients, 1)
	defer atomic.AddInt64(&s.clients, -1)

	log := s.log.With(logging.String("client_id", clientID))
	filter := categoryFilter(categoriesRaw)
	if claims != nil && len(claims.Categories) > 0 {
		requested := filter
		filter = func(c eventsource.CAT) bool {
			if !claims.Allows(c) {
				return false
			}
			return requested == nil || requested(c)
		}
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	send := make(chan []byte, s.sendBuffer)

	sub, err := s.source.Subscribe(ctx, filter, func(t eventsource.Transaction) {
		payload, err := json.Marshal(t)
		if err != nil {
			log.Warn("failed to marshal transaction", logging.Error(err))
			return
		}
		select {
		case send <- payload:
		default:
			log.Warn("dropping transaction: client send buffer full", logging.StreamID(t.StreamID))
		}
	})
	if err != nil {
		log.Error("subscribe failed", logging.Error(err))
		_ = conn.Close()
		return
	}
	defer sub.Cancel()

	go s.readPump(conn, cancel, log)
	s.writePump(ctx, conn, send, log)
	_ = conn.Close()
}

func (s *Server) readPump(conn *websocket.Conn, cancel context.CancelFunc, log *logging.Logger) {
	defer cancel()
	waitDuration := 2 * s.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(waitDuration))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(waitDuration))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, send <-chan []byte, log *logging.Logger) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Warn("write error", logging.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(s.writeWait)); err != nil {
				log.Warn("ping failure", logging.Error(err))
				return
			}
		}
	}
}

// authenticate returns the caller's claims, or nil if no verifier is
// configured. The claims' Categories, if any, are intersected with the
// connection's requested category filter in ServeHTTP so a token scoped to
// a subset of categories cannot be used to widen the subscription.
func (s *Server) authenticate(r *http.Request) (*auth.TokenClaims, error) {
	if s.verifier == nil {
		return nil, nil
	}
	token := strings.TrimSpace(r.URL.Query().Get("auth_token"))
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Auth-Token"))
	}
	if token == "" {
		return nil, errors.New("missing auth token")
	}
	return s.verifier.Verify(token)
}

// categoryFilter builds a Subscribe filter from the comma-separated
// "categories" query parameter. An empty parameter passes every category.
func categoryFilter(raw string) func(eventsource.CAT) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	allow := make(map[eventsource.CAT]bool)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			allow[eventsource.CAT(part)] = true
		}
	}
	return func(c eventsource.CAT) bool { return allow[c] }
}
