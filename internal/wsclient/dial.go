// Package wsclient provides small websocket helpers used by this module's
// own tests to exercise wsfeed.Server as a real subscriber would, rather
// than reaching into its internals.
package wsclient

import (
	"encoding/json"
	"net/http"

	"github.com/cschjolb/scuff/internal/eventsource"
	"github.com/gorilla/websocket"
)

// DialIgnoringPongs establishes a WebSocket connection and disables the
// automatic pong responses, simulating the unresponsive subscriber
// wsfeed.Server's ping/read-deadline keepalive is meant to evict.
func DialIgnoringPongs(urlStr string, header http.Header) (*websocket.Conn, *http.Response, error) {
	conn, resp, err := websocket.DefaultDialer.Dial(urlStr, header)
	if err != nil {
		return nil, resp, err
	}
	conn.SetPingHandler(func(string) error { return nil })
	conn.SetPongHandler(func(string) error { return nil })
	return conn, resp, nil
}

// ReadTransaction reads one text frame from conn and decodes it as the
// JSON-encoded eventsource.Transaction wsfeed.Server streams to
// subscribers.
func ReadTransaction(conn *websocket.Conn) (eventsource.Transaction, error) {
	var t eventsource.Transaction
	_, payload, err := conn.ReadMessage()
	if err != nil {
		return t, err
	}
	err = json.Unmarshal(payload, &t)
	return t, err
}
