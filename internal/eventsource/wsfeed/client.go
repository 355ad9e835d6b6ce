package wsfeed

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/cschjolb/scuff/internal/eventsource"
	"github.com/gorilla/websocket"
)

// Client is a single wsfeed connection delivering decoded transactions to
// a caller-supplied sink. It does not reconnect on its own: the caller
// owns reconnect/backoff policy, same as the teacher leaves retry looping
// to whatever drives its own websocket client.
type Client struct {
	conn *websocket.Conn
}

// Dial connects to a wsfeed Server at rawURL (scheme ws:// or wss://),
// optionally filtered to categories and authenticated with token.
func Dial(rawURL string, categories []eventsource.CAT, token string) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	if len(categories) > 0 {
		names := make([]string, len(categories))
		for i, c := range categories {
			names[i] = string(c)
		}
		q.Set("categories", strings.Join(names, ","))
	}
	if token != "" {
		q.Set("auth_token", token)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), http.Header{})
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Run reads frames until the connection closes or ctx-less Close is
// called, decoding each into a Transaction and invoking sink. Run blocks;
// callers typically run it in its own goroutine.
func (c *Client) Run(sink func(eventsource.Transaction)) error {
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		var t eventsource.Transaction
		if err := json.Unmarshal(payload, &t); err != nil {
			continue
		}
		sink(t)
	}
}

// Close terminates the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
