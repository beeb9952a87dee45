package eventstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"cgmanager/internal/api"
)

// ErrAPIUnavailable reports that the daemon's HTTP API is disabled or unreachable.
var ErrAPIUnavailable = errors.New("event API unavailable")

const handshakeTimeout = 5 * time.Second

// Client dials the event feed of one daemon.
type Client struct {
	url    string
	dialer *websocket.Dialer
}

// Filter narrows the events passed to the callback. Zero values match all.
type Filter struct {
	Channel int
	Kinds   []string
}

func (f Filter) match(ev api.Event) bool {
	if f.Channel > 0 && ev.Channel != f.Channel {
		return false
	}
	if len(f.Kinds) == 0 {
		return true
	}
	for _, kind := range f.Kinds {
		if strings.EqualFold(strings.TrimSpace(kind), ev.Kind) {
			return true
		}
	}
	return false
}

// NewClient builds a client for the API bind address. An empty bind means
// the API is disabled and yields ErrAPIUnavailable.
func NewClient(bind string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, ErrAPIUnavailable
	}
	if !strings.Contains(bind, "://") {
		bind = "ws://" + bind
	}
	u, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api bind: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	// A wildcard listen address is reached over loopback.
	if host, port, err := net.SplitHostPort(u.Host); err == nil {
		if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
			u.Host = net.JoinHostPort("127.0.0.1", port)
		}
	}
	u.Path = "/api/events"
	u.RawQuery = ""
	u.Fragment = ""

	return &Client{
		url:    u.String(),
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
	}, nil
}

// URL returns the WebSocket endpoint the client dials.
func (c *Client) URL() string { return c.url }

// Stream delivers events until ctx is done, onEvent returns false, or the
// daemon closes the connection.
func (c *Client) Stream(ctx context.Context, filter Filter, onEvent func(api.Event) bool) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAPIUnavailable, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil ||
				websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		var ev api.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if !filter.match(ev) {
			continue
		}
		if !onEvent(ev) {
			return nil
		}
	}
}

// IsAPIUnavailable reports whether err means the feed could not be reached.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
