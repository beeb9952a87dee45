package amcp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"cgmanager/internal/logging"
)

// DefaultPort is the engine's AMCP listening port.
const DefaultPort = 5250

// Client is a single AMCP connection. Responses carry no request identifier,
// so they are matched to requests strictly in submission order.
type Client struct {
	conn   net.Conn
	logger *slog.Logger

	mu      sync.Mutex
	pending []chan Response
	closed  bool
	err     error
	done    chan struct{}
}

// Dial connects to the engine at addr.
func Dial(ctx context.Context, addr string, logger *slog.Logger) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("amcp dial %s: %w", addr, err)
	}
	return NewClient(conn, logger), nil
}

// NewClient wraps an established connection and starts reading from it.
func NewClient(conn net.Conn, logger *slog.Logger) *Client {
	c := &Client{
		conn:   conn,
		logger: logging.NewComponentLogger(logger, "amcp"),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Done is closed when the connection terminates.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection terminated, if it has.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close terminates the connection. Waiting requests fail with ErrClosed.
func (c *Client) Close() error {
	err := c.conn.Close()
	c.shutdown(ErrClosed)
	return err
}

// Send writes lines as one transmission and waits for one response per line.
// Cancelling ctx stops the wait but not the command: it stays queued so later
// responses still line up with their requests.
func (c *Client) Send(ctx context.Context, lines []string) ([]Response, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	for _, line := range lines {
		if strings.ContainsAny(line, "\r\n") {
			return nil, fmt.Errorf("amcp: line contains a line break: %q", line)
		}
	}

	waiters := make([]chan Response, len(lines))
	for i := range waiters {
		waiters[i] = make(chan Response, 1)
	}
	payload := strings.Join(lines, LineSeparator) + LineSeparator

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.pending = append(c.pending, waiters...)
	_, err := c.conn.Write([]byte(payload))
	c.mu.Unlock()
	if err != nil {
		_ = c.conn.Close()
		c.shutdown(fmt.Errorf("amcp write: %w", err))
		return nil, fmt.Errorf("amcp write: %w", err)
	}
	c.logger.Debug("amcp sent", logging.Int("lines", len(lines)), logging.String("first", lines[0]))

	responses := make([]Response, 0, len(lines))
	for _, ch := range waiters {
		select {
		case resp, ok := <-ch:
			if !ok {
				return responses, c.closedErr()
			}
			responses = append(responses, resp)
		case <-ctx.Done():
			return responses, ctx.Err()
		}
	}
	return responses, nil
}

func (c *Client) closedErr() error {
	if err := c.Err(); err != nil {
		return err
	}
	return ErrClosed
}

func (c *Client) readLoop() {
	var parser Parser
	tmp := make([]byte, 4096)
	for {
		n, err := c.conn.Read(tmp)
		if n > 0 {
			for _, resp := range parser.Feed(tmp[:n]) {
				c.deliver(resp)
			}
		}
		if err != nil {
			c.shutdown(fmt.Errorf("amcp read: %w", err))
			return
		}
	}
}

func (c *Client) deliver(resp Response) {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		c.logger.Debug("unsolicited amcp response",
			logging.Int("code", resp.Code),
			logging.String("command", resp.Command))
		return
	}
	ch := c.pending[0]
	c.pending = c.pending[1:]
	c.mu.Unlock()
	ch <- resp
}

func (c *Client) shutdown(reason error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.err = reason
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	close(c.done)
}

// ConnectionOptions configures a Connection.
type ConnectionOptions struct {
	Address           string
	DialTimeout       time.Duration
	RequestTimeout    time.Duration
	ReconnectInterval time.Duration
	Logger            *slog.Logger
}

// Connection keeps a Client dialed, reconnecting with backoff after drops.
// Commands submitted while disconnected fail with ErrNotConnected.
type Connection struct {
	opts   ConnectionOptions
	logger *slog.Logger

	mu        sync.RWMutex
	client    *Client
	listeners []func(connected bool)
}

// NewConnection prepares a supervisor; call Run to start dialing.
func NewConnection(opts ConnectionOptions) *Connection {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = 5 * time.Second
	}
	return &Connection{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "amcp-connection"),
	}
}

// Address returns the engine address.
func (c *Connection) Address() string {
	return c.opts.Address
}

// OnStateChange registers fn to be called after every connect and
// disconnect. Callbacks run on the supervisor goroutine.
func (c *Connection) OnStateChange(fn func(connected bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Connected reports whether a client is currently established.
func (c *Connection) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil
}

// Send forwards lines to the current client, applying the request timeout.
func (c *Connection) Send(ctx context.Context, lines []string) ([]Response, error) {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil {
		return nil, ErrNotConnected
	}
	if c.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()
	}
	return client.Send(ctx, lines)
}

// Run dials and redials until ctx is cancelled.
func (c *Connection) Run(ctx context.Context) {
	backoff := c.opts.ReconnectInterval
	maxBackoff := 8 * c.opts.ReconnectInterval
	for {
		dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
		client, err := Dial(dialCtx, c.opts.Address, c.opts.Logger)
		cancel()
		if err == nil {
			backoff = c.opts.ReconnectInterval
			c.logger.Info("connected to playout engine", logging.String("address", c.opts.Address))
			c.setClient(client)
			select {
			case <-client.Done():
				c.setClient(nil)
				logging.WarnWithContext(c.logger, "playout engine connection lost", "amcp_disconnected",
					logging.String("address", c.opts.Address),
					logging.Error(client.Err()),
					logging.String(logging.FieldImpact, "commands fail until the connection is restored"),
					logging.String(logging.FieldErrorHint, "check that the engine is running and reachable"))
			case <-ctx.Done():
				c.setClient(nil)
				_ = client.Close()
				return
			}
		} else if ctx.Err() == nil {
			c.logger.Debug("amcp dial failed",
				logging.String("address", c.opts.Address),
				logging.Error(err),
				logging.Duration("retry_in", backoff))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if err != nil {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

func (c *Connection) setClient(client *Client) {
	c.mu.Lock()
	changed := (c.client == nil) != (client == nil)
	c.client = client
	listeners := append([]func(bool){}, c.listeners...)
	c.mu.Unlock()
	if !changed {
		return
	}
	for _, fn := range listeners {
		fn(client != nil)
	}
}
