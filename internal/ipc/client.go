package ipc

import (
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// DefaultCallTimeout bounds calls made without an explicit timeout.
const DefaultCallTimeout = 30 * time.Second

// Client provides RPC access to the daemon.
type Client struct {
	conn    net.Conn
	client  *rpc.Client
	timeout time.Duration
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient, timeout: DefaultCallTimeout}, nil
}

// SetTimeout changes the per-call timeout; zero restores the default.
func (c *Client) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultCallTimeout
	}
	c.timeout = d
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	call := c.client.Go(ServiceName+"."+method, req, resp, make(chan *rpc.Call, 1))
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case done := <-call.Done:
		return done.Error
	case <-timer.C:
		return fmt.Errorf("%s: no reply from daemon within %s", method, c.timeout)
	}
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Channels retrieves channel layouts.
func (c *Client) Channels() (*ChannelsResponse, error) {
	var resp ChannelsResponse
	if err := c.call("Channels", ChannelsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Media lists the media catalogue.
func (c *Client) Media(req MediaRequest) (*MediaResponse, error) {
	var resp MediaResponse
	if err := c.call("Media", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RefreshMedia rescans the engine's media listing.
func (c *Client) RefreshMedia() (*RefreshMediaResponse, error) {
	var resp RefreshMediaResponse
	if err := c.call("RefreshMedia", RefreshMediaRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Routes lists stored routes.
func (c *Client) Routes() (*RoutesResponse, error) {
	var resp RoutesResponse
	if err := c.call("Routes", RoutesRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RouteToggle enables or disables a route.
func (c *Client) RouteToggle(id string, enabled bool) (*RouteToggleResponse, error) {
	var resp RouteToggleResponse
	if err := c.call("RouteToggle", RouteToggleRequest{ID: id, Enabled: enabled}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Send transmits a raw AMCP command.
func (c *Client) Send(command string) (*SendResponse, error) {
	var resp SendResponse
	if err := c.call("Send", SendRequest{Command: command}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
