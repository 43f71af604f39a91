// Package devicekit talks JSON-RPC to the DeviceKit agent running on an
// Android device.
package devicekit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mobile-next/adbctl/utils"
)

// DialFunc opens a byte stream to the agent's port, for example through an
// adb `tcp:` service.
type DialFunc func() (net.Conn, error)

type Client struct {
	httpURL    string
	wsURL      string
	httpClient *http.Client
	dialer     *websocket.Dialer
	requestID  atomic.Int64

	mu       sync.Mutex
	conn     *websocket.Conn
	pending  map[int64]chan message
	closeErr error
}

// NewClient connects to an agent reachable at hostname:port.
func NewClient(hostname string, port int) *Client {
	c := newClient(hostname, port)
	c.httpClient = &http.Client{Timeout: 60 * time.Second}
	c.dialer = &websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	return c
}

// NewTunnelClient reaches the agent through dial, ignoring the host names
// used in its URLs.
func NewTunnelClient(port int, dial DialFunc) *Client {
	c := newClient("device", port)
	netDial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dial()
	}
	c.httpClient = &http.Client{
		Timeout:   60 * time.Second,
		Transport: &http.Transport{DialContext: netDial, DisableKeepAlives: true},
	}
	c.dialer = &websocket.Dialer{NetDialContext: netDial, HandshakeTimeout: 5 * time.Second}
	return c
}

func newClient(hostname string, port int) *Client {
	return &Client{
		httpURL: fmt.Sprintf("http://%s:%d", hostname, port),
		wsURL:   fmt.Sprintf("ws://%s:%d", hostname, port),
		pending: make(map[int64]chan message),
	}
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	url := fmt.Sprintf("%s/rpc", c.wsURL)
	conn, _, err := c.dialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to DeviceKit WebSocket: %w", err)
	}

	c.conn = conn
	c.closeErr = nil
	go c.readLoop(conn)

	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var resp message
		err := conn.ReadJSON(&resp)
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.closeErr = err
				c.conn = nil
				for _, ch := range c.pending {
					close(ch)
				}
				c.pending = make(map[int64]chan message)
			}
			c.mu.Unlock()
			return
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()

		if ok {
			ch <- resp
		}
	}
}

// Close drops the websocket. The next call reconnects.
func (c *Client) Close() error {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[int64]chan message)
	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	return err
}

func (c *Client) HealthCheck() error {
	url := fmt.Sprintf("%s/health", c.httpURL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// WaitForReady polls the health endpoint until it answers or timeout passes.
func (c *Client) WaitForReady(timeout time.Duration) error {
	if err := c.HealthCheck(); err == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for DeviceKit to be ready")
		case <-ticker.C:
			err := c.HealthCheck()
			if err != nil {
				utils.Verbose("DeviceKit not ready yet: %v", err)
				continue
			}
			utils.Verbose("DeviceKit is ready!")
			return nil
		}
	}
}
