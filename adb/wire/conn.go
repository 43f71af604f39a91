package wire

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// LoopbackDialTimeout bounds connects to a server on this machine. A local
// server is either listening already or not at all.
const LoopbackDialTimeout = 500 * time.Millisecond

/*
Conn is one TCP connection to the adb server.

Requests are strictly sequential: send a request, read its status, then read
an optional payload. Detach hands the socket to the caller for raw streaming
and makes the Conn unusable.
*/
type Conn struct {
	mu        sync.Mutex
	nc        net.Conn
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an established connection.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc}
}

// Dial connects to the adb server at address. Loopback hosts always use
// LoopbackDialTimeout; other hosts use timeout, where zero means none.
func Dial(address string, timeout time.Duration) (*Conn, error) {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("invalid server address %q: %w", address, err)
	}
	if IsLoopback(host) {
		timeout = LoopbackDialTimeout
	}

	nc, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, fmt.Errorf("error dialing %s: %w", address, err)
	}
	return NewConn(nc), nil
}

// IsLoopback reports whether host names this machine.
func IsLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (c *Conn) socket() (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nc == nil {
		return nil, ErrDetached
	}
	return c.nc, nil
}

// Service sends cmd and reads its status. It returns c so calls can be
// chained into ReadResponse or Detach.
func (c *Conn) Service(cmd string) (*Conn, error) {
	nc, err := c.socket()
	if err != nil {
		return nil, err
	}
	if err := SendMessage(nc, []byte(cmd)); err != nil {
		return nil, fmt.Errorf("sending %q: %w", cmd, err)
	}
	if err := ReadStatus(nc, cmd); err != nil {
		return nil, err
	}
	return c, nil
}

// ReadResponse reads one hex-length-prefixed reply.
func (c *Conn) ReadResponse() ([]byte, error) {
	nc, err := c.socket()
	if err != nil {
		return nil, err
	}
	return ReadMessage(nc)
}

// SetDeadline sets the read and write deadline of the underlying socket.
func (c *Conn) SetDeadline(t time.Time) error {
	nc, err := c.socket()
	if err != nil {
		return err
	}
	return nc.SetDeadline(t)
}

// Detach transfers ownership of the socket to the caller.
func (c *Conn) Detach() (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nc == nil {
		return nil, ErrDetached
	}
	nc := c.nc
	c.nc = nil
	return nc, nil
}

// Close closes the socket unless it was detached. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		nc := c.nc
		c.nc = nil
		c.mu.Unlock()
		if nc != nil {
			c.closeErr = nc.Close()
		}
	})
	return c.closeErr
}
