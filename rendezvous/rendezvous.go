// Package rendezvous accepts connections that device-side processes open
// back to this host, and pairs each one with the caller waiting for it by a
// one-time cookie the peer sends first.
package rendezvous

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mobile-next/adbctl/utils"
)

// CookieLen is the size of the hex cookie a peer writes before any payload.
const CookieLen = 32

const (
	// handshakeTimeout bounds how long a peer may take to send its cookie.
	handshakeTimeout = 5 * time.Second

	// registrationTTL drops registrations nobody waits for.
	registrationTTL = 60 * time.Second
)

var (
	ErrTimeout = errors.New("rendezvous: timed out waiting for connection")
	ErrClosed  = errors.New("rendezvous: host closed")
)

// Host owns one listening socket and the set of pending registrations.
type Host struct {
	listener net.Listener
	port     int

	mu      sync.Mutex
	pending map[string]*Future
	closed  bool
}

var (
	defaultOnce sync.Once
	defaultHost *Host
	defaultErr  error
)

// Default returns the process-wide host, creating it on first use.
func Default() (*Host, error) {
	defaultOnce.Do(func() {
		defaultHost, defaultErr = New("0.0.0.0:0")
	})
	return defaultHost, defaultErr
}

// CloseDefault closes the process-wide host if it was started. Later calls
// to Default fail with ErrClosed.
func CloseDefault() error {
	started := true
	defaultOnce.Do(func() {
		started = false
		defaultErr = ErrClosed
	})
	if !started || defaultHost == nil {
		return nil
	}
	return defaultHost.Close()
}

// New listens on addr and starts accepting connections.
func New(addr string) (*Host, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rendezvous listen on %s: %w", addr, err)
	}

	h := &Host{
		listener: l,
		port:     l.Addr().(*net.TCPAddr).Port,
		pending:  make(map[string]*Future),
	}
	utils.Verbose("rendezvous host listening on port %d", h.port)
	go h.acceptLoop()
	return h, nil
}

// Port is the port peers dial back to.
func (h *Host) Port() int {
	return h.port
}

func (h *Host) acceptLoop() {
	for {
		conn, err := h.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			utils.Verbose("rendezvous accept: %v", err)
			continue
		}
		go h.handshake(conn)
	}
}

// handshake reads the cookie and delivers conn to its Future, or closes it.
func (h *Host) handshake(conn net.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	cookie := make([]byte, CookieLen)
	if _, err := io.ReadFull(conn, cookie); err != nil {
		utils.Verbose("rendezvous: no cookie from %s: %v", conn.RemoteAddr(), err)
		_ = conn.Close()
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	f := h.claim(string(cookie))
	if f == nil {
		utils.Verbose("rendezvous: unknown cookie from %s", conn.RemoteAddr())
		_ = conn.Close()
		return
	}
	f.ch <- conn
}

// claim removes and returns the live Future for cookie.
func (h *Host) claim(cookie string) *Future {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, ok := h.pending[cookie]
	if !ok {
		return nil
	}
	delete(h.pending, cookie)
	if time.Now().After(f.expires) {
		return nil
	}
	f.claimed = true
	return f
}

// remove deletes f if it is still pending. It reports whether the accept
// loop already claimed f, in which case a connection is on its way.
func (h *Host) remove(f *Future) (claimed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.pending[f.cookie]; ok && cur == f {
		delete(h.pending, f.cookie)
	}
	return f.claimed
}

func (h *Host) sweepLocked(now time.Time) {
	for cookie, f := range h.pending {
		if now.After(f.expires) {
			delete(h.pending, cookie)
		}
	}
}

func newCookie() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(id[:]), nil
}

// Register creates a Future for a fresh cookie. The Future is pending before
// Register returns, so the cookie can be handed to a device command at once.
func (h *Host) Register() (*Future, error) {
	cookie, err := newCookie()
	if err != nil {
		return nil, fmt.Errorf("generating rendezvous cookie: %w", err)
	}

	now := time.Now()
	f := &Future{
		host:    h,
		cookie:  cookie,
		ch:      make(chan net.Conn, 1),
		expires: now.Add(registrationTTL),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	h.sweepLocked(now)
	h.pending[cookie] = f
	return f, nil
}

// Pending reports how many registrations are waiting.
func (h *Host) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// Close stops accepting connections and drops pending registrations.
func (h *Host) Close() error {
	h.mu.Lock()
	h.closed = true
	h.pending = make(map[string]*Future)
	h.mu.Unlock()
	return h.listener.Close()
}

// Future is one registration waiting for its peer.
type Future struct {
	host    *Host
	cookie  string
	ch      chan net.Conn
	expires time.Time

	// guarded by host.mu
	claimed bool
}

// Cookie is the value the peer must send first.
func (f *Future) Cookie() string {
	return f.cookie
}

// Result waits up to timeout for the peer and returns its connection. The
// caller owns the connection. After a timeout the registration is gone and a
// later connection with the same cookie is closed by the accept loop.
func (f *Future) Result(timeout time.Duration) (net.Conn, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case conn := <-f.ch:
		return conn, nil
	case <-timer.C:
	}

	if !f.host.remove(f) {
		return nil, ErrTimeout
	}
	// claimed between the timer firing and remove; the send is imminent
	return <-f.ch, nil
}

// Use waits for the connection like Result, runs fn with it and closes it
// when fn returns.
func (f *Future) Use(timeout time.Duration, fn func(conn net.Conn) error) error {
	conn, err := f.Result(timeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}

// Cancel drops a registration that will not be awaited. A connection that
// already arrived is closed. Call it instead of Result, not after it.
func (f *Future) Cancel() {
	if !f.host.remove(f) {
		return
	}
	conn := <-f.ch
	_ = conn.Close()
}
