package adb

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/mobile-next/adbctl/adb/wire"
	"github.com/stretchr/testify/require"
)

// fakeServer speaks the host side of the adb protocol on a loopback port.
// handle returns true to keep reading requests on the same connection.
type fakeServer struct {
	listener net.Listener
	handle   func(conn net.Conn, req string) bool

	mu       sync.Mutex
	requests []string
}

func newFakeServer(t *testing.T, handle func(conn net.Conn, req string) bool) *fakeServer {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &fakeServer{listener: l, handle: handle}
	go f.acceptLoop()
	t.Cleanup(func() { _ = l.Close() })
	resetLiveness()
	return f
}

func (f *fakeServer) acceptLoop() {
	for {
		conn, err := f.listener.Accept()
		if err != nil {
			return
		}
		go f.serve(conn)
	}
}

func (f *fakeServer) serve(conn net.Conn) {
	defer conn.Close()
	for {
		msg, err := wire.ReadMessage(conn)
		if err != nil {
			return
		}
		req := string(msg)
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()

		if !f.handle(conn, req) {
			return
		}
	}
}

func (f *fakeServer) port() int {
	return f.listener.Addr().(*net.TCPAddr).Port
}

func (f *fakeServer) server() *Server {
	return NewServer(ServerConfig{Host: "127.0.0.1", Port: f.port()})
}

// requestsExcept returns recorded requests other than the liveness check.
func (f *fakeServer) requestsExcept(skip string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, r := range f.requests {
		if r != skip {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeServer) count(req string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r == req {
			n++
		}
	}
	return n
}

func okay(conn net.Conn) {
	_, _ = conn.Write([]byte("OKAY"))
}

func okayMessage(conn net.Conn, body string) {
	_, _ = fmt.Fprintf(conn, "OKAY%04X%s", len(body), body)
}

func fail(conn net.Conn, reason string) {
	_, _ = fmt.Fprintf(conn, "FAIL%04X%s", len(reason), reason)
}

// baseHandler answers host:version and returns false for anything else
// it does not know, after replying FAIL.
func baseHandler(conn net.Conn, req string) bool {
	switch req {
	case "host:version":
		okayMessage(conn, "0029")
		return false
	default:
		fail(conn, "unknown request "+req)
		return false
	}
}

// fakeDialer fails until started is set, then dials target.
type fakeDialer struct {
	mu      sync.Mutex
	started bool
	target  string
	dials   int
}

func (d *fakeDialer) Dial(address string, timeout time.Duration) (*wire.Conn, error) {
	d.mu.Lock()
	d.dials++
	started := d.started
	d.mu.Unlock()
	if !started {
		return nil, fmt.Errorf("dial tcp %s: connection refused", address)
	}
	return wire.Dial(d.target, timeout)
}

func (d *fakeDialer) start() {
	d.mu.Lock()
	d.started = true
	d.mu.Unlock()
}

func hostPort(port int) string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}
