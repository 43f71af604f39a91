package rendezvous

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHost(t *testing.T) *Host {
	t.Helper()
	h, err := New("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func dialBack(t *testing.T, h *Host, payload string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(h.Port())))
	require.NoError(t, err)
	_, err = conn.Write([]byte(payload))
	require.NoError(t, err)
	return conn
}

// expectClosed asserts the host closes conn without sending anything.
func expectClosed(t *testing.T, conn net.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	buf := make([]byte, 1)
	_, err := conn.Read(buf)
	assert.Error(t, err)
	assert.NotContains(t, fmt.Sprint(err), "timeout")
}

func TestCookieShape(t *testing.T) {
	h := newTestHost(t)
	f, err := h.Register()
	require.NoError(t, err)
	defer f.Cancel()

	assert.Len(t, f.Cookie(), CookieLen)
	g, err := h.Register()
	require.NoError(t, err)
	defer g.Cancel()
	assert.NotEqual(t, f.Cookie(), g.Cookie())
	assert.Equal(t, 2, h.Pending())
}

func TestConcurrentRegistrationsResolveToOwnConnection(t *testing.T) {
	h := newTestHost(t)

	const n = 8
	futures := make([]*Future, n)
	for i := range futures {
		f, err := h.Register()
		require.NoError(t, err)
		futures[i] = f
	}

	// peers dial back in reverse order
	for i := n - 1; i >= 0; i-- {
		go func(i int) {
			conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(h.Port())))
			if err != nil {
				return
			}
			defer conn.Close()
			_, _ = fmt.Fprintf(conn, "%spayload-%d", futures[i].Cookie(), i)
		}(i)
	}

	var wg sync.WaitGroup
	results := make([]string, n)
	for i, f := range futures {
		wg.Add(1)
		go func(i int, f *Future) {
			defer wg.Done()
			err := f.Use(5*time.Second, func(conn net.Conn) error {
				data, err := io.ReadAll(conn)
				results[i] = string(data)
				return err
			})
			assert.NoError(t, err)
		}(i, f)
	}
	wg.Wait()

	for i, got := range results {
		assert.Equal(t, fmt.Sprintf("payload-%d", i), got)
	}
	assert.Equal(t, 0, h.Pending())
}

func TestUnknownCookieIsClosed(t *testing.T) {
	h := newTestHost(t)
	f, err := h.Register()
	require.NoError(t, err)
	defer f.Cancel()

	conn := dialBack(t, h, strings.Repeat("0", CookieLen)+"OKAY")
	defer conn.Close()
	expectClosed(t, conn)
	assert.Equal(t, 1, h.Pending())
}

func TestTimeoutThenStaleCookieIsClosed(t *testing.T) {
	h := newTestHost(t)
	f, err := h.Register()
	require.NoError(t, err)

	conn, err := f.Result(50 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Nil(t, conn)
	assert.Equal(t, 0, h.Pending())

	late := dialBack(t, h, f.Cookie())
	defer late.Close()
	expectClosed(t, late)
}

func TestUseClosesConnection(t *testing.T) {
	h := newTestHost(t)
	f, err := h.Register()
	require.NoError(t, err)

	peer := dialBack(t, h, f.Cookie()+"OKAY")
	defer peer.Close()

	err = f.Use(3*time.Second, func(conn net.Conn) error {
		buf := make([]byte, 4)
		_, err := io.ReadFull(conn, buf)
		assert.Equal(t, "OKAY", string(buf))
		return err
	})
	require.NoError(t, err)
	expectClosed(t, peer)
}

func TestShortCookieDoesNotResolve(t *testing.T) {
	h := newTestHost(t)
	f, err := h.Register()
	require.NoError(t, err)

	peer := dialBack(t, h, f.Cookie()[:5])
	require.NoError(t, peer.Close())

	_, err = f.Result(200 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestCancelRemovesRegistration(t *testing.T) {
	h := newTestHost(t)
	f, err := h.Register()
	require.NoError(t, err)

	f.Cancel()
	assert.Equal(t, 0, h.Pending())

	late := dialBack(t, h, f.Cookie())
	defer late.Close()
	expectClosed(t, late)
}

func TestRegisterAfterClose(t *testing.T) {
	h, err := New("127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, h.Close())

	_, err = h.Register()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseDefault(t *testing.T) {
	h, err := Default()
	require.NoError(t, err)
	assert.NotZero(t, h.Port())

	require.NoError(t, CloseDefault())
	_, err = h.Register()
	assert.ErrorIs(t, err, ErrClosed)
}
