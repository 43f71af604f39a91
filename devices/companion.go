package devices

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/mobile-next/adbctl/devices/devicekit"
	"github.com/mobile-next/adbctl/rendezvous"
)

// Companion is the RPC surface of an on-device agent.
// *devicekit.Client implements it.
type Companion interface {
	Tap(x, y int, hold time.Duration) error
	// Touch sends a raw "down", "up" or "move" for one pointer.
	Touch(action string, x, y, pointer int) error
	Key(action string, keycode, metastate int) error
	Text(text string) error
	// Screenshot returns a PNG and the time the device captured it.
	Screenshot() ([]byte, time.Time, error)
	// ScreenshotConnect has the agent dial address:port and send cookie
	// followed by the PNG.
	ScreenshotConnect(address string, port int, cookie string) (time.Time, error)
	// ScreenshotListen has the agent serve the PNG once on address and
	// returns the port.
	ScreenshotListen(address string) (int, time.Time, error)
	Close() error
}

const companionReadyTimeout = 3 * time.Second

// CompanionFactory connects to the agent listening on port on the device.
type CompanionFactory func(dev Executor, port int) (Companion, error)

func dialDeviceKit(dev Executor, port int) (Companion, error) {
	client := devicekit.NewTunnelClient(port, func() (net.Conn, error) {
		return dev.DialTCP(port)
	})
	if err := client.WaitForReady(companionReadyTimeout); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func companionAction(a EventAction) string {
	return strings.ToLower(a.String())
}

type companionInput struct {
	companion Companion
	clock     clock
}

func (c *companionInput) String() string {
	return "companion input"
}

func (c *companionInput) InputCapabilities() Capabilities {
	return CapTouchEvents | CapMultitouchEvents | CapLowLatencyInput | CapKeyboardEvents
}

func (c *companionInput) TouchTap(x, y int, hold time.Duration) error {
	return c.companion.Tap(x, y, hold)
}

func (c *companionInput) TouchSwipe(x0, y0, x1, y1 int, opts SwipeOptions) error {
	touch := func(action EventAction, x, y int) error {
		return c.TouchEvent(action, x, y, 0)
	}
	return swipeWithEvents(c.clock, touch, x0, y0, x1, y1, opts)
}

func (c *companionInput) TouchEvent(action EventAction, x, y int, pointer int) error {
	return c.companion.Touch(companionAction(action), x, y, pointer)
}

func (c *companionInput) KeyEvent(action EventAction, keycode int, metastate int) error {
	return c.companion.Key(companionAction(action), keycode, metastate)
}

func (c *companionInput) SendKey(keycode int, metastate int) error {
	if err := c.KeyEvent(ActionDown, keycode, metastate); err != nil {
		return err
	}
	return c.KeyEvent(ActionUp, keycode, metastate)
}

func (c *companionInput) SendText(text string) error {
	if text == "" {
		return nil
	}
	return c.companion.Text(text)
}

func (c *companionInput) Close() error {
	return c.companion.Close()
}

// companionTransport is how PNG bytes travel from the agent to this host.
type companionTransport string

const (
	// base64 inside the JSON-RPC reply, through the adb tunnel
	companionOverADB companionTransport = "adb"
	// agent dials back into the rendezvous host via the NAT loopback
	companionOverNAT companionTransport = "nat_loopback"
	// host dials the agent on its layer 2 address
	companionOverL2 companionTransport = "host_reachable"
)

const (
	companionTransferTimeout = 10 * time.Second
	maxCompanionScreenshot   = 64 << 20
)

type companionScreenshot struct {
	companion Companion
	colors    ColorManager
	emulator  bool

	transport  companionTransport
	address    string
	rendezvous func() (*rendezvous.Host, error)
	dial       func(addr string) (net.Conn, error)
}

func (c *companionScreenshot) String() string {
	return fmt.Sprintf("companion screenshot (%s)", c.transport)
}

func (c *companionScreenshot) ScreenshotCapabilities() Capabilities {
	return CapScreenshotTimestamp
}

func (c *companionScreenshot) fetch() ([]byte, time.Time, error) {
	switch c.transport {
	case companionOverNAT:
		return c.fetchConnect()
	case companionOverL2:
		return c.fetchListen()
	default:
		return c.companion.Screenshot()
	}
}

func (c *companionScreenshot) fetchConnect() ([]byte, time.Time, error) {
	host, err := c.rendezvous()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("rendezvous host: %w", err)
	}
	future, err := host.Register()
	if err != nil {
		return nil, time.Time{}, err
	}

	ts, err := c.companion.ScreenshotConnect(c.address, host.Port(), future.Cookie())
	if err != nil {
		future.Cancel()
		return nil, time.Time{}, err
	}

	var data []byte
	err = future.Use(companionTransferTimeout, func(conn net.Conn) error {
		var rerr error
		data, rerr = readCompanionImage(conn)
		return rerr
	})
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("screenshot via %s:%d: %w", c.address, host.Port(), err)
	}
	return data, ts, nil
}

func (c *companionScreenshot) fetchListen() ([]byte, time.Time, error) {
	port, ts, err := c.companion.ScreenshotListen(c.address)
	if err != nil {
		return nil, time.Time{}, err
	}

	addr := net.JoinHostPort(c.address, strconv.Itoa(port))
	conn, err := c.dial(addr)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("screenshot from %s: %w", addr, err)
	}
	defer conn.Close()

	data, err := readCompanionImage(conn)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("screenshot from %s: %w", addr, err)
	}
	return data, ts, nil
}

func readCompanionImage(conn net.Conn) ([]byte, error) {
	_ = conn.SetReadDeadline(time.Now().Add(companionTransferTimeout))
	data, err := io.ReadAll(io.LimitReader(conn, maxCompanionScreenshot+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxCompanionScreenshot {
		return nil, fmt.Errorf("screenshot larger than %d bytes", maxCompanionScreenshot)
	}
	return data, nil
}

func dialHost(addr string) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, companionTransferTimeout)
}

func (c *companionScreenshot) Screenshot() (*Frame, error) {
	data, ts, err := c.fetch()
	if err != nil {
		return nil, err
	}
	img, err := decodePNG(data, c.colors)
	if err != nil {
		return nil, err
	}

	frame := &Frame{Image: img, Timestamp: ts}
	if alphaAllZero(img) {
		if c.emulator {
			return nil, unsupported("companion screenshot",
				"frame is fully transparent, the emulator may be running without a GPU renderer")
		}
		return nil, unsupported("companion screenshot",
			"frame is fully transparent, the device screen may be off or secure content is shown")
	}
	if err := checkFrame(frame); err != nil {
		return nil, err
	}
	return frame, nil
}

func (c *companionScreenshot) Close() error {
	return c.companion.Close()
}
