package devices

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net"
	"sync"
	"time"
)

// fakeExecutor answers device commands from a table.
type fakeExecutor struct {
	serial string

	mu       sync.Mutex
	output   map[string]string
	fail     map[string]bool
	handler  func(cmd string) (string, bool)
	stream   func(cmd string) (conn net.Conn, handled bool, err error)
	dial     func(port int) (net.Conn, error)
	commands []string
}

func newFakeExecutor(serial string) *fakeExecutor {
	return &fakeExecutor{
		serial: serial,
		output: map[string]string{},
		fail:   map[string]bool{},
	}
}

func (f *fakeExecutor) Serial() string {
	return f.serial
}

func (f *fakeExecutor) record(cmd string) {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.mu.Unlock()
}

func (f *fakeExecutor) lookup(cmd string) ([]byte, error) {
	f.record(cmd)

	f.mu.Lock()
	handler := f.handler
	out, ok := f.output[cmd]
	failed := f.fail[cmd]
	f.mu.Unlock()

	if failed {
		return nil, errors.New("exec failed")
	}
	if handler != nil {
		if out, ok := handler(cmd); ok {
			return []byte(out), nil
		}
	}
	if !ok {
		return nil, fmt.Errorf("unexpected command %q", cmd)
	}
	return []byte(out), nil
}

func (f *fakeExecutor) Exec(cmd string) ([]byte, error) {
	return f.lookup(cmd)
}

func (f *fakeExecutor) ExecStream(cmd string) (net.Conn, error) {
	if f.stream != nil {
		if conn, ok, err := f.stream(cmd); ok {
			f.record(cmd)
			return conn, err
		}
	}
	data, err := f.lookup(cmd)
	if err != nil {
		return nil, err
	}
	return pipeConn(data), nil
}

func (f *fakeExecutor) DialTCP(port int) (net.Conn, error) {
	if f.dial == nil {
		return nil, errors.New("no tcp service")
	}
	return f.dial(port)
}

func (f *fakeExecutor) count(cmd string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.commands {
		if c == cmd {
			n++
		}
	}
	return n
}

func (f *fakeExecutor) ran() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

// pipeConn is a stream that delivers data then EOF.
func pipeConn(data []byte) net.Conn {
	client, server := net.Pipe()
	go func() {
		_, _ = server.Write(data)
		_ = server.Close()
	}()
	return client
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.Advance(d)
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// rawScreencap builds `screencap` output for sdk with every pixel set to fill.
func rawScreencap(sdk, width, height int, colorspace Colorspace, fill color.NRGBA) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint32(width))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(height))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(1)) // RGBA_8888
	if sdk >= screencapColorspaceSDK {
		_ = binary.Write(&buf, binary.LittleEndian, uint32(colorspace))
	}
	for i := 0; i < width*height; i++ {
		buf.Write([]byte{fill.R, fill.G, fill.B, fill.A})
	}
	return buf.Bytes()
}

var (
	opaqueRed   = color.NRGBA{R: 255, A: 255}
	transparent = color.NRGBA{}
)

func pngImage(width, height int, fill color.NRGBA) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func ptr[T any](v T) *T {
	return &v
}

// fastLink preloads a probe so no speed test runs.
func fastLink() *Facts {
	return &Facts{ConnectionSpeed: ptr(200.0)}
}

// recordingColors counts conversions.
type recordingColors struct {
	mu  sync.Mutex
	p3  int
	icc [][]byte
}

func (r *recordingColors) DisplayP3ToSRGB(img *image.NRGBA) (*image.NRGBA, error) {
	r.mu.Lock()
	r.p3++
	r.mu.Unlock()
	return img, nil
}

func (r *recordingColors) ConvertICC(img *image.NRGBA, profile []byte) (*image.NRGBA, error) {
	r.mu.Lock()
	r.icc = append(r.icc, profile)
	r.mu.Unlock()
	return img, nil
}

type fakeCompanion struct {
	mu     sync.Mutex
	calls  []string
	shot   []byte
	ts     time.Time
	err    error
	closed int
	// fails only the network screenshot transports
	netErr error
}

func (c *fakeCompanion) log(format string, args ...interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, fmt.Sprintf(format, args...))
	return c.err
}

func (c *fakeCompanion) Tap(x, y int, hold time.Duration) error {
	return c.log("tap %d %d %s", x, y, hold)
}

func (c *fakeCompanion) Touch(action string, x, y, pointer int) error {
	return c.log("touch %s %d %d %d", action, x, y, pointer)
}

func (c *fakeCompanion) Key(action string, keycode, metastate int) error {
	return c.log("key %s %d %d", action, keycode, metastate)
}

func (c *fakeCompanion) Text(text string) error {
	return c.log("text %s", text)
}

func (c *fakeCompanion) Screenshot() ([]byte, time.Time, error) {
	if err := c.log("screenshot"); err != nil {
		return nil, time.Time{}, err
	}
	return c.shot, c.ts, nil
}

// ScreenshotConnect ignores address and dials the loopback port, the way
// the emulator NAT forwards to the host.
func (c *fakeCompanion) ScreenshotConnect(address string, port int, cookie string) (time.Time, error) {
	if err := c.log("screenshot connect %s", address); err != nil {
		return time.Time{}, err
	}
	if c.netErr != nil {
		return time.Time{}, c.netErr
	}
	go func() {
		conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write(append([]byte(cookie), c.shot...))
	}()
	return c.ts, nil
}

func (c *fakeCompanion) ScreenshotListen(address string) (int, time.Time, error) {
	if err := c.log("screenshot listen %s", address); err != nil {
		return 0, time.Time{}, err
	}
	if c.netErr != nil {
		return 0, time.Time{}, c.netErr
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, time.Time{}, err
	}
	go func() {
		defer ln.Close()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write(c.shot)
	}()
	return ln.Addr().(*net.TCPAddr).Port, c.ts, nil
}

func (c *fakeCompanion) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeCompanion) history() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}
