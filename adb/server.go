package adb

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mobile-next/adbctl/adb/wire"
	"github.com/mobile-next/adbctl/utils"
	"go.opentelemetry.io/otel/attribute"
)

const (
	AdbExecutableName = "adb"

	// Default port the adb server listens on.
	AdbPort = 5037

	DefaultHost = "127.0.0.1"

	// A successful liveness check is trusted for this long by every Server
	// in the process.
	livenessWindow = 100 * time.Millisecond

	defaultSettleDelay = 500 * time.Millisecond
)

var (
	processStart = time.Now()

	// Monotonic nanoseconds since processStart of the last successful
	// liveness check, plus one. Zero means never.
	lastAliveCheck atomic.Int64
)

func monotonicNow() int64 {
	return int64(time.Since(processStart)) + 1
}

func aliveRecently() bool {
	last := lastAliveCheck.Load()
	return last != 0 && monotonicNow()-last < int64(livenessWindow)
}

func markAlive() {
	lastAliveCheck.Store(monotonicNow())
}

func resetLiveness() {
	lastAliveCheck.Store(0)
}

// Dialer opens wire connections to an adb server.
type Dialer interface {
	Dial(address string, timeout time.Duration) (*wire.Conn, error)
}

type tcpDialer struct{}

func (tcpDialer) Dial(address string, timeout time.Duration) (*wire.Conn, error) {
	return wire.Dial(address, timeout)
}

type ServerConfig struct {
	// Host and port the adb server is listening on.
	// If not specified, will use the default port on 127.0.0.1.
	Host string
	Port int

	// Path to the adb executable. When set it is the only binary tried when
	// the server has to be started.
	PathToAdb string

	// Directory with a bundled platform-tools/ folder, tried after PATH.
	VendorDir string

	// Connect timeout for servers that are not on this machine. Zero means none.
	DialTimeout time.Duration

	// Dialer used to connect to the adb server.
	Dialer Dialer

	fs          *filesystem
	settleDelay time.Duration
}

// Server is a client of one adb server.
type Server struct {
	config   ServerConfig
	address  string
	loopback bool
}

func NewServer(config ServerConfig) *Server {
	if config.Host == "" {
		config.Host = DefaultHost
	}
	if config.Port == 0 {
		config.Port = AdbPort
	}
	if config.Dialer == nil {
		config.Dialer = tcpDialer{}
	}
	if config.fs == nil {
		config.fs = localFilesystem
	}
	if config.settleDelay == 0 {
		config.settleDelay = defaultSettleDelay
	}

	return &Server{
		config:   config,
		address:  net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
		loopback: wire.IsLoopback(config.Host),
	}
}

func (s *Server) Address() string {
	return s.address
}

func (s *Server) IsLoopback() bool {
	return s.loopback
}

func (s *Server) String() string {
	return "adb server " + s.address
}

func (s *Server) dial() (*wire.Conn, error) {
	conn, err := s.config.Dialer.Dial(s.address, s.config.DialTimeout)
	if err != nil {
		return nil, WrapErrorf(err, NetworkError, "connecting to %s", s)
	}
	return conn, nil
}

// Dial makes sure the server is alive and opens a new session to it.
func (s *Server) Dial() (*wire.Conn, error) {
	if err := s.EnsureAlive(); err != nil {
		return nil, err
	}
	return s.dial()
}

// roundTrip sends one host request and returns its reply body.
func (s *Server) roundTrip(req string, timeout time.Duration) ([]byte, error) {
	conn, err := s.Dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
	}
	if _, err := conn.Service(req); err != nil {
		return nil, err
	}
	return conn.ReadResponse()
}

// Version returns the protocol version of the running server.
func (s *Server) Version() (int, error) {
	resp, err := s.roundTrip("host:version", 0)
	if err != nil {
		return 0, err
	}
	version, err := strconv.ParseInt(string(resp), 16, 32)
	if err != nil {
		return 0, WrapErrorf(err, ParseError, "invalid server version %q", resp)
	}
	return int(version), nil
}

// DeviceEntry is one line of the server's device list.
type DeviceEntry struct {
	Serial string `json:"serial"`
	State  string `json:"state"`
	Extra  string `json:"extra,omitempty"`
}

// Devices lists attached devices. Offline entries are left out unless
// showOffline is set.
func (s *Server) Devices(showOffline bool) ([]DeviceEntry, error) {
	resp, err := s.roundTrip("host:devices", 0)
	if err != nil {
		return nil, err
	}

	entries := parseDeviceList(string(resp))
	if showOffline {
		return entries, nil
	}

	online := entries[:0]
	for _, e := range entries {
		if e.State != "offline" {
			online = append(online, e)
		}
	}
	return online, nil
}

func parseDeviceList(body string) []DeviceEntry {
	var entries []DeviceEntry
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) < 2 {
			continue
		}
		entry := DeviceEntry{
			Serial: strings.TrimSpace(fields[0]),
			State:  strings.TrimSpace(fields[1]),
		}
		if len(fields) == 3 {
			entry.Extra = strings.TrimSpace(fields[2])
		}
		entries = append(entries, entry)
	}
	return entries
}

// checkConnectReply turns a text failure inside an OKAY reply into an error.
func checkConnectReply(req string, body []byte) error {
	text := string(body)
	if strings.Contains(text, "unable") || strings.Contains(text, "cannot") {
		return &wire.ProtocolError{Request: req, Reason: strings.TrimSpace(text)}
	}
	return nil
}

// Connect asks the server to connect to a network device such as "10.0.0.5:5555".
func (s *Server) Connect(addr string, timeout time.Duration) error {
	req := "host:connect:" + addr
	body, err := s.roundTrip(req, timeout)
	if err != nil {
		return err
	}
	return checkConnectReply(req, body)
}

func (s *Server) Disconnect(addr string) error {
	req := "host:disconnect:" + addr
	body, err := s.roundTrip(req, 0)
	if err != nil {
		return err
	}
	return checkConnectReply(req, body)
}

// DisconnectAllOffline disconnects every offline device. Failures are logged
// and do not stop the sweep.
func (s *Server) DisconnectAllOffline() {
	entries, err := s.Devices(true)
	if err != nil {
		utils.Verbose("listing devices for offline sweep: %v", err)
		return
	}
	for _, e := range entries {
		if e.State != "offline" {
			continue
		}
		if err := s.Disconnect(e.Serial); err != nil {
			utils.Verbose("disconnecting offline device %s: %v", e.Serial, err)
		}
	}
}

// ParanoidConnect drops any stale entry for addr, then connects again.
func (s *Server) ParanoidConnect(addr string, timeout time.Duration) error {
	if err := s.Disconnect(addr); err != nil {
		utils.Verbose("disconnect before connect to %s: %v", addr, err)
	}
	return s.Connect(addr, timeout)
}

func (s *Server) checkAlive() error {
	conn, err := s.dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Service("host:version"); err != nil {
		return err
	}
	if _, err := conn.ReadResponse(); err != nil {
		return err
	}
	markAlive()
	return nil
}

// EnsureAlive checks the server answers host:version, starting it if it
// is on this machine and does not.
func (s *Server) EnsureAlive() error {
	if aliveRecently() {
		return nil
	}
	err := s.checkAlive()
	if err == nil {
		return nil
	}
	if !s.loopback {
		return &StartupError{Address: s.address, Cause: err}
	}
	return s.start(err)
}

// candidates lists adb binaries to try, in order.
func (s *Server) candidates() []string {
	fs := s.config.fs
	if s.config.PathToAdb != "" {
		return []string{s.config.PathToAdb}
	}

	var found []string
	seen := map[string]bool{}
	add := func(path string) {
		if path != "" && !seen[path] {
			seen[path] = true
			found = append(found, path)
		}
	}

	if path, err := fs.LookPath(AdbExecutableName); err == nil {
		add(path)
	}
	if s.config.VendorDir != "" {
		path := filepath.Join(s.config.VendorDir, "platform-tools", fs.adbExecutableName())
		if fs.IsExecutableFile(path) == nil {
			add(path)
		}
	}
	for _, root := range fs.sdkRoots() {
		path := filepath.Join(root, "platform-tools", fs.adbExecutableName())
		if fs.IsExecutableFile(path) == nil {
			add(path)
		}
	}
	return found
}

// Candidates lists the adb binaries tried when the server has to be started.
func (s *Server) Candidates() []string {
	return s.candidates()
}

func (s *Server) startEnv() []string {
	if s.config.Port == AdbPort {
		return nil
	}
	return []string{fmt.Sprintf("ANDROID_ADB_SERVER_PORT=%d", s.config.Port)}
}

func (s *Server) start(cause error) error {
	_, span := startSpan("adb.StartServer", attribute.String("address", s.address))
	defer span.End()

	utils.Verbose("adb server at %s is not responding: %v", s.address, cause)

	var tried []string
	lastErr := cause
	for _, bin := range s.candidates() {
		tried = append(tried, bin)
		utils.Verbose("starting adb server with %s", bin)

		output, err := s.config.fs.CmdCombinedOutput(s.startEnv(), bin, "start-server")
		if err != nil {
			lastErr = fmt.Errorf("%s start-server: %w: %s", bin, err, strings.TrimSpace(string(output)))
			utils.Verbose("%v", lastErr)
			continue
		}

		time.Sleep(s.config.settleDelay)
		if err := s.checkAlive(); err != nil {
			lastErr = err
			continue
		}
		utils.Verbose("adb server started with %s", bin)
		return nil
	}

	err := &StartupError{Address: s.address, Tried: tried, Cause: lastErr}
	recordSpanError(span, err)
	return err
}

// Device returns a handle for descriptor without validating it.
func (s *Server) Device(descriptor DeviceDescriptor) *Device {
	return &Device{server: s, descriptor: descriptor}
}

func (s *Server) acquire(descriptor DeviceDescriptor) (*Device, error) {
	d := s.Device(descriptor)
	conn, err := d.openTransport()
	if err != nil {
		return nil, err
	}
	_ = conn.Close()
	return d, nil
}

// GetDevice returns the device with serial after checking it can be reached.
func (s *Server) GetDevice(serial string) (*Device, error) {
	if serial == "" {
		return s.acquire(AnyDevice())
	}
	return s.acquire(DeviceWithSerial(serial))
}

func (s *Server) GetAnyDevice() (*Device, error) {
	return s.acquire(AnyDevice())
}

func (s *Server) GetUSBDevice() (*Device, error) {
	return s.acquire(AnyUsbDevice())
}

func (s *Server) GetEmulatorDevice() (*Device, error) {
	return s.acquire(AnyLocalDevice())
}
