package adb

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/mobile-next/adbctl/adb/wire"
	"github.com/mobile-next/adbctl/utils"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultPushMode is a regular file with rw-r--r-- permissions.
const DefaultPushMode uint32 = 0o100644

const reconnectTimeout = 5 * time.Second

var errEmptyCommand = errors.New("empty command")

// Device communicates with one device through a Server.
// To get an instance, call GetDevice or Device on a Server.
type Device struct {
	server     *Server
	descriptor DeviceDescriptor
}

func (d *Device) String() string {
	return d.descriptor.String()
}

// Serial returns the serial the device was selected by, or "" for the
// "any" descriptors.
func (d *Device) Serial() string {
	if d.descriptor.descriptorType == DeviceSerial {
		return d.descriptor.serial
	}
	return ""
}

func (d *Device) Server() *Server {
	return d.server
}

func (d *Device) openTransport() (*wire.Conn, error) {
	return d.openTransportRetry(1)
}

// openTransportRetry binds a new session to the device. A network serial
// that the server no longer knows gets reconnected while retries remain.
func (d *Device) openTransportRetry(retries int) (*wire.Conn, error) {
	conn, err := d.server.Dial()
	if err != nil {
		return nil, err
	}

	req := d.descriptor.transportRequest()
	if _, err := conn.Service(req); err != nil {
		_ = conn.Close()

		if !isNotFound(err) {
			return nil, WrapErrorf(err, AdbError, "error connecting to device '%s'", d)
		}
		if retries > 0 && d.descriptor.isNetworkSerial() {
			serial := d.descriptor.mustSerial()
			utils.Verbose("device %s not found, reconnecting", serial)
			if cerr := d.server.ParanoidConnect(serial, reconnectTimeout); cerr != nil {
				utils.Verbose("reconnecting %s: %v", serial, cerr)
			}
			return d.openTransportRetry(retries - 1)
		}
		return nil, WrapErrorf(err, DeviceNotFound, "device '%s' not found", d)
	}
	return conn, nil
}

// openService opens a transport session and requests a device service on it.
func (d *Device) openService(service string) (*wire.Conn, error) {
	conn, err := d.openTransport()
	if err != nil {
		return nil, err
	}
	if _, err := conn.Service(service); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func (d *Device) openStream(service string) (net.Conn, error) {
	conn, err := d.openService(service)
	if err != nil {
		return nil, err
	}
	return conn.Detach()
}

func (d *Device) runService(kind, cmd string) ([]byte, error) {
	_, span := startSpan("adb.Device."+kind,
		attribute.String("device", d.String()),
		attribute.String("command", cmd))
	defer span.End()

	stream, err := d.stream(kind, cmd)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer stream.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, stream); err != nil {
		recordSpanError(span, err)
		return buf.Bytes(), fmt.Errorf("reading output of %q: %w", cmd, err)
	}
	return buf.Bytes(), nil
}

func (d *Device) stream(kind, cmd string) (net.Conn, error) {
	if strings.TrimSpace(cmd) == "" {
		return nil, errEmptyCommand
	}
	return d.openStream(kind + ":" + cmd)
}

// Exec runs cmd without a pty and returns its raw output.
func (d *Device) Exec(cmd string) ([]byte, error) {
	return d.runService("exec", cmd)
}

// Shell runs cmd through the device shell and returns its output.
func (d *Device) Shell(cmd string) ([]byte, error) {
	return d.runService("shell", cmd)
}

// ExecStream runs cmd and returns the live output stream. The caller closes it.
func (d *Device) ExecStream(cmd string) (net.Conn, error) {
	return d.stream("exec", cmd)
}

func (d *Device) ShellStream(cmd string) (net.Conn, error) {
	return d.stream("shell", cmd)
}

// DialTCP connects to a TCP port on the device's loopback interface.
func (d *Device) DialTCP(port int) (net.Conn, error) {
	return d.openStream(fmt.Sprintf("tcp:%d", port))
}

// GetProperty returns a system property, trimmed.
func (d *Device) GetProperty(name string) (string, error) {
	out, err := d.Exec("getprop " + name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Push writes the contents of r to path on the device. A zero mtime means now.
func (d *Device) Push(path string, r io.Reader, mode uint32, mtime time.Time) error {
	_, span := startSpan("adb.Device.Push",
		attribute.String("device", d.String()),
		attribute.String("path", path))
	defer span.End()

	if mode == 0 {
		mode = DefaultPushMode
	}

	stream, err := d.openStream("sync:")
	if err != nil {
		recordSpanError(span, err)
		return err
	}
	defer stream.Close()

	err = wire.NewSyncConn(stream).SendFile(path, mode, r, mtime)
	recordSpanError(span, err)
	return err
}
