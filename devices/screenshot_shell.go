package devices

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"net"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/mobile-next/adbctl/config"
	"github.com/mobile-next/adbctl/rendezvous"
)

const (
	// how long the device gets to dial back with a frame
	vmNetworkScreenshotTimeout = 10 * time.Second

	// `screencap -d <physical id>`
	multiDisplayScreencapSDK = 29
)

// shellScreenshot runs `screencap` on the device and decodes its output.
type shellScreenshot struct {
	dev        Executor
	sdk        int
	mode       screencapMode
	screencap  string
	colors     ColorManager
	rendezvous func() (*rendezvous.Host, error)

	// vm_network only
	nc  string
	nat string
}

func newShellScreenshot(dev Executor, sdk int, displayID int, mode screencapMode, probe *Probe, colors ColorManager) (*shellScreenshot, error) {
	s := &shellScreenshot{
		dev:        dev,
		sdk:        sdk,
		mode:       mode,
		screencap:  "screencap",
		colors:     colors,
		rendezvous: probe.rendezvous,
	}

	if displayID != 0 {
		if sdk < multiDisplayScreencapSDK {
			return nil, unsupported("screenshot of display", "display %d needs SDK %d, device has %d",
				displayID, multiDisplayScreencapSDK, sdk)
		}
		physical, err := resolvePhysicalDisplay(dev, displayID)
		if err != nil {
			return nil, err
		}
		s.screencap = "screencap -d " + physical
	}

	if mode.transport == config.TransportVMNetwork {
		nat, ok := probe.NatLoopback()
		if !ok {
			return nil, unsupported("vm_network screenshot", "no nat loopback address")
		}
		nc, ok := probe.NcCommand()
		if !ok {
			return nil, unsupported("vm_network screenshot", "no netcat on device")
		}
		s.nat, s.nc = nat, nc
	}
	return s, nil
}

func (s *shellScreenshot) String() string {
	return fmt.Sprintf("shell screenshot (%s)", s.mode)
}

func (s *shellScreenshot) ScreenshotCapabilities() Capabilities {
	return 0
}

func (s *shellScreenshot) Close() error {
	return nil
}

// command is the device-side pipeline producing the encoded frame.
func (s *shellScreenshot) command() string {
	switch s.mode.encoding {
	case config.EncodingGzip:
		return s.screencap + " | gzip -1"
	case config.EncodingPNG:
		return s.screencap + " -p"
	}
	return s.screencap
}

func (s *shellScreenshot) Screenshot() (*Frame, error) {
	var data []byte
	var err error
	if s.mode.transport == config.TransportVMNetwork {
		data, err = s.captureOverNetwork()
	} else {
		data, err = s.captureOverADB()
	}
	if err != nil {
		return nil, err
	}

	img, err := s.decode(data)
	if err != nil {
		return nil, err
	}
	frame := &Frame{Image: img}
	if err := checkFrame(frame); err != nil {
		return nil, err
	}
	return frame, nil
}

func (s *shellScreenshot) captureOverADB() ([]byte, error) {
	if s.mode.encoding != config.EncodingGzip {
		return s.dev.Exec(s.command())
	}

	stream, err := s.dev.ExecStream(s.command())
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	return gunzip(stream)
}

func (s *shellScreenshot) captureOverNetwork() ([]byte, error) {
	host, err := s.rendezvous()
	if err != nil {
		return nil, fmt.Errorf("rendezvous host: %w", err)
	}
	future, err := host.Register()
	if err != nil {
		return nil, err
	}

	cmd := fmt.Sprintf("(echo -n %s; %s) | %s %s %d", future.Cookie(), s.command(), s.nc, s.nat, host.Port())
	ctl, err := s.dev.ExecStream(cmd)
	if err != nil {
		future.Cancel()
		return nil, err
	}
	defer ctl.Close()

	var data []byte
	err = future.Use(vmNetworkScreenshotTimeout, func(conn net.Conn) error {
		_ = conn.SetReadDeadline(time.Now().Add(vmNetworkScreenshotTimeout))
		var rerr error
		if s.mode.encoding == config.EncodingGzip {
			data, rerr = gunzip(conn)
		} else {
			data, rerr = io.ReadAll(conn)
		}
		return rerr
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot over %s:%d: %w", s.nat, host.Port(), err)
	}
	return data, nil
}

func (s *shellScreenshot) decode(data []byte) (*image.NRGBA, error) {
	if s.mode.encoding == config.EncodingPNG {
		return decodePNG(data, s.colors)
	}
	return decodeScreencap(data, s.sdk, s.colors)
}

func gunzip(r io.Reader) ([]byte, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("screencap gzip stream: %w", err)
	}
	defer zr.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, zr); err != nil {
		return nil, fmt.Errorf("screencap gzip stream: %w", err)
	}
	return buf.Bytes(), nil
}
