package devices

import (
	"github.com/mobile-next/adbctl/config"
)

// ScreenshotStrategy captures frames from a device.
type ScreenshotStrategy interface {
	ScreenshotCapabilities() Capabilities
	// Screenshot captures one frame. Fully transparent frames are rejected
	// with UnsupportedOperationError.
	Screenshot() (*Frame, error)
	Close() error
	String() string
}

// screencapMode is how `screencap` output travels back to the host.
type screencapMode struct {
	encoding  config.ScreencapEncoding
	transport config.ScreenshotTransport
}

var rawOverADB = screencapMode{encoding: config.EncodingRaw, transport: config.TransportADB}

func (m screencapMode) String() string {
	return string(m.encoding) + "/" + string(m.transport)
}

// selectScreencapMode resolves `auto` settings against the probed link.
// The NAT tunnel is only used when the adb link is slow and a loopback
// address was verified; it is never probed on a fast link. Link speed
// is only measured when a setting is left on auto.
func selectScreencapMode(cfg config.Device, probe *Probe) screencapMode {
	mode := screencapMode{transport: config.TransportADB}
	switch cfg.ScreenshotTransport {
	case config.TransportVMNetwork:
		if _, ok := probe.NatLoopback(); ok {
			mode.transport = config.TransportVMNetwork
		} else {
			probe.debug("vm_network screenshots requested but no nat loopback was found")
		}
	case config.TransportAuto:
		if probe.SlowConnection() {
			if _, ok := probe.NatLoopback(); ok {
				mode.transport = config.TransportVMNetwork
			}
		}
	}

	switch {
	case cfg.ScreencapEncoding != config.EncodingAuto && cfg.ScreencapEncoding != "":
		mode.encoding = cfg.ScreencapEncoding
	case mode.transport == config.TransportVMNetwork:
		mode.encoding = config.EncodingRaw
	case probe.SlowConnection():
		mode.encoding = config.EncodingGzip
	default:
		mode.encoding = config.EncodingRaw
	}
	return mode
}
