package devices

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mobile-next/adbctl/config"
	"github.com/mobile-next/adbctl/rendezvous"
	"github.com/mobile-next/adbctl/utils"
	"go.opentelemetry.io/otel/attribute"
)

// oldest SDK the shell strategies know how to drive
const DefaultSDKVersion = 19

type ControllerOptions struct {
	// Config defaults to config.DefaultDevice() when zero.
	Config config.Device
	// Identifier overrides the hostname/android_id lookup.
	Identifier string
	Preload    *Facts
	Rendezvous func() (*rendezvous.Host, error)
	// Companion connects to the on-device agent; defaults to DeviceKit.
	Companion CompanionFactory
	// Colors converts Display-P3 and ICC frames; defaults to passing pixels through.
	Colors ColorManager

	clock    clock
	dialHost func(addr string) (net.Conn, error)
}

// Controller drives one device with the best input and screenshot
// strategies it supports.
type Controller struct {
	dev        Executor
	cfg        config.Device
	sdk        int
	identifier string
	probe      *Probe
	clock      clock

	input      InputStrategy
	screenshot ScreenshotStrategy

	mu     sync.Mutex
	cached *Frame
	expiry time.Time
}

// NewController negotiates strategies for dev. It only fails when raw
// screenshots over adb or shell input cannot be set up.
func NewController(dev Executor, opts ControllerOptions) (*Controller, error) {
	_, span := startSpan("devices.NewController", attribute.String("device", dev.Serial()))
	defer span.End()

	c, err := newController(dev, opts)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("sdk", c.sdk),
		attribute.String("input", c.input.String()),
		attribute.String("screenshot", c.screenshot.String()),
	)
	return c, nil
}

func newController(dev Executor, opts ControllerOptions) (*Controller, error) {
	if opts.clock == nil {
		opts.clock = realClock{}
	}
	if opts.Colors == nil {
		opts.Colors = passthroughColors{}
	}
	if opts.dialHost == nil {
		opts.dialHost = dialHost
	}
	if opts.Companion == nil {
		opts.Companion = dialDeviceKit
	}
	if opts.Config == (config.Device{}) {
		opts.Config = config.DefaultDevice()
	}

	c := &Controller{
		dev:   dev,
		cfg:   opts.Config,
		clock: opts.clock,
	}
	c.sdk = c.readSDKVersion()
	c.identifier = opts.Identifier
	if c.identifier == "" {
		c.identifier = c.readIdentifier()
	}
	c.probe = NewProbe(dev, opts.Rendezvous, opts.Preload)
	c.probe.clock = opts.clock

	if c.cfg.WantsCompanionInput() || c.cfg.WantsCompanionScreenshot() {
		c.installCompanion(opts)
	}

	if c.input == nil {
		input, err := newShellInput(dev, c.sdk, c.cfg.DisplayID, c.clock)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.input = input
	}

	if c.screenshot == nil {
		shot, err := c.installShellScreenshot(opts.Colors)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.screenshot = shot
	}

	utils.Logger().WithField("serial", dev.Serial()).
		Debugf("sdk %d, input %s, screenshot %s, capabilities %s",
			c.sdk, c.input, c.screenshot, c.Capabilities())
	return c, nil
}

func (c *Controller) readSDKVersion() int {
	out, err := c.dev.Exec("getprop ro.build.version.sdk")
	if err != nil {
		utils.Verbose("%s: failed to read sdk version: %v", c.dev.Serial(), err)
		return DefaultSDKVersion
	}
	sdk, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil || sdk <= 0 {
		utils.Verbose("%s: unparsable sdk version %q, assuming %d", c.dev.Serial(), out, DefaultSDKVersion)
		return DefaultSDKVersion
	}
	return sdk
}

func (c *Controller) readIdentifier() string {
	for _, cmd := range []string{"getprop net.hostname", "settings get secure android_id"} {
		out, err := c.dev.Exec(cmd)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(out)); id != "" && id != "null" {
			return id
		}
	}
	return c.dev.Serial()
}

func (c *Controller) installCompanion(opts ControllerOptions) {
	companion, err := opts.Companion(c.dev, c.cfg.CompanionPort)
	if err != nil {
		utils.Warn("%s: companion agent unavailable, using shell strategies: %v", c.dev.Serial(), err)
		return
	}

	if c.cfg.WantsCompanionScreenshot() {
		c.installCompanionScreenshot(companion, opts)
	}

	if c.cfg.WantsCompanionInput() {
		c.input = &companionInput{companion: companion, clock: c.clock}
	}

	if c.input == nil && c.screenshot == nil {
		_ = companion.Close()
	}
}

// companionScreenshotCandidates lists the transports to try in order: a
// direct network path when one was found, then the adb tunnel.
func (c *Controller) companionScreenshotCandidates(companion Companion, opts ControllerOptions) []*companionScreenshot {
	viaADB := companionScreenshot{
		companion:  companion,
		colors:     opts.Colors,
		emulator:   isEmulatorSerial(c.dev.Serial()),
		transport:  companionOverADB,
		rendezvous: c.probe.rendezvous,
		dial:       opts.dialHost,
	}
	candidates := []*companionScreenshot{}
	if c.cfg.ScreenshotTransport != config.TransportADB {
		if addr, ok := c.probe.NatLoopback(); ok {
			nat := viaADB
			nat.transport, nat.address = companionOverNAT, addr
			candidates = append(candidates, &nat)
		} else if addr, ok := c.probe.HostReachableAddress(); ok {
			l2 := viaADB
			l2.transport, l2.address = companionOverL2, addr
			candidates = append(candidates, &l2)
		}
	}
	return append(candidates, &viaADB)
}

// installCompanionScreenshot keeps the first transport that delivers a valid
// frame. A transparent frame means no transport will do better.
func (c *Controller) installCompanionScreenshot(companion Companion, opts ControllerOptions) {
	for _, shot := range c.companionScreenshotCandidates(companion, opts) {
		_, err := shot.Screenshot()
		if err == nil {
			c.screenshot = shot
			return
		}
		var unsupportedErr *UnsupportedOperationError
		if errors.As(err, &unsupportedErr) {
			utils.Warn("%s: companion screenshot rejected: %v", c.dev.Serial(), err)
			return
		}
		c.probe.debug("%s failed, trying the next transport: %v", shot, err)
	}
	utils.Warn("%s: companion screenshots unavailable, using shell screenshots", c.dev.Serial())
}

// installShellScreenshot validates the preferred screencap mode with one
// capture and falls back to raw over adb.
func (c *Controller) installShellScreenshot(colors ColorManager) (*shellScreenshot, error) {
	mode := selectScreencapMode(c.cfg, c.probe)
	if mode != rawOverADB {
		shot, err := c.validatedShellScreenshot(mode, colors)
		if err == nil {
			return shot, nil
		}
		utils.Warn("%s: screencap %s failed validation, falling back to %s: %v",
			c.dev.Serial(), mode, rawOverADB, err)
	}

	shot, err := c.validatedShellScreenshot(rawOverADB, colors)
	if err != nil {
		return nil, fmt.Errorf("screenshots do not work on %s: %w", c.dev.Serial(), err)
	}
	return shot, nil
}

func (c *Controller) validatedShellScreenshot(mode screencapMode, colors ColorManager) (*shellScreenshot, error) {
	shot, err := newShellScreenshot(c.dev, c.sdk, c.cfg.DisplayID, mode, c.probe, colors)
	if err != nil {
		return nil, err
	}
	if _, err := shot.Screenshot(); err != nil {
		return nil, err
	}
	return shot, nil
}

// Capabilities is the union of both strategies' flags.
func (c *Controller) Capabilities() Capabilities {
	var caps Capabilities
	if c.input != nil {
		caps |= c.input.InputCapabilities()
	}
	if c.screenshot != nil {
		caps |= c.screenshot.ScreenshotCapabilities()
	}
	return caps
}

func (c *Controller) Input() InputStrategy {
	return c.input
}

func (c *Controller) ScreenshotStrategy() ScreenshotStrategy {
	return c.screenshot
}

func (c *Controller) SDKVersion() int {
	return c.sdk
}

func (c *Controller) Identifier() string {
	return c.identifier
}

func (c *Controller) Serial() string {
	return c.dev.Serial()
}

func (c *Controller) Probe() *Probe {
	return c.probe
}

// Screenshot captures a frame. With cached set, a frame younger than the
// configured rate limit is returned as is.
func (c *Controller) Screenshot(cached bool) (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached && c.cached != nil && c.clock.Now().Before(c.expiry) {
		return c.cached, nil
	}

	t0 := c.clock.Now()
	frame, err := c.screenshot.Screenshot()
	if err != nil {
		return nil, err
	}
	t1 := c.clock.Now()

	rate := c.cfg.ScreenshotRateLimit
	switch {
	case rate == config.RateLimitNone:
		c.cached = nil
		return frame, nil
	case rate == config.RateLimitAdaptive:
		c.expiry = t1.Add(t1.Sub(t0))
	case rate > 0:
		c.expiry = t0.Add(time.Duration(float64(time.Second) / rate))
	}
	c.cached = frame
	return frame, nil
}

// Close releases both strategies. The companion is shared and closed once.
func (c *Controller) Close() error {
	var errs []error
	if c.input != nil {
		if err := c.input.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.screenshot != nil {
		_, sharedInput := c.input.(*companionInput)
		_, companionShot := c.screenshot.(*companionScreenshot)
		if !(sharedInput && companionShot) {
			if err := c.screenshot.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
