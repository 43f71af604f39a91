package devices

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/mobile-next/adbctl/config"
	"github.com/mobile-next/adbctl/rendezvous"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newPhone answers the commands a Controller runs while negotiating.
func newPhone(sdk string, screenSDK int) *fakeExecutor {
	dev := newFakeExecutor("R5CR1234567")
	dev.output["getprop ro.build.version.sdk"] = sdk + "\n"
	dev.output["getprop net.hostname"] = "\n"
	dev.output["settings get secure android_id"] = "9774d56d682e549c\n"
	dev.output["screencap"] = string(rawScreencap(screenSDK, 2, 2, ColorspaceSRGB, opaqueRed))
	return dev
}

func TestControllerModernDevice(t *testing.T) {
	dev := newPhone("30", 30)
	c, err := NewController(dev, ControllerOptions{Preload: fastLink(), clock: newFakeClock()})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, 30, c.SDKVersion())
	assert.Equal(t, "9774d56d682e549c", c.Identifier())
	assert.Equal(t, "R5CR1234567", c.Serial())
	assert.Equal(t, CapLowLatencyInput|CapTouchEvents, c.Capabilities())
	assert.Equal(t, "shell input (input)", c.Input().String())
	assert.Equal(t, "shell screenshot (raw/adb)", c.ScreenshotStrategy().String())
	assert.NotNil(t, c.Probe())
}

func TestControllerLegacyDevice(t *testing.T) {
	dev := newPhone("23", 23)
	c, err := NewController(dev, ControllerOptions{Preload: fastLink(), clock: newFakeClock()})
	require.NoError(t, err)

	assert.Equal(t, Capabilities(0), c.Capabilities())
	var unsupportedErr *UnsupportedOperationError
	assert.True(t, errors.As(c.Input().TouchEvent(ActionDown, 1, 1, 0), &unsupportedErr))
}

func TestControllerUnparsableSDK(t *testing.T) {
	dev := newPhone("", DefaultSDKVersion)
	dev.output["getprop ro.build.version.sdk"] = "unknown\n"

	c, err := NewController(dev, ControllerOptions{Preload: fastLink(), clock: newFakeClock()})
	require.NoError(t, err)
	assert.Equal(t, DefaultSDKVersion, c.SDKVersion())
}

func TestControllerIdentifier(t *testing.T) {
	t.Run("hostname", func(t *testing.T) {
		dev := newPhone("30", 30)
		dev.output["getprop net.hostname"] = "pixel-7\n"
		c, err := NewController(dev, ControllerOptions{Preload: fastLink(), clock: newFakeClock()})
		require.NoError(t, err)
		assert.Equal(t, "pixel-7", c.Identifier())
	})

	t.Run("android_id null falls back to serial", func(t *testing.T) {
		dev := newPhone("30", 30)
		dev.output["settings get secure android_id"] = "null\n"
		c, err := NewController(dev, ControllerOptions{Preload: fastLink(), clock: newFakeClock()})
		require.NoError(t, err)
		assert.Equal(t, "R5CR1234567", c.Identifier())
	})

	t.Run("explicit", func(t *testing.T) {
		dev := newPhone("30", 30)
		c, err := NewController(dev, ControllerOptions{Identifier: "bench-3", Preload: fastLink(), clock: newFakeClock()})
		require.NoError(t, err)
		assert.Equal(t, "bench-3", c.Identifier())
		assert.Equal(t, 0, dev.count("getprop net.hostname"))
	})
}

func newRateLimited(t *testing.T, dev *fakeExecutor, clock *fakeClock, rate float64) *Controller {
	t.Helper()
	cfg := config.DefaultDevice()
	cfg.ScreenshotRateLimit = rate
	c, err := NewController(dev, ControllerOptions{Config: cfg, Preload: fastLink(), clock: clock})
	require.NoError(t, err)
	return c
}

func TestControllerScreenshotRateLimit(t *testing.T) {
	dev := newPhone("30", 30)
	clock := newFakeClock()
	c := newRateLimited(t, dev, clock, 2)
	validation := dev.count("screencap")

	first, err := c.Screenshot(true)
	require.NoError(t, err)

	clock.Advance(400 * time.Millisecond)
	again, err := c.Screenshot(true)
	require.NoError(t, err)
	assert.Same(t, first, again)

	fresh, err := c.Screenshot(false)
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)

	clock.Advance(600 * time.Millisecond)
	later, err := c.Screenshot(true)
	require.NoError(t, err)
	assert.NotSame(t, fresh, later)

	assert.Equal(t, validation+3, dev.count("screencap"))
}

func TestControllerScreenshotAdaptive(t *testing.T) {
	dev := newPhone("30", 30)
	clock := newFakeClock()
	frame := string(rawScreencap(30, 2, 2, ColorspaceSRGB, opaqueRed))
	// each capture takes 300ms
	dev.handler = func(cmd string) (string, bool) {
		if cmd != "screencap" {
			return "", false
		}
		clock.Advance(300 * time.Millisecond)
		return frame, true
	}
	c := newRateLimited(t, dev, clock, config.RateLimitAdaptive)

	first, err := c.Screenshot(true)
	require.NoError(t, err)

	clock.Advance(200 * time.Millisecond)
	again, err := c.Screenshot(true)
	require.NoError(t, err)
	assert.Same(t, first, again)

	clock.Advance(200 * time.Millisecond)
	later, err := c.Screenshot(true)
	require.NoError(t, err)
	assert.NotSame(t, first, later)
}

func TestControllerScreenshotNoRateLimit(t *testing.T) {
	dev := newPhone("30", 30)
	c := newRateLimited(t, dev, newFakeClock(), config.RateLimitNone)
	validation := dev.count("screencap")

	first, err := c.Screenshot(true)
	require.NoError(t, err)
	second, err := c.Screenshot(true)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, validation+2, dev.count("screencap"))
}

func TestControllerFallsBackToRaw(t *testing.T) {
	dev := newPhone("30", 30)
	dev.fail["screencap | gzip -1"] = true

	c, err := NewController(dev, ControllerOptions{
		Preload: &Facts{ConnectionSpeed: ptr(10.0)},
		clock:   newFakeClock(),
	})
	require.NoError(t, err)
	assert.Equal(t, "shell screenshot (raw/adb)", c.ScreenshotStrategy().String())
	assert.Equal(t, 1, dev.count("screencap | gzip -1"))
}

func TestControllerFailsWithoutScreenshots(t *testing.T) {
	dev := newPhone("30", 30)
	dev.fail["screencap"] = true

	_, err := NewController(dev, ControllerOptions{Preload: fastLink(), clock: newFakeClock()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "screenshots do not work on R5CR1234567")
}

func TestNewControllerSpans(t *testing.T) {
	spanRecorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spanRecorder))
	otel.SetTracerProvider(provider)
	defer func() {
		_ = provider.Shutdown(context.Background())
	}()

	_, err := NewController(newPhone("30", 30), ControllerOptions{Preload: fastLink(), clock: newFakeClock()})
	require.NoError(t, err)

	broken := newPhone("30", 30)
	broken.fail["screencap"] = true
	_, err = NewController(broken, ControllerOptions{Preload: fastLink(), clock: newFakeClock()})
	require.Error(t, err)

	spans := spanRecorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "devices.NewController", spans[0].Name())
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)

	attrs := map[string]any{}
	for _, attr := range spans[0].Attributes() {
		attrs[string(attr.Key)] = attr.Value.AsInterface()
	}
	assert.Equal(t, "R5CR1234567", attrs["device"])
	assert.Equal(t, int64(30), attrs["sdk"])

	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.NotEmpty(t, spans[1].Events())
}

func companionFactory(fc *fakeCompanion) CompanionFactory {
	return func(dev Executor, port int) (Companion, error) {
		return fc, nil
	}
}

func TestControllerCompanion(t *testing.T) {
	ts := time.UnixMilli(1700000000123)
	fc := &fakeCompanion{shot: pngImage(2, 2, opaqueRed), ts: ts}
	dev := newPhone("30", 30)

	cfg := config.DefaultDevice()
	cfg.InputMethod = config.InputCompanion
	cfg.ScreenshotMethod = config.ScreenshotCompanion
	c, err := NewController(dev, ControllerOptions{
		Config:    cfg,
		Preload:   fastLink(),
		Companion: companionFactory(fc),
		clock:     newFakeClock(),
	})
	require.NoError(t, err)

	assert.Equal(t,
		CapTouchEvents|CapMultitouchEvents|CapLowLatencyInput|CapKeyboardEvents|CapScreenshotTimestamp,
		c.Capabilities())
	assert.Equal(t, 0, dev.count("screencap"))

	frame, err := c.Screenshot(false)
	require.NoError(t, err)
	assert.Equal(t, ts, frame.Timestamp)

	require.NoError(t, c.Input().SendKey(66, 0))
	require.NoError(t, c.Input().TouchTap(5, 6, 0))
	assert.Equal(t, []string{
		"screenshot",
		"screenshot",
		"key down 66 0",
		"key up 66 0",
		"tap 5 6 0s",
	}, fc.history())

	require.NoError(t, c.Close())
	assert.Equal(t, 1, fc.closed)
}

func TestControllerCompanionTransparentFrame(t *testing.T) {
	fc := &fakeCompanion{shot: pngImage(2, 2, transparent)}
	dev := newPhone("30", 30)

	cfg := config.DefaultDevice()
	cfg.ScreenshotMethod = config.ScreenshotCompanion
	c, err := NewController(dev, ControllerOptions{
		Config:    cfg,
		Preload:   fastLink(),
		Companion: companionFactory(fc),
		clock:     newFakeClock(),
	})
	require.NoError(t, err)

	assert.Equal(t, "shell screenshot (raw/adb)", c.ScreenshotStrategy().String())
	assert.Equal(t, "shell input (input)", c.Input().String())
	assert.Equal(t, 1, fc.closed)
}

func companionScreenshotConfig() config.Device {
	cfg := config.DefaultDevice()
	cfg.ScreenshotMethod = config.ScreenshotCompanion
	return cfg
}

func testRendezvous(t *testing.T) func() (*rendezvous.Host, error) {
	t.Helper()
	host, err := rendezvous.New("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = host.Close() })
	return func() (*rendezvous.Host, error) { return host, nil }
}

func TestControllerCompanionScreenshotOverNatLoopback(t *testing.T) {
	ts := time.UnixMilli(1700000000123)
	fc := &fakeCompanion{shot: pngImage(2, 2, opaqueRed), ts: ts}
	dev := newPhone("30", 30)
	dev.serial = "emulator-5554"

	c, err := NewController(dev, ControllerOptions{
		Config:     companionScreenshotConfig(),
		Preload:    &Facts{ConnectionSpeed: ptr(200.0), NatLoopback: ptr("10.0.2.2")},
		Rendezvous: testRendezvous(t),
		Companion:  companionFactory(fc),
		clock:      newFakeClock(),
	})
	require.NoError(t, err)
	assert.Equal(t, "companion screenshot (nat_loopback)", c.ScreenshotStrategy().String())

	frame, err := c.Screenshot(false)
	require.NoError(t, err)
	assert.Equal(t, ts, frame.Timestamp)
	assert.Equal(t, []string{"screenshot connect 10.0.2.2", "screenshot connect 10.0.2.2"}, fc.history())
}

func TestControllerCompanionScreenshotOverHostReachable(t *testing.T) {
	fc := &fakeCompanion{shot: pngImage(2, 2, opaqueRed)}
	dev := newPhone("30", 30)

	var dialed []string
	c, err := NewController(dev, ControllerOptions{
		Config:    companionScreenshotConfig(),
		Preload:   &Facts{ConnectionSpeed: ptr(200.0), HostReachableAddress: ptr("172.20.10.5")},
		Companion: companionFactory(fc),
		clock:     newFakeClock(),
		dialHost: func(addr string) (net.Conn, error) {
			dialed = append(dialed, addr)
			_, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			return net.Dial("tcp", net.JoinHostPort("127.0.0.1", port))
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "companion screenshot (host_reachable)", c.ScreenshotStrategy().String())
	assert.Equal(t, []string{"screenshot listen 172.20.10.5"}, fc.history())
	require.Len(t, dialed, 1)
	assert.True(t, strings.HasPrefix(dialed[0], "172.20.10.5:"))
}

func TestControllerCompanionScreenshotTransportOrder(t *testing.T) {
	withADB := companionScreenshotConfig()
	withADB.ScreenshotTransport = config.TransportADB

	tests := []struct {
		name    string
		cfg     config.Device
		netErr  error
		want    string
		history []string
	}{
		{
			name:    "adb transport skips the network",
			cfg:     withADB,
			want:    "companion screenshot (adb)",
			history: []string{"screenshot"},
		},
		{
			name:    "failed connect falls back to adb",
			cfg:     companionScreenshotConfig(),
			netErr:  errors.New("network unreachable"),
			want:    "companion screenshot (adb)",
			history: []string{"screenshot connect 10.0.2.2", "screenshot"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeCompanion{shot: pngImage(2, 2, opaqueRed), netErr: tt.netErr}
			dev := newPhone("30", 30)
			dev.serial = "emulator-5554"

			c, err := NewController(dev, ControllerOptions{
				Config:     tt.cfg,
				Preload:    &Facts{ConnectionSpeed: ptr(200.0), NatLoopback: ptr("10.0.2.2")},
				Rendezvous: testRendezvous(t),
				Companion:  companionFactory(fc),
				clock:      newFakeClock(),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.ScreenshotStrategy().String())
			assert.Equal(t, tt.history, fc.history())
		})
	}
}

func TestControllerCompanionTransparentFrameStopsTransportSearch(t *testing.T) {
	fc := &fakeCompanion{shot: pngImage(2, 2, transparent)}
	dev := newPhone("30", 30)
	dev.serial = "emulator-5554"

	c, err := NewController(dev, ControllerOptions{
		Config:     companionScreenshotConfig(),
		Preload:    &Facts{ConnectionSpeed: ptr(200.0), NatLoopback: ptr("10.0.2.2")},
		Rendezvous: testRendezvous(t),
		Companion:  companionFactory(fc),
		clock:      newFakeClock(),
	})
	require.NoError(t, err)
	assert.Equal(t, "shell screenshot (raw/adb)", c.ScreenshotStrategy().String())
	assert.Equal(t, []string{"screenshot connect 10.0.2.2"}, fc.history())
}

func TestControllerCompanionUnavailable(t *testing.T) {
	dev := newPhone("30", 30)
	cfg := config.DefaultDevice()
	cfg.InputMethod = config.InputCompanion

	c, err := NewController(dev, ControllerOptions{
		Config:  cfg,
		Preload: fastLink(),
		Companion: func(dev Executor, port int) (Companion, error) {
			return nil, errors.New("connection refused")
		},
		clock: newFakeClock(),
	})
	require.NoError(t, err)
	assert.Equal(t, "shell input (input)", c.Input().String())
}
