// Package config loads adbctl settings from an ini file.
//
//	[server]
//	address    = 127.0.0.1:5037
//	adb_binary = /opt/android/platform-tools/adb
//
//	[device]
//	input_method            = auto
//	screenshot_method       = auto
//	screenshot_transport    = auto
//	aosp_screencap_encoding = auto
//	screenshot_rate_limit   = -1
//	display_id              = 0
//	companion_port          = 12004
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/ini.v1"
)

type InputMethod string

const (
	InputAuto      InputMethod = "auto"
	InputShell     InputMethod = "shell"
	InputCompanion InputMethod = "companion"
)

type ScreenshotMethod string

const (
	ScreenshotAuto      ScreenshotMethod = "auto"
	ScreenshotShell     ScreenshotMethod = "shell"
	ScreenshotCompanion ScreenshotMethod = "companion"
)

type ScreenshotTransport string

const (
	TransportAuto      ScreenshotTransport = "auto"
	TransportADB       ScreenshotTransport = "adb"
	TransportVMNetwork ScreenshotTransport = "vm_network"
)

type ScreencapEncoding string

const (
	EncodingAuto ScreencapEncoding = "auto"
	EncodingRaw  ScreencapEncoding = "raw"
	EncodingGzip ScreencapEncoding = "gzip"
	EncodingPNG  ScreencapEncoding = "png"
)

const (
	DefaultServerAddress = "127.0.0.1:5037"
	DefaultCompanionPort = 12004

	// RateLimitNone captures on every call; RateLimitAdaptive caches a frame
	// for as long as it took to capture.
	RateLimitNone     = 0
	RateLimitAdaptive = -1
)

type Server struct {
	Address   string
	AdbBinary string
	VendorDir string
}

type Device struct {
	InputMethod         InputMethod
	ScreenshotMethod    ScreenshotMethod
	ScreenshotTransport ScreenshotTransport
	ScreencapEncoding   ScreencapEncoding
	ScreenshotRateLimit float64
	DisplayID           int
	CompanionPort       int
}

type Config struct {
	Server Server
	Device Device
}

func Default() Config {
	return Config{
		Server: Server{Address: DefaultServerAddress},
		Device: DefaultDevice(),
	}
}

func DefaultDevice() Device {
	return Device{
		InputMethod:         InputAuto,
		ScreenshotMethod:    ScreenshotAuto,
		ScreenshotTransport: TransportAuto,
		ScreencapEncoding:   EncodingAuto,
		ScreenshotRateLimit: RateLimitAdaptive,
		CompanionPort:       DefaultCompanionPort,
	}
}

// DefaultPath is ~/.config/adbctl/config.ini, or "" if there is no home.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "adbctl", "config.ini")
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}

	file, err := ini.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := cfg.apply(file); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Parse reads settings from ini data over the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	file, err := ini.Load(data)
	if err != nil {
		return cfg, err
	}
	if err := cfg.apply(file); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) apply(file *ini.File) error {
	server := file.Section("server")
	c.Server.Address = server.Key("address").MustString(c.Server.Address)
	c.Server.AdbBinary = server.Key("adb_binary").MustString(c.Server.AdbBinary)
	c.Server.VendorDir = server.Key("vendor_dir").MustString(c.Server.VendorDir)

	device := file.Section("device")
	c.Device.InputMethod = InputMethod(device.Key("input_method").MustString(string(c.Device.InputMethod)))
	c.Device.ScreenshotMethod = ScreenshotMethod(device.Key("screenshot_method").MustString(string(c.Device.ScreenshotMethod)))
	c.Device.ScreenshotTransport = ScreenshotTransport(device.Key("screenshot_transport").MustString(string(c.Device.ScreenshotTransport)))
	c.Device.ScreencapEncoding = ScreencapEncoding(device.Key("aosp_screencap_encoding").MustString(string(c.Device.ScreencapEncoding)))

	if key := device.Key("screenshot_rate_limit"); key.String() != "" {
		v, err := key.Float64()
		if err != nil {
			return fmt.Errorf("screenshot_rate_limit: %w", err)
		}
		c.Device.ScreenshotRateLimit = v
	}
	if key := device.Key("display_id"); key.String() != "" {
		v, err := key.Int()
		if err != nil {
			return fmt.Errorf("display_id: %w", err)
		}
		c.Device.DisplayID = v
	}
	if key := device.Key("companion_port"); key.String() != "" {
		v, err := key.Int()
		if err != nil {
			return fmt.Errorf("companion_port: %w", err)
		}
		c.Device.CompanionPort = v
	}
	return nil
}

func (c Config) Validate() error {
	if _, port, err := net.SplitHostPort(c.Server.Address); err != nil {
		return fmt.Errorf("server address %q: %w", c.Server.Address, err)
	} else if _, err := strconv.Atoi(port); err != nil {
		return fmt.Errorf("server address %q: invalid port", c.Server.Address)
	}
	return c.Device.Validate()
}

func (d Device) Validate() error {
	switch d.InputMethod {
	case InputAuto, InputShell, InputCompanion:
	default:
		return fmt.Errorf("unknown input_method '%s'", d.InputMethod)
	}
	switch d.ScreenshotMethod {
	case ScreenshotAuto, ScreenshotShell, ScreenshotCompanion:
	default:
		return fmt.Errorf("unknown screenshot_method '%s'", d.ScreenshotMethod)
	}
	switch d.ScreenshotTransport {
	case TransportAuto, TransportADB, TransportVMNetwork:
	default:
		return fmt.Errorf("unknown screenshot_transport '%s'", d.ScreenshotTransport)
	}
	switch d.ScreencapEncoding {
	case EncodingAuto, EncodingRaw, EncodingGzip, EncodingPNG:
	default:
		return fmt.Errorf("unknown aosp_screencap_encoding '%s'", d.ScreencapEncoding)
	}
	if d.ScreenshotRateLimit < 0 && d.ScreenshotRateLimit != RateLimitAdaptive {
		return fmt.Errorf("screenshot_rate_limit must be -1, 0 or positive, got %v", d.ScreenshotRateLimit)
	}
	if d.DisplayID < 0 {
		return fmt.Errorf("display_id must not be negative")
	}
	if d.CompanionPort <= 0 || d.CompanionPort > 65535 {
		return fmt.Errorf("companion_port %d out of range", d.CompanionPort)
	}
	return nil
}

// WantsCompanionInput reports whether the companion agent should drive input.
func (d Device) WantsCompanionInput() bool {
	return d.InputMethod == InputCompanion
}

func (d Device) WantsCompanionScreenshot() bool {
	return d.ScreenshotMethod == ScreenshotCompanion
}
