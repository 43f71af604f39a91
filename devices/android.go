package devices

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/mobile-next/adbctl/adb"
	"github.com/mobile-next/adbctl/utils"
	"golang.org/x/sync/errgroup"
)

const (
	StateOnline  = "online"
	StateOffline = "offline"

	// property lookups in flight while listing devices
	listConcurrency = 4
)

// AndroidDevice implements the ControllableDevice interface for Android devices
type AndroidDevice struct {
	id          string
	name        string
	version     string
	state       string
	transportID string

	server *adb.Server
}

// NewAndroidDevice addresses a device by adb serial without listing first.
func NewAndroidDevice(server *adb.Server, serial string) *AndroidDevice {
	return &AndroidDevice{
		id:          serial,
		name:        serial,
		state:       StateOnline,
		transportID: serial,
		server:      server,
	}
}

func (d *AndroidDevice) ID() string {
	return d.id
}

func (d *AndroidDevice) Name() string {
	return d.name
}

func (d *AndroidDevice) Version() string {
	return d.version
}

func (d *AndroidDevice) State() string {
	return d.state
}

func (d *AndroidDevice) Platform() string {
	return "android"
}

// DeviceType is "emulator" for emulators and offline AVDs, "real" otherwise.
func (d *AndroidDevice) DeviceType() string {
	if strings.HasPrefix(d.transportID, "emulator-") || d.state == StateOffline {
		return "emulator"
	}
	return "real"
}

// getAdbIdentifier is the serial adb knows the device by. Emulators are
// listed by AVD name but addressed by transport.
func (d *AndroidDevice) getAdbIdentifier() string {
	if d.transportID != "" {
		return d.transportID
	}
	return d.id
}

// Adb returns the adb handle for an online device.
func (d *AndroidDevice) Adb() (*adb.Device, error) {
	if d.state != StateOnline {
		return nil, fmt.Errorf("device %s is %s", d.id, d.state)
	}
	if d.server == nil {
		return nil, fmt.Errorf("device %s has no adb server", d.id)
	}
	return d.server.Device(adb.DeviceWithSerial(d.getAdbIdentifier())), nil
}

// NewController negotiates input and screenshot strategies for the device.
func (d *AndroidDevice) NewController(opts ControllerOptions) (*Controller, error) {
	dev, err := d.Adb()
	if err != nil {
		return nil, err
	}
	return NewController(dev, opts)
}

// Reboot restarts the device. The connection drops while the command runs,
// so a truncated reply is not an error.
func (d *AndroidDevice) Reboot() error {
	dev, err := d.Adb()
	if err != nil {
		return err
	}
	_, err = dev.Shell("reboot")
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("failed to reboot %s: %w", d.id, err)
	}
	return nil
}

var wmSizePattern = regexp.MustCompile(`(?m)^(Physical|Override) size: (\d+)x(\d+)`)

// parseWmSize reads `wm size`, preferring an override over the physical size.
func parseWmSize(output string) (*ScreenSize, bool) {
	var size *ScreenSize
	for _, m := range wmSizePattern.FindAllStringSubmatch(output, -1) {
		w, _ := strconv.Atoi(m[2])
		h, _ := strconv.Atoi(m[3])
		size = &ScreenSize{Width: w, Height: h, Scale: 1}
		if m[1] == "Override" {
			break
		}
	}
	return size, size != nil
}

// Info reports identity and screen size.
func (d *AndroidDevice) Info() (*FullDeviceInfo, error) {
	info := &FullDeviceInfo{DeviceInfo: deviceInfo(d)}
	if d.state != StateOnline {
		return info, nil
	}

	dev, err := d.Adb()
	if err != nil {
		return nil, err
	}
	out, err := dev.Exec("wm size")
	if err != nil {
		return nil, fmt.Errorf("failed to read screen size: %w", err)
	}
	if size, ok := parseWmSize(string(out)); ok {
		info.ScreenSize = size
	}
	return info, nil
}

var buttonKeycodes = map[string]int{
	"HOME":        3,
	"BACK":        4,
	"POWER":       26,
	"VOLUME_UP":   24,
	"VOLUME_DOWN": 25,
	"ENTER":       66,
	"DPAD_CENTER": 23,
	"DPAD_UP":     19,
	"DPAD_DOWN":   20,
	"DPAD_LEFT":   21,
	"DPAD_RIGHT":  22,
	"BACKSPACE":   67,
	"APP_SWITCH":  187,
}

// ButtonKeycode maps a button name such as "HOME" to its Android keycode.
func ButtonKeycode(key string) (int, error) {
	keycode, exists := buttonKeycodes[strings.ToUpper(key)]
	if !exists {
		return 0, fmt.Errorf("unsupported button key: %s", key)
	}
	return keycode, nil
}

// describeAndroidDevice builds a device from a `host:devices` entry, reading
// properties through prop. Online emulators are named after their AVD.
func describeAndroidDevice(entry adb.DeviceEntry, prop func(name string) string) *AndroidDevice {
	d := &AndroidDevice{
		id:          entry.Serial,
		name:        entry.Serial,
		state:       entry.State,
		transportID: entry.Serial,
	}
	if entry.State != "device" {
		return d
	}

	d.state = StateOnline
	if model := prop("ro.product.model"); model != "" {
		d.name = model
	}
	d.version = prop("ro.build.version.release")

	if strings.HasPrefix(entry.Serial, "emulator-") {
		avd := prop("ro.boot.qemu.avd_name")
		if avd == "" {
			avd = prop("ro.kernel.qemu.avd_name")
		}
		if avd != "" {
			d.id = avd
			d.name = strings.ReplaceAll(avd, "_", " ")
		}
	}
	return d
}

func matchesAVDName(avdName, deviceName string) bool {
	return avdName == deviceName || strings.ReplaceAll(avdName, "_", " ") == deviceName
}

// GetAndroidDevices lists devices known to server. With showAll, devices adb
// reports offline and AVDs that are not running are included.
func GetAndroidDevices(server *adb.Server, showAll bool) ([]*AndroidDevice, error) {
	entries, err := server.Devices(showAll)
	if err != nil {
		return nil, fmt.Errorf("failed to list adb devices: %w", err)
	}

	devices := make([]*AndroidDevice, len(entries))
	var g errgroup.Group
	g.SetLimit(listConcurrency)
	for i, entry := range entries {
		g.Go(func() error {
			dev := server.Device(adb.DeviceWithSerial(entry.Serial))
			prop := func(name string) string {
				value, err := dev.GetProperty(name)
				if err != nil {
					return ""
				}
				return value
			}
			d := describeAndroidDevice(entry, prop)
			d.server = server
			devices[i] = d
			return nil
		})
	}
	_ = g.Wait()

	if !showAll {
		return devices, nil
	}

	online := make(map[string]bool)
	for _, d := range devices {
		if d.state == StateOnline && d.DeviceType() == "emulator" {
			online[d.id] = true
		}
	}
	offline, err := getOfflineAndroidEmulators(online)
	if err != nil {
		utils.Verbose("Failed to read AVDs: %v", err)
		return devices, nil
	}
	return append(devices, offline...), nil
}
