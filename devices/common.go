package devices

import (
	"fmt"

	"github.com/mobile-next/adbctl/adb"
)

type ControllableDevice interface {
	ID() string
	Name() string
	Platform() string   // "android"
	DeviceType() string // "real" or "emulator"
	Version() string
	State() string

	Info() (*FullDeviceInfo, error)
	Reboot() error
}

// DeviceInfo represents the JSON-friendly device information
type DeviceInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Platform string `json:"platform"`
	Type     string `json:"type"`
	Version  string `json:"version,omitempty"`
	State    string `json:"state"`
}

type ScreenSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	Scale  int `json:"scale"`
}

type FullDeviceInfo struct {
	DeviceInfo
	ScreenSize *ScreenSize `json:"screenSize,omitempty"`
}

func deviceInfo(d ControllableDevice) DeviceInfo {
	return DeviceInfo{
		ID:       d.ID(),
		Name:     d.Name(),
		Platform: d.Platform(),
		Type:     d.DeviceType(),
		Version:  d.Version(),
		State:    d.State(),
	}
}

// GetDeviceInfoList returns a list of DeviceInfo for all connected devices
func GetDeviceInfoList(server *adb.Server, showAll bool) ([]DeviceInfo, error) {
	devices, err := GetAndroidDevices(server, showAll)
	if err != nil {
		return nil, fmt.Errorf("error getting devices: %w", err)
	}

	deviceInfoList := make([]DeviceInfo, len(devices))
	for i, d := range devices {
		deviceInfoList[i] = deviceInfo(d)
	}

	return deviceInfoList, nil
}
