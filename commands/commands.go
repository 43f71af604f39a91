package commands

import (
	"fmt"
	"strings"
	"sync"

	"github.com/mobile-next/adbctl/adb"
	"github.com/mobile-next/adbctl/config"
	"github.com/mobile-next/adbctl/devices"
)

// CommandResponse represents a standardized response format for all commands
type CommandResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data interface{}) *CommandResponse {
	return &CommandResponse{
		Status: "ok",
		Data:   data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(err error) *CommandResponse {
	return &CommandResponse{
		Status: "error",
		Error:  err.Error(),
	}
}

var (
	stateMu  sync.Mutex
	settings = config.Default()
	servers  = newServerRegistry(settings)

	// devices already resolved in this process, by ID
	deviceCache = make(map[string]*devices.AndroidDevice)
)

// deviceRegistry holds the controllers opened by commands so they can be
// closed on shutdown. It is set once at startup via SetRegistry.
var deviceRegistry *devices.DeviceRegistry

func newServerRegistry(cfg config.Config) *adb.Registry {
	return adb.NewRegistry(adb.ServerConfig{
		PathToAdb: cfg.Server.AdbBinary,
		VendorDir: cfg.Server.VendorDir,
	})
}

// Configure replaces the settings commands run with. Cached devices are
// dropped since they may belong to another server.
func Configure(cfg config.Config) {
	stateMu.Lock()
	defer stateMu.Unlock()

	settings = cfg
	servers = newServerRegistry(cfg)
	deviceCache = make(map[string]*devices.AndroidDevice)
}

// Settings returns the active configuration.
func Settings() config.Config {
	stateMu.Lock()
	defer stateMu.Unlock()
	return settings
}

// SetRegistry sets the registry controllers are cached in.
func SetRegistry(registry *devices.DeviceRegistry) {
	deviceRegistry = registry
}

// GetRegistry returns the current device registry, or nil before SetRegistry.
func GetRegistry() *devices.DeviceRegistry {
	return deviceRegistry
}

// Server returns the adb server at the configured address.
func Server() (*adb.Server, error) {
	stateMu.Lock()
	address, registry := settings.Server.Address, servers
	stateMu.Unlock()

	return registry.Get(address)
}

// FindDevice finds a device by ID, using cache when possible
func FindDevice(deviceID string) (*devices.AndroidDevice, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device ID is required")
	}

	stateMu.Lock()
	device, exists := deviceCache[deviceID]
	stateMu.Unlock()
	if exists {
		return device, nil
	}

	server, err := Server()
	if err != nil {
		return nil, err
	}
	// offline devices are included so the error below can say so
	allDevices, err := devices.GetAndroidDevices(server, true)
	if err != nil {
		return nil, fmt.Errorf("error getting devices: %w", err)
	}

	for _, d := range allDevices {
		if d.ID() == deviceID {
			cacheDevice(d)
			return d, nil
		}
	}

	return nil, fmt.Errorf("device not found: %s", deviceID)
}

// FindDeviceOrAutoSelect finds a device by ID, or auto-selects if deviceID is empty
func FindDeviceOrAutoSelect(deviceID string) (*devices.AndroidDevice, error) {
	if deviceID != "" {
		return FindDevice(deviceID)
	}

	server, err := Server()
	if err != nil {
		return nil, err
	}
	allDevices, err := devices.GetAndroidDevices(server, false)
	if err != nil {
		return nil, fmt.Errorf("error getting devices: %w", err)
	}

	// filter to only online devices for auto-selection
	var onlineDevices []*devices.AndroidDevice
	for _, d := range allDevices {
		if d.State() == devices.StateOnline {
			onlineDevices = append(onlineDevices, d)
		}
	}

	if len(onlineDevices) == 0 {
		return nil, fmt.Errorf("no online devices found")
	}

	if len(onlineDevices) > 1 {
		return nil, fmt.Errorf("multiple devices found (%d), please specify --device with one of: %s", len(onlineDevices), getDeviceIDList(onlineDevices))
	}

	device := onlineDevices[0]
	stateMu.Lock()
	cached, exists := deviceCache[device.ID()]
	stateMu.Unlock()
	if exists {
		return cached, nil
	}
	cacheDevice(device)
	return device, nil
}

func cacheDevice(d *devices.AndroidDevice) {
	stateMu.Lock()
	deviceCache[d.ID()] = d
	stateMu.Unlock()
}

// getDeviceIDList returns a comma-separated list of device IDs for error messages
func getDeviceIDList(list []*devices.AndroidDevice) string {
	var ids []string
	for _, d := range list {
		ids = append(ids, d.ID())
	}
	return fmt.Sprintf("[%s]", strings.Join(ids, ", "))
}

// ControllerFor returns the controller for device, negotiating one on first use.
func ControllerFor(device *devices.AndroidDevice) (*devices.Controller, error) {
	create := func() (*devices.Controller, error) {
		return device.NewController(devices.ControllerOptions{
			Config: Settings().Device,
		})
	}

	if deviceRegistry == nil {
		return create()
	}
	return deviceRegistry.GetOrCreate(device.ID(), create)
}

// findController resolves deviceID and negotiates its controller.
func findController(deviceID string) (*devices.AndroidDevice, *devices.Controller, error) {
	device, err := FindDeviceOrAutoSelect(deviceID)
	if err != nil {
		return nil, nil, fmt.Errorf("error finding device: %w", err)
	}
	controller, err := ControllerFor(device)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up device %s: %w", device.ID(), err)
	}
	return device, controller, nil
}
