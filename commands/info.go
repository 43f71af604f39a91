package commands

import (
	"fmt"

	"github.com/mobile-next/adbctl/devices"
)

// InfoRequest represents the parameters for a device info command
type InfoRequest struct {
	DeviceID string `json:"deviceId"`
	// Negotiate also reports SDK level and the strategies in use.
	Negotiate bool `json:"negotiate,omitempty"`
}

// InfoResponse is FullDeviceInfo plus what controller negotiation found.
type InfoResponse struct {
	*devices.FullDeviceInfo
	Serial       string   `json:"serial,omitempty"`
	Identifier   string   `json:"identifier,omitempty"`
	SDK          int      `json:"sdk,omitempty"`
	Input        string   `json:"input,omitempty"`
	Screenshot   string   `json:"screenshot,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	Hypervisor   string   `json:"hypervisor,omitempty"`
	NatLoopback  string   `json:"natLoopback,omitempty"`
	HostAddress  string   `json:"hostReachableAddress,omitempty"`
}

// addNetworkFacts reports how the host and an emulator can reach each other.
func (r *InfoResponse) addNetworkFacts(p *devices.Probe) {
	if hv, ok := p.Hypervisor(); ok {
		r.Hypervisor = string(hv)
	}
	if addr, ok := p.NatLoopback(); ok {
		r.NatLoopback = addr
	}
	if addr, ok := p.HostReachableAddress(); ok {
		r.HostAddress = addr
	}
}

func InfoCommand(req InfoRequest) *CommandResponse {
	targetDevice, err := FindDeviceOrAutoSelect(req.DeviceID)
	if err != nil {
		return NewErrorResponse(fmt.Errorf("error finding device: %v", err))
	}

	info, err := targetDevice.Info()
	if err != nil {
		return NewErrorResponse(fmt.Errorf("error getting device info: %v", err))
	}

	response := InfoResponse{FullDeviceInfo: info}
	if !req.Negotiate || targetDevice.State() != devices.StateOnline {
		return NewSuccessResponse(response)
	}

	controller, err := ControllerFor(targetDevice)
	if err != nil {
		return NewErrorResponse(fmt.Errorf("failed to set up device %s: %v", targetDevice.ID(), err))
	}
	response.Serial = controller.Serial()
	response.Identifier = controller.Identifier()
	response.SDK = controller.SDKVersion()
	response.Input = controller.Input().String()
	response.Screenshot = controller.ScreenshotStrategy().String()
	response.Capabilities = controller.Capabilities().Names()
	response.addNetworkFacts(controller.Probe())

	return NewSuccessResponse(response)
}
