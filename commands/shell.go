package commands

import (
	"fmt"
	"strings"
)

// ShellRequest represents the parameters for running a device command
type ShellRequest struct {
	DeviceID string   `json:"deviceId"`
	Command  []string `json:"command"`
}

// ShellResponse carries the combined output of the command
type ShellResponse struct {
	Output string `json:"output"`
}

// ShellCommand runs a command through the device shell
func ShellCommand(req ShellRequest) *CommandResponse {
	cmd := strings.TrimSpace(strings.Join(req.Command, " "))
	if cmd == "" {
		return NewErrorResponse(fmt.Errorf("command is required"))
	}

	targetDevice, err := FindDeviceOrAutoSelect(req.DeviceID)
	if err != nil {
		return NewErrorResponse(fmt.Errorf("error finding device: %v", err))
	}
	dev, err := targetDevice.Adb()
	if err != nil {
		return NewErrorResponse(err)
	}

	output, err := dev.Shell(cmd)
	if err != nil {
		return NewErrorResponse(fmt.Errorf("failed to run '%s' on device %s: %v", cmd, targetDevice.ID(), err))
	}

	return NewSuccessResponse(ShellResponse{Output: string(output)})
}
