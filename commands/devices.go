package commands

import (
	"github.com/mobile-next/adbctl/devices"
)

// DevicesCommand lists all connected devices
func DevicesCommand(showAll bool) *CommandResponse {
	server, err := Server()
	if err != nil {
		return NewErrorResponse(err)
	}

	deviceInfoList, err := devices.GetDeviceInfoList(server, showAll)
	if err != nil {
		return NewErrorResponse(err)
	}

	return NewSuccessResponse(map[string]interface{}{
		"devices": deviceInfoList,
	})
}
