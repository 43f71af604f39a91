package commands

import (
	"fmt"
	"time"
)

const connectTimeout = 10 * time.Second

// ConnectRequest represents the parameters for connecting to a network device
type ConnectRequest struct {
	Address string `json:"address"`
}

// DisconnectRequest represents the parameters for a disconnect command
type DisconnectRequest struct {
	Address string `json:"address,omitempty"`
	// Offline disconnects every device adb reports offline.
	Offline bool `json:"offline,omitempty"`
}

// ConnectCommand connects the adb server to a device over the network
func ConnectCommand(req ConnectRequest) *CommandResponse {
	if req.Address == "" {
		return NewErrorResponse(fmt.Errorf("address is required"))
	}

	server, err := Server()
	if err != nil {
		return NewErrorResponse(err)
	}

	err = server.ParanoidConnect(req.Address, connectTimeout)
	if err != nil {
		return NewErrorResponse(fmt.Errorf("failed to connect to %s: %v", req.Address, err))
	}

	return NewSuccessResponse(map[string]interface{}{
		"message": fmt.Sprintf("Connected to %s", req.Address),
	})
}

// DisconnectCommand drops a network device, or every offline one
func DisconnectCommand(req DisconnectRequest) *CommandResponse {
	if req.Address == "" && !req.Offline {
		return NewErrorResponse(fmt.Errorf("address is required unless --offline is set"))
	}

	server, err := Server()
	if err != nil {
		return NewErrorResponse(err)
	}

	if req.Offline {
		server.DisconnectAllOffline()
		return NewSuccessResponse(map[string]interface{}{
			"message": "Disconnected offline devices",
		})
	}

	err = server.Disconnect(req.Address)
	if err != nil {
		return NewErrorResponse(fmt.Errorf("failed to disconnect %s: %v", req.Address, err))
	}
	if registry := GetRegistry(); registry != nil {
		registry.Remove(req.Address)
	}

	return NewSuccessResponse(map[string]interface{}{
		"message": fmt.Sprintf("Disconnected %s", req.Address),
	})
}
