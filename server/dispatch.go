package server

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mobile-next/adbctl/commands"
)

// HandlerFunc is the signature for JSON-RPC method handlers
type HandlerFunc func(params json.RawMessage) (interface{}, error)

var okResponse = map[string]interface{}{"status": "ok"}

// GetMethodRegistry returns a map of method names to handler functions
// This is used by both the HTTP and the WebSocket endpoints
func GetMethodRegistry() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		"devices":       handleDevicesList,
		"screenshot":    handleScreenshot,
		"io_tap":        handleIoTap,
		"io_longpress":  handleIoLongPress,
		"io_text":       handleIoText,
		"io_button":     handleIoButton,
		"io_swipe":      handleIoSwipe,
		"device_info":   handleDeviceInfo,
		"device_reboot": handleDeviceReboot,
		"shell":         handleShell,
		"push":          handlePush,
		"connect":       handleConnect,
		"disconnect":    handleDisconnect,
	}
}

// Execute dispatches a method call using the registry
func Execute(method string, params json.RawMessage) (interface{}, error) {
	handler, exists := GetMethodRegistry()[method]
	if !exists {
		return nil, fmt.Errorf("method not found: %s", method)
	}

	return handler(params)
}

// decodeParams unmarshals params into v, listing the expected fields on failure.
func decodeParams(params json.RawMessage, v interface{}, fields ...string) error {
	expected := strings.Join(fields, ", ")
	if len(params) == 0 {
		return fmt.Errorf("'params' is required with fields: %s", expected)
	}
	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("invalid parameters: %v. Expected fields: %s", err, expected)
	}
	return nil
}

// requireFields fails when a field is absent, so that a zero coordinate is
// told apart from a missing one.
func requireFields(params json.RawMessage, fields ...string) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(params, &raw); err != nil {
		return fmt.Errorf("invalid parameters format")
	}
	for _, field := range fields {
		if _, exists := raw[field]; !exists {
			return fmt.Errorf("'%s' is required", field)
		}
	}
	return nil
}

func resultOf(response *commands.CommandResponse) (interface{}, error) {
	if response.Status == "error" {
		return nil, fmt.Errorf("%s", response.Error)
	}
	return response.Data, nil
}

func okOf(response *commands.CommandResponse) (interface{}, error) {
	if _, err := resultOf(response); err != nil {
		return nil, err
	}
	return okResponse, nil
}

func handleDevicesList(params json.RawMessage) (interface{}, error) {
	var req struct {
		All bool `json:"all"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, fmt.Errorf("invalid parameters: %v", err)
		}
	}
	return resultOf(commands.DevicesCommand(req.All))
}

func handleScreenshot(params json.RawMessage) (interface{}, error) {
	var req commands.ScreenshotRequest
	if len(params) > 0 {
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, fmt.Errorf("invalid parameters: %v", err)
		}
	}
	// always return base64 data, never write on the server's filesystem
	req.OutputPath = "-"

	data, err := resultOf(commands.ScreenshotCommand(req))
	if err != nil {
		return nil, err
	}

	screenshot, ok := data.(commands.ScreenshotResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response format")
	}
	return map[string]interface{}{
		"format":    screenshot.Format,
		"width":     screenshot.Width,
		"height":    screenshot.Height,
		"timestamp": screenshot.Timestamp,
		"data":      fmt.Sprintf("data:image/%s;base64,%s", screenshot.Format, screenshot.Data),
	}, nil
}

func handleIoTap(params json.RawMessage) (interface{}, error) {
	var req commands.TapRequest
	if err := decodeParams(params, &req, "deviceId", "x", "y"); err != nil {
		return nil, err
	}
	if err := requireFields(params, "x", "y"); err != nil {
		return nil, err
	}
	return okOf(commands.TapCommand(req))
}

func handleIoLongPress(params json.RawMessage) (interface{}, error) {
	var req commands.LongPressRequest
	if err := decodeParams(params, &req, "deviceId", "x", "y", "duration"); err != nil {
		return nil, err
	}
	if err := requireFields(params, "x", "y"); err != nil {
		return nil, err
	}
	return okOf(commands.LongPressCommand(req))
}

func handleIoText(params json.RawMessage) (interface{}, error) {
	var req commands.TextRequest
	if err := decodeParams(params, &req, "deviceId", "text"); err != nil {
		return nil, err
	}
	return okOf(commands.TextCommand(req))
}

func handleIoButton(params json.RawMessage) (interface{}, error) {
	var req commands.ButtonRequest
	if err := decodeParams(params, &req, "deviceId", "button"); err != nil {
		return nil, err
	}
	return okOf(commands.ButtonCommand(req))
}

func handleIoSwipe(params json.RawMessage) (interface{}, error) {
	var req commands.SwipeRequest
	if err := decodeParams(params, &req, "deviceId", "x1", "y1", "x2", "y2", "duration", "hold", "interpolation"); err != nil {
		return nil, err
	}
	if err := requireFields(params, "x1", "y1", "x2", "y2"); err != nil {
		return nil, err
	}
	return okOf(commands.SwipeCommand(req))
}

func handleDeviceInfo(params json.RawMessage) (interface{}, error) {
	var req commands.InfoRequest
	if err := decodeParams(params, &req, "deviceId", "negotiate"); err != nil {
		return nil, err
	}
	return resultOf(commands.InfoCommand(req))
}

func handleDeviceReboot(params json.RawMessage) (interface{}, error) {
	var req commands.RebootRequest
	if err := decodeParams(params, &req, "deviceId"); err != nil {
		return nil, err
	}
	return okOf(commands.RebootCommand(req))
}

func handleShell(params json.RawMessage) (interface{}, error) {
	var req commands.ShellRequest
	if err := decodeParams(params, &req, "deviceId", "command"); err != nil {
		return nil, err
	}
	return resultOf(commands.ShellCommand(req))
}

func handlePush(params json.RawMessage) (interface{}, error) {
	var req commands.PushRequest
	if err := decodeParams(params, &req, "deviceId", "localPath", "remotePath", "mode"); err != nil {
		return nil, err
	}
	return resultOf(commands.PushCommand(req))
}

func handleConnect(params json.RawMessage) (interface{}, error) {
	var req commands.ConnectRequest
	if err := decodeParams(params, &req, "address"); err != nil {
		return nil, err
	}
	return resultOf(commands.ConnectCommand(req))
}

func handleDisconnect(params json.RawMessage) (interface{}, error) {
	var req commands.DisconnectRequest
	if err := decodeParams(params, &req, "address", "offline"); err != nil {
		return nil, err
	}
	return resultOf(commands.DisconnectCommand(req))
}
