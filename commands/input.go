package commands

import (
	"fmt"
	"time"

	"github.com/mobile-next/adbctl/devices"
)

// how long a long press holds the touch down
const longPressDuration = time.Second

// TapRequest represents the parameters for a tap command
type TapRequest struct {
	DeviceID string `json:"deviceId"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
}

// LongPressRequest represents the parameters for a long press command
type LongPressRequest struct {
	DeviceID string `json:"deviceId"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	// Duration in milliseconds, defaults to one second.
	Duration int `json:"duration,omitempty"`
}

// TextRequest represents the parameters for a text input command
type TextRequest struct {
	DeviceID string `json:"deviceId"`
	Text     string `json:"text"`
}

// ButtonRequest represents the parameters for a button press command
type ButtonRequest struct {
	DeviceID string `json:"deviceId"`
	Button   string `json:"button"`
}

// SwipeRequest represents the parameters for a swipe command
type SwipeRequest struct {
	DeviceID string `json:"deviceId"`
	X1       int    `json:"x1"`
	Y1       int    `json:"y1"`
	X2       int    `json:"x2"`
	Y2       int    `json:"y2"`
	// Duration in milliseconds, defaults to one second.
	Duration int `json:"duration,omitempty"`
	// Hold before lifting the finger, in milliseconds.
	Hold int `json:"hold,omitempty"`
	// "linear" or "spline".
	Interpolation string `json:"interpolation,omitempty"`
}

func validateCoordinates(x, y int) error {
	if x < 0 || y < 0 {
		return fmt.Errorf("x and y coordinates must be non-negative, got x=%d, y=%d", x, y)
	}
	return nil
}

// TapCommand performs a tap operation on the specified device
func TapCommand(req TapRequest) *CommandResponse {
	if err := validateCoordinates(req.X, req.Y); err != nil {
		return NewErrorResponse(err)
	}

	targetDevice, controller, err := findController(req.DeviceID)
	if err != nil {
		return NewErrorResponse(err)
	}

	err = controller.Input().TouchTap(req.X, req.Y, 0)
	if err != nil {
		return NewErrorResponse(fmt.Errorf("failed to tap on device %s: %v", targetDevice.ID(), err))
	}

	return NewSuccessResponse(map[string]interface{}{
		"message": fmt.Sprintf("Tapped on device %s at (%d,%d)", targetDevice.ID(), req.X, req.Y),
	})
}

// LongPressCommand performs a long press operation on the specified device
func LongPressCommand(req LongPressRequest) *CommandResponse {
	if err := validateCoordinates(req.X, req.Y); err != nil {
		return NewErrorResponse(err)
	}

	hold := longPressDuration
	if req.Duration > 0 {
		hold = time.Duration(req.Duration) * time.Millisecond
	}

	targetDevice, controller, err := findController(req.DeviceID)
	if err != nil {
		return NewErrorResponse(err)
	}

	err = controller.Input().TouchTap(req.X, req.Y, hold)
	if err != nil {
		return NewErrorResponse(fmt.Errorf("failed to long press on device %s: %v", targetDevice.ID(), err))
	}

	return NewSuccessResponse(map[string]interface{}{
		"message": fmt.Sprintf("Long pressed on device %s at (%d,%d)", targetDevice.ID(), req.X, req.Y),
	})
}

// TextCommand sends text input to the specified device
func TextCommand(req TextRequest) *CommandResponse {
	if req.Text == "" {
		return NewErrorResponse(fmt.Errorf("text is required"))
	}

	targetDevice, controller, err := findController(req.DeviceID)
	if err != nil {
		return NewErrorResponse(err)
	}

	err = controller.Input().SendText(req.Text)
	if err != nil {
		return NewErrorResponse(fmt.Errorf("failed to send text to device %s: %v", targetDevice.ID(), err))
	}

	return NewSuccessResponse(map[string]interface{}{
		"message": fmt.Sprintf("Sent text to device %s", targetDevice.ID()),
	})
}

// ButtonCommand presses a hardware button on the specified device
func ButtonCommand(req ButtonRequest) *CommandResponse {
	if req.Button == "" {
		return NewErrorResponse(fmt.Errorf("button name is required"))
	}

	keycode, err := devices.ButtonKeycode(req.Button)
	if err != nil {
		return NewErrorResponse(err)
	}

	targetDevice, controller, err := findController(req.DeviceID)
	if err != nil {
		return NewErrorResponse(err)
	}

	err = controller.Input().SendKey(keycode, 0)
	if err != nil {
		return NewErrorResponse(fmt.Errorf("failed to press button on device %s: %v", targetDevice.ID(), err))
	}

	return NewSuccessResponse(map[string]interface{}{
		"message": fmt.Sprintf("Pressed button '%s' on device %s", req.Button, targetDevice.ID()),
	})
}

func swipeOptions(req SwipeRequest) (devices.SwipeOptions, error) {
	opts := devices.SwipeOptions{
		Duration:          time.Duration(req.Duration) * time.Millisecond,
		HoldBeforeRelease: time.Duration(req.Hold) * time.Millisecond,
	}
	switch devices.Interpolation(req.Interpolation) {
	case "", devices.InterpolationLinear:
		opts.Interpolation = devices.InterpolationLinear
	case devices.InterpolationSpline:
		opts.Interpolation = devices.InterpolationSpline
	default:
		return opts, fmt.Errorf("unknown interpolation '%s', expected 'linear' or 'spline'", req.Interpolation)
	}
	if req.Duration < 0 || req.Hold < 0 {
		return opts, fmt.Errorf("duration and hold must be non-negative")
	}
	return opts, nil
}

// SwipeCommand performs a swipe operation on the specified device
func SwipeCommand(req SwipeRequest) *CommandResponse {
	opts, err := swipeOptions(req)
	if err != nil {
		return NewErrorResponse(err)
	}

	targetDevice, controller, err := findController(req.DeviceID)
	if err != nil {
		return NewErrorResponse(err)
	}

	err = controller.Input().TouchSwipe(req.X1, req.Y1, req.X2, req.Y2, opts)
	if err != nil {
		return NewErrorResponse(fmt.Errorf("failed to swipe on device %s: %v", targetDevice.ID(), err))
	}

	return NewSuccessResponse(map[string]interface{}{
		"message": fmt.Sprintf("Swiped on device %s from (%d,%d) to (%d,%d)", targetDevice.ID(), req.X1, req.Y1, req.X2, req.Y2),
	})
}
