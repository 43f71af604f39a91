package devices

import "strings"

// Capabilities is a set of optional features a strategy provides.
type Capabilities uint32

const (
	// Frames carry the time they were captured on the device.
	CapScreenshotTimestamp Capabilities = 1 << iota
	// Input events are injected without spawning a process per event.
	CapLowLatencyInput
	// Raw touch down/move/up events.
	CapTouchEvents
	// Raw key down/up events.
	CapKeyboardEvents
	// Touch events for pointers other than 0.
	CapMultitouchEvents
)

var capabilityNames = []struct {
	flag Capabilities
	name string
}{
	{CapScreenshotTimestamp, "SCREENSHOT_TIMESTAMP"},
	{CapLowLatencyInput, "LOW_LATENCY_INPUT"},
	{CapTouchEvents, "TOUCH_EVENTS"},
	{CapKeyboardEvents, "KEYBOARD_EVENTS"},
	{CapMultitouchEvents, "MULTITOUCH_EVENTS"},
}

// Has reports whether every flag in want is set.
func (c Capabilities) Has(want Capabilities) bool {
	return c&want == want
}

func (c Capabilities) String() string {
	if c == 0 {
		return "NONE"
	}
	var names []string
	for _, n := range capabilityNames {
		if c&n.flag != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// Names lists the set flags, for JSON output.
func (c Capabilities) Names() []string {
	names := []string{}
	for _, n := range capabilityNames {
		if c&n.flag != 0 {
			names = append(names, n.name)
		}
	}
	return names
}
