package devices

import (
	"fmt"
	"strings"
	"time"

	"github.com/mobile-next/adbctl/utils"
)

const (
	// `input -d <display>`
	multiDisplayInputSDK = 29
	// `input motionevent` exists but each event costs a process spawn
	motionEventSDK = 28
	// `input motionevent` is fast enough to drive gestures
	lowLatencyMotionEventSDK = 30
)

// shellInput injects input through the `input` command.
type shellInput struct {
	dev   Executor
	cmd   string
	caps  Capabilities
	clock clock
}

func newShellInput(dev Executor, sdk int, displayID int, c clock) (*shellInput, error) {
	cmd := "input"
	if displayID != 0 {
		if sdk < multiDisplayInputSDK {
			return nil, unsupported("input on display", "display %d needs SDK %d, device has %d",
				displayID, multiDisplayInputSDK, sdk)
		}
		cmd = fmt.Sprintf("input -d %d", displayID)
	}

	var caps Capabilities
	switch {
	case sdk >= lowLatencyMotionEventSDK:
		caps = CapLowLatencyInput | CapTouchEvents
	case sdk >= motionEventSDK:
		caps = CapTouchEvents
	}

	return &shellInput{dev: dev, cmd: cmd, caps: caps, clock: c}, nil
}

func (s *shellInput) String() string {
	return fmt.Sprintf("shell input (%s)", s.cmd)
}

func (s *shellInput) InputCapabilities() Capabilities {
	return s.caps
}

func (s *shellInput) run(args string) error {
	_, err := s.dev.Exec(s.cmd + " " + args)
	return err
}

func (s *shellInput) TouchTap(x, y int, hold time.Duration) error {
	if hold > 0 {
		return s.run(fmt.Sprintf("swipe %d %d %d %d %d", x, y, x, y, hold.Milliseconds()))
	}
	return s.run(fmt.Sprintf("tap %d %d", x, y))
}

func (s *shellInput) TouchSwipe(x0, y0, x1, y1 int, opts SwipeOptions) error {
	if s.caps.Has(CapLowLatencyInput) {
		touch := func(action EventAction, x, y int) error {
			return s.TouchEvent(action, x, y, 0)
		}
		return swipeWithEvents(s.clock, touch, x0, y0, x1, y1, opts)
	}

	if opts.HoldBeforeRelease > 0 {
		utils.Verbose("%s: hold before release is ignored by input swipe", s.dev.Serial())
	}
	if opts.Interpolation != "" && opts.Interpolation != InterpolationLinear {
		utils.Verbose("%s: %s interpolation is ignored by input swipe", s.dev.Serial(), opts.Interpolation)
	}
	duration := opts.Duration
	if duration <= 0 {
		duration = DefaultSwipeDuration
	}
	return s.run(fmt.Sprintf("swipe %d %d %d %d %d", x0, y0, x1, y1, duration.Milliseconds()))
}

func (s *shellInput) TouchEvent(action EventAction, x, y int, pointer int) error {
	if !s.caps.Has(CapTouchEvents) {
		return unsupported("touch events", "input motionevent needs SDK %d", motionEventSDK)
	}
	if pointer != 0 {
		return unsupported("multitouch events", "input motionevent has a single pointer")
	}
	return s.run(fmt.Sprintf("motionevent %s %d %d", action, x, y))
}

func (s *shellInput) KeyEvent(action EventAction, keycode int, metastate int) error {
	return unsupported("key events", "input keyevent cannot hold a key down")
}

func (s *shellInput) SendKey(keycode int, metastate int) error {
	if metastate != 0 {
		utils.Verbose("%s: metastate %#x is ignored by input keyevent", s.dev.Serial(), metastate)
	}
	return s.run(fmt.Sprintf("keyevent %d", keycode))
}

func (s *shellInput) SendText(text string) error {
	if text == "" {
		return nil
	}
	if !isAscii(text) {
		return unsupported("text input", "input text only types ASCII")
	}
	return s.run("text " + escapeShellText(text))
}

func (s *shellInput) Close() error {
	return nil
}

func isAscii(text string) bool {
	for _, r := range text {
		if r > 127 {
			return false
		}
	}
	return true
}

// escapeShellText backslash-escapes characters the device shell would interpret.
func escapeShellText(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch r {
		case ' ', '\\', '"', '\'', '`', '$', '&', '|', ';', '<', '>', '(', ')', '*', '?', '~', '#', '!', '[', ']', '{', '}':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
