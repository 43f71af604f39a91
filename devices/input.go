package devices

import (
	"math"
	"math/rand"
	"time"
)

type EventAction int

const (
	ActionDown EventAction = iota
	ActionUp
	ActionMove
)

func (a EventAction) String() string {
	switch a {
	case ActionDown:
		return "DOWN"
	case ActionUp:
		return "UP"
	default:
		return "MOVE"
	}
}

type Interpolation string

const (
	InterpolationLinear Interpolation = "linear"
	// eases out towards the end point like a flick
	InterpolationSpline Interpolation = "spline"
)

// SwipeOptions shapes a swipe gesture.
type SwipeOptions struct {
	Duration          time.Duration
	HoldBeforeRelease time.Duration
	Interpolation     Interpolation
}

const (
	DefaultSwipeDuration = time.Second
	swipeFrameInterval   = 10 * time.Millisecond
)

// InputStrategy injects input into a device.
type InputStrategy interface {
	InputCapabilities() Capabilities

	// TouchTap taps at x, y, holding for hold when it is positive.
	TouchTap(x, y int, hold time.Duration) error
	TouchSwipe(x0, y0, x1, y1 int, opts SwipeOptions) error
	// TouchEvent needs CapTouchEvents, and CapMultitouchEvents for pointer != 0.
	TouchEvent(action EventAction, x, y int, pointer int) error
	// KeyEvent needs CapKeyboardEvents.
	KeyEvent(action EventAction, keycode int, metastate int) error
	SendKey(keycode int, metastate int) error
	SendText(text string) error

	Close() error
	String() string
}

// interpolator returns the fraction of the path covered at progress t in [0, 1].
type interpolator func(t float64) float64

func linear(t float64) float64 {
	return t
}

// newSplineInterpolator returns a monotone cubic ease-out through (0, 0),
// a randomized knee and (1, 1), ending with zero velocity.
func newSplineInterpolator(rng *rand.Rand) interpolator {
	kx := 0.7 + 0.1*rng.Float64()
	ky := 0.9 + 0.05*rng.Float64()

	hermite := func(t, p0, p1, m0, m1 float64) float64 {
		t2, t3 := t*t, t*t*t
		return (2*t3-3*t2+1)*p0 + (t3-2*t2+t)*m0 + (-2*t3+3*t2)*p1 + (t3-t2)*m1
	}

	// slopes: steep start, gentle through the knee, flat at the end
	m0 := 1.5 * ky / kx
	mk := math.Min((1-ky)/(1-kx), ky/kx)

	return func(t float64) float64 {
		switch {
		case t <= 0:
			return 0
		case t >= 1:
			return 1
		case t < kx:
			u := t / kx
			return hermite(u, 0, ky, m0*kx, mk*kx)
		default:
			u := (t - kx) / (1 - kx)
			return hermite(u, ky, 1, mk*(1-kx), 0)
		}
	}
}

func interpolatorFor(kind Interpolation) interpolator {
	if kind == InterpolationSpline {
		return newSplineInterpolator(rand.New(rand.NewSource(time.Now().UnixNano())))
	}
	return linear
}

// swipeWithEvents drives a swipe as DOWN, MOVE events paced at
// swipeFrameInterval, then UP.
func swipeWithEvents(c clock, touch func(EventAction, int, int) error, x0, y0, x1, y1 int, opts SwipeOptions) error {
	duration := opts.Duration
	if duration <= 0 {
		duration = DefaultSwipeDuration
	}
	curve := interpolatorFor(opts.Interpolation)

	if err := touch(ActionDown, x0, y0); err != nil {
		return err
	}

	start := c.Now()
	next := start
	for {
		next = next.Add(swipeFrameInterval)
		if d := next.Sub(c.Now()); d > 0 {
			c.Sleep(d)
		}
		t := float64(c.Now().Sub(start)) / float64(duration)
		if t >= 1 {
			break
		}
		f := curve(t)
		x := x0 + int(math.Round(float64(x1-x0)*f))
		y := y0 + int(math.Round(float64(y1-y0)*f))
		if err := touch(ActionMove, x, y); err != nil {
			return err
		}
	}

	if err := touch(ActionMove, x1, y1); err != nil {
		return err
	}
	if opts.HoldBeforeRelease > 0 {
		c.Sleep(opts.HoldBeforeRelease)
	}
	return touch(ActionUp, x1, y1)
}
