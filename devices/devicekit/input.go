package devicekit

import (
	"fmt"
	"time"
)

func (c *Client) Tap(x, y int, hold time.Duration) error {
	params := map[string]interface{}{
		"x":        x,
		"y":        y,
		"deviceId": "",
	}
	if hold > 0 {
		params["duration"] = hold.Seconds()
	}
	_, err := c.call("device.io.tap", params)
	return err
}

// Touch injects one motion event. action is "down", "up" or "move".
func (c *Client) Touch(action string, x, y, pointer int) error {
	if err := checkAction(action); err != nil {
		return err
	}
	params := map[string]interface{}{
		"action":   action,
		"x":        x,
		"y":        y,
		"pointer":  pointer,
		"deviceId": "",
	}
	_, err := c.call("device.io.touch", params)
	return err
}

// Key injects one key event. action is "down" or "up".
func (c *Client) Key(action string, keycode, metastate int) error {
	if action != "down" && action != "up" {
		return fmt.Errorf("unsupported key action: %s", action)
	}
	params := map[string]interface{}{
		"action":    action,
		"keycode":   keycode,
		"metaState": metastate,
		"deviceId":  "",
	}
	_, err := c.call("device.io.key", params)
	return err
}

func (c *Client) Text(text string) error {
	params := map[string]interface{}{
		"text":     text,
		"deviceId": "",
	}
	_, err := c.call("device.io.text", params)
	return err
}

func checkAction(action string) error {
	switch action {
	case "down", "up", "move":
		return nil
	}
	return fmt.Errorf("unsupported touch action: %s", action)
}
