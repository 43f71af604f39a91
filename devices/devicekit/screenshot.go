package devicekit

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// screenshots can take a while to encode on slow devices
const screenshotTimeout = 15 * time.Second

type screenshotReply struct {
	Data      string `json:"data"`
	Port      int    `json:"port"`
	Timestamp int64  `json:"timestamp"`
}

func (r screenshotReply) time() time.Time {
	if r.Timestamp <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(r.Timestamp)
}

func (c *Client) screenshot(params map[string]interface{}) (screenshotReply, error) {
	params["format"] = "png"
	params["deviceId"] = ""

	var reply screenshotReply
	result, err := c.callWithTimeout("device.screenshot", params, screenshotTimeout)
	if err != nil {
		return reply, err
	}
	if err := json.Unmarshal(result, &reply); err != nil {
		return reply, fmt.Errorf("failed to parse screenshot response: %w", err)
	}
	return reply, nil
}

// Screenshot returns a PNG of the screen and the device time it was taken.
// The timestamp is zero when the agent does not report one.
func (c *Client) Screenshot() ([]byte, time.Time, error) {
	reply, err := c.screenshot(map[string]interface{}{})
	if err != nil {
		return nil, time.Time{}, err
	}

	b64 := reply.Data
	if idx := strings.Index(b64, ","); idx != -1 {
		b64 = b64[idx+1:]
	}
	decoded, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return decoded, reply.time(), nil
}

// ScreenshotConnect has the agent capture a PNG, dial address:port, send
// cookie followed by the image and close the connection.
func (c *Client) ScreenshotConnect(address string, port int, cookie string) (time.Time, error) {
	reply, err := c.screenshot(map[string]interface{}{
		"transport": "connect",
		"address":   address,
		"port":      port,
		"cookie":    cookie,
	})
	if err != nil {
		return time.Time{}, err
	}
	return reply.time(), nil
}

// ScreenshotListen has the agent capture a PNG and serve it to the first
// connection on address. It returns the port the agent listens on.
func (c *Client) ScreenshotListen(address string) (int, time.Time, error) {
	reply, err := c.screenshot(map[string]interface{}{
		"transport": "listen",
		"address":   address,
		"port":      0,
	})
	if err != nil {
		return 0, time.Time{}, err
	}
	if reply.Port <= 0 || reply.Port > 65535 {
		return 0, time.Time{}, fmt.Errorf("agent reported invalid screenshot port %d", reply.Port)
	}
	return reply.Port, reply.time(), nil
}
