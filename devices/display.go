package devices

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	cmdDisplayLine     = regexp.MustCompile(`^Display id (\d+):.*uniqueId "local:(\d+)"`)
	dumpsysViewport    = regexp.MustCompile(`DisplayViewport\{[^}]*displayId=(\d+), uniqueId='local:(\d+)'`)
	surfaceFlingerLine = regexp.MustCompile(`^Display (\d+) \(HWC display (\d+)\)`)
)

// resolvePhysicalDisplay maps a logical display id to the physical id that
// `screencap -d` expects.
func resolvePhysicalDisplay(dev Executor, displayID int) (string, error) {
	if out, err := dev.Exec("cmd display get-displays"); err == nil {
		if id := parseDisplayIdFromCmdDisplay(string(out), displayID); id != "" {
			return id, nil
		}
	}
	if out, err := dev.Exec("dumpsys display"); err == nil {
		if id := parseDisplayIdFromDumpsysViewport(string(out), displayID); id != "" {
			return id, nil
		}
	}
	if out, err := dev.Exec("dumpsys SurfaceFlinger --display-id"); err == nil {
		if id := parseDisplayIdFromSurfaceFlinger(string(out), displayID); id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not find physical id of display %d on %s", displayID, dev.Serial())
}

// parseDisplayIdFromCmdDisplay reads `cmd display get-displays`.
func parseDisplayIdFromCmdDisplay(output string, displayID int) string {
	for _, line := range strings.Split(output, "\n") {
		m := cmdDisplayLine.FindStringSubmatch(strings.TrimSpace(line))
		if m != nil && m[1] == strconv.Itoa(displayID) {
			return m[2]
		}
	}
	return ""
}

// parseDisplayIdFromDumpsysViewport reads the mViewports list of `dumpsys display`.
func parseDisplayIdFromDumpsysViewport(dumpsys string, displayID int) string {
	for _, m := range dumpsysViewport.FindAllStringSubmatch(dumpsys, -1) {
		if m[1] == strconv.Itoa(displayID) {
			return m[2]
		}
	}
	return ""
}

// parseDisplayIdFromSurfaceFlinger reads `dumpsys SurfaceFlinger --display-id`,
// which orders displays by hardware composer index.
func parseDisplayIdFromSurfaceFlinger(output string, displayID int) string {
	for _, line := range strings.Split(output, "\n") {
		m := surfaceFlingerLine.FindStringSubmatch(strings.TrimSpace(line))
		if m != nil && m[2] == strconv.Itoa(displayID) {
			return m[1]
		}
	}
	return ""
}
