package commands

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mobile-next/adbctl/adb"
)

const regularFile = 0o100000

// PushRequest represents the parameters for copying a file to a device
type PushRequest struct {
	DeviceID   string `json:"deviceId"`
	LocalPath  string `json:"localPath"`
	RemotePath string `json:"remotePath"`
	// Octal permission bits such as "0644". Empty keeps the local file's.
	Mode string `json:"mode,omitempty"`
}

// parsePushMode turns "0755" into a regular file mode for the sync protocol.
func parsePushMode(mode string, local os.FileMode) (uint32, error) {
	if mode == "" {
		if local.Perm() == 0 {
			return adb.DefaultPushMode, nil
		}
		return uint32(regularFile | local.Perm()), nil
	}
	perm, err := strconv.ParseUint(strings.TrimPrefix(mode, "0o"), 8, 32)
	if err != nil || perm > 0o7777 {
		return 0, fmt.Errorf("invalid mode '%s', expected octal permissions such as 0644", mode)
	}
	return uint32(regularFile | perm), nil
}

// PushCommand copies a local file to the device
func PushCommand(req PushRequest) *CommandResponse {
	if req.LocalPath == "" || req.RemotePath == "" {
		return NewErrorResponse(fmt.Errorf("local and remote paths are required"))
	}

	file, err := os.Open(req.LocalPath)
	if err != nil {
		return NewErrorResponse(fmt.Errorf("failed to open %s: %v", req.LocalPath, err))
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return NewErrorResponse(fmt.Errorf("failed to stat %s: %v", req.LocalPath, err))
	}
	if stat.IsDir() {
		return NewErrorResponse(fmt.Errorf("%s is a directory", req.LocalPath))
	}

	mode, err := parsePushMode(req.Mode, stat.Mode())
	if err != nil {
		return NewErrorResponse(err)
	}

	// a directory target keeps the local file name
	remote := req.RemotePath
	if strings.HasSuffix(remote, "/") {
		remote = path.Join(remote, filepath.Base(req.LocalPath))
	}

	targetDevice, err := FindDeviceOrAutoSelect(req.DeviceID)
	if err != nil {
		return NewErrorResponse(fmt.Errorf("error finding device: %v", err))
	}
	dev, err := targetDevice.Adb()
	if err != nil {
		return NewErrorResponse(err)
	}

	err = dev.Push(remote, file, mode, stat.ModTime())
	if err != nil {
		return NewErrorResponse(fmt.Errorf("failed to push %s to device %s: %v", req.LocalPath, targetDevice.ID(), err))
	}

	return NewSuccessResponse(map[string]interface{}{
		"message": fmt.Sprintf("Pushed %s to %s on device %s", req.LocalPath, remote, targetDevice.ID()),
		"bytes":   stat.Size(),
		"mode":    fmt.Sprintf("%o", mode&^regularFile),
	})
}
