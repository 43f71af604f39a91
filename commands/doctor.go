package commands

import (
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/mobile-next/adbctl/config"
)

type DoctorInfo struct {
	Version       string   `json:"version"`
	OS            string   `json:"os"`
	OSVersion     string   `json:"os_version"`
	AndroidHome   string   `json:"android_home"`
	ConfigPath    string   `json:"config_path"`
	ServerAddress string   `json:"server_address"`
	ServerVersion int      `json:"server_version,omitempty"`
	ServerError   string   `json:"server_error,omitempty"`
	ADBBinaries   []string `json:"adb_binaries"`
	ADBVersion    string   `json:"adb_version,omitempty"`
	DeviceCount   int      `json:"device_count"`
}

func getAdbVersion(adbPath string) string {
	if adbPath == "" {
		return ""
	}

	output, err := exec.Command(adbPath, "version").CombinedOutput()
	if err != nil {
		return ""
	}

	// first line reads "Android Debug Bridge version x.y.z"
	for _, line := range strings.Split(string(output), "\n") {
		if strings.Contains(line, "Android Debug Bridge version") {
			return strings.TrimSpace(line)
		}
	}

	return strings.TrimSpace(string(output))
}

func getOSVersion() string {
	switch runtime.GOOS {
	case "darwin":
		output, err := exec.Command("sw_vers", "-productVersion").CombinedOutput()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(output))
	case "windows":
		output, err := exec.Command("cmd", "/c", "ver").CombinedOutput()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(output))
	case "linux":
		data, err := os.ReadFile("/etc/os-release")
		if err != nil {
			return ""
		}
		for _, line := range strings.Split(string(data), "\n") {
			if strings.HasPrefix(line, "PRETTY_NAME=") {
				return strings.Trim(strings.TrimPrefix(line, "PRETTY_NAME="), "\"")
			}
		}
		return ""
	default:
		return ""
	}
}

// DoctorCommand reports the adb binaries and server this process would use.
// Server failures are reported in the result rather than as an error.
func DoctorCommand(version string, configPath string) *CommandResponse {
	if configPath == "" {
		configPath = config.DefaultPath()
	}

	info := DoctorInfo{
		Version:     version,
		OS:          runtime.GOOS,
		OSVersion:   getOSVersion(),
		AndroidHome: os.Getenv("ANDROID_HOME"),
		ConfigPath:  configPath,
	}

	server, err := Server()
	if err != nil {
		return NewErrorResponse(err)
	}
	info.ServerAddress = server.Address()
	info.ADBBinaries = server.Candidates()
	if len(info.ADBBinaries) > 0 {
		info.ADBVersion = getAdbVersion(info.ADBBinaries[0])
	}

	if err := server.EnsureAlive(); err != nil {
		info.ServerError = err.Error()
		return NewSuccessResponse(info)
	}
	if v, err := server.Version(); err == nil {
		info.ServerVersion = v
	} else {
		info.ServerError = err.Error()
	}
	if entries, err := server.Devices(false); err == nil {
		info.DeviceCount = len(entries)
	}

	return NewSuccessResponse(info)
}
