package devices

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/mobile-next/adbctl/utils"
	"gopkg.in/ini.v1"
)

// first API level in androidReleases (Lollipop)
const firstReleaseAPI = 21

var androidReleases = []string{
	"5.0", "5.1", "6.0", "7.0", "7.1", "8.0", "8.1", "9.0",
	"10.0", "11.0", "12.0", "12.1", "13.0", "14.0", "15.0", "16.0",
}

// androidRelease turns an API level into a marketing version. Unknown
// levels are returned unchanged.
func androidRelease(apiLevel string) string {
	api, err := strconv.Atoi(apiLevel)
	if err != nil || api < firstReleaseAPI || api-firstReleaseAPI >= len(androidReleases) {
		return apiLevel
	}
	return androidReleases[api-firstReleaseAPI]
}

// avdHome resolves the directory holding <name>.ini files the way the SDK
// tools do: ANDROID_AVD_HOME, then ANDROID_USER_HOME/avd, then ~/.android/avd.
func avdHome() (string, error) {
	if dir := os.Getenv("ANDROID_AVD_HOME"); dir != "" {
		return dir, nil
	}
	if dir := os.Getenv("ANDROID_USER_HOME"); dir != "" {
		return filepath.Join(dir, "avd"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".android", "avd"), nil
}

// avdPointer is <avd home>/<name>.ini. path.rel is relative to the parent
// of the avd home.
type avdPointer struct {
	Path    string `ini:"path"`
	PathRel string `ini:"path.rel"`
}

// avdConfig is the part of <name>.avd/config.ini used for listing.
type avdConfig struct {
	DisplayName string `ini:"avd.ini.displayname"`
	Target      string `ini:"target"`
	SysDir      string `ini:"image.sysdir.1"`
	AvdID       string `ini:"AvdId"`
}

type virtualDevice struct {
	// file stem, the name `emulator -avd` takes
	name   string
	config avdConfig
}

// apiLevel reads "android-31" from target, or from the system image path
// "system-images/android-31/google_apis/x86_64/" when target is missing.
func (v virtualDevice) apiLevel() string {
	if level, ok := strings.CutPrefix(v.config.Target, "android-"); ok {
		return level
	}
	for _, part := range strings.Split(filepath.ToSlash(v.config.SysDir), "/") {
		if level, ok := strings.CutPrefix(part, "android-"); ok {
			return level
		}
	}
	return ""
}

// label is the display name without vendor suffix or underscores:
// "pixel_6 (Google)" becomes "pixel 6".
func (v virtualDevice) label() string {
	label := v.config.DisplayName
	if idx := strings.Index(label, "("); idx > 0 {
		label = strings.TrimSpace(label[:idx])
	}
	return strings.ReplaceAll(label, "_", " ")
}

func (v virtualDevice) runningIn(online map[string]bool) bool {
	for id := range online {
		if matchesAVDName(v.config.AvdID, id) || matchesAVDName(v.name, id) {
			return true
		}
	}
	return false
}

func loadINI(path string, v interface{}) error {
	f, err := ini.Load(path)
	if err != nil {
		return err
	}
	return f.Section("").MapTo(v)
}

// listVirtualDevices reads every AVD definition under home, sorted by name.
// Definitions that cannot be read or have no display name are skipped.
func listVirtualDevices(home string) ([]virtualDevice, error) {
	pointers, err := filepath.Glob(filepath.Join(home, "*.ini"))
	if err != nil {
		return nil, err
	}

	var found []virtualDevice
	for _, pointerPath := range pointers {
		var pointer avdPointer
		if err := loadINI(pointerPath, &pointer); err != nil {
			utils.Verbose("Failed to read %s: %v", pointerPath, err)
			continue
		}

		dir := pointer.Path
		if dir == "" || !isDir(dir) {
			if pointer.PathRel == "" {
				continue
			}
			dir = filepath.Join(filepath.Dir(home), pointer.PathRel)
		}

		var cfg avdConfig
		configPath := filepath.Join(dir, "config.ini")
		if err := loadINI(configPath, &cfg); err != nil {
			utils.Verbose("Failed to read %s: %v", configPath, err)
			continue
		}
		if cfg.DisplayName == "" {
			continue
		}

		found = append(found, virtualDevice{
			name:   strings.TrimSuffix(filepath.Base(pointerPath), ".ini"),
			config: cfg,
		})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].name < found[j].name })
	return found, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// getOfflineAndroidEmulators returns the AVDs that are not running. online
// holds the ids of running emulators.
func getOfflineAndroidEmulators(online map[string]bool) ([]*AndroidDevice, error) {
	home, err := avdHome()
	if err != nil {
		return nil, err
	}
	avds, err := listVirtualDevices(home)
	if err != nil {
		return nil, err
	}

	var offline []*AndroidDevice
	for _, avd := range avds {
		if avd.runningIn(online) {
			continue
		}
		offline = append(offline, &AndroidDevice{
			id:      avd.name,
			name:    avd.label(),
			version: androidRelease(avd.apiLevel()),
			state:   StateOffline,
		})
	}
	return offline, nil
}
