package adb

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// filesystem abstracts interactions with the local machine for testability.
type filesystem struct {
	// Wraps exec.LookPath.
	LookPath func(string) (string, error)

	// Returns nil if path is a regular file and executable by the current user.
	IsExecutableFile func(path string) error

	// Runs name with args and extra environment, returning combined output.
	CmdCombinedOutput func(env []string, name string, arg ...string) ([]byte, error)

	Getenv      func(string) string
	UserHomeDir func() (string, error)
	GOOS        string
}

var localFilesystem = &filesystem{
	LookPath: exec.LookPath,
	IsExecutableFile: func(path string) error {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return errors.New("not a regular file")
		}
		if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
			return errors.New("not executable")
		}
		return nil
	},
	CmdCombinedOutput: func(env []string, name string, arg ...string) ([]byte, error) {
		cmd := exec.Command(name, arg...)
		if len(env) > 0 {
			cmd.Env = append(os.Environ(), env...)
		}
		return cmd.CombinedOutput()
	},
	Getenv:      os.Getenv,
	UserHomeDir: os.UserHomeDir,
	GOOS:        runtime.GOOS,
}

func (fs *filesystem) adbExecutableName() string {
	if fs.GOOS == "windows" {
		return AdbExecutableName + ".exe"
	}
	return AdbExecutableName
}

// sdkRoots lists Android SDK directories from the environment, then the
// per-platform default install location.
func (fs *filesystem) sdkRoots() []string {
	var roots []string
	for _, name := range []string{"ANDROID_SDK_ROOT", "ANDROID_HOME"} {
		if dir := fs.Getenv(name); dir != "" {
			roots = append(roots, dir)
		}
	}

	switch fs.GOOS {
	case "windows":
		if dir := fs.Getenv("LOCALAPPDATA"); dir != "" {
			roots = append(roots, filepath.Join(dir, "Android", "Sdk"))
		}
	case "darwin":
		if home, err := fs.UserHomeDir(); err == nil {
			roots = append(roots, filepath.Join(home, "Library", "Android", "sdk"))
		}
	default:
		if home, err := fs.UserHomeDir(); err == nil {
			roots = append(roots, filepath.Join(home, "Android", "Sdk"))
		}
	}
	return roots
}
