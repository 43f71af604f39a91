package devices

import (
	"testing"

	"github.com/mobile-next/adbctl/adb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAscii(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"empty string", "", true},
		{"simple ascii", "hello world", true},
		{"numbers and punctuation", "abc123!@#", true},
		{"newlines and tabs", "hello\nworld\t!", true},
		{"unicode emoji", "hello 🌍", false},
		{"chinese characters", "你好", false},
		{"accented characters", "café", false},
		{"max ascii char", string(rune(127)), true},
		{"first non-ascii char", string(rune(128)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isAscii(tt.text); got != tt.want {
				t.Errorf("isAscii(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestEscapeShellText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"simple text", "hello", "hello"},
		{"text with spaces", "hello world", "hello\\ world"},
		{"single quote", "it's", "it\\'s"},
		{"double quote", `say "hi"`, `say\ \"hi\"`},
		{"semicolons", "a;b", "a\\;b"},
		{"pipes", "a|b", "a\\|b"},
		{"ampersands", "a&b", "a\\&b"},
		{"parentheses", "(test)", "\\(test\\)"},
		{"dollar sign", "$HOME", "\\$HOME"},
		{"asterisk", "*.txt", "\\*.txt"},
		{"backslash", `a\b`, `a\\b`},
		{"empty string", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := escapeShellText(tt.text); got != tt.want {
				t.Errorf("escapeShellText(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestMatchesAVDName(t *testing.T) {
	tests := []struct {
		name       string
		avdName    string
		deviceName string
		want       bool
	}{
		{"exact match", "Pixel_9_Pro", "Pixel_9_Pro", true},
		{"underscores to spaces", "Pixel_9_Pro", "Pixel 9 Pro", true},
		{"no match", "Pixel_9_Pro", "Pixel 8", false},
		{"empty strings", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesAVDName(tt.avdName, tt.deviceName); got != tt.want {
				t.Errorf("matchesAVDName(%q, %q) = %v, want %v", tt.avdName, tt.deviceName, got, tt.want)
			}
		})
	}
}

func TestAndroidDevice_DeviceType(t *testing.T) {
	tests := []struct {
		name        string
		transportID string
		state       string
		want        string
	}{
		{"emulator by transport id", "emulator-5554", "online", "emulator"},
		{"real device", "R5CR1234567", "online", "real"},
		{"offline device is emulator", "", "offline", "emulator"},
		{"empty transport online", "", "online", "real"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &AndroidDevice{transportID: tt.transportID, state: tt.state}
			if got := d.DeviceType(); got != tt.want {
				t.Errorf("DeviceType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAndroidDevice_GetAdbIdentifier(t *testing.T) {
	tests := []struct {
		name        string
		id          string
		transportID string
		want        string
	}{
		{"uses transport id when set", "Pixel_9_Pro", "emulator-5554", "emulator-5554"},
		{"falls back to id", "Pixel_9_Pro", "", "Pixel_9_Pro"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &AndroidDevice{id: tt.id, transportID: tt.transportID}
			if got := d.getAdbIdentifier(); got != tt.want {
				t.Errorf("getAdbIdentifier() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAndroidDevice_AccessorMethods(t *testing.T) {
	d := &AndroidDevice{
		id:      "test-id",
		name:    "Test Device",
		version: "14.0",
		state:   "online",
	}

	assert.Equal(t, "test-id", d.ID())
	assert.Equal(t, "Test Device", d.Name())
	assert.Equal(t, "14.0", d.Version())
	assert.Equal(t, "android", d.Platform())
	assert.Equal(t, "online", d.State())
}

func TestAndroidDevice_AdbRequiresOnline(t *testing.T) {
	d := &AndroidDevice{id: "Pixel_9_Pro", state: StateOffline}
	_, err := d.Adb()
	assert.Error(t, err)

	d = NewAndroidDevice(adb.NewServer(adb.ServerConfig{}), "R5CR1234567")
	dev, err := d.Adb()
	require.NoError(t, err)
	assert.Equal(t, "R5CR1234567", dev.Serial())
}

func TestButtonKeycode(t *testing.T) {
	tests := []struct {
		key  string
		want int
	}{
		{"HOME", 3},
		{"BACK", 4},
		{"POWER", 26},
		{"VOLUME_UP", 24},
		{"VOLUME_DOWN", 25},
		{"ENTER", 66},
		{"DPAD_CENTER", 23},
		{"BACKSPACE", 67},
		{"APP_SWITCH", 187},
		{"home", 3},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := ButtonKeycode(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ButtonKeycode("SELFIE")
	assert.Error(t, err)
}

func TestDescribeAndroidDevice(t *testing.T) {
	props := map[string]string{
		"ro.product.model":         "sdk_gphone64_arm64",
		"ro.build.version.release": "15",
		"ro.boot.qemu.avd_name":    "Pixel_9_Pro",
	}
	prop := func(name string) string { return props[name] }

	emu := describeAndroidDevice(adb.DeviceEntry{Serial: "emulator-5554", State: "device"}, prop)
	assert.Equal(t, "Pixel_9_Pro", emu.ID())
	assert.Equal(t, "Pixel 9 Pro", emu.Name())
	assert.Equal(t, "15", emu.Version())
	assert.Equal(t, StateOnline, emu.State())
	assert.Equal(t, "emulator", emu.DeviceType())
	assert.Equal(t, "emulator-5554", emu.getAdbIdentifier())

	phone := describeAndroidDevice(adb.DeviceEntry{Serial: "R5CR1234567", State: "device"}, prop)
	assert.Equal(t, "R5CR1234567", phone.ID())
	assert.Equal(t, "sdk_gphone64_arm64", phone.Name())
	assert.Equal(t, "real", phone.DeviceType())

	called := false
	unauthorized := describeAndroidDevice(adb.DeviceEntry{Serial: "R5CR7654321", State: "unauthorized"},
		func(string) string { called = true; return "" })
	assert.False(t, called)
	assert.Equal(t, "unauthorized", unauthorized.State())
	assert.Equal(t, "R5CR7654321", unauthorized.Name())
}

func TestParseWmSize(t *testing.T) {
	size, ok := parseWmSize("Physical size: 1080x2400\n")
	require.True(t, ok)
	assert.Equal(t, ScreenSize{Width: 1080, Height: 2400, Scale: 1}, *size)

	size, ok = parseWmSize("Physical size: 1080x2400\nOverride size: 720x1600\n")
	require.True(t, ok)
	assert.Equal(t, 720, size.Width)
	assert.Equal(t, 1600, size.Height)

	_, ok = parseWmSize("error: no display")
	assert.False(t, ok)
}
