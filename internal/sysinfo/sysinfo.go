// ABOUTME: Local machine probing: hostname, username, OS type and version.
// ABOUTME: Feeds registration payloads and GetSystemInfo results; never fails, only degrades.

package sysinfo

import (
	"os"
	"os/exec"
	"os/user"
	"runtime"
	"strings"

	"github.com/droverlabs/drover/internal/protocol"
)

const osReleasePath = "/etc/os-release"

// Collect samples the local machine. Fields that cannot be determined fall
// back to "unknown" values rather than failing; OSVersion may be empty.
func Collect() protocol.SystemInfo {
	return protocol.SystemInfo{
		Hostname:  hostname(),
		Username:  username(),
		OSType:    osType(),
		OSVersion: osVersion(),
	}
}

// ClientID derives the default identifier for this machine,
// username-hostname, mapped onto the subject-safe alphabet.
func ClientID() string {
	return protocol.SanitizeClientID(username() + "-" + hostname())
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown-host"
	}
	return h
}

func username() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		// Windows reports DOMAIN\name; keep the name.
		if i := strings.LastIndexByte(u.Username, '\\'); i >= 0 {
			return u.Username[i+1:]
		}
		return u.Username
	}
	if v := os.Getenv("USER"); v != "" {
		return v
	}
	if v := os.Getenv("USERNAME"); v != "" {
		return v
	}
	return "unknown"
}

func osType() string {
	switch runtime.GOOS {
	case "windows":
		return "Windows"
	case "linux":
		return "Linux"
	case "darwin":
		return "macOS"
	default:
		return "Unknown"
	}
}

func osVersion() string {
	switch runtime.GOOS {
	case "windows":
		out, err := exec.Command("cmd", "/c", "ver").Output()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(out))
	case "linux":
		data, err := os.ReadFile(osReleasePath)
		if err != nil {
			return ""
		}
		return prettyName(string(data))
	case "darwin":
		out, err := exec.Command("sw_vers", "-productVersion").Output()
		if err != nil {
			return ""
		}
		return "macOS " + strings.TrimSpace(string(out))
	default:
		return ""
	}
}

// prettyName extracts the PRETTY_NAME value from os-release content.
func prettyName(content string) string {
	for _, line := range strings.Split(content, "\n") {
		value, ok := strings.CutPrefix(strings.TrimSpace(line), "PRETTY_NAME=")
		if !ok {
			continue
		}
		return strings.Trim(value, `"`)
	}
	return ""
}
