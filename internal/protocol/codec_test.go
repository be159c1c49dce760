// ABOUTME: Tests for the JSON envelope codec.
// ABOUTME: Covers wire-shape compatibility and strict decode failures.

package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCommandWireShapes(t *testing.T) {
	// Payloads as a foreign implementation would produce them.
	cmd, err := DecodeCommand([]byte(`{"type":"Ping"}`))
	require.NoError(t, err)
	assert.Equal(t, Ping{}, cmd)

	cmd, err = DecodeCommand([]byte(`{"type":"Execute","command":"uname -a"}`))
	require.NoError(t, err)
	assert.Equal(t, Execute{Command: "uname -a"}, cmd)

	cmd, err = DecodeCommand([]byte(`{"type":"GetSystemInfo"}`))
	require.NoError(t, err)
	assert.Equal(t, GetSystemInfo{}, cmd)

	cmd, err = DecodeCommand([]byte(`{"type":"Shutdown"}`))
	require.NoError(t, err)
	assert.Equal(t, Shutdown{}, cmd)

	cmd, err = DecodeCommand([]byte(`{"type":"LogEvent","level":"Warning","message":"disk almost full"}`))
	require.NoError(t, err)
	assert.Equal(t, LogEvent{Level: LevelWarning, Message: "disk almost full"}, cmd)
}

func TestEncodeCommandOmitsUnusedFields(t *testing.T) {
	data, err := EncodeCommand(Ping{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Ping"}`, string(data))

	data, err = EncodeCommand(Execute{Command: "ls -la"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Execute","command":"ls -la"}`, string(data))

	data, err = EncodeCommand(LogEvent{Level: LevelInfo, Message: "hello"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"LogEvent","level":"Info","message":"hello"}`, string(data))
}

func TestCommandRoundTrip(t *testing.T) {
	commands := []Command{
		Ping{},
		Execute{Command: "echo hi"},
		Execute{Command: ""},
		GetSystemInfo{},
		Shutdown{},
		LogEvent{Level: LevelError, Message: "boom"},
	}
	for _, cmd := range commands {
		data, err := EncodeCommand(cmd)
		require.NoError(t, err, "encoding %s", cmd)
		decoded, err := DecodeCommand(data)
		require.NoError(t, err, "decoding %s", cmd)
		assert.Equal(t, cmd, decoded)
	}
}

func TestDecodeCommandRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"empty", ``},
		{"not json", `pong`},
		{"missing type", `{"command":"ls"}`},
		{"unknown type", `{"type":"Reboot"}`},
		{"lowercase type", `{"type":"ping"}`},
		{"log event bad level", `{"type":"LogEvent","level":"Critical","message":"x"}`},
		{"log event missing level", `{"type":"LogEvent","message":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCommand([]byte(tt.payload))
			assert.Error(t, err)
		})
	}
}

func TestResultEncoding(t *testing.T) {
	data, err := EncodeResult(CommandResult{Success: true, Output: "Pong", CommandType: TypeInternal})
	require.NoError(t, err)
	// The error field stays off the wire when empty.
	assert.JSONEq(t, `{"success":true,"output":"Pong","command_type":"Internal"}`, string(data))

	res, err := DecodeResult([]byte(`{"success":false,"output":"","error":"no such file","command_type":"Shell"}`))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "no such file", res.Error)
	assert.Equal(t, TypeShell, res.CommandType)
}

func TestDecodeResultRejectsUnknownCommandType(t *testing.T) {
	_, err := DecodeResult([]byte(`{"success":true,"output":"","command_type":"Remote"}`))
	assert.Error(t, err)

	_, err = DecodeResult([]byte(`{"success":true,"output":""}`))
	assert.Error(t, err)
}

func TestSystemInfoValidation(t *testing.T) {
	si, err := DecodeSystemInfo([]byte(`{"hostname":"wk-01","username":"ana","os_type":"Linux"}`))
	require.NoError(t, err)
	assert.Equal(t, SystemInfo{Hostname: "wk-01", Username: "ana", OSType: "Linux"}, si)
	assert.Empty(t, si.OSVersion)

	_, err = DecodeSystemInfo([]byte(`{"hostname":"wk-01","os_type":"Linux"}`))
	assert.Error(t, err, "missing username must fail")

	_, err = DecodeSystemInfo([]byte(`{}`))
	assert.Error(t, err)
}

func TestEncodeSystemInfoOmitsEmptyVersion(t *testing.T) {
	data, err := EncodeSystemInfo(SystemInfo{Hostname: "wk-01", Username: "ana", OSType: "Linux"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"hostname":"wk-01","username":"ana","os_type":"Linux"}`, string(data))
}

func TestFormatSystemInfoIsIndented(t *testing.T) {
	out, err := FormatSystemInfo(SystemInfo{Hostname: "wk-01", Username: "ana", OSType: "Linux", OSVersion: "Debian 13"})
	require.NoError(t, err)
	assert.Contains(t, out, "\n  \"hostname\": \"wk-01\"")
	assert.Contains(t, out, "Debian 13")
}

func TestLogLevelDisplay(t *testing.T) {
	assert.Equal(t, "WARNING", LevelWarning.String())
	assert.Equal(t, "INFO", LevelInfo.String())

	level, ok := ParseLogLevel("warning")
	require.True(t, ok)
	assert.Equal(t, LevelWarning, level)

	level, ok = ParseLogLevel("ERROR")
	require.True(t, ok)
	assert.Equal(t, LevelError, level)

	_, ok = ParseLogLevel("critical")
	assert.False(t, ok)
}

func TestCommandStrings(t *testing.T) {
	assert.Equal(t, "Ping", Ping{}.String())
	assert.Equal(t, "Execute: ls -la", Execute{Command: "ls -la"}.String())
	assert.Equal(t, "Log [INFO]: hello", LogEvent{Level: LevelInfo, Message: "hello"}.String())
}
