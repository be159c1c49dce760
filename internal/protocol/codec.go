// ABOUTME: JSON envelope codec for the wire types.
// ABOUTME: Decoding is strict; a payload that fails here is dropped by the caller, never dispatched.

package protocol

import (
	"encoding/json"
	"fmt"
)

// commandEnvelope is the wire form of a Command: a type discriminator plus the
// union of every variant's payload fields.
type commandEnvelope struct {
	Type    string   `json:"type"`
	Command string   `json:"command,omitempty"`
	Level   LogLevel `json:"level,omitempty"`
	Message string   `json:"message,omitempty"`
}

// EncodeCommand serializes cmd to its JSON envelope.
func EncodeCommand(cmd Command) ([]byte, error) {
	env := commandEnvelope{Type: cmd.tag()}
	switch c := cmd.(type) {
	case Ping, GetSystemInfo, Shutdown:
	case Execute:
		env.Command = c.Command
	case LogEvent:
		env.Level = c.Level
		env.Message = c.Message
	default:
		return nil, fmt.Errorf("unhandled command variant %T", cmd)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding %s command: %w", env.Type, err)
	}
	return data, nil
}

// DecodeCommand parses a JSON envelope into the matching Command variant.
// A missing or unknown type tag and an invalid LogEvent level are errors.
func DecodeCommand(data []byte) (Command, error) {
	var env commandEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parsing command envelope: %w", err)
	}
	switch env.Type {
	case Ping{}.tag():
		return Ping{}, nil
	case Execute{}.tag():
		return Execute{Command: env.Command}, nil
	case GetSystemInfo{}.tag():
		return GetSystemInfo{}, nil
	case Shutdown{}.tag():
		return Shutdown{}, nil
	case LogEvent{}.tag():
		if !env.Level.Valid() {
			return nil, fmt.Errorf("log event level %q is not a known level", string(env.Level))
		}
		return LogEvent{Level: env.Level, Message: env.Message}, nil
	case "":
		return nil, fmt.Errorf("command envelope has no type tag")
	default:
		return nil, fmt.Errorf("unknown command type %q", env.Type)
	}
}

// EncodeResult serializes a CommandResult.
func EncodeResult(r CommandResult) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encoding command result: %w", err)
	}
	return data, nil
}

// DecodeResult parses a CommandResult, rejecting unknown command types.
func DecodeResult(data []byte) (CommandResult, error) {
	var r CommandResult
	if err := json.Unmarshal(data, &r); err != nil {
		return CommandResult{}, fmt.Errorf("parsing command result: %w", err)
	}
	if !r.CommandType.Valid() {
		return CommandResult{}, fmt.Errorf("command result has unknown command type %q", string(r.CommandType))
	}
	return r, nil
}

// EncodeSystemInfo serializes a SystemInfo for registration payloads.
func EncodeSystemInfo(si SystemInfo) ([]byte, error) {
	data, err := json.Marshal(si)
	if err != nil {
		return nil, fmt.Errorf("encoding system info: %w", err)
	}
	return data, nil
}

// DecodeSystemInfo parses a SystemInfo. Hostname, username, and OS type are
// required; an empty OS version is fine.
func DecodeSystemInfo(data []byte) (SystemInfo, error) {
	var si SystemInfo
	if err := json.Unmarshal(data, &si); err != nil {
		return SystemInfo{}, fmt.Errorf("parsing system info: %w", err)
	}
	if si.Hostname == "" || si.Username == "" || si.OSType == "" {
		return SystemInfo{}, fmt.Errorf("system info is missing required fields (hostname=%q username=%q os_type=%q)",
			si.Hostname, si.Username, si.OSType)
	}
	return si, nil
}

// FormatSystemInfo renders si as indented JSON for operator display.
func FormatSystemInfo(si SystemInfo) (string, error) {
	data, err := json.MarshalIndent(si, "", "  ")
	if err != nil {
		return "", fmt.Errorf("formatting system info: %w", err)
	}
	return string(data), nil
}
