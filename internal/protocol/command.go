// ABOUTME: Closed set of wire types for the support protocol: commands, results, system info.
// ABOUTME: Dispatch sites type-switch over the Command variants; the set is sealed here.

package protocol

import (
	"fmt"
	"strings"
)

// LogLevel is the severity a LogEvent asks the agent to log at.
// Wire values are the capitalized names; String renders the display form.
type LogLevel string

const (
	LevelDebug   LogLevel = "Debug"
	LevelInfo    LogLevel = "Info"
	LevelWarning LogLevel = "Warning"
	LevelError   LogLevel = "Error"
)

// Valid reports whether l is one of the four defined levels.
func (l LogLevel) Valid() bool {
	switch l {
	case LevelDebug, LevelInfo, LevelWarning, LevelError:
		return true
	}
	return false
}

// String returns the display form, e.g. "WARNING".
func (l LogLevel) String() string { return strings.ToUpper(string(l)) }

// ParseLogLevel matches s against the defined levels, case-insensitively.
func ParseLogLevel(s string) (LogLevel, bool) {
	for _, l := range []LogLevel{LevelDebug, LevelInfo, LevelWarning, LevelError} {
		if strings.EqualFold(s, string(l)) {
			return l, true
		}
	}
	return "", false
}

// CommandType distinguishes shell executions from internally handled commands
// in a CommandResult.
type CommandType string

const (
	TypeShell    CommandType = "Shell"
	TypeInternal CommandType = "Internal"
)

// Valid reports whether t is a defined command type.
func (t CommandType) Valid() bool { return t == TypeShell || t == TypeInternal }

// Command is one instruction an operator sends to an agent. The variant set is
// closed: implementing the unexported tag method seals it, and DecodeCommand
// only ever produces the types below.
type Command interface {
	fmt.Stringer
	// tag returns the wire discriminator for the variant.
	tag() string
}

// Ping asks the agent to prove liveness.
type Ping struct{}

// Execute runs a shell command line on the agent's machine.
type Execute struct {
	Command string
}

// GetSystemInfo asks the agent for a fresh system snapshot.
type GetSystemInfo struct{}

// Shutdown asks the agent to acknowledge and then stop cleanly.
type Shutdown struct{}

// LogEvent asks the agent to emit a log line at the given level.
type LogEvent struct {
	Level   LogLevel
	Message string
}

func (Ping) tag() string          { return "Ping" }
func (Execute) tag() string       { return "Execute" }
func (GetSystemInfo) tag() string { return "GetSystemInfo" }
func (Shutdown) tag() string      { return "Shutdown" }
func (LogEvent) tag() string      { return "LogEvent" }

func (Ping) String() string          { return "Ping" }
func (c Execute) String() string     { return "Execute: " + c.Command }
func (GetSystemInfo) String() string { return "GetSystemInfo" }
func (Shutdown) String() string      { return "Shutdown" }
func (e LogEvent) String() string    { return fmt.Sprintf("Log [%s]: %s", e.Level, e.Message) }

// CommandResult is an agent's reply to exactly one Command.
type CommandResult struct {
	Success     bool        `json:"success"`
	Output      string      `json:"output"`
	Error       string      `json:"error,omitempty"`
	CommandType CommandType `json:"command_type"`
}

// SystemInfo describes the machine an agent runs on. OSVersion is best-effort
// and may be empty; the other fields are required on the wire.
type SystemInfo struct {
	Hostname  string `json:"hostname"`
	Username  string `json:"username"`
	OSType    string `json:"os_type"`
	OSVersion string `json:"os_version,omitempty"`
}
