// Package protocol defines the wire contract between operators and agents.
//
// # Overview
//
// Everything that crosses the bus is defined here: the closed Command set, the
// CommandResult and SystemInfo payloads, the JSON envelope codec, and the
// subject naming scheme. Agent and server import this package and nothing of
// each other, so the wire contract has exactly one home.
//
// # Commands
//
// Command is a sealed interface with five variants:
//
//   - Ping: liveness check, answered with "Pong"
//   - Execute: run a shell command line and capture its output
//   - GetSystemInfo: return a fresh system snapshot
//   - Shutdown: acknowledge, then stop the agent cleanly
//   - LogEvent: emit a log line at a requested level
//
// Dispatch is an exhaustive type switch; adding a variant means adding a case.
//
// # Wire Format
//
// Commands travel as an internally tagged JSON envelope:
//
//	{"type":"Ping"}
//	{"type":"Execute","command":"uname -a"}
//	{"type":"LogEvent","level":"Info","message":"hello"}
//
// Results and system info are plain JSON objects. Decoding is strict: unknown
// or missing type tags, invalid log levels, unknown command types, and missing
// required SystemInfo fields are all decode errors. Callers drop undecodable
// payloads after logging them; they never reach dispatch.
//
// # Subjects
//
// All subjects live under one configurable prefix (default "rs-support"):
//
//	<prefix>.register        registration requests (request/reply)
//	<prefix>.heartbeat       liveness beacons
//	<prefix>.command.<id>    operator to one client
//	<prefix>.response.<id>   one client back to the operator
//
// Client identifiers embed into subjects, so SanitizeClientID maps derived
// identities onto [A-Za-z0-9_-] and ValidClientID gates configured ones.
package protocol
