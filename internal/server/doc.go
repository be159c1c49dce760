// ABOUTME: Package documentation for the operator server runtime.
// ABOUTME: Describes the registration flow, listener lifecycle, and console verbs.

// Package server implements the operator side of the command bus.
//
// # Overview
//
// The server subscribes to the shared registration and heartbeat subjects,
// keeps a registry of connected clients, and runs an interactive console for
// dispatching commands. Each registered client gets its own response
// listener, so results render as they arrive regardless of which client is
// being addressed at the prompt.
//
// # Registration
//
// Clients register by sending their system details to <prefix>.register with
// a client_id header; the server replies "ACK" on the request inbox. The
// header is the authoritative identity, with the reply inbox as a fallback
// for clients that omit it. Re-registration replaces the stored details and
// reuses the existing response listener.
//
// # Liveness
//
// Heartbeats carry a bare client ID and refresh the client's LastSeen
// timestamp; they never create registry entries. When a TTL is configured,
// an eviction loop prunes clients whose LastSeen has fallen behind and tears
// down their listeners. Evicted clients reappear as soon as they register
// again.
//
// # Console
//
// The console reads one verb per line: list, ping, execute, sysinfo, log,
// shutdown, history, help, and exit. Commands are only sent to IDs present
// in the registry. History queries run against the store directly, so past
// activity stays readable after a client is evicted. EOF on the input stream
// ends the session like exit.
package server
