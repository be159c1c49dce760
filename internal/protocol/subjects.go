// ABOUTME: Subject naming scheme and client identifier rules for the bus.
// ABOUTME: All subject construction lives here so agent and server can never drift apart.

package protocol

import "strings"

// DefaultSubjectPrefix is the subject namespace used when none is configured.
const DefaultSubjectPrefix = "rs-support"

// HeaderClientID is the request header carrying a registering client's identity.
// Matched exactly; bus headers are case-sensitive.
const HeaderClientID = "client_id"

// RegistrationAck is the literal body an operator replies to a registration with.
const RegistrationAck = "ACK"

// Subjects builds the well-known subject names under one prefix.
type Subjects struct {
	prefix string
}

// NewSubjects returns a Subjects rooted at prefix, or at DefaultSubjectPrefix
// when prefix is empty.
func NewSubjects(prefix string) Subjects {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return Subjects{prefix: prefix}
}

// Prefix returns the configured subject prefix.
func (s Subjects) Prefix() string { return s.prefix }

// Register is the subject agents send registration requests to.
func (s Subjects) Register() string { return s.prefix + ".register" }

// Heartbeat is the subject agents publish liveness beacons to.
func (s Subjects) Heartbeat() string { return s.prefix + ".heartbeat" }

// Command is the per-client subject the operator publishes commands to.
func (s Subjects) Command(clientID string) string { return s.prefix + ".command." + clientID }

// Response is the per-client subject an agent publishes results to.
func (s Subjects) Response(clientID string) string { return s.prefix + ".response." + clientID }

// safeIDRune reports whether r may appear in a subject-safe client identifier.
func safeIDRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_' || r == '-':
		return true
	}
	return false
}

// SanitizeClientID maps s onto the subject-safe alphabet [A-Za-z0-9_-].
// Every other rune (dots, spaces, wildcards) becomes '-', so a derived
// identifier can never add subject tokens or match wildcards.
func SanitizeClientID(s string) string {
	return strings.Map(func(r rune) rune {
		if safeIDRune(r) {
			return r
		}
		return '-'
	}, s)
}

// ValidClientID reports whether id is non-empty and already subject-safe.
func ValidClientID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if !safeIDRune(r) {
			return false
		}
	}
	return true
}
