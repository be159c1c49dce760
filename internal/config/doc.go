// Package config handles configuration loading for drover.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion
// and layered over built-in defaults, so both subcommands run with no file at
// all. Command-line flags are applied on top by cmd/drover.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from DROVER_CONFIG environment variable
//  2. ./drover.yaml (current directory)
//  3. ~/.config/drover/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	nats:
//	  url: "${DROVER_NATS_URL}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	agent:
//	  heartbeat_interval: "30s"
//	clients:
//	  ttl: "5m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Bus connection:
//
//	nats:
//	  url: "nats://localhost:4222"
//	  subject_prefix: "rs-support"
//
// Agent (client subcommand):
//
//	agent:
//	  client_id: ""              # default: username-hostname
//	  heartbeat_interval: "30s"
//
// Client tracking (server subcommand):
//
//	clients:
//	  ttl: "0s"                  # evict after this much silence; 0 = never
//
// Operator history:
//
//	history:
//	  path: ":memory:"           # SQLite file path, or in-memory
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - NATS URL presence
//   - Subject prefix shape (no spaces, wildcards, or empty tokens)
//   - Client id alphabet ([A-Za-z0-9_-])
//   - Duration format validity and sign
//   - Logging level and format values
package config
